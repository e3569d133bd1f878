// Package middleware содержит HTTP middleware сервиса учёта вакцинных закупок.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

type contextKey string

const staffIDKey contextKey = "staffID"

const authHeaderPrefix = "Bearer "

// AuthMiddleware проверяет подписанный токен сотрудника, выданный внешней
// системой аутентификации с тем же секретом. Идентификатор сотрудника —
// непрозрачная строка, сервис её не интерпретирует.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// Middleware проверяет токен из заголовка Authorization и добавляет
// идентификатор сотрудника в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, authHeaderPrefix) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		staffID, ok := a.parseToken(strings.TrimPrefix(header, authHeaderPrefix))
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), staffIDKey, staffID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IssueToken подписывает идентификатор сотрудника. Используется внешним
// сервисом аутентификации, разделяющим секрет, и тестами.
func (a *AuthMiddleware) IssueToken(staffID string) string {
	return staffID + "." + a.sign(staffID)
}

func (a *AuthMiddleware) sign(staffID string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(staffID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *AuthMiddleware) parseToken(token string) (string, bool) {
	// Идентификатор может содержать точки, подпись — после последней.
	idx := strings.LastIndex(token, ".")
	if idx <= 0 {
		return "", false
	}

	staffID := token[:idx]
	signature := token[idx+1:]

	if !hmac.Equal([]byte(signature), []byte(a.sign(staffID))) {
		return "", false
	}

	return staffID, true
}

// GetStaffIDFromContext извлекает идентификатор сотрудника из контекста запроса.
func GetStaffIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(staffIDKey).(string)
	return id, ok
}
