// Package catalog предоставляет клиент для внешнего реестра вакцин.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client инкапсулирует HTTP-взаимодействие с реестром вакцин.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Vaccine описывает запись каталога вакцин на момент запроса.
type Vaccine struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	BatchNumber      string  `json:"batch_number"`
	PricePerDose     float64 `json:"price_per_dose"`
	TotalQuantity    int     `json:"total_quantity"`
	ReservedQuantity int     `json:"reserved_quantity"`
	Published        bool    `json:"published"`
}

// Available возвращает доступный остаток вакцины на складе.
func (v *Vaccine) Available() int {
	return v.TotalQuantity - v.ReservedQuantity
}

// NewClient создаёт HTTP-клиент для обращения к реестру вакцин по указанному адресу.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// GetVaccine запрашивает запись каталога для указанного идентификатора вакцины.
// Для неизвестной вакцины возвращает nil без ошибки (статус 404), при 429
// возвращает длительность из заголовка Retry-After.
func (c *Client) GetVaccine(ctx context.Context, vaccineID string) (*Vaccine, int, time.Duration, error) {
	if c == nil || c.baseURL == "" {
		return nil, 0, 0, fmt.Errorf("catalog client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	url := fmt.Sprintf("%s/api/vaccines/%s", base, vaccineID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return nil, resp.StatusCode, retryAfter, nil
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, resp.StatusCode, 0, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result Vaccine
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, 0, fmt.Errorf("decode response: %w", err)
	}

	return &result, resp.StatusCode, 0, nil
}
