// Package handler содержит HTTP-обработчики API сервиса учёта вакцинных закупок.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/vaxledger-system/internal/eligibility"
	"github.com/mmeshcher/vaxledger-system/internal/middleware"
	"github.com/mmeshcher/vaxledger-system/internal/model"
	"github.com/mmeshcher/vaxledger-system/internal/repository"
	"github.com/mmeshcher/vaxledger-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreatePurchase(ctx context.Context, patientID, vaccineID string, totalDoses int, createdBy string) (*model.Purchase, error)
	GetPurchase(ctx context.Context, purchaseID string) (*model.Purchase, error)
	GetPurchasesByPatient(ctx context.Context, patientID string) ([]model.Purchase, error)
	RecordPayment(ctx context.Context, purchaseID string, amount float64, paymentDate time.Time, method model.PaymentMethod, referenceNumber, notes, receivedBy string) (*model.Payment, error)
	GetPaymentsByPurchase(ctx context.Context, purchaseID string) ([]model.Payment, error)
	CheckEligibility(ctx context.Context, purchaseID string) (*eligibility.Result, error)
	AdministerDose(ctx context.Context, purchaseID string, doseDate time.Time, administeredBy, notes string) (*model.Vaccination, error)
	GetVaccinationsByPurchase(ctx context.Context, purchaseID string) ([]model.Vaccination, error)
	DeactivatePurchase(ctx context.Context, purchaseID string) error
	GetStats(ctx context.Context) (*model.Stats, error)
}

// Handler реализует HTTP-обработчики API сервиса учёта вакцинных закупок.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

func centsToAmount(c int64) float64 {
	return float64(c) / 100
}

// parseDate принимает дату в формате RFC3339 или как календарную дату.
// Пустая строка означает текущий момент.
func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Now(), nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}

type purchaseResponse struct {
	ID                string  `json:"id"`
	PatientID         string  `json:"patient_id"`
	VaccineID         string  `json:"vaccine_id"`
	VaccineName       string  `json:"vaccine_name"`
	BatchNumber       string  `json:"batch_number"`
	PricePerDose      float64 `json:"price_per_dose"`
	TotalDoses        int     `json:"total_doses"`
	TotalPackagePrice float64 `json:"total_package_price"`
	AmountPaid        float64 `json:"amount_paid"`
	Balance           float64 `json:"balance"`
	PaymentStatus     string  `json:"payment_status"`
	DosesAdministered int     `json:"doses_administered"`
	IsActive          bool    `json:"is_active"`
	CreatedBy         string  `json:"created_by"`
	CreatedAt         string  `json:"created_at"`
}

func toPurchaseResponse(p *model.Purchase) purchaseResponse {
	return purchaseResponse{
		ID:                p.ID,
		PatientID:         p.PatientID,
		VaccineID:         p.VaccineID,
		VaccineName:       p.VaccineName,
		BatchNumber:       p.BatchNumber,
		PricePerDose:      centsToAmount(p.PricePerDose),
		TotalDoses:        p.TotalDoses,
		TotalPackagePrice: centsToAmount(p.TotalPrice),
		AmountPaid:        centsToAmount(p.AmountPaid),
		Balance:           centsToAmount(p.Balance()),
		PaymentStatus:     string(p.Status()),
		DosesAdministered: p.DosesAdministered,
		IsActive:          p.IsActive,
		CreatedBy:         p.CreatedBy,
		CreatedAt:         p.CreatedAt.Format(time.RFC3339),
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

type createPurchaseRequest struct {
	PatientID  string `json:"patient_id"`
	VaccineID  string `json:"vaccine_id"`
	TotalDoses int    `json:"total_doses"`
}

// CreatePurchase создаёт закупку пакета доз для пациента.
func (h *Handler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	staffID, ok := middleware.GetStaffIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createPurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.PatientID == "" || req.VaccineID == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	p, err := h.service.CreatePurchase(r.Context(), req.PatientID, req.VaccineID, req.TotalDoses, staffID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidDoseCount):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, service.ErrVaccineNotFound),
			errors.Is(err, service.ErrVaccineNotPublished):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, service.ErrCatalogUnavailable):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		default:
			h.logger.Error("create purchase error", zap.Error(err), zap.String("vaccine", req.VaccineID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, toPurchaseResponse(p))
}

// GetPurchase возвращает закупку по идентификатору из пути запроса.
func (h *Handler) GetPurchase(w http.ResponseWriter, r *http.Request) {
	purchaseID := pathParam(r, "purchaseID")

	p, err := h.service.GetPurchase(r.Context(), purchaseID)
	if err != nil {
		if errors.Is(err, repository.ErrPurchaseNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get purchase error", zap.Error(err), zap.String("purchase", purchaseID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, toPurchaseResponse(p))
}

// GetPatientPurchases возвращает список закупок пациента.
func (h *Handler) GetPatientPurchases(w http.ResponseWriter, r *http.Request) {
	patientID := pathParam(r, "patientID")

	purchases, err := h.service.GetPurchasesByPatient(r.Context(), patientID)
	if err != nil {
		h.logger.Error("get patient purchases error", zap.Error(err), zap.String("patient", patientID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(purchases) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]purchaseResponse, 0, len(purchases))
	for i := range purchases {
		resp = append(resp, toPurchaseResponse(&purchases[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type recordPaymentRequest struct {
	Amount          float64 `json:"amount"`
	PaymentDate     string  `json:"payment_date"`
	PaymentMethod   string  `json:"payment_method"`
	ReferenceNumber string  `json:"reference_number"`
	Notes           string  `json:"notes"`
}

type paymentResponse struct {
	ID              string  `json:"id"`
	PurchaseID      string  `json:"purchase_id"`
	Amount          float64 `json:"amount"`
	PaymentDate     string  `json:"payment_date"`
	PaymentMethod   string  `json:"payment_method"`
	ReferenceNumber string  `json:"reference_number,omitempty"`
	Notes           string  `json:"notes,omitempty"`
	ReceivedBy      string  `json:"received_by"`
	CreatedAt       string  `json:"created_at"`
}

func toPaymentResponse(pmt *model.Payment) paymentResponse {
	return paymentResponse{
		ID:              pmt.ID,
		PurchaseID:      pmt.PurchaseID,
		Amount:          centsToAmount(pmt.Amount),
		PaymentDate:     pmt.PaymentDate.Format(time.RFC3339),
		PaymentMethod:   string(pmt.Method),
		ReferenceNumber: pmt.ReferenceNumber,
		Notes:           pmt.Notes,
		ReceivedBy:      pmt.ReceivedBy,
		CreatedAt:       pmt.CreatedAt.Format(time.RFC3339),
	}
}

// RecordPayment регистрирует платёж по закупке.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	staffID, ok := middleware.GetStaffIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	purchaseID := pathParam(r, "purchaseID")

	var req recordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	paymentDate, err := parseDate(req.PaymentDate)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	pmt, err := h.service.RecordPayment(r.Context(), purchaseID, req.Amount, paymentDate,
		model.PaymentMethod(req.PaymentMethod), req.ReferenceNumber, req.Notes, staffID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount),
			errors.Is(err, service.ErrInvalidPaymentMethod):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, repository.ErrPurchaseNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrPurchaseInactive):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, repository.ErrOverpayment):
			http.Error(w, err.Error(), http.StatusPaymentRequired)
		default:
			h.logger.Error("record payment error", zap.Error(err), zap.String("purchase", purchaseID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, toPaymentResponse(pmt))
}

// GetPayments возвращает историю платежей по закупке.
func (h *Handler) GetPayments(w http.ResponseWriter, r *http.Request) {
	purchaseID := pathParam(r, "purchaseID")

	payments, err := h.service.GetPaymentsByPurchase(r.Context(), purchaseID)
	if err != nil {
		h.logger.Error("get payments error", zap.Error(err), zap.String("purchase", purchaseID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(payments) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]paymentResponse, 0, len(payments))
	for i := range payments {
		resp = append(resp, toPaymentResponse(&payments[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type eligibilityResponse struct {
	Eligible          bool   `json:"eligible"`
	Message           string `json:"message"`
	NextDoseNumber    *int   `json:"next_dose_number"`
	DosesAdministered int    `json:"doses_administered"`
	DosesPaidFor      int    `json:"doses_paid_for"`
	TotalDoses        int    `json:"total_doses"`
}

// CheckEligibility возвращает право пациента на очередную дозу по закупке.
func (h *Handler) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	purchaseID := pathParam(r, "purchaseID")

	res, err := h.service.CheckEligibility(r.Context(), purchaseID)
	if err != nil {
		if errors.Is(err, repository.ErrPurchaseNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("check eligibility error", zap.Error(err), zap.String("purchase", purchaseID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := eligibilityResponse{
		Eligible:          res.Eligible,
		Message:           res.Message,
		DosesAdministered: res.DosesAdministered,
		DosesPaidFor:      res.DosesPaidFor,
		TotalDoses:        res.TotalDoses,
	}
	if res.Eligible {
		n := res.NextDoseNumber
		resp.NextDoseNumber = &n
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type administerDoseRequest struct {
	DoseDate string `json:"dose_date"`
	Notes    string `json:"notes"`
}

type vaccinationResponse struct {
	ID             string  `json:"id"`
	PurchaseID     string  `json:"purchase_id"`
	PatientID      string  `json:"patient_id"`
	DoseNumber     int     `json:"dose_number"`
	DoseDate       string  `json:"dose_date"`
	AdministeredBy string  `json:"administered_by"`
	Notes          string  `json:"notes,omitempty"`
	VaccineName    string  `json:"vaccine_name"`
	BatchNumber    string  `json:"batch_number"`
	PricePerDose   float64 `json:"price_per_dose"`
	CreatedAt      string  `json:"created_at"`
}

func toVaccinationResponse(v *model.Vaccination) vaccinationResponse {
	return vaccinationResponse{
		ID:             v.ID,
		PurchaseID:     v.PurchaseID,
		PatientID:      v.PatientID,
		DoseNumber:     v.DoseNumber,
		DoseDate:       v.DoseDate.Format(time.RFC3339),
		AdministeredBy: v.AdministeredBy,
		Notes:          v.Notes,
		VaccineName:    v.VaccineName,
		BatchNumber:    v.BatchNumber,
		PricePerDose:   centsToAmount(v.PricePerDose),
		CreatedAt:      v.CreatedAt.Format(time.RFC3339),
	}
}

// AdministerDose регистрирует введение очередной дозы по закупке.
func (h *Handler) AdministerDose(w http.ResponseWriter, r *http.Request) {
	staffID, ok := middleware.GetStaffIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	purchaseID := pathParam(r, "purchaseID")

	var req administerDoseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	doseDate, err := parseDate(req.DoseDate)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	v, err := h.service.AdministerDose(r.Context(), purchaseID, doseDate, staffID, req.Notes)
	if err != nil {
		var ineligible *eligibility.IneligibleError
		switch {
		case errors.As(err, &ineligible):
			// Ожидаемый исход: причина отказа отдаётся пользователю дословно.
			http.Error(w, ineligible.Reason, http.StatusConflict)
		case errors.Is(err, repository.ErrPurchaseNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrDoseConflict):
			// Нарушение инварианта счётчика доз — ошибка логики, а не пользователя.
			h.logger.Error("dose counter conflict", zap.String("purchase", purchaseID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		default:
			h.logger.Error("administer dose error", zap.Error(err), zap.String("purchase", purchaseID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, toVaccinationResponse(v))
}

// GetVaccinations возвращает введённые дозы по закупке.
func (h *Handler) GetVaccinations(w http.ResponseWriter, r *http.Request) {
	purchaseID := pathParam(r, "purchaseID")

	vaccinations, err := h.service.GetVaccinationsByPurchase(r.Context(), purchaseID)
	if err != nil {
		h.logger.Error("get vaccinations error", zap.Error(err), zap.String("purchase", purchaseID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(vaccinations) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]vaccinationResponse, 0, len(vaccinations))
	for i := range vaccinations {
		resp = append(resp, toVaccinationResponse(&vaccinations[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// DeactivatePurchase помечает закупку неактивной.
func (h *Handler) DeactivatePurchase(w http.ResponseWriter, r *http.Request) {
	purchaseID := pathParam(r, "purchaseID")

	if err := h.service.DeactivatePurchase(r.Context(), purchaseID); err != nil {
		if errors.Is(err, repository.ErrPurchaseNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("deactivate purchase error", zap.Error(err), zap.String("purchase", purchaseID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type statsResponse struct {
	ActivePurchases    int64   `json:"active_purchases"`
	CollectedAmount    float64 `json:"collected_amount"`
	OutstandingBalance float64 `json:"outstanding_balance"`
	DosesAdministered  int64   `json:"doses_administered"`
}

// GetStats возвращает сводные показатели реестра для панели мониторинга.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStats(r.Context())
	if err != nil {
		h.logger.Error("get stats error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, statsResponse{
		ActivePurchases:    stats.ActivePurchases,
		CollectedAmount:    centsToAmount(stats.CollectedTotal),
		OutstandingBalance: centsToAmount(stats.OutstandingTotal),
		DosesAdministered:  stats.DosesAdministered,
	})
}
