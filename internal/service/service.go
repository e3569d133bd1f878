// Package service реализует бизнес-логику сервиса учёта вакцинных закупок.
package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/vaxledger-system/internal/catalog"
	"github.com/mmeshcher/vaxledger-system/internal/eligibility"
	"github.com/mmeshcher/vaxledger-system/internal/model"
	"github.com/mmeshcher/vaxledger-system/internal/validation"
)

// ErrInvalidDoseCount возвращается, если число доз в пакете вне допустимого диапазона.
var (
	ErrInvalidDoseCount = errors.New("dose count out of range")
	// ErrInvalidAmount возвращается для неположительной суммы платежа.
	ErrInvalidAmount = errors.New("payment amount must be positive")
	// ErrInvalidPaymentMethod возвращается для способа оплаты вне закрытого перечня.
	ErrInvalidPaymentMethod = errors.New("unknown payment method")
	// ErrVaccineNotFound возвращается, если вакцина отсутствует в каталоге.
	ErrVaccineNotFound = errors.New("vaccine not found in catalog")
	// ErrVaccineNotPublished возвращается для неопубликованной записи каталога.
	ErrVaccineNotPublished = errors.New("vaccine is not published")
	// ErrCatalogUnavailable возвращается, если каталог временно недоступен.
	ErrCatalogUnavailable = errors.New("vaccine catalog unavailable")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreatePurchase(ctx context.Context, p *model.Purchase) error
	GetPurchase(ctx context.Context, purchaseID string) (*model.Purchase, error)
	GetPurchasesByPatient(ctx context.Context, patientID string) ([]model.Purchase, error)
	CreatePayment(ctx context.Context, pmt *model.Payment) error
	GetPaymentsByPurchase(ctx context.Context, purchaseID string) ([]model.Payment, error)
	CreateVaccination(ctx context.Context, v *model.Vaccination) error
	GetVaccinationsByPurchase(ctx context.Context, purchaseID string) ([]model.Vaccination, error)
	DeactivatePurchase(ctx context.Context, purchaseID string) error
	GetStats(ctx context.Context) (*model.Stats, error)
}

// Catalog описывает контракт клиента внешнего реестра вакцин.
type Catalog interface {
	GetVaccine(ctx context.Context, vaccineID string) (*catalog.Vaccine, int, time.Duration, error)
}

// Service содержит бизнес-логику сервиса учёта вакцинных закупок.
type Service struct {
	repo     Repository
	catalog  Catalog
	maxDoses int
}

// NewService создаёт новый сервис с указанными репозиторием, клиентом каталога
// и максимальным числом доз в одном пакете.
func NewService(repo Repository, cat Catalog, maxDoses int) *Service {
	return &Service{
		repo:     repo,
		catalog:  cat,
		maxDoses: maxDoses,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// MaxDoses возвращает настроенный максимум доз в одном пакете.
func (s *Service) MaxDoses() int {
	return s.maxDoses
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// CreatePurchase создаёт закупку пакета доз: запрашивает запись каталога,
// фиксирует на закупке название, партию и цену вакцины и вычисляет полную
// стоимость пакета. Последующие изменения каталога закупку не затрагивают.
func (s *Service) CreatePurchase(ctx context.Context, patientID, vaccineID string, totalDoses int, createdBy string) (*model.Purchase, error) {
	if !validation.IsValidDoseCount(totalDoses, s.maxDoses) {
		return nil, ErrInvalidDoseCount
	}

	vaccine, statusCode, _, err := s.catalog.GetVaccine(ctx, vaccineID)
	if err != nil {
		return nil, err
	}
	if vaccine == nil {
		if statusCode == 429 {
			return nil, ErrCatalogUnavailable
		}
		return nil, ErrVaccineNotFound
	}
	if !vaccine.Published {
		return nil, ErrVaccineNotPublished
	}

	pricePerDose := toCents(vaccine.PricePerDose)

	p := &model.Purchase{
		ID:           uuid.NewString(),
		PatientID:    patientID,
		VaccineID:    vaccineID,
		VaccineName:  vaccine.Name,
		BatchNumber:  vaccine.BatchNumber,
		PricePerDose: pricePerDose,
		TotalDoses:   totalDoses,
		TotalPrice:   pricePerDose * int64(totalDoses),
		CreatedBy:    createdBy,
	}

	if err := s.repo.CreatePurchase(ctx, p); err != nil {
		return nil, err
	}

	return p, nil
}

// GetPurchase возвращает закупку по идентификатору.
func (s *Service) GetPurchase(ctx context.Context, purchaseID string) (*model.Purchase, error) {
	return s.repo.GetPurchase(ctx, purchaseID)
}

// GetPurchasesByPatient возвращает список закупок пациента.
func (s *Service) GetPurchasesByPatient(ctx context.Context, patientID string) ([]model.Purchase, error) {
	return s.repo.GetPurchasesByPatient(ctx, patientID)
}

// RecordPayment регистрирует платёж по закупке. Запись платежа и продвижение
// суммы оплаты фиксируются в хранилище атомарно; переплата сверх остатка
// отклоняется репозиторием по зафиксированному состоянию закупки.
func (s *Service) RecordPayment(ctx context.Context, purchaseID string, amount float64, paymentDate time.Time, method model.PaymentMethod, referenceNumber, notes, receivedBy string) (*model.Payment, error) {
	amountCents := toCents(amount)
	if !validation.IsValidAmount(amountCents) {
		return nil, ErrInvalidAmount
	}
	if !validation.IsValidPaymentMethod(method) {
		return nil, ErrInvalidPaymentMethod
	}

	pmt := &model.Payment{
		ID:              uuid.NewString(),
		PurchaseID:      purchaseID,
		Amount:          amountCents,
		PaymentDate:     paymentDate,
		Method:          method,
		ReferenceNumber: referenceNumber,
		Notes:           notes,
		ReceivedBy:      receivedBy,
	}

	if err := s.repo.CreatePayment(ctx, pmt); err != nil {
		return nil, err
	}

	return pmt, nil
}

// GetPaymentsByPurchase возвращает историю платежей по закупке.
func (s *Service) GetPaymentsByPurchase(ctx context.Context, purchaseID string) ([]model.Payment, error) {
	return s.repo.GetPaymentsByPurchase(ctx, purchaseID)
}

// CheckEligibility возвращает право на очередную дозу по текущему состоянию
// закупки. Результат справочный: решающая проверка выполняется повторно в
// транзакции регистрации дозы, так как параллельные операции могли изменить
// состояние между чтением и действием.
func (s *Service) CheckEligibility(ctx context.Context, purchaseID string) (*eligibility.Result, error) {
	p, err := s.repo.GetPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}

	res := eligibility.Check(p)
	return &res, nil
}

// AdministerDose регистрирует введение дозы. Право на дозу проверяется
// репозиторием в той же транзакции, что и запись; при отказе возвращается
// *eligibility.IneligibleError с причиной для пользователя.
func (s *Service) AdministerDose(ctx context.Context, purchaseID string, doseDate time.Time, administeredBy, notes string) (*model.Vaccination, error) {
	v := &model.Vaccination{
		ID:             uuid.NewString(),
		PurchaseID:     purchaseID,
		DoseDate:       doseDate,
		AdministeredBy: administeredBy,
		Notes:          notes,
	}

	if err := s.repo.CreateVaccination(ctx, v); err != nil {
		return nil, err
	}

	return v, nil
}

// GetVaccinationsByPurchase возвращает введённые дозы по закупке.
func (s *Service) GetVaccinationsByPurchase(ctx context.Context, purchaseID string) ([]model.Vaccination, error) {
	return s.repo.GetVaccinationsByPurchase(ctx, purchaseID)
}

// DeactivatePurchase помечает закупку неактивной, дальнейшие платежи и дозы по
// ней отклоняются. История платежей и введённых доз сохраняется.
func (s *Service) DeactivatePurchase(ctx context.Context, purchaseID string) error {
	return s.repo.DeactivatePurchase(ctx, purchaseID)
}

// GetStats возвращает сводные показатели реестра с денежными суммами в основной валюте.
func (s *Service) GetStats(ctx context.Context) (*model.Stats, error) {
	return s.repo.GetStats(ctx)
}
