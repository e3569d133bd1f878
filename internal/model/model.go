// Package model содержит доменные сущности сервиса учёта вакцинных закупок.
package model

import "time"

// PaymentStatus описывает статус оплаты закупки.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPartial   PaymentStatus = "partial"
	PaymentStatusCompleted PaymentStatus = "completed"
)

// PaymentMethod описывает способ оплаты из закрытого перечня.
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodMobileMoney  PaymentMethod = "mobile_money"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodCheque       PaymentMethod = "cheque"
)

// Purchase описывает закупку пакета доз вакцины для одного пациента.
// Название, партия и цена вакцины фиксируются в момент создания и не зависят
// от последующих изменений каталога. Денежные суммы хранятся в минимальных
// единицах валюты (центах).
type Purchase struct {
	ID                string
	PatientID         string
	VaccineID         string
	VaccineName       string
	BatchNumber       string
	PricePerDose      int64
	TotalDoses        int
	TotalPrice        int64
	AmountPaid        int64
	DosesAdministered int
	IsActive          bool
	CreatedBy         string
	CreatedAt         time.Time
}

// Balance возвращает остаток к оплате по закупке.
func (p *Purchase) Balance() int64 {
	return p.TotalPrice - p.AmountPaid
}

// Status возвращает статус оплаты, вычисленный из текущих сумм.
// Статусы balance и payment_status нигде не хранятся, только вычисляются.
func (p *Purchase) Status() PaymentStatus {
	switch {
	case p.AmountPaid == 0 && p.TotalPrice != 0:
		return PaymentStatusPending
	case p.AmountPaid < p.TotalPrice:
		return PaymentStatusPartial
	default:
		return PaymentStatusCompleted
	}
}

// Payment описывает один платёж по закупке. Записи платежей неизменяемы.
type Payment struct {
	ID              string
	PurchaseID      string
	Amount          int64
	PaymentDate     time.Time
	Method          PaymentMethod
	ReferenceNumber string
	Notes           string
	ReceivedBy      string
	CreatedAt       time.Time
}

// Vaccination описывает факт введения одной дозы. Название, партия и цена
// вакцины копируются из закупки в момент введения для сохранения истории.
type Vaccination struct {
	ID             string
	PurchaseID     string
	PatientID      string
	DoseNumber     int
	DoseDate       time.Time
	AdministeredBy string
	Notes          string
	VaccineName    string
	BatchNumber    string
	PricePerDose   int64
	CreatedAt      time.Time
}

// Stats содержит сводные показатели реестра для панели мониторинга.
type Stats struct {
	ActivePurchases   int64
	CollectedTotal    int64
	OutstandingTotal  int64
	DosesAdministered int64
}
