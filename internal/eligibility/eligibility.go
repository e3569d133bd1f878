// Package eligibility реализует проверку права пациента на очередную дозу.
package eligibility

import (
	"fmt"

	"github.com/mmeshcher/vaxledger-system/internal/model"
)

// Result содержит ответ проверки права на дозу.
type Result struct {
	Eligible          bool
	Message           string
	NextDoseNumber    int
	DosesAdministered int
	DosesPaidFor      int
	TotalDoses        int
}

// IneligibleError возвращается при попытке ввести дозу без права на неё.
// Ожидаемая в нормальной работе ошибка, Reason предназначен пользователю.
type IneligibleError struct {
	Reason string
}

func (e *IneligibleError) Error() string {
	return "dose not eligible: " + e.Reason
}

// DosesPaidFor возвращает число доз, покрытых внесённой суммой:
// floor(amountPaid / pricePerDose), ограниченное отрезком [0, totalDoses].
// Бесплатная вакцина (нулевая цена) считается оплаченной полностью.
func DosesPaidFor(amountPaid, pricePerDose int64, totalDoses int) int {
	if pricePerDose <= 0 {
		return totalDoses
	}

	paidFor := amountPaid / pricePerDose
	if paidFor < 0 {
		return 0
	}
	if paidFor > int64(totalDoses) {
		return totalDoses
	}

	return int(paidFor)
}

// Check решает, можно ли ввести следующую дозу по текущему состоянию закупки.
// Функция чистая: не имеет побочных эффектов и зависит только от аргумента.
// Перед фактическим введением дозы проверка обязана выполняться повторно по
// свежему состоянию из хранилища, а не по закэшированному результату.
func Check(p *model.Purchase) Result {
	res := Result{
		DosesAdministered: p.DosesAdministered,
		DosesPaidFor:      DosesPaidFor(p.AmountPaid, p.PricePerDose, p.TotalDoses),
		TotalDoses:        p.TotalDoses,
	}

	switch {
	case !p.IsActive:
		res.Message = "Purchase is inactive"
	case p.DosesAdministered >= p.TotalDoses:
		res.Message = "Package fully administered"
	case p.DosesAdministered >= res.DosesPaidFor:
		res.Message = fmt.Sprintf("Insufficient payment: %d of %d doses paid for", res.DosesPaidFor, p.TotalDoses)
	default:
		res.Eligible = true
		res.NextDoseNumber = p.DosesAdministered + 1
		res.Message = fmt.Sprintf("Eligible for dose %d of %d", res.NextDoseNumber, p.TotalDoses)
	}

	return res
}
