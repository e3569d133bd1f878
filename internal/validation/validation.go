// Package validation содержит функции валидации входных данных.
package validation

import "github.com/mmeshcher/vaxledger-system/internal/model"

// IsValidPaymentMethod проверяет, что способ оплаты входит в закрытый перечень.
func IsValidPaymentMethod(method model.PaymentMethod) bool {
	switch method {
	case model.PaymentMethodCash,
		model.PaymentMethodMobileMoney,
		model.PaymentMethodBankTransfer,
		model.PaymentMethodCard,
		model.PaymentMethodCheque:
		return true
	}
	return false
}

// IsValidDoseCount проверяет число доз в пакете: целое от 1 до max включительно.
func IsValidDoseCount(doses, max int) bool {
	return doses >= 1 && doses <= max
}

// IsValidAmount проверяет, что сумма платежа строго положительна.
func IsValidAmount(amountCents int64) bool {
	return amountCents > 0
}
