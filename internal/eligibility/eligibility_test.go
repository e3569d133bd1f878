package eligibility

import (
	"testing"

	"github.com/mmeshcher/vaxledger-system/internal/model"
)

func TestDosesPaidFor(t *testing.T) {
	tests := []struct {
		name         string
		amountPaid   int64
		pricePerDose int64
		totalDoses   int
		want         int
	}{
		{
			name:         "nothing paid",
			amountPaid:   0,
			pricePerDose: 10000,
			totalDoses:   3,
			want:         0,
		},
		{
			name:         "one dose exactly",
			amountPaid:   10000,
			pricePerDose: 10000,
			totalDoses:   3,
			want:         1,
		},
		{
			name:         "partial dose rounds down",
			amountPaid:   19999,
			pricePerDose: 10000,
			totalDoses:   3,
			want:         1,
		},
		{
			name:         "full package",
			amountPaid:   30000,
			pricePerDose: 10000,
			totalDoses:   3,
			want:         3,
		},
		{
			name:         "clamped to total doses",
			amountPaid:   90000,
			pricePerDose: 10000,
			totalDoses:   3,
			want:         3,
		},
		{
			name:         "free vaccine counts as fully paid",
			amountPaid:   0,
			pricePerDose: 0,
			totalDoses:   2,
			want:         2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DosesPaidFor(tt.amountPaid, tt.pricePerDose, tt.totalDoses)
			if got != tt.want {
				t.Fatalf("DosesPaidFor(%d, %d, %d) = %d, want %d",
					tt.amountPaid, tt.pricePerDose, tt.totalDoses, got, tt.want)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name             string
		purchase         model.Purchase
		wantEligible     bool
		wantNextDose     int
		wantMessage      string
		wantDosesPaidFor int
	}{
		{
			name: "one dose paid, none administered",
			purchase: model.Purchase{
				PricePerDose: 10000,
				TotalDoses:   3,
				TotalPrice:   30000,
				AmountPaid:   10000,
				IsActive:     true,
			},
			wantEligible:     true,
			wantNextDose:     1,
			wantMessage:      "Eligible for dose 1 of 3",
			wantDosesPaidFor: 1,
		},
		{
			name: "administered up to paid limit",
			purchase: model.Purchase{
				PricePerDose:      10000,
				TotalDoses:        3,
				TotalPrice:        30000,
				AmountPaid:        10000,
				DosesAdministered: 1,
				IsActive:          true,
			},
			wantEligible:     false,
			wantMessage:      "Insufficient payment: 1 of 3 doses paid for",
			wantDosesPaidFor: 1,
		},
		{
			name: "fully paid, second dose due",
			purchase: model.Purchase{
				PricePerDose:      10000,
				TotalDoses:        3,
				TotalPrice:        30000,
				AmountPaid:        30000,
				DosesAdministered: 1,
				IsActive:          true,
			},
			wantEligible:     true,
			wantNextDose:     2,
			wantMessage:      "Eligible for dose 2 of 3",
			wantDosesPaidFor: 3,
		},
		{
			name: "package fully administered",
			purchase: model.Purchase{
				PricePerDose:      10000,
				TotalDoses:        3,
				TotalPrice:        30000,
				AmountPaid:        30000,
				DosesAdministered: 3,
				IsActive:          true,
			},
			wantEligible:     false,
			wantMessage:      "Package fully administered",
			wantDosesPaidFor: 3,
		},
		{
			name: "inactive purchase",
			purchase: model.Purchase{
				PricePerDose: 10000,
				TotalDoses:   3,
				TotalPrice:   30000,
				AmountPaid:   30000,
				IsActive:     false,
			},
			wantEligible:     false,
			wantMessage:      "Purchase is inactive",
			wantDosesPaidFor: 3,
		},
		{
			name: "nothing paid",
			purchase: model.Purchase{
				PricePerDose: 10000,
				TotalDoses:   3,
				TotalPrice:   30000,
				IsActive:     true,
			},
			wantEligible:     false,
			wantMessage:      "Insufficient payment: 0 of 3 doses paid for",
			wantDosesPaidFor: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Check(&tt.purchase)

			if res.Eligible != tt.wantEligible {
				t.Fatalf("Eligible = %v, want %v", res.Eligible, tt.wantEligible)
			}
			if res.NextDoseNumber != tt.wantNextDose {
				t.Fatalf("NextDoseNumber = %d, want %d", res.NextDoseNumber, tt.wantNextDose)
			}
			if res.Message != tt.wantMessage {
				t.Fatalf("Message = %q, want %q", res.Message, tt.wantMessage)
			}
			if res.DosesPaidFor != tt.wantDosesPaidFor {
				t.Fatalf("DosesPaidFor = %d, want %d", res.DosesPaidFor, tt.wantDosesPaidFor)
			}
			if res.DosesAdministered != tt.purchase.DosesAdministered {
				t.Fatalf("DosesAdministered = %d, want %d", res.DosesAdministered, tt.purchase.DosesAdministered)
			}
			if res.TotalDoses != tt.purchase.TotalDoses {
				t.Fatalf("TotalDoses = %d, want %d", res.TotalDoses, tt.purchase.TotalDoses)
			}
		})
	}
}

func TestCheck_IdempotentWithoutMutation(t *testing.T) {
	p := model.Purchase{
		PricePerDose:      10000,
		TotalDoses:        3,
		TotalPrice:        30000,
		AmountPaid:        20000,
		DosesAdministered: 1,
		IsActive:          true,
	}

	first := Check(&p)
	second := Check(&p)

	if first != second {
		t.Fatalf("Check is not idempotent: %+v vs %+v", first, second)
	}
}

func TestIneligibleError_Message(t *testing.T) {
	err := &IneligibleError{Reason: "Package fully administered"}
	if err.Error() != "dose not eligible: Package fully administered" {
		t.Fatalf("unexpected error text: %q", err.Error())
	}
}
