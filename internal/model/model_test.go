package model

import "testing"

func TestPurchaseStatus(t *testing.T) {
	tests := []struct {
		name       string
		totalPrice int64
		amountPaid int64
		want       PaymentStatus
	}{
		{
			name:       "nothing paid",
			totalPrice: 30000,
			amountPaid: 0,
			want:       PaymentStatusPending,
		},
		{
			name:       "partially paid",
			totalPrice: 30000,
			amountPaid: 10000,
			want:       PaymentStatusPartial,
		},
		{
			name:       "one cent short",
			totalPrice: 30000,
			amountPaid: 29999,
			want:       PaymentStatusPartial,
		},
		{
			name:       "fully paid",
			totalPrice: 30000,
			amountPaid: 30000,
			want:       PaymentStatusCompleted,
		},
		{
			name:       "free package is completed from the start",
			totalPrice: 0,
			amountPaid: 0,
			want:       PaymentStatusCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Purchase{TotalPrice: tt.totalPrice, AmountPaid: tt.amountPaid}
			if got := p.Status(); got != tt.want {
				t.Fatalf("Status() = %q, want %q", got, tt.want)
			}

			// Статус completed эквивалентен нулевому остатку.
			if (p.Balance() == 0) != (p.Status() == PaymentStatusCompleted) {
				t.Fatalf("completed status must match zero balance: balance=%d status=%s", p.Balance(), p.Status())
			}
		})
	}
}

func TestPurchaseBalance(t *testing.T) {
	p := Purchase{TotalPrice: 30000, AmountPaid: 12500}
	if got := p.Balance(); got != 17500 {
		t.Fatalf("Balance() = %d, want 17500", got)
	}
}
