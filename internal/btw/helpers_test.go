package btw

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("%s: expected %s, got %s", name, want, got.StringFixed(2))
	}
}

func quarterKey(year, q int) PeriodKey {
	return PeriodKey{ClientID: uuid.MustParse("6f1c2f8e-3b0e-4c43-9b7a-2d7a1c9e0a11"), Year: year, Type: PeriodQuarter, Number: q}
}

func creditLine(amount, code string) Transaction {
	return Transaction{
		Date:          time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC),
		AccountNumber: "8000",
		Credit:        dec(amount),
		Code:          SomeCode(code),
	}
}

func debitLine(amount, code string) Transaction {
	return Transaction{
		Date:          time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC),
		AccountNumber: "4000",
		Debit:         dec(amount),
		Code:          SomeCode(code),
	}
}
