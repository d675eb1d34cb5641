package btw

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCalculator_VATFromBase(t *testing.T) {
	c := NewCalculator(DefaultRegistry())

	tests := []struct {
		name string
		base string
		code string
		want string
	}{
		{"high rate", "1000.00", "1a", "210.00"},
		{"low rate", "500.00", "1b", "45.00"},
		{"rounds half up", "0.50", "1b", "0.05"},        // 0.045
		{"rounds down", "10.01", "1a", "2.10"},          // 2.1021
		{"reclaimable low", "99.99", "5b-laag", "9.00"}, // 8.9991
		{"zero rate", "1000.00", "1e", "0"},
		{"unknown code", "1000.00", "9z", "0"},
		{"none sentinel", "1000.00", CodeNone, "0"},
		{"negative base", "-100.00", "1a", "-21.00"},
		{"case insensitive", "100", "1A", "21.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertDecimal(t, "vat", c.VATFromBase(dec(tt.base), tt.code), tt.want)
		})
	}
}

func TestCalculator_BaseFromTotal(t *testing.T) {
	c := NewCalculator(DefaultRegistry())

	tests := []struct {
		total string
		code  string
		want  string
	}{
		{"1210.00", "1a", "1000.00"},
		{"545.00", "1b", "500.00"},
		{"100.00", "1a", "82.64"},
		{"100.00", "1e", "100.00"},
		{"100.00", "9z", "100.00"},
		{"100.004", CodeNone, "100.00"},
	}

	for _, tt := range tests {
		t.Run(tt.code+"/"+tt.total, func(t *testing.T) {
			assertDecimal(t, "base", c.BaseFromTotal(dec(tt.total), tt.code), tt.want)
		})
	}
}

func TestCalculator_RoundTrip(t *testing.T) {
	r := DefaultRegistry()
	c := NewCalculator(r)
	half := dec("0.005")
	cent := dec("0.01")

	for _, info := range r.Codes() {
		if !info.IsReal() {
			continue
		}
		for cents := int64(1); cents <= 250000; cents += 997 {
			base := decimal.New(cents, -2)

			vat := c.VATFromBase(base, info.Code)
			exact := base.Mul(info.Percentage).Div(hundred)
			if vat.Sub(exact).Abs().GreaterThan(half) {
				t.Fatalf("%s: vat %s too far from exact %s", info.Code, vat, exact)
			}

			back := c.BaseFromTotal(base.Add(vat), info.Code)
			if back.Sub(base).Abs().GreaterThan(cent) {
				t.Fatalf("%s: base %s round-tripped to %s", info.Code, base, back)
			}
		}
	}
}
