package btw

import "github.com/shopspring/decimal"

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Calculator performs the BTW amount arithmetic against a registry.
// Results are rounded to cents, half away from zero.
type Calculator struct {
	registry *Registry
}

// NewCalculator creates a calculator over the given registry.
func NewCalculator(registry *Registry) *Calculator {
	return &Calculator{registry: registry}
}

// VATFromBase returns base * percentage / 100 rounded to 2 decimals.
// Unknown codes and the "geen" sentinel yield zero.
func (c *Calculator) VATFromBase(base decimal.Decimal, code string) decimal.Decimal {
	pct, ok := c.percentage(code)
	if !ok {
		return decimal.Zero
	}
	return base.Mul(pct).Div(hundred).Round(2)
}

// BaseFromTotal extracts the BTW-exclusive amount from a total that
// includes BTW: total / (1 + percentage/100), rounded to 2 decimals.
// Unknown codes and the "geen" sentinel return the total unchanged.
func (c *Calculator) BaseFromTotal(total decimal.Decimal, code string) decimal.Decimal {
	pct, ok := c.percentage(code)
	if !ok {
		return total.Round(2)
	}
	divisor := one.Add(pct.Div(hundred))
	return total.Div(divisor).Round(2)
}

func (c *Calculator) percentage(code string) (decimal.Decimal, bool) {
	info, ok := c.registry.Lookup(code)
	if !ok || !info.IsReal() {
		return decimal.Zero, false
	}
	return info.Percentage, true
}
