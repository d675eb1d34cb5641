package btw

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AccountCategory is the kind of ledger account a line is posted to.
type AccountCategory string

const (
	AccountUnknown AccountCategory = ""
	AccountSales   AccountCategory = "sales"
	AccountCost    AccountCategory = "cost"
	AccountBalance AccountCategory = "balance"
	AccountOther   AccountCategory = "other"
)

// DefaultTolerance is the allowed difference between a stored and a
// recomputed BTW amount.
var DefaultTolerance = decimal.New(1, -2)

// Candidate is a journal line about to be written.
type Candidate struct {
	Debit           decimal.Decimal
	Credit          decimal.Decimal
	Code            OptionalCode
	VATAmount       OptionalAmount
	AccountNumber   string
	AccountCategory AccountCategory
}

// ValidationResult holds the outcome of validating one line. Errors block
// the write; warnings are advisory.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Validator checks journal lines against Dutch bookkeeping conventions.
type Validator struct {
	registry  *Registry
	calc      *Calculator
	tolerance decimal.Decimal
}

// NewValidator creates a validator with the default 0.01 tolerance.
func NewValidator(registry *Registry) *Validator {
	return &Validator{
		registry:  registry,
		calc:      NewCalculator(registry),
		tolerance: DefaultTolerance,
	}
}

// WithTolerance returns a copy of the validator using the given tolerance
// for amount reconciliation.
func (v *Validator) WithTolerance(tol decimal.Decimal) *Validator {
	cp := *v
	cp.tolerance = tol.Abs()
	return &cp
}

// Validate evaluates every rule against the candidate. All rules run; none
// short-circuits another.
func (v *Validator) Validate(c Candidate) ValidationResult {
	res := ValidationResult{Errors: []string{}, Warnings: []string{}}

	v.checkExclusivity(c, &res)
	v.checkPrecision(c, &res)
	info, real := v.checkCode(c, &res)
	if real {
		v.checkAmount(c, info, &res)
		v.checkAccountCategory(c, info, &res)
		v.checkSide(c, info, &res)
	}

	res.Valid = len(res.Errors) == 0
	return res
}

func (v *Validator) checkExclusivity(c Candidate, res *ValidationResult) {
	debit := c.Debit.GreaterThan(decimal.Zero)
	credit := c.Credit.GreaterThan(decimal.Zero)
	switch {
	case debit && credit:
		res.Errors = append(res.Errors, "a line cannot have both a debit and a credit amount")
	case !debit && !credit:
		res.Errors = append(res.Errors, "a line needs either a debit or a credit amount")
	}
	if c.Debit.IsNegative() || c.Credit.IsNegative() {
		res.Errors = append(res.Errors, "debit and credit amounts cannot be negative")
	}
}

// checkPrecision rejects amounts below the cent. They would be rounded
// when stored, after validation already passed on the unrounded value.
func (v *Validator) checkPrecision(c Candidate, res *ValidationResult) {
	check := func(name string, d decimal.Decimal) {
		if !d.Equal(d.Round(2)) {
			res.Errors = append(res.Errors, fmt.Sprintf("%s amount %s has more than two decimals", name, d.String()))
		}
	}
	check("debit", c.Debit)
	check("credit", c.Credit)
	if vat, ok := c.VATAmount.Get(); ok {
		check("BTW", vat)
	}
}

// checkCode reports unknown codes and returns the entry for real codes.
func (v *Validator) checkCode(c Candidate, res *ValidationResult) (CodeInfo, bool) {
	code, ok := c.Code.Get()
	if !ok {
		return CodeInfo{}, false
	}
	info, ok := v.registry.Lookup(code)
	if !ok {
		res.Errors = append(res.Errors, fmt.Sprintf("unknown BTW code %q", code))
		return CodeInfo{}, false
	}
	return info, info.IsReal()
}

func (v *Validator) checkAmount(c Candidate, info CodeInfo, res *ValidationResult) {
	if info.Policy.VariableRate {
		return
	}
	actual, ok := c.VATAmount.Get()
	if !ok {
		return
	}
	base := c.Credit
	if !base.GreaterThan(decimal.Zero) {
		base = c.Debit
	}
	expected := v.calc.VATFromBase(base, info.Code)
	if expected.Sub(actual.Abs()).Abs().GreaterThan(v.tolerance) {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"BTW amount %s does not match %s%% of %s (expected %s)",
			actual.StringFixed(2), info.Percentage.String(), base.StringFixed(2), expected.StringFixed(2),
		))
	}
}

func (v *Validator) checkAccountCategory(c Candidate, info CodeInfo, res *ValidationResult) {
	switch {
	case c.AccountCategory == AccountSales && info.Category == CategoryReclaimable:
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"sales account %s carries reclaimable BTW code %q", c.AccountNumber, info.Code))
	case c.AccountCategory == AccountCost && info.Category == CategoryOwed:
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"cost account %s carries sales BTW code %q", c.AccountNumber, info.Code))
	}
}

func (v *Validator) checkSide(c Candidate, info CodeInfo, res *ValidationResult) {
	switch {
	case info.Category == CategoryReclaimable && c.Credit.GreaterThan(decimal.Zero):
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"reclaimable BTW code %q is expected on the debit side", info.Code))
	case info.Category == CategoryOwed && c.Debit.GreaterThan(decimal.Zero):
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"sales BTW code %q is expected on the credit side", info.Code))
	}
}
