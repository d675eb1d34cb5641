package btw

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category classifies a BTW code by how it affects the declaration.
type Category string

const (
	CategoryOwed        Category = "owed"        // owed on sales (rubriek 1)
	CategoryReclaimable Category = "reclaimable" // voorbelasting on purchases (rubriek 5b)
	CategoryReverse     Category = "reverse"     // reverse-charged (rubriek 2a, 4)
	CategoryExempt      Category = "exempt"      // exempt, 0% or no BTW
)

// Side is the journal side an amount is posted to.
type Side string

const (
	SideAny    Side = ""
	SideDebit  Side = "debit"
	SideCredit Side = "credit"
)

// Box identifies a rubriek on the Dutch VAT return.
type Box string

const (
	BoxNone Box = ""
	Box1a   Box = "1a"
	Box1b   Box = "1b"
	Box1c   Box = "1c"
	Box1d   Box = "1d"
	Box1e   Box = "1e"
	Box2a   Box = "2a"
	Box3a   Box = "3a"
	Box3b   Box = "3b"
	Box4a   Box = "4a"
	Box4b   Box = "4b"
	Box5b   Box = "5b"
)

// Policy tells the aggregator how lines tagged with a code are accumulated.
type Policy struct {
	Box          Box
	ExpectedSide Side // SideAny accepts both sides
	// ContributesVAT is false for boxes that only report turnover.
	ContributesVAT bool
	// VariableRate codes carry no fixed percentage; the VAT figure is the
	// stored amount on the line.
	VariableRate bool
	// LowRate marks the reduced tariff.
	LowRate bool
}

// CodeInfo is one row of the BTW code registry.
type CodeInfo struct {
	Code       string
	Percentage decimal.Decimal
	Category   Category
	Policy     Policy
}

// Box returns the rubriek the code reports in.
func (c CodeInfo) Box() Box { return c.Policy.Box }

// IsReal reports whether the code puts anything on the declaration.
// The "geen" sentinel is a valid code but not a real one.
func (c CodeInfo) IsReal() bool { return c.Policy.Box != BoxNone }

// OptionalCode is a BTW code that may be absent.
type OptionalCode struct {
	code string
	set  bool
}

// SomeCode returns a present code. An empty or whitespace-only string is
// treated as absent.
func SomeCode(code string) OptionalCode {
	code = normalizeCode(code)
	if code == "" {
		return OptionalCode{}
	}
	return OptionalCode{code: code, set: true}
}

// NoCode returns an absent code.
func NoCode() OptionalCode { return OptionalCode{} }

// Get returns the code and whether it is present.
func (o OptionalCode) Get() (string, bool) { return o.code, o.set }

// String returns the code or the empty string.
func (o OptionalCode) String() string { return o.code }

// OptionalAmount is a stored BTW amount that may be absent.
type OptionalAmount struct {
	amount decimal.Decimal
	set    bool
}

// SomeAmount returns a present amount.
func SomeAmount(d decimal.Decimal) OptionalAmount {
	return OptionalAmount{amount: d, set: true}
}

// NoAmount returns an absent amount.
func NoAmount() OptionalAmount { return OptionalAmount{} }

// Get returns the amount and whether it is present.
func (o OptionalAmount) Get() (decimal.Decimal, bool) { return o.amount, o.set }

// Transaction is a journal line as seen by the aggregator. It is a read-only
// snapshot already scoped to one client.
type Transaction struct {
	Date          time.Time
	AccountNumber string
	Debit         decimal.Decimal
	Credit        decimal.Decimal
	Code          OptionalCode
	VATAmount     OptionalAmount
}

// base returns the populated side's amount and its side.
func (t Transaction) base() (decimal.Decimal, Side) {
	if t.Credit.GreaterThan(decimal.Zero) {
		return t.Credit, SideCredit
	}
	return t.Debit, SideDebit
}

// Totals are the statutory figures of one declaration. This is the flat
// record persisted by the lifecycle manager and read by exporters.
type Totals struct {
	Box1aTurnover decimal.Decimal `json:"box_1a_turnover"`
	Box1aVAT      decimal.Decimal `json:"box_1a_vat"`
	Box1bTurnover decimal.Decimal `json:"box_1b_turnover"`
	Box1bVAT      decimal.Decimal `json:"box_1b_vat"`
	Box1cTurnover decimal.Decimal `json:"box_1c_turnover"`
	Box1cVAT      decimal.Decimal `json:"box_1c_vat"`
	Box1dTurnover decimal.Decimal `json:"box_1d_turnover"`
	Box1dVAT      decimal.Decimal `json:"box_1d_vat"`
	Box1eTurnover decimal.Decimal `json:"box_1e_turnover"`
	Box2aTurnover decimal.Decimal `json:"box_2a_turnover"`
	Box3aTurnover decimal.Decimal `json:"box_3a_turnover"`
	Box3bTurnover decimal.Decimal `json:"box_3b_turnover"`
	Box4aTurnover decimal.Decimal `json:"box_4a_turnover"`
	Box4aVAT      decimal.Decimal `json:"box_4a_vat"`
	Box4bTurnover decimal.Decimal `json:"box_4b_turnover"`
	Box4bVAT      decimal.Decimal `json:"box_4b_vat"`

	// Box5bVAT is the reclaimable voorbelasting over both rates.
	Box5bVAT decimal.Decimal `json:"box_5b_vat"`
	// Box5bBase and Box5bBaseLow are the grondslag of the 21% and 9%
	// voorbelasting respectively.
	Box5bBase    decimal.Decimal `json:"box_5b_base"`
	Box5bBaseLow decimal.Decimal `json:"box_5b_base_low"`

	GrossOwed    decimal.Decimal `json:"gross_owed"`
	NetPayable   decimal.Decimal `json:"net_payable"`
	FinalBalance decimal.Decimal `json:"final_balance"`
}

// IsZero reports whether every figure is zero.
func (t Totals) IsZero() bool {
	for _, v := range t.fields() {
		if !v.IsZero() {
			return false
		}
	}
	return true
}

// Equal compares every figure numerically.
func (t Totals) Equal(o Totals) bool {
	a, b := t.fields(), o.fields()
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func (t Totals) fields() []decimal.Decimal {
	return []decimal.Decimal{
		t.Box1aTurnover, t.Box1aVAT, t.Box1bTurnover, t.Box1bVAT,
		t.Box1cTurnover, t.Box1cVAT, t.Box1dTurnover, t.Box1dVAT,
		t.Box1eTurnover, t.Box2aTurnover, t.Box3aTurnover, t.Box3bTurnover,
		t.Box4aTurnover, t.Box4aVAT, t.Box4bTurnover, t.Box4bVAT,
		t.Box5bVAT, t.Box5bBase, t.Box5bBaseLow,
		t.GrossOwed, t.NetPayable, t.FinalBalance,
	}
}

// Summary is the aggregator output: totals plus metadata that is not stored
// with the declaration.
type Summary struct {
	Key                  PeriodKey `json:"period"`
	Totals               Totals    `json:"totals"`
	TotalTransactions    int       `json:"total_transactions"`
	TransactionsWithCode int       `json:"transactions_with_code"`
	// ExcludedBySide counts coded lines left out because they were posted to
	// the side their code does not accumulate on.
	ExcludedBySide int `json:"excluded_by_side"`
}

// MissingCodes reports a period with journal lines of which none carries a
// real BTW code. Such a period silently yields a zero declaration.
func (s Summary) MissingCodes() bool {
	return s.TotalTransactions > 0 && s.TransactionsWithCode == 0
}
