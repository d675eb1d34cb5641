// Package btw implements the Dutch VAT (BTW) rules: the code registry, the
// amount arithmetic, journal line validation, rubriek aggregation and the
// declaration lifecycle.
package btw

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// CodeNone is the sentinel for lines that explicitly carry no BTW.
const CodeNone = "geen"

// Registry is an immutable BTW code table. It is safe for concurrent use
// because nothing mutates it after construction.
type Registry struct {
	codes map[string]CodeInfo
}

// NewRegistry builds a registry from the given entries. Later entries with
// the same code replace earlier ones.
func NewRegistry(entries ...CodeInfo) *Registry {
	codes := make(map[string]CodeInfo, len(entries))
	for _, e := range entries {
		e.Code = normalizeCode(e.Code)
		codes[e.Code] = e
	}
	return &Registry{codes: codes}
}

// DefaultRegistry returns the Dutch BTW codes as they apply from 2019 on
// (21% standard, 9% reduced).
func DefaultRegistry() *Registry {
	high := decimal.NewFromInt(21)
	low := decimal.NewFromInt(9)
	zero := decimal.Zero

	return NewRegistry(
		CodeInfo{Code: "1a", Percentage: high, Category: CategoryOwed,
			Policy: Policy{Box: Box1a, ExpectedSide: SideCredit, ContributesVAT: true}},
		CodeInfo{Code: "1b", Percentage: low, Category: CategoryOwed,
			Policy: Policy{Box: Box1b, ExpectedSide: SideCredit, ContributesVAT: true, LowRate: true}},
		CodeInfo{Code: "1c", Percentage: zero, Category: CategoryOwed,
			Policy: Policy{Box: Box1c, ExpectedSide: SideCredit, ContributesVAT: true, VariableRate: true}},
		CodeInfo{Code: "1d", Percentage: high, Category: CategoryOwed,
			Policy: Policy{Box: Box1d, ExpectedSide: SideCredit, ContributesVAT: true}},
		CodeInfo{Code: "1e", Percentage: zero, Category: CategoryExempt,
			Policy: Policy{Box: Box1e}},
		CodeInfo{Code: "2a", Percentage: zero, Category: CategoryReverse,
			Policy: Policy{Box: Box2a}},
		CodeInfo{Code: "3a", Percentage: zero, Category: CategoryExempt,
			Policy: Policy{Box: Box3a}},
		CodeInfo{Code: "3b", Percentage: zero, Category: CategoryExempt,
			Policy: Policy{Box: Box3b}},
		CodeInfo{Code: "4a", Percentage: high, Category: CategoryReverse,
			Policy: Policy{Box: Box4a, ExpectedSide: SideDebit, ContributesVAT: true}},
		CodeInfo{Code: "4b", Percentage: high, Category: CategoryReverse,
			Policy: Policy{Box: Box4b, ExpectedSide: SideDebit, ContributesVAT: true}},
		CodeInfo{Code: "5b", Percentage: high, Category: CategoryReclaimable,
			Policy: Policy{Box: Box5b, ExpectedSide: SideDebit, ContributesVAT: true}},
		CodeInfo{Code: "5b-laag", Percentage: low, Category: CategoryReclaimable,
			Policy: Policy{Box: Box5b, ExpectedSide: SideDebit, ContributesVAT: true, LowRate: true}},
		CodeInfo{Code: CodeNone, Percentage: zero, Category: CategoryExempt},
	)
}

// Lookup returns the code's entry and true, or a zero CodeInfo and false.
func (r *Registry) Lookup(code string) (CodeInfo, bool) {
	info, ok := r.codes[normalizeCode(code)]
	return info, ok
}

// Codes returns all entries sorted by code.
func (r *Registry) Codes() []CodeInfo {
	out := make([]CodeInfo, 0, len(r.codes))
	for _, c := range r.codes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Len returns the number of codes in the registry.
func (r *Registry) Len() int { return len(r.codes) }

// realCode resolves an optional code to a registry entry that reports on the
// declaration. Absent, unknown and sentinel codes all return false.
func (r *Registry) realCode(code OptionalCode) (CodeInfo, bool) {
	c, ok := code.Get()
	if !ok {
		return CodeInfo{}, false
	}
	info, ok := r.Lookup(c)
	if !ok || !info.IsReal() {
		return CodeInfo{}, false
	}
	return info, true
}

func normalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
