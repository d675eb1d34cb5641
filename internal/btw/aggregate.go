package btw

import "github.com/shopspring/decimal"

// Aggregator folds a period's journal lines into the rubriek totals.
type Aggregator struct {
	registry *Registry
	calc     *Calculator
}

// NewAggregator creates an aggregator over the given registry.
func NewAggregator(registry *Registry) *Aggregator {
	return &Aggregator{registry: registry, calc: NewCalculator(registry)}
}

// bucket accumulates one rubriek.
type bucket struct {
	turnover decimal.Decimal
	vat      decimal.Decimal
}

// Aggregate computes the declaration totals for lines already scoped to the
// period. It never fails: lines with unknown or sentinel codes contribute
// nothing, and so do lines posted to the side their code does not accept.
func (a *Aggregator) Aggregate(txs []Transaction, key PeriodKey) Summary {
	buckets := make(map[Box]*bucket, 11)
	baseHigh := decimal.Zero
	baseLow := decimal.Zero

	sum := Summary{Key: key, TotalTransactions: len(txs)}

	for _, t := range txs {
		info, ok := a.registry.realCode(t.Code)
		if !ok {
			continue
		}
		sum.TransactionsWithCode++

		base, side := t.base()
		if base.IsZero() {
			continue
		}
		p := info.Policy
		if p.ExpectedSide != SideAny && p.ExpectedSide != side {
			sum.ExcludedBySide++
			continue
		}

		b, ok := buckets[p.Box]
		if !ok {
			b = &bucket{}
			buckets[p.Box] = b
		}
		b.turnover = b.turnover.Add(base)
		if !p.ContributesVAT {
			continue
		}
		b.vat = b.vat.Add(a.lineVAT(t, info, base))

		if info.Category == CategoryReclaimable {
			if p.LowRate {
				baseLow = baseLow.Add(base)
			} else {
				baseHigh = baseHigh.Add(base)
			}
		}
	}

	get := func(box Box) bucket {
		if b, ok := buckets[box]; ok {
			return *b
		}
		return bucket{}
	}

	t := Totals{
		Box1aTurnover: get(Box1a).turnover,
		Box1aVAT:      get(Box1a).vat,
		Box1bTurnover: get(Box1b).turnover,
		Box1bVAT:      get(Box1b).vat,
		Box1cTurnover: get(Box1c).turnover,
		Box1cVAT:      get(Box1c).vat,
		Box1dTurnover: get(Box1d).turnover,
		Box1dVAT:      get(Box1d).vat,
		Box1eTurnover: get(Box1e).turnover,
		Box2aTurnover: get(Box2a).turnover,
		Box3aTurnover: get(Box3a).turnover,
		Box3bTurnover: get(Box3b).turnover,
		Box4aTurnover: get(Box4a).turnover,
		Box4aVAT:      get(Box4a).vat,
		Box4bTurnover: get(Box4b).turnover,
		Box4bVAT:      get(Box4b).vat,
		Box5bVAT:      get(Box5b).vat,
		Box5bBase:     baseHigh,
		Box5bBaseLow:  baseLow,
	}
	t.GrossOwed = t.Box1aVAT.Add(t.Box1bVAT).Add(t.Box1cVAT).Add(t.Box1dVAT).
		Add(t.Box4aVAT).Add(t.Box4bVAT)
	t.NetPayable = t.GrossOwed.Sub(t.Box5bVAT)
	t.FinalBalance = t.NetPayable

	sum.Totals = t
	return sum
}

// lineVAT is the line's contribution to its box. A stored amount wins over
// the computed one; its sign never flips the total.
func (a *Aggregator) lineVAT(t Transaction, info CodeInfo, base decimal.Decimal) decimal.Decimal {
	if stored, ok := t.VATAmount.Get(); ok {
		return stored.Abs()
	}
	if info.Policy.VariableRate {
		return decimal.Zero
	}
	return a.calc.VATFromBase(base, info.Code).Abs()
}
