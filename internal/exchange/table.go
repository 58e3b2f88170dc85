package exchange

import (
	"sort"

	"github.com/shopspring/decimal"

	"wallet_ledger/internal/domain"
)

// DefaultFee is the share of a converted amount withheld on cross-currency operations
var DefaultFee = decimal.RequireFromString("0.02")

// Pair is an ordered (from, to) currency pair
type Pair struct {
	From domain.Currency
	To   domain.Currency
}

// Table is an immutable set of directional rates plus the conversion fee.
// Reciprocal pairs are configured independently and need not be exact inverses.
type Table struct {
	rates map[Pair]decimal.Decimal
	fee   decimal.Decimal
}

// PairRate is one row of a Table
type PairRate struct {
	From domain.Currency `json:"from"`
	To   domain.Currency `json:"to"`
	Rate decimal.Decimal `json:"rate"`
}

// NewTable copies rates so later changes to the map do not leak into the table
func NewTable(rates map[Pair]decimal.Decimal, fee decimal.Decimal) Table {
	cp := make(map[Pair]decimal.Decimal, len(rates))
	for p, r := range rates {
		cp[p] = r
	}
	return Table{rates: cp, fee: fee}
}

// DefaultTable returns the built-in rates with DefaultFee
func DefaultTable() Table {
	return NewTable(map[Pair]decimal.Decimal{
		{domain.USD, domain.EUR}: decimal.RequireFromString("0.85"),
		{domain.USD, domain.RUB}: decimal.RequireFromString("75.00"),
		{domain.EUR, domain.USD}: decimal.RequireFromString("1.18"),
		{domain.EUR, domain.RUB}: decimal.RequireFromString("88.24"),
		{domain.RUB, domain.USD}: decimal.RequireFromString("0.013"),
		{domain.RUB, domain.EUR}: decimal.RequireFromString("0.011"),
	}, DefaultFee)
}

// WithFee returns a copy of t charging fee instead
func (t Table) WithFee(fee decimal.Decimal) Table {
	return NewTable(t.rates, fee)
}

// Rate looks up the rate for from -> to
func (t Table) Rate(from, to domain.Currency) (decimal.Decimal, bool) {
	r, ok := t.rates[Pair{From: from, To: to}]
	return r, ok
}

// Fee returns the conversion fee as a fraction (0.02 == 2%)
func (t Table) Fee() decimal.Decimal {
	return t.fee
}

// Rates lists every pair ordered by from, then to
func (t Table) Rates() []PairRate {
	out := make([]PairRate, 0, len(t.rates))
	for p, r := range t.rates {
		out = append(out, PairRate{From: p.From, To: p.To, Rate: r})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}
