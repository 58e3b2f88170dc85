package exchange

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"wallet_ledger/internal/domain"
)

// ErrUnsupportedConversion is returned when the table has no rate for a pair
var ErrUnsupportedConversion = errors.New("unsupported conversion")

// Conversion describes how a source amount maps onto the target currency
type Conversion struct {
	Source    domain.Money    `json:"source"`
	Rate      decimal.Decimal `json:"rate"`
	Gross     domain.Money    `json:"gross"`     // source * rate, rounded
	Fee       domain.Money    `json:"fee"`       // gross - effective
	Effective domain.Money    `json:"effective"` // amount applied to the target wallet
}

// Engine converts Money between currencies using a fixed Table.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	table Table
}

// NewEngine builds an Engine over table
func NewEngine(table Table) *Engine {
	return &Engine{table: table}
}

// Table returns the table the engine converts with
func (e *Engine) Table() Table {
	return e.table
}

// Convert returns the fee-adjusted amount of source expressed in target
func (e *Engine) Convert(source domain.Money, target domain.Currency) (domain.Money, error) {
	q, err := e.Quote(source, target)
	if err != nil {
		return domain.Money{}, err
	}
	return q.Effective, nil
}

// Quote computes source * rate * (1 - fee) in full precision and rounds once,
// half-to-even, to minor units. Same-currency quotes carry no fee.
func (e *Engine) Quote(source domain.Money, target domain.Currency) (Conversion, error) {
	if source.Currency == target {
		return Conversion{
			Source:    source,
			Rate:      decimal.NewFromInt(1),
			Gross:     source,
			Fee:       domain.Zero(target),
			Effective: source,
		}, nil
	}
	rate, ok := e.table.Rate(source.Currency, target)
	if !ok {
		return Conversion{}, fmt.Errorf("%w: %s -> %s", ErrUnsupportedConversion, source.Currency, target)
	}
	raw := source.Decimal().Mul(rate)
	effective, err := domain.FromDecimal(raw.Mul(decimal.NewFromInt(1).Sub(e.table.Fee())), target)
	if err != nil {
		return Conversion{}, err
	}
	gross, err := domain.FromDecimal(raw, target)
	if err != nil {
		return Conversion{}, err
	}
	return Conversion{
		Source:    source,
		Rate:      rate,
		Gross:     gross,
		Fee:       domain.NewMoney(gross.Minor-effective.Minor, target),
		Effective: effective,
	}, nil
}
