package domain

import (
	"encoding/json" // JSON encoding/decoding
	"errors"        // Error values
	"fmt"           // String formatting
	"math"          // Minor-unit bounds

	gomoney "github.com/Rhymond/go-money" // Currency-aware display
	"github.com/shopspring/decimal"       // Exact decimal parsing
)

// Currency is one of the supported wallet currencies
type Currency string

// Supported currencies
const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	RUB Currency = "RUB"
)

// Currencies lists every supported currency in a stable order
var Currencies = []Currency{USD, EUR, RUB}

// ErrUnknownCurrency is returned when parsing an unsupported currency code
var ErrUnknownCurrency = errors.New("unknown currency")

// ErrMalformedAmount is returned when an amount string is not a decimal number
var ErrMalformedAmount = errors.New("malformed amount")

// ErrAmountOutOfRange is returned when an amount does not fit in int64 minor units
var ErrAmountOutOfRange = errors.New("amount out of range")

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// ParseCurrency turns a currency code into a Currency, rejecting anything unsupported
func ParseCurrency(code string) (Currency, error) {
	c := Currency(code)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	return c, nil
}

// Valid reports whether c is a supported currency
func (c Currency) Valid() bool {
	switch c {
	case USD, EUR, RUB:
		return true
	}
	return false
}

// Money is an amount in minor units (cents) tagged with its currency.
// Values are immutable; arithmetic returns new values.
type Money struct {
	Minor    int64    // Amount in minor units
	Currency Currency // Currency tag
}

// NewMoney builds Money from minor units
func NewMoney(minor int64, currency Currency) Money {
	return Money{Minor: minor, Currency: currency}
}

// Zero returns 0.00 in the given currency
func Zero(currency Currency) Money {
	return Money{Currency: currency}
}

// ParseMoney parses a decimal string such as "100.50". More than two fractional
// digits are rounded half-to-even.
func ParseMoney(amount string, currency Currency) (Money, error) {
	if !currency.Valid() {
		return Money{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, currency)
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrMalformedAmount, amount)
	}
	return FromDecimal(d, currency)
}

// FromDecimal converts a major-unit decimal into Money, rounding half-to-even to cents.
// Values outside the int64 minor-unit range fail with ErrAmountOutOfRange.
func FromDecimal(d decimal.Decimal, currency Currency) (Money, error) {
	minor := d.RoundBank(2).Shift(2)
	if minor.GreaterThan(maxMinor) || minor.LessThan(minMinor) {
		return Money{}, fmt.Errorf("%w: %s", ErrAmountOutOfRange, d.String())
	}
	return Money{Minor: minor.IntPart(), Currency: currency}, nil
}

// Decimal returns the amount in major units
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Minor, -2)
}

// Add returns m + n; both must share a currency
func (m Money) Add(n Money) (Money, error) {
	if m.Currency != n.Currency {
		return Money{}, fmt.Errorf("currency mismatch: cannot add %s to %s", n.Currency, m.Currency)
	}
	return Money{Minor: m.Minor + n.Minor, Currency: m.Currency}, nil
}

// Sub returns m - n; both must share a currency. The result may be negative.
func (m Money) Sub(n Money) (Money, error) {
	if m.Currency != n.Currency {
		return Money{}, fmt.Errorf("currency mismatch: cannot subtract %s from %s", n.Currency, m.Currency)
	}
	return Money{Minor: m.Minor - n.Minor, Currency: m.Currency}, nil
}

// IsPositive reports whether m is above zero
func (m Money) IsPositive() bool { return m.Minor > 0 }

// IsNegative reports whether m is below zero
func (m Money) IsNegative() bool { return m.Minor < 0 }

// Amount renders the major-unit value with exactly two fractional digits
func (m Money) Amount() string {
	return m.Decimal().StringFixed(2)
}

// String renders the amount with its currency symbol, e.g. "$100.50"
func (m Money) String() string {
	return gomoney.New(m.Minor, string(m.Currency)).Display()
}

type moneyJSON struct {
	Amount   string   `json:"amount"`
	Currency Currency `json:"currency"`
}

// MarshalJSON writes {"amount":"100.50","currency":"USD"}
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.Amount(), Currency: m.Currency})
}

// UnmarshalJSON reads the MarshalJSON format
func (m *Money) UnmarshalJSON(b []byte) error {
	var v moneyJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	parsed, err := ParseMoney(v.Amount, v.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
