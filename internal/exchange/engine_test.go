package exchange

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet_ledger/internal/domain"
)

func TestQuoteCrossCurrency(t *testing.T) {
	e := NewEngine(DefaultTable())

	q, err := e.Quote(domain.NewMoney(10000, domain.USD), domain.EUR)
	require.NoError(t, err)
	assert.Equal(t, "83.30", q.Effective.Amount())
	assert.Equal(t, domain.EUR, q.Effective.Currency)
	assert.Equal(t, "85.00", q.Gross.Amount())
	assert.Equal(t, "1.70", q.Fee.Amount())
	assert.True(t, q.Rate.Equal(decimal.RequireFromString("0.85")))

	q, err = e.Quote(domain.NewMoney(100000, domain.RUB), domain.USD)
	require.NoError(t, err)
	assert.Equal(t, "12.74", q.Effective.Amount())
}

func TestQuoteSameCurrencyHasNoFee(t *testing.T) {
	e := NewEngine(DefaultTable())
	src := domain.NewMoney(10050, domain.USD)

	q, err := e.Quote(src, domain.USD)
	require.NoError(t, err)
	assert.Equal(t, src, q.Effective)
	assert.Equal(t, int64(0), q.Fee.Minor)
}

func TestQuoteRoundsOnceHalfToEven(t *testing.T) {
	e := NewEngine(DefaultTable())

	// 0.01 * 75 * 0.98 = 0.735
	q, err := e.Quote(domain.NewMoney(1, domain.USD), domain.RUB)
	require.NoError(t, err)
	assert.Equal(t, int64(74), q.Effective.Minor)
	assert.Equal(t, int64(75), q.Gross.Minor)
	assert.Equal(t, int64(1), q.Fee.Minor)

	q, err = e.Quote(domain.NewMoney(1, domain.RUB), domain.USD)
	require.NoError(t, err)
	assert.Equal(t, int64(0), q.Effective.Minor)
}

func TestQuoteUnsupportedPair(t *testing.T) {
	e := NewEngine(NewTable(map[Pair]decimal.Decimal{
		{domain.USD, domain.EUR}: decimal.RequireFromString("0.85"),
	}, DefaultFee))

	_, err := e.Convert(domain.NewMoney(100, domain.EUR), domain.USD)
	assert.ErrorIs(t, err, ErrUnsupportedConversion)

	m, err := e.Convert(domain.NewMoney(100, domain.EUR), domain.EUR)
	require.NoError(t, err)
	assert.Equal(t, int64(100), m.Minor)
}

func TestConvertIsDeterministic(t *testing.T) {
	e := NewEngine(DefaultTable())
	first, err := e.Convert(domain.NewMoney(123457, domain.EUR), domain.RUB)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		again, err := e.Convert(domain.NewMoney(123457, domain.EUR), domain.RUB)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRoundTripIsNotIdentity(t *testing.T) {
	e := NewEngine(DefaultTable().WithFee(decimal.Zero))
	eur, err := e.Convert(domain.NewMoney(10000, domain.USD), domain.EUR)
	require.NoError(t, err)
	assert.Equal(t, "85.00", eur.Amount())

	usd, err := e.Convert(eur, domain.USD)
	require.NoError(t, err)
	assert.Equal(t, "100.30", usd.Amount())
}

func TestTable(t *testing.T) {
	rates := map[Pair]decimal.Decimal{{domain.USD, domain.EUR}: decimal.RequireFromString("0.9")}
	table := NewTable(rates, DefaultFee)
	rates[Pair{domain.EUR, domain.USD}] = decimal.RequireFromString("1.1")

	_, ok := table.Rate(domain.EUR, domain.USD)
	assert.False(t, ok, "table must not see later map changes")

	all := DefaultTable().Rates()
	require.Len(t, all, 6)
	assert.Equal(t, domain.EUR, all[0].From)
	assert.Equal(t, domain.RUB, all[0].To)
	assert.Equal(t, domain.USD, all[5].From)
	assert.Equal(t, domain.RUB, all[5].To)

	assert.True(t, DefaultTable().WithFee(decimal.Zero).Fee().IsZero())
	assert.True(t, DefaultTable().Fee().Equal(decimal.RequireFromString("0.02")))
}

func TestQuoteOutOfRange(t *testing.T) {
	e := NewEngine(DefaultTable())

	// Fits as EUR, overflows once multiplied by the EUR->RUB rate
	_, err := e.Quote(domain.NewMoney(math.MaxInt64/2, domain.EUR), domain.RUB)
	assert.ErrorIs(t, err, domain.ErrAmountOutOfRange)

	_, err = e.Convert(domain.NewMoney(math.MaxInt64, domain.USD), domain.RUB)
	assert.ErrorIs(t, err, domain.ErrAmountOutOfRange)

	q, err := e.Quote(domain.NewMoney(math.MaxInt64, domain.USD), domain.USD)
	require.NoError(t, err, "same currency never rescales")
	assert.Equal(t, int64(math.MaxInt64), q.Effective.Minor)
}
