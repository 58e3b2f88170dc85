package ledger_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"wallet_ledger/internal/domain"
	"wallet_ledger/internal/exchange"
	"wallet_ledger/internal/ledger"
	"wallet_ledger/internal/lock"
	"wallet_ledger/internal/storage"
	"wallet_ledger/internal/storage/memory"
)

const owner, stranger uint = 1, 2

type LedgerSuite struct {
	suite.Suite
	ctx    context.Context
	store  *memory.Store
	ledger *ledger.Ledger
	logs   *test.Hook
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

// tickingClock returns a clock that advances one millisecond per call
func tickingClock() func() time.Time {
	var n atomic.Int64
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		return base.Add(time.Duration(n.Add(1)) * time.Millisecond)
	}
}

func (s *LedgerSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	log, hook := test.NewNullLogger()
	s.logs = hook
	s.ledger = ledger.New(s.store, exchange.NewEngine(exchange.DefaultTable()), lock.NewKeyed(),
		ledger.WithClock(tickingClock()),
		ledger.WithLogger(log),
	)
}

func (s *LedgerSuite) usd(amount string) domain.Money {
	m, err := domain.ParseMoney(amount, domain.USD)
	s.Require().NoError(err)
	return m
}

func (s *LedgerSuite) wallet(currency domain.Currency) *domain.Wallet {
	w, err := s.ledger.CreateWallet(s.ctx, owner, currency)
	s.Require().NoError(err)
	return w
}

func (s *LedgerSuite) balance(id uint) string {
	w, err := s.ledger.GetWallet(s.ctx, owner, id)
	s.Require().NoError(err)
	return w.BalanceMoney().Amount()
}

func (s *LedgerSuite) TestCreditThenList() {
	w := s.wallet(domain.USD)
	s.Equal("0.00", w.BalanceMoney().Amount())

	tx, err := s.ledger.PostTransaction(s.ctx, owner, w.ID, s.usd("100.50"), domain.Credit)
	s.Require().NoError(err)
	s.Equal(domain.Credit, tx.Kind)
	s.Equal("100.50", tx.AmountMoney().Amount())
	s.Equal("100.50", s.balance(w.ID))

	txs, total, err := s.ledger.ListTransactions(s.ctx, owner, w.ID, 0, 10)
	s.Require().NoError(err)
	s.Equal(int64(1), total)
	s.Require().Len(txs, 1)
	s.Equal(tx.ID, txs[0].ID)
	s.Equal(int64(10050), txs[0].Amount)
	s.Equal(time.UTC, txs[0].CreatedAt.Location())

	s.Len(s.logs.Entries, 2) // wallet created, transaction posted
	s.Equal(logrus.InfoLevel, s.logs.LastEntry().Level)
}

func (s *LedgerSuite) TestDebitBeyondBalanceFails() {
	w := s.wallet(domain.USD)
	_, err := s.ledger.PostTransaction(s.ctx, owner, w.ID, s.usd("50.00"), domain.Credit)
	s.Require().NoError(err)

	_, err = s.ledger.PostTransaction(s.ctx, owner, w.ID, s.usd("60.00"), domain.Debit)
	s.ErrorIs(err, ledger.ErrInsufficientBalance)
	s.Equal("50.00", s.balance(w.ID))

	_, total, err := s.ledger.ListTransactions(s.ctx, owner, w.ID, 0, 10)
	s.Require().NoError(err)
	s.Equal(int64(1), total, "failed debit must not be recorded")
}

func (s *LedgerSuite) TestDebitToExactlyZero() {
	w := s.wallet(domain.USD)
	_, err := s.ledger.PostTransaction(s.ctx, owner, w.ID, s.usd("10.00"), domain.Credit)
	s.Require().NoError(err)
	_, err = s.ledger.PostTransaction(s.ctx, owner, w.ID, s.usd("10.00"), domain.Debit)
	s.Require().NoError(err)
	s.Equal("0.00", s.balance(w.ID))
}

func (s *LedgerSuite) TestCrossCurrencyCredit() {
	w := s.wallet(domain.EUR)
	tx, err := s.ledger.PostTransaction(s.ctx, owner, w.ID, s.usd("100.00"), domain.Credit)
	s.Require().NoError(err)
	s.Equal("83.30", s.balance(w.ID))
	s.Equal(domain.EUR, tx.Currency)
	s.Equal(domain.USD, tx.SourceCurrency)
	s.Equal(int64(10000), tx.SourceAmount)
	s.Equal("1.70", tx.FeeMoney().Amount())
}

func (s *LedgerSuite) TestCrossCurrencyDebitChecksConvertedAmount() {
	w := s.wallet(domain.EUR)
	_, err := s.ledger.PostTransaction(s.ctx, owner, w.ID, domain.NewMoney(8330, domain.EUR), domain.Credit)
	s.Require().NoError(err)

	_, err = s.ledger.PostTransaction(s.ctx, owner, w.ID, s.usd("100.01"), domain.Debit)
	s.ErrorIs(err, ledger.ErrInsufficientBalance)

	_, err = s.ledger.PostTransaction(s.ctx, owner, w.ID, s.usd("100.00"), domain.Debit)
	s.Require().NoError(err)
	s.Equal("0.00", s.balance(w.ID))
}

func (s *LedgerSuite) TestConversionRoundingToZeroIsRejected() {
	w := s.wallet(domain.USD)
	_, err := s.ledger.PostTransaction(s.ctx, owner, w.ID, domain.NewMoney(1, domain.RUB), domain.Credit)
	s.ErrorIs(err, ledger.ErrInvalidAmount)
	s.Equal("0.00", s.balance(w.ID))
}

func (s *LedgerSuite) TestWalletLimit() {
	for _, c := range domain.Currencies {
		s.wallet(c)
	}
	_, err := s.ledger.CreateWallet(s.ctx, owner, domain.USD)
	s.ErrorIs(err, ledger.ErrWalletLimitExceeded)

	ws, err := s.ledger.ListWallets(s.ctx, owner)
	s.Require().NoError(err)
	s.Len(ws, domain.MaxWalletsPerOwner)
	s.Equal(domain.USD, ws[0].Currency)
	s.Equal(domain.RUB, ws[2].Currency)

	_, err = s.ledger.CreateWallet(s.ctx, stranger, domain.USD)
	s.NoError(err, "the limit is per owner")
}

func (s *LedgerSuite) TestDuplicateCurrency() {
	s.wallet(domain.USD)
	_, err := s.ledger.CreateWallet(s.ctx, owner, domain.USD)
	s.ErrorIs(err, ledger.ErrDuplicateCurrencyWallet)

	ws, err := s.ledger.ListWallets(s.ctx, owner)
	s.Require().NoError(err)
	s.Len(ws, 1)
}

func (s *LedgerSuite) TestUnsupportedCurrency() {
	_, err := s.ledger.CreateWallet(s.ctx, owner, domain.Currency("GBP"))
	s.ErrorIs(err, ledger.ErrUnsupportedCurrency)

	w := s.wallet(domain.USD)
	_, err = s.ledger.PostTransaction(s.ctx, owner, w.ID, domain.NewMoney(100, "GBP"), domain.Credit)
	s.ErrorIs(err, ledger.ErrUnsupportedCurrency)
}

func (s *LedgerSuite) TestInvalidInputs() {
	w := s.wallet(domain.USD)
	_, err := s.ledger.PostTransaction(s.ctx, owner, w.ID, s.usd("0"), domain.Credit)
	s.ErrorIs(err, ledger.ErrInvalidAmount)
	_, err = s.ledger.PostTransaction(s.ctx, owner, w.ID, s.usd("-5"), domain.Debit)
	s.ErrorIs(err, ledger.ErrInvalidAmount)
	_, err = s.ledger.PostTransaction(s.ctx, owner, w.ID, s.usd("5"), domain.Kind("refund"))
	s.ErrorIs(err, ledger.ErrInvalidKind)
}

func (s *LedgerSuite) TestOwnership() {
	w := s.wallet(domain.USD)

	_, err := s.ledger.GetWallet(s.ctx, stranger, w.ID)
	s.ErrorIs(err, ledger.ErrAccessDenied)
	_, err = s.ledger.PostTransaction(s.ctx, stranger, w.ID, s.usd("1"), domain.Credit)
	s.ErrorIs(err, ledger.ErrAccessDenied)
	_, _, err = s.ledger.ListTransactions(s.ctx, stranger, w.ID, 0, 10)
	s.ErrorIs(err, ledger.ErrAccessDenied)
	_, err = s.ledger.Quote(s.ctx, stranger, w.ID, s.usd("1"))
	s.ErrorIs(err, ledger.ErrAccessDenied)

	_, err = s.ledger.GetWallet(s.ctx, owner, 999)
	s.ErrorIs(err, ledger.ErrWalletNotFound)
	_, err = s.ledger.PostTransaction(s.ctx, owner, 999, s.usd("1"), domain.Credit)
	s.ErrorIs(err, ledger.ErrWalletNotFound)

	ws, err := s.ledger.ListWallets(s.ctx, stranger)
	s.Require().NoError(err)
	s.NotNil(ws)
	s.Empty(ws)
}

func (s *LedgerSuite) TestListTransactionsPaging() {
	w := s.wallet(domain.USD)
	for i := 1; i <= 5; i++ {
		_, err := s.ledger.PostTransaction(s.ctx, owner, w.ID, domain.NewMoney(int64(i*100), domain.USD), domain.Credit)
		s.Require().NoError(err)
	}

	txs, total, err := s.ledger.ListTransactions(s.ctx, owner, w.ID, 1, 2)
	s.Require().NoError(err)
	s.Equal(int64(5), total)
	s.Require().Len(txs, 2)
	s.Equal(int64(400), txs[0].Amount, "newest first")
	s.Equal(int64(300), txs[1].Amount)

	txs, _, err = s.ledger.ListTransactions(s.ctx, owner, w.ID, 10, 2)
	s.Require().NoError(err)
	s.NotNil(txs)
	s.Empty(txs)

	txs, total, err = s.ledger.ListTransactions(s.ctx, owner, w.ID, -3, 0)
	s.Require().NoError(err)
	s.Empty(txs)
	s.Equal(int64(5), total)
}

func (s *LedgerSuite) TestSameTimestampKeepsInsertionOrder() {
	frozen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := ledger.New(s.store, exchange.NewEngine(exchange.DefaultTable()), lock.NewKeyed(),
		ledger.WithClock(func() time.Time { return frozen }))
	w, err := l.CreateWallet(s.ctx, owner, domain.USD)
	s.Require().NoError(err)
	for i := 1; i <= 3; i++ {
		_, err := l.PostTransaction(s.ctx, owner, w.ID, domain.NewMoney(int64(i), domain.USD), domain.Credit)
		s.Require().NoError(err)
	}
	txs, _, err := l.ListTransactions(s.ctx, owner, w.ID, 0, 10)
	s.Require().NoError(err)
	s.Require().Len(txs, 3)
	s.Equal([]int64{3, 2, 1}, []int64{txs[0].Amount, txs[1].Amount, txs[2].Amount})
}

func (s *LedgerSuite) TestBalanceEqualsSumOfTransactions() {
	w := s.wallet(domain.RUB)
	posts := []struct {
		amount domain.Money
		kind   domain.Kind
	}{
		{domain.NewMoney(100000, domain.RUB), domain.Credit},
		{s.usd("3.33"), domain.Credit},
		{domain.NewMoney(45678, domain.RUB), domain.Debit},
		{domain.NewMoney(1234, domain.EUR), domain.Credit},
		{domain.NewMoney(99999999, domain.RUB), domain.Debit}, // rejected
	}
	for _, p := range posts {
		_, _ = s.ledger.PostTransaction(s.ctx, owner, w.ID, p.amount, p.kind)
	}

	txs, _, err := s.ledger.ListTransactions(s.ctx, owner, w.ID, 0, 100)
	s.Require().NoError(err)
	var sum int64
	for _, tx := range txs {
		if tx.Kind == domain.Credit {
			sum += tx.Amount
		} else {
			sum -= tx.Amount
		}
	}
	got, err := s.ledger.GetWallet(s.ctx, owner, w.ID)
	s.Require().NoError(err)
	s.Equal(sum, got.Balance)
	s.Len(txs, 4)
}

func (s *LedgerSuite) TestConcurrentDebits() {
	const n = 20
	w := s.wallet(domain.USD)
	_, err := s.ledger.PostTransaction(s.ctx, owner, w.ID, domain.NewMoney((n-1)*500, domain.USD), domain.Credit)
	s.Require().NoError(err)

	var ok, insufficient atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ledger.PostTransaction(s.ctx, owner, w.ID, domain.NewMoney(500, domain.USD), domain.Debit)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ledger.ErrInsufficientBalance):
				insufficient.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(n-1), ok.Load())
	s.Equal(int32(1), insufficient.Load())
	s.Equal("0.00", s.balance(w.ID))
}

func (s *LedgerSuite) TestConcurrentCreateSameCurrency() {
	var ok, dup atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ledger.CreateWallet(s.ctx, owner, domain.EUR)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ledger.ErrDuplicateCurrencyWallet):
				dup.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), ok.Load())
	s.Equal(int32(9), dup.Load())
}

func (s *LedgerSuite) TestQuote() {
	w := s.wallet(domain.EUR)
	q, err := s.ledger.Quote(s.ctx, owner, w.ID, s.usd("100"))
	s.Require().NoError(err)
	s.Equal("83.30", q.Effective.Amount())
	s.Equal("0.00", s.balance(w.ID), "quotes do not post")
}

func (s *LedgerSuite) TestCancelledContext() {
	w := s.wallet(domain.USD)
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	_, err := s.ledger.PostTransaction(ctx, owner, w.ID, s.usd("1"), domain.Credit)
	s.ErrorIs(err, context.Canceled)
	s.Equal("0.00", s.balance(w.ID))
}

func (s *LedgerSuite) TestOversizedAmountsAreRejected() {
	_, err := domain.ParseMoney("184467440737095516.17", domain.USD)
	s.ErrorIs(err, domain.ErrAmountOutOfRange, "must not wrap to 0.01")

	rub := s.wallet(domain.RUB)
	_, err = s.ledger.PostTransaction(s.ctx, owner, rub.ID, domain.NewMoney(math.MaxInt64/2, domain.EUR), domain.Credit)
	s.ErrorIs(err, ledger.ErrInvalidAmount)
	_, err = s.ledger.Quote(s.ctx, owner, rub.ID, domain.NewMoney(math.MaxInt64, domain.USD))
	s.ErrorIs(err, ledger.ErrInvalidAmount)
	s.Equal("0.00", s.balance(rub.ID))

	usd := s.wallet(domain.USD)
	_, err = s.ledger.PostTransaction(s.ctx, owner, usd.ID, domain.NewMoney(math.MaxInt64, domain.USD), domain.Credit)
	s.Require().NoError(err, "the largest balance fits")
	_, err = s.ledger.PostTransaction(s.ctx, owner, usd.ID, domain.NewMoney(1, domain.USD), domain.Credit)
	s.ErrorIs(err, ledger.ErrInvalidAmount)

	got, err := s.ledger.GetWallet(s.ctx, owner, usd.ID)
	s.Require().NoError(err)
	s.Equal(int64(math.MaxInt64), got.Balance)
	_, total, err := s.ledger.ListTransactions(s.ctx, owner, usd.ID, 0, 10)
	s.Require().NoError(err)
	s.Equal(int64(1), total)
}

func (s *LedgerSuite) TestReadsAreIdempotent() {
	w := s.wallet(domain.EUR)
	_, err := s.ledger.PostTransaction(s.ctx, owner, w.ID, s.usd("12.34"), domain.Credit)
	s.Require().NoError(err)

	first, err := s.ledger.GetWallet(s.ctx, owner, w.ID)
	s.Require().NoError(err)
	second, err := s.ledger.GetWallet(s.ctx, owner, w.ID)
	s.Require().NoError(err)
	s.Equal(first, second)

	txs1, total1, err := s.ledger.ListTransactions(s.ctx, owner, w.ID, 0, 10)
	s.Require().NoError(err)
	txs2, total2, err := s.ledger.ListTransactions(s.ctx, owner, w.ID, 0, 10)
	s.Require().NoError(err)
	s.Equal(txs1, txs2)
	s.Equal(total1, total2)
}

func (s *LedgerSuite) TestCreditThenDebitRestoresBalance() {
	tests := []struct {
		currency domain.Currency
		prior    domain.Money
		amount   domain.Money
	}{
		{domain.USD, domain.NewMoney(5050, domain.USD), domain.NewMoney(1999, domain.USD)},
		{domain.EUR, domain.NewMoney(1, domain.EUR), domain.NewMoney(10000, domain.USD)},
		{domain.RUB, domain.NewMoney(123456789, domain.RUB), domain.NewMoney(777, domain.EUR)},
	}
	for _, tt := range tests {
		w := s.wallet(tt.currency)
		_, err := s.ledger.PostTransaction(s.ctx, owner, w.ID, tt.prior, domain.Credit)
		s.Require().NoError(err)
		before := s.balance(w.ID)

		_, err = s.ledger.PostTransaction(s.ctx, owner, w.ID, tt.amount, domain.Credit)
		s.Require().NoError(err)
		_, err = s.ledger.PostTransaction(s.ctx, owner, w.ID, tt.amount, domain.Debit)
		s.Require().NoError(err)
		s.Equal(before, s.balance(w.ID), string(tt.currency))
	}
}

func (s *LedgerSuite) TestCommitTimeComesFromClock() {
	frozen := time.Date(2024, 6, 30, 23, 59, 59, 0, time.UTC)
	l := ledger.New(s.store, exchange.NewEngine(exchange.DefaultTable()), lock.NewKeyed(),
		ledger.WithClock(func() time.Time { return frozen }))
	w, err := l.CreateWallet(s.ctx, owner, domain.USD)
	s.Require().NoError(err)

	tx, err := l.PostTransaction(s.ctx, owner, w.ID, s.usd("1"), domain.Credit)
	s.Require().NoError(err)
	s.Equal(frozen, tx.CreatedAt)

	got, err := l.GetWallet(s.ctx, owner, w.ID)
	s.Require().NoError(err)
	s.Equal(frozen, got.UpdatedAt)
	s.Equal(frozen, got.CreatedAt)
}

func (s *LedgerSuite) TestDeletedOwnerLosesWallets() {
	u := &domain.User{Username: "dave"}
	s.Require().NoError(s.store.Users().Create(s.ctx, u))
	w, err := s.ledger.CreateWallet(s.ctx, u.ID, domain.USD)
	s.Require().NoError(err)
	_, err = s.ledger.PostTransaction(s.ctx, u.ID, w.ID, s.usd("10"), domain.Credit)
	s.Require().NoError(err)

	s.Require().NoError(s.store.Users().Delete(s.ctx, u.ID))

	_, err = s.ledger.GetWallet(s.ctx, u.ID, w.ID)
	s.ErrorIs(err, ledger.ErrWalletNotFound)
	_, err = s.ledger.PostTransaction(s.ctx, u.ID, w.ID, s.usd("1"), domain.Credit)
	s.ErrorIs(err, ledger.ErrWalletNotFound)
	ws, err := s.ledger.ListWallets(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Empty(ws)
}

// racingStore loses the version race a fixed number of times before letting writes through
type racingStore struct {
	storage.Store
	losses *atomic.Int32
}

func (r racingStore) Wallets() storage.WalletStore {
	return racingWallets{WalletStore: r.Store.Wallets(), losses: r.losses}
}

func (r racingStore) Atomic(ctx context.Context, fn func(tx storage.Store) error) error {
	return r.Store.Atomic(ctx, func(tx storage.Store) error {
		return fn(racingStore{Store: tx, losses: r.losses})
	})
}

type racingWallets struct {
	storage.WalletStore
	losses *atomic.Int32
}

func (r racingWallets) UpdateBalance(ctx context.Context, id uint, balance, version int64, at time.Time) error {
	if r.losses.Add(-1) >= 0 {
		return storage.ErrStaleVersion
	}
	return r.WalletStore.UpdateBalance(ctx, id, balance, version, at)
}

func TestStaleVersionIsRetried(t *testing.T) {
	ctx := context.Background()
	base := memory.New()
	losses := &atomic.Int32{}
	l := ledger.New(racingStore{Store: base, losses: losses}, exchange.NewEngine(exchange.DefaultTable()), lock.NewKeyed(),
		ledger.WithMaxAttempts(3))
	w, err := l.CreateWallet(ctx, owner, domain.USD)
	require.NoError(t, err)

	losses.Store(2)
	_, err = l.PostTransaction(ctx, owner, w.ID, domain.NewMoney(100, domain.USD), domain.Credit)
	require.NoError(t, err)

	losses.Store(3)
	_, err = l.PostTransaction(ctx, owner, w.ID, domain.NewMoney(100, domain.USD), domain.Credit)
	assert.ErrorIs(t, err, ledger.ErrStorageFailure)
	assert.ErrorIs(t, err, storage.ErrStaleVersion)

	got, err := l.GetWallet(ctx, owner, w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Balance)
	assert.Equal(t, int64(1), got.Version)
}

// brokenStore fails every wallet read
type brokenStore struct{ storage.Store }

func (b brokenStore) Wallets() storage.WalletStore { return brokenWallets{b.Store.Wallets()} }

type brokenWallets struct{ storage.WalletStore }

var errConnection = errors.New("connection refused")

func (brokenWallets) GetByID(context.Context, uint) (*domain.Wallet, error) { return nil, errConnection }
func (brokenWallets) ListByOwner(context.Context, uint) ([]domain.Wallet, error) {
	return nil, errConnection
}

func TestStorageFailure(t *testing.T) {
	ctx := context.Background()
	l := ledger.New(brokenStore{memory.New()}, exchange.NewEngine(exchange.DefaultTable()), lock.NewKeyed())

	_, err := l.GetWallet(ctx, owner, 1)
	assert.ErrorIs(t, err, ledger.ErrStorageFailure)
	assert.ErrorIs(t, err, errConnection)

	_, err = l.ListWallets(ctx, owner)
	assert.ErrorIs(t, err, ledger.ErrStorageFailure)
}
