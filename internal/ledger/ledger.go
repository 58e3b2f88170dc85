// Package ledger owns wallet creation and balance changes. Every balance change
// is recorded as an append-only transaction committed together with the new balance.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"wallet_ledger/internal/domain"
	"wallet_ledger/internal/exchange"
	"wallet_ledger/internal/lock"
	"wallet_ledger/internal/storage"
)

// DefaultMaxAttempts bounds how often a unit of work is retried after losing a version race
const DefaultMaxAttempts = 3

// Ledger enforces ownership, wallet limits, conversion and non-negative balances.
// It is safe for concurrent use: posts serialize per wallet, creations per owner.
type Ledger struct {
	store       storage.Store
	engine      *exchange.Engine
	locks       lock.Locker
	now         func() time.Time
	maxAttempts int
	log         logrus.FieldLogger
}

// Option customizes a Ledger
type Option func(*Ledger)

// WithClock overrides the commit timestamp source
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithMaxAttempts overrides DefaultMaxAttempts; values below 1 are ignored
func WithMaxAttempts(n int) Option {
	return func(l *Ledger) {
		if n >= 1 {
			l.maxAttempts = n
		}
	}
}

// WithLogger overrides the standard logrus logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(l *Ledger) { l.log = log }
}

// New builds a Ledger over store, converting with engine and serializing with locks
func New(store storage.Store, engine *exchange.Engine, locks lock.Locker, opts ...Option) *Ledger {
	l := &Ledger{
		store:       store,
		engine:      engine,
		locks:       locks,
		now:         time.Now,
		maxAttempts: DefaultMaxAttempts,
		log:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CreateWallet opens an empty wallet for ownerID in currency
func (l *Ledger) CreateWallet(ctx context.Context, ownerID uint, currency domain.Currency) (*domain.Wallet, error) {
	if !currency.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, currency)
	}
	unlock, err := l.locks.Lock(ctx, lock.OwnerKey(ownerID))
	if err != nil {
		return nil, classify("lock owner", err)
	}
	defer unlock()

	var created domain.Wallet
	err = l.store.Atomic(ctx, func(tx storage.Store) error {
		n, err := tx.Wallets().CountByOwner(ctx, ownerID)
		if err != nil {
			return storageFailure("count wallets", err)
		}
		if n >= domain.MaxWalletsPerOwner {
			return fmt.Errorf("%w: owner already has %d wallets", ErrWalletLimitExceeded, n)
		}
		exists, err := tx.Wallets().ExistsForOwnerCurrency(ctx, ownerID, currency)
		if err != nil {
			return storageFailure("check currency", err)
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrDuplicateCurrencyWallet, currency)
		}
		now := l.now().UTC()
		created = domain.Wallet{
			OwnerID:   ownerID,
			Currency:  currency,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.Wallets().Create(ctx, &created)
	})
	if errors.Is(err, storage.ErrDuplicate) {
		err = fmt.Errorf("%w: %s", ErrDuplicateCurrencyWallet, currency)
	}
	if err != nil {
		err = classify("create wallet", err)
		l.log.WithFields(logrus.Fields{
			"owner_id": ownerID,
			"currency": currency,
			"error":    err.Error(),
		}).Warn("Wallet creation rejected")
		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"owner_id":  ownerID,
		"wallet_id": created.ID,
		"currency":  currency,
	}).Info("Wallet created")
	return &created, nil
}

// GetWallet returns one of ownerID's wallets
func (l *Ledger) GetWallet(ctx context.Context, ownerID, walletID uint) (*domain.Wallet, error) {
	return resolve(ctx, l.store.Wallets(), ownerID, walletID)
}

// ListWallets returns ownerID's wallets in creation order
func (l *Ledger) ListWallets(ctx context.Context, ownerID uint) ([]domain.Wallet, error) {
	ws, err := l.store.Wallets().ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, classify("list wallets", err)
	}
	if ws == nil {
		ws = []domain.Wallet{}
	}
	return ws, nil
}

// resolve loads a wallet and checks that ownerID owns it
func resolve(ctx context.Context, wallets storage.WalletStore, ownerID, walletID uint) (*domain.Wallet, error) {
	w, err := wallets.GetByID(ctx, walletID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrWalletNotFound, walletID)
	}
	if err != nil {
		return nil, classify("get wallet", err)
	}
	if w.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: wallet %d", ErrAccessDenied, walletID)
	}
	return w, nil
}

// PostTransaction credits or debits a wallet. A request in another currency is
// converted (fee included) into the wallet currency first. The new balance and
// the transaction row commit together; a losing version race retries the whole
// unit up to the configured number of attempts.
func (l *Ledger) PostTransaction(ctx context.Context, ownerID, walletID uint, amount domain.Money, kind domain.Kind) (*domain.Transaction, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if !amount.Currency.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, amount.Currency)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s must be positive", ErrInvalidAmount, amount.Amount())
	}

	unlock, err := l.locks.Lock(ctx, lock.WalletKey(walletID))
	if err != nil {
		return nil, classify("lock wallet", err)
	}
	defer unlock()

	fields := logrus.Fields{
		"owner_id":  ownerID,
		"wallet_id": walletID,
		"kind":      kind,
		"amount":    amount.Amount(),
		"currency":  amount.Currency,
	}
	for attempt := 1; ; attempt++ {
		posted, err := l.post(ctx, ownerID, walletID, amount, kind)
		if err == nil {
			l.log.WithFields(fields).WithFields(logrus.Fields{
				"transaction_id": posted.ID,
				"effective":      posted.AmountMoney().Amount(),
				"fee":            posted.FeeMoney().Amount(),
			}).Info("Transaction posted")
			return posted, nil
		}
		if errors.Is(err, storage.ErrStaleVersion) && attempt < l.maxAttempts {
			l.log.WithFields(fields).WithField("attempt", attempt).Debug("Version conflict, retrying")
			continue
		}
		if errors.Is(err, storage.ErrStaleVersion) {
			err = storageFailure(fmt.Sprintf("post transaction: gave up after %d attempts", attempt), err)
		}
		err = classify("post transaction", err)
		l.log.WithFields(fields).WithField("error", err.Error()).Warn("Transaction rejected")
		return nil, err
	}
}

func (l *Ledger) post(ctx context.Context, ownerID, walletID uint, amount domain.Money, kind domain.Kind) (*domain.Transaction, error) {
	var posted domain.Transaction
	err := l.store.Atomic(ctx, func(tx storage.Store) error {
		w, err := resolve(ctx, tx.Wallets(), ownerID, walletID)
		if err != nil {
			return err
		}
		conv, err := l.quote(amount, w.Currency)
		if err != nil {
			return err
		}
		effective := conv.Effective
		if !effective.IsPositive() {
			return fmt.Errorf("%w: %s converts to %s", ErrInvalidAmount, amount.Amount(), effective.Amount())
		}

		balance := w.BalanceMoney()
		var next domain.Money
		switch kind {
		case domain.Credit:
			next, err = balance.Add(effective)
			if err == nil && next.Minor < balance.Minor {
				return fmt.Errorf("%w: balance would overflow", ErrInvalidAmount)
			}
		case domain.Debit:
			next, err = balance.Sub(effective)
		}
		if err != nil {
			return err
		}
		if next.IsNegative() {
			return fmt.Errorf("%w: balance %s, debit %s", ErrInsufficientBalance, balance.Amount(), effective.Amount())
		}

		now := l.now().UTC()
		if err := tx.Wallets().UpdateBalance(ctx, w.ID, next.Minor, w.Version, now); err != nil {
			return err
		}
		posted = domain.Transaction{
			WalletID:       w.ID,
			Amount:         effective.Minor,
			Currency:       w.Currency,
			Kind:           kind,
			SourceAmount:   amount.Minor,
			SourceCurrency: amount.Currency,
			Fee:            conv.Fee.Minor,
			CreatedAt:      now,
		}
		return tx.Transactions().Append(ctx, &posted)
	})
	if errors.Is(err, storage.ErrNotFound) {
		// Owner deleted between the read and the commit
		return nil, fmt.Errorf("%w: %d", ErrWalletNotFound, walletID)
	}
	if err != nil {
		return nil, err
	}
	return &posted, nil
}

// ListTransactions pages through a wallet's log, newest first, and reports the total count
func (l *Ledger) ListTransactions(ctx context.Context, ownerID, walletID uint, skip, limit int) ([]domain.Transaction, int64, error) {
	if _, err := l.GetWallet(ctx, ownerID, walletID); err != nil {
		return nil, 0, err
	}
	if skip < 0 {
		skip = 0
	}
	limit = max(limit, 0)
	txs, total, err := l.store.Transactions().ListByWallet(ctx, walletID, skip, limit)
	if err != nil {
		return nil, 0, classify("list transactions", err)
	}
	if txs == nil || limit == 0 {
		txs = []domain.Transaction{}
	}
	return txs, total, nil
}

// Quote previews the effective amount a request would apply to a wallet
func (l *Ledger) Quote(ctx context.Context, ownerID, walletID uint, amount domain.Money) (exchange.Conversion, error) {
	w, err := l.GetWallet(ctx, ownerID, walletID)
	if err != nil {
		return exchange.Conversion{}, err
	}
	return l.quote(amount, w.Currency)
}

// quote converts amount into target, reporting results too large for a balance as ErrInvalidAmount
func (l *Ledger) quote(amount domain.Money, target domain.Currency) (exchange.Conversion, error) {
	conv, err := l.engine.Quote(amount, target)
	if errors.Is(err, domain.ErrAmountOutOfRange) {
		return exchange.Conversion{}, fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	}
	return conv, err
}
