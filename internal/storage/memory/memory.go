// Package memory is an in-process storage.Store.
//
// A unit of work started with Atomic buffers its writes and applies them in a
// single short critical section at commit, re-checking wallet versions and the
// (owner, currency) uniqueness constraint. Readers only ever see committed state.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"wallet_ledger/internal/domain"
	"wallet_ledger/internal/storage"
)

// Store keeps wallets, transactions and users in maps guarded by a RWMutex
type Store struct {
	mu      sync.RWMutex
	wallets map[uint]domain.Wallet
	txs     []domain.Transaction // insertion order
	users   map[uint]domain.User

	walletSeq atomic.Uint64
	txSeq     atomic.Uint64
	userSeq   atomic.Uint64
}

// New returns an empty Store
func New() *Store {
	return &Store{
		wallets: map[uint]domain.Wallet{},
		users:   map[uint]domain.User{},
	}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) Wallets() storage.WalletStore           { return walletRepo{s} }
func (s *Store) Transactions() storage.TransactionStore { return txRepo{s} }
func (s *Store) Users() storage.UserStore               { return userRepo{s} }

// Atomic runs fn against a buffered unit and commits it if fn succeeds
func (s *Store) Atomic(ctx context.Context, fn func(tx storage.Store) error) error {
	u := &unit{base: s, balances: map[uint]balanceWrite{}}
	if err := fn(u); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(u)
}

func (s *Store) commit(u *unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, bw := range u.balances {
		w, ok := s.wallets[id]
		if !ok {
			return storage.ErrNotFound
		}
		if w.Version != bw.expected {
			return storage.ErrStaleVersion
		}
	}
	for _, nw := range u.created {
		if s.ownerHasCurrencyLocked(nw.OwnerID, nw.Currency) {
			return storage.ErrDuplicate
		}
	}

	for _, nw := range u.created {
		s.wallets[nw.ID] = *nw
	}
	for id, bw := range u.balances {
		w := s.wallets[id]
		w.Balance = bw.balance
		w.Version = bw.expected + 1
		w.UpdatedAt = bw.at
		s.wallets[id] = w
	}
	for _, t := range u.appended {
		s.txs = append(s.txs, *t)
	}
	return nil
}

func (s *Store) ownerHasCurrencyLocked(ownerID uint, currency domain.Currency) bool {
	for _, w := range s.wallets {
		if w.OwnerID == ownerID && w.Currency == currency {
			return true
		}
	}
	return false
}

func (s *Store) walletsByOwnerLocked(ownerID uint) []domain.Wallet {
	var out []domain.Wallet
	for _, w := range s.wallets {
		if w.OwnerID == ownerID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// newestFirst orders by CreatedAt descending, later inserts first on ties
func newestFirst(txs []domain.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].CreatedAt.Equal(txs[j].CreatedAt) {
			return txs[i].CreatedAt.After(txs[j].CreatedAt)
		}
		return txs[i].ID > txs[j].ID
	})
}

func page[T any](items []T, skip, limit int) []T {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(items) || limit <= 0 {
		return []T{}
	}
	end := skip + limit
	if end > len(items) {
		end = len(items)
	}
	return append([]T(nil), items[skip:end]...)
}

type walletRepo struct{ s *Store }

func (r walletRepo) Create(_ context.Context, w *domain.Wallet) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.ownerHasCurrencyLocked(w.OwnerID, w.Currency) {
		return storage.ErrDuplicate
	}
	w.ID = uint(r.s.walletSeq.Add(1))
	r.s.wallets[w.ID] = *w
	return nil
}

func (r walletRepo) GetByID(_ context.Context, id uint) (*domain.Wallet, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	w, ok := r.s.wallets[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &w, nil
}

func (r walletRepo) ListByOwner(_ context.Context, ownerID uint) ([]domain.Wallet, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.walletsByOwnerLocked(ownerID), nil
}

func (r walletRepo) CountByOwner(ctx context.Context, ownerID uint) (int64, error) {
	ws, _ := r.ListByOwner(ctx, ownerID)
	return int64(len(ws)), nil
}

func (r walletRepo) ExistsForOwnerCurrency(_ context.Context, ownerID uint, currency domain.Currency) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.ownerHasCurrencyLocked(ownerID, currency), nil
}

func (r walletRepo) UpdateBalance(ctx context.Context, id uint, newBalance int64, expectedVersion int64, at time.Time) error {
	return r.s.Atomic(ctx, func(tx storage.Store) error {
		return tx.Wallets().UpdateBalance(ctx, id, newBalance, expectedVersion, at)
	})
}

type txRepo struct{ s *Store }

func (r txRepo) Append(_ context.Context, t *domain.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t.ID = uint(r.s.txSeq.Add(1))
	r.s.txs = append(r.s.txs, *t)
	return nil
}

func (r txRepo) ListByWallet(_ context.Context, walletID uint, skip, limit int) ([]domain.Transaction, int64, error) {
	r.s.mu.RLock()
	matched := r.s.filterLocked(storage.TransactionFilter{WalletID: walletID})
	r.s.mu.RUnlock()
	newestFirst(matched)
	return page(matched, skip, limit), int64(len(matched)), nil
}

func (r txRepo) CountByWallet(_ context.Context, walletID uint) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return int64(len(r.s.filterLocked(storage.TransactionFilter{WalletID: walletID}))), nil
}

func (r txRepo) ListAll(_ context.Context, filter storage.TransactionFilter, skip, limit int) ([]domain.Transaction, int64, error) {
	r.s.mu.RLock()
	matched := r.s.filterLocked(filter)
	r.s.mu.RUnlock()
	newestFirst(matched)
	return page(matched, skip, limit), int64(len(matched)), nil
}

func (s *Store) filterLocked(f storage.TransactionFilter) []domain.Transaction {
	var out []domain.Transaction
	for _, t := range s.txs {
		if f.WalletID != 0 && t.WalletID != f.WalletID {
			continue
		}
		if f.Kind != "" && t.Kind != f.Kind {
			continue
		}
		out = append(out, t)
	}
	return out
}

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, u *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.Username == u.Username {
			return storage.ErrDuplicate
		}
	}
	u.ID = uint(r.s.userSeq.Add(1))
	if u.Role == "" {
		u.Role = "user"
	}
	r.s.users[u.ID] = *u
	return nil
}

func (r userRepo) GetByID(_ context.Context, id uint) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	u.Wallets = r.s.walletsByOwnerLocked(id)
	return &u, nil
}

func (r userRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, storage.ErrNotFound
}

// Delete removes the user, its wallets and their transactions in one critical section
func (r userRepo) Delete(_ context.Context, id uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return storage.ErrNotFound
	}
	owned := map[uint]bool{}
	for wid, w := range r.s.wallets {
		if w.OwnerID == id {
			owned[wid] = true
			delete(r.s.wallets, wid)
		}
	}
	kept := r.s.txs[:0]
	for _, t := range r.s.txs {
		if !owned[t.WalletID] {
			kept = append(kept, t)
		}
	}
	clear(r.s.txs[len(kept):])
	r.s.txs = kept
	delete(r.s.users, id)
	return nil
}

func (r userRepo) List(_ context.Context, skip, limit int) ([]domain.User, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	all := make([]domain.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		u.Wallets = r.s.walletsByOwnerLocked(u.ID)
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return page(all, skip, limit), int64(len(all)), nil
}
