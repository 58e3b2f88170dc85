package memory

import (
	"context"
	"sort"
	"time"

	"wallet_ledger/internal/domain"
	"wallet_ledger/internal/storage"
)

type balanceWrite struct {
	balance  int64
	expected int64 // committed version the write was based on
	at       time.Time
}

// unit buffers writes until Store.commit. Wallet reads see the unit's own
// writes; transaction reads only see committed rows.
type unit struct {
	base     *Store
	created  []*domain.Wallet
	balances map[uint]balanceWrite
	appended []*domain.Transaction
}

func (u *unit) Wallets() storage.WalletStore           { return stagedWallets{u} }
func (u *unit) Transactions() storage.TransactionStore { return stagedTxs{u} }
func (u *unit) Users() storage.UserStore               { return userRepo{u.base} }

// Atomic on an open unit joins it
func (u *unit) Atomic(_ context.Context, fn func(tx storage.Store) error) error {
	return fn(u)
}

func (u *unit) createdByID(id uint) *domain.Wallet {
	for _, w := range u.created {
		if w.ID == id {
			return w
		}
	}
	return nil
}

func (u *unit) overlay(w domain.Wallet) domain.Wallet {
	if bw, ok := u.balances[w.ID]; ok {
		w.Balance = bw.balance
		w.Version = bw.expected + 1
		w.UpdatedAt = bw.at
	}
	return w
}

type stagedWallets struct{ u *unit }

func (r stagedWallets) Create(ctx context.Context, w *domain.Wallet) error {
	exists, _ := r.ExistsForOwnerCurrency(ctx, w.OwnerID, w.Currency)
	if exists {
		return storage.ErrDuplicate
	}
	w.ID = uint(r.u.base.walletSeq.Add(1))
	c := *w
	r.u.created = append(r.u.created, &c)
	return nil
}

func (r stagedWallets) GetByID(ctx context.Context, id uint) (*domain.Wallet, error) {
	if w := r.u.createdByID(id); w != nil {
		c := *w
		return &c, nil
	}
	w, err := walletRepo{r.u.base}.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	o := r.u.overlay(*w)
	return &o, nil
}

func (r stagedWallets) ListByOwner(ctx context.Context, ownerID uint) ([]domain.Wallet, error) {
	committed, _ := walletRepo{r.u.base}.ListByOwner(ctx, ownerID)
	out := make([]domain.Wallet, 0, len(committed)+len(r.u.created))
	for _, w := range committed {
		out = append(out, r.u.overlay(w))
	}
	for _, w := range r.u.created {
		if w.OwnerID == ownerID {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r stagedWallets) CountByOwner(ctx context.Context, ownerID uint) (int64, error) {
	ws, _ := r.ListByOwner(ctx, ownerID)
	return int64(len(ws)), nil
}

func (r stagedWallets) ExistsForOwnerCurrency(ctx context.Context, ownerID uint, currency domain.Currency) (bool, error) {
	for _, w := range r.u.created {
		if w.OwnerID == ownerID && w.Currency == currency {
			return true, nil
		}
	}
	return walletRepo{r.u.base}.ExistsForOwnerCurrency(ctx, ownerID, currency)
}

func (r stagedWallets) UpdateBalance(ctx context.Context, id uint, newBalance int64, expectedVersion int64, at time.Time) error {
	if w := r.u.createdByID(id); w != nil {
		if w.Version != expectedVersion {
			return storage.ErrStaleVersion
		}
		w.Balance = newBalance
		w.Version++
		w.UpdatedAt = at
		return nil
	}
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return storage.ErrStaleVersion
	}
	base := expectedVersion
	if bw, ok := r.u.balances[id]; ok {
		base = bw.expected
	}
	r.u.balances[id] = balanceWrite{balance: newBalance, expected: base, at: at}
	return nil
}

type stagedTxs struct{ u *unit }

func (r stagedTxs) Append(_ context.Context, t *domain.Transaction) error {
	t.ID = uint(r.u.base.txSeq.Add(1))
	c := *t
	r.u.appended = append(r.u.appended, &c)
	return nil
}

func (r stagedTxs) ListByWallet(ctx context.Context, walletID uint, skip, limit int) ([]domain.Transaction, int64, error) {
	return txRepo{r.u.base}.ListByWallet(ctx, walletID, skip, limit)
}

func (r stagedTxs) CountByWallet(ctx context.Context, walletID uint) (int64, error) {
	return txRepo{r.u.base}.CountByWallet(ctx, walletID)
}

func (r stagedTxs) ListAll(ctx context.Context, filter storage.TransactionFilter, skip, limit int) ([]domain.Transaction, int64, error) {
	return txRepo{r.u.base}.ListAll(ctx, filter, skip, limit)
}
