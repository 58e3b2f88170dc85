// Package gormstore implements storage.Store on top of gorm (MySQL in production).
package gormstore

import (
	"context" // Request scoping
	"errors"  // Error matching
	"time"    // Timestamps

	"gorm.io/gorm"        // GORM ORM library
	"gorm.io/gorm/clause" // Row locking clauses

	"wallet_ledger/internal/domain"  // Domain models
	"wallet_ledger/internal/storage" // Storage contracts
)

// Store wraps a *gorm.DB. Inside Atomic it wraps the transaction handle and
// reads wallets with SELECT ... FOR UPDATE.
type Store struct {
	db        *gorm.DB // Connection or transaction handle
	forUpdate bool     // Lock wallet rows on read
}

// New wraps db. Open db with gorm.Config{TranslateError: true} so unique
// violations surface as storage.ErrDuplicate.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) Wallets() storage.WalletStore           { return walletRepo{s} }
func (s *Store) Transactions() storage.TransactionStore { return txRepo{s} }
func (s *Store) Users() storage.UserStore               { return userRepo{s} }

// Atomic runs fn inside a database transaction; returning an error rolls back
func (s *Store) Atomic(ctx context.Context, fn func(tx storage.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, forUpdate: true}) // Commit if nil, rollback otherwise
	})
}

// translate maps gorm errors onto storage sentinels
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return storage.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return storage.ErrDuplicate
	}
	return err
}

type walletRepo struct{ s *Store }

func (r walletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	return translate(r.s.db.WithContext(ctx).Create(w).Error)
}

func (r walletRepo) GetByID(ctx context.Context, id uint) (*domain.Wallet, error) {
	q := r.s.db.WithContext(ctx)
	if r.s.forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"}) // Hold the row until commit
	}
	var w domain.Wallet
	if err := q.First(&w, id).Error; err != nil {
		return nil, translate(err)
	}
	return &w, nil
}

func (r walletRepo) ListByOwner(ctx context.Context, ownerID uint) ([]domain.Wallet, error) {
	var ws []domain.Wallet
	err := r.s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("id asc").Find(&ws).Error
	return ws, translate(err)
}

func (r walletRepo) CountByOwner(ctx context.Context, ownerID uint) (int64, error) {
	var n int64
	err := r.s.db.WithContext(ctx).Model(&domain.Wallet{}).Where("owner_id = ?", ownerID).Count(&n).Error
	return n, translate(err)
}

func (r walletRepo) ExistsForOwnerCurrency(ctx context.Context, ownerID uint, currency domain.Currency) (bool, error) {
	var n int64
	err := r.s.db.WithContext(ctx).Model(&domain.Wallet{}).
		Where("owner_id = ? AND currency = ?", ownerID, currency).
		Count(&n).Error
	return n > 0, translate(err)
}

// UpdateBalance is a compare-and-set on the version column
func (r walletRepo) UpdateBalance(ctx context.Context, id uint, newBalance int64, expectedVersion int64, at time.Time) error {
	res := r.s.db.WithContext(ctx).Model(&domain.Wallet{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]any{
			"balance":    newBalance,               // New balance in minor units
			"version":    gorm.Expr("version + 1"), // Bump version
			"updated_at": at,                       // Commit time
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := r.s.db.WithContext(ctx).Model(&domain.Wallet{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return translate(err)
		}
		if n == 0 {
			return storage.ErrNotFound
		}
		return storage.ErrStaleVersion // Someone else committed first
	}
	return nil
}

type txRepo struct{ s *Store }

func (r txRepo) Append(ctx context.Context, t *domain.Transaction) error {
	return translate(r.s.db.WithContext(ctx).Create(t).Error)
}

// ListByWallet counts and pages inside one transaction so both see the same snapshot
func (r txRepo) ListByWallet(ctx context.Context, walletID uint, skip, limit int) ([]domain.Transaction, int64, error) {
	var (
		txs   []domain.Transaction
		total int64
	)
	err := r.s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Transaction{}).Where("wallet_id = ?", walletID).Count(&total).Error; err != nil {
			return err
		}
		if limit <= 0 {
			return nil // Count only
		}
		return tx.Where("wallet_id = ?", walletID).
			Order("created_at desc, id desc"). // Newest first, insertion order on ties
			Offset(skip).
			Limit(limit).
			Find(&txs).Error
	})
	if err != nil {
		return nil, 0, translate(err)
	}
	return txs, total, nil
}

func (r txRepo) CountByWallet(ctx context.Context, walletID uint) (int64, error) {
	var n int64
	err := r.s.db.WithContext(ctx).Model(&domain.Transaction{}).Where("wallet_id = ?", walletID).Count(&n).Error
	return n, translate(err)
}

func (r txRepo) ListAll(ctx context.Context, filter storage.TransactionFilter, skip, limit int) ([]domain.Transaction, int64, error) {
	query := r.s.db.WithContext(ctx).Model(&domain.Transaction{}) // Start building the query
	if filter.WalletID != 0 {
		query = query.Where("wallet_id = ?", filter.WalletID) // Filter by wallet
	}
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind) // Filter by kind
	}
	query = query.Session(&gorm.Session{}) // Reusable for count and page
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}
	var txs []domain.Transaction
	if err := query.Order("created_at desc, id desc").Offset(skip).Limit(limit).Find(&txs).Error; err != nil {
		return nil, 0, translate(err)
	}
	return txs, total, nil
}

type userRepo struct{ s *Store }

func (r userRepo) Create(ctx context.Context, u *domain.User) error {
	return translate(r.s.db.WithContext(ctx).Create(u).Error)
}

func orderedWallets(db *gorm.DB) *gorm.DB {
	return db.Order("id asc")
}

func (r userRepo) GetByID(ctx context.Context, id uint) (*domain.User, error) {
	var u domain.User
	if err := r.s.db.WithContext(ctx).Preload("Wallets", orderedWallets).First(&u, id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r userRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	var u domain.User
	if err := r.s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// Delete removes the user's transactions, wallets and the user row in one transaction
func (r userRepo) Delete(ctx context.Context, id uint) error {
	err := r.s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owned := tx.Model(&domain.Wallet{}).Select("id").Where("owner_id = ?", id) // Subquery of the user's wallets
		if err := tx.Where("wallet_id IN (?)", owned).Delete(&domain.Transaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("owner_id = ?", id).Delete(&domain.Wallet{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&domain.User{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return storage.ErrNotFound // Rolls back, nothing was deleted
		}
		return nil
	})
	return translate(err)
}

func (r userRepo) List(ctx context.Context, skip, limit int) ([]domain.User, int64, error) {
	var total int64
	if err := r.s.db.WithContext(ctx).Model(&domain.User{}).Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}
	var users []domain.User
	err := r.s.db.WithContext(ctx).
		Preload("Wallets", orderedWallets). // Each user's wallets
		Order("id asc").
		Offset(skip).
		Limit(limit).
		Find(&users).Error
	return users, total, translate(err)
}
