// Package storage defines the persistence contracts the ledger runs on.
// Implementations live in subpackages (memory, gormstore).
package storage

import (
	"context"
	"errors"
	"time"

	"wallet_ledger/internal/domain"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("record not found")
	// ErrStaleVersion is returned by a conditional update whose expected version no longer matches
	ErrStaleVersion = errors.New("stale version")
	// ErrDuplicate is returned when a unique constraint rejects a write
	ErrDuplicate = errors.New("duplicate record")
)

// WalletStore persists wallets
type WalletStore interface {
	Create(ctx context.Context, wallet *domain.Wallet) error
	GetByID(ctx context.Context, id uint) (*domain.Wallet, error)
	// ListByOwner returns the owner's wallets in creation order
	ListByOwner(ctx context.Context, ownerID uint) ([]domain.Wallet, error)
	CountByOwner(ctx context.Context, ownerID uint) (int64, error)
	ExistsForOwnerCurrency(ctx context.Context, ownerID uint, currency domain.Currency) (bool, error)
	// UpdateBalance sets the balance, stamps UpdatedAt with at and bumps the version
	// only if the stored version equals expectedVersion; otherwise it returns ErrStaleVersion.
	UpdateBalance(ctx context.Context, id uint, newBalance int64, expectedVersion int64, at time.Time) error
}

// TransactionFilter narrows ListAll
type TransactionFilter struct {
	WalletID uint        // 0 for any wallet
	Kind     domain.Kind // empty for any kind
}

// TransactionStore is the append-only transaction log
type TransactionStore interface {
	Append(ctx context.Context, tx *domain.Transaction) error
	// ListByWallet returns a page newest first, ties broken by insertion order (newest
	// insert first), and the wallet's total count read from the same snapshot
	ListByWallet(ctx context.Context, walletID uint, skip, limit int) ([]domain.Transaction, int64, error)
	CountByWallet(ctx context.Context, walletID uint) (int64, error)
	// ListAll pages over every transaction matching filter, newest first
	ListAll(ctx context.Context, filter TransactionFilter, skip, limit int) ([]domain.Transaction, int64, error)
}

// UserStore persists wallet owners
type UserStore interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uint) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	// List pages over users in id order
	List(ctx context.Context, skip, limit int) ([]domain.User, int64, error)
	// Delete removes the user together with its wallets and their transactions
	Delete(ctx context.Context, id uint) error
}

// Store groups the repositories and runs units of work
type Store interface {
	Wallets() WalletStore
	Transactions() TransactionStore
	Users() UserStore
	// Atomic runs fn against a Store bound to a single unit of work. Writes made
	// through it commit together when fn returns nil and are discarded otherwise.
	Atomic(ctx context.Context, fn func(tx Store) error) error
}
