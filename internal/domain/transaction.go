package domain

import (
	"errors" // Error values
	"fmt"    // Error formatting
	"time"   // Timestamps
)

// Kind is the direction of a transaction
type Kind string

// Transaction kinds
const (
	Credit Kind = "credit"
	Debit  Kind = "debit"
)

// ErrUnknownKind is returned when parsing an unsupported transaction kind
var ErrUnknownKind = errors.New("unknown transaction kind")

// ParseKind turns a string into a Kind, rejecting anything but credit and debit
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Valid reports whether k is credit or debit
func (k Kind) Valid() bool {
	return k == Credit || k == Debit
}

// Transaction Model. Rows are append-only.
type Transaction struct {
	ID             uint      `gorm:"primaryKey"`                                   // Primary key
	WalletID       uint      `gorm:"not null;index:idx_wallet_created,priority:1"` // Back-reference to Wallet
	Amount         int64     `gorm:"not null"`                                     // Effective amount in wallet minor units
	Currency       Currency  `gorm:"type:varchar(3);not null"`                     // Always the wallet currency
	Kind           Kind      `gorm:"type:varchar(6);not null"`                     // credit or debit
	SourceAmount   int64     `gorm:"not null"`                                     // Requested amount in minor units
	SourceCurrency Currency  `gorm:"type:varchar(3);not null"`                     // Requested currency
	Fee            int64     `gorm:"not null;default:0"`                           // Conversion fee in wallet minor units
	CreatedAt      time.Time `gorm:"index:idx_wallet_created,priority:2"`          // Commit timestamp (UTC)
}

// AmountMoney returns the effective amount in the wallet currency
func (t Transaction) AmountMoney() Money {
	return NewMoney(t.Amount, t.Currency)
}

// SourceMoney returns the amount as it was requested
func (t Transaction) SourceMoney() Money {
	return NewMoney(t.SourceAmount, t.SourceCurrency)
}

// FeeMoney returns the conversion fee in the wallet currency
func (t Transaction) FeeMoney() Money {
	return NewMoney(t.Fee, t.Currency)
}
