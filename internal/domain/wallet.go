package domain

import "time" // Timestamps

// MaxWalletsPerOwner caps how many wallets a single owner may hold
const MaxWalletsPerOwner = 3

// Wallet Model
type Wallet struct {
	ID        uint      `gorm:"primaryKey"`                                              // Primary key
	OwnerID   uint      `gorm:"not null;uniqueIndex:idx_owner_currency"`                 // Foreign key to User
	Currency  Currency  `gorm:"type:varchar(3);not null;uniqueIndex:idx_owner_currency"` // One wallet per owner and currency
	Balance   int64     `gorm:"not null;default:0"`                                      // Balance in minor units, never negative
	Version   int64     `gorm:"not null;default:0"`                                      // Bumped on every balance change
	CreatedAt time.Time                                                                  // Creation timestamp
	UpdatedAt time.Time                                                                  // Last balance change

	Transactions []Transaction `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"` // Transaction log, removed with the wallet
}

// BalanceMoney returns the balance tagged with the wallet currency
func (w Wallet) BalanceMoney() Money {
	return NewMoney(w.Balance, w.Currency)
}
