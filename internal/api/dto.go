package api

import (
	"time"                          // Timestamps
	"wallet_ledger/internal/domain" // Importing domain models
)

// WalletResponse is the public view of a wallet
type WalletResponse struct {
	ID        uint            `json:"id"`         // Wallet ID
	OwnerID   uint            `json:"owner_id"`   // Owner (user) ID
	Currency  domain.Currency `json:"currency"`   // Wallet currency
	Balance   domain.Money    `json:"balance"`    // Current balance
	CreatedAt time.Time       `json:"created_at"` // Creation time
	UpdatedAt time.Time       `json:"updated_at"` // Last balance change
}

// TransactionResponse is the public view of a transaction
type TransactionResponse struct {
	ID        uint         `json:"id"`         // Transaction ID
	WalletID  uint         `json:"wallet_id"`  // Wallet the transaction belongs to
	Kind      domain.Kind  `json:"kind"`       // credit or debit
	Amount    domain.Money `json:"amount"`     // Amount applied to the wallet
	Source    domain.Money `json:"source"`     // Amount as requested
	Fee       domain.Money `json:"fee"`        // Conversion fee withheld
	CreatedAt time.Time    `json:"created_at"` // Commit time (UTC)
}

// NewWalletResponse maps a wallet to its public view
func NewWalletResponse(w domain.Wallet) WalletResponse {
	return WalletResponse{
		ID:        w.ID,
		OwnerID:   w.OwnerID,
		Currency:  w.Currency,
		Balance:   w.BalanceMoney(),
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

// NewWalletResponses maps a list of wallets
func NewWalletResponses(ws []domain.Wallet) []WalletResponse {
	out := make([]WalletResponse, len(ws))
	for i, w := range ws {
		out[i] = NewWalletResponse(w)
	}
	return out
}

// NewTransactionResponse maps a transaction to its public view
func NewTransactionResponse(t domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:        t.ID,
		WalletID:  t.WalletID,
		Kind:      t.Kind,
		Amount:    t.AmountMoney(),
		Source:    t.SourceMoney(),
		Fee:       t.FeeMoney(),
		CreatedAt: t.CreatedAt,
	}
}

// NewTransactionResponses maps a list of transactions
func NewTransactionResponses(txs []domain.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, len(txs))
	for i, t := range txs {
		out[i] = NewTransactionResponse(t)
	}
	return out
}
