package ledger

import (
	"context"
	"errors"
	"fmt"

	"wallet_ledger/internal/exchange"
)

// Error kinds surfaced to callers. Match with errors.Is.
var (
	ErrWalletLimitExceeded     = errors.New("wallet limit exceeded")
	ErrDuplicateCurrencyWallet = errors.New("wallet for this currency already exists")
	ErrWalletNotFound          = errors.New("wallet not found")
	ErrAccessDenied            = errors.New("access denied")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrUnsupportedConversion   = exchange.ErrUnsupportedConversion
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrUnsupportedCurrency     = errors.New("unsupported currency")
	ErrInvalidKind             = errors.New("invalid transaction kind")
	ErrStorageFailure          = errors.New("storage failure")
)

var kinds = []error{
	ErrWalletLimitExceeded,
	ErrDuplicateCurrencyWallet,
	ErrWalletNotFound,
	ErrAccessDenied,
	ErrInsufficientBalance,
	ErrUnsupportedConversion,
	ErrInvalidAmount,
	ErrUnsupportedCurrency,
	ErrInvalidKind,
	ErrStorageFailure,
}

// storageFailure tags err as ErrStorageFailure while keeping the cause matchable
func storageFailure(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrStorageFailure, err))
}

// classify leaves ledger kinds and context errors alone and tags anything else as a storage failure
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return err
		}
	}
	return storageFailure(op, err)
}
