package api

import (
	"context"                       // Context errors
	"errors"                        // Error matching
	"net/http"                      // HTTP status codes
	"wallet_ledger/internal/ledger" // Ledger error kinds

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logrus for structured logging
)

// msgWalletNotFound is shared by missing and foreign wallets so callers cannot probe ids
const msgWalletNotFound = "Wallet not found"

// statusFor maps a ledger error kind to an HTTP status and public message
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrWalletNotFound), errors.Is(err, ledger.ErrAccessDenied):
		return http.StatusNotFound, msgWalletNotFound
	case errors.Is(err, ledger.ErrDuplicateCurrencyWallet):
		return http.StatusConflict, "Wallet for this currency already exists"
	case errors.Is(err, ledger.ErrWalletLimitExceeded):
		return http.StatusBadRequest, "Wallet limit reached"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusBadRequest, "Insufficient balance"
	case errors.Is(err, ledger.ErrUnsupportedConversion):
		return http.StatusBadRequest, "Unsupported currency conversion"
	case errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest, "Invalid amount"
	case errors.Is(err, ledger.ErrUnsupportedCurrency):
		return http.StatusBadRequest, "Unsupported currency"
	case errors.Is(err, ledger.ErrInvalidKind):
		return http.StatusBadRequest, "Invalid transaction kind"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Request timed out"
	}
	return http.StatusInternalServerError, "Internal error"
}

// respondError writes the mapped error and logs anything that is not a client mistake
func respondError(c *gin.Context, err error, fields logrus.Fields) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		logrus.WithFields(fields).WithField("error", err.Error()).Error("Ledger operation failed")
	}
	c.JSON(status, gin.H{"error": msg})
}
