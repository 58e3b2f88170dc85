package api

import (
	"context"                           // Context for Redis operations
	"encoding/json"                     // Decimal numbers in requests
	"net/http"                          // HTTP status codes
	"strconv"                           // String conversion
	"time"                              // Cache TTLs
	"wallet_ledger/internal/domain"     // Importing domain models
	"wallet_ledger/internal/exchange"   // Conversion quotes
	"wallet_ledger/internal/ledger"     // Ledger engine
	"wallet_ledger/internal/middleware" // Authenticated owner lookup
	"wallet_ledger/internal/utils"      // Cache helpers

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
)

// Pagination limits for transaction history
const (
	DefaultLimit = 20  // Page size when none is given
	MaxLimit     = 100 // Largest accepted page size
)

// CreateWalletRequest represents a wallet creation request
type CreateWalletRequest struct {
	Currency string `json:"currency" binding:"required"` // USD, EUR or RUB
}

// TransactionRequest represents a credit or debit request
type TransactionRequest struct {
	Amount   json.Number `json:"amount" binding:"required"`   // Decimal amount, number or string
	Currency string      `json:"currency" binding:"required"` // Currency of Amount
	Kind     string      `json:"kind" binding:"required"`     // credit or debit
}

// walletIDParam parses the :id path parameter
func walletIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// pageParams reads skip and limit, falling back to defaults on bad input
func pageParams(c *gin.Context) (int, int) {
	skip := 0             // Default offset
	limit := DefaultLimit // Default page size
	if s := c.Query("skip"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			skip = v // Set skip if valid
		}
	}
	if l := c.Query("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = min(v, MaxLimit) // Clamp to the maximum page size
		}
	}
	return skip, limit
}

// CreateWalletHandler opens a new wallet for the authenticated user
func CreateWalletHandler(l *ledger.Ledger, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := middleware.UserID(c) // Get userID from context
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var req CreateWalletRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		currency, err := domain.ParseCurrency(req.Currency) // Reject unsupported currencies
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported currency"})
			return
		}
		wallet, err := l.CreateWallet(c.Request.Context(), userID, currency)
		if err != nil {
			respondError(c, err, logrus.Fields{"user_id": userID, "currency": currency})
			return
		}
		invalidateOwner(rdb, userID) // Invalidate wallet list and admin caches
		c.JSON(http.StatusCreated, gin.H{"message": "Wallet created", "wallet": NewWalletResponse(*wallet)})
	}
}

// walletsPage is the cached shape of GET /wallets
type walletsPage struct {
	Wallets []WalletResponse `json:"wallets"` // Wallets in creation order
	Count   int              `json:"count"`   // Number of wallets
}

// ListWalletsHandler returns the authenticated user's wallets
func ListWalletsHandler(l *ledger.Ledger, rdb *redis.Client, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := middleware.UserID(c) // Get userID from context
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		ctx := context.Background()                                            // Context for Redis operations
		gen, genErr := utils.Generation(ctx, rdb, utils.WalletsGenKey(userID)) // Read before the ledger
		cacheKey := utils.WalletsKey(userID, gen)                              // Cache key for the wallet list
		var cached walletsPage
		if genErr == nil {
			if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
				c.JSON(http.StatusOK, gin.H{"wallets": cached.Wallets, "count": cached.Count, "cached": true})
				return
			}
		}
		wallets, err := l.ListWallets(c.Request.Context(), userID) // Not cached, ask the ledger
		if err != nil {
			respondError(c, err, logrus.Fields{"user_id": userID})
			return
		}
		page := walletsPage{Wallets: NewWalletResponses(wallets), Count: len(wallets)}
		if genErr == nil {
			_ = utils.SetCache(ctx, rdb, cacheKey, page, ttl) // Cache the list
		}
		c.JSON(http.StatusOK, gin.H{"wallets": page.Wallets, "count": page.Count, "cached": false})
	}
}

// GetWalletHandler returns one wallet owned by the authenticated user
func GetWalletHandler(l *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := middleware.UserID(c) // Get userID from context
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		walletID, ok := walletIDParam(c)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": msgWalletNotFound}) // Malformed ids look like missing ones
			return
		}
		wallet, err := l.GetWallet(c.Request.Context(), userID, walletID)
		if err != nil {
			respondError(c, err, logrus.Fields{"user_id": userID, "wallet_id": walletID})
			return
		}
		c.JSON(http.StatusOK, gin.H{"wallet": NewWalletResponse(*wallet)})
	}
}

// parseTransactionRequest turns the request body into ledger inputs
func parseTransactionRequest(req TransactionRequest) (domain.Money, domain.Kind, error) {
	kind, err := domain.ParseKind(req.Kind)
	if err != nil {
		return domain.Money{}, "", ledger.ErrInvalidKind
	}
	currency, err := domain.ParseCurrency(req.Currency)
	if err != nil {
		return domain.Money{}, "", ledger.ErrUnsupportedCurrency
	}
	amount, err := domain.ParseMoney(req.Amount.String(), currency)
	if err != nil {
		return domain.Money{}, "", ledger.ErrInvalidAmount
	}
	return amount, kind, nil
}

// PostTransactionHandler credits or debits one of the authenticated user's wallets
func PostTransactionHandler(l *ledger.Ledger, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := middleware.UserID(c) // Get userID from context
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		walletID, ok := walletIDParam(c)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": msgWalletNotFound})
			return
		}
		var req TransactionRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		amount, kind, err := parseTransactionRequest(req)
		if err != nil {
			respondError(c, err, nil)
			return
		}
		tx, err := l.PostTransaction(c.Request.Context(), userID, walletID, amount, kind)
		if err != nil {
			respondError(c, err, logrus.Fields{"user_id": userID, "wallet_id": walletID, "kind": kind})
			return
		}
		invalidateOwner(rdb, userID, walletID) // Balance and history changed
		c.JSON(http.StatusCreated, gin.H{"message": "Transaction posted", "transaction": NewTransactionResponse(*tx)})
	}
}

// historyPage is the cached shape of one transaction history page
type historyPage struct {
	Transactions []TransactionResponse `json:"transactions"` // Newest first
	Total        int64                 `json:"total"`        // Transactions in the wallet
}

// ListTransactionsHandler pages through a wallet's transactions, newest first
func ListTransactionsHandler(l *ledger.Ledger, rdb *redis.Client, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := middleware.UserID(c) // Get userID from context
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		walletID, ok := walletIDParam(c)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": msgWalletNotFound})
			return
		}
		skip, limit := pageParams(c)
		fields := logrus.Fields{"user_id": userID, "wallet_id": walletID}

		// Ownership is checked on every request, cached or not
		wallet, err := l.GetWallet(c.Request.Context(), userID, walletID)
		if err != nil {
			respondError(c, err, fields)
			return
		}
		ctx := context.Background()                              // Context for Redis operations
		cacheKey := utils.HistoryKey(walletID)                   // Hash of cached pages
		field := utils.HistoryField(wallet.Version, skip, limit) // This page as of the version just read
		var cached historyPage
		if found, err := utils.GetCacheField(ctx, rdb, cacheKey, field, &cached); err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"transactions": cached.Transactions, // Cached transactions
				"skip":         skip,                // Offset
				"limit":        limit,               // Page size
				"total":        cached.Total,        // Total transactions
				"cached":       true,                // From cache
			})
			return
		}
		txs, total, err := l.ListTransactions(c.Request.Context(), userID, walletID, skip, limit)
		if err != nil {
			respondError(c, err, fields)
			return
		}
		page := historyPage{Transactions: NewTransactionResponses(txs), Total: total}
		_ = utils.SetCacheField(ctx, rdb, cacheKey, field, page, ttl) // Cache this page
		c.JSON(http.StatusOK, gin.H{
			"transactions": page.Transactions, // List of transactions
			"skip":         skip,              // Offset
			"limit":        limit,             // Page size
			"total":        total,             // Total transactions
			"cached":       false,             // Not from cache
		})
	}
}

// QuoteHandler previews what a request would apply to a wallet, without posting it
func QuoteHandler(l *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := middleware.UserID(c) // Get userID from context
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		walletID, ok := walletIDParam(c)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": msgWalletNotFound})
			return
		}
		currency, err := domain.ParseCurrency(c.Query("currency"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported currency"})
			return
		}
		amount, err := domain.ParseMoney(c.Query("amount"), currency)
		if err != nil || !amount.IsPositive() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount"})
			return
		}
		quote, err := l.Quote(c.Request.Context(), userID, walletID, amount)
		if err != nil {
			respondError(c, err, logrus.Fields{"user_id": userID, "wallet_id": walletID})
			return
		}
		c.JSON(http.StatusOK, gin.H{"quote": quote})
	}
}

// invalidateOwner makes the next reads of an owner's wallets, the given wallets'
// history and the admin listings miss the cache
func invalidateOwner(rdb *redis.Client, ownerID uint, walletIDs ...uint) {
	ctx := context.Background() // Context for Redis operations
	if err := utils.BumpGeneration(ctx, rdb, utils.WalletsGenKey(ownerID), utils.AdminGenKey); err != nil {
		logrus.WithFields(logrus.Fields{
			"owner_id": ownerID,     // Owner
			"error":    err.Error(), // Error message
		}).Warn("Failed to invalidate cache")
	}
	keys := make([]string, len(walletIDs))
	for i, id := range walletIDs {
		keys[i] = utils.HistoryKey(id) // Old pages are unreachable, free them
	}
	if len(keys) > 0 {
		_ = utils.DeleteCache(ctx, rdb, keys...)
	}
}

// RatesHandler lists the configured exchange rates and conversion fee
func RatesHandler(engine *exchange.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		table := engine.Table()
		c.JSON(http.StatusOK, gin.H{"rates": table.Rates(), "fee": table.Fee()})
	}
}
