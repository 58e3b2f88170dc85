package api

import (
	"context"                           // Context for Redis operations
	"errors"                            // Error matching
	"net/http"                          // HTTP status codes
	"strconv"                           // String conversion
	"strings"                           // String manipulation
	"time"                              // Time durations
	"wallet_ledger/internal/domain"     // Importing domain models
	"wallet_ledger/internal/middleware" // Authenticated user lookup
	"wallet_ledger/internal/storage"    // Admin queries and deletion
	"wallet_ledger/internal/utils"      // Utility functions

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
)

// UserAdminResponse represents the user data returned to admin
type UserAdminResponse struct {
	ID       uint             `json:"id"`       // User ID
	Username string           `json:"username"` // Username
	Role     string           `json:"role"`     // User role
	Wallets  []WalletResponse `json:"wallets"`  // Owned wallets
}

// adminPage is the cached shape of admin listings
type adminPage[T any] struct {
	Items      []T   `json:"items"`       // Page content
	Page       int   `json:"page"`        // Current page
	PageSize   int   `json:"page_size"`   // Page size
	Total      int64 `json:"total"`       // Total matching rows
	TotalPages int   `json:"total_pages"` // Total pages
}

// adminPaging reads page and page_size the way every admin listing does
func adminPaging(c *gin.Context) (page, pageSize int) {
	page = 1      // Default page number
	pageSize = 20 // Default page size
	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v // Set page if valid
		}
	}
	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= MaxLimit {
			pageSize = v // Set page size
		}
	}
	return page, pageSize
}

// adminCacheKey builds a listing key tied to the current admin generation.
// It reports false when the generation cannot be read and the cache must be skipped.
func adminCacheKey(ctx context.Context, rdb *redis.Client, listing string, parts ...string) (string, bool) {
	gen, err := utils.Generation(ctx, rdb, utils.AdminGenKey)
	if err != nil {
		return "", false
	}
	return "admin:" + listing + ":gen=" + strconv.FormatInt(gen, 10) + ":" + strings.Join(parts, ":"), true
}

// lookup reports whether key held a cached page, decoding it into dest
func lookup(ctx context.Context, rdb *redis.Client, key string, dest any) bool {
	found, err := utils.GetCache(ctx, rdb, key, dest)
	return err == nil && found
}

func totalPages(total int64, pageSize int) int {
	return (int(total) + pageSize - 1) / pageSize
}

// ListUsersHandler returns all users with their wallets
func ListUsersHandler(users storage.UserStore, rdb *redis.Client, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.Background() // Use background context for Redis
		page, pageSize := adminPaging(c)
		cacheKey, cacheable := adminCacheKey(ctx, rdb, "users", "page="+strconv.Itoa(page), "size="+strconv.Itoa(pageSize))
		var cached adminPage[UserAdminResponse]
		if cacheable && lookup(ctx, rdb, cacheKey, &cached) {
			c.JSON(http.StatusOK, gin.H{
				"users":       cached.Items,      // List of users
				"page":        cached.Page,       // Current page
				"page_size":   cached.PageSize,   // Page size
				"total":       cached.Total,      // Total number of users
				"total_pages": cached.TotalPages, // Total pages
				"cached":      true,              // Indicate response is from cache
			})
			return
		}
		list, total, err := users.List(c.Request.Context(), (page-1)*pageSize, pageSize)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
			return
		}
		resp := make([]UserAdminResponse, len(list))
		for i, u := range list {
			resp[i] = UserAdminResponse{
				ID:       u.ID,                          // User ID
				Username: u.Username,                    // Username
				Role:     u.Role,                        // User role
				Wallets:  NewWalletResponses(u.Wallets), // Owned wallets
			}
		}
		data := adminPage[UserAdminResponse]{Items: resp, Page: page, PageSize: pageSize, Total: total, TotalPages: totalPages(total, pageSize)}
		if cacheable {
			_ = utils.SetCache(ctx, rdb, cacheKey, data, ttl) // Cache the response for future requests
		}
		c.JSON(http.StatusOK, gin.H{
			"users":       data.Items,      // List of users
			"page":        data.Page,       // Current page
			"page_size":   data.PageSize,   // Page size
			"total":       data.Total,      // Total number of users
			"total_pages": data.TotalPages, // Total pages
			"cached":      false,           // Indicate response is not from cache
		})
	}
}

// ListAllTransactionsHandler returns every transaction, optionally filtered by wallet or kind
func ListAllTransactionsHandler(txs storage.TransactionStore, rdb *redis.Client, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.Background()
		var filter storage.TransactionFilter
		if w := c.Query("wallet_id"); w != "" {
			id, err := strconv.ParseUint(w, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet_id"})
				return
			}
			filter.WalletID = uint(id) // Filter by wallet
		}
		if k := c.Query("kind"); k != "" {
			kind, err := domain.ParseKind(k)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid kind"})
				return
			}
			filter.Kind = kind // Filter by kind
		}
		page, pageSize := adminPaging(c)

		// Build cache key from all query params
		var keyParts []string
		for _, k := range []string{"wallet_id", "kind"} {
			keyParts = append(keyParts, k+"="+c.Query(k))
		}
		keyParts = append(keyParts, "page="+strconv.Itoa(page), "size="+strconv.Itoa(pageSize))
		cacheKey, cacheable := adminCacheKey(ctx, rdb, "txs", keyParts...)

		var cached adminPage[TransactionResponse]
		if cacheable && lookup(ctx, rdb, cacheKey, &cached) {
			c.JSON(http.StatusOK, gin.H{
				"transactions": cached.Items,      // List of transactions
				"page":         cached.Page,       // Current page
				"page_size":    cached.PageSize,   // Page size
				"total":        cached.Total,      // Total number of transactions
				"total_pages":  cached.TotalPages, // Total pages
				"cached":       true,              // Indicate response is from cache
			})
			return
		}
		list, total, err := txs.ListAll(c.Request.Context(), filter, (page-1)*pageSize, pageSize)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch transactions"})
			return
		}
		data := adminPage[TransactionResponse]{
			Items:      NewTransactionResponses(list),
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages(total, pageSize),
		}
		if cacheable {
			_ = utils.SetCache(ctx, rdb, cacheKey, data, ttl) // Cache the response for future requests
		}
		c.JSON(http.StatusOK, gin.H{
			"transactions": data.Items,      // List of transactions
			"page":         data.Page,       // Current page
			"page_size":    data.PageSize,   // Page size
			"total":        data.Total,      // Total number of transactions
			"total_pages":  data.TotalPages, // Total pages
			"cached":       false,           // Indicate response is not from cache
		})
	}
}

// deleteUser removes a user with its wallets and their transactions, then drops their cached reads
func deleteUser(c *gin.Context, users storage.UserStore, rdb *redis.Client, id uint) {
	user, err := users.GetByID(c.Request.Context(), id) // Load wallets for cache cleanup
	if err == nil {
		err = users.Delete(c.Request.Context(), id)
	}
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id": id,          // User ID
			"error":   err.Error(), // Error message
		}).Error("Failed to delete user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
		return
	}
	walletIDs := make([]uint, len(user.Wallets))
	for i, w := range user.Wallets {
		walletIDs[i] = w.ID
	}
	invalidateOwner(rdb, id, walletIDs...)
	logrus.WithFields(logrus.Fields{
		"user_id": id,             // User ID
		"wallets": len(walletIDs), // Wallets removed with the user
	}).Info("User deleted")
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

// DeleteUserHandler lets an admin delete another user
func DeleteUserHandler(users storage.UserStore, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		adminID, _ := middleware.UserID(c) // Set by JWT middleware
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil || id == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		if uint(id) == adminID {
			c.JSON(http.StatusForbidden, gin.H{"error": "Admins are not allowed to delete themselves"})
			return
		}
		deleteUser(c, users, rdb, uint(id))
	}
}
