package api

import (
	"time"                              // Cache TTLs
	"wallet_ledger/internal/exchange"   // Conversion engine
	"wallet_ledger/internal/ledger"     // Ledger engine
	"wallet_ledger/internal/middleware" // Custom middleware
	"wallet_ledger/internal/storage"    // Storage contracts

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client, nil disables caching
)

// Deps are the collaborators the HTTP surface needs
type Deps struct {
	Ledger    *ledger.Ledger   // Wallet and transaction operations
	Engine    *exchange.Engine // Rates for GET /rates
	Store     storage.Store    // Users and admin listings
	Redis     *redis.Client    // Optional read cache
	CacheTTL  time.Duration    // Read cache lifetime
	JWTSecret string           // Token signing key
}

// RegisterRoutes mounts every endpoint on r
func RegisterRoutes(r *gin.Engine, d Deps) {
	// Auth routes
	r.POST("/user", RegisterHandler(d.Store.Users(), d.Redis)) // Registration endpoint
	r.GET("/user", LoginHandler(d.Store.Users(), d.JWTSecret)) // Login endpoint
	r.GET("/rates", RatesHandler(d.Engine))                    // Exchange rates endpoint

	// Account removal (protected by JWT)
	r.DELETE("/user", middleware.JWTAuthMiddleware(d.JWTSecret), DeleteMeHandler(d.Store.Users(), d.Redis))

	// Wallet routes (protected by JWT)
	wallets := r.Group("/wallets")
	wallets.Use(middleware.JWTAuthMiddleware(d.JWTSecret))
	wallets.POST("", CreateWalletHandler(d.Ledger, d.Redis))                                 // Create wallet
	wallets.GET("", ListWalletsHandler(d.Ledger, d.Redis, d.CacheTTL))                       // List wallets
	wallets.GET("/:id", GetWalletHandler(d.Ledger))                                          // Get wallet
	wallets.GET("/:id/quote", QuoteHandler(d.Ledger))                                        // Preview a conversion
	wallets.POST("/:id/transactions", PostTransactionHandler(d.Ledger, d.Redis))             // Post transaction
	wallets.GET("/:id/transactions", ListTransactionsHandler(d.Ledger, d.Redis, d.CacheTTL)) // Transaction history

	// Admin routes (protected, admin only)
	admin := r.Group("/admin")
	admin.Use(middleware.JWTAuthMiddleware(d.JWTSecret), middleware.AdminOnlyMiddleware(d.Store.Users()))
	admin.GET("/users", ListUsersHandler(d.Store.Users(), d.Redis, d.CacheTTL))                         // List users
	admin.GET("/transactions", ListAllTransactionsHandler(d.Store.Transactions(), d.Redis, d.CacheTTL)) // List transactions
	admin.DELETE("/users/:id", DeleteUserHandler(d.Store.Users(), d.Redis))                             // Delete a user and its wallets
}
