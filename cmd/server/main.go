package main

import (
	"context"                                  // context package is needed for Redis operations
	"wallet_ledger/internal/api"               // Custom package for API handlers
	"wallet_ledger/internal/config"            // Custom package for configuration
	"wallet_ledger/internal/db"                // Database connection
	"wallet_ledger/internal/exchange"          // Exchange rates and fees
	"wallet_ledger/internal/ledger"            // Wallet ledger
	"wallet_ledger/internal/lock"              // Per-wallet locks
	"wallet_ledger/internal/middleware"        // Custom package for middleware
	"wallet_ledger/internal/storage"           // Storage contracts
	"wallet_ledger/internal/storage/gormstore" // MySQL-backed store
	"wallet_ledger/internal/storage/memory"    // In-process store

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration

	// Setup logger
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cfg.IsProd {
		logrus.SetFormatter(&logrus.JSONFormatter{}) // Machine-readable logs in production
	}

	// Setup storage
	var store storage.Store
	switch cfg.StoreBackend {
	case config.StoreMemory:
		logrus.Warn("Using in-memory storage, data is lost on restart")
		store = memory.New()
	case config.StoreMySQL:
		conn, err := db.Open(cfg.DSN())
		if err != nil {
			logrus.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
		}
		store = gormstore.New(conn)
	default:
		logrus.Fatalf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	// Setup Redis client, optional
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr, // Redis server address
			Password: cfg.RedisPass, // Redis password
			DB:       cfg.RedisDB,   // Redis database number
		})
		// Test Redis connection
		if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
			logrus.Fatalf("failed to connect to Redis: %v", err)
		}
	}

	// Setup wallet locks
	var locks lock.Locker
	switch cfg.LockBackend {
	case config.LockMemory:
		locks = lock.NewKeyed()
	case config.LockRedis:
		if redisClient == nil {
			logrus.Fatal("LOCK_BACKEND=redis requires REDIS_ADDR")
		}
		locks = lock.NewRedis(redisClient, cfg.LockTTL)
	default:
		logrus.Fatalf("unknown LOCK_BACKEND %q", cfg.LockBackend)
	}

	engine := exchange.NewEngine(exchange.DefaultTable().WithFee(cfg.ConversionFee))
	l := ledger.New(store, engine, locks,
		ledger.WithMaxAttempts(cfg.MaxCommitRetries),
		ledger.WithLogger(logrus.StandardLogger()),
	)

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup Gin
	r := gin.New()                                                           // Gin router instance
	r.Use(gin.Recovery(), middleware.RequestLogger(logrus.StandardLogger())) // Recover panics, log requests

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	api.RegisterRoutes(r, api.Deps{
		Ledger:    l,             // Wallet operations
		Engine:    engine,        // Rates
		Store:     store,         // Users and admin listings
		Redis:     redisClient,   // Read cache
		CacheTTL:  cfg.CacheTTL,  // Cache lifetime
		JWTSecret: cfg.JWTSecret, // Token signing key
	})

	logrus.Info("Server running on " + cfg.AppPort) // Log server start
	if err := r.Run(":" + cfg.AppPort); err != nil { // Start the server on port cfg.AppPort
		logrus.Fatalf("server stopped: %v", err)
	}
}
