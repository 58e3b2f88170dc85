package config

import (
	"time" // Durations

	"github.com/joho/godotenv"      // For loading .env files
	"github.com/shopspring/decimal" // Fee parsing
	"github.com/sirupsen/logrus"    // Logrus for structured logging
	"github.com/spf13/viper"        // Defaults and environment lookup
)

// Storage backends
const (
	StoreMySQL  = "mysql"  // gorm + MySQL
	StoreMemory = "memory" // In-process, data lost on restart
)

// Lock backends
const (
	LockMemory = "memory" // Single instance
	LockRedis  = "redis"  // Shared across instances
)

// Config holds the application configuration
type Config struct {
	AppPort          string          // Application port
	DBUser           string          // Database user
	DBPassword       string          // Database password
	DBHost           string          // Database host
	DBPort           string          // Database port
	DBName           string          // Database name
	JWTSecret        string          // JWT secret key
	RedisAddr        string          // Redis server address, empty disables caching
	RedisPass        string          // Redis password
	RedisDB          int             // Redis database number
	IsProd           bool            // Is production environment
	StoreBackend     string          // mysql or memory
	LockBackend      string          // memory or redis
	CacheTTL         time.Duration   // Read cache lifetime
	LockTTL          time.Duration   // Redis lock lease
	ConversionFee    decimal.Decimal // Cross-currency fee fraction
	MaxCommitRetries int             // Attempts per transaction on version conflicts
}

// DSN builds the MySQL Data Source Name
func (c *Config) DSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true"
}

// LoadConfig loads configuration from .env and environment variables
func LoadConfig() *Config {
	_ = godotenv.Load() // Load .env file if present

	v := viper.New()
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("DB_HOST", "127.0.0.1")
	v.SetDefault("DB_PORT", "3306")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("IS_PROD", false)
	v.SetDefault("STORE_BACKEND", StoreMySQL)
	v.SetDefault("LOCK_BACKEND", LockMemory)
	v.SetDefault("CACHE_TTL", "60s")
	v.SetDefault("LOCK_TTL", "10s")
	v.SetDefault("CONVERSION_FEE", "0.02")
	v.SetDefault("MAX_COMMIT_RETRIES", 3)
	v.AutomaticEnv()

	cfg := &Config{
		AppPort:          v.GetString("APP_PORT"),        // Application port
		DBUser:           v.GetString("DB_USER"),         // Database user
		DBPassword:       v.GetString("DB_PASSWORD"),     // Database password
		DBHost:           v.GetString("DB_HOST"),         // Database host
		DBPort:           v.GetString("DB_PORT"),         // Database port
		DBName:           v.GetString("DB_NAME"),         // Database name
		JWTSecret:        v.GetString("JWT_SECRET"),      // JWT secret key
		RedisAddr:        v.GetString("REDIS_ADDR"),      // Redis server address
		RedisPass:        v.GetString("REDIS_PASS"),      // Redis password
		RedisDB:          v.GetInt("REDIS_DB"),           // Redis database number
		IsProd:           v.GetBool("IS_PROD"),           // Is production environment
		StoreBackend:     v.GetString("STORE_BACKEND"),   // Storage backend
		LockBackend:      v.GetString("LOCK_BACKEND"),    // Lock backend
		CacheTTL:         v.GetDuration("CACHE_TTL"),     // Read cache lifetime
		LockTTL:          v.GetDuration("LOCK_TTL"),      // Redis lock lease
		MaxCommitRetries: v.GetInt("MAX_COMMIT_RETRIES"), // Retry bound
	}

	fee, err := decimal.NewFromString(v.GetString("CONVERSION_FEE"))
	if err != nil || fee.IsNegative() || fee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		logrus.Warnf("invalid CONVERSION_FEE %q, using 0.02", v.GetString("CONVERSION_FEE"))
		fee = decimal.RequireFromString("0.02")
	}
	cfg.ConversionFee = fee

	if cfg.JWTSecret == "" {
		logrus.Warn("JWT_SECRET not set, tokens cannot be issued safely")
	}
	return cfg
}
