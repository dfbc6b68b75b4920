// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the database (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	// External collaborators
	OracleURL       string // Market/balance oracle microservice
	RPCURL          string // Execution chain RPC endpoint (taker side)
	ChainID         int64
	ProtocolAddress string // Limit-order protocol contract

	// Credentials
	MakerSignerKey string // Hex private key the engine signs orders with (required)
	TakerKey       string // Hex private key the taker submits fills with

	// Monitoring engine
	TickInterval   time.Duration // How often the monitor wakes
	PolicyWindow   time.Duration // Minimum elapsed time before acting again per enrollment
	OrderTTL       time.Duration // Order expiration horizon
	FeeNumerator   int64         // takingAmount = makingAmount * FeeNumerator / FeeDenominator
	FeeDenominator int64

	// Timeouts for slow external calls
	OracleTimeout time.Duration
	SubmitTimeout time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("ZEN_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		OracleURL:       getEnv("ORACLE_URL", "http://localhost:9100"),
		RPCURL:          getEnv("RPC_URL", ""),
		ChainID:         int64(getEnvAsInt("CHAIN_ID", 8453)), // Base mainnet
		ProtocolAddress: getEnv("PROTOCOL_ADDRESS", ""),

		MakerSignerKey: getEnv("MAKER_SIGNER_KEY", ""),
		TakerKey:       getEnv("TAKER_KEY", ""),

		TickInterval:   getEnvAsDuration("MONITOR_TICK_INTERVAL", 30*time.Second),
		PolicyWindow:   getEnvAsDuration("POLICY_MIN_INTERVAL", 5*time.Minute),
		OrderTTL:       getEnvAsDuration("ORDER_TTL", 24*time.Hour),
		FeeNumerator:   int64(getEnvAsInt("FEE_NUMERATOR", 100)),
		FeeDenominator: int64(getEnvAsInt("FEE_DENOMINATOR", 99)),

		OracleTimeout: getEnvAsDuration("ORACLE_TIMEOUT", 30*time.Second),
		SubmitTimeout: getEnvAsDuration("SUBMIT_TIMEOUT", 90*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present.
// A missing signer credential is fatal: the process must not start
// monitoring without the ability to sign the orders it builds.
func (c *Config) Validate() error {
	if c.MakerSignerKey == "" {
		return fmt.Errorf("MAKER_SIGNER_KEY is required")
	}
	if c.FeeDenominator <= 0 {
		return fmt.Errorf("FEE_DENOMINATOR must be positive, got %d", c.FeeDenominator)
	}
	if c.FeeNumerator < c.FeeDenominator {
		return fmt.Errorf("fee ratio %d/%d would make takingAmount less than makingAmount",
			c.FeeNumerator, c.FeeDenominator)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("MONITOR_TICK_INTERVAL must be positive")
	}
	if c.OrderTTL <= 0 {
		return fmt.Errorf("ORDER_TTL must be positive")
	}
	return nil
}

// DatabasePath returns the SQLite database location under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "zenmode.db")
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
