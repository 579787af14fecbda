// Package config loads application configuration from environment
// variables and an optional .env file, using Viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the server and CLI tools.
// Values are loaded from environment variables.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`

	// Chain access
	RPCURL           string `mapstructure:"RPC_URL"`
	WSURL            string `mapstructure:"WS_URL"`
	MulticallAddress string `mapstructure:"MULTICALL_ADDRESS"`

	// Contract addresses
	USDCContract string `mapstructure:"USDC_CONTRACT"`
	LoanContract string `mapstructure:"LOAN_CONTRACT"`

	// SignerAddress is the node-managed account used for server-side
	// transactions (deposits, locks).
	SignerAddress string `mapstructure:"SIGNER_ADDRESS"`

	// Storage
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	ClickHouseDSN string `mapstructure:"CLICKHOUSE_DSN"`
	RedisURL      string `mapstructure:"REDIS_URL"`
	UseMemory     bool   `mapstructure:"USE_MEMORY"`

	// PoolSnapshotIntervalSec is the cadence of the pool balance
	// sampling loop. Zero disables the loop.
	PoolSnapshotIntervalSec int `mapstructure:"POOL_SNAPSHOT_INTERVAL_SEC"`

	// MetadataCacheTTLHours bounds cached metadata retention.
	MetadataCacheTTLHours int `mapstructure:"METADATA_CACHE_TTL_HOURS"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
}

// Load reads configuration from environment variables and an optional
// .env file in path.
func Load(path string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName(".env")
	v.SetConfigType("env")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("RPC_URL", "http://localhost:8545")
	v.SetDefault("POOL_SNAPSHOT_INTERVAL_SEC", 60)
	v.SetDefault("METADATA_CACHE_TTL_HOURS", 24)
	v.SetDefault("LOG_LEVEL", "info")

	for _, key := range []string{
		"SERVER_PORT", "RPC_URL", "WS_URL", "MULTICALL_ADDRESS",
		"USDC_CONTRACT", "LOAN_CONTRACT", "SIGNER_ADDRESS",
		"DATABASE_URL", "CLICKHOUSE_DSN", "REDIS_URL", "USE_MEMORY",
		"POOL_SNAPSHOT_INTERVAL_SEC", "METADATA_CACHE_TTL_HOURS",
		"LOG_LEVEL",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.RPCURL = strings.TrimSpace(cfg.RPCURL)
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)

	return cfg, nil
}

// Validate checks required settings for server mode.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}
	if c.USDCContract == "" {
		return fmt.Errorf("USDC_CONTRACT is required")
	}
	if c.LoanContract == "" {
		return fmt.Errorf("LOAN_CONTRACT is required")
	}
	if !c.UseMemory && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required unless USE_MEMORY is set")
	}
	return nil
}
