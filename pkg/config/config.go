// Copyright 2025 Certen Protocol
//
// Package config loads the chain coordinator's runtime configuration
// from environment variables (database DSNs, listen addresses, event
// bus and stall-monitor tuning) and, separately, its epoch table from a
// YAML file (epochs.go).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration for the coordinatord service.
type Config struct {
	// SortitionDSN, BurnchainDSN, and HostChainDSN are the Postgres
	// connection strings for the three stores the coordinator drives.
	// They may point at the same database with different schemas or at
	// three separate databases.
	SortitionDSN string
	BurnchainDSN string
	HostChainDSN string

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxIdleTime time.Duration
	DBConnMaxLifetime time.Duration

	// EpochConfigPath is the path to the YAML file describing the
	// reward-cycle epoch table (§4.2, rewardcycle.Table).
	EpochConfigPath string

	// NumRewardSlots is the fixed reward-set slot count used when no
	// richer RewardSetProvider is wired (§4.2 Reward-set derivation).
	NumRewardSlots uint64

	// IBDHeightThreshold is how far behind the burnchain canonical tip
	// the sortition tip may trail before the reorg engine resumes
	// running on every burn block (§9 initial block download guard). 0
	// disables the short-circuit.
	IBDHeightThreshold uint64

	// AttachmentBufferSize bounds the event bus's attachment-forwarding
	// channel; 0 disables attachment forwarding entirely (§5 Shared
	// resource policy, §6).
	AttachmentBufferSize int

	// StallThreshold and StallCheckInterval tune the coordinator's
	// StallMonitor (§5, §9).
	StallThreshold     time.Duration
	StallCheckInterval time.Duration

	// MetricsAddr and HealthAddr are the listen addresses for the
	// Prometheus /metrics endpoint and the JSON health endpoint.
	MetricsAddr string
	HealthAddr  string

	LogLevel string
}

// Load reads configuration from environment variables, applying the
// same safe-default-for-ops, no-default-for-secrets convention the
// rest of the stack uses.
func Load() (*Config, error) {
	cfg := &Config{
		SortitionDSN: getEnv("SORTITION_DB_DSN", ""),
		BurnchainDSN: getEnv("BURNCHAIN_DB_DSN", ""),
		HostChainDSN: getEnv("HOSTCHAIN_DB_DSN", ""),

		DBMaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		DBConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),

		EpochConfigPath: getEnv("EPOCH_CONFIG_PATH", "./epochs.yaml"),
		NumRewardSlots:  uint64(getEnvInt("NUM_REWARD_SLOTS", 4000)),

		IBDHeightThreshold: uint64(getEnvInt("IBD_HEIGHT_THRESHOLD", 144)),

		AttachmentBufferSize: getEnvInt("ATTACHMENT_BUFFER_SIZE", 256),

		StallThreshold:     getEnvDuration("STALL_THRESHOLD", 2*time.Minute),
		StallCheckInterval: getEnvDuration("STALL_CHECK_INTERVAL", 10*time.Second),

		MetricsAddr: getEnv("METRICS_ADDR", "0.0.0.0:9090"),
		HealthAddr:  getEnv("HEALTH_ADDR", "0.0.0.0:8081"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	var errs []string

	if c.SortitionDSN == "" {
		errs = append(errs, "SORTITION_DB_DSN is required but not set")
	}
	if c.BurnchainDSN == "" {
		errs = append(errs, "BURNCHAIN_DB_DSN is required but not set")
	}
	if c.HostChainDSN == "" {
		errs = append(errs, "HOSTCHAIN_DB_DSN is required but not set")
	}
	if c.EpochConfigPath == "" {
		errs = append(errs, "EPOCH_CONFIG_PATH is required but not set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
