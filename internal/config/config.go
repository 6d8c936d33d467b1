package config

import (
	"encoding/json"
	"os"
	"time"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// DatabaseURL is the Postgres connection string.
	DatabaseURL string `json:"databaseUrl"`
	// BatchSize is the event count that triggers a synchronous flush.
	BatchSize int `json:"batchSize"`
	// FlushIntervalMs is the timer-driven flush period.
	FlushIntervalMs int `json:"flushIntervalMs"`
	// FlagRefreshIntervalMs is the background flag cache reload period.
	// Zero disables the background loop.
	FlagRefreshIntervalMs int `json:"flagRefreshIntervalMs"`
	// StorageTimeoutMs bounds each storage round-trip.
	StorageTimeoutMs int `json:"storageTimeoutMs"`
	// TenantNameRegex is the syntactic rule applied to tenant identifiers
	// presented at connection open.
	TenantNameRegex string `json:"tenantNameRegex"`
	// AllowedTenants, when non-empty, restricts connections to the listed
	// tenants.
	AllowedTenants []string `json:"allowedTenants"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DatabaseURL:           "postgres://localhost:5432/pulse?sslmode=disable",
		BatchSize:             100,
		FlushIntervalMs:       5000,
		FlagRefreshIntervalMs: 30000,
		StorageTimeoutMs:      5000,
		TenantNameRegex:       "[a-z0-9-_]{1,64}",
	}
}

// Load reads configuration from a JSON file. If path is empty, returns
// defaults. Unknown keys are ignored; absent keys keep their defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FlushInterval returns FlushIntervalMs as a duration.
func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMs) * time.Millisecond
}

// FlagRefreshInterval returns FlagRefreshIntervalMs as a duration.
func (c Config) FlagRefreshInterval() time.Duration {
	return time.Duration(c.FlagRefreshIntervalMs) * time.Millisecond
}

// StorageTimeout returns StorageTimeoutMs as a duration.
func (c Config) StorageTimeout() time.Duration {
	return time.Duration(c.StorageTimeoutMs) * time.Millisecond
}
