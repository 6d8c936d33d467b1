package config

import (
	"os"
	"strconv"
	"strings"
)

// FromEnv overlays PULSE_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("PULSE_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("PULSE_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BatchSize = n
		}
	}
	if v := os.Getenv("PULSE_FLUSH_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.FlushIntervalMs = n
		}
	}
	if v := os.Getenv("PULSE_FLAG_REFRESH_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.FlagRefreshIntervalMs = n
		}
	}
	if v := os.Getenv("PULSE_STORAGE_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StorageTimeoutMs = n
		}
	}
	if v := os.Getenv("PULSE_TENANT_NAME_REGEX"); v != "" {
		cfg.TenantNameRegex = v
	}
	if v := os.Getenv("PULSE_ALLOWED_TENANTS"); v != "" {
		parts := strings.Split(v, ",")
		cfg.AllowedTenants = nil
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cfg.AllowedTenants = append(cfg.AllowedTenants, p)
			}
		}
	}
}
