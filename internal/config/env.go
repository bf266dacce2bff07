package config

import (
	"fmt"
	"os"
	"strconv"
)

// ApplyEnvOverrides reads configuration values from environment variables and
// overrides fields in the provided Config. Returns an error if parsing fails.
//
// Environment variables supported:
// - ZEBRA_LISTEN_ADDR (string, e.g. "0.0.0.0:3000")
// - ZEBRA_PUBLIC_DIR (string)
// - ZEBRA_LOG_FILE (string)
// - ZEBRA_LOG_LEVEL (string)
// - ZEBRA_USER_ID (string)
// - ZEBRA_AUTO_MARK_READ (bool)
// - ZEBRA_ABORT_BATCH_ON_READ (bool)
// - ZEBRA_METRICS_ENABLED (bool)
func ApplyEnvOverrides(cfg *Config) error {
	strs := []struct {
		env string
		dst *string
	}{
		{"ZEBRA_LISTEN_ADDR", &cfg.ListenAddr},
		{"ZEBRA_PUBLIC_DIR", &cfg.PublicDir},
		{"ZEBRA_LOG_FILE", &cfg.LogFile},
		{"ZEBRA_LOG_LEVEL", &cfg.LogLevel},
		{"ZEBRA_USER_ID", &cfg.UserID},
	}
	for _, s := range strs {
		if v, ok := os.LookupEnv(s.env); ok {
			*s.dst = v
		}
	}

	bools := []struct {
		env string
		dst *bool
	}{
		{"ZEBRA_AUTO_MARK_READ", &cfg.AutoMarkRead},
		{"ZEBRA_ABORT_BATCH_ON_READ", &cfg.AbortBatchOnRead},
		{"ZEBRA_METRICS_ENABLED", &cfg.MetricsEnabled},
	}
	for _, b := range bools {
		if err := parseBoolEnv(b.env, b.dst); err != nil {
			return err
		}
	}
	return nil
}

func parseBoolEnv(name string, dst *bool) error {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = b
	return nil
}
