package app

import (
	"fmt"

	"chatdb/pkg/config"
)

// validateConfig performs quick, fail-fast validation of the effective
// configuration before opening the store. Keep checks light and focused so
// callers can surface user-friendly errors.
func validateConfig(cfg *config.Config) error {
	if cfg.Storage.DBPath == "" {
		return fmt.Errorf("database path is empty: set --db flag, CHATDB_DB_PATH env, or storage.db_path in config")
	}
	if cfg.Metrics.Address == "" {
		return fmt.Errorf("metrics address is empty: set --metrics flag, CHATDB_METRICS_ADDR env, or metrics.address in config")
	}
	if cfg.Chat.DefaultChannel == "" {
		return fmt.Errorf("default channel name is empty: set CHATDB_DEFAULT_CHANNEL env or chat.default_channel in config")
	}
	if cfg.Limits.SearchResults < 0 || cfg.Limits.CandidateScan < 0 {
		return fmt.Errorf("search limits must not be negative")
	}
	return nil
}
