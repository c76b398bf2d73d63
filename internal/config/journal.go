package config

import (
	"log/slog"
	"strconv"
)

// JournalConfig represents playback journal configuration
type JournalConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`             // Whether playback sessions are recorded
	DatabasePath string `json:"database_path" yaml:"database_path"` // Custom database path (empty = XDG data path)
}

// GetDefaultJournalConfig returns the default journal configuration
func GetDefaultJournalConfig() *JournalConfig {
	return &JournalConfig{
		Enabled:      false,
		DatabasePath: "",
	}
}

// ApplyJournalEnvironmentOverrides applies SOUNDPLAYER_JOURNAL to a copy of config
func ApplyJournalEnvironmentOverrides(config *JournalConfig, getenv func(string) string) *JournalConfig {
	result := *config

	if journalStr := getenv("SOUNDPLAYER_JOURNAL"); journalStr != "" {
		if enabled, err := strconv.ParseBool(journalStr); err == nil {
			result.Enabled = enabled
			slog.Debug("applied journal override from environment", "value", enabled)
		} else {
			slog.Warn("invalid SOUNDPLAYER_JOURNAL environment variable", "value", journalStr, "error", err)
		}
	}

	return &result
}
