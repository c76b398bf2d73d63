package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/ttsyukkuri/soundplayer/internal/audio"
)

// Config file names searched in every config directory, in priority order
var configFileNames = []string{"config.json", "config.yaml", "config.yml"}

var validLogLevels = []string{"debug", "info", "warn", "error"}

// FileLoggingConfig represents file-based logging configuration
type FileLoggingConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`           // Whether file logging is enabled
	Filename   string `json:"filename" yaml:"filename"`         // Log file path (empty = XDG cache path)
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`   // Max file size in MB before rotation
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`   // Max number of backup files to keep
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"` // Max age in days before deletion
	Compress   bool   `json:"compress" yaml:"compress"`         // Whether to compress rotated files
}

// Config represents soundplayer configuration
type Config struct {
	Player      string             `json:"player" yaml:"player"`                                 // Output backend (waveout, directsound, wasapi, asio)
	DeviceID    string             `json:"device_id" yaml:"device_id"`                           // Backend specific device identifier
	Volume      int                `json:"volume" yaml:"volume"`                                 // Volume percent (0-400)
	DeleteAfter bool               `json:"delete_after" yaml:"delete_after"`                     // Delete files once played
	LatencyMS   int                `json:"latency_ms" yaml:"latency_ms"`                         // Output latency in milliseconds
	LogLevel    string             `json:"log_level" yaml:"log_level"`                           // Log level (debug, info, warn, error)
	FileLogging *FileLoggingConfig `json:"file_logging,omitempty" yaml:"file_logging,omitempty"` // File logging configuration
	Journal     *JournalConfig     `json:"journal,omitempty" yaml:"journal,omitempty"`           // Playback journal configuration
}

// PlayerType returns the parsed player selection
func (c *Config) PlayerType() audio.PlayerType {
	return audio.ParsePlayerType(c.Player)
}

// Latency returns the configured output latency, falling back to the default
func (c *Config) Latency() time.Duration {
	if c.LatencyMS <= 0 {
		return audio.DefaultLatency
	}
	return time.Duration(c.LatencyMS) * time.Millisecond
}

// XDGInterface defines the interface for XDG directory operations
type XDGInterface interface {
	GetConfigPaths(filename string) []string
	GetCachePath(purpose string) string
	GetDataPath(purpose string) string
}

// ConfigManager handles loading, saving, and validating configuration
type ConfigManager struct {
	xdg    XDGInterface
	fs     afero.Fs
	getenv func(string) string
	setenv func(string, string) error
}

// NewConfigManager creates a configuration manager on the real filesystem
func NewConfigManager() *ConfigManager {
	return NewConfigManagerWithFilesystem(afero.NewOsFs())
}

// NewConfigManagerWithFilesystem creates a configuration manager reading through fs
func NewConfigManagerWithFilesystem(fs afero.Fs) *ConfigManager {
	return NewConfigManagerWithDependencies(fs, NewXDGDirs(), os.Getenv, os.Setenv)
}

// NewConfigManagerWithDependencies creates a manager with injected dependencies for testing
func NewConfigManagerWithDependencies(fs afero.Fs, xdg XDGInterface, getenv func(string) string, setenv func(string, string) error) *ConfigManager {
	slog.Debug("creating new config manager")
	return &ConfigManager{
		xdg:    xdg,
		fs:     fs,
		getenv: getenv,
		setenv: setenv,
	}
}

// GetDefaultConfig returns the default configuration
func (cm *ConfigManager) GetDefaultConfig() *Config {
	defaultConfig := &Config{
		Player:      string(audio.PlayerWaveOut),
		DeviceID:    "",
		Volume:      100,
		DeleteAfter: false,
		LatencyMS:   int(audio.DefaultLatency / time.Millisecond),
		LogLevel:    "warn",
		FileLogging: &FileLoggingConfig{
			Enabled:    false,
			Filename:   "", // Empty = XDG cache path
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Journal: GetDefaultJournalConfig(),
	}

	slog.Debug("generated default config",
		"player", defaultConfig.Player,
		"volume", defaultConfig.Volume,
		"latency_ms", defaultConfig.LatencyMS,
		"log_level", defaultConfig.LogLevel)

	return defaultConfig
}

// isYAML reports whether path should be read as YAML
func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadFromFile loads configuration from a JSON or YAML file, chosen by extension.
// Fields missing from the file keep their default values.
func (cm *ConfigManager) LoadFromFile(filePath string) (*Config, error) {
	slog.Debug("loading config from file", "file_path", filePath)

	data, err := afero.ReadFile(cm.fs, filePath)
	if err != nil {
		slog.Error("failed to read config file", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := cm.GetDefaultConfig()
	if isYAML(filePath) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		slog.Error("failed to parse config file", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}

	if err := cm.ValidateConfig(config); err != nil {
		return nil, err
	}

	slog.Debug("config loaded successfully",
		"file_path", filePath,
		"player", config.Player,
		"device_id", config.DeviceID,
		"volume", config.Volume)

	return config, nil
}

// SaveToFile saves configuration to a JSON or YAML file, chosen by extension
func (cm *ConfigManager) SaveToFile(config *Config, filePath string) error {
	slog.Debug("saving config to file", "file_path", filePath)

	if err := cm.ValidateConfig(config); err != nil {
		return fmt.Errorf("cannot save invalid config: %w", err)
	}

	dir := filepath.Dir(filePath)
	if err := cm.fs.MkdirAll(dir, 0755); err != nil {
		slog.Error("failed to create config directory", "directory", dir, "error", err)
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	var err error
	if isYAML(filePath) {
		data, err = yaml.Marshal(config)
	} else {
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	lock := lockFor(cm.fs, filePath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock config file: %w", err)
	}
	defer lock.Unlock()

	if err := afero.WriteFile(cm.fs, filePath, data, 0644); err != nil {
		slog.Error("failed to write config file", "file_path", filePath, "error", err)
		return fmt.Errorf("failed to write config file: %w", err)
	}

	slog.Info("config saved successfully", "file_path", filePath)
	return nil
}

// FindConfigFile returns the first existing config file on the XDG search path
func (cm *ConfigManager) FindConfigFile() (string, bool) {
	for _, name := range configFileNames {
		for _, configPath := range cm.xdg.GetConfigPaths(name) {
			if exists, _ := afero.Exists(cm.fs, configPath); exists {
				slog.Debug("found config file", "path", configPath)
				return configPath, true
			}
		}
	}
	return "", false
}

// DefaultConfigPath is where a new user config file with the given
// extension (".json" or ".yaml") is created
func (cm *ConfigManager) DefaultConfigPath(ext string) string {
	return cm.xdg.GetConfigPaths("config" + ext)[0]
}

// LoadConfig loads configuration using XDG path discovery
func (cm *ConfigManager) LoadConfig() (*Config, error) {
	if configPath, ok := cm.FindConfigFile(); ok {
		return cm.LoadFromFile(configPath)
	}

	slog.Debug("no config file found, using defaults")
	return cm.GetDefaultConfig(), nil
}

// ValidateConfig validates configuration values
func (cm *ConfigManager) ValidateConfig(config *Config) error {
	var errors []string

	if !config.PlayerType().IsValid() {
		supported := make([]string, 0, len(audio.SupportedPlayers()))
		for _, p := range audio.SupportedPlayers() {
			supported = append(supported, p.String())
		}
		errors = append(errors, fmt.Sprintf("invalid player '%s', must be one of: %s",
			config.Player, strings.Join(supported, ", ")))
	}

	if config.Volume < 0 || config.Volume > audio.MaxVolume {
		errors = append(errors, fmt.Sprintf("volume must be between 0 and %d, got %d", audio.MaxVolume, config.Volume))
	}

	if config.LatencyMS < 0 {
		errors = append(errors, fmt.Sprintf("latency_ms must be >= 0, got %d", config.LatencyMS))
	}

	if config.LogLevel != "" {
		if _, err := ParseLogLevel(config.LogLevel); err != nil {
			errors = append(errors, err.Error())
		}
	}

	if fileLogging := config.FileLogging; fileLogging != nil {
		if fileLogging.MaxSizeMB < 0 {
			errors = append(errors, fmt.Sprintf("file logging max_size_mb must be >= 0, got %d", fileLogging.MaxSizeMB))
		}
		if fileLogging.MaxBackups < 0 {
			errors = append(errors, fmt.Sprintf("file logging max_backups must be >= 0, got %d", fileLogging.MaxBackups))
		}
		if fileLogging.MaxAgeDays < 0 {
			errors = append(errors, fmt.Sprintf("file logging max_age_days must be >= 0, got %d", fileLogging.MaxAgeDays))
		}
	}

	if len(errors) > 0 {
		errMsg := strings.Join(errors, "; ")
		slog.Error("config validation failed", "errors", errMsg)
		return fmt.Errorf("config validation failed: %s", errMsg)
	}

	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the environment.
// Variables that are already set win; a missing file is not an error.
func (cm *ConfigManager) LoadDotEnv(path string) error {
	file, err := cm.fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("no .env file", "path", path)
			return nil
		}
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	values, err := godotenv.Parse(file)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	applied := 0
	for key, value := range values {
		if cm.getenv(key) != "" {
			continue
		}
		if err := cm.setenv(key, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
		applied++
	}

	slog.Debug(".env loaded", "path", path, "variables", len(values), "applied", applied)
	return nil
}

// ApplyEnvironmentOverrides applies environment variable overrides to config
func (cm *ConfigManager) ApplyEnvironmentOverrides(config *Config) *Config {
	result := *config

	// SOUNDPLAYER_PLAYER
	if player := cm.getenv("SOUNDPLAYER_PLAYER"); player != "" {
		if audio.ParsePlayerType(player).IsValid() {
			result.Player = player
			slog.Debug("applied player override from environment", "value", player)
		} else {
			slog.Warn("invalid SOUNDPLAYER_PLAYER environment variable", "value", player)
		}
	}

	// SOUNDPLAYER_DEVICE
	if device := cm.getenv("SOUNDPLAYER_DEVICE"); device != "" {
		result.DeviceID = device
		slog.Debug("applied device override from environment", "value", device)
	}

	// SOUNDPLAYER_VOLUME
	if volStr := cm.getenv("SOUNDPLAYER_VOLUME"); volStr != "" {
		if vol, err := strconv.Atoi(volStr); err == nil {
			result.Volume = audio.ClampVolume(vol)
			slog.Debug("applied volume override from environment", "value", result.Volume)
		} else {
			slog.Warn("invalid SOUNDPLAYER_VOLUME environment variable", "value", volStr, "error", err)
		}
	}

	// SOUNDPLAYER_LOG_LEVEL
	if logLevel := cm.getenv("SOUNDPLAYER_LOG_LEVEL"); logLevel != "" {
		result.LogLevel = logLevel
		slog.Debug("applied log level override from environment", "value", logLevel)
	}

	journal := config.Journal
	if journal == nil {
		journal = GetDefaultJournalConfig()
	}
	result.Journal = ApplyJournalEnvironmentOverrides(journal, cm.getenv)

	return &result
}

// ParseLogLevel maps a configuration log level onto slog
func ParseLogLevel(logLevel string) (slog.Level, error) {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level '%s', must be one of: %s",
			logLevel, strings.Join(validLogLevels, ", "))
	}
}

// ApplyLogLevel configures slog with the specified log level
func (cm *ConfigManager) ApplyLogLevel(logLevel string) error {
	return cm.ApplyLogLevelWithWriter(logLevel, os.Stderr)
}

// ApplyLogLevelWithWriter configures slog with the specified log level and custom writer
func (cm *ConfigManager) ApplyLogLevelWithWriter(logLevel string, writer io.Writer) error {
	if logLevel == "" {
		slog.Debug("no log level specified, keeping current slog configuration")
		return nil
	}

	level, err := ParseLogLevel(logLevel)
	if err != nil {
		return err
	}

	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))

	slog.Debug("slog configured", "log_level", logLevel)
	return nil
}

// ResolveLogFilePath resolves the log file path using XDG cache directory when filename is empty
func (cm *ConfigManager) ResolveLogFilePath(filename string) string {
	if filename != "" {
		return filename
	}
	return filepath.Join(cm.xdg.GetCachePath("logs"), "soundplayer.log")
}

// ResolveDatabasePath resolves the journal database path using the XDG data directory when path is empty
func (cm *ConfigManager) ResolveDatabasePath(path string) string {
	if path != "" {
		return path
	}
	return filepath.Join(cm.xdg.GetDataPath(""), "journal.db")
}
