// Package cli implements the soundplayer command line
package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ttsyukkuri/soundplayer/internal/audio"
	"github.com/ttsyukkuri/soundplayer/internal/config"
	"github.com/ttsyukkuri/soundplayer/internal/fs"
	"github.com/ttsyukkuri/soundplayer/internal/journal"
)

const Version = "0.4.0"

// dotEnvFile is read from the working directory before configuration
const dotEnvFile = ".env"

type contextKey struct{}

// CLI represents the command-line interface
type CLI struct {
	rootCmd          *cobra.Command
	fsFactory        fs.Factory
	fs               afero.Fs
	configManager    *config.ConfigManager
	driverFactory    *audio.DefaultDriverFactory
	exceptions       audio.ExceptionLogger
	terminalDetector TerminalDetector

	cfg        *config.Config
	journalDB  *sql.DB
	logRotator io.Closer
}

// Option configures a CLI
type Option func(*CLI)

// WithFilesystemFactory sets where audio, config and .env files are read from
func WithFilesystemFactory(factory fs.Factory) Option {
	return func(c *CLI) { c.fsFactory = factory }
}

// WithConfigManager replaces the config manager built over the filesystem
func WithConfigManager(cm *config.ConfigManager) Option {
	return func(c *CLI) { c.configManager = cm }
}

// WithDriverFactory replaces the native audio drivers
func WithDriverFactory(factory *audio.DefaultDriverFactory) Option {
	return func(c *CLI) { c.driverFactory = factory }
}

// WithExceptionLogger replaces the slog exception sink
func WithExceptionLogger(logger audio.ExceptionLogger) Option {
	return func(c *CLI) { c.exceptions = logger }
}

// WithTerminalDetector replaces golang.org/x/term detection
func WithTerminalDetector(detector TerminalDetector) Option {
	return func(c *CLI) { c.terminalDetector = detector }
}

// NewCLI creates a new CLI instance
func NewCLI(opts ...Option) *CLI {
	c := &CLI{fsFactory: fs.NewDefaultFactory()}
	for _, opt := range opts {
		opt(c)
	}

	c.fs = c.fsFactory.Production()
	if c.configManager == nil {
		c.configManager = config.NewConfigManagerWithFilesystem(c.fs)
	}

	rootCmd := &cobra.Command{
		Use:           "soundplayer",
		Short:         "Play audio files on a chosen Windows output device",
		Long:          "soundplayer plays WAV, MP3 and AIFF files through WaveOut, DirectSound, WASAPI or ASIO on a specific output device.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.initialize(cmd)
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newDevicesCommand())
	rootCmd.AddCommand(newPlayCommand())
	rootCmd.AddCommand(newBackendsCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newConfigCommand())
	rootCmd.AddCommand(newVersionCommand())

	c.rootCmd = rootCmd
	return c
}

// contextWithCLI stores the CLI instance for command handlers
func contextWithCLI(ctx context.Context, cli *CLI) context.Context {
	return context.WithValue(ctx, contextKey{}, cli)
}

// cliFromContext extracts the CLI instance stored by Run
func cliFromContext(ctx context.Context) (*CLI, error) {
	if cli, ok := ctx.Value(contextKey{}).(*CLI); ok {
		return cli, nil
	}
	return nil, errors.New("CLI instance not found in context")
}

// Run executes args (including the program name) and returns the exit code
func (c *CLI) Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return c.RunContext(context.Background(), args, stdin, stdout, stderr)
}

// RunContext is Run with a context that cancels waiting commands
func (c *CLI) RunContext(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	slog.Debug("CLI run started", "args", args)
	defer c.cleanup()

	if len(args) > 0 {
		args = args[1:]
	}
	c.rootCmd.SetArgs(args)
	c.rootCmd.SetIn(stdin)
	c.rootCmd.SetOut(stdout)
	c.rootCmd.SetErr(stderr)

	if err := c.rootCmd.ExecuteContext(contextWithCLI(ctx, c)); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		slog.Debug("command failed", "error", err)
		return 1
	}
	return 0
}

// initialize loads configuration and sets up logging before any command runs
func (c *CLI) initialize(cmd *cobra.Command) error {
	if err := c.configManager.LoadDotEnv(dotEnvFile); err != nil {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg, err := c.loadAndValidateConfig(cmd)
	if err != nil {
		return err
	}
	c.cfg = cfg

	c.setupLogging(cfg, cmd.ErrOrStderr())
	return nil
}

// loadAndValidateConfig loads configuration from flags and files, applies overrides, and validates
func (c *CLI) loadAndValidateConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	logLevel, _ := cmd.Flags().GetString("log-level")

	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = c.configManager.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error loading config %s: %w", configFile, err)
		}
	} else {
		cfg, err = c.configManager.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	}

	cfg = c.configManager.ApplyEnvironmentOverrides(cfg)

	if logLevel != "" {
		cfg.LogLevel = logLevel
		slog.Debug("log level override applied", "value", logLevel)
	}

	if err := c.configManager.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupLogging sends records at the configured level to stderr and, when
// file logging is enabled, everything from debug up to a rotating log file
func (c *CLI) setupLogging(cfg *config.Config, stderr io.Writer) {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelWarn
	}

	handlers := []slog.Handler{
		slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}),
	}

	if cfg.FileLogging != nil && cfg.FileLogging.Enabled {
		logFilePath := c.configManager.ResolveLogFilePath(cfg.FileLogging.Filename)
		if err := config.EnsureDir(c.fs, filepath.Dir(logFilePath)); err == nil {
			rotator := &lumberjack.Logger{
				Filename:   logFilePath,
				MaxSize:    cfg.FileLogging.MaxSizeMB,
				MaxBackups: cfg.FileLogging.MaxBackups,
				MaxAge:     cfg.FileLogging.MaxAgeDays,
				Compress:   cfg.FileLogging.Compress,
			}
			c.logRotator = rotator
			handlers = append(handlers, slog.NewTextHandler(rotator, &slog.HandlerOptions{Level: slog.LevelDebug}))
		}
	}

	slog.SetDefault(slog.New(NewMultiLevelHandler(handlers...)))

	slog.Debug("logging setup completed",
		"level", level.String(),
		"handlers", len(handlers),
		"file_enabled", c.logRotator != nil)
}

// drivers returns the shared driver factory, creating the native one on first use
func (c *CLI) drivers() *audio.DefaultDriverFactory {
	if c.driverFactory == nil {
		c.driverFactory = audio.NewDriverFactory()
	}
	return c.driverFactory
}

// resolvePlayer picks the --player flag over the configured player
func (c *CLI) resolvePlayer(flag string) (audio.PlayerType, error) {
	name := c.cfg.Player
	if flag != "" {
		name = flag
	}
	playerType := audio.ParsePlayerType(name)
	if !playerType.IsValid() {
		return playerType, fmt.Errorf("%w: %q (want one of %v)", audio.ErrUnsupportedPlayer, name, audio.SupportedPlayers())
	}
	return playerType, nil
}

// newPlayer builds a sound player bound to playerType and the CLI's shared resources
func (c *CLI) newPlayer(playerType audio.PlayerType, observers ...audio.SessionObserver) *audio.SoundPlayer {
	opts := []audio.Option{
		audio.WithFilesystem(c.fs),
		audio.WithDriverFactory(c.drivers()),
		audio.WithLatency(c.cfg.Latency()),
		audio.WithObserver(audio.MultiObserver(observers)),
	}
	if c.exceptions != nil {
		opts = append(opts, audio.WithExceptionLogger(c.exceptions))
	}
	return audio.NewSoundPlayer(audio.StaticPlayer(playerType), opts...)
}

// openJournal opens the playback journal on first use.
// It returns nil when the journal is disabled.
func (c *CLI) openJournal() (*sql.DB, error) {
	if c.journalDB != nil {
		return c.journalDB, nil
	}
	if c.cfg == nil || c.cfg.Journal == nil || !c.cfg.Journal.Enabled {
		return nil, nil
	}

	dbPath := c.configManager.ResolveDatabasePath(c.cfg.Journal.DatabasePath)
	db, err := journal.NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	c.journalDB = db
	return db, nil
}

// journalRecorder returns an observer writing to the journal, or nil
func (c *CLI) journalRecorder() audio.SessionObserver {
	db, err := c.openJournal()
	if err != nil {
		slog.Warn("playback journal unavailable", "error", err)
		return nil
	}
	if db == nil {
		return nil
	}
	return journal.NewRecorder(db)
}

// cleanup releases drivers, the journal and the log file
func (c *CLI) cleanup() {
	if c.driverFactory != nil {
		if err := c.driverFactory.Close(); err != nil {
			slog.Error("error closing audio drivers", "error", err)
		}
	}
	if c.journalDB != nil {
		if err := c.journalDB.Close(); err != nil {
			slog.Error("error closing journal database", "error", err)
		}
		c.journalDB = nil
	}
	if c.logRotator != nil {
		c.logRotator.Close()
		c.logRotator = nil
	}
}
