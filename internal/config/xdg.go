package config

import (
	"log/slog"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/afero"
)

// appDir is the directory name used under every XDG base directory
const appDir = "soundplayer"

// XDGDirs provides XDG Base Directory compliant paths for soundplayer
type XDGDirs struct{}

// NewXDGDirs creates a new XDG directory manager
func NewXDGDirs() *XDGDirs {
	return &XDGDirs{}
}

// GetCachePath returns the cache directory path for a specific purpose
func (x *XDGDirs) GetCachePath(purpose string) string {
	return filepath.Join(xdg.CacheHome, appDir, purpose)
}

// GetDataPath returns the data directory path for a specific purpose
func (x *XDGDirs) GetDataPath(purpose string) string {
	return filepath.Join(xdg.DataHome, appDir, purpose)
}

// GetConfigPaths returns prioritized paths where config files can be found.
// Returns paths in search order: user config dir, then system config dirs.
func (x *XDGDirs) GetConfigPaths(filename string) []string {
	paths := make([]string, 0, 1+len(xdg.ConfigDirs))
	paths = append(paths, filepath.Join(xdg.ConfigHome, appDir, filename))

	for _, configDir := range xdg.ConfigDirs {
		paths = append(paths, filepath.Join(configDir, appDir, filename))
	}

	slog.Debug("generated config paths",
		"filename", filename,
		"total_paths", len(paths),
		"user_path", paths[0])

	return paths
}

// EnsureDir creates dir on fs if it does not exist
func EnsureDir(fs afero.Fs, dir string) error {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		slog.Error("failed to create directory", "path", dir, "error", err)
		return err
	}
	return nil
}
