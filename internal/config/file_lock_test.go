package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLockLockUnlock(t *testing.T) {
	lockFile := filepath.Join(t.TempDir(), "config.json.lock")
	fileLock := NewFileLock(lockFile)

	require.NoError(t, fileLock.Lock())
	_, err := os.Stat(lockFile)
	assert.NoError(t, err, "lock file should exist while held")
	require.NoError(t, fileLock.Unlock())
}

func TestLockFor(t *testing.T) {
	_, isNop := lockFor(afero.NewMemMapFs(), "/config.json").(nopLock)
	assert.True(t, isNop, "memory filesystems need no OS lock")

	fl, isFile := lockFor(afero.NewOsFs(), "/tmp/config.json").(*FileLock)
	require.True(t, isFile)
	assert.Equal(t, "/tmp/config.json.lock", fl.filePath)
}

func TestSaveToFileOnOsFs(t *testing.T) {
	env := testEnv{}
	cm := NewConfigManagerWithDependencies(afero.NewOsFs(), fakeXDG{}, env.get, env.set)
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := cm.GetDefaultConfig()
	cfg.Player = "wasapi"
	require.NoError(t, cm.SaveToFile(cfg, path))

	loaded, err := cm.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "wasapi", loaded.Player)
}
