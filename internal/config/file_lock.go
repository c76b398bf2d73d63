package config

import (
	"log/slog"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"
)

// FileLocker serializes writers of one config file across processes
type FileLocker interface {
	Lock() error
	Unlock() error
}

// FileLock wraps github.com/gofrs/flock with logging
type FileLock struct {
	filePath string
	flock    *flock.Flock
}

// NewFileLock creates a lock on filePath. The file is created on first Lock.
func NewFileLock(filePath string) *FileLock {
	return &FileLock{
		filePath: filePath,
		flock:    flock.New(filePath),
	}
}

// Lock acquires an exclusive lock on the file (blocking)
func (fl *FileLock) Lock() error {
	if err := fl.flock.Lock(); err != nil {
		slog.Error("failed to acquire file lock", "file_path", fl.filePath, "error", err)
		return err
	}
	slog.Debug("file lock acquired", "file_path", fl.filePath)
	return nil
}

// Unlock releases the file lock
func (fl *FileLock) Unlock() error {
	if err := fl.flock.Unlock(); err != nil {
		slog.Error("failed to release file lock", "file_path", fl.filePath, "error", err)
		return err
	}
	slog.Debug("file lock released", "file_path", fl.filePath)
	return nil
}

type nopLock struct{}

func (nopLock) Lock() error   { return nil }
func (nopLock) Unlock() error { return nil }

// lockFor returns an OS file lock beside path when fs is the real
// filesystem. Other filesystems are process local and need none.
func lockFor(fs afero.Fs, path string) FileLocker {
	if _, ok := fs.(*afero.OsFs); ok {
		return NewFileLock(path + ".lock")
	}
	return nopLock{}
}
