// Package fs hands out afero filesystems so file access can be swapped for
// an in-memory filesystem in tests.
package fs

import (
	"github.com/spf13/afero"
)

// Factory provides filesystem instances for production and testing
type Factory interface {
	// Production returns a filesystem that operates on the real OS filesystem
	Production() afero.Fs
	// Memory returns an in-memory filesystem for testing
	Memory() afero.Fs
}

// DefaultFactory provides the standard filesystem factory implementation
type DefaultFactory struct{}

// NewDefaultFactory creates a new filesystem factory
func NewDefaultFactory() Factory {
	return &DefaultFactory{}
}

func (f *DefaultFactory) Production() afero.Fs {
	return afero.NewOsFs()
}

func (f *DefaultFactory) Memory() afero.Fs {
	return afero.NewMemMapFs()
}

// FixedFactory returns the same filesystem for both roles, so commands
// built on a Factory can be pointed at a prepared MemMapFs
type FixedFactory struct {
	Fs afero.Fs
}

func (f FixedFactory) Production() afero.Fs { return f.Fs }

func (f FixedFactory) Memory() afero.Fs { return f.Fs }
