//go:build cgo

package audio

import (
	"log/slog"

	"github.com/gen2brain/malgo"
)

// Context wraps a malgo context restricted to a single backend
type Context struct {
	ctx     *malgo.AllocatedContext
	backend malgo.Backend
}

// NewContext initializes a malgo context for backend with slog integration
func NewContext(backend malgo.Backend) (*Context, error) {
	slog.Debug("initializing audio context", "backend", backend)

	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, func(message string) {
		slog.Debug("malgo internal", "backend", backend, "message", message)
	})
	if err != nil {
		slog.Error("failed to initialize audio context", "backend", backend, "error", err)
		return nil, err
	}

	slog.Debug("audio context initialized", "backend", backend)
	return &Context{ctx: ctx, backend: backend}, nil
}

// Close properly cleans up the audio context
func (c *Context) Close() error {
	if c.ctx == nil {
		return nil
	}

	// malgo requires both Uninit() and Free()
	err := c.ctx.Uninit()
	if err != nil {
		slog.Error("failed to uninitialize audio context", "backend", c.backend, "error", err)
		return err
	}

	c.ctx.Free()
	c.ctx = nil

	slog.Debug("audio context closed", "backend", c.backend)
	return nil
}

// PlaybackDevices lists the playback endpoints visible to the context
func (c *Context) PlaybackDevices() ([]malgo.DeviceInfo, error) {
	if c.ctx == nil {
		return nil, ErrBackendClosed
	}
	return c.ctx.Devices(malgo.Playback)
}

// Raw returns the underlying malgo context for device operations
func (c *Context) Raw() *malgo.AllocatedContext {
	return c.ctx
}
