package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// DriverFactory resolves the OutputDriver serving a player type
type DriverFactory interface {
	Driver(playerType PlayerType) (OutputDriver, error)
	Close() error
}

// DriverConstructor builds one OutputDriver
type DriverConstructor func() (OutputDriver, error)

// DefaultDriverFactory builds drivers on first use and caches them
type DefaultDriverFactory struct {
	constructors map[PlayerType]DriverConstructor

	mu      sync.Mutex
	drivers map[PlayerType]OutputDriver
	closed  bool
}

// NewDriverFactory creates a factory wired to the native backends
func NewDriverFactory() *DefaultDriverFactory {
	return NewDriverFactoryWithConstructors(map[PlayerType]DriverConstructor{
		PlayerWaveOut:     func() (OutputDriver, error) { return newMalgoDriver(PlayerWaveOut) },
		PlayerDirectSound: func() (OutputDriver, error) { return newMalgoDriver(PlayerDirectSound) },
		PlayerWASAPI:      func() (OutputDriver, error) { return newMalgoDriver(PlayerWASAPI) },
		PlayerASIO:        newASIODriver,
	})
}

// NewDriverFactoryWithConstructors creates a factory with injected constructors for testing
func NewDriverFactoryWithConstructors(constructors map[PlayerType]DriverConstructor) *DefaultDriverFactory {
	return &DefaultDriverFactory{
		constructors: constructors,
		drivers:      make(map[PlayerType]OutputDriver),
	}
}

// Driver returns the cached driver for playerType, constructing it on first use
func (f *DefaultDriverFactory) Driver(playerType PlayerType) (OutputDriver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrBackendClosed
	}
	if driver, ok := f.drivers[playerType]; ok {
		return driver, nil
	}

	construct, ok := f.constructors[playerType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPlayer, playerType)
	}

	slog.Debug("creating output driver", "player", playerType)
	driver, err := construct()
	if err != nil {
		slog.Debug("output driver unavailable", "player", playerType, "error", err)
		return nil, err
	}

	f.drivers[playerType] = driver
	return driver, nil
}

// Availability reports, per supported player, whether its driver can be built
func (f *DefaultDriverFactory) Availability() map[PlayerType]error {
	result := make(map[PlayerType]error, len(SupportedPlayers()))
	for _, playerType := range SupportedPlayers() {
		_, err := f.Driver(playerType)
		result[playerType] = err
	}
	return result
}

// Close closes every driver built so far; the factory is unusable afterwards
func (f *DefaultDriverFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true

	var errs []error
	for playerType, driver := range f.drivers {
		if err := driver.Close(); err != nil {
			slog.Warn("failed to close output driver", "player", playerType, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", playerType, err))
		}
	}
	f.drivers = nil
	return errors.Join(errs...)
}
