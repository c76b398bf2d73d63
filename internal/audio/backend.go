package audio

import (
	"errors"
	"strings"
	"time"
)

// Common errors for OutputDriver implementations
var (
	ErrUnsupportedPlayer   = errors.New("unsupported player type")
	ErrBackendNotAvailable = errors.New("audio backend not available")
	ErrBackendClosed       = errors.New("audio backend is closed")
	ErrInvalidDeviceID     = errors.New("invalid device identifier")
	ErrDeviceNotFound      = errors.New("playback device not found")
	ErrEnumerationFailed   = errors.New("device enumeration failed")
)

// PlayerType selects the native output mechanism used for playback
type PlayerType string

const (
	PlayerWaveOut     PlayerType = "waveout"
	PlayerDirectSound PlayerType = "directsound"
	PlayerWASAPI      PlayerType = "wasapi"
	PlayerASIO        PlayerType = "asio"
)

// DefaultLatency is the output latency requested from every backend
const DefaultLatency = 128 * time.Millisecond

// SupportedPlayers returns every player type in a stable order
func SupportedPlayers() []PlayerType {
	return []PlayerType{PlayerWaveOut, PlayerDirectSound, PlayerWASAPI, PlayerASIO}
}

// ParsePlayerType maps a configuration value onto a PlayerType.
// Matching is case-insensitive; unknown values are returned unchanged so the
// caller can decide how to treat them.
func ParsePlayerType(value string) PlayerType {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.NewReplacer("-", "", "_", "", " ", "").Replace(normalized)

	switch normalized {
	case "waveout", "winmm":
		return PlayerWaveOut
	case "directsound", "dsound":
		return PlayerDirectSound
	case "wasapi":
		return PlayerWASAPI
	case "asio":
		return PlayerASIO
	}
	return PlayerType(value)
}

// IsValid reports whether t names one of the supported backends
func (t PlayerType) IsValid() bool {
	for _, supported := range SupportedPlayers() {
		if t == supported {
			return true
		}
	}
	return false
}

// String returns the configuration spelling of the player type
func (t PlayerType) String() string {
	return string(t)
}

// SampleSource supplies interleaved float32 samples to an opened output
type SampleSource interface {
	SampleRate() uint32
	Channels() uint32
	// Read fills samples and returns io.EOF once the source is drained
	Read(samples []float32) (int, error)
}

// OutputDriver is one native output mechanism (WaveOut, DirectSound, WASAPI, ASIO).
// Implementations enumerate the playback devices they can reach and open
// outputs bound to one of those devices.
type OutputDriver interface {
	Type() PlayerType

	// Devices lists playback devices, freshly queried on every call
	Devices() ([]PlayDevice, error)

	// Open binds an output to the device named by deviceID.
	// No audio I/O happens until Init and Play are called.
	Open(deviceID string, latency time.Duration) (Output, error)

	// Close releases process-scoped driver state
	Close() error
}

// Output is an opened playback device waiting for a source
type Output interface {
	Init(source SampleSource) error

	// SetStoppedHandler registers the one-shot handler fired when playback
	// stops, either at end of stream or because the backend stopped the device.
	SetStoppedHandler(handler func(err error))

	Play() error
	Close() error
}
