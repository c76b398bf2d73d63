package audio

import (
	"errors"
	"io"
)

// Common decoder errors
var (
	ErrInvalidData       = errors.New("invalid audio data")
	ErrReadFailure       = errors.New("failed to read audio data")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// SampleFormat describes how decoded PCM samples are laid out
type SampleFormat int

const (
	FormatUnknown SampleFormat = iota
	FormatU8
	FormatS16
	FormatS24
	FormatS32
)

// BytesPerSample returns the width of one sample, 0 for unknown formats
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatU8:
		return 1
	case FormatS16:
		return 2
	case FormatS24:
		return 3
	case FormatS32:
		return 4
	default:
		return 0
	}
}

func (f SampleFormat) String() string {
	switch f {
	case FormatU8:
		return "u8"
	case FormatS16:
		return "s16"
	case FormatS24:
		return "s24"
	case FormatS32:
		return "s32"
	default:
		return "unknown"
	}
}

// formatForBitDepth maps an integer PCM bit depth onto a SampleFormat
func formatForBitDepth(bits int) SampleFormat {
	switch bits {
	case 8:
		return FormatU8
	case 16:
		return FormatS16
	case 24:
		return FormatS24
	case 32:
		return FormatS32
	default:
		return FormatUnknown
	}
}

// AudioData represents decoded audio ready for playback
type AudioData struct {
	Samples    []byte       // Raw little-endian interleaved PCM
	Channels   uint32       // Number of audio channels
	SampleRate uint32       // Sample rate in Hz
	Format     SampleFormat // Sample layout
}

// Frames returns the number of complete frames held in Samples
func (d *AudioData) Frames() int {
	frameSize := int(d.Channels) * d.Format.BytesPerSample()
	if frameSize == 0 {
		return 0
	}
	return len(d.Samples) / frameSize
}

// Decoder interface for audio format decoding
type Decoder interface {
	// Decode reads audio data from reader and returns decoded PCM data
	Decode(reader io.Reader) (*AudioData, error)

	// CanDecode checks if this decoder can handle the given filename
	CanDecode(filename string) bool

	// FormatName returns the name of the format this decoder handles
	FormatName() string
}
