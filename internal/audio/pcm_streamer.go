package audio

import (
	"fmt"

	"github.com/gopxl/beep"
)

// pcmStreamer exposes decoded integer PCM as a stereo beep.StreamSeeker.
// Mono input is duplicated to both channels; channels past the second are dropped.
type pcmStreamer struct {
	data      *AudioData
	frameSize int
	width     int
	frames    int
	pos       int
}

var _ beep.StreamSeeker = (*pcmStreamer)(nil)

func newPCMStreamer(data *AudioData) (*pcmStreamer, error) {
	width := data.Format.BytesPerSample()
	if width == 0 || data.Channels == 0 {
		return nil, fmt.Errorf("%w: %s with %d channels", ErrUnsupportedFormat, data.Format, data.Channels)
	}

	return &pcmStreamer{
		data:      data,
		width:     width,
		frameSize: width * int(data.Channels),
		frames:    data.Frames(),
	}, nil
}

func (s *pcmStreamer) Stream(samples [][2]float64) (int, bool) {
	if s.pos >= s.frames {
		return 0, false
	}

	n := 0
	for n < len(samples) && s.pos < s.frames {
		offset := s.pos * s.frameSize
		left := s.sampleAt(offset)
		right := left
		if s.data.Channels > 1 {
			right = s.sampleAt(offset + s.width)
		}
		samples[n][0] = left
		samples[n][1] = right
		n++
		s.pos++
	}
	return n, true
}

func (s *pcmStreamer) Err() error { return nil }

func (s *pcmStreamer) Len() int { return s.frames }

func (s *pcmStreamer) Position() int { return s.pos }

func (s *pcmStreamer) Seek(p int) error {
	if p < 0 || p > s.frames {
		return fmt.Errorf("seek position %d out of range [0, %d]", p, s.frames)
	}
	s.pos = p
	return nil
}

// sampleAt converts the sample starting at offset to [-1, 1)
func (s *pcmStreamer) sampleAt(offset int) float64 {
	b := s.data.Samples[offset : offset+s.width]
	switch s.data.Format {
	case FormatU8:
		return (float64(b[0]) - 128) / 128
	case FormatS16:
		return float64(int16(uint16(b[0])|uint16(b[1])<<8)) / (1 << 15)
	case FormatS24:
		v := int32(uint32(b[0])<<8|uint32(b[1])<<16|uint32(b[2])<<24) >> 8
		return float64(v) / (1 << 23)
	case FormatS32:
		v := int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
		return float64(v) / (1 << 31)
	default:
		return 0
	}
}
