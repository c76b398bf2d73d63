package audio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/spf13/afero"
)

// outputChannels is the channel count every FileReader produces
const outputChannels = 2

// ErrSourceClosed is returned by reads after Close
var ErrSourceClosed = errors.New("audio source is closed")

// FileReader decodes an audio file and serves it as interleaved stereo
// float32 with a volume stage applied. It satisfies SampleSource.
type FileReader struct {
	path       string
	sampleRate beep.SampleRate

	mu      sync.Mutex
	pcm     *pcmStreamer
	gain    *effects.Gain
	scratch [][2]float64
	drained bool
	closed  bool
}

// OpenFileReader decodes path from fs using registry
func OpenFileReader(fs afero.Fs, registry *DecoderRegistry, path string) (*FileReader, error) {
	data, err := registry.DecodeFile(fs, path)
	if err != nil {
		return nil, err
	}
	return NewFileReader(path, data)
}

// NewFileReader wraps already decoded audio
func NewFileReader(path string, data *AudioData) (*FileReader, error) {
	if data == nil || data.SampleRate == 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidData, path)
	}

	pcm, err := newPCMStreamer(data)
	if err != nil {
		return nil, err
	}

	reader := &FileReader{
		path:       path,
		sampleRate: beep.SampleRate(data.SampleRate),
		pcm:        pcm,
		gain:       &effects.Gain{Streamer: pcm, Gain: 0},
	}

	slog.Debug("file reader opened",
		"path", path,
		"sample_rate", data.SampleRate,
		"source_channels", data.Channels,
		"duration", reader.Duration())

	return reader, nil
}

// SetVolume sets the linear gain; 1 is unity, 0 is silence
func (r *FileReader) SetVolume(volume float32) {
	if volume < 0 {
		volume = 0
	}
	r.mu.Lock()
	r.gain.Gain = float64(volume) - 1
	r.mu.Unlock()
}

// Volume returns the linear gain currently applied
func (r *FileReader) Volume() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return float32(r.gain.Gain + 1)
}

func (r *FileReader) SampleRate() uint32 { return uint32(r.sampleRate) }

func (r *FileReader) Channels() uint32 { return outputChannels }

// Duration is the playing time of the whole file
func (r *FileReader) Duration() time.Duration {
	return r.sampleRate.D(r.pcm.Len())
}

// Path returns the file the reader was opened from
func (r *FileReader) Path() string { return r.path }

// Read fills samples with interleaved stereo frames. A trailing odd sample
// is left untouched. io.EOF is returned with the final short read.
func (r *FileReader) Read(samples []float32) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrSourceClosed
	}
	if r.drained {
		return 0, io.EOF
	}

	frames := len(samples) / outputChannels
	if frames == 0 {
		return 0, nil
	}
	if cap(r.scratch) < frames {
		r.scratch = make([][2]float64, frames)
	}
	buf := r.scratch[:frames]

	n, ok := r.gain.Stream(buf)
	for i := 0; i < n; i++ {
		samples[i*2] = clip(buf[i][0])
		samples[i*2+1] = clip(buf[i][1])
	}

	if !ok || n < frames {
		r.drained = true
		return n * outputChannels, io.EOF
	}
	return n * outputChannels, nil
}

// Close releases the decoded buffer; later reads fail
func (r *FileReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.scratch = nil
	return nil
}

func clip(v float64) float32 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	default:
		return float32(v)
	}
}
