package audio

import (
	"io"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReader(t *testing.T, channels int, values []int) *FileReader {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/clip.wav", buildWAV(channels, 8000, 16, values), 0644))

	reader, err := OpenFileReader(fs, NewDefaultRegistry(), "/clip.wav")
	require.NoError(t, err)
	t.Cleanup(func() { reader.Close() })
	return reader
}

func TestFileReaderFormat(t *testing.T) {
	reader := newTestReader(t, 1, make([]int, 8000))

	assert.Equal(t, uint32(8000), reader.SampleRate())
	assert.Equal(t, uint32(2), reader.Channels())
	assert.Equal(t, time.Second, reader.Duration())
	assert.Equal(t, "/clip.wav", reader.Path())
	assert.InDelta(t, 1.0, reader.Volume(), 1e-6)
}

func TestFileReaderVolume(t *testing.T) {
	testCases := []struct {
		name    string
		percent int
		gain    float32
	}{
		{"full", 100, 1.0},
		{"half", 50, 0.5},
		{"mute", 0, 0},
		{"boosted", 200, 2.0},
		{"negative clamps to mute", -20, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			reader := newTestReader(t, 2, []int{16384, -16384})
			reader.SetVolume(volumeToGain(tc.percent))
			assert.InDelta(t, tc.gain, reader.Volume(), 1e-6)

			samples := make([]float32, 2)
			n, err := reader.Read(samples)
			require.Equal(t, 2, n)
			if err != nil {
				assert.ErrorIs(t, err, io.EOF)
			}
			assert.InDelta(t, 0.5*float64(tc.gain), samples[0], 1e-4)
			assert.InDelta(t, -0.5*float64(tc.gain), samples[1], 1e-4)
		})
	}
}

func TestFileReaderMonoIsDuplicated(t *testing.T) {
	reader := newTestReader(t, 1, []int{8192, -8192})

	samples := make([]float32, 4)
	n, _ := reader.Read(samples)
	require.Equal(t, 4, n)
	assert.InDelta(t, 0.25, samples[0], 1e-4)
	assert.InDelta(t, 0.25, samples[1], 1e-4)
	assert.InDelta(t, -0.25, samples[2], 1e-4)
	assert.InDelta(t, -0.25, samples[3], 1e-4)
}

func TestFileReaderClipsBoostedSamples(t *testing.T) {
	reader := newTestReader(t, 2, []int{30000, -30000})
	reader.SetVolume(4)

	samples := make([]float32, 2)
	reader.Read(samples)
	assert.Equal(t, float32(1), samples[0])
	assert.Equal(t, float32(-1), samples[1])
}

func TestFileReaderEndOfStream(t *testing.T) {
	reader := newTestReader(t, 2, []int{1, 1, 2, 2, 3, 3})

	samples := make([]float32, 4)
	n, err := reader.Read(samples)
	assert.Equal(t, 4, n)
	assert.NoError(t, err)

	n, err = reader.Read(samples)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, io.EOF)

	n, err = reader.Read(samples)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFileReaderClose(t *testing.T) {
	reader := newTestReader(t, 2, []int{1, 1})
	require.NoError(t, reader.Close())
	require.NoError(t, reader.Close())

	_, err := reader.Read(make([]float32, 2))
	assert.ErrorIs(t, err, ErrSourceClosed)
}

func TestOpenFileReaderErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/bad.wav", []byte("RIFF garbage"), 0644))

	_, err := OpenFileReader(fs, NewDefaultRegistry(), "/missing.wav")
	assert.Error(t, err)

	assert.NotPanics(t, func() {
		_, err = OpenFileReader(fs, NewDefaultRegistry(), "/bad.wav")
	})
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestPCMStreamerSampleConversion(t *testing.T) {
	testCases := []struct {
		name   string
		format SampleFormat
		raw    []byte
		want   float64
	}{
		{"u8 midpoint", FormatU8, []byte{0x80}, 0},
		{"u8 min", FormatU8, []byte{0x00}, -1},
		{"s16 min", FormatS16, []byte{0x00, 0x80}, -1},
		{"s16 half", FormatS16, []byte{0x00, 0x40}, 0.5},
		{"s24 negative half", FormatS24, []byte{0x00, 0x00, 0xC0}, -0.5},
		{"s32 quarter", FormatS32, []byte{0x00, 0x00, 0x00, 0x20}, 0.25},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			streamer, err := newPCMStreamer(&AudioData{Samples: tc.raw, Channels: 1, SampleRate: 8000, Format: tc.format})
			require.NoError(t, err)

			buf := make([][2]float64, 4)
			n, ok := streamer.Stream(buf)
			require.True(t, ok)
			require.Equal(t, 1, n)
			assert.InDelta(t, tc.want, buf[0][0], 1e-9)
			assert.InDelta(t, tc.want, buf[0][1], 1e-9)

			n, ok = streamer.Stream(buf)
			assert.False(t, ok)
			assert.Equal(t, 0, n)
		})
	}
}

func TestPCMStreamerSeek(t *testing.T) {
	streamer, err := newPCMStreamer(&AudioData{Samples: make([]byte, 8), Channels: 2, SampleRate: 8000, Format: FormatS16})
	require.NoError(t, err)

	assert.Equal(t, 2, streamer.Len())
	require.NoError(t, streamer.Seek(1))
	assert.Equal(t, 1, streamer.Position())
	assert.Error(t, streamer.Seek(3))
	assert.Error(t, streamer.Seek(-1))
}
