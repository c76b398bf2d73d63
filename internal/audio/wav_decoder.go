package audio

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/youpy/go-wav"
)

// WavDecoder handles RIFF/WAVE PCM decoding
type WavDecoder struct{}

// NewWavDecoder creates a new WAV decoder instance
func NewWavDecoder() *WavDecoder {
	return &WavDecoder{}
}

// Decode reads WAV audio data from reader and returns decoded PCM data
func (d *WavDecoder) Decode(reader io.Reader) (result *AudioData, err error) {
	slog.Debug("starting WAV decode operation")

	// go-riff panics on truncated chunks
	defer func() {
		if r := recover(); r != nil {
			slog.Error("malformed WAV data", "panic", r)
			result, err = nil, ErrInvalidData
		}
	}()

	// go-wav needs a ReadSeeker
	data, err := io.ReadAll(reader)
	if err != nil {
		slog.Error("failed to read WAV data", "error", err)
		return nil, ErrReadFailure
	}
	if len(data) == 0 {
		slog.Error("empty WAV data")
		return nil, ErrInvalidData
	}

	wavReader := wav.NewReader(bytes.NewReader(data))
	format, err := wavReader.Format()
	if err != nil {
		slog.Error("failed to read WAV format", "error", err)
		return nil, ErrInvalidData
	}

	slog.Debug("WAV format detected",
		"sample_rate", format.SampleRate,
		"channels", format.NumChannels,
		"bits_per_sample", format.BitsPerSample)

	if format.NumChannels == 0 || format.SampleRate == 0 {
		slog.Error("invalid WAV format parameters",
			"channels", format.NumChannels,
			"sample_rate", format.SampleRate)
		return nil, ErrInvalidData
	}

	sampleFormat := formatForBitDepth(int(format.BitsPerSample))
	if sampleFormat == FormatUnknown {
		slog.Error("unsupported WAV bit depth", "bits", format.BitsPerSample)
		return nil, ErrUnsupportedFormat
	}

	channels := int(format.NumChannels)
	width := sampleFormat.BytesPerSample()
	var rawBytes []byte
	frames := 0

	for {
		samples, err := wavReader.ReadSamples()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			slog.Error("failed to read WAV samples", "error", err, "frames_read", frames)
			return nil, ErrReadFailure
		}
		if len(samples) == 0 {
			break
		}

		for _, sample := range samples {
			for ch := 0; ch < channels; ch++ {
				val := 0
				if ch < len(sample.Values) {
					val = sample.Values[ch]
				}
				rawBytes = appendSample(rawBytes, val, width)
			}
		}
		frames += len(samples)
	}

	if frames == 0 {
		slog.Error("no audio data found in WAV file")
		return nil, ErrInvalidData
	}

	audioData := &AudioData{
		Samples:    rawBytes,
		Channels:   uint32(format.NumChannels),
		SampleRate: format.SampleRate,
		Format:     sampleFormat,
	}

	slog.Info("WAV decode completed",
		"frames", frames,
		"channels", audioData.Channels,
		"sample_rate", audioData.SampleRate,
		"format", sampleFormat,
		"duration_ms", frames*1000/int(audioData.SampleRate))

	return audioData, nil
}

// appendSample writes val as a little-endian sample of the given width
func appendSample(dst []byte, val int, width int) []byte {
	switch width {
	case 1:
		return append(dst, byte(val))
	case 2:
		return append(dst, byte(val), byte(val>>8))
	case 3:
		return append(dst, byte(val), byte(val>>8), byte(val>>16))
	default:
		return append(dst, byte(val), byte(val>>8), byte(val>>16), byte(val>>24))
	}
}

// CanDecode checks if this decoder can handle the given filename
func (d *WavDecoder) CanDecode(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".wav") || strings.HasSuffix(lower, ".wave")
}

// FormatName returns the name of the format this decoder handles
func (d *WavDecoder) FormatName() string {
	return "WAV"
}
