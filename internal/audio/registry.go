package audio

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
)

// sniffLength is how much of a file mimetype inspects
const sniffLength = 3072

// mimeFormats maps detected MIME types onto decoder format names
var mimeFormats = map[string]string{
	"audio/wav":       "WAV",
	"audio/x-wav":     "WAV",
	"audio/wave":      "WAV",
	"audio/vnd.wave":  "WAV",
	"audio/mpeg":      "MP3",
	"audio/mp3":       "MP3",
	"audio/x-mpeg":    "MP3",
	"audio/aiff":      "AIFF",
	"audio/x-aiff":    "AIFF",
	"audio/x-aifc":    "AIFF",
	"audio/aifc":      "AIFF",
	"audio/x-mp3":     "MP3",
	"audio/mpeg3":     "MP3",
	"audio/x-mpeg-3":  "MP3",
	"audio/x-wav-pcm": "WAV",
}

// DecoderRegistry picks a decoder for a file by content, then by extension
type DecoderRegistry struct {
	decoders []Decoder
}

// NewDecoderRegistry creates a new empty decoder registry
func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{
		decoders: make([]Decoder, 0),
	}
}

// NewDefaultRegistry creates a registry with WAV, MP3 and AIFF decoders
func NewDefaultRegistry() *DecoderRegistry {
	registry := NewDecoderRegistry()
	registry.Register(NewWavDecoder())
	registry.Register(NewMp3Decoder())
	registry.Register(NewAiffDecoder())

	slog.Debug("default decoder registry initialized",
		"supported_formats", registry.SupportedFormats())

	return registry
}

// Register adds a decoder; earlier registrations win extension ties
func (r *DecoderRegistry) Register(decoder Decoder) {
	if decoder == nil {
		slog.Warn("attempted to register nil decoder")
		return
	}

	r.decoders = append(r.decoders, decoder)
	slog.Debug("decoder registered",
		"format", decoder.FormatName(),
		"total_decoders", len(r.decoders))
}

// SupportedFormats returns the format names of all registered decoders
func (r *DecoderRegistry) SupportedFormats() []string {
	formats := make([]string, 0, len(r.decoders))
	for _, decoder := range r.decoders {
		formats = append(formats, decoder.FormatName())
	}
	return formats
}

// DetectFormat returns the first decoder accepting filename's extension
func (r *DecoderRegistry) DetectFormat(filename string) Decoder {
	if filename == "" {
		return nil
	}

	for _, decoder := range r.decoders {
		if decoder.CanDecode(filename) {
			slog.Debug("format detected by extension",
				"filename", filename,
				"format", decoder.FormatName())
			return decoder
		}
	}

	slog.Debug("no decoder found for filename", "filename", filename)
	return nil
}

// DetectFormatWithContent sniffs the header bytes and falls back to the extension
func (r *DecoderRegistry) DetectFormatWithContent(filename string, header []byte) Decoder {
	if len(header) == 0 {
		return r.DetectFormat(filename)
	}

	if len(header) > sniffLength {
		header = header[:sniffLength]
	}

	detected := mimetype.Detect(header)
	for mtype := detected; mtype != nil; mtype = mtype.Parent() {
		format, ok := mimeFormats[strings.ToLower(mtype.String())]
		if !ok {
			continue
		}
		if decoder := r.findDecoderByFormat(format); decoder != nil {
			slog.Debug("format detected by magic bytes",
				"filename", filename,
				"format", decoder.FormatName(),
				"mime_type", mtype.String())
			return decoder
		}
	}

	slog.Debug("magic detection inconclusive, falling back to extension",
		"filename", filename,
		"mime_type", detected.String())
	return r.DetectFormat(filename)
}

func (r *DecoderRegistry) findDecoderByFormat(formatName string) Decoder {
	for _, decoder := range r.decoders {
		if strings.EqualFold(decoder.FormatName(), formatName) {
			return decoder
		}
	}
	return nil
}

// Decode decodes content already held in memory
func (r *DecoderRegistry) Decode(filename string, content []byte) (*AudioData, error) {
	decoder := r.DetectFormatWithContent(filename, content)
	if decoder == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}

	audioData, err := decoder.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%s decode of %s: %w", decoder.FormatName(), filename, err)
	}

	slog.Debug("file decoded",
		"filename", filename,
		"decoder_format", decoder.FormatName(),
		"channels", audioData.Channels,
		"sample_rate", audioData.SampleRate,
		"frames", audioData.Frames())

	return audioData, nil
}

// DecodeFile reads and decodes path from fs
func (r *DecoderRegistry) DecodeFile(fs afero.Fs, path string) (*AudioData, error) {
	content, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	return r.Decode(path, content)
}
