package audio

import (
	"fmt"
	"log/slog"
)

// MessagePlaybackFailed is recorded with every swallowed playback failure
const MessagePlaybackFailed = "An exception occurred while playing sound."

// Playback stages a PlaybackError can come from
const (
	StageOpen   = "open"
	StageDecode = "decode"
	StageInit   = "init"
	StageStart  = "start"
)

// PlaybackError describes where and for what a playback attempt failed
type PlaybackError struct {
	Stage    string
	Player   PlayerType
	DeviceID string
	FilePath string
	Err      error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("%s %s on %s device %q: %v", e.Stage, e.FilePath, e.Player, e.DeviceID, e.Err)
}

func (e *PlaybackError) Unwrap() error {
	return e.Err
}

// ExceptionLogger is the host's diagnostic sink
type ExceptionLogger interface {
	WriteExceptionLog(err error, message string)
}

// SlogExceptionLogger writes exception records to a slog.Logger
type SlogExceptionLogger struct {
	Logger *slog.Logger
}

// NewSlogExceptionLogger returns a sink on logger, or on slog.Default when nil
func NewSlogExceptionLogger(logger *slog.Logger) *SlogExceptionLogger {
	return &SlogExceptionLogger{Logger: logger}
}

func (l *SlogExceptionLogger) WriteExceptionLog(err error, message string) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []any{"message", message, "error", err}
	if pe, ok := err.(*PlaybackError); ok {
		attrs = append(attrs,
			"stage", pe.Stage,
			"player", pe.Player,
			"device_id", pe.DeviceID,
			"file", pe.FilePath)
	}
	logger.Error("exception", attrs...)
}
