package audio

import (
	"errors"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/afero"
)

// session owns the output and reader of one playback until it stops
type session struct {
	info     SessionInfo
	fs       afero.Fs
	observer SessionObserver

	output Output
	reader *FileReader

	// untrack removes the session from its player once it has ended
	untrack func(*session)

	releaseOnce sync.Once
	endOnce     sync.Once
}

// release closes the output before the reader so the backend stops pulling first
func (s *session) release() {
	s.releaseOnce.Do(func() {
		if s.output != nil {
			if err := s.output.Close(); err != nil {
				slog.Warn("failed to close output", "session", s.info.ID, "error", err)
			}
		}
		if s.reader != nil {
			if err := s.reader.Close(); err != nil {
				slog.Warn("failed to close reader", "session", s.info.ID, "error", err)
			}
		}
	})
}

// abandon releases a session that failed to start. A stopped handler
// firing afterwards is ignored, so observers see only the failure.
func (s *session) abandon() {
	s.endOnce.Do(func() {})
	s.forget()
	s.release()
}

// stopped is the output's stopped handler
func (s *session) stopped(err error) {
	s.endOnce.Do(func() { s.finish(err) })
}

func (s *session) forget() {
	if s.untrack != nil {
		s.untrack(s)
	}
}

func (s *session) finish(err error) {
	s.forget()
	s.release()

	if s.info.DeleteAfter {
		if rmErr := s.fs.Remove(s.info.FilePath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			slog.Warn("failed to delete played file", "session", s.info.ID, "file", s.info.FilePath, "error", rmErr)
		} else {
			slog.Debug("played file deleted", "session", s.info.ID, "file", s.info.FilePath)
		}
	}

	if err != nil {
		slog.Debug("playback stopped with error", "session", s.info.ID, "error", err)
	} else {
		slog.Debug("playback finished", "session", s.info.ID)
	}
	s.observer.SessionStopped(s.info, err)
}
