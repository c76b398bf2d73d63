package journal

import (
	"database/sql"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ttsyukkuri/soundplayer/internal/audio"
)

// Session statuses stored in the status column
const (
	StatusPlaying     = "playing"
	StatusCompleted   = "completed"
	StatusInterrupted = "interrupted"
	StatusFailed      = "failed"
)

// Recorder writes session transitions to the journal. It implements
// audio.SessionObserver and is safe for concurrent use.
type Recorder struct {
	db       *sql.DB
	now      func() time.Time
	disabled atomic.Bool
}

// NewRecorder creates a recorder writing to db
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db, now: time.Now}
}

func (r *Recorder) SessionStarted(info audio.SessionInfo) {
	started := info.StartedAt
	if started.IsZero() {
		started = r.now()
	}
	r.write(info, started, StatusPlaying, nil, "")
}

func (r *Recorder) SessionStopped(info audio.SessionInfo, err error) {
	status := StatusCompleted
	if err != nil {
		status = StatusInterrupted
	}
	finished := r.now()
	r.write(info, info.StartedAt, status, &finished, errorText(err))
}

// SessionFailed may arrive without a preceding SessionStarted, so the row
// is inserted when missing.
func (r *Recorder) SessionFailed(info audio.SessionInfo, err error) {
	finished := r.now()
	r.write(info, info.StartedAt, StatusFailed, &finished, errorText(err))
}

func (r *Recorder) write(info audio.SessionInfo, started time.Time, status string, finished *time.Time, errText string) {
	if r.disabled.Load() {
		return
	}
	if started.IsZero() {
		started = r.now()
	}

	var finishedAt sql.NullInt64
	if finished != nil {
		finishedAt = sql.NullInt64{Int64: finished.Unix(), Valid: true}
	}
	var errCol sql.NullString
	if errText != "" {
		errCol = sql.NullString{String: errText, Valid: true}
	}

	_, err := r.db.Exec(`
		INSERT INTO playback_sessions
			(session_id, started_at, finished_at, player, device_id, file_path, volume, delete_after, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			finished_at = excluded.finished_at,
			status = excluded.status,
			error = excluded.error`,
		info.ID,
		started.Unix(),
		finishedAt,
		string(info.Player),
		info.DeviceID,
		info.FilePath,
		info.Volume,
		boolToInt(info.DeleteAfter),
		status,
		errCol)
	if err != nil {
		slog.Warn("playback journal write failed, disabling journal", "error", err, "session_id", info.ID)
		r.disabled.Store(true)
		return
	}

	slog.Debug("playback journal updated",
		"session_id", info.ID,
		"status", status,
		"player", info.Player)
}

// Disabled reports whether a previous write failure switched the recorder off
func (r *Recorder) Disabled() bool {
	return r.disabled.Load()
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
