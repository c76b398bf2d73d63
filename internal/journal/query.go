package journal

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/tj/go-naturaldate"
)

// DefaultLimit caps history queries that do not set a limit
const DefaultLimit = 20

const sessionsTable = "playback_sessions"

// QueryFilter selects journal rows for the history command
type QueryFilter struct {
	// Time filters, checked in order: DatePreset, StartTime/EndTime, Days
	StartTime  *time.Time
	EndTime    *time.Time
	Days       int
	DatePreset string // "today", "yesterday", "week", "last-week", "month", "last-month", "all"

	Player   string
	DeviceID string
	Status   string

	Limit int
}

// SessionRecord is one row of the journal
type SessionRecord struct {
	SessionID   string     `json:"session_id"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Player      string     `json:"player"`
	DeviceID    string     `json:"device_id"`
	FilePath    string     `json:"file_path"`
	Volume      int        `json:"volume"`
	DeleteAfter bool       `json:"delete_after"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
}

// ApplyTimeFilter converts the time options to Unix timestamps.
// A zero start means no lower bound.
func (q *QueryFilter) ApplyTimeFilter(now time.Time) (startUnix, endUnix int64) {
	endUnix = now.Unix()

	if q.DatePreset != "" {
		start, end, err := ParseDatePreset(q.DatePreset, now)
		if err != nil {
			slog.Warn("invalid date preset, using no time filter", "preset", q.DatePreset, "error", err)
			return 0, endUnix
		}
		if start.IsZero() {
			return 0, end.Unix()
		}
		return start.Unix(), end.Unix()
	}

	if q.StartTime != nil && q.EndTime != nil {
		return q.StartTime.Unix(), q.EndTime.Unix()
	}
	if q.StartTime != nil {
		return q.StartTime.Unix(), endUnix
	}
	if q.EndTime != nil {
		return 0, q.EndTime.Unix()
	}

	if q.Days > 0 {
		return now.AddDate(0, 0, -q.Days).Unix(), endUnix
	}

	return 0, endUnix
}

// hasTimeFilter reports whether any time option is set
func (q *QueryFilter) hasTimeFilter() bool {
	return q.StartTime != nil || q.EndTime != nil || q.Days > 0 || q.DatePreset != ""
}

// where adds the filter's conditions to sb
func (q *QueryFilter) where(sb *sqlbuilder.SelectBuilder, now time.Time) {
	var conds []string

	if q.hasTimeFilter() {
		startUnix, endUnix := q.ApplyTimeFilter(now)
		if startUnix > 0 {
			conds = append(conds, sb.GreaterEqualThan("started_at", startUnix))
		}
		conds = append(conds, sb.LessEqualThan("started_at", endUnix))
	}
	if q.Player != "" {
		conds = append(conds, sb.Equal("player", q.Player))
	}
	if q.DeviceID != "" {
		conds = append(conds, sb.Equal("device_id", q.DeviceID))
	}
	if q.Status != "" {
		conds = append(conds, sb.Equal("status", q.Status))
	}

	if len(conds) > 0 {
		sb.Where(conds...)
	}
}

// SelectSessions builds the query returning matching sessions, newest first
func (q *QueryFilter) SelectSessions(now time.Time) (string, []interface{}) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("session_id", "started_at", "finished_at", "player", "device_id", "file_path",
		"volume", "delete_after", "status", "error").
		From(sessionsTable)
	q.where(sb, now)
	sb.OrderBy("started_at DESC", "id DESC").Limit(limit)

	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)
	slog.Debug("built session query", "query", query, "arg_count", len(args))
	return query, args
}

// CountByStatus builds the query counting matching sessions per status.
// Limit does not apply.
func (q *QueryFilter) CountByStatus(now time.Time) (string, []interface{}) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("status", "COUNT(*)").From(sessionsTable)
	q.where(sb, now)
	sb.GroupBy("status")
	return sb.BuildWithFlavor(sqlbuilder.SQLite)
}

// ValidateStatus rejects status filters the journal never writes
func ValidateStatus(status string) error {
	switch status {
	case "", StatusPlaying, StatusCompleted, StatusInterrupted, StatusFailed:
		return nil
	default:
		return fmt.Errorf("unknown status %q (want %s, %s, %s or %s)",
			status, StatusPlaying, StatusCompleted, StatusInterrupted, StatusFailed)
	}
}

// QuerySessions returns matching sessions, newest first
func QuerySessions(db *sql.DB, filter QueryFilter, now time.Time) ([]SessionRecord, error) {
	query, args := filter.SelectSessions(now)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		var (
			rec         SessionRecord
			startedAt   int64
			finishedAt  sql.NullInt64
			deleteAfter int
			errText     sql.NullString
		)
		if err := rows.Scan(&rec.SessionID, &startedAt, &finishedAt, &rec.Player, &rec.DeviceID,
			&rec.FilePath, &rec.Volume, &deleteAfter, &rec.Status, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		rec.StartedAt = time.Unix(startedAt, 0)
		if finishedAt.Valid {
			t := time.Unix(finishedAt.Int64, 0)
			rec.FinishedAt = &t
		}
		rec.DeleteAfter = deleteAfter == 1
		rec.Error = errText.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	slog.Debug("queried sessions", "count", len(records))
	return records, nil
}

// StatusCounts returns the number of matching sessions per status
func StatusCounts(db *sql.DB, filter QueryFilter, now time.Time) (map[string]int, error) {
	query, args := filter.CountByStatus(now)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// ParseDatePreset converts date preset strings to time ranges
func ParseDatePreset(preset string, now time.Time) (start, end time.Time, err error) {
	switch preset {
	case "today":
		start = beginningOfDay(now)
		end = now
	case "yesterday":
		start = beginningOfDay(now.AddDate(0, 0, -1))
		end = beginningOfDay(now)
	case "week", "this-week":
		start = beginningOfWeek(now)
		end = now
	case "last-week":
		start = beginningOfWeek(now).AddDate(0, 0, -7)
		end = beginningOfWeek(now)
	case "month", "this-month":
		start = beginningOfMonth(now)
		end = now
	case "last-month":
		start = beginningOfMonth(now).AddDate(0, -1, 0)
		end = beginningOfMonth(now)
	case "all", "all-time":
		end = now
	default:
		err = fmt.Errorf("unknown preset: %s", preset)
		return
	}

	slog.Debug("parsed date preset", "preset", preset, "start", start, "end", end)
	return
}

// ParseNaturalDate parses expressions like "2 hours ago" or "last monday"
// relative to now
func ParseNaturalDate(input string, now time.Time) (time.Time, error) {
	result, err := naturaldate.Parse(input, now, naturaldate.WithDirection(naturaldate.Past))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse natural date '%s': %w", input, err)
	}

	slog.Debug("parsed natural language date", "input", input, "result", result)
	return result, nil
}

func beginningOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// beginningOfWeek returns Monday 00:00 of t's week
func beginningOfWeek(t time.Time) time.Time {
	weekday := t.Weekday()
	if weekday == time.Sunday {
		weekday = 7
	}
	return beginningOfDay(t.AddDate(0, 0, -int(weekday-1)))
}

func beginningOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
