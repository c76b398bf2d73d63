package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ttsyukkuri/soundplayer/internal/journal"
)

var errJournalDisabled = errors.New("playback journal is disabled (set journal.enabled in config or SOUNDPLAYER_JOURNAL=true)")

type historyOptions struct {
	days   int
	preset string
	since  string
	status string
	player string
	limit  int
	asJSON bool
}

// newHistoryCommand queries the playback journal
func newHistoryCommand() *cobra.Command {
	var opts historyOptions

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded playback sessions",
		Long: `Show playback sessions recorded in the journal, newest first.

Examples:
  soundplayer history
  soundplayer history --preset today
  soundplayer history --since "2 hours ago" --status failed
  soundplayer history --days 30 --player wasapi --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts, time.Now())
		},
	}

	cmd.Flags().IntVar(&opts.days, "days", 0, "Only sessions from the last N days (0 = all time)")
	cmd.Flags().StringVar(&opts.preset, "preset", "", "Date preset (today, yesterday, week, last-week, month, last-month, all)")
	cmd.Flags().StringVar(&opts.since, "since", "", `Only sessions since a natural language time, e.g. "3 hours ago"`)
	cmd.Flags().StringVar(&opts.status, "status", "", "Filter by status (playing, completed, interrupted, failed)")
	cmd.Flags().StringVarP(&opts.player, "player", "p", "", "Filter by player backend")
	cmd.Flags().IntVar(&opts.limit, "limit", journal.DefaultLimit, "Maximum number of sessions to show")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print sessions as JSON")

	return cmd
}

func runHistory(cmd *cobra.Command, opts historyOptions, now time.Time) error {
	cli, err := cliFromContext(cmd.Context())
	if err != nil {
		return err
	}

	if err := journal.ValidateStatus(opts.status); err != nil {
		return err
	}

	db, err := cli.openJournal()
	if err != nil {
		return fmt.Errorf("failed to open playback journal: %w", err)
	}
	if db == nil {
		return errJournalDisabled
	}

	filter := journal.QueryFilter{
		Days:       opts.days,
		DatePreset: opts.preset,
		Status:     opts.status,
		Player:     opts.player,
		Limit:      opts.limit,
	}
	if opts.since != "" {
		since, err := journal.ParseNaturalDate(opts.since, now)
		if err != nil {
			return err
		}
		filter.StartTime = &since
	}

	slog.Debug("running history query", "filter", fmt.Sprintf("%+v", filter))

	records, err := journal.QuerySessions(db, filter, now)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.asJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		if records == nil {
			records = []journal.SessionRecord{}
		}
		return encoder.Encode(records)
	}

	if len(records) == 0 {
		cmd.PrintErrln("No playback sessions recorded")
		return nil
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			rec.StartedAt.Format(time.DateTime),
			rec.Status,
			rec.Player,
			rec.DeviceID,
			strconv.Itoa(rec.Volume),
			rec.FilePath,
			rec.Error,
		})
	}
	if err := cli.writeRows(out, []string{"STARTED", "STATUS", "PLAYER", "DEVICE", "VOLUME", "FILE", "ERROR"}, rows); err != nil {
		return err
	}

	counts, err := journal.StatusCounts(db, filter, now)
	if err != nil {
		return err
	}
	cmd.PrintErrln(formatCounts(counts))
	return nil
}

// formatCounts renders status totals in a stable order
func formatCounts(counts map[string]int) string {
	statuses := make([]string, 0, len(counts))
	for status := range counts {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)

	parts := make([]string, 0, len(statuses))
	for _, status := range statuses {
		parts = append(parts, fmt.Sprintf("%s=%d", status, counts[status]))
	}
	return "Totals: " + strings.Join(parts, " ")
}
