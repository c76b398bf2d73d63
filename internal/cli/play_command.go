package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/ttsyukkuri/soundplayer/internal/audio"
)

type playOptions struct {
	player      string
	deviceID    string
	volume      int
	deleteAfter bool
}

// stopGrace bounds the wait for sessions to report their stop after the
// command is cancelled
const stopGrace = 2 * time.Second

// newPlayCommand plays one file on one device
func newPlayCommand() *cobra.Command {
	var opts playOptions

	cmd := &cobra.Command{
		Use:   "play FILE",
		Short: "Play an audio file on a playback device",
		Long: `Play a WAV, MP3 or AIFF file on a playback device.

The device ID comes from "soundplayer devices". Volume is a percentage
from 0 to 400; values above 100 amplify. The command waits until
playback finishes; interrupting it stops playback before exiting.

Examples:
  soundplayer play voice.wav
  soundplayer play voice.wav --player wasapi --device "{0.0.0.00000000}.{...}"
  soundplayer play voice.wav --player waveout --device 1 --volume 150 --delete`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.player, "player", "p", "", "Player backend (waveout, directsound, wasapi, asio)")
	cmd.Flags().StringVarP(&opts.deviceID, "device", "d", "", "Device ID (default from config)")
	cmd.Flags().IntVar(&opts.volume, "volume", 100, "Volume percent, 0-400 (default from config)")
	cmd.Flags().BoolVar(&opts.deleteAfter, "delete", false, "Delete the file after playback")

	return cmd
}

func runPlay(cmd *cobra.Command, filePath string, opts playOptions) error {
	cli, err := cliFromContext(cmd.Context())
	if err != nil {
		return err
	}

	playerType, err := cli.resolvePlayer(opts.player)
	if err != nil {
		return err
	}

	deviceID := cli.cfg.DeviceID
	if cmd.Flags().Changed("device") {
		deviceID = opts.deviceID
	}
	volume := cli.cfg.Volume
	if cmd.Flags().Changed("volume") {
		volume = opts.volume
	}
	deleteAfter := cli.cfg.DeleteAfter
	if cmd.Flags().Changed("delete") {
		deleteAfter = opts.deleteAfter
	}

	slog.Debug("play requested",
		"player", playerType,
		"device_id", deviceID,
		"file", filePath,
		"volume", volume,
		"delete_after", deleteAfter)

	waiter := newCompletionWaiter()
	observers := []audio.SessionObserver{waiter}
	// the journal sees each transition before the waiter releases the command
	if recorder := cli.journalRecorder(); recorder != nil {
		observers = []audio.SessionObserver{recorder, waiter}
	}
	player := cli.newPlayer(playerType, observers...)
	player.Play(deviceID, filePath, deleteAfter, volume)

	select {
	case err := <-waiter.done:
		return err
	case <-cmd.Context().Done():
	}

	// drivers and the journal close when the command returns, so nothing
	// may still be playing by then
	slog.Info("stopping playback", "reason", cmd.Context().Err())
	player.StopAll(cmd.Context().Err())
	select {
	case <-waiter.done:
	case <-time.After(stopGrace):
		slog.Warn("playback did not report its stop in time", "grace", stopGrace)
	}
	return cmd.Context().Err()
}

// completionWaiter turns the first stopped or failed notification into a
// value on done
type completionWaiter struct {
	done chan error
}

func newCompletionWaiter() *completionWaiter {
	return &completionWaiter{done: make(chan error, 1)}
}

func (w *completionWaiter) SessionStarted(info audio.SessionInfo) {
	slog.Debug("playback started", "session_id", info.ID)
}

func (w *completionWaiter) SessionStopped(info audio.SessionInfo, err error) {
	if err != nil {
		err = fmt.Errorf("playback interrupted: %w", err)
	}
	w.finish(err)
}

func (w *completionWaiter) SessionFailed(info audio.SessionInfo, err error) {
	w.finish(fmt.Errorf("playback failed: %w", err))
}

func (w *completionWaiter) finish(err error) {
	select {
	case w.done <- err:
	default:
	}
}
