package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// newDevicesCommand lists playback devices of one backend
func newDevicesCommand() *cobra.Command {
	var player string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List playback devices",
		Long: `List playback devices of the configured player (or --player).

The ID column is what "play --device" expects.

Examples:
  soundplayer devices
  soundplayer devices --player wasapi
  soundplayer devices --player directsound --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevices(cmd, player, asJSON)
		},
	}

	cmd.Flags().StringVarP(&player, "player", "p", "", "Player backend (waveout, directsound, wasapi, asio)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print devices as JSON")

	return cmd
}

func runDevices(cmd *cobra.Command, player string, asJSON bool) error {
	cli, err := cliFromContext(cmd.Context())
	if err != nil {
		return err
	}

	playerType, err := cli.resolvePlayer(player)
	if err != nil {
		return err
	}

	devices, err := cli.newPlayer(playerType).EnumerateDevices()
	if err != nil {
		return fmt.Errorf("failed to enumerate %s devices: %w", playerType, err)
	}
	slog.Debug("enumerated devices", "player", playerType, "count", len(devices))

	out := cmd.OutOrStdout()
	if asJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		if devices == nil {
			return encoder.Encode([]struct{}{})
		}
		return encoder.Encode(devices)
	}

	if len(devices) == 0 {
		cmd.PrintErrf("No %s playback devices found\n", playerType)
		return nil
	}

	rows := make([][]string, 0, len(devices))
	for _, device := range devices {
		rows = append(rows, []string{device.ID, device.Name})
	}
	return cli.writeRows(out, []string{"ID", "NAME"}, rows)
}
