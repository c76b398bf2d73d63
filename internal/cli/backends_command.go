package cli

import (
	"github.com/spf13/cobra"

	"github.com/ttsyukkuri/soundplayer/internal/audio"
)

// newBackendsCommand reports which player backends can be opened here
func newBackendsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List supported player backends and whether they are available",
		Args:  cobra.NoArgs,
		RunE:  runBackends,
	}
}

func runBackends(cmd *cobra.Command, args []string) error {
	cli, err := cliFromContext(cmd.Context())
	if err != nil {
		return err
	}

	availability := cli.drivers().Availability()
	current := audio.ParsePlayerType(cli.cfg.Player)

	rows := make([][]string, 0, len(availability))
	for _, playerType := range audio.SupportedPlayers() {
		status := "available"
		if err := availability[playerType]; err != nil {
			status = "unavailable: " + err.Error()
		}
		marker := ""
		if playerType == current {
			marker = "*"
		}
		rows = append(rows, []string{playerType.String(), status, marker})
	}

	return cli.writeRows(cmd.OutOrStdout(), []string{"PLAYER", "STATUS", "CONFIGURED"}, rows)
}
