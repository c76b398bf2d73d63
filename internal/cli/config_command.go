package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// newConfigCommand groups configuration file helpers
func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}
	cmd.AddCommand(newConfigPathCommand(), newConfigShowCommand(), newConfigInitCommand())
	return cmd
}

func newConfigPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file in use, or where one would be created",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := cliFromContext(cmd.Context())
			if err != nil {
				return err
			}
			path, found := cli.configManager.FindConfigFile()
			if !found {
				path = cli.configManager.DefaultConfigPath(".yaml")
				cmd.PrintErrln("No config file found; defaults are in use")
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := cliFromContext(cmd.Context())
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cli.cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigInitCommand() *cobra.Command {
	var format string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to the user config file",
		Long: `Write the effective configuration (defaults plus environment and
flag overrides) to the user config directory.

Examples:
  soundplayer config init
  soundplayer config init --format json --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := cliFromContext(cmd.Context())
			if err != nil {
				return err
			}

			var ext string
			switch format {
			case "yaml", "yml":
				ext = ".yaml"
			case "json":
				ext = ".json"
			default:
				return fmt.Errorf("unknown format %q (want yaml or json)", format)
			}

			path := cli.configManager.DefaultConfigPath(ext)
			if exists, _ := afero.Exists(cli.fs, path); exists && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			if err := cli.configManager.SaveToFile(cli.cfg, path); err != nil {
				return err
			}
			slog.Debug("config file written", "path", path)
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "yaml", "File format (yaml or json)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}
