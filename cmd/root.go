// Package cmd wires the psgprep command line interface: batch
// preprocessing over a recording manifest and container validation.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nsrrkit/psgprep/internal/conf"
	"github.com/nsrrkit/psgprep/internal/logging"
)

// Execute builds and runs the root command.
func Execute() error {
	return RootCommand().Execute()
}

// RootCommand creates the root command with all subcommands attached.
// Configuration is loaded once in the persistent pre-run so every
// subcommand sees the same validated settings.
func RootCommand() *cobra.Command {
	var (
		configPath string
		settings   *conf.Settings
	)
	load := func() *conf.Settings { return settings }

	rootCmd := &cobra.Command{
		Use:          "psgprep",
		Short:        "Polysomnography preprocessing pipeline",
		Long:         "psgprep canonicalizes multi-cohort PSG recordings into fixed-rate, normalized signal containers with synchronized sleep stage arrays.",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "configuration file overriding the embedded defaults")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "enable debug output")
	rootCmd.PersistentFlags().StringP("output", "o", "", "output directory for containers and stage arrays")
	rootCmd.PersistentFlags().IntP("workers", "w", 0, "concurrent recordings, 0 uses all CPUs")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
		settings, err = conf.Load(configPath)
		if err != nil {
			return err
		}

		// Command line flags take precedence over file and environment.
		if cmd.Flags().Changed("debug") {
			settings.Debug, _ = cmd.Flags().GetBool("debug")
		}
		if cmd.Flags().Changed("output") {
			settings.Batch.OutputDir, _ = cmd.Flags().GetString("output")
		}
		if cmd.Flags().Changed("workers") {
			settings.Batch.Workers, _ = cmd.Flags().GetInt("workers")
		}

		level := slog.LevelInfo
		if settings.Debug {
			level = slog.LevelDebug
		}
		logging.Init(settings.Log.Path, level)
		return nil
	}

	rootCmd.AddCommand(processCommand(load), validateCommand())
	return rootCmd
}
