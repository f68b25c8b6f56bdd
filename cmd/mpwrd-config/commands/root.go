// Package commands implements the mpwrd-config CLI. Commands are thin
// wrappers: they only call exported store and engine entry points and
// format the results; no command mutates system state on its own.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	storePath    string
	settingsPath string
	historyPath  string
	verbose      bool
	jsonOutput   bool

	// buildVersion is stamped by Execute and attached to traces.
	buildVersion = "dev"
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	buildVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mpwrd-config",
		Short: "Canonical device configuration for mpwrd mesh nodes",
		Long: `mpwrd-config keeps a mesh node's system state in line with one
declarative TOML file: hostname and Wi-Fi, managed systemd services, and
hardware peripherals (LEDs, buses).

The engine reads current state, diffs it against the file, and applies
only the changed fields. Applying the same configuration twice changes
nothing the second time.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&storePath, "store", "s", "", "config file path (default /etc/mpwrd-config.toml)")
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "telemetry settings file path")
	rootCmd.PersistentFlags().StringVar(&historyPath, "history-db", "", "run history database path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newShowCommand())
	rootCmd.AddCommand(newDiffCommand())
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newWatchclockCommand())
	rootCmd.AddCommand(newMeshSyncCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}
