// Package cmd provides the command-line interface of cyclesim.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cyclesim",
	Short: "cyclesim runs cycle-accurate models on a phase-committed kernel.",
	Long: `cyclesim runs cycle-accurate models on a phase-committed kernel. ` +
		`It can trace deadlocks, record stalls into SQLite, serve a ` +
		`monitor while the model runs, and report on recorded runs.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. It exits through atexit so that recorders get flushed.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
