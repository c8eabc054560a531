package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

// Exit codes. Nothing-to-report is a distinct completed outcome, not a
// failure, so CI can tell an empty sweep from an unchanged report.
const (
	ExitSuccess         = 0
	ExitNothingToReport = 1
	ExitUsageError      = 2
	ExitAuthError       = 3
	ExitRuntimeError    = 4
)

var rootCmd = &cobra.Command{
	Use:   "sizedeltas",
	Short: "Report firmware memory-usage changes on pull requests",
	Long: "Sizedeltas aggregates compiled-sketch size reports, computes flash/RAM deltas\n" +
		"against the best available baseline, and publishes the result as a single\n" +
		"idempotently-updated comment on the originating pull request.",
}

// Run executes the root command and returns an exit code.
func Run() int {
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error
		return ExitUsageError
	}

	return exitCode
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print sizedeltas version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "sizedeltas version %s\n", version)
	},
}
