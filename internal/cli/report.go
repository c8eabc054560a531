package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/embedware/sizedeltas/internal/config"
	"github.com/embedware/sizedeltas/internal/eventctx"
	"github.com/embedware/sizedeltas/internal/github"
	"github.com/embedware/sizedeltas/internal/pipeline"
	"github.com/embedware/sizedeltas/internal/reports"
)

var (
	flagRepository  string
	flagSource      string
	flagKind        string
	flagToken       string
	flagChangesOnly bool
	flagVerbose     bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Aggregate size reports and publish delta comments",
	Long: "Resolve sketch size reports from workflow artifacts or a local directory,\n" +
		"compute memory-usage deltas, and publish them to the matching pull requests.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, warnings, err := config.Load(buildOverrides(cmd))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitUsageError
			return nil
		}
		for _, w := range warnings {
			warnf("%s", w)
		}
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitUsageError
			return nil
		}

		ambient, err := eventctx.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}

		// Sweep mode compiles the source as an artifact-name pattern; an
		// invalid expression must abort before any network I/O.
		if !ambient.IsPullRequest() {
			if _, err := cfg.SourcePattern(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				exitCode = ExitUsageError
				return nil
			}
		}

		client, err := github.NewClient(cfg.Repository, cfg.Token)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitAuthError
			return nil
		}

		underActions := os.Getenv("GITHUB_ACTIONS") == "true"
		runner := pipeline.New(client, cfg, os.Stderr, underActions)
		ctx := context.Background()

		var summary pipeline.Summary
		if ambient.IsPullRequest() {
			dir := cfg.Source
			if ws := os.Getenv("GITHUB_WORKSPACE"); ws != "" && !filepath.IsAbs(dir) {
				dir = filepath.Join(ws, dir)
			}
			summary, err = runner.RunLocal(ctx, dir, ambient)
		} else {
			summary, err = runner.RunSweep(ctx)
		}

		if err != nil {
			if errors.Is(err, reports.ErrNoReports) {
				fmt.Fprintln(os.Stdout, "No size deltas data found, nothing to report.")
				exitCode = ExitNothingToReport
				return nil
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}

		printSummary(summary)
		if summary.Published() == 0 {
			if summary.Failed() > 0 {
				exitCode = ExitRuntimeError
			} else {
				exitCode = ExitNothingToReport
			}
		}
		return nil
	},
}

func buildOverrides(cmd *cobra.Command) map[string]string {
	overrides := map[string]string{
		"repository": flagRepository,
		"source":     flagSource,
		"kind":       flagKind,
		"token":      flagToken,
	}
	if cmd.Flags().Changed("changes-only") {
		overrides["changes-only"] = fmt.Sprintf("%t", flagChangesOnly)
	}
	if cmd.Flags().Changed("verbose") {
		overrides["verbose"] = fmt.Sprintf("%t", flagVerbose)
	}
	return overrides
}

func printSummary(summary pipeline.Summary) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	for _, o := range summary.Outcomes {
		switch {
		case o.Err != nil:
			fmt.Fprintf(os.Stderr, "%s %s: %v\n", red("✗"), outcomeLabel(o), o.Err)
		case o.Skipped != "":
			fmt.Fprintf(os.Stderr, "%s %s: %s\n", yellow("-"), outcomeLabel(o), o.Skipped)
		default:
			fmt.Fprintf(os.Stderr, "%s %s: %d page(s) (created %d, updated %d, deleted %d, unchanged %d)\n",
				green("✓"), outcomeLabel(o), o.Pages,
				o.Publish.Created, o.Publish.Updated, o.Publish.Deleted, o.Publish.Unchanged)
		}
	}
	fmt.Fprintf(os.Stdout, "Run %s: %d published, %d failed, %d group(s) total.\n",
		summary.RunID, summary.Published(), summary.Failed(), len(summary.Outcomes))
}

func outcomeLabel(o pipeline.Outcome) string {
	if o.PRNumber > 0 {
		return fmt.Sprintf("PR #%d", o.PRNumber)
	}
	if o.Commit != "" {
		return fmt.Sprintf("commit %s", o.Commit)
	}
	return "group"
}

func warnf(format string, args ...any) {
	if os.Getenv("GITHUB_ACTIONS") == "true" {
		fmt.Fprintf(os.Stderr, "::warning::"+format+"\n", args...)
		return
	}
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}

func init() {
	reportCmd.Flags().StringVar(&flagRepository, "repository", "", "repository in owner/name form (defaults to GITHUB_REPOSITORY)")
	reportCmd.Flags().StringVar(&flagSource, "source", "", "artifact-name pattern or report directory")
	reportCmd.Flags().StringVar(&flagKind, "kind", "", "report kind discriminator (default memory-usage)")
	reportCmd.Flags().StringVar(&flagToken, "token", "", "GitHub access token (defaults to GITHUB_TOKEN)")
	reportCmd.Flags().BoolVar(&flagChangesOnly, "changes-only", false, "omit unchanged rows from the report tables")
	reportCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug output")
}
