package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/acwooding/dmp-test-ci/config"
	"github.com/acwooding/dmp-test-ci/internal/report"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	var open bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the canvas suite once",
		Long: `Run every scenario against the page at --url, compare screenshots with the
baselines in --baseline-dir and write report.json and index.html to --results-dir.
Exits non-zero when any scenario fails.`,
		Example: `  dmp-test-ci run
  dmp-test-ci run --grep zoom,pan --workers 2
  dmp-test-ci run --update-snapshots missing`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(cmd.Flags(), map[string]string{
				"suite.file":       "suite",
				"suite.base_url":   "url",
				"suite.grep":       "grep",
				"suite.workers":    "workers",
				"suite.timeout":    "timeout",
				"snapshot.update":  "update-snapshots",
				"snapshot.dir":     "baseline-dir",
				"browser.headless": "headless",
				"results.dir":      "results-dir",
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := config.Get()
			if _, err := runnerOptions(settings); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rep, err := executeSuite(ctx, settings, settings.Grep, settings.ResultsDir, nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := out == os.Stdout && report.IsTerminal(os.Stdout)
			if err := report.PrintSummary(out, rep, colorize); err != nil {
				return err
			}
			fmt.Fprintf(out, "  report: %s\n", logger.Path(settings.ResultsDir))

			if open {
				if err := openReport(settings.ResultsDir, rep); err != nil {
					logger.Warn("%v", err)
				}
			}
			if !rep.OK() {
				return fmt.Errorf("%w: %d of %d scenarios failed", ErrSuiteFailed, rep.Failed, len(rep.Results))
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("suite", "", "YAML suite file (default: built-in CORD-19 suite)")
	flags.String("url", "", "Page under test")
	flags.String("grep", "", "Only run scenarios whose name contains one of these comma-separated terms")
	flags.Int("workers", 1, "Scenarios run in parallel")
	flags.String("update-snapshots", "none", "Write baselines: none, missing or all")
	flags.Bool("headless", true, "Run Chromium headless")
	flags.String("baseline-dir", "", "Directory holding the golden screenshots")
	flags.String("results-dir", "", "Directory for reports and failure artifacts")
	flags.Duration("timeout", 0, "Base per-scenario timeout before the setup extension and slow multiplier")
	flags.BoolVar(&open, "open", false, "Open the HTML report when done")

	cmd.RegisterFlagCompletionFunc("update-snapshots", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"none", "missing", "all"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}
