package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/acwooding/dmp-test-ci/config"
	"github.com/acwooding/dmp-test-ci/internal/report"
	"github.com/acwooding/dmp-test-ci/internal/scenario"
)

// NewReportCommand creates the report command
func NewReportCommand() *cobra.Command {
	var open bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the last run's report",
		Long:  `Print the summary of report.json in the results directory and optionally open the HTML report.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(cmd.Flags(), map[string]string{"results.dir": "results-dir"})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := config.Get().ResultsDir
			rep, err := scenario.ReadJSON(dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := out == os.Stdout && report.IsTerminal(os.Stdout)
			if err := report.PrintSummary(out, rep, colorize); err != nil {
				return err
			}
			if open {
				return openReport(dir, rep)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("results-dir", "", "Directory holding report.json")
	flags.BoolVar(&open, "open", false, "Open the HTML report in the browser")

	return cmd
}

// openReport opens index.html, rendering it first if it is missing
func openReport(dir string, rep *scenario.Report) error {
	path := filepath.Join(dir, report.HTMLFile)
	if _, err := os.Stat(path); err != nil {
		if path, err = report.WriteHTML(dir, rep); err != nil {
			return err
		}
	}
	return report.Open(path)
}
