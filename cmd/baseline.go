package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/acwooding/dmp-test-ci/config"
	"github.com/acwooding/dmp-test-ci/internal/golden"
)

// NewBaselineCommand creates the baseline command group
func NewBaselineCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Manage golden screenshots",
	}
	cmd.AddCommand(NewBaselineListCommand())
	return cmd
}

// NewBaselineListCommand creates the baseline list command
func NewBaselineListCommand() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored baselines",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(cmd.Flags(), map[string]string{"snapshot.dir": "baseline-dir"})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputFormat != "json" && outputFormat != "text" {
				return fmt.Errorf("invalid output format %q, must be 'json' or 'text'", outputFormat)
			}

			store := golden.NewStore(config.Get().SnapshotDir)
			baselines, err := store.List()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outputFormat == "json" {
				data, err := json.MarshalIndent(baselines, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to format baselines as JSON: %w", err)
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			if len(baselines) == 0 {
				fmt.Fprintf(out, "No baselines found in %s\n", store.Dir())
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSIZE\tMODIFIED")
			for _, b := range baselines {
				fmt.Fprintf(w, "%s\t%d\t%s\n", b.Name, b.Size, b.ModTime.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&outputFormat, "output", "text", "Output format (json or text)")
	cmd.Flags().String("baseline-dir", "", "Directory holding the golden screenshots")
	cmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"json", "text"}, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}
