package cmd

import (
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/spf13/cobra"

	"github.com/acwooding/dmp-test-ci/internal/version"
)

// VersionOptions holds command options
type VersionOptions struct {
	OutputFormat string
	ShortFormat  bool
	Server       string
}

// NewVersionCommand creates a new version command
func NewVersionCommand() *cobra.Command {
	opts := &VersionOptions{}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Display version information about this binary and, with --server, a running serve instance`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.OutputFormat, "output", "text", "Output format (json or text)")
	flags.BoolVarP(&opts.ShortFormat, "short", "s", false, "Print only the version number")
	flags.StringVar(&opts.Server, "server", "", "Base URL of a serve instance to query, e.g. http://localhost:8000")

	cmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"json", "text"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

const versionTemplate = `{{.Title}}:
 Version:           {{.Info.Version}}
 API version:       {{.Info.APIVersion}}
 Go version:        {{.Info.GoVersion}}
 Git commit:        {{.Info.GitCommit}}
 Built:             {{.Info.FormattedTime}}
 OS/Arch:           {{.Info.OS}}/{{.Info.Arch}}
`

var versionTmpl = template.Must(template.New("version").Parse(versionTemplate))

// runVersion executes the version command logic
func runVersion(cmd *cobra.Command, opts *VersionOptions) error {
	out := cmd.OutOrStdout()
	clientInfo := version.Info()

	if opts.ShortFormat {
		fmt.Fprintf(out, "dmp-test-ci version %s, build %s\n", clientInfo["Version"], clientInfo["GitCommit"])
		return nil
	}

	var serverInfo map[string]string
	var serverErr error
	if opts.Server != "" {
		serverInfo, serverErr = version.Remote(nil, opts.Server)
	}

	if opts.OutputFormat == "json" {
		result := map[string]interface{}{"Client": clientInfo}
		if opts.Server != "" {
			if serverErr == nil {
				result["Server"] = serverInfo
			} else {
				result["Server"] = map[string]string{"Error": serverErr.Error()}
			}
		}
		jsonData, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format version as JSON: %w", err)
		}
		fmt.Fprintln(out, string(jsonData))
		return nil
	}

	if err := versionTmpl.Execute(out, map[string]interface{}{"Title": "Client", "Info": clientInfo}); err != nil {
		return err
	}
	if opts.Server == "" {
		return nil
	}
	fmt.Fprintln(out)
	if serverErr != nil {
		fmt.Fprintln(out, serverErr)
		return nil
	}
	return versionTmpl.Execute(out, map[string]interface{}{"Title": "Server", "Info": serverInfo})
}
