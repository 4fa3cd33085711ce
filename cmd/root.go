package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/acwooding/dmp-test-ci/config"
	"github.com/acwooding/dmp-test-ci/internal/log"
)

// ErrSuiteFailed signals that the suite ran and at least one scenario failed
var ErrSuiteFailed = errors.New("suite failed")

var logger = log.New()

// NewRootCommand builds the command tree
func NewRootCommand() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "dmp-test-ci",
		Short: "Canvas visual-regression suite for the CORD-19 data map",
		Long: `Drive the CORD-19 data map in headless Chromium, zoom, search and pan the
canvas, and compare each result against golden screenshots.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Init(configFile); err != nil {
				return err
			}
			if used := config.ConfigFileUsed(); used != "" {
				logger.Debug("Using config file %s", used)
			}
			return logger.SetLevelName(config.Get().LogLevel)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (default: ./config.yaml, $XDG_CONFIG_HOME/dmp-test-ci/config.yaml)")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	if err := config.BindFlag("log.level", flags.Lookup("log-level")); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		NewRunCommand(),
		NewServeCommand(),
		NewBaselineCommand(),
		NewReportCommand(),
		NewInstallCommand(),
		NewVersionCommand(),
	)
	return rootCmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCommand().Execute()
}

// bindFlags binds flags to config keys. Commands call it from PreRunE so
// that two commands sharing a key never overwrite each other's binding.
func bindFlags(flags *pflag.FlagSet, bindings map[string]string) error {
	for key, name := range bindings {
		if err := config.BindFlag(key, flags.Lookup(name)); err != nil {
			return err
		}
	}
	return nil
}
