package cmd

import (
	"github.com/spf13/cobra"

	"github.com/acwooding/dmp-test-ci/internal/browser/service"
)

// NewInstallCommand creates the install command
func NewInstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Download the Playwright driver and Chromium",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Info("Installing Playwright driver and Chromium...")
			if err := service.Install(); err != nil {
				return err
			}
			logger.Info("Done")
			return nil
		},
	}
}
