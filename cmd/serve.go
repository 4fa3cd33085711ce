package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/acwooding/dmp-test-ci/config"
	"github.com/acwooding/dmp-test-ci/internal/cron"
	"github.com/acwooding/dmp-test-ci/internal/golden"
	runApi "github.com/acwooding/dmp-test-ci/internal/run/api"
	runSvc "github.com/acwooding/dmp-test-ci/internal/run/service"
	"github.com/acwooding/dmp-test-ci/internal/scenario"
	"github.com/acwooding/dmp-test-ci/internal/server"
	"github.com/acwooding/dmp-test-ci/internal/tracker"
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Host the page and a run API, optionally running the suite on a schedule",
		Long: `Serve --static-root on --port so cord19.html resolves at the suite's default URL,
and expose the suite under /api/v1: start runs, follow their events over a
WebSocket and browse baselines. With --schedule the suite also runs periodically.`,
		Example: `  dmp-test-ci serve --static-root ./site
  dmp-test-ci serve --schedule "@every 6h"`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(cmd.Flags(), map[string]string{
				"server.port":        "port",
				"server.static_root": "static-root",
				"server.schedule":    "schedule",
				"suite.base_url":     "url",
				"results.dir":        "results-dir",
				"snapshot.dir":       "baseline-dir",
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := config.Get()
			if _, err := runnerOptions(settings); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runs := runSvc.New(tracker.NewInMemoryRunTracker(), suiteExecutor(settings), logger)
			handler := runApi.NewHandler(runs, golden.NewStore(settings.SnapshotDir), logger)

			if settings.Schedule != "" {
				cronManager := cron.NewManager(logger, runs, settings.Schedule, settings.Grep)
				if err := cronManager.Start(); err != nil {
					return err
				}
				defer cronManager.Stop()
			}

			srv := server.New(server.Options{Port: settings.Port, StaticRoot: settings.StaticRoot}, handler, logger)
			srv.LogEndpoints()
			srv.LogURLs(settings.Port)
			if settings.StaticRoot != "" {
				logger.Info("Serving %s at http://localhost:%d/", logger.Path(settings.StaticRoot), settings.Port)
			}

			serveErr := srv.ListenAndServe(ctx)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := runs.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Runs still in flight at exit: %v", err)
			}
			return serveErr
		},
	}

	flags := cmd.Flags()
	flags.Int("port", 8000, "Port to listen on")
	flags.String("static-root", "", "Directory served at / (holds cord19.html)")
	flags.String("schedule", "", "Cron schedule for suite runs, e.g. \"0 */6 * * *\" or \"@hourly\"")
	flags.String("url", "", "Page under test")
	flags.String("results-dir", "", "Directory for per-run reports and artifacts")
	flags.String("baseline-dir", "", "Directory holding the golden screenshots")

	return cmd
}

// suiteExecutor runs the suite for the run service, one results
// subdirectory per run
func suiteExecutor(settings config.Settings) runSvc.Executor {
	return func(ctx context.Context, run tracker.Run, sink scenario.EventSink) (*scenario.Report, error) {
		return executeSuite(ctx, settings, run.Grep, filepath.Join(settings.ResultsDir, run.ID), sink)
	}
}
