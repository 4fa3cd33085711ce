package cmd

import (
	"context"
	"fmt"

	"github.com/acwooding/dmp-test-ci/config"
	"github.com/acwooding/dmp-test-ci/internal/browser/service"
	"github.com/acwooding/dmp-test-ci/internal/golden"
	"github.com/acwooding/dmp-test-ci/internal/report"
	"github.com/acwooding/dmp-test-ci/internal/scenario"
	model "github.com/acwooding/dmp-test-ci/pkg/browser"
)

// loadSuite returns the suite file's suite when one is configured, otherwise
// the built-in CORD-19 suite adjusted by the settings.
func loadSuite(s config.Settings) (*scenario.Suite, error) {
	if s.SuiteFile != "" {
		suite, err := scenario.Load(s.SuiteFile)
		if err != nil {
			return nil, err
		}
		logger.Debug("Loaded suite %q from %s", suite.Name, s.SuiteFile)
		return suite, nil
	}

	suite := scenario.Cord19(s.BaseURL)
	suite.Viewport = model.Viewport{Width: s.Viewport.Width, Height: s.Viewport.Height}
	suite.Setup.TimeoutExtension = s.TimeoutExtension
	if err := suite.Validate(); err != nil {
		return nil, err
	}
	return suite, nil
}

func runnerOptions(s config.Settings) (scenario.Options, error) {
	update, err := golden.ParseUpdateMode(s.UpdateSnapshots)
	if err != nil {
		return scenario.Options{}, err
	}
	opts := scenario.DefaultOptions()
	opts.BaseTimeout = s.Timeout
	opts.ExpectTimeout = s.ExpectTimeout
	opts.Workers = s.Workers
	opts.Grep = s.Grep
	opts.Update = update
	opts.Compare = golden.Options{
		Threshold:         s.Threshold,
		MaxDiffPixels:     s.MaxDiffPixels,
		MaxDiffPixelRatio: s.MaxDiffPixelRatio,
	}
	opts.ResultsDir = s.ResultsDir
	return opts, nil
}

// executeSuite launches a browser, runs the suite and writes report.json and
// index.html into resultsDir.
func executeSuite(ctx context.Context, s config.Settings, grep, resultsDir string, sink scenario.EventSink) (*scenario.Report, error) {
	suite, err := loadSuite(s)
	if err != nil {
		return nil, err
	}
	opts, err := runnerOptions(s)
	if err != nil {
		return nil, err
	}
	opts.Grep = grep
	opts.ResultsDir = resultsDir

	browserSvc, err := service.NewBrowserService(service.Options{Headless: s.Headless, Channel: s.Channel}, logger)
	if err != nil {
		return nil, fmt.Errorf("%w (run `dmp-test-ci install` to download chromium)", err)
	}
	defer func() {
		if err := browserSvc.Close(); err != nil {
			logger.Warn("Closing browser: %v", err)
		}
	}()

	runner := scenario.NewRunner(browserSvc.PageFactory(), golden.NewStore(s.SnapshotDir), opts, logger).WithSink(sink)
	rep, err := runner.Run(ctx, suite)
	if err != nil {
		return nil, err
	}

	if _, err := rep.WriteJSON(resultsDir); err != nil {
		return rep, err
	}
	if _, err := report.WriteHTML(resultsDir, rep); err != nil {
		return rep, err
	}
	return rep, nil
}
