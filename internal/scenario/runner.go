package scenario

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	cerrors "github.com/acwooding/dmp-test-ci/internal/common/errors"
	"github.com/acwooding/dmp-test-ci/internal/golden"
	"github.com/acwooding/dmp-test-ci/internal/log"
	model "github.com/acwooding/dmp-test-ci/pkg/browser"
)

// ErrNoScenarios is returned when the filter leaves nothing to run
var ErrNoScenarios = errors.New("no scenarios match")

// Options configures a Runner
type Options struct {
	// BaseTimeout is each scenario's budget before the setup extension and the slow multiplier.
	BaseTimeout time.Duration
	// ExpectTimeout bounds the wait for a stable screenshot.
	ExpectTimeout time.Duration
	Workers       int
	Grep          string
	Update        golden.UpdateMode
	Compare       golden.Options
	ResultsDir    string
}

// DefaultOptions mirrors the stock Playwright Test settings
func DefaultOptions() Options {
	return Options{
		BaseTimeout:   30 * time.Second,
		ExpectTimeout: 5 * time.Second,
		Workers:       1,
		Update:        golden.UpdateNone,
		Compare:       golden.DefaultOptions(),
		ResultsDir:    "test-results",
	}
}

// captureIntervals are the pauses between screenshots while waiting for the
// canvas to settle; the last one repeats.
var captureIntervals = []time.Duration{0, 100 * time.Millisecond, 250 * time.Millisecond, 500 * time.Millisecond}

// Runner executes suites. Scenarios share nothing but the baseline store.
type Runner struct {
	newPage PageFactory
	store   *golden.Store
	opts    Options
	logger  *log.Logger
	sink    EventSink
}

// NewRunner creates a runner opening pages through newPage
func NewRunner(newPage PageFactory, store *golden.Store, opts Options, logger *log.Logger) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Update == "" {
		opts.Update = golden.UpdateNone
	}
	return &Runner{
		newPage: newPage,
		store:   store,
		opts:    opts,
		logger:  logger,
		sink:    discardSink{},
	}
}

// WithSink sets where progress events go
func (r *Runner) WithSink(sink EventSink) *Runner {
	if sink == nil {
		sink = discardSink{}
	}
	r.sink = sink
	return r
}

func (r *Runner) emit(e Event) {
	e.Time = time.Now()
	r.sink.Publish(e)
}

// Run executes every selected scenario and returns the report. A failing
// scenario never stops the others; the returned error is only for runs that
// could not start.
func (r *Runner) Run(ctx context.Context, suite *Suite) (*Report, error) {
	if err := suite.Validate(); err != nil {
		return nil, err
	}
	selected := suite.Filter(r.opts.Grep)
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w %q", ErrNoScenarios, r.opts.Grep)
	}

	report := &Report{
		Suite:     suite.Name,
		URL:       suite.Setup.URL,
		StartedAt: time.Now(),
		Results:   make([]Result, len(selected)),
	}
	r.logger.Info("Running %d scenario(s) of %q using %d worker(s)", len(selected), suite.Name, r.opts.Workers)
	r.emit(Event{Type: EventRunStarted, Suite: suite.Name, Message: fmt.Sprintf("%d scenarios", len(selected))})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for i, sc := range selected {
		i, sc := i, sc
		g.Go(func() error {
			report.Results[i] = r.runScenario(gctx, suite, sc)
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = time.Now()
	report.tally()
	r.emit(Event{
		Type:    EventRunFinished,
		Suite:   suite.Name,
		Message: fmt.Sprintf("%d passed, %d failed", report.Passed, report.Failed),
	})
	return report, nil
}

// scenarioRun carries the state of one scenario execution
type scenarioRun struct {
	suite       *Suite
	scenario    Scenario
	page        Page
	artifactDir string
	logger      interface {
		Infof(string, ...interface{})
		Debugf(string, ...interface{})
	}

	artifacts []string
	updated   []string
}

func (r *Runner) runScenario(ctx context.Context, suite *Suite, sc Scenario) Result {
	budget := suite.Timeout(sc, r.opts.BaseTimeout)
	res := Result{
		Scenario:  sc.Name,
		Slow:      sc.Slow,
		Timeout:   budget,
		StartedAt: time.Now(),
	}
	r.emit(Event{Type: EventScenarioStarted, Suite: suite.Name, Scenario: sc.Name})

	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	sr := &scenarioRun{
		suite:       suite,
		scenario:    sc,
		artifactDir: slug(sc.Name),
		logger:      r.logger.Scenario(sc.Name),
	}

	failure := r.execute(ctx, sr)
	if failure != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && failure.Phase == cerrors.PhaseTest {
		failure = cerrors.Wrap(cerrors.KindTimeout, cerrors.PhaseTest, failure,
			fmt.Sprintf("test timeout of %s exceeded", budget)).WithStep(failure.Step)
	}

	if failure != nil && sr.page != nil {
		r.writeErrorContext(sr)
	}
	if sr.page != nil {
		if err := sr.page.Close(); err != nil {
			r.logger.Warn("Closing page for %q: %v", sc.Name, err)
		}
	}

	res.Duration = time.Since(res.StartedAt)
	res.Artifacts = sr.artifacts
	res.UpdatedBaselines = sr.updated
	if failure != nil {
		res.Status = StatusFailed
		res.Failure = failure
		res.Error = failure.Error()
		r.logger.Error("✘ %s (%s): %v", sc.Name, res.Duration.Round(time.Millisecond), failure)
	} else {
		res.Status = StatusPassed
		r.logger.Info("✓ %s (%s)", sc.Name, res.Duration.Round(time.Millisecond))
	}
	r.emit(Event{Type: EventScenarioFinished, Suite: suite.Name, Scenario: sc.Name, Status: res.Status, Message: res.Error})
	return res
}

func (r *Runner) execute(ctx context.Context, sr *scenarioRun) *cerrors.Error {
	page, err := r.newPage(ctx, sr.suite.Viewport)
	if err != nil {
		return cerrors.Wrap(cerrors.KindInteraction, cerrors.PhaseSetup, err, "could not open a browser page").WithStep("new-page")
	}
	sr.page = page

	if failure := r.setup(ctx, sr); failure != nil {
		return failure
	}

	for i, step := range sr.scenario.Steps {
		label := fmt.Sprintf("step %d: %s", i+1, step)
		sr.logger.Debugf("%s", label)
		if failure := r.step(ctx, sr, step); failure != nil {
			return failure.WithStep(label)
		}
		r.emit(Event{Type: EventStepPassed, Suite: sr.suite.Name, Scenario: sr.scenario.Name, Step: label})
	}
	return nil
}

// setup navigates and waits for the loading indicators to hide. Nothing else
// touches the page until it succeeds.
func (r *Runner) setup(ctx context.Context, sr *scenarioRun) *cerrors.Error {
	s := sr.suite.Setup

	opened, err := sr.page.Open(ctx, model.OpenParams{URL: s.URL, Timeout: s.NavigationTimeout})
	if err != nil {
		return cerrors.Wrap(cerrors.KindNavigation, cerrors.PhaseSetup, err, "could not load "+s.URL).WithStep("goto")
	}
	if s.ExpectedStatus != 0 && opened.Status != s.ExpectedStatus {
		return cerrors.Newf(cerrors.KindNavigation, cerrors.PhaseSetup,
			"expected status %d from %s, got %d", s.ExpectedStatus, s.URL, opened.Status).WithStep("goto")
	}

	if len(s.HiddenSelectors) > 0 {
		sr.logger.Infof("Waiting for %s to be hidden...", strings.Join(s.HiddenSelectors, " and "))
		if err := sr.page.WaitHidden(ctx, model.WaitHiddenParams{Selectors: s.HiddenSelectors, Timeout: s.HiddenTimeout}); err != nil {
			return cerrors.Wrap(cerrors.KindSetupTimeout, cerrors.PhaseSetup, err, "loading indicators did not hide").WithStep("wait-hidden")
		}
	}
	return nil
}

func (r *Runner) step(ctx context.Context, sr *scenarioRun, st Step) *cerrors.Error {
	var err error
	switch st.Action {
	case ActionExpectScreenshot:
		return r.expectScreenshot(ctx, sr, st)
	case ActionHover:
		err = sr.page.Hover(ctx, r.selector(sr, st))
	case ActionMove:
		err = sr.page.MoveMouse(ctx, model.MoveParams{To: st.To, Steps: st.Steps})
	case ActionDown:
		err = sr.page.MouseDown(ctx, st.Button)
	case ActionUp:
		err = sr.page.MouseUp(ctx, st.Button)
	case ActionWheel:
		err = sr.page.Wheel(ctx, model.WheelParams{DeltaX: st.DeltaX, DeltaY: st.DeltaY})
	case ActionFill:
		err = sr.page.Fill(ctx, model.FillParams{Selector: st.Selector, Value: st.Value})
	case ActionWaitNetworkIdle:
		err = sr.page.WaitNetworkIdle(ctx)
	default:
		err = fmt.Errorf("unsupported action %q", st.Action)
	}
	if err != nil {
		return cerrors.Wrap(cerrors.KindInteraction, cerrors.PhaseTest, err, string(st.Action)+" failed")
	}
	return nil
}

func (r *Runner) selector(sr *scenarioRun, st Step) string {
	if st.Selector != "" {
		return st.Selector
	}
	return sr.suite.Canvas
}

// expectScreenshot compares the element against its baseline. A capture that
// matches the baseline passes at once; otherwise the element is recaptured
// until two consecutive captures agree and that stable capture is compared.
func (r *Runner) expectScreenshot(ctx context.Context, sr *scenarioRun, st Step) *cerrors.Error {
	selector := r.selector(sr, st)
	shoot := func() ([]byte, error) {
		return sr.page.Screenshot(ctx, model.ScreenshotParams{Selector: selector, Timeout: r.opts.ExpectTimeout})
	}

	expected, err := r.store.Load(st.Baseline)
	missing := errors.Is(err, golden.ErrBaselineNotFound)
	if err != nil && !missing {
		return cerrors.Wrap(cerrors.KindVisualRegression, cerrors.PhaseTest, err, "could not read baseline")
	}

	first, err := shoot()
	if err != nil {
		return cerrors.Wrap(cerrors.KindInteraction, cerrors.PhaseTest, err, "could not capture "+selector)
	}
	if !missing && r.opts.Update != golden.UpdateAll {
		if res, err := golden.Compare(expected, first, r.opts.Compare); err == nil && res.Match {
			return nil
		}
	}

	actual, stable, err := r.stableCapture(ctx, first, shoot)
	if err != nil {
		return cerrors.Wrap(cerrors.KindInteraction, cerrors.PhaseTest, err, "could not capture "+selector)
	}

	if missing {
		if err := r.store.Save(st.Baseline, actual); err != nil {
			return cerrors.Wrap(cerrors.KindMissingBaseline, cerrors.PhaseTest, err, "could not write missing baseline")
		}
		sr.updated = append(sr.updated, st.Baseline)
		if r.opts.Update == golden.UpdateNone {
			r.writeArtifact(sr, st.Baseline, "actual", actual)
			return cerrors.Newf(cerrors.KindMissingBaseline, cerrors.PhaseTest,
				"a snapshot doesn't exist at %s, writing actual", filepath.Join(r.store.Dir(), st.Baseline))
		}
		return nil
	}
	if r.opts.Update == golden.UpdateAll {
		// an unstable capture still replaces the baseline; the last frame wins
		if stable {
			if res, err := golden.Compare(expected, actual, r.opts.Compare); err == nil && res.Match {
				return nil
			}
		}
		if err := r.store.Save(st.Baseline, actual); err != nil {
			return cerrors.Wrap(cerrors.KindVisualRegression, cerrors.PhaseTest, err, "could not update baseline")
		}
		sr.updated = append(sr.updated, st.Baseline)
		sr.logger.Infof("Updated baseline %s", st.Baseline)
		return nil
	}
	if !stable {
		r.writeArtifact(sr, st.Baseline, "actual", actual)
		return cerrors.Newf(cerrors.KindVisualRegression, cerrors.PhaseTest,
			"failed to take two consecutive stable screenshots within %s", r.opts.ExpectTimeout)
	}

	res, err := golden.Compare(expected, actual, r.opts.Compare)
	if err != nil {
		return cerrors.Wrap(cerrors.KindVisualRegression, cerrors.PhaseTest, err, "could not compare screenshots")
	}
	if res.Match {
		return nil
	}

	r.writeArtifact(sr, st.Baseline, "expected", expected)
	r.writeArtifact(sr, st.Baseline, "actual", actual)
	r.writeArtifact(sr, st.Baseline, "diff", res.Diff)
	return cerrors.Newf(cerrors.KindVisualRegression, cerrors.PhaseTest, "screenshot %s: %s", st.Baseline, res)
}

// stableCapture recaptures until two consecutive captures are identical or the
// expect timeout runs out. It reports whether the returned capture was stable.
func (r *Runner) stableCapture(ctx context.Context, prev []byte, shoot func() ([]byte, error)) ([]byte, bool, error) {
	deadline := time.Now().Add(r.opts.ExpectTimeout)
	for i := 1; ; i++ {
		wait := captureIntervals[len(captureIntervals)-1]
		if i < len(captureIntervals) {
			wait = captureIntervals[i]
		}
		if time.Now().Add(wait).After(deadline) {
			return prev, false, nil
		}
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(wait):
		}
		cur, err := shoot()
		if err != nil {
			return nil, false, err
		}
		if bytes.Equal(prev, cur) {
			return cur, true, nil
		}
		prev = cur
	}
}

func (r *Runner) writeArtifact(sr *scenarioRun, baseline, kind string, data []byte) {
	if len(data) == 0 {
		return
	}
	name := strings.TrimSuffix(baseline, filepath.Ext(baseline)) + "-" + kind + ".png"
	r.writeFile(sr, name, data)
}

func (r *Runner) writeFile(sr *scenarioRun, name string, data []byte) {
	dir := filepath.Join(r.opts.ResultsDir, sr.artifactDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.logger.Warn("Creating artifact directory %s: %v", dir, err)
		return
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		r.logger.Warn("Writing artifact %s: %v", name, err)
		return
	}
	sr.artifacts = append(sr.artifacts, filepath.Join(sr.artifactDir, name))
}

// writeErrorContext saves a Markdown rendering of the page beside the failure.
// It gets its own short deadline since the scenario's may already be spent.
func (r *Runner) writeErrorContext(sr *scenarioRun) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	snap, err := sr.page.Snapshot(ctx)
	if err != nil {
		r.logger.Debug("No page snapshot for %q: %v", sr.scenario.Name, err)
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Page snapshot\n\n- URL: %s\n- Title: %s\n\n%s\n", snap.URL, snap.Title, snap.Markdown)
	r.writeFile(sr, "error-context.md", []byte(b.String()))
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(name string) string {
	s := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if s == "" {
		s = "scenario"
	}
	return s
}
