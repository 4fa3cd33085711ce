package scenario

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/acwooding/dmp-test-ci/internal/common/errors"
	"github.com/acwooding/dmp-test-ci/internal/golden"
	"github.com/acwooding/dmp-test-ci/internal/log"
	model "github.com/acwooding/dmp-test-ci/pkg/browser"
)

type harness struct {
	browser *fakeBrowser
	store   *golden.Store
	opts    Options
	results string
	events  []Event
	mu      sync.Mutex
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	h := &harness{
		browser: &fakeBrowser{t: t},
		store:   golden.NewStore(filepath.Join(root, "snapshots")),
		results: filepath.Join(root, "results"),
	}
	h.opts = DefaultOptions()
	h.opts.ExpectTimeout = time.Second
	h.opts.ResultsDir = h.results
	return h
}

func (h *harness) seed(t *testing.T, baselines map[string]string) {
	t.Helper()
	for name, state := range baselines {
		require.NoError(t, h.store.Save(name, canvasPNG(t, state)))
	}
}

func (h *harness) seedAll(t *testing.T) {
	h.seed(t, map[string]string{
		BaselineInitialState: "initial",
		BaselineAfterZoom:    "zoom",
		BaselineAfterSearch:  "search",
		BaselineAfterPan:     "pan",
	})
}

func (h *harness) run(t *testing.T, suite *Suite) *Report {
	t.Helper()
	var buf bytes.Buffer
	r := NewRunner(h.browser.NewPage, h.store, h.opts, log.NewWithWriter(&buf))
	r.WithSink(SinkFunc(func(e Event) {
		h.mu.Lock()
		h.events = append(h.events, e)
		h.mu.Unlock()
	}))
	report, err := r.Run(context.Background(), suite)
	require.NoError(t, err)
	return report
}

func resultFor(t *testing.T, report *Report, name string) Result {
	t.Helper()
	for _, r := range report.Results {
		if r.Scenario == name {
			return r
		}
	}
	t.Fatalf("no result for %q", name)
	return Result{}
}

func TestRunCord19AllPass(t *testing.T) {
	h := newHarness(t)
	h.seedAll(t)

	report := h.run(t, Cord19(""))

	assert.True(t, report.OK())
	assert.Equal(t, 3, report.Passed)
	assert.Equal(t, "Cord19 Canvas Tests", report.Suite)
	for _, r := range report.Results {
		assert.Equal(t, StatusPassed, r.Status, r.Scenario)
		assert.Nil(t, r.Failure)
		assert.Empty(t, r.Artifacts)
	}
	for _, vp := range h.browser.viewports {
		assert.Equal(t, model.Viewport{Width: 1280, Height: 720}, vp)
	}
	for _, p := range h.browser.pages {
		assert.True(t, p.closed, "every page is closed after its scenario")
	}
}

func TestPanScenarioCallSequence(t *testing.T) {
	h := newHarness(t)
	h.seedAll(t)
	h.opts.Grep = "pan"

	report := h.run(t, Cord19(""))
	require.Len(t, report.Results, 1)
	require.Len(t, h.browser.pages, 1)

	want := []string{
		"open http://localhost:8000/cord19.html timeout=1m0s",
		"wait-hidden [#loading #progress-container] timeout=2m0s",
		"screenshot #deck-container canvas",
		"hover #deck-container canvas",
		"move 640,360 steps=1",
		"down left",
		"move 940,360 steps=5",
		"up left",
		"network-idle",
		"screenshot #deck-container canvas",
	}
	assert.Equal(t, want, h.browser.pages[0].Calls())
}

func TestZoomAndSearchCallSequence(t *testing.T) {
	h := newHarness(t)
	h.seedAll(t)
	h.opts.Grep = "zoom,search"

	report := h.run(t, Cord19(""))
	require.Len(t, report.Results, 2)
	require.Len(t, h.browser.pages, 2)

	assert.Equal(t, []string{"hover #deck-container canvas", "wheel 0,-100", "network-idle", "screenshot #deck-container canvas"},
		h.browser.pages[0].Calls()[3:])
	assert.Equal(t, []string{"fill #text-search covid", "network-idle", "screenshot #deck-container canvas"},
		h.browser.pages[1].Calls()[3:])
}

func TestNon200StatusIsSetupFailure(t *testing.T) {
	h := newHarness(t)
	h.seedAll(t)
	h.browser.configure = func(p *fakePage) { p.status = 404 }

	report := h.run(t, Cord19(""))

	assert.Equal(t, 3, report.Failed)
	for _, r := range report.Results {
		require.NotNil(t, r.Failure)
		assert.Equal(t, cerrors.KindNavigation, r.Failure.Kind)
		assert.Equal(t, cerrors.PhaseSetup, r.Failure.Phase)
		assert.Contains(t, r.Error, "expected status 200")
	}
	for _, p := range h.browser.pages {
		assert.Len(t, p.Calls(), 1, "nothing runs after a failed navigation")
	}
}

func TestNavigationErrorIsSetupFailure(t *testing.T) {
	h := newHarness(t)
	h.browser.configure = func(p *fakePage) { p.openErr = errors.New("net::ERR_CONNECTION_REFUSED") }
	h.opts.Grep = "search"

	report := h.run(t, Cord19(""))
	r := resultFor(t, report, "search functionality")
	assert.Equal(t, cerrors.KindNavigation, r.Failure.Kind)
	assert.Equal(t, cerrors.PhaseSetup, r.Failure.Phase)
}

func TestMissingResponseIsSetupFailure(t *testing.T) {
	h := newHarness(t)
	h.seedAll(t)
	h.browser.configure = func(p *fakePage) { p.noResponse = true }
	h.opts.Grep = "search"

	report := h.run(t, Cord19(""))
	r := resultFor(t, report, "search functionality")
	require.NotNil(t, r.Failure)
	assert.Equal(t, cerrors.KindNavigation, r.Failure.Kind)
	assert.Equal(t, cerrors.PhaseSetup, r.Failure.Phase)
	assert.Contains(t, r.Error, "expected status 200")
	assert.Len(t, h.browser.pages[0].Calls(), 1, "nothing runs after a response-less navigation")
}

func TestLoadingIndicatorTimeout(t *testing.T) {
	h := newHarness(t)
	h.seedAll(t)
	h.browser.configure = func(p *fakePage) { p.hiddenErr = errors.New("Timeout 120000ms exceeded") }
	h.opts.Grep = "zoom"

	report := h.run(t, Cord19(""))
	r := resultFor(t, report, "zoom functionality")
	assert.Equal(t, cerrors.KindSetupTimeout, r.Failure.Kind)
	assert.Equal(t, cerrors.PhaseSetup, r.Failure.Phase)
	assert.Len(t, h.browser.pages[0].Calls(), 2)
}

func TestVisualRegressionWritesArtifacts(t *testing.T) {
	h := newHarness(t)
	h.seedAll(t)
	h.seed(t, map[string]string{BaselineAfterZoom: "pan"})

	report := h.run(t, Cord19(""))

	assert.Equal(t, 2, report.Passed, "a failing scenario does not block the others")
	assert.Equal(t, 1, report.Failed)

	r := resultFor(t, report, "zoom functionality")
	require.NotNil(t, r.Failure)
	assert.Equal(t, cerrors.KindVisualRegression, r.Failure.Kind)
	assert.Equal(t, cerrors.PhaseTest, r.Failure.Phase)
	assert.Contains(t, r.Failure.Step, "after-zoom.png")
	assert.ElementsMatch(t, []string{
		"zoom-functionality/after-zoom-expected.png",
		"zoom-functionality/after-zoom-actual.png",
		"zoom-functionality/after-zoom-diff.png",
		"zoom-functionality/error-context.md",
	}, r.Artifacts)
	for _, a := range r.Artifacts {
		_, err := os.Stat(filepath.Join(h.results, a))
		assert.NoError(t, err, a)
	}

	stored, err := h.store.Load(BaselineAfterZoom)
	require.NoError(t, err)
	assert.Equal(t, canvasPNG(t, "pan"), stored, "normal runs never modify an existing baseline")
}

func TestInitialStateMismatchStopsBeforeInteraction(t *testing.T) {
	h := newHarness(t)
	h.seedAll(t)
	h.seed(t, map[string]string{BaselineInitialState: "search"})
	h.opts.Grep = "pan"

	report := h.run(t, Cord19(""))
	r := resultFor(t, report, "pan functionality")
	assert.Equal(t, cerrors.KindVisualRegression, r.Failure.Kind)
	for _, c := range h.browser.pages[0].Calls() {
		assert.NotContains(t, c, "down")
		assert.NotContains(t, c, "hover")
	}
}

func TestMissingBaselineIsWrittenAndFails(t *testing.T) {
	h := newHarness(t)
	h.opts.Grep = "search"

	report := h.run(t, Cord19(""))
	r := resultFor(t, report, "search functionality")
	require.NotNil(t, r.Failure)
	assert.Equal(t, cerrors.KindMissingBaseline, r.Failure.Kind)
	assert.Equal(t, []string{BaselineInitialState}, r.UpdatedBaselines)

	stored, err := h.store.Load(BaselineInitialState)
	require.NoError(t, err)
	assert.Equal(t, canvasPNG(t, "initial"), stored)
}

func TestUpdateMissingWritesAndPasses(t *testing.T) {
	h := newHarness(t)
	h.opts.Update = golden.UpdateMissing

	report := h.run(t, Cord19(""))
	assert.True(t, report.OK())

	list, err := h.store.List()
	require.NoError(t, err)
	assert.Len(t, list, 4)

	// A second run against the written baselines reproduces them exactly.
	h.opts.Update = golden.UpdateNone
	again := h.run(t, Cord19(""))
	assert.True(t, again.OK())
}

func TestUpdateAllRewritesChangedBaselines(t *testing.T) {
	h := newHarness(t)
	h.seedAll(t)
	h.seed(t, map[string]string{BaselineAfterPan: "zoom"})
	h.opts.Update = golden.UpdateAll
	h.opts.Grep = "pan"

	report := h.run(t, Cord19(""))
	r := resultFor(t, report, "pan functionality")
	assert.Equal(t, StatusPassed, r.Status)
	assert.Equal(t, []string{BaselineAfterPan}, r.UpdatedBaselines)

	stored, err := h.store.Load(BaselineAfterPan)
	require.NoError(t, err)
	assert.Equal(t, canvasPNG(t, "pan"), stored)
}

func TestUnstableCaptureFails(t *testing.T) {
	h := newHarness(t)
	h.seedAll(t)
	h.browser.configure = func(p *fakePage) { p.flicker = []string{"zoom", "search"} }
	h.opts.Grep = "pan"

	report := h.run(t, Cord19(""))
	r := resultFor(t, report, "pan functionality")
	require.NotNil(t, r.Failure)
	assert.Equal(t, cerrors.KindVisualRegression, r.Failure.Kind)
	assert.Equal(t, cerrors.PhaseTest, r.Failure.Phase)
	assert.Contains(t, r.Failure.Step, BaselineInitialState)
	assert.Contains(t, r.Error, "stable screenshots")
	assert.Contains(t, r.Artifacts, "pan-functionality/initial-state-actual.png")
	assert.NotContains(t, r.Artifacts, "pan-functionality/initial-state-diff.png")
	assert.Greater(t, h.browser.pages[0].shots, 2, "the element is recaptured before giving up")

	stored, err := h.store.Load(BaselineInitialState)
	require.NoError(t, err)
	assert.Equal(t, canvasPNG(t, "initial"), stored)
}

func TestUpdateAllRewritesUnstableBaselines(t *testing.T) {
	h := newHarness(t)
	h.seedAll(t)
	h.browser.configure = func(p *fakePage) { p.flicker = []string{"zoom", "search"} }
	h.opts.Update = golden.UpdateAll
	h.opts.Grep = "pan"

	report := h.run(t, Cord19(""))
	r := resultFor(t, report, "pan functionality")
	assert.Equal(t, StatusPassed, r.Status, r.Error)
	assert.Equal(t, []string{BaselineInitialState, BaselineAfterPan}, r.UpdatedBaselines)

	stored, err := h.store.Load(BaselineInitialState)
	require.NoError(t, err)
	assert.NotEqual(t, canvasPNG(t, "initial"), stored)
}

func TestScenarioTimeout(t *testing.T) {
	h := newHarness(t)
	h.seedAll(t)
	h.opts.BaseTimeout = 50 * time.Millisecond
	h.opts.Grep = "zoom"
	h.browser.configure = func(p *fakePage) { p.block = "hover" }

	suite := Cord19("")
	suite.Setup.TimeoutExtension = 0
	report := h.run(t, suite)

	r := resultFor(t, report, "zoom functionality")
	require.NotNil(t, r.Failure)
	assert.Equal(t, cerrors.KindTimeout, r.Failure.Kind)
	assert.Equal(t, 150*time.Millisecond, r.Timeout, "slow scenarios get triple the budget")
	assert.Contains(t, r.Failure.Step, "hover")
	assert.ErrorIs(t, r.Failure, context.DeadlineExceeded)
}

func TestParallelWorkers(t *testing.T) {
	h := newHarness(t)
	h.seedAll(t)
	h.opts.Workers = 3

	report := h.run(t, Cord19(""))
	assert.True(t, report.OK())
	assert.Len(t, h.browser.pages, 3)
	assert.Equal(t, "zoom functionality", report.Results[0].Scenario, "results keep suite order")
	assert.Equal(t, "pan functionality", report.Results[2].Scenario)
}

func TestNoScenariosMatch(t *testing.T) {
	h := newHarness(t)
	h.opts.Grep = "rotate"
	r := NewRunner(h.browser.NewPage, h.store, h.opts, log.NewWithWriter(&bytes.Buffer{}))

	_, err := r.Run(context.Background(), Cord19(""))
	assert.ErrorIs(t, err, ErrNoScenarios)
}

func TestEventsBracketTheRun(t *testing.T) {
	h := newHarness(t)
	h.seedAll(t)
	h.opts.Grep = "search"

	h.run(t, Cord19(""))

	require.NotEmpty(t, h.events)
	assert.Equal(t, EventRunStarted, h.events[0].Type)
	assert.Equal(t, EventRunFinished, h.events[len(h.events)-1].Type)

	var steps int
	for _, e := range h.events {
		if e.Type == EventStepPassed {
			steps++
		}
		if e.Type == EventScenarioFinished {
			assert.Equal(t, StatusPassed, e.Status)
		}
	}
	assert.Equal(t, 4, steps)
}

func TestReportJSONRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.seedAll(t)
	h.seed(t, map[string]string{BaselineAfterSearch: "zoom"})

	report := h.run(t, Cord19(""))
	path, err := report.WriteJSON(h.results)
	require.NoError(t, err)
	assert.FileExists(t, path)

	loaded, err := ReadJSON(h.results)
	require.NoError(t, err)
	assert.Equal(t, report.Failed, loaded.Failed)
	r := resultFor(t, loaded, "search functionality")
	assert.Equal(t, cerrors.KindVisualRegression, r.Failure.Kind)
	assert.NotEmpty(t, r.Error)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "zoom-functionality", slug("zoom functionality"))
	assert.Equal(t, "search-covid", slug("  Search: COVID!"))
	assert.Equal(t, "scenario", slug("***"))
}
