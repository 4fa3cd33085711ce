package scenario

import (
	"time"

	model "github.com/acwooding/dmp-test-ci/pkg/browser"
)

// Selectors on the CORD-19 data map page
const (
	SelectorLoading   = "#loading"
	SelectorProgress  = "#progress-container"
	SelectorCanvas    = "#deck-container canvas"
	SelectorTextInput = "#text-search"
)

// Baselines compared by the CORD-19 suite
const (
	BaselineInitialState = "initial-state.png"
	BaselineAfterZoom    = "after-zoom.png"
	BaselineAfterSearch  = "after-search-covid.png"
	BaselineAfterPan     = "after-pan.png"
)

// Input magnitudes tuned to the CORD-19 dataset: one wheel notch of -100
// zooms in a level, and a 300px drag pans about a quarter of the viewport.
const (
	ZoomWheelDelta = -100
	PanDistance    = 300
	PanSteps       = 5
	SearchTerm     = "covid"
)

// DefaultURL is where the static page is served during CI
const DefaultURL = "http://localhost:8000/cord19.html"

// VerifyInitialState asserts the canvas matches the initial-state baseline.
// Every interaction scenario starts with it.
func VerifyInitialState() Step {
	return Step{Action: ActionExpectScreenshot, Selector: SelectorCanvas, Baseline: BaselineInitialState}
}

// Cord19 returns the canvas suite for the CORD-19 data map at url
func Cord19(url string) *Suite {
	if url == "" {
		url = DefaultURL
	}
	viewport := model.Viewport{Width: 1280, Height: 720}
	center := model.Coordinate{X: float64(viewport.Width) / 2, Y: float64(viewport.Height) / 2}

	return &Suite{
		Name:     "Cord19 Canvas Tests",
		Viewport: viewport,
		Canvas:   SelectorCanvas,
		Setup: Setup{
			URL:               url,
			NavigationTimeout: 60 * time.Second,
			ExpectedStatus:    200,
			HiddenSelectors:   []string{SelectorLoading, SelectorProgress},
			HiddenTimeout:     120 * time.Second,
			TimeoutExtension:  180 * time.Second,
		},
		Scenarios: []Scenario{
			{
				Name: "zoom functionality",
				Slow: true,
				Steps: []Step{
					VerifyInitialState(),
					{Action: ActionHover, Selector: SelectorCanvas},
					{Action: ActionWheel, DeltaX: 0, DeltaY: ZoomWheelDelta},
					{Action: ActionWaitNetworkIdle},
					{Action: ActionExpectScreenshot, Selector: SelectorCanvas, Baseline: BaselineAfterZoom},
				},
			},
			{
				Name: "search functionality",
				Steps: []Step{
					VerifyInitialState(),
					{Action: ActionFill, Selector: SelectorTextInput, Value: SearchTerm},
					{Action: ActionWaitNetworkIdle},
					{Action: ActionExpectScreenshot, Selector: SelectorCanvas, Baseline: BaselineAfterSearch},
				},
			},
			{
				Name: "pan functionality",
				Slow: true,
				Steps: []Step{
					VerifyInitialState(),
					{Action: ActionHover, Selector: SelectorCanvas},
					{Action: ActionMove, To: center, Steps: 1},
					{Action: ActionDown, Button: model.MouseButtonLeft},
					{Action: ActionMove, To: model.Coordinate{X: center.X + PanDistance, Y: center.Y}, Steps: PanSteps},
					{Action: ActionUp, Button: model.MouseButtonLeft},
					{Action: ActionWaitNetworkIdle},
					{Action: ActionExpectScreenshot, Selector: SelectorCanvas, Baseline: BaselineAfterPan},
				},
			},
		},
	}
}
