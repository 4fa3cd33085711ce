// Package scenario defines the canvas interaction scenarios and runs them
// against fresh browser pages, each behind the shared setup fixture.
package scenario

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	model "github.com/acwooding/dmp-test-ci/pkg/browser"
)

// Action is a single kind of scenario step
type Action string

const (
	ActionExpectScreenshot Action = "expect-screenshot"
	ActionHover            Action = "hover"
	ActionMove             Action = "move"
	ActionDown             Action = "down"
	ActionUp               Action = "up"
	ActionWheel            Action = "wheel"
	ActionFill             Action = "fill"
	ActionWaitNetworkIdle  Action = "wait-network-idle"
)

// Step is one blocking interaction or assertion.
// Selector defaults to the suite canvas for hover and expect-screenshot.
type Step struct {
	Action   Action                `json:"action" yaml:"action" validate:"required,oneof=expect-screenshot hover move down up wheel fill wait-network-idle"`
	Selector string                `json:"selector,omitempty" yaml:"selector,omitempty"`
	To       model.Coordinate      `json:"to,omitempty" yaml:"to,omitempty"`
	Steps    int                   `json:"steps,omitempty" yaml:"steps,omitempty" validate:"gte=0"`
	DeltaX   float64               `json:"deltaX,omitempty" yaml:"delta_x,omitempty"`
	DeltaY   float64               `json:"deltaY,omitempty" yaml:"delta_y,omitempty"`
	Value    string                `json:"value,omitempty" yaml:"value,omitempty"`
	Button   model.MouseButtonType `json:"button,omitempty" yaml:"button,omitempty" validate:"omitempty,oneof=left right middle"`
	Baseline string                `json:"baseline,omitempty" yaml:"baseline,omitempty"`
}

// String renders the step for logs and failure messages
func (s Step) String() string {
	switch s.Action {
	case ActionExpectScreenshot:
		return fmt.Sprintf("%s %s", s.Action, s.Baseline)
	case ActionHover:
		return fmt.Sprintf("%s %s", s.Action, s.Selector)
	case ActionMove:
		return fmt.Sprintf("%s (%.0f, %.0f) steps=%d", s.Action, s.To.X, s.To.Y, s.Steps)
	case ActionWheel:
		return fmt.Sprintf("%s (%.0f, %.0f)", s.Action, s.DeltaX, s.DeltaY)
	case ActionFill:
		return fmt.Sprintf("%s %s %q", s.Action, s.Selector, s.Value)
	}
	return string(s.Action)
}

// Scenario is a named, independent sequence of steps run after setup
type Scenario struct {
	Name string `json:"name" yaml:"name" validate:"required"`
	// Slow triples the scenario's timeout budget.
	Slow  bool   `json:"slow,omitempty" yaml:"slow,omitempty"`
	Steps []Step `json:"steps" yaml:"steps" validate:"required,min=1,dive"`
}

// Setup is the fixture applied before every scenario
type Setup struct {
	URL               string        `json:"url" yaml:"url" validate:"required,url"`
	NavigationTimeout time.Duration `json:"navigationTimeout" yaml:"navigation_timeout" validate:"gte=0"`
	ExpectedStatus    int           `json:"expectedStatus" yaml:"expected_status" validate:"gte=0"`
	// HiddenSelectors must all reach the hidden state before any interaction.
	HiddenSelectors  []string      `json:"hiddenSelectors" yaml:"hidden_selectors"`
	HiddenTimeout    time.Duration `json:"hiddenTimeout" yaml:"hidden_timeout" validate:"gte=0"`
	TimeoutExtension time.Duration `json:"timeoutExtension" yaml:"timeout_extension" validate:"gte=0"`
}

// Suite is a set of scenarios sharing one setup
type Suite struct {
	Name      string         `json:"name" yaml:"name" validate:"required"`
	Viewport  model.Viewport `json:"viewport" yaml:"viewport"`
	Canvas    string         `json:"canvas" yaml:"canvas" validate:"required"`
	Setup     Setup          `json:"setup" yaml:"setup"`
	Scenarios []Scenario     `json:"scenarios" yaml:"scenarios" validate:"required,min=1,dive"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the suite is runnable
func (s *Suite) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid suite: %w", err)
	}
	seen := make(map[string]bool, len(s.Scenarios))
	for _, sc := range s.Scenarios {
		if seen[sc.Name] {
			return fmt.Errorf("invalid suite: duplicate scenario %q", sc.Name)
		}
		seen[sc.Name] = true
		for i, st := range sc.Steps {
			if err := st.check(); err != nil {
				return fmt.Errorf("invalid suite: scenario %q step %d: %w", sc.Name, i+1, err)
			}
		}
	}
	return nil
}

func (s Step) check() error {
	switch s.Action {
	case ActionExpectScreenshot:
		if s.Baseline == "" {
			return fmt.Errorf("%s needs a baseline name", s.Action)
		}
	case ActionFill:
		if s.Selector == "" {
			return fmt.Errorf("%s needs a selector", s.Action)
		}
	case ActionWheel:
		if s.DeltaX == 0 && s.DeltaY == 0 {
			return fmt.Errorf("%s needs a non-zero delta", s.Action)
		}
	}
	return nil
}

// Timeout is the scenario's total budget: base plus the setup extension,
// tripled for slow scenarios.
func (s *Suite) Timeout(sc Scenario, base time.Duration) time.Duration {
	budget := base + s.Setup.TimeoutExtension
	if sc.Slow {
		budget *= 3
	}
	return budget
}

// Filter returns the scenarios whose name contains any of the comma-separated
// terms in grep (case-insensitive). An empty grep keeps everything.
func (s *Suite) Filter(grep string) []Scenario {
	if strings.TrimSpace(grep) == "" {
		return s.Scenarios
	}
	var terms []string
	for _, t := range strings.Split(grep, ",") {
		if t = strings.TrimSpace(strings.ToLower(t)); t != "" {
			terms = append(terms, t)
		}
	}
	var out []Scenario
	for _, sc := range s.Scenarios {
		name := strings.ToLower(sc.Name)
		for _, t := range terms {
			if strings.Contains(name, t) {
				out = append(out, sc)
				break
			}
		}
	}
	return out
}
