package scenario

import "time"

// EventType names a progress event
type EventType string

const (
	EventRunStarted       EventType = "run-started"
	EventScenarioStarted  EventType = "scenario-started"
	EventStepPassed       EventType = "step-passed"
	EventScenarioFinished EventType = "scenario-finished"
	EventRunFinished      EventType = "run-finished"
)

// Event reports progress while a suite runs
type Event struct {
	Type     EventType `json:"type"`
	Suite    string    `json:"suite,omitempty"`
	Scenario string    `json:"scenario,omitempty"`
	Step     string    `json:"step,omitempty"`
	Status   Status    `json:"status,omitempty"`
	Message  string    `json:"message,omitempty"`
	Time     time.Time `json:"time"`
}

// EventSink receives progress events. Publish must not block for long.
type EventSink interface {
	Publish(Event)
}

// SinkFunc adapts a function to EventSink
type SinkFunc func(Event)

func (f SinkFunc) Publish(e Event) { f(e) }

type discardSink struct{}

func (discardSink) Publish(Event) {}
