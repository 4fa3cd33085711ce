package tracker

import (
	"errors"
	"time"

	"github.com/acwooding/dmp-test-ci/internal/scenario"
)

// ErrRunNotFound is returned for unknown run IDs
var ErrRunNotFound = errors.New("run not found")

// State is the lifecycle state of a suite run
type State string

const (
	StateQueued  State = "queued"
	StateRunning State = "running"
	StatePassed  State = "passed"
	StateFailed  State = "failed"
	StateErrored State = "errored"
)

// Done reports whether the run has finished
func (s State) Done() bool {
	return s == StatePassed || s == StateFailed || s == StateErrored
}

// Trigger records what started a run
type Trigger string

const (
	TriggerAPI      Trigger = "api"
	TriggerSchedule Trigger = "schedule"
)

// Run is one recorded execution of the suite
type Run struct {
	ID         string           `json:"id"`
	State      State            `json:"state"`
	Trigger    Trigger          `json:"trigger"`
	Grep       string           `json:"grep,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	StartedAt  time.Time        `json:"startedAt,omitempty"`
	FinishedAt time.Time        `json:"finishedAt,omitempty"`
	Error      string           `json:"error,omitempty"`
	Report     *scenario.Report `json:"report,omitempty"`
}

// RunTracker records suite runs and fans their progress events out to
// subscribers.
type RunTracker interface {
	Create(trigger Trigger, grep string) Run
	Get(id string) (Run, error)
	List() []Run
	Start(id string) error
	Finish(id string, report *scenario.Report, err error) error
	Sink(id string) scenario.EventSink
	Subscribe(id string) (*Subscription, error)
}
