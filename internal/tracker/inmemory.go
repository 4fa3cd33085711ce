package tracker

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acwooding/dmp-test-ci/internal/scenario"
)

const (
	subscriberBuffer = 64
	maxHistory       = 1024
)

// Subscription streams a run's events. Events replays everything published
// before Subscribe and is closed when the run finishes or Close is called.
type Subscription struct {
	Events <-chan scenario.Event

	ch        chan scenario.Event
	closeOnce sync.Once
	cancel    func()
}

// Close detaches the subscription from its run
func (s *Subscription) Close() {
	s.cancel()
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

type runEntry struct {
	run     Run
	history []scenario.Event
	subs    map[*Subscription]struct{}
}

// InMemoryRunTracker implements RunTracker using an in-memory map.
// Runs are lost on restart.
type InMemoryRunTracker struct {
	mu   sync.RWMutex
	runs map[string]*runEntry
}

// NewInMemoryRunTracker creates a new InMemoryRunTracker.
func NewInMemoryRunTracker() *InMemoryRunTracker {
	return &InMemoryRunTracker{runs: make(map[string]*runEntry)}
}

// Create records a queued run under a fresh ID
func (t *InMemoryRunTracker) Create(trigger Trigger, grep string) Run {
	run := Run{
		ID:        uuid.NewString(),
		State:     StateQueued,
		Trigger:   trigger,
		Grep:      grep,
		CreatedAt: time.Now(),
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs[run.ID] = &runEntry{run: run, subs: make(map[*Subscription]struct{})}
	return run
}

// Get returns a copy of the run
func (t *InMemoryRunTracker) Get(id string) (Run, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.runs[id]
	if !ok {
		return Run{}, ErrRunNotFound
	}
	return e.run, nil
}

// List returns all runs, newest first
func (t *InMemoryRunTracker) List() []Run {
	t.mu.RLock()
	runs := make([]Run, 0, len(t.runs))
	for _, e := range t.runs {
		runs = append(runs, e.run)
	}
	t.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs
}

// Start marks a run as running
func (t *InMemoryRunTracker) Start(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	e.run.State = StateRunning
	e.run.StartedAt = time.Now()
	return nil
}

// Finish stores the outcome and closes every subscription of the run.
// A non-nil err marks the run errored; otherwise the report decides.
func (t *InMemoryRunTracker) Finish(id string, report *scenario.Report, err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	e.run.FinishedAt = time.Now()
	e.run.Report = report
	switch {
	case err != nil:
		e.run.State = StateErrored
		e.run.Error = err.Error()
	case report != nil && report.OK():
		e.run.State = StatePassed
	default:
		e.run.State = StateFailed
	}
	for sub := range e.subs {
		sub.close()
		delete(e.subs, sub)
	}
	return nil
}

// Sink returns an event sink that records into the run and forwards to its
// subscribers. Slow subscribers miss events rather than stall the suite.
func (t *InMemoryRunTracker) Sink(id string) scenario.EventSink {
	return scenario.SinkFunc(func(ev scenario.Event) {
		t.mu.Lock()
		defer t.mu.Unlock()
		e, ok := t.runs[id]
		if !ok || e.run.State.Done() {
			return
		}
		if len(e.history) < maxHistory {
			e.history = append(e.history, ev)
		}
		for sub := range e.subs {
			select {
			case sub.ch <- ev:
			default:
			}
		}
	})
}

// Subscribe attaches to a run's event stream
func (t *InMemoryRunTracker) Subscribe(id string) (*Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}

	ch := make(chan scenario.Event, len(e.history)+subscriberBuffer)
	for _, ev := range e.history {
		ch <- ev
	}
	sub := &Subscription{Events: ch, ch: ch}
	sub.cancel = func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(e.subs, sub)
		sub.close()
	}

	if e.run.State.Done() {
		sub.close()
		return sub, nil
	}
	e.subs[sub] = struct{}{}
	return sub, nil
}
