package service

import (
	"context"
	"errors"
	"sync"

	"github.com/acwooding/dmp-test-ci/internal/log"
	"github.com/acwooding/dmp-test-ci/internal/scenario"
	"github.com/acwooding/dmp-test-ci/internal/tracker"
)

// ErrShuttingDown is returned when a run is requested after Shutdown
var ErrShuttingDown = errors.New("run service is shutting down")

// Executor runs the suite once for the given run, publishing progress to sink
type Executor func(ctx context.Context, run tracker.Run, sink scenario.EventSink) (*scenario.Report, error)

// RunService starts suite runs in the background and records them in a
// tracker. Runs execute one at a time since they share the baseline
// directory and the page server.
type RunService struct {
	tracker tracker.RunTracker
	exec    Executor
	logger  *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	runMu  sync.Mutex

	mu     sync.Mutex
	closed bool
}

// New creates a RunService
func New(t tracker.RunTracker, exec Executor, logger *log.Logger) *RunService {
	ctx, cancel := context.WithCancel(context.Background())
	return &RunService{
		tracker: t,
		exec:    exec,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start queues a run and returns its record immediately
func (s *RunService) Start(trigger tracker.Trigger, grep string) (tracker.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return tracker.Run{}, ErrShuttingDown
	}

	run := s.tracker.Create(trigger, grep)
	s.logger.Info("Queued run %s (trigger=%s, grep=%q)", run.ID, trigger, grep)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(run)
	}()
	return run, nil
}

func (s *RunService) execute(run tracker.Run) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if err := s.ctx.Err(); err != nil {
		_ = s.tracker.Finish(run.ID, nil, err)
		return
	}
	if err := s.tracker.Start(run.ID); err != nil {
		s.logger.Error("Failed to start run %s: %v", run.ID, err)
		return
	}

	report, err := s.exec(s.ctx, run, s.tracker.Sink(run.ID))
	if err != nil {
		s.logger.Error("Run %s errored: %v", run.ID, err)
	} else {
		s.logger.Info("Run %s finished: %d passed, %d failed", run.ID, report.Passed, report.Failed)
	}
	if err := s.tracker.Finish(run.ID, report, err); err != nil {
		s.logger.Error("Failed to record run %s: %v", run.ID, err)
	}
}

// Get returns a run by ID
func (s *RunService) Get(id string) (tracker.Run, error) {
	return s.tracker.Get(id)
}

// List returns all runs, newest first
func (s *RunService) List() []tracker.Run {
	return s.tracker.List()
}

// Subscribe attaches to a run's progress events
func (s *RunService) Subscribe(id string) (*tracker.Subscription, error) {
	return s.tracker.Subscribe(id)
}

// Shutdown cancels in-flight runs and waits for them to finish or ctx to expire
func (s *RunService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
