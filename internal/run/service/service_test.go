package service

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acwooding/dmp-test-ci/internal/log"
	"github.com/acwooding/dmp-test-ci/internal/scenario"
	"github.com/acwooding/dmp-test-ci/internal/tracker"
)

func waitDone(t *testing.T, svc *RunService, id string) tracker.Run {
	t.Helper()
	var run tracker.Run
	require.Eventually(t, func() bool {
		var err error
		run, err = svc.Get(id)
		return err == nil && run.State.Done()
	}, 2*time.Second, 5*time.Millisecond)
	return run
}

func TestStartRunsInBackground(t *testing.T) {
	exec := func(ctx context.Context, run tracker.Run, sink scenario.EventSink) (*scenario.Report, error) {
		sink.Publish(scenario.Event{Type: scenario.EventRunStarted})
		return &scenario.Report{Suite: "Cord19 Canvas Tests", Passed: 3}, nil
	}
	svc := New(tracker.NewInMemoryRunTracker(), exec, log.NewWithWriter(io.Discard))

	run, err := svc.Start(tracker.TriggerAPI, "zoom")
	require.NoError(t, err)
	assert.Equal(t, "zoom", run.Grep)

	done := waitDone(t, svc, run.ID)
	assert.Equal(t, tracker.StatePassed, done.State)
	require.NotNil(t, done.Report)
	assert.Equal(t, 3, done.Report.Passed)
	assert.Len(t, svc.List(), 1)

	require.NoError(t, svc.Shutdown(context.Background()))
}

func TestExecutorErrorMarksRunErrored(t *testing.T) {
	exec := func(context.Context, tracker.Run, scenario.EventSink) (*scenario.Report, error) {
		return nil, errors.New("could not start playwright")
	}
	svc := New(tracker.NewInMemoryRunTracker(), exec, log.NewWithWriter(io.Discard))

	run, err := svc.Start(tracker.TriggerSchedule, "")
	require.NoError(t, err)
	done := waitDone(t, svc, run.ID)
	assert.Equal(t, tracker.StateErrored, done.State)
	assert.Contains(t, done.Error, "playwright")
}

func TestRunsAreSerialized(t *testing.T) {
	var active, peak int32
	exec := func(context.Context, tracker.Run, scenario.EventSink) (*scenario.Report, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return &scenario.Report{}, nil
	}
	svc := New(tracker.NewInMemoryRunTracker(), exec, log.NewWithWriter(io.Discard))

	var ids []string
	for i := 0; i < 3; i++ {
		run, err := svc.Start(tracker.TriggerAPI, "")
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}
	for _, id := range ids {
		waitDone(t, svc, id)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestShutdownCancelsAndRejects(t *testing.T) {
	started := make(chan struct{})
	exec := func(ctx context.Context, _ tracker.Run, _ scenario.EventSink) (*scenario.Report, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	svc := New(tracker.NewInMemoryRunTracker(), exec, log.NewWithWriter(io.Discard))

	run, err := svc.Start(tracker.TriggerAPI, "")
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))

	done, err := svc.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, tracker.StateErrored, done.State)

	_, err = svc.Start(tracker.TriggerAPI, "")
	assert.ErrorIs(t, err, ErrShuttingDown)
}
