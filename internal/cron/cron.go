package cron

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/acwooding/dmp-test-ci/internal/log"
	"github.com/acwooding/dmp-test-ci/internal/tracker"
)

// Starter queues a suite run
type Starter interface {
	Start(trigger tracker.Trigger, grep string) (tracker.Run, error)
}

// Manager manages cron jobs
type Manager struct {
	cron     *cron.Cron
	logger   *log.Logger
	runs     Starter
	schedule string
	grep     string
}

// NewManager creates a new cron manager running the suite on schedule,
// a standard five-field cron expression or a descriptor such as "@hourly".
func NewManager(logger *log.Logger, runs Starter, schedule, grep string) *Manager {
	return &Manager{
		cron:     cron.New(cron.WithLogger(cron.DefaultLogger)),
		logger:   logger,
		runs:     runs,
		schedule: schedule,
		grep:     grep,
	}
}

// Start registers the suite job and starts the scheduler
func (m *Manager) Start() error {
	if _, err := m.cron.AddFunc(m.schedule, m.runSuite); err != nil {
		return fmt.Errorf("failed to add suite job %q: %w", m.schedule, err)
	}
	m.cron.Start()
	m.logger.Info("Cron manager started, suite runs on %q", m.schedule)
	return nil
}

// Stop stops the scheduler; running suite jobs are left to the run service
func (m *Manager) Stop() {
	<-m.cron.Stop().Done()
	m.logger.Info("Cron manager stopped")
}

// runSuite runs the scheduled suite job
func (m *Manager) runSuite() {
	m.logger.Info("Running scheduled suite")
	run, err := m.runs.Start(tracker.TriggerSchedule, m.grep)
	if err != nil {
		m.logger.Error("Failed to start scheduled suite: %v", err)
		return
	}
	m.logger.Debug("Scheduled suite queued as run %s", run.ID)
}
