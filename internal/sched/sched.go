// Package sched runs periodic maintenance jobs.
package sched

import (
	"time"

	"github.com/roylee0704/gron"
	"github.com/roylee0704/gron/xtime"
	"go.uber.org/zap"
)

// Scheduler registers and runs named periodic jobs.
type Scheduler interface {
	// Every runs job on a fixed interval.
	Every(name string, interval time.Duration, job func())
	// Daily runs job once per day at hh:mm.
	Daily(name string, at string, job func())
	Start()
	Stop()
}

// Cron is the gron-backed Scheduler used in production.
type Cron struct {
	cron   *gron.Cron
	logger *zap.Logger
}

// NewCron builds a Cron scheduler.
func NewCron(logger *zap.Logger) *Cron {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cron{cron: gron.New(), logger: logger}
}

// Every runs job on a fixed interval.
func (c *Cron) Every(name string, interval time.Duration, job func()) {
	c.cron.AddFunc(gron.Every(interval), c.wrap(name, job))
}

// Daily runs job once per day at hh:mm ("00:00" for midnight).
func (c *Cron) Daily(name string, at string, job func()) {
	c.cron.AddFunc(gron.Every(1*xtime.Day).At(at), c.wrap(name, job))
}

// Start launches the job loop.
func (c *Cron) Start() { c.cron.Start() }

// Stop halts the job loop. Running jobs finish.
func (c *Cron) Stop() { c.cron.Stop() }

func (c *Cron) wrap(name string, job func()) func() {
	return func() {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("scheduled job panicked",
					zap.String("job", name), zap.Any("panic", r))
			}
		}()
		job()
		c.logger.Debug("scheduled job ran",
			zap.String("job", name), zap.Duration("duration", time.Since(start)))
	}
}

// Manual is a Scheduler that only runs jobs when told to. For tests.
type Manual struct {
	jobs map[string]func()
}

// NewManual builds a Manual scheduler.
func NewManual() *Manual {
	return &Manual{jobs: make(map[string]func())}
}

// Every registers job under name; the interval is ignored.
func (m *Manual) Every(name string, _ time.Duration, job func()) { m.jobs[name] = job }

// Daily registers job under name; the time of day is ignored.
func (m *Manual) Daily(name string, _ string, job func()) { m.jobs[name] = job }

// Start is a no-op.
func (m *Manual) Start() {}

// Stop is a no-op.
func (m *Manual) Stop() {}

// Fire runs the named job synchronously. Unknown names are ignored.
func (m *Manual) Fire(name string) {
	if job, ok := m.jobs[name]; ok {
		job()
	}
}

// Names returns the registered job names.
func (m *Manual) Names() []string {
	names := make([]string, 0, len(m.jobs))
	for name := range m.jobs {
		names = append(names, name)
	}
	return names
}
