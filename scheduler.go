package ecoguard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultMonitorSchedule runs the monitoring pass at the top of every hour.
const DefaultMonitorSchedule = "@hourly"

// Scheduler runs Monitor passes on a cron schedule, outside any request path.
// A pass still running when the next one is due is skipped.
type Scheduler struct {
	monitor *Monitor
	spec    string
	timeout time.Duration
	cron    *cron.Cron

	mu      sync.Mutex
	started bool
	lastRun time.Time
	runs    int64
}

// NewScheduler prepares a scheduler for m. An empty spec means
// DefaultMonitorSchedule; timeout bounds each pass (0 = no bound).
func NewScheduler(m *Monitor, spec string, timeout time.Duration) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultMonitorSchedule
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("%w: schedule %q: %v", ErrInvalidConfig, spec, err)
	}
	return &Scheduler{
		monitor: m,
		spec:    spec,
		timeout: timeout,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
	}, nil
}

// Start schedules the pass and starts the cron runner. Passes derive their
// context from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if _, err := s.cron.AddFunc(s.spec, func() { s.RunNow(ctx) }); err != nil {
		return fmt.Errorf("ecoguard: schedule monitor: %w", err)
	}
	s.cron.Start()
	s.started = true
	s.monitor.logger.Info("ecoguard: monitor scheduled", "schedule", s.spec)
	return nil
}

// Stop stops scheduling and returns a context that is done once any running
// pass has finished.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return s.cron.Stop()
}

// RunNow performs one pass immediately.
func (s *Scheduler) RunNow(ctx context.Context) []Alert {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	now := s.monitor.now()
	alerts := s.monitor.Run(ctx, now)

	s.mu.Lock()
	s.lastRun = now
	s.runs++
	s.mu.Unlock()
	return alerts
}

// LastRun returns the start time of the latest pass and the number of passes.
func (s *Scheduler) LastRun() (time.Time, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.runs
}
