// Package scheduler wires up the cron job that periodically refreshes the
// published catalog in serve mode.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"costa-catalog/catalog"
	"costa-catalog/utils"
)

// Refresher rebuilds the catalog; catalog.Store implements it.
type Refresher interface {
	Refresh(ctx context.Context) (*catalog.Catalog, error)
}

// Scheduler wraps robfig/cron and drives the refresh loop.
type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	logger    *utils.Logger
	interval  time.Duration
	spec      string
	runs      atomic.Int64
}

// New creates a Scheduler that refreshes every interval. Overlapping ticks
// are skipped while a refresh is still running.
func New(refresher Refresher, interval time.Duration, logger *utils.Logger) *Scheduler {
	cl := cronLogger{logger}
	return &Scheduler{
		cron:      cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		refresher: refresher,
		logger:    logger,
		interval:  interval,
		spec:      fmt.Sprintf("@every %s", interval),
	}
}

// Start registers the job and starts the scheduler. With runNow it also
// refreshes once immediately (non-blocking) so the API has data without
// waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context, runNow bool) error {
	if s.interval < time.Second {
		return fmt.Errorf("scheduler: interval %s is below one second", s.interval)
	}
	if _, err := s.cron.AddFunc(s.spec, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.cron.Start()
	s.logger.Info("[scheduler] Cron started, spec: %s", s.spec)

	if runNow {
		go s.RunOnce(ctx)
	}
	return nil
}

// Stop halts the scheduler and waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("[scheduler] Cron stopped")
}

// RunOnce performs one refresh. Failures are logged; the store keeps
// serving its previous catalog.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	n := s.runs.Add(1)
	s.logger.Info("[scheduler] Refresh #%d started", n)
	start := time.Now()

	cat, err := s.refresher.Refresh(ctx)
	if err != nil {
		s.logger.Error("[scheduler] Refresh #%d failed: %v", n, err)
		return
	}
	s.logger.Info("[scheduler] Refresh #%d complete in %v: %d units", n,
		time.Since(start).Round(time.Millisecond), len(cat.Properties()))
}

// Runs reports how many refreshes have been started.
func (s *Scheduler) Runs() int64 {
	return s.runs.Load()
}

// cronLogger adapts utils.Logger to cron.Logger.
type cronLogger struct {
	l *utils.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("[scheduler] cron: %s %v", msg, keysAndValues)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("[scheduler] cron: %s: %v %v", msg, err, keysAndValues)
}
