/*
scheduler.go - Daily overdue-leave penalty run

PURPOSE:
  Once per calendar day (default 09:00 local) finds every APPROVED leave
  that is still open past its grace period and feeds it to the penalty
  engine. The same pipeline can be triggered manually.

PIPELINE:
  1. Guard: a run already in progress makes the new trigger skip (no queue)
  2. overdue = LeaveLifecycle.Overdue(today, grace)
  3. PenaltyEngine.EvaluateAll(overdue), failures isolated per leave
  4. One DailySummary notification when at least one penalty was created
     (per-penalty alerts fire from the engine hook at creation time)
  5. Optional bulk forecast refresh
  6. The run is recorded (running -> completed | failed)

FAILURES:
  Store outages and panics are caught at the run boundary, logged and
  recorded on the run. The guard is always released. The next day is a
  fresh full scan; there is no retry queue.

USAGE:
  scheduler := NewDailyScheduler(deps, SchedulerConfig{Hour: 9, Location: time.Local})
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerRun endpoint (manual run)
  - penalty/engine.go: creation rule
*/
package api

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warp/staffops/generic"
	"github.com/warp/staffops/notify"
	"github.com/warp/staffops/penalty"
	"github.com/warp/staffops/timeoff"
)

const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// SchedulerConfig controls when the daily run fires and what it does.
type SchedulerConfig struct {
	Enabled          bool
	Hour             int
	Minute           int
	Location         *time.Location
	GraceDays        int
	RefreshForecasts bool
}

// SchedulerDeps are the collaborators of a run.
type SchedulerDeps struct {
	Runs      generic.RunStore
	Lifecycle *timeoff.LeaveLifecycle
	Engine    *penalty.Engine
	Cycles    *timeoff.CycleCalculator
	Notifier  *notify.Notifier
	Clock     generic.Clock
	Logger    *log.Entry
}

// RunReport is what one run did.
type RunReport struct {
	Run       generic.PenaltyRun     `json:"run"`
	Batch     penalty.BatchResult    `json:"batch"`
	Forecasts *timeoff.RefreshCounts `json:"forecasts,omitempty"`
}

// DailyScheduler runs the overdue penalty pipeline once a day.
type DailyScheduler struct {
	deps SchedulerDeps
	cfg  SchedulerConfig

	running atomic.Bool
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

func NewDailyScheduler(deps SchedulerDeps, cfg SchedulerConfig) *DailyScheduler {
	if deps.Clock == nil {
		deps.Clock = generic.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = log.WithField("component", "scheduler")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &DailyScheduler{deps: deps, cfg: cfg, stop: make(chan struct{})}
}

// Start begins the background loop.
func (s *DailyScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.Enabled {
		s.deps.Logger.Info("scheduler disabled, not starting")
		return
	}
	if s.started {
		return
	}
	s.started = true
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.loop()

	s.deps.Logger.WithField("next_run", s.NextRunTime()).Info("scheduler started")
}

// Stop ends the loop and waits for an in-flight run to finish.
func (s *DailyScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	close(s.stop)
	s.wg.Wait()
	s.started = false
	s.deps.Logger.Info("scheduler stopped")
}

func (s *DailyScheduler) loop() {
	defer s.wg.Done()

	for {
		now := s.deps.Clock.Now()
		timer := time.NewTimer(nextRunAfter(now, s.cfg.Hour, s.cfg.Minute, s.cfg.Location).Sub(now))
		select {
		case <-timer.C:
			if _, err := s.RunNow(context.Background(), TriggerSchedule); err != nil {
				s.deps.Logger.WithError(err).Error("scheduled run failed")
			}
		case <-s.stop:
			timer.Stop()
			return
		}
	}
}

// NextRunTime returns when the next scheduled run will fire.
func (s *DailyScheduler) NextRunTime() time.Time {
	return nextRunAfter(s.deps.Clock.Now(), s.cfg.Hour, s.cfg.Minute, s.cfg.Location)
}

// nextRunAfter returns the first hour:minute in loc strictly after now.
func nextRunAfter(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}

// Running reports whether a run is executing.
func (s *DailyScheduler) Running() bool { return s.running.Load() }

// RunNow executes one run immediately. A trigger that arrives while a run is
// executing is skipped with ErrRunInProgress. Cancelling ctx does not stop a
// run that has started.
func (s *DailyScheduler) RunNow(ctx context.Context, trigger string) (RunReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.deps.Logger.WithField("trigger", trigger).Warn("run already in progress, skipping")
		return RunReport{}, generic.ErrRunInProgress
	}
	defer s.running.Store(false)

	return s.execute(context.WithoutCancel(ctx), trigger)
}

func (s *DailyScheduler) execute(ctx context.Context, trigger string) (report RunReport, err error) {
	now := s.deps.Clock.Now()
	today := generic.DateOf(now.In(s.cfg.Location))
	logger := s.deps.Logger.WithFields(log.Fields{"trigger": trigger, "as_of": today.String()})

	report.Run = generic.PenaltyRun{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		AsOf:      today,
		Status:    generic.RunRunning,
		StartedAt: now,
	}
	s.saveRun(ctx, logger, report.Run)

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("run panicked: %v", r)
		}
		s.finish(ctx, logger, &report, err)
	}()

	overdue, err := s.deps.Lifecycle.Overdue(ctx, today, s.cfg.GraceDays)
	if err != nil {
		return report, errors.Wrap(err, "find overdue leaves")
	}

	report.Batch, err = s.deps.Engine.EvaluateAll(ctx, overdue, today, generic.SystemActor)
	if err != nil {
		return report, errors.Wrap(err, "evaluate overdue leaves")
	}

	if created := len(report.Batch.Created); created > 0 {
		s.deps.Notifier.Notify(ctx, notify.DailySummary(today, created))
	}

	if s.cfg.RefreshForecasts && s.deps.Cycles != nil {
		counts, err := s.deps.Cycles.RefreshAll(ctx)
		if err != nil {
			logger.WithError(err).Warn("forecast refresh failed")
		} else {
			report.Forecasts = &counts
		}
	}
	return report, nil
}

func (s *DailyScheduler) finish(ctx context.Context, logger *log.Entry, report *RunReport, err error) {
	completed := s.deps.Clock.Now()
	run := &report.Run
	run.CompletedAt = &completed
	run.Evaluated = report.Batch.Evaluated
	run.Created = len(report.Batch.Created)
	run.Failed = len(report.Batch.Failures)
	run.Status = generic.RunCompleted
	if err != nil {
		run.Status = generic.RunFailed
		run.Error = err.Error()
	}
	s.saveRun(ctx, logger, *run)

	entry := logger.WithFields(log.Fields{
		"run_id":    run.ID,
		"evaluated": run.Evaluated,
		"created":   run.Created,
		"failed":    run.Failed,
	})
	if err != nil {
		entry.WithError(err).Error("penalty run failed")
		return
	}
	entry.Info("penalty run completed")
}

// saveRun never fails the run: the history is an audit trail.
func (s *DailyScheduler) saveRun(ctx context.Context, logger *log.Entry, run generic.PenaltyRun) {
	if s.deps.Runs == nil {
		return
	}
	if err := s.deps.Runs.SaveRun(ctx, run); err != nil {
		logger.WithError(err).WithField("run_id", run.ID).Error("failed to record run")
	}
}
