/*
cycle.go - Next leave window forecasting

PURPOSE:
  Computes when an employee's next leave is due from their (work, leave)
  cycle and the end of their last leave. The result is written to the
  employee's forecast cache, which nothing else trusts for correctness.

RULES:
  anchor = lastLeaveEndDate, else hireDate
  start  = anchor + workDaysPerCycle
  if start < today: start = today + workDaysPerCycle   (no backlog)
  end    = start + leaveDaysPerCycle - 1                (inclusive)

  No window when the cycle is not configured or the employee is ON_LEAVE.

EXAMPLE:
  calc := timeoff.NewCycleCalculator(store, clock, nil)
  w, ok := calc.NextWindow(emp, generic.Today(clock))
  // ok=false -> no forecast

SEE ALSO:
  - lifecycle.go: leave queries
*/
package timeoff

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warp/staffops/generic"
)

// Window is an inclusive leave date range.
type Window struct {
	Start generic.Date `json:"start"`
	End   generic.Date `json:"end"`
}

// Days returns the inclusive length of the window.
func (w Window) Days() int { return generic.DaysBetween(w.Start, w.End) + 1 }

// RefreshCounts summarizes a bulk forecast refresh.
type RefreshCounts struct {
	Updated        int `json:"updated"`
	SkippedNoCycle int `json:"skipped_no_cycle"`
	Errored        int `json:"errored"`
}

// CycleCalculator computes and caches next leave windows.
type CycleCalculator struct {
	store  generic.EmployeeStore
	clock  generic.Clock
	logger *log.Entry
}

func NewCycleCalculator(store generic.EmployeeStore, clock generic.Clock, logger *log.Entry) *CycleCalculator {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	if logger == nil {
		logger = log.WithField("component", "cycle")
	}
	return &CycleCalculator{store: store, clock: clock, logger: logger}
}

// NextWindow is the pure computation; it never touches the store.
func (c *CycleCalculator) NextWindow(emp generic.Employee, today generic.Date) (Window, bool) {
	if !emp.HasCycle() || emp.EmploymentStatus == generic.StatusOnLeave {
		return Window{}, false
	}
	work, leave := *emp.WorkDaysPerCycle, *emp.LeaveDaysPerCycle

	anchor := emp.HireDate
	if emp.LastLeaveEndDate != nil && !emp.LastLeaveEndDate.IsZero() {
		anchor = *emp.LastLeaveEndDate
	}

	start := anchor.AddDays(work)
	if start.Before(today) {
		start = today.AddDays(work)
	}
	return Window{Start: start, End: start.AddDays(leave - 1)}, true
}

// Refresh recomputes one employee's window and writes it to the cache.
// Returns ok=false (and writes nothing) when no window can be produced.
func (c *CycleCalculator) Refresh(ctx context.Context, id generic.EmployeeID) (Window, bool, error) {
	emp, err := c.store.GetEmployee(ctx, id)
	if err != nil {
		return Window{}, false, err
	}
	w, err := c.refresh(ctx, emp, generic.Today(c.clock))
	if generic.IsConfigGap(err) {
		return Window{}, false, nil
	}
	if err != nil {
		return Window{}, false, err
	}
	return w, true, nil
}

// RefreshAll recomputes the cache for every active employee not on leave.
// One failing employee never stops the pass.
func (c *CycleCalculator) RefreshAll(ctx context.Context) (RefreshCounts, error) {
	var counts RefreshCounts

	employees, err := c.store.ListEmployees(ctx)
	if err != nil {
		return counts, errors.Wrap(err, "list employees")
	}

	today := generic.Today(c.clock)
	for _, emp := range employees {
		if !emp.IsActive || emp.EmploymentStatus == generic.StatusOnLeave {
			continue
		}
		_, err := c.refresh(ctx, emp, today)
		switch {
		case generic.IsConfigGap(err):
			c.logger.WithField("employee_id", emp.ID).Warn(err.Error())
			counts.SkippedNoCycle++
		case err != nil:
			c.logger.WithError(err).WithField("employee_id", emp.ID).Error("forecast refresh failed")
			counts.Errored++
		default:
			counts.Updated++
		}
	}

	c.logger.WithFields(log.Fields{
		"updated":          counts.Updated,
		"skipped_no_cycle": counts.SkippedNoCycle,
		"errored":          counts.Errored,
	}).Info("forecast refresh complete")
	return counts, nil
}

// refresh returns ErrNoCycle when emp has no window to forecast.
func (c *CycleCalculator) refresh(ctx context.Context, emp generic.Employee, today generic.Date) (Window, error) {
	w, ok := c.NextWindow(emp, today)
	if !ok {
		return Window{}, errors.Wrapf(generic.ErrNoCycle, "employee %s", emp.ID)
	}
	return w, c.writeCache(ctx, emp, w)
}

func (c *CycleCalculator) writeCache(ctx context.Context, emp generic.Employee, w Window) error {
	emp.NextLeaveStartDate = w.Start.Ptr()
	emp.NextLeaveEndDate = w.End.Ptr()
	emp.UpdatedAt = c.clock.Now()
	return errors.Wrapf(c.store.SaveEmployee(ctx, emp), "save forecast for %s", emp.ID)
}
