/*
lifecycle.go - Leave queries, overlap repair and return registration

PURPOSE:
  Answers "who is away", "who should be back" and "who is late" over the
  leave table. Every query excludes CASH_SETTLEMENT rows, soft-deleted rows
  and statuses other than PENDING/APPROVED unless stated otherwise.

QUERIES:
  CurrentlyOnLeave(asOf):   open, live, start <= asOf <= end
  AwaitingReturn(asOf):     open, live, start <= asOf   (on leave + overdue)
  Overdue(asOf, grace):     open, APPROVED, end + grace < asOf

DELAY:
  The day after EndDate is the first day the employee is expected back, so
  DelayDays(end, asOf) = asOf - (end + 1), clamped to >= 0.

OVERLAPS:
  At most one open ACTUAL_LEAVE per employee should exist. When two open
  leaves share a day, the one created first is kept and the other is
  soft-closed (REJECTED, IsActive=false). Re-running finds nothing.

SEE ALSO:
  - cycle.go: forecast of the next window
  - penalty/engine.go: consumes Overdue
*/
package timeoff

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warp/staffops/generic"
)

// Overlap is one pair of open leaves that share at least one day.
// Kept was created first.
type Overlap struct {
	EmployeeID generic.EmployeeID `json:"employee_id"`
	Kept       generic.Leave      `json:"kept"`
	Dropped    generic.Leave      `json:"dropped"`
}

// ReturnResult is the outcome of RegisterReturn.
type ReturnResult struct {
	Leave     generic.Leave `json:"leave"`
	DelayDays int           `json:"delay_days"`
}

// LeaveLifecycle queries and repairs leave records.
type LeaveLifecycle struct {
	store  generic.TxStore
	clock  generic.Clock
	logger *log.Entry
}

func NewLeaveLifecycle(store generic.TxStore, clock generic.Clock, logger *log.Entry) *LeaveLifecycle {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	if logger == nil {
		logger = log.WithField("component", "lifecycle")
	}
	return &LeaveLifecycle{store: store, clock: clock, logger: logger}
}

// DelayDays returns how many days late a return on asOf is for a leave
// ending on end. Never negative.
func DelayDays(end, asOf generic.Date) int {
	d := generic.DaysBetween(end.AddDays(1), asOf)
	if d < 0 {
		return 0
	}
	return d
}

// =============================================================================
// QUERIES
// =============================================================================

// openLive returns open, active, ACTUAL_LEAVE, PENDING/APPROVED leaves.
func (l *LeaveLifecycle) openLive(ctx context.Context, store generic.LeaveStore, employeeID generic.EmployeeID) ([]generic.Leave, error) {
	leaves, err := store.ListLeaves(ctx, generic.LeaveFilter{EmployeeID: employeeID, OpenOnly: true, ActiveOnly: true})
	if err != nil {
		return nil, errors.Wrap(err, "list open leaves")
	}
	result := leaves[:0]
	for _, lv := range leaves {
		if lv.IsRealAbsence() && lv.IsLive() {
			result = append(result, lv)
		}
	}
	return result, nil
}

func (l *LeaveLifecycle) CurrentlyOnLeave(ctx context.Context, asOf generic.Date) ([]generic.Leave, error) {
	return l.selectOpen(ctx, func(lv generic.Leave) bool {
		return asOf.Between(lv.StartDate, lv.EndDate)
	})
}

// AwaitingReturn lets staff find any open leave once it has started, even late.
func (l *LeaveLifecycle) AwaitingReturn(ctx context.Context, asOf generic.Date) ([]generic.Leave, error) {
	return l.selectOpen(ctx, func(lv generic.Leave) bool {
		return lv.StartDate.BeforeOrEqual(asOf)
	})
}

// Overdue is the feed the daily run penalizes. Only APPROVED leaves count.
func (l *LeaveLifecycle) Overdue(ctx context.Context, asOf generic.Date, graceDays int) ([]generic.Leave, error) {
	if graceDays < 0 {
		return nil, generic.Invalid("grace", "must be >= 0, got %d", graceDays)
	}
	return l.selectOpen(ctx, func(lv generic.Leave) bool {
		return lv.Status == generic.LeaveApproved && lv.EndDate.AddDays(graceDays).Before(asOf)
	})
}

func (l *LeaveLifecycle) selectOpen(ctx context.Context, keep func(generic.Leave) bool) ([]generic.Leave, error) {
	leaves, err := l.openLive(ctx, l.store, "")
	if err != nil {
		return nil, err
	}
	var result []generic.Leave
	for _, lv := range leaves {
		if keep(lv) {
			result = append(result, lv)
		}
	}
	return result, nil
}

// =============================================================================
// OVERLAPS
// =============================================================================

// FindOverlapping reports every pair of intersecting open leaves for one employee.
func (l *LeaveLifecycle) FindOverlapping(ctx context.Context, employeeID generic.EmployeeID) ([]Overlap, error) {
	if employeeID == "" {
		return nil, generic.Invalid("employee_id", "required")
	}
	leaves, err := l.openLive(ctx, l.store, employeeID)
	if err != nil {
		return nil, err
	}
	return pairOverlaps(leaves), nil
}

// FindAllOverlapping runs FindOverlapping over every employee.
func (l *LeaveLifecycle) FindAllOverlapping(ctx context.Context) ([]Overlap, error) {
	leaves, err := l.openLive(ctx, l.store, "")
	if err != nil {
		return nil, err
	}
	var result []Overlap
	for _, group := range groupByEmployee(leaves) {
		result = append(result, pairOverlaps(group)...)
	}
	return result, nil
}

// ResolveOverlaps soft-closes every open leave that intersects an earlier
// kept one. An empty employeeID repairs all employees. Returns one entry
// per closed leave.
func (l *LeaveLifecycle) ResolveOverlaps(ctx context.Context, employeeID generic.EmployeeID) ([]Overlap, error) {
	var resolved []Overlap
	err := l.store.WithTx(ctx, func(tx generic.Store) error {
		leaves, err := l.openLive(ctx, tx, employeeID)
		if err != nil {
			return err
		}
		now := l.clock.Now()
		for _, group := range groupByEmployee(leaves) {
			var kept []generic.Leave
			for _, lv := range group {
				winner, clash := firstOverlap(kept, lv)
				if !clash {
					kept = append(kept, lv)
					continue
				}
				lv.Status = generic.LeaveRejected
				lv.IsActive = false
				lv.UpdatedAt = now
				if err := tx.SaveLeave(ctx, lv); err != nil {
					return errors.Wrapf(err, "soft-close leave %s", lv.ID)
				}
				l.logger.WithFields(log.Fields{
					"employee_id":  lv.EmployeeID,
					"kept_leave":   winner.ID,
					"closed_leave": lv.ID,
				}).Warn("overlapping open leave closed")
				resolved = append(resolved, Overlap{EmployeeID: lv.EmployeeID, Kept: winner, Dropped: lv})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

// groupByEmployee buckets leaves per employee, each bucket sorted by
// creation time (ID breaks ties), buckets in employee order.
func groupByEmployee(leaves []generic.Leave) [][]generic.Leave {
	byEmp := make(map[generic.EmployeeID][]generic.Leave)
	var ids []generic.EmployeeID
	for _, lv := range leaves {
		if _, ok := byEmp[lv.EmployeeID]; !ok {
			ids = append(ids, lv.EmployeeID)
		}
		byEmp[lv.EmployeeID] = append(byEmp[lv.EmployeeID], lv)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	groups := make([][]generic.Leave, 0, len(ids))
	for _, id := range ids {
		group := byEmp[id]
		sort.SliceStable(group, func(i, j int) bool { return createdFirst(group[i], group[j]) })
		groups = append(groups, group)
	}
	return groups
}

func createdFirst(a, b generic.Leave) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func pairOverlaps(leaves []generic.Leave) []Overlap {
	sorted := append([]generic.Leave(nil), leaves...)
	sort.SliceStable(sorted, func(i, j int) bool { return createdFirst(sorted[i], sorted[j]) })

	var result []Overlap
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			a, b := sorted[i], sorted[j]
			if generic.RangesOverlap(a.StartDate, a.EndDate, b.StartDate, b.EndDate) {
				result = append(result, Overlap{EmployeeID: a.EmployeeID, Kept: a, Dropped: b})
			}
		}
	}
	return result
}

func firstOverlap(kept []generic.Leave, lv generic.Leave) (generic.Leave, bool) {
	for _, k := range kept {
		if generic.RangesOverlap(k.StartDate, k.EndDate, lv.StartDate, lv.EndDate) {
			return k, true
		}
	}
	return generic.Leave{}, false
}

// =============================================================================
// RETURN REGISTRATION
// =============================================================================

// RegisterReturn closes an open leave. The employee's last-leave anchors move
// to this leave and an ON_LEAVE employee goes back to ACTIVE.
func (l *LeaveLifecycle) RegisterReturn(ctx context.Context, id generic.LeaveID, returnDate generic.Date) (ReturnResult, error) {
	if returnDate.IsZero() {
		return ReturnResult{}, generic.Invalid("return_date", "required")
	}

	var result ReturnResult
	err := l.store.WithTx(ctx, func(tx generic.Store) error {
		lv, err := tx.GetLeave(ctx, id)
		if err != nil {
			return err
		}
		if lv.SettlementType != generic.SettlementActualLeave {
			return generic.Invalid("leave", "%s is a cash settlement, not an absence", id)
		}
		if !lv.IsActive || !lv.IsLive() {
			return generic.Invalid("leave", "%s is %s", id, lv.Status)
		}
		if !lv.IsOpen() {
			return errors.Wrapf(generic.ErrLeaveClosed, "leave %s returned on %s", id, lv.ActualReturnDate)
		}
		if returnDate.Before(lv.StartDate) {
			return generic.Invalid("return_date", "%s is before leave start %s", returnDate, lv.StartDate)
		}

		now := l.clock.Now()
		lv.ActualReturnDate = returnDate.Ptr()
		lv.UpdatedAt = now
		if err := tx.SaveLeave(ctx, lv); err != nil {
			return errors.Wrapf(err, "save leave %s", id)
		}

		emp, err := tx.GetEmployee(ctx, lv.EmployeeID)
		if err != nil {
			return err
		}
		lastDay := returnDate.AddDays(-1)
		if lastDay.Before(lv.StartDate) {
			lastDay = lv.StartDate
		}
		emp.LastLeaveStartDate = lv.StartDate.Ptr()
		emp.LastLeaveEndDate = lastDay.Ptr()
		if emp.EmploymentStatus == generic.StatusOnLeave {
			emp.EmploymentStatus = generic.StatusActive
		}
		emp.UpdatedAt = now
		if err := tx.SaveEmployee(ctx, emp); err != nil {
			return errors.Wrapf(err, "save employee %s", emp.ID)
		}

		result = ReturnResult{Leave: lv, DelayDays: DelayDays(lv.EndDate, returnDate)}
		return nil
	})
	if err != nil {
		return ReturnResult{}, err
	}

	l.logger.WithFields(log.Fields{
		"leave_id":    id,
		"employee_id": result.Leave.EmployeeID,
		"delay_days":  result.DelayDays,
	}).Info("return registered")
	return result, nil
}
