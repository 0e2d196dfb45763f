/*
engine.go - Delay penalty creation and status transitions

PURPOSE:
  Matches overdue leaves against the active tier table and creates PENDING
  penalties, then moves them through review:

    PENDING  --approve-->  APPROVED  --payroll-->  APPLIED
       |                      |
       +------cancel----------+-------------->  CANCELLED

CREATION RULE (shared by the daily run and manual evaluation):
  1. Skip if the leave already has a blocking penalty (PENDING/APPROVED/APPLIED).
  2. Skip if the employee is inactive or already SUSPENDED.
  3. delay = DelayDays(end, asOf); skip if <= 0.
  4. Tier = largest active threshold <= delay; no tier -> skip + warn.
  5. Snapshot delay, policy, type and amounts onto a new PENDING penalty.
  Creation never touches the employee or the leave.

SIDE EFFECTS:
  Approving a SUSPENSION sets the employee SUSPENDED in the same transaction.
  Cancelling never reinstates; only suspension.go does that.

SEE ALSO:
  - suspension.go: lift workflow
  - policies.go: tier matching
  - payroll/bridge.go: APPROVED -> APPLIED
*/
package penalty

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warp/staffops/generic"
	"github.com/warp/staffops/timeoff"
)

// SkipReason explains why Evaluate created nothing.
type SkipReason string

const (
	SkipNone           SkipReason = ""
	SkipDuplicate      SkipReason = "duplicate"
	SkipInactive       SkipReason = "employee_inactive"
	SkipSuspended      SkipReason = "employee_suspended"
	SkipNotOverdue     SkipReason = "not_overdue"
	SkipNoMatchingTier SkipReason = "no_matching_tier"
)

// Evaluation is the outcome of one Evaluate call.
// Exactly one of Penalty and Skipped is set.
type Evaluation struct {
	LeaveID   generic.LeaveID         `json:"leave_id"`
	DelayDays int                     `json:"delay_days"`
	Penalty   *generic.AppliedPenalty `json:"penalty,omitempty"`
	Skipped   SkipReason              `json:"skipped,omitempty"`
}

// Created reports whether a new penalty was recorded.
func (e Evaluation) Created() bool { return e.Penalty != nil }

// Limits bounds the manual lift actions.
type Limits struct {
	MinExcuseLength  int
	MaxDeductionDays int
}

var DefaultLimits = Limits{MinExcuseLength: 5, MaxDeductionDays: 30}

// CreatedHook is called after a penalty is persisted by Evaluate.
type CreatedHook func(ctx context.Context, p generic.AppliedPenalty)

// Engine creates penalties and applies their status transitions.
type Engine struct {
	store     generic.TxStore
	clock     generic.Clock
	logger    *log.Entry
	limits    Limits
	onCreated CreatedHook
}

func NewEngine(store generic.TxStore, clock generic.Clock, logger *log.Entry, limits Limits) *Engine {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	if logger == nil {
		logger = log.WithField("component", "penalty")
	}
	if limits.MinExcuseLength <= 0 {
		limits.MinExcuseLength = DefaultLimits.MinExcuseLength
	}
	if limits.MaxDeductionDays <= 0 {
		limits.MaxDeductionDays = DefaultLimits.MaxDeductionDays
	}
	return &Engine{store: store, clock: clock, logger: logger, limits: limits}
}

// OnCreated registers the per-penalty alert.
func (e *Engine) OnCreated(hook CreatedHook) { e.onCreated = hook }

func (e *Engine) Limits() Limits { return e.limits }

// =============================================================================
// EVALUATION
// =============================================================================

// Policies returns the active tier table.
func (e *Engine) Policies(ctx context.Context) (PolicyTable, error) {
	policies, err := e.store.ListPolicies(ctx, true)
	if err != nil {
		return PolicyTable{}, errors.Wrap(err, "list policies")
	}
	return NewPolicyTable(policies), nil
}

// Evaluate applies the creation rule to a leave already known to be overdue.
func (e *Engine) Evaluate(ctx context.Context, leave generic.Leave, asOf generic.Date, actor string) (Evaluation, error) {
	table, err := e.Policies(ctx)
	if err != nil {
		return Evaluation{}, err
	}
	return e.evaluate(ctx, table, leave, asOf, actor)
}

// EvaluateLeave is the manual path: it loads and checks the leave first.
func (e *Engine) EvaluateLeave(ctx context.Context, id generic.LeaveID, asOf generic.Date, actor string) (Evaluation, error) {
	if strings.TrimSpace(actor) == "" {
		return Evaluation{}, generic.Invalid("actor", "required")
	}
	leave, err := e.store.GetLeave(ctx, id)
	if err != nil {
		return Evaluation{}, err
	}
	if !leave.IsRealAbsence() {
		return Evaluation{}, generic.Invalid("leave", "%s is not an active absence", id)
	}
	if leave.Status != generic.LeaveApproved {
		return Evaluation{}, generic.Invalid("leave", "%s is %s, only APPROVED leaves are penalized", id, leave.Status)
	}
	if !leave.IsOpen() {
		return Evaluation{}, errors.Wrapf(generic.ErrLeaveClosed, "leave %s", id)
	}
	return e.Evaluate(ctx, leave, asOf, actor)
}

// Failure is one leave the batch could not evaluate.
type Failure struct {
	LeaveID generic.LeaveID `json:"leave_id"`
	Error   string          `json:"error"`
}

// BatchResult aggregates EvaluateAll.
type BatchResult struct {
	Evaluated int                      `json:"evaluated"`
	Created   []generic.AppliedPenalty `json:"created"`
	Skipped   map[SkipReason]int       `json:"skipped"`
	Failures  []Failure                `json:"failures"`
}

// EvaluateAll evaluates independent leaves against one tier snapshot.
// A failing leave is logged and recorded; the rest still run.
func (e *Engine) EvaluateAll(ctx context.Context, leaves []generic.Leave, asOf generic.Date, actor string) (BatchResult, error) {
	result := BatchResult{Skipped: make(map[SkipReason]int)}
	table, err := e.Policies(ctx)
	if err != nil {
		return result, err
	}
	if table.Len() == 0 {
		e.logger.Warn("no active penalty policies")
	}

	for _, leave := range leaves {
		result.Evaluated++
		ev, err := e.evaluateIsolated(ctx, table, leave, asOf, actor)
		if err != nil {
			e.logger.WithError(err).WithField("leave_id", leave.ID).Error("evaluation failed")
			result.Failures = append(result.Failures, Failure{LeaveID: leave.ID, Error: err.Error()})
			continue
		}
		if ev.Created() {
			result.Created = append(result.Created, *ev.Penalty)
		} else {
			result.Skipped[ev.Skipped]++
		}
	}
	return result, nil
}

// evaluateIsolated turns a panic on one leave into that leave's failure.
func (e *Engine) evaluateIsolated(ctx context.Context, table PolicyTable, leave generic.Leave, asOf generic.Date, actor string) (ev Evaluation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("evaluation panic: %v", r)
		}
	}()
	return e.evaluate(ctx, table, leave, asOf, actor)
}

func (e *Engine) evaluate(ctx context.Context, table PolicyTable, leave generic.Leave, asOf generic.Date, actor string) (Evaluation, error) {
	result := Evaluation{LeaveID: leave.ID, DelayDays: timeoff.DelayDays(leave.EndDate, asOf)}
	logger := e.logger.WithFields(log.Fields{
		"leave_id":    leave.ID,
		"employee_id": leave.EmployeeID,
		"delay_days":  result.DelayDays,
	})

	existing, err := e.store.ListPenalties(ctx, generic.PenaltyFilter{LeaveID: leave.ID})
	if err != nil {
		return result, errors.Wrapf(err, "list penalties for leave %s", leave.ID)
	}
	for _, p := range existing {
		if p.Blocks() {
			result.Skipped = SkipDuplicate
			return result, nil
		}
	}

	emp, err := e.store.GetEmployee(ctx, leave.EmployeeID)
	if err != nil {
		return result, errors.Wrapf(err, "leave %s", leave.ID)
	}
	if !emp.IsActive {
		result.Skipped = SkipInactive
		return result, nil
	}
	if emp.EmploymentStatus == generic.StatusSuspended {
		result.Skipped = SkipSuspended
		return result, nil
	}

	if result.DelayDays <= 0 {
		result.Skipped = SkipNotOverdue
		return result, nil
	}

	tier, ok := table.Match(result.DelayDays)
	if !ok {
		logger.Warn(generic.ErrNoMatchingTier.Error())
		result.Skipped = SkipNoMatchingTier
		return result, nil
	}

	now := e.clock.Now()
	p := generic.AppliedPenalty{
		ID:             generic.PenaltyID(uuid.NewString()),
		LeaveID:        leave.ID,
		EmployeeID:     leave.EmployeeID,
		DelayDays:      result.DelayDays,
		PolicyID:       tier.ID,
		PenaltyType:    tier.PenaltyType,
		DeductionDays:  tier.DeductionDays,
		SuspensionDays: tier.SuspensionDays,
		Status:         generic.PenaltyPending,
		CreatedBy:      actor,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.store.SavePenalty(ctx, p); err != nil {
		return result, errors.Wrapf(err, "save penalty for leave %s", leave.ID)
	}
	result.Penalty = &p

	logger.WithFields(log.Fields{
		"penalty_id":   p.ID,
		"policy_id":    p.PolicyID,
		"penalty_type": p.PenaltyType,
	}).Info("penalty created")
	if e.onCreated != nil {
		e.onCreated(ctx, p)
	}
	return result, nil
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Approve moves a PENDING penalty to APPROVED. A SUSPENSION approval also
// sets the employee SUSPENDED; both writes commit together or not at all.
func (e *Engine) Approve(ctx context.Context, id generic.PenaltyID, actor string) (generic.AppliedPenalty, error) {
	if strings.TrimSpace(actor) == "" {
		return generic.AppliedPenalty{}, generic.Invalid("actor", "required")
	}

	var approved generic.AppliedPenalty
	err := e.store.WithTx(ctx, func(tx generic.Store) error {
		p, err := tx.GetPenalty(ctx, id)
		if err != nil {
			return err
		}
		if !generic.CanTransition(p.Status, generic.PenaltyApproved) {
			return &generic.TransitionError{PenaltyID: id, From: p.Status, To: generic.PenaltyApproved}
		}

		now := e.clock.Now()
		if p.PenaltyType == generic.PenaltySuspension {
			if err := e.suspend(ctx, tx, p, now); err != nil {
				return err
			}
		}

		p.Status = generic.PenaltyApproved
		p.ApprovedBy = actor
		p.ApprovedAt = &now
		p.UpdatedAt = now
		if err := tx.SavePenalty(ctx, p); err != nil {
			return errors.Wrapf(err, "save penalty %s", p.ID)
		}
		approved = p
		return nil
	})
	if err != nil {
		return generic.AppliedPenalty{}, err
	}

	e.logger.WithFields(log.Fields{
		"penalty_id":   approved.ID,
		"employee_id":  approved.EmployeeID,
		"penalty_type": approved.PenaltyType,
	}).Info("penalty approved")
	return approved, nil
}

// suspend sets the employee SUSPENDED, refusing when another suspension is
// already in force.
func (e *Engine) suspend(ctx context.Context, tx generic.Store, p generic.AppliedPenalty, now time.Time) error {
	active, err := activeSuspensions(ctx, tx, p.EmployeeID)
	if err != nil {
		return err
	}
	for _, other := range active {
		if other.ID != p.ID {
			return errors.Wrapf(generic.ErrSuspensionActive, "employee %s has penalty %s", p.EmployeeID, other.ID)
		}
	}

	emp, err := tx.GetEmployee(ctx, p.EmployeeID)
	if err != nil {
		return err
	}
	emp.EmploymentStatus = generic.StatusSuspended
	emp.UpdatedAt = now
	return errors.Wrapf(tx.SaveEmployee(ctx, emp), "save employee %s", emp.ID)
}

// Cancel moves a PENDING or APPROVED penalty to CANCELLED. The employee's
// status is left alone.
func (e *Engine) Cancel(ctx context.Context, id generic.PenaltyID, reason, actor string) (generic.AppliedPenalty, error) {
	if err := validateCancel(reason, actor); err != nil {
		return generic.AppliedPenalty{}, err
	}

	var (
		cancelled     generic.AppliedPenalty
		wasSuspension bool
	)
	err := e.store.WithTx(ctx, func(tx generic.Store) error {
		p, err := tx.GetPenalty(ctx, id)
		if err != nil {
			return err
		}
		wasSuspension = p.IsActiveSuspension()
		cancelled, err = cancelPenalty(ctx, tx, p, reason, actor, e.clock.Now())
		return err
	})
	if err != nil {
		return generic.AppliedPenalty{}, err
	}

	logger := e.logger.WithFields(log.Fields{
		"penalty_id":   cancelled.ID,
		"employee_id":  cancelled.EmployeeID,
		"cancelled_by": actor,
	})
	logger.Info("penalty cancelled")
	if wasSuspension {
		// Neither lift path finds a suspension to lift after this.
		logger.Warn("approved suspension cancelled directly, employee stays SUSPENDED")
	}
	return cancelled, nil
}

func validateCancel(reason, actor string) error {
	if strings.TrimSpace(reason) == "" {
		return generic.Invalid("reason", "required")
	}
	if strings.TrimSpace(actor) == "" {
		return generic.Invalid("actor", "required")
	}
	return nil
}

// cancelPenalty records the cancellation on p and saves it.
func cancelPenalty(ctx context.Context, tx generic.Store, p generic.AppliedPenalty, reason, actor string, now time.Time) (generic.AppliedPenalty, error) {
	if !generic.CanTransition(p.Status, generic.PenaltyCancelled) {
		return p, &generic.TransitionError{PenaltyID: p.ID, From: p.Status, To: generic.PenaltyCancelled}
	}
	p.Status = generic.PenaltyCancelled
	p.IsCancelled = true
	p.CancelReason = strings.TrimSpace(reason)
	p.CancelledBy = actor
	p.CancelledAt = &now
	p.UpdatedAt = now
	if err := tx.SavePenalty(ctx, p); err != nil {
		return p, errors.Wrapf(err, "save penalty %s", p.ID)
	}
	return p, nil
}

// =============================================================================
// READS
// =============================================================================

func (e *Engine) Get(ctx context.Context, id generic.PenaltyID) (generic.AppliedPenalty, error) {
	return e.store.GetPenalty(ctx, id)
}

func (e *Engine) List(ctx context.Context, filter generic.PenaltyFilter) ([]generic.AppliedPenalty, error) {
	return e.store.ListPenalties(ctx, filter)
}

func activeSuspensions(ctx context.Context, store generic.PenaltyStore, employeeID generic.EmployeeID) ([]generic.AppliedPenalty, error) {
	penalties, err := store.ListPenalties(ctx, generic.PenaltyFilter{
		EmployeeID:  employeeID,
		PenaltyType: generic.PenaltySuspension,
		Statuses:    []generic.PenaltyStatus{generic.PenaltyApproved},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list suspensions for %s", employeeID)
	}
	var active []generic.AppliedPenalty
	for _, p := range penalties {
		if p.IsActiveSuspension() {
			active = append(active, p)
		}
	}
	return active, nil
}
