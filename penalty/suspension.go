package penalty

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warp/staffops/generic"
)

// =============================================================================
// SUSPENSION LIFT
// =============================================================================

// LiftResult is the outcome of either lift path.
type LiftResult struct {
	Employee    generic.Employee        `json:"employee"`
	Cancelled   generic.AppliedPenalty  `json:"cancelled"`
	Replacement *generic.AppliedPenalty `json:"replacement,omitempty"`
}

// LiftWithoutPenalty accepts an excuse: the suspension is cancelled with the
// excuse as reason and the employee goes back to ACTIVE.
func (e *Engine) LiftWithoutPenalty(ctx context.Context, employeeID generic.EmployeeID, excuse, actor string) (LiftResult, error) {
	excuse = strings.TrimSpace(excuse)
	if n := utf8.RuneCountInString(excuse); n < e.limits.MinExcuseLength {
		return LiftResult{}, generic.Invalid("excuse", "must be at least %d characters, got %d", e.limits.MinExcuseLength, n)
	}
	if strings.TrimSpace(actor) == "" {
		return LiftResult{}, generic.Invalid("actor", "required")
	}
	return e.lift(ctx, employeeID, actor, excuse, 0)
}

// LiftWithPenalty converts the suspension into an APPROVED deduction of
// deductionDays, tied to the same leave, delay and policy.
func (e *Engine) LiftWithPenalty(ctx context.Context, employeeID generic.EmployeeID, deductionDays int, actor string) (LiftResult, error) {
	if deductionDays <= 0 || deductionDays > e.limits.MaxDeductionDays {
		return LiftResult{}, generic.Invalid("deduction_days", "must be between 1 and %d, got %d", e.limits.MaxDeductionDays, deductionDays)
	}
	if strings.TrimSpace(actor) == "" {
		return LiftResult{}, generic.Invalid("actor", "required")
	}
	return e.lift(ctx, employeeID, actor, "", deductionDays)
}

// lift runs both paths. deductionDays > 0 selects the conversion path.
func (e *Engine) lift(ctx context.Context, employeeID generic.EmployeeID, actor, excuse string, deductionDays int) (LiftResult, error) {
	var result LiftResult
	err := e.store.WithTx(ctx, func(tx generic.Store) error {
		emp, err := tx.GetEmployee(ctx, employeeID)
		if err != nil {
			return err
		}
		active, err := activeSuspensions(ctx, tx, employeeID)
		if err != nil {
			return err
		}
		if len(active) == 0 {
			return errors.Wrapf(generic.ErrNoActiveSuspension, "employee %s", employeeID)
		}
		if emp.EmploymentStatus != generic.StatusSuspended {
			return errors.Wrapf(generic.ErrNotSuspended, "employee %s is %s", employeeID, emp.EmploymentStatus)
		}
		suspension := active[0]

		now := e.clock.Now()
		reason := excuse
		if deductionDays > 0 {
			reason = fmt.Sprintf("suspension lifted and replaced by a %d-day deduction", deductionDays)
		}
		cancelled, err := cancelPenalty(ctx, tx, suspension, reason, actor, now)
		if err != nil {
			return err
		}
		result.Cancelled = cancelled

		if deductionDays > 0 {
			replacement := generic.AppliedPenalty{
				ID:                generic.PenaltyID(uuid.NewString()),
				LeaveID:           suspension.LeaveID,
				EmployeeID:        suspension.EmployeeID,
				DelayDays:         suspension.DelayDays,
				PolicyID:          suspension.PolicyID,
				PenaltyType:       generic.PenaltyDeduction,
				DeductionDays:     deductionDays,
				Status:            generic.PenaltyApproved,
				CreatedBy:         actor,
				ApprovedBy:        actor,
				ApprovedAt:        &now,
				ReplacesPenaltyID: suspension.ID,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			if err := tx.SavePenalty(ctx, replacement); err != nil {
				return errors.Wrap(err, "save replacement deduction")
			}
			result.Replacement = &replacement
		}

		emp.EmploymentStatus = generic.StatusActive
		emp.UpdatedAt = now
		if err := tx.SaveEmployee(ctx, emp); err != nil {
			return errors.Wrapf(err, "save employee %s", emp.ID)
		}
		result.Employee = emp
		return nil
	})
	if err != nil {
		return LiftResult{}, err
	}

	fields := log.Fields{
		"employee_id": employeeID,
		"penalty_id":  result.Cancelled.ID,
		"lifted_by":   actor,
	}
	if result.Replacement != nil {
		fields["replacement_id"] = result.Replacement.ID
		fields["deduction_days"] = deductionDays
	}
	e.logger.WithFields(fields).Info("suspension lifted")
	return result, nil
}
