/*
bridge.go - Hand-off of approved deductions to the payroll process

PURPOSE:
  The only surface payroll sees. Payroll reads the deductions it should
  apply for a period, computes salaries elsewhere, then marks each
  penalty consumed so it can never be applied twice.

CONTRACT:
  PendingDeductions(emp, from, to): APPROVED, DEDUCTION, not yet applied,
                                    created within [from, to]
  MarkApplied(id, record):          APPROVED -> APPLIED, one-way.
                                    Same record again is a no-op,
                                    a different record is an error.

AMOUNTS:
  Deduction totals are decimal so a daily rate can be applied without
  float drift. Rounding is to cents, half away from zero.

SEE ALSO:
  - penalty/engine.go: how deductions become APPROVED
*/
package payroll

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/warp/staffops/generic"
)

// Bridge exposes approved deductions to payroll.
type Bridge struct {
	store  generic.TxStore
	clock  generic.Clock
	logger *log.Entry
}

func NewBridge(store generic.TxStore, clock generic.Clock, logger *log.Entry) *Bridge {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	if logger == nil {
		logger = log.WithField("component", "payroll")
	}
	return &Bridge{store: store, clock: clock, logger: logger}
}

// PendingDeductions lists the deductions payroll still has to apply.
// The period is inclusive on both ends, by calendar day of CreatedAt in
// the bridge clock's zone.
func (b *Bridge) PendingDeductions(ctx context.Context, employeeID generic.EmployeeID, from, to generic.Date) ([]generic.AppliedPenalty, error) {
	if employeeID == "" {
		return nil, generic.Invalid("employee_id", "required")
	}
	if from.IsZero() || to.IsZero() {
		return nil, generic.Invalid("period", "start and end are required")
	}
	if to.Before(from) {
		return nil, generic.Invalid("period", "end %s is before start %s", to, from)
	}

	penalties, err := b.store.ListPenalties(ctx, generic.PenaltyFilter{
		EmployeeID:  employeeID,
		PenaltyType: generic.PenaltyDeduction,
		Statuses:    []generic.PenaltyStatus{generic.PenaltyApproved},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list deductions for %s", employeeID)
	}

	// Stores may hand CreatedAt back in another zone; the period is in ours.
	loc := generic.Zone(b.clock)
	var result []generic.AppliedPenalty
	for _, p := range penalties {
		if p.IsCancelled || p.IsAppliedToPayroll {
			continue
		}
		if generic.DateOf(p.CreatedAt.In(loc)).Between(from, to) {
			result = append(result, p)
		}
	}
	return result, nil
}

// MarkApplied records that payrollRecordID consumed the deduction.
func (b *Bridge) MarkApplied(ctx context.Context, id generic.PenaltyID, payrollRecordID string) (generic.AppliedPenalty, error) {
	payrollRecordID = strings.TrimSpace(payrollRecordID)
	if payrollRecordID == "" {
		return generic.AppliedPenalty{}, generic.Invalid("payroll_record_id", "required")
	}

	var (
		applied generic.AppliedPenalty
		changed bool
	)
	err := b.store.WithTx(ctx, func(tx generic.Store) error {
		p, err := tx.GetPenalty(ctx, id)
		if err != nil {
			return err
		}
		if p.IsAppliedToPayroll {
			if p.PayrollRecordID != payrollRecordID {
				return errors.Wrapf(generic.ErrPayrollRecordMismatch, "penalty %s applied to %s", id, p.PayrollRecordID)
			}
			applied = p
			return nil
		}
		if p.PenaltyType != generic.PenaltyDeduction {
			return generic.Invalid("penalty", "%s is a %s, only deductions reach payroll", id, p.PenaltyType)
		}
		if !generic.CanTransition(p.Status, generic.PenaltyApplied) {
			return &generic.TransitionError{PenaltyID: id, From: p.Status, To: generic.PenaltyApplied}
		}

		now := b.clock.Now()
		p.Status = generic.PenaltyApplied
		p.IsAppliedToPayroll = true
		p.PayrollRecordID = payrollRecordID
		p.AppliedToPayrollAt = &now
		p.UpdatedAt = now
		if err := tx.SavePenalty(ctx, p); err != nil {
			return errors.Wrapf(err, "save penalty %s", id)
		}
		applied, changed = p, true
		return nil
	})
	if err != nil {
		return generic.AppliedPenalty{}, err
	}

	if changed {
		b.logger.WithFields(log.Fields{
			"penalty_id":        id,
			"employee_id":       applied.EmployeeID,
			"payroll_record_id": payrollRecordID,
		}).Info("deduction applied to payroll")
	}
	return applied, nil
}

// =============================================================================
// TOTALS
// =============================================================================

// DeductionDays sums the deduction days of penalties.
func DeductionDays(penalties []generic.AppliedPenalty) decimal.Decimal {
	total := decimal.Zero
	for _, p := range penalties {
		if p.PenaltyType == generic.PenaltyDeduction {
			total = total.Add(decimal.NewFromInt(int64(p.DeductionDays)))
		}
	}
	return total
}

// DeductionAmount is days * dailyRate, rounded to cents.
func DeductionAmount(penalties []generic.AppliedPenalty, dailyRate decimal.Decimal) decimal.Decimal {
	return DeductionDays(penalties).Mul(dailyRate).Round(2)
}
