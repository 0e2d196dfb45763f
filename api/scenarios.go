/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built datasets that populate the database with employees,
  leaves and penalties that exercise one feature each. Dates are relative
  to today so a scenario stays meaningful whenever it is loaded.

AVAILABLE SCENARIOS:
  overdue-leaves:      late returns on each side of the grace period and
                       each penalty tier, plus rows the engine must ignore
  overlapping-leaves:  one employee with two open leaves sharing days
  suspended-employee:  an employee suspended by an approved penalty
  leave-cycles:        employees with work/leave cycles for forecasting

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Seed the default penalty tiers via the policy factory
 3. Create employees and leaves (and penalties where the scenario needs them)

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "overdue-leaves"}

NOTE:
  Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler
  - factory/policy.go: default tier table
*/
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/warp/staffops/factory"
	"github.com/warp/staffops/generic"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "overdue-leaves",
		Name:        "Overdue Leaves",
		Description: "Late returns within grace, past each penalty tier, and cash settlements the engine ignores",
	},
	{
		ID:          "overlapping-leaves",
		Name:        "Overlapping Leaves",
		Description: "Two open leaves for the same employee sharing days",
	},
	{
		ID:          "suspended-employee",
		Name:        "Suspended Employee",
		Description: "Employee suspended by an approved penalty, ready for a lift",
	},
	{
		ID:          "leave-cycles",
		Name:        "Leave Cycles",
		Description: "Employees with work/leave cycles for next-leave forecasting",
	},
}

// resetter is implemented by stores that can clear themselves.
type resetter interface {
	Reset(ctx context.Context) error
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.LoadScenarioByID(r.Context(), req.ScenarioID); err != nil {
		writeDomainError(w, "Failed to load scenario", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeDomainError(w, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// LoadScenarioByID resets the store and loads one scenario.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) error {
	loaders := map[string]func(context.Context, *scenarioBuilder) error{
		"overdue-leaves":     loadOverdueScenario,
		"overlapping-leaves": loadOverlapScenario,
		"suspended-employee": loadSuspendedScenario,
		"leave-cycles":       loadCyclesScenario,
	}
	load, ok := loaders[id]
	if !ok {
		return generic.Invalid("scenario_id", "unknown scenario %q", id)
	}

	if err := h.reset(ctx); err != nil {
		return err
	}
	b := &scenarioBuilder{store: h.Store, now: h.Clock.Now(), today: h.today()}
	f := factory.NewPolicyFactory()
	if err := f.Seed(ctx, h.Store, f.Default(), b.now); err != nil {
		return errors.Wrap(err, "seed policies")
	}
	if err := load(ctx, b); err != nil {
		return errors.Wrapf(err, "load scenario %s", id)
	}

	h.currentScenario = id
	h.logger.WithField("scenario", id).Info("scenario loaded")
	return nil
}

func (h *Handler) reset(ctx context.Context) error {
	rs, ok := h.Store.(resetter)
	if !ok {
		return errors.New("store does not support reset")
	}
	if err := rs.Reset(ctx); err != nil {
		return errors.Wrap(err, "reset database")
	}
	h.currentScenario = ""
	return nil
}

// =============================================================================
// SCENARIO BUILDER
// =============================================================================

type scenarioBuilder struct {
	store generic.Store
	now   time.Time
	today generic.Date
	seq   int
}

// cycle is (work, leave) days; zero means no cycle.
type cycle struct{ work, leave int }

func (b *scenarioBuilder) employee(ctx context.Context, id, name string, status generic.EmploymentStatus, c cycle, hiredDaysAgo int) error {
	emp := generic.Employee{
		ID:               generic.EmployeeID(id),
		Name:             name,
		IsActive:         true,
		HireDate:         b.today.AddDays(-hiredDaysAgo),
		EmploymentStatus: status,
		CreatedAt:        b.now,
		UpdatedAt:        b.now,
	}
	if c.work > 0 && c.leave > 0 {
		work, leave := c.work, c.leave
		emp.WorkDaysPerCycle = &work
		emp.LeaveDaysPerCycle = &leave
	}
	return b.store.SaveEmployee(ctx, emp)
}

// leave creates a leave from today+startOffset for days days. Each call is
// created one minute after the previous so creation order is stable.
func (b *scenarioBuilder) leave(ctx context.Context, id, employeeID string, startOffset, days int, mutate ...func(*generic.Leave)) (generic.Leave, error) {
	b.seq++
	start := b.today.AddDays(startOffset)
	created := b.now.Add(time.Duration(b.seq-100) * time.Minute)
	lv := generic.Leave{
		ID:             generic.LeaveID(id),
		EmployeeID:     generic.EmployeeID(employeeID),
		StartDate:      start,
		EndDate:        start.AddDays(days - 1),
		TotalDays:      days,
		Status:         generic.LeaveApproved,
		SettlementType: generic.SettlementActualLeave,
		IsActive:       true,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	for _, m := range mutate {
		m(&lv)
	}
	return lv, b.store.SaveLeave(ctx, lv)
}

func returnedOn(d generic.Date) func(*generic.Leave) {
	return func(l *generic.Leave) { l.ActualReturnDate = d.Ptr() }
}

func cashSettlement(l *generic.Leave) { l.SettlementType = generic.SettlementCash }

func pendingLeave(l *generic.Leave) { l.Status = generic.LeavePending }

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func loadOverdueScenario(ctx context.Context, b *scenarioBuilder) error {
	employees := []struct {
		id, name string
		status   generic.EmploymentStatus
	}{
		{"emp-001", "Amal Haddad", generic.StatusOnLeave},
		{"emp-002", "Bilal Nasser", generic.StatusOnLeave},
		{"emp-003", "Carla Mendes", generic.StatusOnLeave},
		{"emp-004", "Dawit Bekele", generic.StatusActive},
		{"emp-005", "Elif Kaya", generic.StatusActive},
		{"emp-006", "Farah Aziz", generic.StatusOnLeave},
	}
	for _, e := range employees {
		if err := b.employee(ctx, e.id, e.name, e.status, cycle{work: 60, leave: 30}, 800); err != nil {
			return err
		}
	}

	leaves := []struct {
		id, employee      string
		startOffset, days int
		mutate            []func(*generic.Leave)
	}{
		// Ended 3 days ago: late, but inside the grace period.
		{"leave-001", "emp-001", -32, 30, nil},
		// Ended 9 days ago: 8 days late, second tier.
		{"leave-002", "emp-002", -38, 30, nil},
		// Ended 13 days ago: 12 days late, suspension tier.
		{"leave-003", "emp-003", -42, 30, nil},
		// Cash settlement in the past: never an absence.
		{"leave-004", "emp-004", -50, 10, []func(*generic.Leave){cashSettlement}},
		// Returned on time.
		{"leave-005", "emp-005", -40, 20, []func(*generic.Leave){returnedOn(b.today.AddDays(-20))}},
		// Still running.
		{"leave-006", "emp-006", -5, 20, nil},
	}
	for _, l := range leaves {
		if _, err := b.leave(ctx, l.id, l.employee, l.startOffset, l.days, l.mutate...); err != nil {
			return err
		}
	}
	return nil
}

func loadOverlapScenario(ctx context.Context, b *scenarioBuilder) error {
	if err := b.employee(ctx, "emp-001", "Amal Haddad", generic.StatusOnLeave, cycle{work: 60, leave: 30}, 400); err != nil {
		return err
	}
	if err := b.employee(ctx, "emp-002", "Bilal Nasser", generic.StatusActive, cycle{}, 400); err != nil {
		return err
	}

	// leave-001 is created first and survives resolution.
	if _, err := b.leave(ctx, "leave-001", "emp-001", -10, 20); err != nil {
		return err
	}
	if _, err := b.leave(ctx, "leave-002", "emp-001", -5, 10, pendingLeave); err != nil {
		return err
	}
	// Adjacent, not overlapping.
	if _, err := b.leave(ctx, "leave-003", "emp-001", 10, 5, pendingLeave); err != nil {
		return err
	}
	_, err := b.leave(ctx, "leave-004", "emp-002", 5, 5, pendingLeave)
	return err
}

func loadSuspendedScenario(ctx context.Context, b *scenarioBuilder) error {
	if err := b.employee(ctx, "emp-001", "Amal Haddad", generic.StatusSuspended, cycle{work: 60, leave: 30}, 900); err != nil {
		return err
	}
	lv, err := b.leave(ctx, "leave-001", "emp-001", -45, 30, returnedOn(b.today.AddDays(-2)))
	if err != nil {
		return err
	}

	approved := b.now.Add(-time.Hour)
	return b.store.SavePenalty(ctx, generic.AppliedPenalty{
		ID:             "penalty-001",
		LeaveID:        lv.ID,
		EmployeeID:     lv.EmployeeID,
		DelayDays:      13,
		PolicyID:       "delay-10d",
		PenaltyType:    generic.PenaltySuspension,
		SuspensionDays: 5,
		Status:         generic.PenaltyApproved,
		CreatedBy:      generic.SystemActor,
		ApprovedBy:     "hr.manager",
		ApprovedAt:     &approved,
		CreatedAt:      b.now.Add(-2 * time.Hour),
		UpdatedAt:      approved,
	})
}

func loadCyclesScenario(ctx context.Context, b *scenarioBuilder) error {
	employees := []struct {
		id, name string
		c        cycle
		hired    int
	}{
		{"emp-001", "Amal Haddad", cycle{work: 60, leave: 30}, 30},
		{"emp-002", "Bilal Nasser", cycle{work: 90, leave: 21}, 400},
		{"emp-003", "Carla Mendes", cycle{}, 200},
	}
	for _, e := range employees {
		if err := b.employee(ctx, e.id, e.name, generic.StatusActive, e.c, e.hired); err != nil {
			return err
		}
	}
	// emp-002 anchors on this return rather than the hire date.
	_, err := b.leave(ctx, "leave-001", "emp-002", -50, 21, returnedOn(b.today.AddDays(-29)))
	if err != nil {
		return err
	}
	emp, err := b.store.GetEmployee(ctx, "emp-002")
	if err != nil {
		return err
	}
	emp.LastLeaveStartDate = b.today.AddDays(-50).Ptr()
	emp.LastLeaveEndDate = b.today.AddDays(-30).Ptr()
	return b.store.SaveEmployee(ctx, emp)
}
