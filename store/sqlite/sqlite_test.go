package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/staffops/generic"
	"github.com/warp/staffops/store/sqlite"
)

var base = time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func intp(n int) *int { return &n }

func TestEmployee_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	// GIVEN an employee with a cycle, anchors and a forecast
	emp := generic.Employee{
		ID:                 "emp-1",
		Name:               "Amal",
		IsActive:           true,
		HireDate:           generic.MustParseDate("2023-05-01"),
		WorkDaysPerCycle:   intp(60),
		LeaveDaysPerCycle:  intp(30),
		HasCustomCycle:     true,
		LastLeaveStartDate: generic.MustParseDate("2025-01-01").Ptr(),
		LastLeaveEndDate:   generic.MustParseDate("2025-01-30").Ptr(),
		NextLeaveStartDate: generic.MustParseDate("2025-04-01").Ptr(),
		NextLeaveEndDate:   generic.MustParseDate("2025-04-30").Ptr(),
		EmploymentStatus:   generic.StatusActive,
		CreatedAt:          base,
		UpdatedAt:          base.Add(time.Hour),
	}
	require.NoError(t, s.SaveEmployee(ctx, emp))

	// WHEN read back
	got, err := s.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)

	// THEN every field survives
	assert.Equal(t, emp.Name, got.Name)
	assert.True(t, got.IsActive)
	assert.True(t, got.HireDate.Equal(emp.HireDate))
	require.NotNil(t, got.WorkDaysPerCycle)
	assert.Equal(t, 60, *got.WorkDaysPerCycle)
	assert.Equal(t, 30, *got.LeaveDaysPerCycle)
	assert.True(t, got.HasCustomCycle)
	assert.Equal(t, "2025-01-30", got.LastLeaveEndDate.String())
	assert.Equal(t, "2025-04-01", got.NextLeaveStartDate.String())
	assert.Equal(t, generic.StatusActive, got.EmploymentStatus)
	assert.True(t, got.CreatedAt.Equal(emp.CreatedAt))
	assert.True(t, got.UpdatedAt.Equal(emp.UpdatedAt))
}

func TestEmployee_NullableFields(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.SaveEmployee(ctx, generic.Employee{
		ID:               "emp-2",
		Name:             "No cycle",
		HireDate:         generic.MustParseDate("2024-01-01"),
		EmploymentStatus: generic.StatusOnMission,
		CreatedAt:        base,
		UpdatedAt:        base,
	}))

	got, err := s.GetEmployee(ctx, "emp-2")
	require.NoError(t, err)
	assert.Nil(t, got.WorkDaysPerCycle)
	assert.Nil(t, got.LastLeaveStartDate)
	assert.Nil(t, got.NextLeaveEndDate)
	assert.False(t, got.HasCycle())
}

func TestGet_NotFoundSentinels(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.GetEmployee(ctx, "nope")
	assert.True(t, errors.Is(err, generic.ErrEmployeeNotFound))
	_, err = s.GetLeave(ctx, "nope")
	assert.True(t, errors.Is(err, generic.ErrLeaveNotFound))
	_, err = s.GetPenalty(ctx, "nope")
	assert.True(t, errors.Is(err, generic.ErrPenaltyNotFound))
}

func TestListLeaves_Filters(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	returned := generic.MustParseDate("2025-02-10")
	leaves := []generic.Leave{
		{ID: "open", EmployeeID: "emp-1", Status: generic.LeaveApproved, IsActive: true},
		{ID: "returned", EmployeeID: "emp-1", Status: generic.LeaveApproved, IsActive: true, ActualReturnDate: &returned},
		{ID: "deleted", EmployeeID: "emp-1", Status: generic.LeaveRejected, IsActive: false},
		{ID: "other", EmployeeID: "emp-2", Status: generic.LeavePending, IsActive: true},
	}
	for i, l := range leaves {
		l.StartDate = generic.MustParseDate("2025-02-01")
		l.EndDate = generic.MustParseDate("2025-02-05")
		l.TotalDays = 5
		l.SettlementType = generic.SettlementActualLeave
		l.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		l.UpdatedAt = l.CreatedAt
		require.NoError(t, s.SaveLeave(ctx, l))
	}

	ids := func(filter generic.LeaveFilter) []generic.LeaveID {
		got, err := s.ListLeaves(ctx, filter)
		require.NoError(t, err)
		var out []generic.LeaveID
		for _, l := range got {
			out = append(out, l.ID)
		}
		return out
	}

	assert.Equal(t, []generic.LeaveID{"open", "returned", "deleted", "other"}, ids(generic.LeaveFilter{}))
	assert.Equal(t, []generic.LeaveID{"open", "deleted", "other"}, ids(generic.LeaveFilter{OpenOnly: true}))
	assert.Equal(t, []generic.LeaveID{"open", "returned"}, ids(generic.LeaveFilter{EmployeeID: "emp-1", ActiveOnly: true}))
	assert.Equal(t, []generic.LeaveID{"open"}, ids(generic.LeaveFilter{EmployeeID: "emp-1", OpenOnly: true, ActiveOnly: true}))

	got, err := s.GetLeave(ctx, "returned")
	require.NoError(t, err)
	require.NotNil(t, got.ActualReturnDate)
	assert.Equal(t, "2025-02-10", got.ActualReturnDate.String())
}

func TestPolicies_OrderedByThreshold(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for _, p := range []generic.DelayPenaltyPolicy{
		{ID: "tier-10", DelayDaysThreshold: 10, PenaltyType: generic.PenaltySuspension, SuspensionDays: 5, IsActive: true},
		{ID: "tier-3", DelayDaysThreshold: 3, PenaltyType: generic.PenaltyDeduction, DeductionDays: 1, IsActive: true},
		{ID: "retired", DelayDaysThreshold: 5, PenaltyType: generic.PenaltyDeduction, DeductionDays: 2, IsActive: false},
	} {
		p.CreatedAt, p.UpdatedAt = base, base
		require.NoError(t, s.SavePolicy(ctx, p))
	}

	active, err := s.ListPolicies(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, generic.PolicyID("tier-3"), active[0].ID)
	assert.Equal(t, generic.PolicyID("tier-10"), active[1].ID)
	assert.Equal(t, 5, active[1].SuspensionDays)

	all, err := s.ListPolicies(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, generic.PolicyID("retired"), all[1].ID)
}

func TestPenalty_RoundTripAndFilters(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	approvedAt := base.Add(2 * time.Hour)
	cancelledAt := base.Add(3 * time.Hour)
	penalties := []generic.AppliedPenalty{
		{
			ID: "p1", LeaveID: "l1", EmployeeID: "emp-1", DelayDays: 9, PolicyID: "tier-7",
			PenaltyType: generic.PenaltyDeduction, DeductionDays: 3, Status: generic.PenaltyApproved,
			CreatedBy: generic.SystemActor, ApprovedBy: "hr", ApprovedAt: &approvedAt,
		},
		{
			ID: "p2", LeaveID: "l2", EmployeeID: "emp-1", DelayDays: 14, PolicyID: "tier-10",
			PenaltyType: generic.PenaltySuspension, SuspensionDays: 5, Status: generic.PenaltyCancelled,
			IsCancelled: true, CancelReason: "medical note", CancelledBy: "hr", CancelledAt: &cancelledAt,
		},
		{
			ID: "p3", LeaveID: "l2", EmployeeID: "emp-1", DelayDays: 14, PolicyID: "tier-10",
			PenaltyType: generic.PenaltyDeduction, DeductionDays: 2, Status: generic.PenaltyApproved,
			ReplacesPenaltyID: "p2",
		},
		{
			ID: "p4", LeaveID: "l3", EmployeeID: "emp-2", DelayDays: 4, PolicyID: "tier-3",
			PenaltyType: generic.PenaltyDeduction, DeductionDays: 1, Status: generic.PenaltyPending,
		},
	}
	for i, p := range penalties {
		p.CreatedAt = base.Add(time.Duration(i) * time.Second)
		p.UpdatedAt = p.CreatedAt
		require.NoError(t, s.SavePenalty(ctx, p))
	}

	// GIVEN the penalty with the full review trail
	got, err := s.GetPenalty(ctx, "p2")
	require.NoError(t, err)
	assert.True(t, got.IsCancelled)
	assert.Equal(t, "medical note", got.CancelReason)
	require.NotNil(t, got.CancelledAt)
	assert.True(t, got.CancelledAt.Equal(cancelledAt))
	assert.Nil(t, got.ApprovedAt)
	assert.Nil(t, got.AppliedToPayrollAt)

	replacement, err := s.GetPenalty(ctx, "p3")
	require.NoError(t, err)
	assert.Equal(t, generic.PenaltyID("p2"), replacement.ReplacesPenaltyID)

	ids := func(filter generic.PenaltyFilter) []generic.PenaltyID {
		list, err := s.ListPenalties(ctx, filter)
		require.NoError(t, err)
		var out []generic.PenaltyID
		for _, p := range list {
			out = append(out, p.ID)
		}
		return out
	}

	assert.Equal(t, []generic.PenaltyID{"p1", "p2", "p3", "p4"}, ids(generic.PenaltyFilter{}))
	assert.Equal(t, []generic.PenaltyID{"p2", "p3"}, ids(generic.PenaltyFilter{LeaveID: "l2"}))
	assert.Equal(t, []generic.PenaltyID{"p1", "p3"}, ids(generic.PenaltyFilter{
		EmployeeID:  "emp-1",
		PenaltyType: generic.PenaltyDeduction,
		Statuses:    []generic.PenaltyStatus{generic.PenaltyApproved},
	}))
	assert.Equal(t, []generic.PenaltyID{"p2", "p4"}, ids(generic.PenaltyFilter{
		Statuses: []generic.PenaltyStatus{generic.PenaltyPending, generic.PenaltyCancelled},
	}))
}

func TestSavePenalty_Upserts(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	p := generic.AppliedPenalty{
		ID: "p1", LeaveID: "l1", EmployeeID: "emp-1", PenaltyType: generic.PenaltyDeduction,
		DeductionDays: 1, Status: generic.PenaltyApproved, CreatedAt: base, UpdatedAt: base,
	}
	require.NoError(t, s.SavePenalty(ctx, p))

	applied := base.Add(time.Hour)
	p.Status = generic.PenaltyApplied
	p.IsAppliedToPayroll = true
	p.PayrollRecordID = "pay-2025-03"
	p.AppliedToPayrollAt = &applied
	require.NoError(t, s.SavePenalty(ctx, p))

	list, err := s.ListPenalties(ctx, generic.PenaltyFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, generic.PenaltyApplied, list[0].Status)
	assert.Equal(t, "pay-2025-03", list[0].PayrollRecordID)
	require.NotNil(t, list[0].AppliedToPayrollAt)
	assert.True(t, list[0].AppliedToPayrollAt.Equal(applied))
}

func TestRuns_MostRecentFirst(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for i := 0; i < 3; i++ {
		completed := base.Add(time.Duration(i)*24*time.Hour + time.Minute)
		require.NoError(t, s.SaveRun(ctx, generic.PenaltyRun{
			ID:          string(rune('a' + i)),
			Trigger:     "schedule",
			AsOf:        generic.DateOf(base.Add(time.Duration(i) * 24 * time.Hour)),
			Status:      generic.RunCompleted,
			Evaluated:   i,
			StartedAt:   base.Add(time.Duration(i) * 24 * time.Hour),
			CompletedAt: &completed,
		}))
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
	assert.Equal(t, "2025-03-03", runs[0].AsOf.String())
	require.NotNil(t, runs[0].CompletedAt)

	all, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	emp := generic.Employee{
		ID: "emp-1", Name: "Amal", IsActive: true, HireDate: generic.MustParseDate("2024-01-01"),
		EmploymentStatus: generic.StatusActive, CreatedAt: base, UpdatedAt: base,
	}
	require.NoError(t, s.SaveEmployee(ctx, emp))

	// WHEN a transaction writes two records and then fails
	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx generic.Store) error {
		suspended := emp
		suspended.EmploymentStatus = generic.StatusSuspended
		if err := tx.SaveEmployee(ctx, suspended); err != nil {
			return err
		}
		if err := tx.SavePenalty(ctx, generic.AppliedPenalty{ID: "p1", Status: generic.PenaltyApproved, CreatedAt: base, UpdatedAt: base}); err != nil {
			return err
		}
		got, err := tx.GetEmployee(ctx, "emp-1")
		if err != nil {
			return err
		}
		assert.Equal(t, generic.StatusSuspended, got.EmploymentStatus, "writes are visible inside the transaction")
		return boom
	})
	require.ErrorIs(t, err, boom)

	// THEN neither write is visible
	got, err := s.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, generic.StatusActive, got.EmploymentStatus)
	_, err = s.GetPenalty(ctx, "p1")
	assert.True(t, errors.Is(err, generic.ErrPenaltyNotFound))
}

func TestWithTx_Commits(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	err := s.WithTx(ctx, func(tx generic.Store) error {
		return tx.SaveLeave(ctx, generic.Leave{
			ID: "l1", EmployeeID: "emp-1", StartDate: generic.MustParseDate("2025-01-01"),
			EndDate: generic.MustParseDate("2025-01-10"), TotalDays: 10, Status: generic.LeaveApproved,
			SettlementType: generic.SettlementActualLeave, IsActive: true, CreatedAt: base, UpdatedAt: base,
		})
	})
	require.NoError(t, err)

	_, err = s.GetLeave(ctx, "l1")
	assert.NoError(t, err)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SavePolicy(ctx, generic.DelayPenaltyPolicy{ID: "x", DelayDaysThreshold: 1,
		PenaltyType: generic.PenaltyDeduction, DeductionDays: 1, IsActive: true, CreatedAt: base, UpdatedAt: base}))

	require.NoError(t, s.Reset(ctx))

	policies, err := s.ListPolicies(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, policies)
}
