package timeoff_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/staffops/generic"
	"github.com/warp/staffops/generic/store"
	"github.com/warp/staffops/timeoff"
)

type leaveOpt func(*generic.Leave)

func cash(l *generic.Leave)     { l.SettlementType = generic.SettlementCash }
func pending(l *generic.Leave)  { l.Status = generic.LeavePending }
func rejected(l *generic.Leave) { l.Status = generic.LeaveRejected }
func returned(on string) leaveOpt {
	return func(l *generic.Leave) { l.ActualReturnDate = generic.MustParseDate(on).Ptr() }
}
func createdAt(t time.Time) leaveOpt {
	return func(l *generic.Leave) { l.CreatedAt = t }
}

func saveLeave(t *testing.T, s generic.LeaveStore, id generic.LeaveID, emp generic.EmployeeID, start, end string, opts ...leaveOpt) generic.Leave {
	t.Helper()
	l := generic.Leave{
		ID:             id,
		EmployeeID:     emp,
		StartDate:      generic.MustParseDate(start),
		EndDate:        generic.MustParseDate(end),
		Status:         generic.LeaveApproved,
		SettlementType: generic.SettlementActualLeave,
		IsActive:       true,
		CreatedAt:      testNow.Add(-time.Hour),
	}
	for _, opt := range opts {
		opt(&l)
	}
	require.NoError(t, s.SaveLeave(context.Background(), l))
	return l
}

func newLifecycle(s generic.TxStore) *timeoff.LeaveLifecycle {
	return timeoff.NewLeaveLifecycle(s, generic.FixedClock{T: testNow}, quietLogger())
}

func ids(leaves []generic.Leave) []generic.LeaveID {
	var out []generic.LeaveID
	for _, l := range leaves {
		out = append(out, l.ID)
	}
	return out
}

// =============================================================================
// DELAY DAYS
// =============================================================================

func TestDelayDays(t *testing.T) {
	end := generic.MustParseDate("2025-01-10")

	assert.Equal(t, 9, timeoff.DelayDays(end, generic.MustParseDate("2025-01-20")))
	assert.Equal(t, 0, timeoff.DelayDays(end, generic.MustParseDate("2025-01-11")), "back on the expected day")
	assert.Equal(t, 0, timeoff.DelayDays(end, generic.MustParseDate("2025-01-05")), "never negative")

	prev := 0
	for d := -5; d < 60; d++ {
		got := timeoff.DelayDays(end, end.AddDays(d))
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
}

// =============================================================================
// QUERIES
// =============================================================================

func TestQueries_ExcludeCashAndClosedAndRejected(t *testing.T) {
	// asOf = 2025-03-01
	ctx := context.Background()
	s := store.NewTxMemory()
	saveLeave(t, s, "on-leave", "emp-1", "2025-02-20", "2025-03-05")
	saveLeave(t, s, "on-leave-pending", "emp-2", "2025-02-25", "2025-03-02", pending)
	saveLeave(t, s, "overdue", "emp-3", "2025-01-01", "2025-02-10")
	saveLeave(t, s, "late-in-grace", "emp-4", "2025-02-01", "2025-02-26")
	saveLeave(t, s, "overdue-pending", "emp-5", "2025-01-01", "2025-02-10", pending)
	saveLeave(t, s, "cash", "emp-6", "2025-01-01", "2025-02-10", cash)
	saveLeave(t, s, "closed", "emp-7", "2025-01-01", "2025-02-10", returned("2025-02-11"))
	saveLeave(t, s, "rejected", "emp-8", "2025-01-01", "2025-02-10", rejected)
	saveLeave(t, s, "future", "emp-9", "2025-03-10", "2025-03-20")

	lc := newLifecycle(s)

	onLeave, err := lc.CurrentlyOnLeave(ctx, today())
	require.NoError(t, err)
	assert.ElementsMatch(t, []generic.LeaveID{"on-leave", "on-leave-pending"}, ids(onLeave))

	awaiting, err := lc.AwaitingReturn(ctx, today())
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]generic.LeaveID{"on-leave", "on-leave-pending", "overdue", "late-in-grace", "overdue-pending"},
		ids(awaiting))

	overdue, err := lc.Overdue(ctx, today(), 5)
	require.NoError(t, err)
	assert.ElementsMatch(t, []generic.LeaveID{"overdue"}, ids(overdue))

	overdueNoGrace, err := lc.Overdue(ctx, today(), 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []generic.LeaveID{"overdue", "late-in-grace"}, ids(overdueNoGrace))
}

func TestOverdue_GraceBoundary(t *testing.T) {
	// end + grace < asOf: end 2025-02-24, grace 5 -> 2025-03-01 is not overdue yet
	ctx := context.Background()
	s := store.NewTxMemory()
	saveLeave(t, s, "edge", "emp-1", "2025-02-01", "2025-02-24")
	lc := newLifecycle(s)

	got, err := lc.Overdue(ctx, today(), 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = lc.Overdue(ctx, today().AddDays(1), 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestOverdue_RejectsNegativeGrace(t *testing.T) {
	_, err := newLifecycle(store.NewTxMemory()).Overdue(context.Background(), today(), -1)
	assert.True(t, generic.IsClientError(err))
}

// =============================================================================
// OVERLAPS
// =============================================================================

func TestResolveOverlaps_KeepsEarliestCreated(t *testing.T) {
	// GIVEN: two open leaves for emp-1 with intersecting ranges
	// WHEN: resolved
	// THEN: the later-created one is REJECTED/inactive, the earlier untouched,
	//       and a second pass finds nothing
	ctx := context.Background()
	s := store.NewTxMemory()
	first := saveLeave(t, s, "first", "emp-1", "2025-02-01", "2025-02-28", createdAt(testNow.Add(-48*time.Hour)))
	saveLeave(t, s, "second", "emp-1", "2025-02-15", "2025-03-15", createdAt(testNow.Add(-24*time.Hour)))
	saveLeave(t, s, "other-emp", "emp-2", "2025-02-15", "2025-03-15")
	lc := newLifecycle(s)

	found, err := lc.FindOverlapping(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, generic.LeaveID("first"), found[0].Kept.ID)
	assert.Equal(t, generic.LeaveID("second"), found[0].Dropped.ID)

	resolved, err := lc.ResolveOverlaps(ctx, "")
	require.NoError(t, err)
	require.Len(t, resolved, 1)

	second, err := s.GetLeave(ctx, "second")
	require.NoError(t, err)
	assert.Equal(t, generic.LeaveRejected, second.Status)
	assert.False(t, second.IsActive)

	kept, err := s.GetLeave(ctx, "first")
	require.NoError(t, err)
	assert.Equal(t, first, kept)

	again, err := lc.FindAllOverlapping(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)

	resolvedAgain, err := lc.ResolveOverlaps(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, resolvedAgain)
}

func TestResolveOverlaps_ChainKeepsNonOverlappingThird(t *testing.T) {
	// A [1..10], B [8..20], C [15..25]: B loses to A, C only touched B, so C stays
	ctx := context.Background()
	s := store.NewTxMemory()
	saveLeave(t, s, "a", "emp-1", "2025-02-01", "2025-02-10", createdAt(testNow.Add(-3*time.Hour)))
	saveLeave(t, s, "b", "emp-1", "2025-02-08", "2025-02-20", createdAt(testNow.Add(-2*time.Hour)))
	saveLeave(t, s, "c", "emp-1", "2025-02-15", "2025-02-25", createdAt(testNow.Add(-1*time.Hour)))
	lc := newLifecycle(s)

	resolved, err := lc.ResolveOverlaps(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, generic.LeaveID("b"), resolved[0].Dropped.ID)

	again, err := lc.FindOverlapping(ctx, "emp-1")
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestFindOverlapping_IgnoresCashAndClosed(t *testing.T) {
	ctx := context.Background()
	s := store.NewTxMemory()
	saveLeave(t, s, "real", "emp-1", "2025-02-01", "2025-02-28")
	saveLeave(t, s, "cash", "emp-1", "2025-02-01", "2025-02-28", cash)
	saveLeave(t, s, "closed", "emp-1", "2025-02-01", "2025-02-28", returned("2025-03-01"))

	found, err := newLifecycle(s).FindOverlapping(ctx, "emp-1")
	require.NoError(t, err)
	assert.Empty(t, found)
}

// =============================================================================
// RETURN REGISTRATION
// =============================================================================

func TestRegisterReturn_ClosesLeaveAndMovesAnchors(t *testing.T) {
	ctx := context.Background()
	s := store.NewTxMemory()
	emp := cycleEmployee("emp-1", 60, 30)
	emp.EmploymentStatus = generic.StatusOnLeave
	require.NoError(t, s.SaveEmployee(ctx, emp))
	saveLeave(t, s, "leave-1", "emp-1", "2025-01-01", "2025-01-10")

	result, err := newLifecycle(s).RegisterReturn(ctx, "leave-1", generic.MustParseDate("2025-01-20"))
	require.NoError(t, err)
	assert.Equal(t, 9, result.DelayDays)
	require.NotNil(t, result.Leave.ActualReturnDate)

	got, err := s.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, generic.StatusActive, got.EmploymentStatus)
	assert.Equal(t, "2025-01-01", got.LastLeaveStartDate.String())
	assert.Equal(t, "2025-01-19", got.LastLeaveEndDate.String())
}

func TestRegisterReturn_Rejections(t *testing.T) {
	ctx := context.Background()
	s := store.NewTxMemory()
	require.NoError(t, s.SaveEmployee(ctx, cycleEmployee("emp-1", 60, 30)))
	saveLeave(t, s, "cash", "emp-1", "2025-01-01", "2025-01-10", cash)
	saveLeave(t, s, "closed", "emp-1", "2025-01-01", "2025-01-10", returned("2025-01-11"))
	saveLeave(t, s, "open", "emp-1", "2025-01-01", "2025-01-10")
	lc := newLifecycle(s)

	_, err := lc.RegisterReturn(ctx, "cash", today())
	assert.True(t, generic.IsClientError(err))

	_, err = lc.RegisterReturn(ctx, "closed", today())
	assert.ErrorIs(t, err, generic.ErrLeaveClosed)

	_, err = lc.RegisterReturn(ctx, "open", generic.MustParseDate("2024-12-31"))
	assert.True(t, generic.IsClientError(err))

	_, err = lc.RegisterReturn(ctx, "missing", today())
	assert.ErrorIs(t, err, generic.ErrLeaveNotFound)

	still, err := s.GetLeave(ctx, "open")
	require.NoError(t, err)
	assert.True(t, still.IsOpen())
}
