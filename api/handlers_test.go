/*
handlers_test.go - Tests for the reviewer HTTP API

Tests for:
- Overdue listing and grace handling
- Manual evaluation, approval and cancellation status codes
- Suspension lift in both modes
- Payroll deductions and apply idempotency
- Return registration and overlap resolution
- Next-leave forecasts
- Error mapping (400 / 404 / 409)
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/staffops/generic"
	"github.com/warp/staffops/notify"
	"github.com/warp/staffops/penalty"
	"github.com/warp/staffops/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var testNow = time.Date(2025, time.March, 1, 9, 30, 0, 0, time.UTC)

func testToday() generic.Date { return generic.DateOf(testNow) }

// recordingChannel keeps every event it is asked to deliver.
type recordingChannel struct {
	mu     sync.Mutex
	events []notify.Event
}

func (c *recordingChannel) Name() string { return "recording" }

func (c *recordingChannel) Send(_ context.Context, _ string, ev notify.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *recordingChannel) count(kind notify.Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

type testEnv struct {
	ctx     context.Context
	handler *Handler
	router  http.Handler
	channel *recordingChannel
}

func newTestEnvWithStore(t *testing.T, s generic.TxStore) *testEnv {
	t.Helper()
	logger, _ := test.NewNullLogger()
	channel := &recordingChannel{}
	entry := log.NewEntry(logger)

	h := NewHandler(s, generic.FixedClock{T: testNow}, Options{
		Limits:   penalty.DefaultLimits,
		Notifier: notify.New([]string{"hr@example.com"}, entry, channel),
		Scheduler: SchedulerConfig{
			Hour:      9,
			Location:  time.UTC,
			GraceDays: 5,
		},
		Logger: entry,
	})
	return &testEnv{
		ctx:     context.Background(),
		handler: h,
		router:  NewRouter(h),
		channel: channel,
	}
}

func newTestEnv(t *testing.T, scenario string) *testEnv {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	env := newTestEnvWithStore(t, s)
	if scenario != "" {
		require.NoError(t, env.handler.LoadScenarioByID(env.ctx, scenario))
	}
	return env
}

// do sends a request as reviewer "hr.manager".
func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor", "hr.manager")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[ErrorResponse](t, rec).Code
}

// =============================================================================
// LEAVE QUERIES
// =============================================================================

func TestOverdue_DefaultsToNoGrace(t *testing.T) {
	// GIVEN: Leaves ending 3, 9 and 13 days ago, a cash settlement and a return
	env := newTestEnv(t, "overdue-leaves")

	// WHEN: Listing overdue leaves without a grace parameter
	rec := env.do(t, http.MethodGet, "/api/leaves/overdue", nil)

	// THEN: Every leave past its end date is listed, not only those the
	// scheduler's 5-day grace would penalize
	require.Equal(t, http.StatusOK, rec.Code)
	leaves := decode[[]LeaveDTO](t, rec)
	require.Len(t, leaves, 3)
	assert.Equal(t, "leave-001", leaves[0].ID)
	assert.Equal(t, 2, leaves[0].DelayDays)
	assert.Equal(t, "leave-002", leaves[1].ID)
	assert.Equal(t, 8, leaves[1].DelayDays)
	assert.Equal(t, "leave-003", leaves[2].ID)
	assert.Equal(t, 12, leaves[2].DelayDays)
}

func TestOverdue_GraceOverride(t *testing.T) {
	env := newTestEnv(t, "overdue-leaves")

	rec := env.do(t, http.MethodGet, "/api/leaves/overdue?grace=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	leaves := decode[[]LeaveDTO](t, rec)
	require.Len(t, leaves, 2)
	assert.Equal(t, "leave-002", leaves[0].ID)
	assert.Equal(t, "leave-003", leaves[1].ID)

	rec = env.do(t, http.MethodGet, "/api/leaves/overdue?grace=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", errorCode(t, rec))

	rec = env.do(t, http.MethodGet, "/api/leaves/overdue?as_of=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNewHandler_DaysFollowSchedulerZone(t *testing.T) {
	// GIVEN: 22:30 UTC with the scheduler in UTC+3, where it is already tomorrow
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	riyadh := time.FixedZone("AST", 3*60*60)
	logger, _ := test.NewNullLogger()
	h := NewHandler(s, generic.FixedClock{T: time.Date(2025, time.March, 1, 22, 30, 0, 0, time.UTC)}, Options{
		Scheduler: SchedulerConfig{Hour: 9, Location: riyadh},
		Logger:    log.NewEntry(logger),
	})

	// THEN: The handler and the components it wires read the local day
	assert.Equal(t, generic.MustParseDate("2025-03-02"), h.today())
	assert.Equal(t, riyadh, generic.Zone(h.Clock))

	report, err := h.Scheduler.RunNow(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, generic.MustParseDate("2025-03-02"), report.Run.AsOf)
}

func TestCurrentlyOnLeave_ExcludesEndedLeaves(t *testing.T) {
	env := newTestEnv(t, "overdue-leaves")

	rec := env.do(t, http.MethodGet, "/api/leaves/on-leave", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	leaves := decode[[]LeaveDTO](t, rec)
	require.Len(t, leaves, 1)
	assert.Equal(t, "leave-006", leaves[0].ID)

	rec = env.do(t, http.MethodGet, "/api/leaves/awaiting-return", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]LeaveDTO](t, rec), 4)
}

// =============================================================================
// EVALUATION & REVIEW
// =============================================================================

func TestEvaluateLeave_CreatesThenSkipsDuplicate(t *testing.T) {
	// GIVEN: A leave 8 days overdue
	env := newTestEnv(t, "overdue-leaves")

	// WHEN: A reviewer evaluates it
	rec := env.do(t, http.MethodPost, "/api/leaves/leave-002/evaluate", nil)

	// THEN: A PENDING 3-day deduction is created and reviewers are alerted
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ev := decode[EvaluationDTO](t, rec)
	require.True(t, ev.Created)
	require.NotNil(t, ev.Penalty)
	assert.Equal(t, "delay-7d", ev.Penalty.PolicyID)
	assert.Equal(t, "DEDUCTION", ev.Penalty.PenaltyType)
	assert.Equal(t, 3, ev.Penalty.DeductionDays)
	assert.Equal(t, "PENDING", ev.Penalty.Status)
	assert.Equal(t, "hr.manager", ev.Penalty.CreatedBy)
	assert.Equal(t, 1, env.channel.count(notify.KindNewPenalty))

	// WHEN: It is evaluated again
	rec = env.do(t, http.MethodPost, "/api/leaves/leave-002/evaluate", nil)

	// THEN: Nothing new is created
	require.Equal(t, http.StatusOK, rec.Code)
	ev = decode[EvaluationDTO](t, rec)
	assert.False(t, ev.Created)
	assert.Equal(t, string(penalty.SkipDuplicate), ev.Skipped)
	assert.Equal(t, 1, env.channel.count(notify.KindNewPenalty))
}

func TestEvaluateLeave_Errors(t *testing.T) {
	env := newTestEnv(t, "overdue-leaves")

	req := httptest.NewRequest(http.MethodPost, "/api/leaves/leave-002/evaluate", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "actor is required")

	rec = env.do(t, http.MethodPost, "/api/leaves/leave-404/evaluate", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorCode(t, rec))
}

func TestApproveAndCancel(t *testing.T) {
	// GIVEN: A PENDING deduction
	env := newTestEnv(t, "overdue-leaves")
	rec := env.do(t, http.MethodPost, "/api/leaves/leave-002/evaluate", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[EvaluationDTO](t, rec).Penalty.ID

	// WHEN: It is approved
	rec = env.do(t, http.MethodPost, "/api/penalties/"+id+"/approve", nil)

	// THEN: It is APPROVED by the reviewer
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decode[PenaltyDTO](t, rec)
	assert.Equal(t, "APPROVED", p.Status)
	assert.Equal(t, "hr.manager", p.ApprovedBy)
	assert.NotNil(t, p.ApprovedAt)

	// WHEN: It is cancelled without a reason
	rec = env.do(t, http.MethodPost, "/api/penalties/"+id+"/cancel", CancelRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// WHEN: It is cancelled with a reason
	rec = env.do(t, http.MethodPost, "/api/penalties/"+id+"/cancel", CancelRequest{Reason: "medical certificate"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p = decode[PenaltyDTO](t, rec)
	assert.Equal(t, "CANCELLED", p.Status)
	assert.True(t, p.IsCancelled)
	assert.Equal(t, "medical certificate", p.CancelReason)

	// THEN: A cancelled penalty cannot be approved again
	rec = env.do(t, http.MethodPost, "/api/penalties/"+id+"/approve", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", errorCode(t, rec))
}

func TestApproveSuspension_SuspendsEmployee(t *testing.T) {
	env := newTestEnv(t, "overdue-leaves")
	rec := env.do(t, http.MethodPost, "/api/leaves/leave-003/evaluate", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	ev := decode[EvaluationDTO](t, rec)
	assert.Equal(t, "SUSPENSION", ev.Penalty.PenaltyType)

	rec = env.do(t, http.MethodPost, "/api/penalties/"+ev.Penalty.ID+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/employees/emp-003", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "SUSPENDED", decode[EmployeeDTO](t, rec).EmploymentStatus)
}

func TestListPenalties_Filters(t *testing.T) {
	env := newTestEnv(t, "overdue-leaves")
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/leaves/leave-002/evaluate", nil).Code)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/leaves/leave-003/evaluate", nil).Code)

	rec := env.do(t, http.MethodGet, "/api/penalties?type=suspension", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	penalties := decode[[]PenaltyDTO](t, rec)
	require.Len(t, penalties, 1)
	assert.Equal(t, "leave-003", penalties[0].LeaveID)

	rec = env.do(t, http.MethodGet, "/api/penalties?status=pending,approved&employee_id=emp-002", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]PenaltyDTO](t, rec), 1)

	rec = env.do(t, http.MethodGet, "/api/penalties?type=fine", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/penalties/penalty-404", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListPolicies_DefaultTiers(t *testing.T) {
	env := newTestEnv(t, "overdue-leaves")

	rec := env.do(t, http.MethodGet, "/api/policies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	policies := decode[[]PolicyDTO](t, rec)
	require.Len(t, policies, 3)
	assert.Equal(t, []int{3, 7, 10}, []int{
		policies[0].DelayDaysThreshold,
		policies[1].DelayDaysThreshold,
		policies[2].DelayDaysThreshold,
	})
}

// =============================================================================
// SUSPENSION LIFT
// =============================================================================

func TestLiftSuspension_WithExcuse(t *testing.T) {
	// GIVEN: A suspended employee
	env := newTestEnv(t, "suspended-employee")

	// WHEN: The excuse is too short
	rec := env.do(t, http.MethodPost, "/api/employees/emp-001/lift", LiftRequest{Mode: "excuse", Excuse: "ok"})

	// THEN: The lift is refused
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// WHEN: A proper excuse is given
	rec = env.do(t, http.MethodPost, "/api/employees/emp-001/lift", LiftRequest{Mode: "excuse", Excuse: "hospitalised abroad"})

	// THEN: The employee is ACTIVE and the suspension cancelled with the excuse
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	lift := decode[LiftDTO](t, rec)
	assert.Equal(t, "ACTIVE", lift.Employee.EmploymentStatus)
	assert.Equal(t, "penalty-001", lift.Cancelled.ID)
	assert.Equal(t, "CANCELLED", lift.Cancelled.Status)
	assert.Equal(t, "hospitalised abroad", lift.Cancelled.CancelReason)
	assert.Nil(t, lift.Replacement)

	// THEN: A second lift has nothing to lift
	rec = env.do(t, http.MethodPost, "/api/employees/emp-001/lift", LiftRequest{Mode: "excuse", Excuse: "hospitalised abroad"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLiftSuspension_WithPenalty(t *testing.T) {
	env := newTestEnv(t, "suspended-employee")

	rec := env.do(t, http.MethodPost, "/api/employees/emp-001/lift", LiftRequest{Mode: "penalty", DeductionDays: 2})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	lift := decode[LiftDTO](t, rec)
	assert.Equal(t, "ACTIVE", lift.Employee.EmploymentStatus)
	require.NotNil(t, lift.Replacement)
	assert.Equal(t, "DEDUCTION", lift.Replacement.PenaltyType)
	assert.Equal(t, "APPROVED", lift.Replacement.Status)
	assert.Equal(t, 2, lift.Replacement.DeductionDays)
	assert.Equal(t, "penalty-001", lift.Replacement.ReplacesPenaltyID)
}

func TestLiftSuspension_BadRequests(t *testing.T) {
	env := newTestEnv(t, "suspended-employee")

	rec := env.do(t, http.MethodPost, "/api/employees/emp-001/lift", LiftRequest{Mode: "pardon"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/employees/emp-001/lift", LiftRequest{Mode: "penalty", DeductionDays: 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/employees/emp-404/lift", LiftRequest{Mode: "excuse", Excuse: "hospitalised abroad"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/employees/emp-001/lift", bytes.NewBufferString("{not json"))
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// PAYROLL
// =============================================================================

func TestPayroll_DeductionsAndApply(t *testing.T) {
	// GIVEN: A suspension converted into an approved 2-day deduction today
	env := newTestEnv(t, "suspended-employee")
	rec := env.do(t, http.MethodPost, "/api/employees/emp-001/lift", LiftRequest{Mode: "penalty", DeductionDays: 2})
	require.Equal(t, http.StatusOK, rec.Code)
	replacement := decode[LiftDTO](t, rec).Replacement.ID

	from := testToday().AddDays(-1).String()
	to := testToday().String()

	// WHEN: Payroll asks for pending deductions with a daily rate
	rec = env.do(t, http.MethodGet, "/api/payroll/deductions?employee_id=emp-001&from="+from+"&to="+to+"&daily_rate=150", nil)

	// THEN: The deduction and its amount are reported
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[DeductionsResponse](t, rec)
	require.Len(t, resp.Penalties, 1)
	assert.Equal(t, replacement, resp.Penalties[0].ID)
	assert.Equal(t, "2", resp.TotalDays)
	assert.Equal(t, "300.00", resp.Amount)

	// WHEN: Payroll applies it twice with the same record
	path := "/api/payroll/penalties/" + replacement + "/apply"
	rec = env.do(t, http.MethodPost, path, ApplyRequest{PayrollRecordID: "pr-2025-03"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "APPLIED", decode[PenaltyDTO](t, rec).Status)
	rec = env.do(t, http.MethodPost, path, ApplyRequest{PayrollRecordID: "pr-2025-03"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// THEN: A different record conflicts, and the deduction is no longer pending
	rec = env.do(t, http.MethodPost, path, ApplyRequest{PayrollRecordID: "pr-2025-04"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/payroll/deductions?employee_id=emp-001&from="+from+"&to="+to, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[DeductionsResponse](t, rec)
	assert.Empty(t, resp.Penalties)
	assert.Equal(t, "0", resp.TotalDays)
	assert.Empty(t, resp.Amount)
}

func TestPayroll_Validation(t *testing.T) {
	env := newTestEnv(t, "suspended-employee")
	today := testToday().String()

	rec := env.do(t, http.MethodGet, "/api/payroll/deductions?employee_id=emp-001&to="+today, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "from is required")

	rec = env.do(t, http.MethodGet, "/api/payroll/deductions?from="+today+"&to="+today, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "employee is required")

	rec = env.do(t, http.MethodGet, "/api/payroll/deductions?employee_id=emp-001&from="+today+"&to="+today+"&daily_rate=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// A suspension never reaches payroll.
	rec = env.do(t, http.MethodPost, "/api/payroll/penalties/penalty-001/apply", ApplyRequest{PayrollRecordID: "pr-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/payroll/penalties/penalty-001/apply", ApplyRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// RETURNS & OVERLAPS
// =============================================================================

func TestRegisterReturn(t *testing.T) {
	// GIVEN: An employee 8 days overdue
	env := newTestEnv(t, "overdue-leaves")

	// WHEN: The return is registered today
	rec := env.do(t, http.MethodPost, "/api/leaves/leave-002/return", nil)

	// THEN: The delay is reported and the employee is back to ACTIVE
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ret := decode[ReturnDTO](t, rec)
	assert.Equal(t, 8, ret.DelayDays)
	require.NotNil(t, ret.Leave.ActualReturnDate)
	assert.Equal(t, testToday(), *ret.Leave.ActualReturnDate)

	rec = env.do(t, http.MethodGet, "/api/employees/emp-002", nil)
	emp := decode[EmployeeDTO](t, rec)
	assert.Equal(t, "ACTIVE", emp.EmploymentStatus)
	require.NotNil(t, emp.LastLeaveEndDate)
	assert.Equal(t, testToday().AddDays(-1), *emp.LastLeaveEndDate)

	// THEN: The leave is closed and no longer overdue
	rec = env.do(t, http.MethodPost, "/api/leaves/leave-002/return", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/leaves/overdue?grace=5", nil)
	assert.Len(t, decode[[]LeaveDTO](t, rec), 1)
}

func TestRegisterReturn_Validation(t *testing.T) {
	env := newTestEnv(t, "overdue-leaves")

	rec := env.do(t, http.MethodPost, "/api/leaves/leave-004/return", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "cash settlement")

	rec = env.do(t, http.MethodPost, "/api/leaves/leave-002/return", ReturnRequest{ReturnDate: "2025-13-01"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/leaves/leave-404/return", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOverlaps_FindAndResolve(t *testing.T) {
	// GIVEN: Two open leaves of the same employee sharing days
	env := newTestEnv(t, "overlapping-leaves")

	rec := env.do(t, http.MethodGet, "/api/leaves/overlaps", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	overlaps := decode[[]OverlapDTO](t, rec)
	require.Len(t, overlaps, 1)
	assert.Equal(t, "leave-001", overlaps[0].Kept.ID)
	assert.Equal(t, "leave-002", overlaps[0].Dropped.ID)

	rec = env.do(t, http.MethodGet, "/api/leaves/overlaps?employee_id=emp-002", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]OverlapDTO](t, rec))

	// WHEN: Overlaps are resolved
	rec = env.do(t, http.MethodPost, "/api/leaves/overlaps/resolve?employee_id=emp-001", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["resolved"])

	// THEN: None remain
	rec = env.do(t, http.MethodGet, "/api/leaves/overlaps", nil)
	assert.Empty(t, decode[[]OverlapDTO](t, rec))
}

// =============================================================================
// FORECASTS
// =============================================================================

func TestNextLeave(t *testing.T) {
	env := newTestEnv(t, "leave-cycles")

	tests := []struct {
		employee  string
		scheduled bool
		start     generic.Date
		days      int
	}{
		{"emp-001", true, testToday().AddDays(30), 30},
		{"emp-002", true, testToday().AddDays(60), 21},
		{"emp-003", false, generic.Date{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.employee, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/employees/"+tt.employee+"/next-leave", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			got := decode[NextLeaveDTO](t, rec)
			assert.Equal(t, tt.scheduled, got.Scheduled)
			if tt.scheduled {
				require.NotNil(t, got.Start)
				assert.Equal(t, tt.start, *got.Start)
				assert.Equal(t, tt.days, got.Days)
			}
		})
	}

	rec := env.do(t, http.MethodGet, "/api/employees/emp-404/next-leave", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefreshForecasts_CachesWindows(t *testing.T) {
	env := newTestEnv(t, "leave-cycles")

	rec := env.do(t, http.MethodPost, "/api/forecasts/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/employees/emp-002", nil)
	emp := decode[EmployeeDTO](t, rec)
	require.NotNil(t, emp.NextLeaveStartDate)
	assert.Equal(t, testToday().AddDays(60), *emp.NextLeaveStartDate)
	require.NotNil(t, emp.NextLeaveEndDate)
	assert.Equal(t, testToday().AddDays(80), *emp.NextLeaveEndDate)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, "")
	rec := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
