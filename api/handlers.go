/*
handlers.go - HTTP API handlers for reviewer actions

PURPOSE:
  Exposes the leave and penalty engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.
  Everything here is a manual action; the daily run lives in scheduler.go.

ENDPOINTS:
  Employees:
    GET    /api/employees                   List employees
    GET    /api/employees/{id}              Employee details
    GET    /api/employees/{id}/next-leave   Forecast next leave window
    POST   /api/employees/{id}/lift         Lift a suspension
    POST   /api/forecasts/refresh           Refresh every forecast cache

  Leaves:
    GET    /api/leaves/on-leave             ?as_of=
    GET    /api/leaves/awaiting-return      ?as_of=
    GET    /api/leaves/overdue              ?as_of=&grace=
    POST   /api/leaves/{id}/return          Register actual return
    POST   /api/leaves/{id}/evaluate        Manual penalty evaluation
    GET    /api/leaves/overlaps             ?employee_id=
    POST   /api/leaves/overlaps/resolve     ?employee_id=

  Penalties:
    GET    /api/policies                    Tier table
    GET    /api/penalties                   ?employee_id=&leave_id=&type=&status=
    GET    /api/penalties/{id}
    POST   /api/penalties/{id}/approve
    POST   /api/penalties/{id}/cancel

  Payroll:
    GET    /api/payroll/deductions          ?employee_id=&from=&to=&daily_rate=
    POST   /api/payroll/penalties/{id}/apply

  Scheduler:
    POST   /api/scheduler/run               Manual run
    GET    /api/scheduler/runs              ?limit=

ACTOR:
  Reviewer actions need an actor: the "actor" body field, else the
  X-Actor header.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: State conflict (transition refused, no active suspension, run in progress)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/warp/staffops/generic"
	"github.com/warp/staffops/notify"
	"github.com/warp/staffops/payroll"
	"github.com/warp/staffops/penalty"
	"github.com/warp/staffops/timeoff"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Options tunes the components NewHandler builds.
type Options struct {
	Limits    penalty.Limits
	Notifier  *notify.Notifier
	Scheduler SchedulerConfig
	Logger    *log.Entry
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     generic.TxStore
	Clock     generic.Clock
	Lifecycle *timeoff.LeaveLifecycle
	Cycles    *timeoff.CycleCalculator
	Engine    *penalty.Engine
	Payroll   *payroll.Bridge
	Scheduler *DailyScheduler

	logger *log.Entry

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler wires every domain component over store.
func NewHandler(store generic.TxStore, clock generic.Clock, opts Options) *Handler {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	component := func(name string) *log.Entry { return logger.WithField("component", name) }

	// Every component reads days in the scheduler's zone.
	if opts.Scheduler.Location == nil {
		opts.Scheduler.Location = time.Local
	}
	clock = generic.ZonedClock{Clock: clock, Location: opts.Scheduler.Location}

	h := &Handler{
		Store:     store,
		Clock:     clock,
		Lifecycle: timeoff.NewLeaveLifecycle(store, clock, component("lifecycle")),
		Cycles:    timeoff.NewCycleCalculator(store, clock, component("cycle")),
		Engine:    penalty.NewEngine(store, clock, component("penalty"), opts.Limits),
		Payroll:   payroll.NewBridge(store, clock, component("payroll")),
		logger:    component("api"),
	}
	if opts.Notifier != nil {
		h.Engine.OnCreated(opts.Notifier.PenaltyHook())
	}
	h.Scheduler = NewDailyScheduler(SchedulerDeps{
		Runs:      store,
		Lifecycle: h.Lifecycle,
		Engine:    h.Engine,
		Cycles:    h.Cycles,
		Notifier:  opts.Notifier,
		Clock:     clock,
		Logger:    component("scheduler"),
	}, opts.Scheduler)
	return h
}

func (h *Handler) today() generic.Date {
	return generic.Today(h.Clock)
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all employees.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list employees", err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEmployee returns one employee.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Store.GetEmployee(r.Context(), generic.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get employee", err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

// GetNextLeave computes the next leave window. The cache is not touched.
// GET /api/employees/{id}/next-leave
func (h *Handler) GetNextLeave(w http.ResponseWriter, r *http.Request) {
	id := generic.EmployeeID(chi.URLParam(r, "id"))
	emp, err := h.Store.GetEmployee(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get employee", err)
		return
	}

	dto := NextLeaveDTO{EmployeeID: string(id)}
	if window, ok := h.Cycles.NextWindow(emp, h.today()); ok {
		dto.Scheduled = true
		dto.Start = window.Start.Ptr()
		dto.End = window.End.Ptr()
		dto.Days = window.Days()
	}
	writeJSON(w, http.StatusOK, dto)
}

// RefreshForecasts recomputes every cached forecast.
// POST /api/forecasts/refresh
func (h *Handler) RefreshForecasts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Cycles.RefreshAll(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to refresh forecasts", err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// LiftSuspension lifts an employee's suspension, with an excuse or by
// converting it into a deduction.
// POST /api/employees/{id}/lift
func (h *Handler) LiftSuspension(w http.ResponseWriter, r *http.Request) {
	var req LiftRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := generic.EmployeeID(chi.URLParam(r, "id"))
	actor := actorOf(r, req.Actor)

	var (
		result penalty.LiftResult
		err    error
	)
	switch strings.ToLower(strings.TrimSpace(req.Mode)) {
	case "excuse", "without_penalty":
		result, err = h.Engine.LiftWithoutPenalty(r.Context(), id, req.Excuse, actor)
	case "penalty", "with_penalty":
		result, err = h.Engine.LiftWithPenalty(r.Context(), id, req.DeductionDays, actor)
	default:
		err = generic.Invalid("mode", "must be excuse or penalty, got %q", req.Mode)
	}
	if err != nil {
		writeDomainError(w, "Failed to lift suspension", err)
		return
	}

	dto := LiftDTO{
		Employee:  toEmployeeDTO(result.Employee),
		Cancelled: toPenaltyDTO(result.Cancelled),
	}
	if result.Replacement != nil {
		replacement := toPenaltyDTO(*result.Replacement)
		dto.Replacement = &replacement
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// LEAVE HANDLERS
// =============================================================================

// CurrentlyOnLeave lists open leaves covering as_of.
func (h *Handler) CurrentlyOnLeave(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.dateParam(r, "as_of")
	if err != nil {
		writeDomainError(w, "Invalid as_of", err)
		return
	}
	leaves, err := h.Lifecycle.CurrentlyOnLeave(r.Context(), asOf)
	if err != nil {
		writeDomainError(w, "Failed to list leaves", err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTOs(leaves, asOf))
}

// AwaitingReturn lists open leaves that started on or before as_of.
func (h *Handler) AwaitingReturn(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.dateParam(r, "as_of")
	if err != nil {
		writeDomainError(w, "Invalid as_of", err)
		return
	}
	leaves, err := h.Lifecycle.AwaitingReturn(r.Context(), asOf)
	if err != nil {
		writeDomainError(w, "Failed to list leaves", err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTOs(leaves, asOf))
}

// Overdue lists APPROVED open leaves past end + grace. The grace defaults
// to 0 here; the scheduler applies its own.
func (h *Handler) Overdue(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.dateParam(r, "as_of")
	if err != nil {
		writeDomainError(w, "Invalid as_of", err)
		return
	}
	grace, err := intParam(r, "grace", 0)
	if err != nil {
		writeDomainError(w, "Invalid grace", err)
		return
	}
	leaves, err := h.Lifecycle.Overdue(r.Context(), asOf, grace)
	if err != nil {
		writeDomainError(w, "Failed to list overdue leaves", err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTOs(leaves, asOf))
}

// RegisterReturn closes an open leave.
// POST /api/leaves/{id}/return
func (h *Handler) RegisterReturn(w http.ResponseWriter, r *http.Request) {
	var req ReturnRequest
	if !decodeBody(w, r, &req) {
		return
	}
	returnDate := h.today()
	if req.ReturnDate != "" {
		d, err := generic.ParseDate(req.ReturnDate)
		if err != nil {
			writeDomainError(w, "Invalid return_date", generic.Invalid("return_date", "%v", err))
			return
		}
		returnDate = d
	}

	result, err := h.Lifecycle.RegisterReturn(r.Context(), generic.LeaveID(chi.URLParam(r, "id")), returnDate)
	if err != nil {
		writeDomainError(w, "Failed to register return", err)
		return
	}
	writeJSON(w, http.StatusOK, ReturnDTO{
		Leave:     toLeaveDTO(result.Leave, returnDate),
		DelayDays: result.DelayDays,
	})
}

// EvaluateLeave runs the penalty creation rule on one leave.
// POST /api/leaves/{id}/evaluate
func (h *Handler) EvaluateLeave(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	asOf := h.today()
	if req.AsOf != "" {
		d, err := generic.ParseDate(req.AsOf)
		if err != nil {
			writeDomainError(w, "Invalid as_of", generic.Invalid("as_of", "%v", err))
			return
		}
		asOf = d
	}

	ev, err := h.Engine.EvaluateLeave(r.Context(), generic.LeaveID(chi.URLParam(r, "id")), asOf, actorOf(r, req.Actor))
	if err != nil {
		writeDomainError(w, "Failed to evaluate leave", err)
		return
	}

	dto := EvaluationDTO{
		LeaveID:   string(ev.LeaveID),
		DelayDays: ev.DelayDays,
		Created:   ev.Created(),
		Skipped:   string(ev.Skipped),
	}
	status := http.StatusOK
	if ev.Penalty != nil {
		p := toPenaltyDTO(*ev.Penalty)
		dto.Penalty = &p
		status = http.StatusCreated
	}
	writeJSON(w, status, dto)
}

// ListOverlaps lists open leaves sharing days, for one employee or all.
// GET /api/leaves/overlaps
func (h *Handler) ListOverlaps(w http.ResponseWriter, r *http.Request) {
	var (
		overlaps []timeoff.Overlap
		err      error
	)
	if id := r.URL.Query().Get("employee_id"); id != "" {
		overlaps, err = h.Lifecycle.FindOverlapping(r.Context(), generic.EmployeeID(id))
	} else {
		overlaps, err = h.Lifecycle.FindAllOverlapping(r.Context())
	}
	if err != nil {
		writeDomainError(w, "Failed to find overlaps", err)
		return
	}
	writeJSON(w, http.StatusOK, toOverlapDTOs(overlaps, h.today()))
}

// ResolveOverlaps keeps the earliest-created leave of each conflict.
// POST /api/leaves/overlaps/resolve
func (h *Handler) ResolveOverlaps(w http.ResponseWriter, r *http.Request) {
	resolved, err := h.Lifecycle.ResolveOverlaps(r.Context(), generic.EmployeeID(r.URL.Query().Get("employee_id")))
	if err != nil {
		writeDomainError(w, "Failed to resolve overlaps", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"resolved": len(resolved),
		"overlaps": toOverlapDTOs(resolved, h.today()),
	})
}

// =============================================================================
// POLICY & PENALTY HANDLERS
// =============================================================================

// ListPolicies returns the tier table. ?all=true includes inactive tiers.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.Store.ListPolicies(r.Context(), r.URL.Query().Get("all") != "true")
	if err != nil {
		writeDomainError(w, "Failed to list policies", err)
		return
	}
	dtos := make([]PolicyDTO, len(policies))
	for i, p := range policies {
		dtos[i] = toPolicyDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListPenalties returns penalties matching the query filters.
func (h *Handler) ListPenalties(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := generic.PenaltyFilter{
		EmployeeID:  generic.EmployeeID(q.Get("employee_id")),
		LeaveID:     generic.LeaveID(q.Get("leave_id")),
		PenaltyType: generic.PenaltyType(strings.ToUpper(q.Get("type"))),
	}
	if filter.PenaltyType != "" && !filter.PenaltyType.Valid() {
		writeDomainError(w, "Invalid type", generic.Invalid("type", "unknown penalty type %q", q.Get("type")))
		return
	}
	for _, s := range q["status"] {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				filter.Statuses = append(filter.Statuses, generic.PenaltyStatus(strings.ToUpper(part)))
			}
		}
	}

	penalties, err := h.Engine.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, "Failed to list penalties", err)
		return
	}
	writeJSON(w, http.StatusOK, toPenaltyDTOs(penalties))
}

// GetPenalty returns one penalty.
func (h *Handler) GetPenalty(w http.ResponseWriter, r *http.Request) {
	p, err := h.Engine.Get(r.Context(), generic.PenaltyID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get penalty", err)
		return
	}
	writeJSON(w, http.StatusOK, toPenaltyDTO(p))
}

// ApprovePenalty moves a PENDING penalty to APPROVED.
// POST /api/penalties/{id}/approve
func (h *Handler) ApprovePenalty(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := h.Engine.Approve(r.Context(), generic.PenaltyID(chi.URLParam(r, "id")), actorOf(r, req.Actor))
	if err != nil {
		writeDomainError(w, "Failed to approve penalty", err)
		return
	}
	writeJSON(w, http.StatusOK, toPenaltyDTO(p))
}

// CancelPenalty cancels a PENDING or APPROVED penalty with a reason.
// POST /api/penalties/{id}/cancel
func (h *Handler) CancelPenalty(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := h.Engine.Cancel(r.Context(), generic.PenaltyID(chi.URLParam(r, "id")), req.Reason, actorOf(r, req.Actor))
	if err != nil {
		writeDomainError(w, "Failed to cancel penalty", err)
		return
	}
	writeJSON(w, http.StatusOK, toPenaltyDTO(p))
}

// =============================================================================
// PAYROLL HANDLERS
// =============================================================================

// PendingDeductions lists approved deductions payroll has not applied.
// GET /api/payroll/deductions
func (h *Handler) PendingDeductions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := requiredDate(q.Get("from"), "from")
	if err != nil {
		writeDomainError(w, "Invalid period", err)
		return
	}
	to, err := requiredDate(q.Get("to"), "to")
	if err != nil {
		writeDomainError(w, "Invalid period", err)
		return
	}

	employeeID := generic.EmployeeID(q.Get("employee_id"))
	penalties, err := h.Payroll.PendingDeductions(r.Context(), employeeID, from, to)
	if err != nil {
		writeDomainError(w, "Failed to list deductions", err)
		return
	}

	resp := DeductionsResponse{
		EmployeeID: string(employeeID),
		From:       from,
		To:         to,
		Penalties:  toPenaltyDTOs(penalties),
		TotalDays:  payroll.DeductionDays(penalties).String(),
	}
	if rate := q.Get("daily_rate"); rate != "" {
		dailyRate, err := decimal.NewFromString(rate)
		if err != nil || dailyRate.IsNegative() {
			writeDomainError(w, "Invalid daily_rate", generic.Invalid("daily_rate", "want a non-negative decimal, got %q", rate))
			return
		}
		resp.Amount = payroll.DeductionAmount(penalties, dailyRate).StringFixed(2)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ApplyDeduction marks a deduction consumed by a payroll record.
// POST /api/payroll/penalties/{id}/apply
func (h *Handler) ApplyDeduction(w http.ResponseWriter, r *http.Request) {
	var req ApplyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := h.Payroll.MarkApplied(r.Context(), generic.PenaltyID(chi.URLParam(r, "id")), req.PayrollRecordID)
	if err != nil {
		writeDomainError(w, "Failed to apply deduction", err)
		return
	}
	writeJSON(w, http.StatusOK, toPenaltyDTO(p))
}

// =============================================================================
// SCHEDULER HANDLERS
// =============================================================================

// TriggerRun runs the daily pipeline now. A run already executing gives 409.
// POST /api/scheduler/run
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	report, err := h.Scheduler.RunNow(r.Context(), TriggerManual)
	if err != nil {
		if report.Run.ID == "" {
			writeDomainError(w, "Run not started", err)
			return
		}
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "Run failed",
			Details: toRunResponse(report),
		})
		return
	}
	writeJSON(w, http.StatusOK, toRunResponse(report))
}

// ListRuns returns scheduler run history, most recent first.
// GET /api/scheduler/runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 50)
	if err != nil {
		writeDomainError(w, "Invalid limit", err)
		return
	}
	runs, err := h.Store.ListRuns(r.Context(), limit)
	if err != nil {
		writeDomainError(w, "Failed to list runs", err)
		return
	}

	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runs":     dtos,
		"running":  h.Scheduler.Running(),
		"next_run": h.Scheduler.NextRunTime(),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError picks the status from the error classifiers.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	code := "internal"
	switch {
	case generic.IsClientError(err):
		status, code = http.StatusBadRequest, "invalid_input"
	case generic.IsNotFound(err):
		status, code = http.StatusNotFound, "not_found"
	case generic.IsConflict(err):
		status, code = http.StatusConflict, "conflict"
	}
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: err.Error()})
}

// decodeBody reads an optional JSON body. An empty body leaves dst untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		return true
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeError(w, http.StatusBadRequest, "Invalid request body", err)
	return false
}

func actorOf(r *http.Request, fromBody string) string {
	if a := strings.TrimSpace(fromBody); a != "" {
		return a
	}
	return strings.TrimSpace(r.Header.Get("X-Actor"))
}

// dateParam reads a date query parameter, defaulting to today.
func (h *Handler) dateParam(r *http.Request, name string) (generic.Date, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return h.today(), nil
	}
	d, err := generic.ParseDate(v)
	if err != nil {
		return generic.Date{}, generic.Invalid(name, "%v", err)
	}
	return d, nil
}

func requiredDate(v, name string) (generic.Date, error) {
	if v == "" {
		return generic.Date{}, generic.Invalid(name, "required")
	}
	d, err := generic.ParseDate(v)
	if err != nil {
		return generic.Date{}, generic.Invalid(name, "%v", err)
	}
	return d, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, generic.Invalid(name, "want an integer, got %q", v)
	}
	return n, nil
}
