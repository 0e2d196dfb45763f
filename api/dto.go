/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

DATES:
  Calendar dates are "2006-01-02" (generic.Date), timestamps RFC 3339.
  Unset dates are null.

VALIDATION:
  Validation is done in handlers and domain code, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/staffops/generic"
	"github.com/warp/staffops/penalty"
	"github.com/warp/staffops/timeoff"
)

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	IsActive           bool          `json:"is_active"`
	HireDate           generic.Date  `json:"hire_date"`
	WorkDaysPerCycle   *int          `json:"work_days_per_cycle"`
	LeaveDaysPerCycle  *int          `json:"leave_days_per_cycle"`
	HasCustomCycle     bool          `json:"has_custom_cycle"`
	LastLeaveStartDate *generic.Date `json:"last_leave_start_date"`
	LastLeaveEndDate   *generic.Date `json:"last_leave_end_date"`
	NextLeaveStartDate *generic.Date `json:"next_leave_start_date"`
	NextLeaveEndDate   *generic.Date `json:"next_leave_end_date"`
	EmploymentStatus   string        `json:"employment_status"`
}

// NextLeaveDTO is the forecast for one employee.
type NextLeaveDTO struct {
	EmployeeID string        `json:"employee_id"`
	Scheduled  bool          `json:"scheduled"`
	Start      *generic.Date `json:"start,omitempty"`
	End        *generic.Date `json:"end,omitempty"`
	Days       int           `json:"days,omitempty"`
}

// LeaveDTO represents a leave record.
type LeaveDTO struct {
	ID               string        `json:"id"`
	EmployeeID       string        `json:"employee_id"`
	StartDate        generic.Date  `json:"start_date"`
	EndDate          generic.Date  `json:"end_date"`
	TotalDays        int           `json:"total_days"`
	Status           string        `json:"status"`
	ActualReturnDate *generic.Date `json:"actual_return_date"`
	SettlementType   string        `json:"settlement_type"`
	IsActive         bool          `json:"is_active"`
	DelayDays        int           `json:"delay_days"`
	CreatedAt        string        `json:"created_at,omitempty"`
}

// OverlapDTO is one conflicting pair.
type OverlapDTO struct {
	EmployeeID string   `json:"employee_id"`
	Kept       LeaveDTO `json:"kept"`
	Dropped    LeaveDTO `json:"dropped"`
}

// ReturnDTO is the result of registering a return.
type ReturnDTO struct {
	Leave     LeaveDTO `json:"leave"`
	DelayDays int      `json:"delay_days"`
}

// PolicyDTO represents a delay penalty tier.
type PolicyDTO struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	DelayDaysThreshold int    `json:"delay_days_threshold"`
	PenaltyType        string `json:"penalty_type"`
	DeductionDays      int    `json:"deduction_days"`
	SuspensionDays     int    `json:"suspension_days"`
	IsActive           bool   `json:"is_active"`
}

// PenaltyDTO represents an applied penalty with its audit trail.
type PenaltyDTO struct {
	ID                 string  `json:"id"`
	LeaveID            string  `json:"leave_id"`
	EmployeeID         string  `json:"employee_id"`
	DelayDays          int     `json:"delay_days"`
	PolicyID           string  `json:"policy_id"`
	PenaltyType        string  `json:"penalty_type"`
	DeductionDays      int     `json:"deduction_days"`
	SuspensionDays     int     `json:"suspension_days"`
	Status             string  `json:"status"`
	CreatedBy          string  `json:"created_by,omitempty"`
	ApprovedBy         string  `json:"approved_by,omitempty"`
	ApprovedAt         *string `json:"approved_at,omitempty"`
	IsCancelled        bool    `json:"is_cancelled"`
	CancelReason       string  `json:"cancel_reason,omitempty"`
	CancelledBy        string  `json:"cancelled_by,omitempty"`
	CancelledAt        *string `json:"cancelled_at,omitempty"`
	IsAppliedToPayroll bool    `json:"is_applied_to_payroll"`
	PayrollRecordID    string  `json:"payroll_record_id,omitempty"`
	AppliedToPayrollAt *string `json:"applied_to_payroll_at,omitempty"`
	ReplacesPenaltyID  string  `json:"replaces_penalty_id,omitempty"`
	CreatedAt          string  `json:"created_at"`
}

// EvaluationDTO is the outcome of a manual evaluation.
type EvaluationDTO struct {
	LeaveID   string      `json:"leave_id"`
	DelayDays int         `json:"delay_days"`
	Created   bool        `json:"created"`
	Penalty   *PenaltyDTO `json:"penalty,omitempty"`
	Skipped   string      `json:"skipped,omitempty"`
}

// LiftDTO is the outcome of a suspension lift.
type LiftDTO struct {
	Employee    EmployeeDTO `json:"employee"`
	Cancelled   PenaltyDTO  `json:"cancelled"`
	Replacement *PenaltyDTO `json:"replacement,omitempty"`
}

// DeductionsResponse lists deductions payroll should consume.
type DeductionsResponse struct {
	EmployeeID string       `json:"employee_id"`
	From       generic.Date `json:"from"`
	To         generic.Date `json:"to"`
	Penalties  []PenaltyDTO `json:"penalties"`
	TotalDays  string       `json:"total_days"`
	Amount     string       `json:"amount,omitempty"`
}

// RunDTO represents a scheduler run.
type RunDTO struct {
	ID          string `json:"id"`
	Trigger     string `json:"trigger"`
	AsOf        string `json:"as_of"`
	Status      string `json:"status"`
	Evaluated   int    `json:"evaluated"`
	Created     int    `json:"created"`
	Failed      int    `json:"failed"`
	Error       string `json:"error,omitempty"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// RunResponse is the result of a manual run.
type RunResponse struct {
	Run       RunDTO                 `json:"run"`
	Created   []PenaltyDTO           `json:"created"`
	Skipped   map[string]int         `json:"skipped"`
	Failures  []penalty.Failure      `json:"failures"`
	Forecasts *timeoff.RefreshCounts `json:"forecasts,omitempty"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ActorRequest carries the reviewer for approve.
type ActorRequest struct {
	Actor string `json:"actor"`
}

// EvaluateRequest triggers a manual evaluation. AsOf defaults to today.
type EvaluateRequest struct {
	Actor string `json:"actor"`
	AsOf  string `json:"as_of,omitempty"`
}

// ReturnRequest registers an actual return. ReturnDate defaults to today.
type ReturnRequest struct {
	ReturnDate string `json:"return_date,omitempty"`
}

// CancelRequest cancels a penalty.
type CancelRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

// LiftRequest lifts a suspension. Mode is "excuse" or "penalty".
type LiftRequest struct {
	Actor         string `json:"actor"`
	Mode          string `json:"mode"`
	Excuse        string `json:"excuse,omitempty"`
	DeductionDays int    `json:"deduction_days,omitempty"`
}

// ApplyRequest marks a deduction consumed by payroll.
type ApplyRequest struct {
	PayrollRecordID string `json:"payroll_record_id"`
}

// LoadScenarioRequest loads a demo dataset.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toEmployeeDTO(e generic.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:                 string(e.ID),
		Name:               e.Name,
		IsActive:           e.IsActive,
		HireDate:           e.HireDate,
		WorkDaysPerCycle:   e.WorkDaysPerCycle,
		LeaveDaysPerCycle:  e.LeaveDaysPerCycle,
		HasCustomCycle:     e.HasCustomCycle,
		LastLeaveStartDate: e.LastLeaveStartDate,
		LastLeaveEndDate:   e.LastLeaveEndDate,
		NextLeaveStartDate: e.NextLeaveStartDate,
		NextLeaveEndDate:   e.NextLeaveEndDate,
		EmploymentStatus:   string(e.EmploymentStatus),
	}
}

func toLeaveDTO(l generic.Leave, asOf generic.Date) LeaveDTO {
	dto := LeaveDTO{
		ID:               string(l.ID),
		EmployeeID:       string(l.EmployeeID),
		StartDate:        l.StartDate,
		EndDate:          l.EndDate,
		TotalDays:        l.TotalDays,
		Status:           string(l.Status),
		ActualReturnDate: l.ActualReturnDate,
		SettlementType:   string(l.SettlementType),
		IsActive:         l.IsActive,
	}
	if l.IsOpen() {
		dto.DelayDays = timeoff.DelayDays(l.EndDate, asOf)
	} else {
		dto.DelayDays = timeoff.DelayDays(l.EndDate, *l.ActualReturnDate)
	}
	if !l.CreatedAt.IsZero() {
		dto.CreatedAt = l.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func toLeaveDTOs(leaves []generic.Leave, asOf generic.Date) []LeaveDTO {
	dtos := make([]LeaveDTO, len(leaves))
	for i, l := range leaves {
		dtos[i] = toLeaveDTO(l, asOf)
	}
	return dtos
}

func toOverlapDTOs(overlaps []timeoff.Overlap, asOf generic.Date) []OverlapDTO {
	dtos := make([]OverlapDTO, len(overlaps))
	for i, o := range overlaps {
		dtos[i] = OverlapDTO{
			EmployeeID: string(o.EmployeeID),
			Kept:       toLeaveDTO(o.Kept, asOf),
			Dropped:    toLeaveDTO(o.Dropped, asOf),
		}
	}
	return dtos
}

func toPolicyDTO(p generic.DelayPenaltyPolicy) PolicyDTO {
	return PolicyDTO{
		ID:                 string(p.ID),
		Name:               p.Name,
		DelayDaysThreshold: p.DelayDaysThreshold,
		PenaltyType:        string(p.PenaltyType),
		DeductionDays:      p.DeductionDays,
		SuspensionDays:     p.SuspensionDays,
		IsActive:           p.IsActive,
	}
}

func toPenaltyDTO(p generic.AppliedPenalty) PenaltyDTO {
	return PenaltyDTO{
		ID:                 string(p.ID),
		LeaveID:            string(p.LeaveID),
		EmployeeID:         string(p.EmployeeID),
		DelayDays:          p.DelayDays,
		PolicyID:           string(p.PolicyID),
		PenaltyType:        string(p.PenaltyType),
		DeductionDays:      p.DeductionDays,
		SuspensionDays:     p.SuspensionDays,
		Status:             string(p.Status),
		CreatedBy:          p.CreatedBy,
		ApprovedBy:         p.ApprovedBy,
		ApprovedAt:         timeStr(p.ApprovedAt),
		IsCancelled:        p.IsCancelled,
		CancelReason:       p.CancelReason,
		CancelledBy:        p.CancelledBy,
		CancelledAt:        timeStr(p.CancelledAt),
		IsAppliedToPayroll: p.IsAppliedToPayroll,
		PayrollRecordID:    p.PayrollRecordID,
		AppliedToPayrollAt: timeStr(p.AppliedToPayrollAt),
		ReplacesPenaltyID:  string(p.ReplacesPenaltyID),
		CreatedAt:          p.CreatedAt.Format(time.RFC3339),
	}
}

func toPenaltyDTOs(penalties []generic.AppliedPenalty) []PenaltyDTO {
	dtos := make([]PenaltyDTO, len(penalties))
	for i, p := range penalties {
		dtos[i] = toPenaltyDTO(p)
	}
	return dtos
}

func toRunDTO(r generic.PenaltyRun) RunDTO {
	dto := RunDTO{
		ID:        r.ID,
		Trigger:   r.Trigger,
		AsOf:      r.AsOf.String(),
		Status:    string(r.Status),
		Evaluated: r.Evaluated,
		Created:   r.Created,
		Failed:    r.Failed,
		Error:     r.Error,
		StartedAt: r.StartedAt.Format(time.RFC3339),
	}
	if r.CompletedAt != nil {
		dto.CompletedAt = r.CompletedAt.Format(time.RFC3339)
	}
	return dto
}

func toRunResponse(report RunReport) RunResponse {
	resp := RunResponse{
		Run:       toRunDTO(report.Run),
		Created:   toPenaltyDTOs(report.Batch.Created),
		Skipped:   make(map[string]int, len(report.Batch.Skipped)),
		Failures:  report.Batch.Failures,
		Forecasts: report.Forecasts,
	}
	for reason, n := range report.Batch.Skipped {
		resp.Skipped[string(reason)] = n
	}
	if resp.Failures == nil {
		resp.Failures = []penalty.Failure{}
	}
	return resp
}

func timeStr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
