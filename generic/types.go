/*
types.go - Core records shared by the leave and penalty engine

PURPOSE:
  Defines the four records the engine reads and writes (Employee, Leave,
  DelayPenaltyPolicy, AppliedPenalty) and their status enums. Records are
  plain data; behavior lives in timeoff/, penalty/ and payroll/.

SOFT LIFECYCLE:
  Nothing is ever physically deleted:
  - Leave:          status REJECTED + IsActive=false
  - AppliedPenalty: status CANCELLED (with who/why/when) or APPLIED
  Audit history is part of the contract.

STATUS COUPLING:
  Employee.EmploymentStatus = SUSPENDED only while exactly one APPROVED,
  non-cancelled SUSPENSION penalty exists. The transitions that touch both
  records live in penalty/engine.go and penalty/suspension.go.

SEE ALSO:
  - time.go: Date arithmetic
  - store.go: persistence interfaces
  - penalty/engine.go: status transitions with side effects
*/
package generic

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type LeaveID string
type PolicyID string
type PenaltyID string

// SystemActor is recorded as the actor of scheduler-created penalties.
const SystemActor = "system"

// =============================================================================
// EMPLOYEE
// =============================================================================

type EmploymentStatus string

const (
	StatusActive    EmploymentStatus = "ACTIVE"
	StatusOnLeave   EmploymentStatus = "ON_LEAVE"
	StatusSuspended EmploymentStatus = "SUSPENDED"
	StatusOnMission EmploymentStatus = "ON_MISSION"
)

// Employee is owned by the staff-records system. The engine reads the cycle
// config and leave anchors and writes the forecast cache and EmploymentStatus.
type Employee struct {
	ID       EmployeeID
	Name     string
	IsActive bool
	HireDate Date

	// Cycle config. Nil means no cycle configured.
	WorkDaysPerCycle  *int
	LeaveDaysPerCycle *int
	HasCustomCycle    bool

	LastLeaveStartDate *Date
	LastLeaveEndDate   *Date

	// Forecast cache. Display only, always re-derivable from history.
	NextLeaveStartDate *Date
	NextLeaveEndDate   *Date

	EmploymentStatus EmploymentStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasCycle reports whether both cycle lengths are configured and positive.
func (e Employee) HasCycle() bool {
	return e.WorkDaysPerCycle != nil && e.LeaveDaysPerCycle != nil &&
		*e.WorkDaysPerCycle > 0 && *e.LeaveDaysPerCycle > 0
}

// =============================================================================
// LEAVE
// =============================================================================

type LeaveStatus string

const (
	LeavePending  LeaveStatus = "PENDING"
	LeaveApproved LeaveStatus = "APPROVED"
	LeaveRejected LeaveStatus = "REJECTED"
)

type SettlementType string

const (
	SettlementActualLeave SettlementType = "ACTUAL_LEAVE"
	// SettlementCash is a paid-out allowance, not an absence.
	SettlementCash SettlementType = "CASH_SETTLEMENT"
)

// Leave is one leave record. EndDate is inclusive.
type Leave struct {
	ID               LeaveID
	EmployeeID       EmployeeID
	StartDate        Date
	EndDate          Date
	TotalDays        int
	Status           LeaveStatus
	ActualReturnDate *Date
	SettlementType   SettlementType
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsOpen reports whether no actual return was recorded, whatever the dates say.
func (l Leave) IsOpen() bool { return l.ActualReturnDate == nil }

// IsRealAbsence excludes cash settlements and soft-deleted rows.
func (l Leave) IsRealAbsence() bool {
	return l.IsActive && l.SettlementType == SettlementActualLeave
}

// IsLive reports PENDING or APPROVED.
func (l Leave) IsLive() bool {
	return l.Status == LeavePending || l.Status == LeaveApproved
}

// =============================================================================
// DELAY PENALTY POLICY
// =============================================================================

type PenaltyType string

const (
	PenaltyDeduction  PenaltyType = "DEDUCTION"
	PenaltySuspension PenaltyType = "SUSPENSION"
)

func (t PenaltyType) Valid() bool {
	return t == PenaltyDeduction || t == PenaltySuspension
}

// DelayPenaltyPolicy is one tier: delays of at least DelayDaysThreshold days
// map to this penalty unless a higher tier also matches.
type DelayPenaltyPolicy struct {
	ID                 PolicyID
	Name               string
	DelayDaysThreshold int
	PenaltyType        PenaltyType
	DeductionDays      int
	SuspensionDays     int
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// =============================================================================
// APPLIED PENALTY
// =============================================================================

type PenaltyStatus string

const (
	PenaltyPending   PenaltyStatus = "PENDING"
	PenaltyApproved  PenaltyStatus = "APPROVED"
	PenaltyCancelled PenaltyStatus = "CANCELLED"
	PenaltyApplied   PenaltyStatus = "APPLIED"
)

// penaltyTransitions lists every allowed status change.
// APPLIED and CANCELLED are terminal.
var penaltyTransitions = map[PenaltyStatus][]PenaltyStatus{
	PenaltyPending:  {PenaltyApproved, PenaltyCancelled},
	PenaltyApproved: {PenaltyCancelled, PenaltyApplied},
}

// CanTransition reports whether from -> to is an allowed penalty status change.
func CanTransition(from, to PenaltyStatus) bool {
	for _, s := range penaltyTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AppliedPenalty is a disciplinary action generated from an overdue leave.
// DelayDays, PolicyID, PenaltyType, DeductionDays and SuspensionDays are
// snapshots taken at creation; later policy edits do not change them.
type AppliedPenalty struct {
	ID             PenaltyID
	LeaveID        LeaveID
	EmployeeID     EmployeeID
	DelayDays      int
	PolicyID       PolicyID
	PenaltyType    PenaltyType
	DeductionDays  int
	SuspensionDays int
	Status         PenaltyStatus

	CreatedBy  string
	ApprovedBy string
	ApprovedAt *time.Time

	IsCancelled  bool
	CancelReason string
	CancelledBy  string
	CancelledAt  *time.Time

	// Set together, once.
	IsAppliedToPayroll bool
	PayrollRecordID    string
	AppliedToPayrollAt *time.Time

	// ReplacesPenaltyID links a converted deduction to the suspension it replaced.
	ReplacesPenaltyID PenaltyID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Blocks reports whether p prevents another penalty for the same leave.
// APPLIED counts: a deduction consumed by payroll still answers the delay.
func (p AppliedPenalty) Blocks() bool {
	if p.IsCancelled {
		return false
	}
	switch p.Status {
	case PenaltyPending, PenaltyApproved, PenaltyApplied:
		return true
	}
	return false
}

// IsActiveSuspension reports an APPROVED, non-cancelled SUSPENSION.
func (p AppliedPenalty) IsActiveSuspension() bool {
	return p.PenaltyType == PenaltySuspension && p.Status == PenaltyApproved && !p.IsCancelled
}

// =============================================================================
// SCHEDULER RUNS
// =============================================================================

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// PenaltyRun is the audit record of one scheduler pass.
type PenaltyRun struct {
	ID          string
	Trigger     string // "schedule" or "manual"
	AsOf        Date
	Status      RunStatus
	Evaluated   int
	Created     int
	Failed      int
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}
