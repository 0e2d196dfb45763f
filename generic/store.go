/*
store.go - Persistence interfaces for the engine

PURPOSE:
  Defines the boundary between domain logic and storage. The engine assumes
  atomic read-then-write per record; the only multi-record write (penalty
  approval + employee suspension, suspension lift) goes through WithTx.

KEY INTERFACES:
  EmployeeStore: employee reads, forecast cache and status writes
  LeaveStore:    leave records (filtering by domain predicate happens in timeoff/)
  PolicyStore:   delay penalty tiers
  PenaltyStore:  applied penalties
  RunStore:      scheduler run history
  TxStore:       all of the above plus WithTx

NOT FOUND:
  Get* methods return the matching ErrXxxNotFound sentinel rather than nil.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - generic/store/memory.go: in-memory for tests

SEE ALSO:
  - types.go: record definitions
*/
package generic

import "context"

// =============================================================================
// FILTERS
// =============================================================================

// LeaveFilter narrows ListLeaves. Zero value returns every leave.
type LeaveFilter struct {
	EmployeeID EmployeeID
	OpenOnly   bool // ActualReturnDate is null
	ActiveOnly bool // IsActive
}

// PenaltyFilter narrows ListPenalties. Zero value returns every penalty.
type PenaltyFilter struct {
	EmployeeID  EmployeeID
	LeaveID     LeaveID
	PenaltyType PenaltyType
	Statuses    []PenaltyStatus
}

// Matches applies the filter in memory.
func (f PenaltyFilter) Matches(p AppliedPenalty) bool {
	if f.EmployeeID != "" && p.EmployeeID != f.EmployeeID {
		return false
	}
	if f.LeaveID != "" && p.LeaveID != f.LeaveID {
		return false
	}
	if f.PenaltyType != "" && p.PenaltyType != f.PenaltyType {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if p.Status == s {
			return true
		}
	}
	return false
}

// Matches applies the filter in memory.
func (f LeaveFilter) Matches(l Leave) bool {
	if f.EmployeeID != "" && l.EmployeeID != f.EmployeeID {
		return false
	}
	if f.OpenOnly && !l.IsOpen() {
		return false
	}
	if f.ActiveOnly && !l.IsActive {
		return false
	}
	return true
}

// =============================================================================
// STORES
// =============================================================================

type EmployeeStore interface {
	GetEmployee(ctx context.Context, id EmployeeID) (Employee, error)
	ListEmployees(ctx context.Context) ([]Employee, error)
	SaveEmployee(ctx context.Context, emp Employee) error
}

type LeaveStore interface {
	GetLeave(ctx context.Context, id LeaveID) (Leave, error)
	ListLeaves(ctx context.Context, filter LeaveFilter) ([]Leave, error)
	SaveLeave(ctx context.Context, leave Leave) error
}

type PolicyStore interface {
	// ListPolicies returns tiers ordered by threshold ascending.
	ListPolicies(ctx context.Context, activeOnly bool) ([]DelayPenaltyPolicy, error)
	SavePolicy(ctx context.Context, policy DelayPenaltyPolicy) error
}

type PenaltyStore interface {
	GetPenalty(ctx context.Context, id PenaltyID) (AppliedPenalty, error)
	// ListPenalties returns matches ordered by CreatedAt ascending.
	ListPenalties(ctx context.Context, filter PenaltyFilter) ([]AppliedPenalty, error)
	// SavePenalty inserts or replaces by ID.
	SavePenalty(ctx context.Context, p AppliedPenalty) error
}

type RunStore interface {
	SaveRun(ctx context.Context, run PenaltyRun) error
	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]PenaltyRun, error)
}

// Store is the full persistence surface.
type Store interface {
	EmployeeStore
	LeaveStore
	PolicyStore
	PenaltyStore
	RunStore
}

// TxStore wraps Store with transaction support.
// If fn returns an error, every write made through the Store passed to fn
// is rolled back.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
