// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/staffops/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu   sync.RWMutex
	data memoryData
}

type memoryData struct {
	employees map[generic.EmployeeID]generic.Employee
	leaves    map[generic.LeaveID]generic.Leave
	policies  map[generic.PolicyID]generic.DelayPenaltyPolicy
	penalties map[generic.PenaltyID]generic.AppliedPenalty
	runs      map[string]generic.PenaltyRun
}

func newMemoryData() memoryData {
	return memoryData{
		employees: make(map[generic.EmployeeID]generic.Employee),
		leaves:    make(map[generic.LeaveID]generic.Leave),
		policies:  make(map[generic.PolicyID]generic.DelayPenaltyPolicy),
		penalties: make(map[generic.PenaltyID]generic.AppliedPenalty),
		runs:      make(map[string]generic.PenaltyRun),
	}
}

func NewMemory() *Memory {
	return &Memory{data: newMemoryData()}
}

// Reset clears all data (for demo scenarios).
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = newMemoryData()
	return nil
}

func (m *Memory) GetEmployee(_ context.Context, id generic.EmployeeID) (generic.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getEmployee(id)
}

func (m *Memory) ListEmployees(_ context.Context) ([]generic.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.listEmployees(), nil
}

func (m *Memory) SaveEmployee(_ context.Context, emp generic.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.employees[emp.ID] = emp
	return nil
}

func (m *Memory) GetLeave(_ context.Context, id generic.LeaveID) (generic.Leave, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getLeave(id)
}

func (m *Memory) ListLeaves(_ context.Context, filter generic.LeaveFilter) ([]generic.Leave, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.listLeaves(filter), nil
}

func (m *Memory) SaveLeave(_ context.Context, leave generic.Leave) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.leaves[leave.ID] = leave
	return nil
}

func (m *Memory) ListPolicies(_ context.Context, activeOnly bool) ([]generic.DelayPenaltyPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.listPolicies(activeOnly), nil
}

func (m *Memory) SavePolicy(_ context.Context, policy generic.DelayPenaltyPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.policies[policy.ID] = policy
	return nil
}

func (m *Memory) GetPenalty(_ context.Context, id generic.PenaltyID) (generic.AppliedPenalty, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getPenalty(id)
}

func (m *Memory) ListPenalties(_ context.Context, filter generic.PenaltyFilter) ([]generic.AppliedPenalty, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.listPenalties(filter), nil
}

func (m *Memory) SavePenalty(_ context.Context, p generic.AppliedPenalty) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.penalties[p.ID] = p
	return nil
}

func (m *Memory) SaveRun(_ context.Context, run generic.PenaltyRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.runs[run.ID] = run
	return nil
}

func (m *Memory) ListRuns(_ context.Context, limit int) ([]generic.PenaltyRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.listRuns(limit), nil
}

// =============================================================================
// LOCK-FREE HELPERS - caller holds the lock
// =============================================================================

func (d *memoryData) getEmployee(id generic.EmployeeID) (generic.Employee, error) {
	emp, ok := d.employees[id]
	if !ok {
		return generic.Employee{}, generic.ErrEmployeeNotFound
	}
	return emp, nil
}

func (d *memoryData) listEmployees() []generic.Employee {
	result := make([]generic.Employee, 0, len(d.employees))
	for _, emp := range d.employees {
		result = append(result, emp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (d *memoryData) getLeave(id generic.LeaveID) (generic.Leave, error) {
	leave, ok := d.leaves[id]
	if !ok {
		return generic.Leave{}, generic.ErrLeaveNotFound
	}
	return leave, nil
}

func (d *memoryData) listLeaves(filter generic.LeaveFilter) []generic.Leave {
	var result []generic.Leave
	for _, l := range d.leaves {
		if filter.Matches(l) {
			result = append(result, l)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (d *memoryData) listPolicies(activeOnly bool) []generic.DelayPenaltyPolicy {
	var result []generic.DelayPenaltyPolicy
	for _, p := range d.policies {
		if activeOnly && !p.IsActive {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].DelayDaysThreshold != result[j].DelayDaysThreshold {
			return result[i].DelayDaysThreshold < result[j].DelayDaysThreshold
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (d *memoryData) getPenalty(id generic.PenaltyID) (generic.AppliedPenalty, error) {
	p, ok := d.penalties[id]
	if !ok {
		return generic.AppliedPenalty{}, generic.ErrPenaltyNotFound
	}
	return p, nil
}

func (d *memoryData) listPenalties(filter generic.PenaltyFilter) []generic.AppliedPenalty {
	var result []generic.AppliedPenalty
	for _, p := range d.penalties {
		if filter.Matches(p) {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (d *memoryData) listRuns(limit int) []generic.PenaltyRun {
	result := make([]generic.PenaltyRun, 0, len(d.runs))
	for _, r := range d.runs {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartedAt.After(result[j].StartedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

func (d *memoryData) clone() memoryData {
	c := newMemoryData()
	for k, v := range d.employees {
		c.employees[k] = v
	}
	for k, v := range d.leaves {
		c.leaves[k] = v
	}
	for k, v := range d.policies {
		c.policies[k] = v
	}
	for k, v := range d.penalties {
		c.penalties[k] = v
	}
	for k, v := range d.runs {
		c.runs[k] = v
	}
	return c
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The store is locked for the whole call, so fn must only use the Store it is given.
func (tm *TxMemory) WithTx(_ context.Context, fn func(generic.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.data.clone()
	if err := fn(&txMemoryView{data: &tm.data}); err != nil {
		tm.data = snapshot
		return err
	}
	return nil
}

type txMemoryView struct {
	data *memoryData
}

func (tv *txMemoryView) GetEmployee(_ context.Context, id generic.EmployeeID) (generic.Employee, error) {
	return tv.data.getEmployee(id)
}

func (tv *txMemoryView) ListEmployees(_ context.Context) ([]generic.Employee, error) {
	return tv.data.listEmployees(), nil
}

func (tv *txMemoryView) SaveEmployee(_ context.Context, emp generic.Employee) error {
	tv.data.employees[emp.ID] = emp
	return nil
}

func (tv *txMemoryView) GetLeave(_ context.Context, id generic.LeaveID) (generic.Leave, error) {
	return tv.data.getLeave(id)
}

func (tv *txMemoryView) ListLeaves(_ context.Context, filter generic.LeaveFilter) ([]generic.Leave, error) {
	return tv.data.listLeaves(filter), nil
}

func (tv *txMemoryView) SaveLeave(_ context.Context, leave generic.Leave) error {
	tv.data.leaves[leave.ID] = leave
	return nil
}

func (tv *txMemoryView) ListPolicies(_ context.Context, activeOnly bool) ([]generic.DelayPenaltyPolicy, error) {
	return tv.data.listPolicies(activeOnly), nil
}

func (tv *txMemoryView) SavePolicy(_ context.Context, policy generic.DelayPenaltyPolicy) error {
	tv.data.policies[policy.ID] = policy
	return nil
}

func (tv *txMemoryView) GetPenalty(_ context.Context, id generic.PenaltyID) (generic.AppliedPenalty, error) {
	return tv.data.getPenalty(id)
}

func (tv *txMemoryView) ListPenalties(_ context.Context, filter generic.PenaltyFilter) ([]generic.AppliedPenalty, error) {
	return tv.data.listPenalties(filter), nil
}

func (tv *txMemoryView) SavePenalty(_ context.Context, p generic.AppliedPenalty) error {
	tv.data.penalties[p.ID] = p
	return nil
}

func (tv *txMemoryView) SaveRun(_ context.Context, run generic.PenaltyRun) error {
	tv.data.runs[run.ID] = run
	return nil
}

func (tv *txMemoryView) ListRuns(_ context.Context, limit int) ([]generic.PenaltyRun, error) {
	return tv.data.listRuns(limit), nil
}
