/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements generic.TxStore using SQLite. In production the same patterns
  apply to PostgreSQL with minor dialect differences.

KEY TABLES:
  employees:          staff records (cycle config, anchors, forecast cache, status)
  leaves:             leave records, soft-deleted via is_active
  penalty_policies:   delay tiers
  applied_penalties:  penalties with their review and payroll audit trail
  penalty_runs:       scheduler run history

NOTHING IS DELETED:
  Rows are upserted by id. Only Reset (demo data) removes rows.

STORAGE FORMATS:
  Dates:      TEXT "2006-01-02"
  Timestamps: TEXT, UTC, fixed-width nanoseconds so ORDER BY sorts by time
  Nullable:   NULL for unset dates, cycle lengths and timestamps

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Public methods lock; the query
  helpers take a querier (db or tx) and never lock, so the Store handed to
  WithTx can be used freely inside fn.

USAGE:
  store, err := sqlite.New("./data/staffops.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/warp/staffops/generic"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements generic.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var _ generic.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL"
	if dbPath == ":memory:" {
		dsn = "file::memory:?_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// Every connection to :memory: is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to migrate database")
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		hire_date TEXT NOT NULL,
		work_days_per_cycle INTEGER,
		leave_days_per_cycle INTEGER,
		has_custom_cycle INTEGER NOT NULL DEFAULT 0,
		last_leave_start_date TEXT,
		last_leave_end_date TEXT,
		next_leave_start_date TEXT,
		next_leave_end_date TEXT,
		employment_status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leaves (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		total_days INTEGER NOT NULL,
		status TEXT NOT NULL,
		actual_return_date TEXT,
		settlement_type TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leaves_employee
		ON leaves(employee_id);
	-- Hot path: overdue / awaiting-return scans only look at open rows
	CREATE INDEX IF NOT EXISTS idx_leaves_open
		ON leaves(end_date) WHERE actual_return_date IS NULL AND is_active = 1;

	CREATE TABLE IF NOT EXISTS penalty_policies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		delay_days_threshold INTEGER NOT NULL,
		penalty_type TEXT NOT NULL,
		deduction_days INTEGER NOT NULL DEFAULT 0,
		suspension_days INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS applied_penalties (
		id TEXT PRIMARY KEY,
		leave_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		delay_days INTEGER NOT NULL,
		policy_id TEXT NOT NULL,
		penalty_type TEXT NOT NULL,
		deduction_days INTEGER NOT NULL DEFAULT 0,
		suspension_days INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		created_by TEXT NOT NULL DEFAULT '',
		approved_by TEXT NOT NULL DEFAULT '',
		approved_at TEXT,
		is_cancelled INTEGER NOT NULL DEFAULT 0,
		cancel_reason TEXT NOT NULL DEFAULT '',
		cancelled_by TEXT NOT NULL DEFAULT '',
		cancelled_at TEXT,
		is_applied_to_payroll INTEGER NOT NULL DEFAULT 0,
		payroll_record_id TEXT NOT NULL DEFAULT '',
		applied_to_payroll_at TEXT,
		replaces_penalty_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Uniqueness guard lookup
	CREATE INDEX IF NOT EXISTS idx_penalties_leave
		ON applied_penalties(leave_id);
	-- Payroll and suspension lookups
	CREATE INDEX IF NOT EXISTS idx_penalties_employee_status
		ON applied_penalties(employee_id, status, penalty_type);

	CREATE TABLE IF NOT EXISTS penalty_runs (
		id TEXT PRIMARY KEY,
		trigger_kind TEXT NOT NULL,
		as_of TEXT NOT NULL,
		status TEXT NOT NULL,
		evaluated INTEGER NOT NULL DEFAULT 0,
		created INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_penalty_runs_started
		ON penalty_runs(started_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// EMPLOYEES
// =============================================================================

const employeeColumns = `id, name, is_active, hire_date, work_days_per_cycle, leave_days_per_cycle,
	has_custom_cycle, last_leave_start_date, last_leave_end_date, next_leave_start_date,
	next_leave_end_date, employment_status, created_at, updated_at`

func (s *Store) GetEmployee(ctx context.Context, id generic.EmployeeID) (generic.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEmployee(ctx, s.db, id)
}

func (s *Store) ListEmployees(ctx context.Context) ([]generic.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listEmployees(ctx, s.db)
}

func (s *Store) SaveEmployee(ctx context.Context, emp generic.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveEmployee(ctx, s.db, emp)
}

func getEmployee(ctx context.Context, q querier, id generic.EmployeeID) (generic.Employee, error) {
	row := q.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = ?`, id)
	emp, err := scanEmployee(row)
	if err == sql.ErrNoRows {
		return generic.Employee{}, generic.ErrEmployeeNotFound
	}
	if err != nil {
		return generic.Employee{}, errors.Wrapf(err, "get employee %s", id)
	}
	return emp, nil
}

func listEmployees(ctx context.Context, q querier) ([]generic.Employee, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+employeeColumns+` FROM employees ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "list employees")
	}
	defer rows.Close()

	var result []generic.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan employee")
		}
		result = append(result, emp)
	}
	return result, rows.Err()
}

func saveEmployee(ctx context.Context, q querier, emp generic.Employee) error {
	_, err := q.ExecContext(ctx, `
		INSERT OR REPLACE INTO employees (`+employeeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		emp.ID,
		emp.Name,
		emp.IsActive,
		emp.HireDate.String(),
		nullInt(emp.WorkDaysPerCycle),
		nullInt(emp.LeaveDaysPerCycle),
		emp.HasCustomCycle,
		nullDate(emp.LastLeaveStartDate),
		nullDate(emp.LastLeaveEndDate),
		nullDate(emp.NextLeaveStartDate),
		nullDate(emp.NextLeaveEndDate),
		emp.EmploymentStatus,
		formatTime(emp.CreatedAt),
		formatTime(emp.UpdatedAt),
	)
	return errors.Wrapf(err, "save employee %s", emp.ID)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row scanner) (generic.Employee, error) {
	var (
		emp                                    generic.Employee
		hire, status, created, updated         string
		work, leave                            sql.NullInt64
		lastStart, lastEnd, nextStart, nextEnd sql.NullString
	)
	err := row.Scan(&emp.ID, &emp.Name, &emp.IsActive, &hire, &work, &leave,
		&emp.HasCustomCycle, &lastStart, &lastEnd, &nextStart, &nextEnd,
		&status, &created, &updated)
	if err != nil {
		return generic.Employee{}, err
	}

	emp.EmploymentStatus = generic.EmploymentStatus(status)
	emp.WorkDaysPerCycle = intPtr(work)
	emp.LeaveDaysPerCycle = intPtr(leave)
	if emp.HireDate, err = generic.ParseDate(hire); err != nil {
		return generic.Employee{}, err
	}
	for _, f := range []struct {
		src sql.NullString
		dst **generic.Date
	}{
		{lastStart, &emp.LastLeaveStartDate},
		{lastEnd, &emp.LastLeaveEndDate},
		{nextStart, &emp.NextLeaveStartDate},
		{nextEnd, &emp.NextLeaveEndDate},
	} {
		if *f.dst, err = parseNullDate(f.src); err != nil {
			return generic.Employee{}, err
		}
	}
	emp.CreatedAt = parseTime(created)
	emp.UpdatedAt = parseTime(updated)
	return emp, nil
}

// =============================================================================
// LEAVES
// =============================================================================

const leaveColumns = `id, employee_id, start_date, end_date, total_days, status,
	actual_return_date, settlement_type, is_active, created_at, updated_at`

func (s *Store) GetLeave(ctx context.Context, id generic.LeaveID) (generic.Leave, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getLeave(ctx, s.db, id)
}

func (s *Store) ListLeaves(ctx context.Context, filter generic.LeaveFilter) ([]generic.Leave, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listLeaves(ctx, s.db, filter)
}

func (s *Store) SaveLeave(ctx context.Context, leave generic.Leave) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveLeave(ctx, s.db, leave)
}

func getLeave(ctx context.Context, q querier, id generic.LeaveID) (generic.Leave, error) {
	row := q.QueryRowContext(ctx, `SELECT `+leaveColumns+` FROM leaves WHERE id = ?`, id)
	leave, err := scanLeave(row)
	if err == sql.ErrNoRows {
		return generic.Leave{}, generic.ErrLeaveNotFound
	}
	if err != nil {
		return generic.Leave{}, errors.Wrapf(err, "get leave %s", id)
	}
	return leave, nil
}

func listLeaves(ctx context.Context, q querier, filter generic.LeaveFilter) ([]generic.Leave, error) {
	var (
		where []string
		args  []any
	)
	if filter.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, filter.EmployeeID)
	}
	if filter.OpenOnly {
		where = append(where, "actual_return_date IS NULL")
	}
	if filter.ActiveOnly {
		where = append(where, "is_active = 1")
	}

	query := `SELECT ` + leaveColumns + ` FROM leaves` + whereClause(where) + ` ORDER BY created_at, id`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list leaves")
	}
	defer rows.Close()

	var result []generic.Leave
	for rows.Next() {
		leave, err := scanLeave(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan leave")
		}
		result = append(result, leave)
	}
	return result, rows.Err()
}

func saveLeave(ctx context.Context, q querier, l generic.Leave) error {
	_, err := q.ExecContext(ctx, `
		INSERT OR REPLACE INTO leaves (`+leaveColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID,
		l.EmployeeID,
		l.StartDate.String(),
		l.EndDate.String(),
		l.TotalDays,
		l.Status,
		nullDate(l.ActualReturnDate),
		l.SettlementType,
		l.IsActive,
		formatTime(l.CreatedAt),
		formatTime(l.UpdatedAt),
	)
	return errors.Wrapf(err, "save leave %s", l.ID)
}

func scanLeave(row scanner) (generic.Leave, error) {
	var (
		l                                                generic.Leave
		start, end, status, settlement, created, updated string
		returned                                         sql.NullString
	)
	err := row.Scan(&l.ID, &l.EmployeeID, &start, &end, &l.TotalDays, &status,
		&returned, &settlement, &l.IsActive, &created, &updated)
	if err != nil {
		return generic.Leave{}, err
	}
	if l.StartDate, err = generic.ParseDate(start); err != nil {
		return generic.Leave{}, err
	}
	if l.EndDate, err = generic.ParseDate(end); err != nil {
		return generic.Leave{}, err
	}
	if l.ActualReturnDate, err = parseNullDate(returned); err != nil {
		return generic.Leave{}, err
	}
	l.Status = generic.LeaveStatus(status)
	l.SettlementType = generic.SettlementType(settlement)
	l.CreatedAt = parseTime(created)
	l.UpdatedAt = parseTime(updated)
	return l, nil
}

// =============================================================================
// POLICIES
// =============================================================================

func (s *Store) ListPolicies(ctx context.Context, activeOnly bool) ([]generic.DelayPenaltyPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPolicies(ctx, s.db, activeOnly)
}

func (s *Store) SavePolicy(ctx context.Context, p generic.DelayPenaltyPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return savePolicy(ctx, s.db, p)
}

func listPolicies(ctx context.Context, q querier, activeOnly bool) ([]generic.DelayPenaltyPolicy, error) {
	query := `
		SELECT id, name, delay_days_threshold, penalty_type, deduction_days, suspension_days,
		       is_active, created_at, updated_at
		FROM penalty_policies`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY delay_days_threshold, id`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "list policies")
	}
	defer rows.Close()

	var result []generic.DelayPenaltyPolicy
	for rows.Next() {
		var (
			p                    generic.DelayPenaltyPolicy
			pt, created, updated string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.DelayDaysThreshold, &pt, &p.DeductionDays,
			&p.SuspensionDays, &p.IsActive, &created, &updated); err != nil {
			return nil, errors.Wrap(err, "scan policy")
		}
		p.PenaltyType = generic.PenaltyType(pt)
		p.CreatedAt = parseTime(created)
		p.UpdatedAt = parseTime(updated)
		result = append(result, p)
	}
	return result, rows.Err()
}

func savePolicy(ctx context.Context, q querier, p generic.DelayPenaltyPolicy) error {
	_, err := q.ExecContext(ctx, `
		INSERT OR REPLACE INTO penalty_policies
		(id, name, delay_days_threshold, penalty_type, deduction_days, suspension_days,
		 is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.DelayDaysThreshold, p.PenaltyType, p.DeductionDays, p.SuspensionDays,
		p.IsActive, formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	return errors.Wrapf(err, "save policy %s", p.ID)
}

// =============================================================================
// APPLIED PENALTIES
// =============================================================================

const penaltyColumns = `id, leave_id, employee_id, delay_days, policy_id, penalty_type,
	deduction_days, suspension_days, status, created_by, approved_by, approved_at,
	is_cancelled, cancel_reason, cancelled_by, cancelled_at, is_applied_to_payroll,
	payroll_record_id, applied_to_payroll_at, replaces_penalty_id, created_at, updated_at`

func (s *Store) GetPenalty(ctx context.Context, id generic.PenaltyID) (generic.AppliedPenalty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPenalty(ctx, s.db, id)
}

func (s *Store) ListPenalties(ctx context.Context, filter generic.PenaltyFilter) ([]generic.AppliedPenalty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPenalties(ctx, s.db, filter)
}

func (s *Store) SavePenalty(ctx context.Context, p generic.AppliedPenalty) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return savePenalty(ctx, s.db, p)
}

func getPenalty(ctx context.Context, q querier, id generic.PenaltyID) (generic.AppliedPenalty, error) {
	row := q.QueryRowContext(ctx, `SELECT `+penaltyColumns+` FROM applied_penalties WHERE id = ?`, id)
	p, err := scanPenalty(row)
	if err == sql.ErrNoRows {
		return generic.AppliedPenalty{}, generic.ErrPenaltyNotFound
	}
	if err != nil {
		return generic.AppliedPenalty{}, errors.Wrapf(err, "get penalty %s", id)
	}
	return p, nil
}

func listPenalties(ctx context.Context, q querier, filter generic.PenaltyFilter) ([]generic.AppliedPenalty, error) {
	var (
		where []string
		args  []any
	)
	if filter.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, filter.EmployeeID)
	}
	if filter.LeaveID != "" {
		where = append(where, "leave_id = ?")
		args = append(args, filter.LeaveID)
	}
	if filter.PenaltyType != "" {
		where = append(where, "penalty_type = ?")
		args = append(args, filter.PenaltyType)
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			marks[i] = "?"
			args = append(args, st)
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}

	query := `SELECT ` + penaltyColumns + ` FROM applied_penalties` + whereClause(where) + ` ORDER BY created_at, id`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list penalties")
	}
	defer rows.Close()

	var result []generic.AppliedPenalty
	for rows.Next() {
		p, err := scanPenalty(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan penalty")
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func savePenalty(ctx context.Context, q querier, p generic.AppliedPenalty) error {
	_, err := q.ExecContext(ctx, `
		INSERT OR REPLACE INTO applied_penalties (`+penaltyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.LeaveID,
		p.EmployeeID,
		p.DelayDays,
		p.PolicyID,
		p.PenaltyType,
		p.DeductionDays,
		p.SuspensionDays,
		p.Status,
		p.CreatedBy,
		p.ApprovedBy,
		nullTime(p.ApprovedAt),
		p.IsCancelled,
		p.CancelReason,
		p.CancelledBy,
		nullTime(p.CancelledAt),
		p.IsAppliedToPayroll,
		p.PayrollRecordID,
		nullTime(p.AppliedToPayrollAt),
		p.ReplacesPenaltyID,
		formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
	)
	return errors.Wrapf(err, "save penalty %s", p.ID)
}

func scanPenalty(row scanner) (generic.AppliedPenalty, error) {
	var (
		p                                generic.AppliedPenalty
		pt, status, created, updated     string
		approvedAt, cancelledAt, applied sql.NullString
	)
	err := row.Scan(&p.ID, &p.LeaveID, &p.EmployeeID, &p.DelayDays, &p.PolicyID, &pt,
		&p.DeductionDays, &p.SuspensionDays, &status, &p.CreatedBy, &p.ApprovedBy, &approvedAt,
		&p.IsCancelled, &p.CancelReason, &p.CancelledBy, &cancelledAt, &p.IsAppliedToPayroll,
		&p.PayrollRecordID, &applied, &p.ReplacesPenaltyID, &created, &updated)
	if err != nil {
		return generic.AppliedPenalty{}, err
	}
	p.PenaltyType = generic.PenaltyType(pt)
	p.Status = generic.PenaltyStatus(status)
	p.ApprovedAt = parseNullTime(approvedAt)
	p.CancelledAt = parseNullTime(cancelledAt)
	p.AppliedToPayrollAt = parseNullTime(applied)
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	return p, nil
}

// =============================================================================
// PENALTY RUNS
// =============================================================================

func (s *Store) SaveRun(ctx context.Context, run generic.PenaltyRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveRun(ctx, s.db, run)
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]generic.PenaltyRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRuns(ctx, s.db, limit)
}

func saveRun(ctx context.Context, q querier, r generic.PenaltyRun) error {
	_, err := q.ExecContext(ctx, `
		INSERT OR REPLACE INTO penalty_runs
		(id, trigger_kind, as_of, status, evaluated, created, failed, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Trigger, r.AsOf.String(), r.Status, r.Evaluated, r.Created, r.Failed, r.Error,
		formatTime(r.StartedAt), nullTime(r.CompletedAt),
	)
	return errors.Wrapf(err, "save run %s", r.ID)
}

func listRuns(ctx context.Context, q querier, limit int) ([]generic.PenaltyRun, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.QueryContext(ctx, `
		SELECT id, trigger_kind, as_of, status, evaluated, created, failed, error, started_at, completed_at
		FROM penalty_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	defer rows.Close()

	var result []generic.PenaltyRun
	for rows.Next() {
		var (
			r                     generic.PenaltyRun
			asOf, status, started string
			completed             sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Trigger, &asOf, &status, &r.Evaluated, &r.Created,
			&r.Failed, &r.Error, &started, &completed); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		if r.AsOf, err = generic.ParseDate(asOf); err != nil {
			return nil, err
		}
		r.Status = generic.RunStatus(status)
		r.StartedAt = parseTime(started)
		r.CompletedAt = parseNullTime(completed)
		result = append(result, r)
	}
	return result, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return errors.Wrap(sqlTx.Commit(), "commit")
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetEmployee(ctx context.Context, id generic.EmployeeID) (generic.Employee, error) {
	return getEmployee(ctx, ts.tx, id)
}

func (ts *txStore) ListEmployees(ctx context.Context) ([]generic.Employee, error) {
	return listEmployees(ctx, ts.tx)
}

func (ts *txStore) SaveEmployee(ctx context.Context, emp generic.Employee) error {
	return saveEmployee(ctx, ts.tx, emp)
}

func (ts *txStore) GetLeave(ctx context.Context, id generic.LeaveID) (generic.Leave, error) {
	return getLeave(ctx, ts.tx, id)
}

func (ts *txStore) ListLeaves(ctx context.Context, filter generic.LeaveFilter) ([]generic.Leave, error) {
	return listLeaves(ctx, ts.tx, filter)
}

func (ts *txStore) SaveLeave(ctx context.Context, leave generic.Leave) error {
	return saveLeave(ctx, ts.tx, leave)
}

func (ts *txStore) ListPolicies(ctx context.Context, activeOnly bool) ([]generic.DelayPenaltyPolicy, error) {
	return listPolicies(ctx, ts.tx, activeOnly)
}

func (ts *txStore) SavePolicy(ctx context.Context, p generic.DelayPenaltyPolicy) error {
	return savePolicy(ctx, ts.tx, p)
}

func (ts *txStore) GetPenalty(ctx context.Context, id generic.PenaltyID) (generic.AppliedPenalty, error) {
	return getPenalty(ctx, ts.tx, id)
}

func (ts *txStore) ListPenalties(ctx context.Context, filter generic.PenaltyFilter) ([]generic.AppliedPenalty, error) {
	return listPenalties(ctx, ts.tx, filter)
}

func (ts *txStore) SavePenalty(ctx context.Context, p generic.AppliedPenalty) error {
	return savePenalty(ctx, ts.tx, p)
}

func (ts *txStore) SaveRun(ctx context.Context, run generic.PenaltyRun) error {
	return saveRun(ctx, ts.tx, run)
}

func (ts *txStore) ListRuns(ctx context.Context, limit int) ([]generic.PenaltyRun, error) {
	return listRuns(ctx, ts.tx, limit)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for demo scenarios).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"applied_penalties", "penalty_runs", "leaves", "employees", "penalty_policies"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return errors.Wrapf(err, "reset %s", table)
		}
	}
	return nil
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func nullDate(d *generic.Date) sql.NullString {
	if d == nil || d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDate(s sql.NullString) (*generic.Date, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := generic.ParseDate(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
