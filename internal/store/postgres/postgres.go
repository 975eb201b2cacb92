package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"cafeops/backend/internal/domain"
	"cafeops/backend/internal/store"
	"cafeops/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

var _ store.Repository = (*Store)(nil)

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// where collects AND-ed predicates with positional arguments. Each clause
// carries one %d verb for its placeholder number.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, len(w.args)))
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (w *where) page(offset int, limit int) (string, []any) {
	args := append([]any{}, w.args...)
	if limit <= 0 {
		return "", args
	}
	args = append(args, limit, offset)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args
}

func pgCode(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

func isUniqueViolation(err error) bool {
	code, _ := pgCode(err)
	return code == "23505"
}

func isForeignKeyViolation(err error) bool {
	code, _ := pgCode(err)
	return code == "23503"
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	value := t.Time
	return &value
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}

func affectedOne(res sql.Result) (bool, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Employees

const employeeSelect = `
	SELECT e.id, e.full_name, e.position, e.phone, COALESCE(e.email, ''), e.hire_date, e.salary,
		e.status, COALESCE(u.username, ''), e.created_at, e.updated_at
	FROM employees e
	LEFT JOIN user_accounts u ON u.employee_id = e.id`

func scanEmployee(row rowScanner) (domain.Employee, error) {
	var employee domain.Employee
	var hireDate sql.NullTime
	err := row.Scan(
		&employee.ID, &employee.FullName, &employee.Position, &employee.Phone, &employee.Email,
		&hireDate, &employee.Salary, &employee.Status, &employee.Username, &employee.CreatedAt, &employee.UpdatedAt,
	)
	employee.HireDate = timePtr(hireDate)
	return employee, err
}

func employeeConflict(err error) error {
	_, constraint := pgCode(err)
	switch constraint {
	case "employees_email_key":
		return store.Duplicate("email is already in use")
	case "user_accounts_pkey":
		return store.Duplicate("username already exists")
	}
	return store.Duplicate("employee already exists")
}

func (s *Store) CreateEmployee(ctx context.Context, employee domain.Employee, account *domain.UserAccount) (*domain.Employee, error) {
	if employee.ID == "" {
		employee.ID = xid.New("emp")
	}
	if employee.CreatedAt.IsZero() {
		employee.CreatedAt = time.Now().UTC()
	}
	if employee.UpdatedAt.IsZero() {
		employee.UpdatedAt = employee.CreatedAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO employees (id, full_name, position, phone, email, hire_date, salary, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, employee.ID, employee.FullName, employee.Position, employee.Phone, nullString(employee.Email),
		nullTime(employee.HireDate), employee.Salary, employee.Status, employee.CreatedAt, employee.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, employeeConflict(err)
		}
		return nil, err
	}

	if account != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO user_accounts (username, password, employee_id, roles, active, created_at)
			VALUES (lower($1),$2,$3,$4,$5,$6)
		`, strings.TrimSpace(account.Username), account.Password, employee.ID,
			strings.Join(domain.RoleNames(account.Roles), ","), account.Active, employee.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, employeeConflict(err)
			}
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetEmployee(ctx, employee.ID)
}

func (s *Store) GetEmployee(ctx context.Context, id string) (*domain.Employee, error) {
	employee, err := scanEmployee(s.db.QueryRowContext(ctx, employeeSelect+` WHERE e.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.Missing("employee", id)
		}
		return nil, err
	}
	return &employee, nil
}

func (s *Store) ListEmployees(ctx context.Context, status string) ([]domain.Employee, error) {
	var w where
	if status != "" {
		w.add("lower(e.status) = lower($%d)", status)
	}
	rows, err := s.db.QueryContext(ctx, employeeSelect+w.String()+` ORDER BY e.full_name, e.id`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	employees := make([]domain.Employee, 0, 32)
	for rows.Next() {
		employee, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, employee)
	}
	return employees, rows.Err()
}

func (s *Store) UpdateEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error) {
	if employee.UpdatedAt.IsZero() {
		employee.UpdatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE employees
		SET full_name = $2, position = $3, phone = $4, email = $5, hire_date = $6, salary = $7, status = $8, updated_at = $9
		WHERE id = $1
	`, employee.ID, employee.FullName, employee.Position, employee.Phone, nullString(employee.Email),
		nullTime(employee.HireDate), employee.Salary, employee.Status, employee.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, employeeConflict(err)
		}
		return nil, err
	}
	if ok, err := affectedOne(res); err != nil {
		return nil, err
	} else if !ok {
		return nil, store.Missing("employee", employee.ID)
	}
	return s.GetEmployee(ctx, employee.ID)
}

func (s *Store) DeleteEmployee(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_accounts WHERE employee_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM employees WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.Invalid("employee has related records; mark the employee Inactive instead")
		}
		return err
	}
	if ok, err := affectedOne(res); err != nil {
		return err
	} else if !ok {
		return store.Missing("employee", id)
	}
	return tx.Commit()
}

// Users

func (s *Store) GetUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	var roles string
	err := s.db.QueryRowContext(ctx, `
		SELECT u.username, u.password, u.employee_id, u.roles,
		       u.active AND COALESCE(e.status, 'Active') = 'Active', u.created_at
		FROM user_accounts u
		LEFT JOIN employees e ON e.id = u.employee_id
		WHERE u.username = lower($1)
	`, strings.TrimSpace(username)).Scan(&user.Username, &user.Password, &user.EmployeeID, &roles, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.Missing("user", username)
		}
		return nil, err
	}
	for _, name := range strings.Split(roles, ",") {
		if role, ok := domain.ParseRole(name); ok {
			user.Roles = append(user.Roles, role)
		}
	}
	return &user, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE user_accounts SET password = $2 WHERE username = lower($1)`, strings.TrimSpace(username), password)
	if err != nil {
		return err
	}
	if ok, err := affectedOne(res); err != nil {
		return err
	} else if !ok {
		return store.Missing("user", username)
	}
	return nil
}

// Audit

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_employee_id, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorEmployeeID, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_employee_id, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorEmployeeID, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
