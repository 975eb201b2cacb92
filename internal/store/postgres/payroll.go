package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"cafeops/backend/internal/domain"
	"cafeops/backend/internal/store"
	"cafeops/backend/internal/xid"
)

const salarySelect = `
	SELECT s.id, s.employee_id, e.full_name, s.month, s.year, s.base_salary, s.bonus, s.deduction,
		s.total_salary, s.status, s.payment_date, s.notes, s.created_at, s.updated_at
	FROM salaries s
	JOIN employees e ON e.id = s.employee_id`

func scanSalary(row rowScanner) (domain.Salary, error) {
	var sal domain.Salary
	var paidAt sql.NullTime
	err := row.Scan(&sal.ID, &sal.EmployeeID, &sal.EmployeeName, &sal.Month, &sal.Year, &sal.BaseSalary, &sal.Bonus,
		&sal.Deduction, &sal.TotalSalary, &sal.Status, &paidAt, &sal.Notes, &sal.CreatedAt, &sal.UpdatedAt)
	sal.PaymentDate = timePtr(paidAt)
	return sal, err
}

func (s *Store) CreateSalary(ctx context.Context, sal domain.Salary) (*domain.Salary, error) {
	if sal.ID == "" {
		sal.ID = xid.New("sal")
	}
	if sal.CreatedAt.IsZero() {
		sal.CreatedAt = time.Now().UTC()
	}
	if sal.UpdatedAt.IsZero() {
		sal.UpdatedAt = sal.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO salaries (id, employee_id, month, year, base_salary, bonus, deduction, total_salary, status, payment_date, notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, sal.ID, sal.EmployeeID, sal.Month, sal.Year, sal.BaseSalary, sal.Bonus, sal.Deduction, sal.TotalSalary,
		sal.Status, nullTime(sal.PaymentDate), sal.Notes, sal.CreatedAt, sal.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.Duplicate("salary already exists for employee %s in %02d/%d", sal.EmployeeID, sal.Month, sal.Year)
		}
		if isForeignKeyViolation(err) {
			return nil, store.Missing("employee", sal.EmployeeID)
		}
		return nil, err
	}
	return s.GetSalary(ctx, sal.ID)
}

func (s *Store) GetSalary(ctx context.Context, id string) (*domain.Salary, error) {
	sal, err := scanSalary(s.db.QueryRowContext(ctx, salarySelect+` WHERE s.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.Missing("salary", id)
		}
		return nil, err
	}
	return &sal, nil
}

func (s *Store) FindSalary(ctx context.Context, employeeID string, month int, year int) (*domain.Salary, error) {
	sal, err := scanSalary(s.db.QueryRowContext(ctx, salarySelect+` WHERE s.employee_id = $1 AND s.month = $2 AND s.year = $3`, employeeID, month, year))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.Missing("salary for employee", employeeID)
		}
		return nil, err
	}
	return &sal, nil
}

func (s *Store) ListSalaries(ctx context.Context, filter domain.SalaryFilter) ([]domain.Salary, error) {
	var w where
	if filter.EmployeeID != "" {
		w.add("s.employee_id = $%d", filter.EmployeeID)
	}
	if filter.Month != 0 {
		w.add("s.month = $%d", filter.Month)
	}
	if filter.Year != 0 {
		w.add("s.year = $%d", filter.Year)
	}
	if filter.Status != "" {
		w.add("s.status = $%d", filter.Status)
	}
	rows, err := s.db.QueryContext(ctx, salarySelect+w.String()+` ORDER BY s.year DESC, s.month DESC, e.full_name`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Salary, 0, 32)
	for rows.Next() {
		sal, err := scanSalary(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sal)
	}
	return result, rows.Err()
}

// updateSalary locks the row, rejects Paid salaries and writes the amounts.
// It returns the row as it was before the write.
func updateSalary(ctx context.Context, tx *sql.Tx, sal domain.Salary) (domain.Salary, error) {
	if sal.UpdatedAt.IsZero() {
		sal.UpdatedAt = time.Now().UTC()
	}
	var previous domain.Salary
	err := tx.QueryRowContext(ctx, `
		SELECT base_salary, bonus, deduction, total_salary, status
		FROM salaries
		WHERE id = $1
		FOR UPDATE
	`, sal.ID).Scan(&previous.BaseSalary, &previous.Bonus, &previous.Deduction, &previous.TotalSalary, &previous.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Salary{}, store.Missing("salary", sal.ID)
		}
		return domain.Salary{}, err
	}
	if previous.Status == domain.SalaryPaid {
		return domain.Salary{}, store.Invalid("paid salary cannot be modified")
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE salaries
		SET base_salary = $2, bonus = $3, deduction = $4, total_salary = $5, notes = $6, updated_at = $7
		WHERE id = $1
	`, sal.ID, sal.BaseSalary, sal.Bonus, sal.Deduction, sal.TotalSalary, sal.Notes, sal.UpdatedAt)
	return previous, err
}

func (s *Store) UpdateSalary(ctx context.Context, sal domain.Salary) (*domain.Salary, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := updateSalary(ctx, tx, sal); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSalary(ctx, sal.ID)
}

func (s *Store) UpdateSalaryWithHistory(ctx context.Context, sal domain.Salary, history domain.SalaryHistory) (*domain.Salary, error) {
	if history.ID == "" {
		history.ID = xid.New("shx")
	}
	if history.ChangeDate.IsZero() {
		history.ChangeDate = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	previous, err := updateSalary(ctx, tx, sal)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO salary_history (
			id, salary_id, changed_by, change_date,
			old_base_salary, new_base_salary, old_bonus, new_bonus,
			old_deduction, new_deduction, old_total_salary, new_total_salary, note
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, history.ID, sal.ID, history.ChangedBy, history.ChangeDate,
		previous.BaseSalary, history.NewBaseSalary, previous.Bonus, history.NewBonus,
		previous.Deduction, history.NewDeduction, previous.TotalSalary, history.NewTotalSalary, history.Note)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.Missing("employee", history.ChangedBy)
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSalary(ctx, sal.ID)
}

func (s *Store) MarkSalaryPaid(ctx context.Context, id string, at time.Time) (*domain.Salary, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE salaries SET status = $2, payment_date = $3, updated_at = $3
		WHERE id = $1 AND status <> $2
	`, id, domain.SalaryPaid, at)
	if err != nil {
		return nil, err
	}
	if ok, err := affectedOne(res); err != nil {
		return nil, err
	} else if !ok {
		if _, err := s.GetSalary(ctx, id); err != nil {
			return nil, err
		}
		return nil, store.Invalid("salary has already been marked as paid")
	}
	return s.GetSalary(ctx, id)
}

func (s *Store) DeleteSalary(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM salaries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ok, err := affectedOne(res); err != nil {
		return err
	} else if !ok {
		return store.Missing("salary", id)
	}
	return nil
}

func (s *Store) ListSalaryHistory(ctx context.Context, salaryID string) ([]domain.SalaryHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, salary_id, changed_by, change_date,
			old_base_salary, new_base_salary, old_bonus, new_bonus,
			old_deduction, new_deduction, old_total_salary, new_total_salary, note
		FROM salary_history
		WHERE salary_id = $1
		ORDER BY change_date DESC
	`, salaryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.SalaryHistory, 0, 8)
	for rows.Next() {
		var h domain.SalaryHistory
		if err := rows.Scan(&h.ID, &h.SalaryID, &h.ChangedBy, &h.ChangeDate,
			&h.OldBaseSalary, &h.NewBaseSalary, &h.OldBonus, &h.NewBonus,
			&h.OldDeduction, &h.NewDeduction, &h.OldTotalSalary, &h.NewTotalSalary, &h.Note); err != nil {
			return nil, err
		}
		result = append(result, h)
	}
	return result, rows.Err()
}

func (s *Store) SumPaidSalaries(ctx context.Context, month int, year int) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_salary), 0)
		FROM salaries
		WHERE month = $1 AND year = $2 AND status = $3
	`, month, year, domain.SalaryPaid).Scan(&total)
	return total, err
}
