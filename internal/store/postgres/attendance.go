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

const attendanceSelect = `
	SELECT a.id, a.employee_id, e.full_name, a.date, a.check_in_time, a.check_out_time,
		a.working_hours, a.overtime_hours, a.status, a.notes, a.created_at, a.updated_at
	FROM attendance a
	JOIN employees e ON e.id = a.employee_id`

func scanAttendance(row rowScanner) (domain.Attendance, error) {
	var a domain.Attendance
	var checkIn, checkOut sql.NullTime
	err := row.Scan(
		&a.ID, &a.EmployeeID, &a.EmployeeName, &a.Date, &checkIn, &checkOut,
		&a.WorkingHours, &a.OvertimeHours, &a.Status, &a.Notes, &a.CreatedAt, &a.UpdatedAt,
	)
	a.Date = domain.CalendarDate(a.Date, time.UTC)
	a.CheckInTime = timePtr(checkIn)
	a.CheckOutTime = timePtr(checkOut)
	return a, err
}

func attendanceWriteError(err error, a domain.Attendance) error {
	if isUniqueViolation(err) {
		return store.Duplicate("attendance already recorded for employee %s on %s", a.EmployeeID, a.Date.Format(time.DateOnly))
	}
	if isForeignKeyViolation(err) {
		return store.Missing("employee", a.EmployeeID)
	}
	return err
}

func (s *Store) CreateAttendance(ctx context.Context, a domain.Attendance) (*domain.Attendance, error) {
	if a.ID == "" {
		a.ID = xid.New("att")
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance (id, employee_id, date, check_in_time, check_out_time, working_hours, overtime_hours, status, notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, a.ID, a.EmployeeID, a.Date, nullTime(a.CheckInTime), nullTime(a.CheckOutTime),
		a.WorkingHours, a.OvertimeHours, a.Status, a.Notes, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return nil, attendanceWriteError(err, a)
	}
	return s.GetAttendance(ctx, a.ID)
}

func (s *Store) UpdateAttendance(ctx context.Context, a domain.Attendance) (*domain.Attendance, error) {
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE attendance
		SET employee_id = $2, date = $3, check_in_time = $4, check_out_time = $5,
			working_hours = $6, overtime_hours = $7, status = $8, notes = $9, updated_at = $10
		WHERE id = $1
	`, a.ID, a.EmployeeID, a.Date, nullTime(a.CheckInTime), nullTime(a.CheckOutTime),
		a.WorkingHours, a.OvertimeHours, a.Status, a.Notes, a.UpdatedAt)
	if err != nil {
		return nil, attendanceWriteError(err, a)
	}
	if ok, err := affectedOne(res); err != nil {
		return nil, err
	} else if !ok {
		return nil, store.Missing("attendance", a.ID)
	}
	return s.GetAttendance(ctx, a.ID)
}

func (s *Store) CloseAttendance(ctx context.Context, a domain.Attendance) (*domain.Attendance, error) {
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE attendance
		SET check_out_time = $2, working_hours = $3, overtime_hours = $4, notes = $5, updated_at = $6
		WHERE id = $1 AND check_out_time IS NULL
	`, a.ID, nullTime(a.CheckOutTime), a.WorkingHours, a.OvertimeHours, a.Notes, a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if ok, err := affectedOne(res); err != nil {
		return nil, err
	} else if !ok {
		if _, err := s.GetAttendance(ctx, a.ID); err != nil {
			return nil, err
		}
		return nil, store.Invalid("employee has already checked out today")
	}
	return s.GetAttendance(ctx, a.ID)
}

func (s *Store) GetAttendance(ctx context.Context, id string) (*domain.Attendance, error) {
	a, err := scanAttendance(s.db.QueryRowContext(ctx, attendanceSelect+` WHERE a.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.Missing("attendance", id)
		}
		return nil, err
	}
	return &a, nil
}

func (s *Store) FindAttendance(ctx context.Context, employeeID string, date time.Time) (*domain.Attendance, error) {
	a, err := scanAttendance(s.db.QueryRowContext(ctx, attendanceSelect+` WHERE a.employee_id = $1 AND a.date = $2`, employeeID, date))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.Missing("attendance for employee", employeeID)
		}
		return nil, err
	}
	return &a, nil
}

func (s *Store) ListAttendance(ctx context.Context, filter domain.AttendanceFilter) ([]domain.Attendance, error) {
	var w where
	if filter.EmployeeID != "" {
		w.add("a.employee_id = $%d", filter.EmployeeID)
	}
	if filter.From != nil {
		w.add("a.date >= $%d", *filter.From)
	}
	if filter.To != nil {
		w.add("a.date <= $%d", *filter.To)
	}
	rows, err := s.db.QueryContext(ctx, attendanceSelect+w.String()+` ORDER BY a.date, e.full_name`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Attendance, 0, 32)
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *Store) SumWorkingHours(ctx context.Context, employeeID string, from time.Time, to time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(working_hours), 0)
		FROM attendance
		WHERE employee_id = $1 AND date BETWEEN $2 AND $3
	`, employeeID, from, to).Scan(&total)
	return total, err
}

func (s *Store) DeleteAttendance(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM attendance WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ok, err := affectedOne(res); err != nil {
		return err
	} else if !ok {
		return store.Missing("attendance", id)
	}
	return nil
}
