package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cafeops/backend/internal/domain"
	"cafeops/backend/internal/store"
)

// ResolveEmployee picks whose attendance an actor is acting on. Staff may
// only act on themselves; managers and admins may name anyone.
func ResolveEmployee(actor domain.Actor, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" || requested == actor.EmployeeID {
		if actor.EmployeeID == "" {
			return "", store.Invalid("employee_id is required")
		}
		return actor.EmployeeID, nil
	}
	if !actor.HasRole(domain.RoleAdmin, domain.RoleManager) {
		return "", ErrForbidden
	}
	return requested, nil
}

func (s *Service) CheckIn(ctx context.Context, employeeID string) (domain.Attendance, error) {
	if _, err := s.repo.GetEmployee(ctx, employeeID); err != nil {
		return domain.Attendance{}, err
	}

	now := s.now()
	date := domain.CalendarDate(now, s.policy.Location)
	if _, err := s.repo.FindAttendance(ctx, employeeID, date); err == nil {
		return domain.Attendance{}, store.Invalid("employee has already checked in today")
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Attendance{}, err
	}

	status := domain.AttendancePresent
	if s.policy.LateAfter.PassedBy(now, s.policy.Location) {
		status = domain.AttendanceLate
	}

	row, err := s.repo.CreateAttendance(ctx, domain.Attendance{
		EmployeeID:    employeeID,
		Date:          date,
		CheckInTime:   &now,
		WorkingHours:  decimal.Zero,
		OvertimeHours: decimal.Zero,
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.Attendance{}, store.Invalid("employee has already checked in today")
		}
		return domain.Attendance{}, err
	}
	return *row, nil
}

func (s *Service) CheckOut(ctx context.Context, employeeID string) (domain.Attendance, error) {
	if _, err := s.repo.GetEmployee(ctx, employeeID); err != nil {
		return domain.Attendance{}, err
	}

	now := s.now()
	row, err := s.repo.FindAttendance(ctx, employeeID, domain.CalendarDate(now, s.policy.Location))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Attendance{}, store.Invalid("no check-in record found for today")
		}
		return domain.Attendance{}, err
	}
	if row.CheckOutTime != nil {
		return domain.Attendance{}, store.Invalid("employee has already checked out today")
	}
	if row.CheckInTime == nil {
		return domain.Attendance{}, store.Invalid("no check-in record found for today")
	}

	closed := *row
	closed.CheckOutTime = &now
	closed.WorkingHours, closed.OvertimeHours = domain.WorkedHours(*row.CheckInTime, now, s.policy.StandardWorkHours)
	closed.UpdatedAt = now

	saved, err := s.repo.CloseAttendance(ctx, closed)
	if err != nil {
		return domain.Attendance{}, err
	}
	return *saved, nil
}

// UpsertAttendance lets a manager write the record for the calendar date of
// the check-in time, replacing whatever the employee recorded except a
// check-out the request leaves out.
func (s *Service) UpsertAttendance(ctx context.Context, req domain.AttendanceUpsertRequest) (domain.Attendance, error) {
	if strings.TrimSpace(req.EmployeeID) == "" {
		return domain.Attendance{}, store.Invalid("employee_id is required")
	}
	if req.CheckInTime.IsZero() {
		return domain.Attendance{}, store.Invalid("check_in_time is required")
	}
	if _, err := s.repo.GetEmployee(ctx, req.EmployeeID); err != nil {
		return domain.Attendance{}, err
	}

	status := domain.AttendancePresent
	if strings.TrimSpace(req.Status) != "" {
		normalized, ok := normalizeEnum(req.Status, domain.AttendancePresent, domain.AttendanceLate, domain.AttendanceAbsent)
		if !ok {
			return domain.Attendance{}, store.Invalid("status must be one of Present, Late, Absent")
		}
		status = normalized
	}

	checkIn := req.CheckInTime
	date := domain.CalendarDate(checkIn, s.policy.Location)
	row := domain.Attendance{
		EmployeeID:    req.EmployeeID,
		Date:          date,
		CheckInTime:   &checkIn,
		WorkingHours:  decimal.Zero,
		OvertimeHours: decimal.Zero,
		Status:        status,
		Notes:         strings.TrimSpace(req.Notes),
	}
	existing, err := s.repo.FindAttendance(ctx, req.EmployeeID, date)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.Attendance{}, err
	}

	// A missing check-out keeps the one already on the row.
	checkOut := req.CheckOutTime
	if checkOut == nil && existing != nil {
		checkOut = existing.CheckOutTime
	}
	if checkOut != nil {
		out := *checkOut
		if out.Before(checkIn) {
			return domain.Attendance{}, store.Invalid("check-out time cannot be before check-in time")
		}
		row.CheckOutTime = &out
		row.WorkingHours, row.OvertimeHours = domain.WorkedHours(checkIn, out, s.policy.StandardWorkHours)
	}

	now := s.now()
	row.UpdatedAt = now
	var saved *domain.Attendance
	if existing != nil {
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
		if row.Notes == "" {
			row.Notes = existing.Notes
		}
		saved, err = s.repo.UpdateAttendance(ctx, row)
	} else {
		row.CreatedAt = now
		saved, err = s.repo.CreateAttendance(ctx, row)
	}
	if err != nil {
		return domain.Attendance{}, err
	}

	s.logAudit(ctx, "attendance_upsert", "attendance", saved.ID, fmt.Sprintf("employee=%s,date=%s,status=%s", saved.EmployeeID, date.Format(time.DateOnly), saved.Status))
	return *saved, nil
}

func (s *Service) GetAttendance(ctx context.Context, id string) (domain.Attendance, error) {
	row, err := s.repo.GetAttendance(ctx, id)
	if err != nil {
		return domain.Attendance{}, err
	}
	return *row, nil
}

func (s *Service) TodayAttendance(ctx context.Context, employeeID string) (domain.Attendance, error) {
	row, err := s.repo.FindAttendance(ctx, employeeID, s.today())
	if err != nil {
		return domain.Attendance{}, err
	}
	return *row, nil
}

// ListEmployeeAttendance returns the employee's records, limited to the
// inclusive date range when from or to is given.
func (s *Service) ListEmployeeAttendance(ctx context.Context, employeeID string, from string, to string) ([]domain.Attendance, error) {
	fromDate, err := parseOptionalDate(from)
	if err != nil {
		return nil, err
	}
	toDate, err := parseOptionalDate(to)
	if err != nil {
		return nil, err
	}
	if fromDate != nil && toDate != nil && toDate.Before(*fromDate) {
		return nil, store.Invalid("to must not be before from")
	}
	if _, err := s.repo.GetEmployee(ctx, employeeID); err != nil {
		return nil, err
	}
	return s.repo.ListAttendance(ctx, domain.AttendanceFilter{EmployeeID: employeeID, From: fromDate, To: toDate})
}

func (s *Service) ListAttendanceByDate(ctx context.Context, date string) ([]domain.Attendance, error) {
	day := s.today()
	if strings.TrimSpace(date) != "" {
		parsed, err := parseDate(date)
		if err != nil {
			return nil, err
		}
		day = parsed
	}
	return s.repo.ListAttendance(ctx, domain.AttendanceFilter{From: &day, To: &day})
}

// TotalWorkingHours sums working hours in the inclusive range, defaulting
// to the current month.
func (s *Service) TotalWorkingHours(ctx context.Context, employeeID string, from string, to string) (decimal.Decimal, error) {
	today := s.today()
	start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	if parsed, err := parseOptionalDate(from); err != nil {
		return decimal.Zero, err
	} else if parsed != nil {
		start = *parsed
	}
	if parsed, err := parseOptionalDate(to); err != nil {
		return decimal.Zero, err
	} else if parsed != nil {
		end = *parsed
	}
	if end.Before(start) {
		return decimal.Zero, store.Invalid("to must not be before from")
	}
	if _, err := s.repo.GetEmployee(ctx, employeeID); err != nil {
		return decimal.Zero, err
	}
	total, err := s.repo.SumWorkingHours(ctx, employeeID, start, end)
	if err != nil {
		return decimal.Zero, err
	}
	return domain.Round2(total), nil
}

func (s *Service) DeleteAttendance(ctx context.Context, id string) error {
	if err := s.repo.DeleteAttendance(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "attendance_delete", "attendance", id, "deleted")
	return nil
}
