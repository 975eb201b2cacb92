package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cafeops/backend/internal/domain"
	"cafeops/backend/internal/store"
)

const (
	autoSalaryNote     = "Auto-calculated based on attendance"
	defaultHistoryNote = "Bonus and deductions updated"
)

func validatePeriod(month int, year int) error {
	if month < 1 || month > 12 {
		return store.Invalid("month must be between 1 and 12")
	}
	if year < 2000 {
		return store.Invalid("year must be 2000 or later")
	}
	return nil
}

// monthBounds returns the first and last calendar dates of the month.
func monthBounds(month int, year int) (time.Time, time.Time) {
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return first, first.AddDate(0, 1, -1)
}

// computeSalary derives one month's pay from the attendance rows.
func (s *Service) computeSalary(employee domain.Employee, rows []domain.Attendance) (base, bonus, deduction decimal.Decimal) {
	hours := decimal.Zero
	overtime := decimal.Zero
	absentDays := int64(0)
	for _, row := range rows {
		if row.Status == domain.AttendanceAbsent {
			absentDays++
			continue
		}
		hours = hours.Add(row.WorkingHours)
		overtime = overtime.Add(row.OvertimeHours)
	}

	rate := s.policy.HourlyRate
	if employee.Salary.Valid {
		base = domain.Round2(employee.Salary.Decimal)
	} else {
		base = domain.Round2(hours.Mul(rate))
	}
	bonus = domain.Round2(overtime.Mul(rate).Mul(s.policy.OvertimeMultiplier))
	daily := domain.Round2(base.Div(decimal.NewFromInt(int64(s.policy.StandardWorkDays))))
	deduction = domain.Round2(daily.Mul(decimal.NewFromInt(absentDays)))
	return base, bonus, deduction
}

// CalculateMonthlySalaries creates a Pending salary for every active
// employee without one for the period and returns only the new rows.
func (s *Service) CalculateMonthlySalaries(ctx context.Context, month int, year int) ([]domain.Salary, error) {
	if err := validatePeriod(month, year); err != nil {
		return nil, err
	}
	employees, err := s.repo.ListEmployees(ctx, domain.EmployeeActive)
	if err != nil {
		return nil, err
	}
	from, to := monthBounds(month, year)

	created := make([]domain.Salary, 0, len(employees))
	for _, employee := range employees {
		if _, err := s.repo.FindSalary(ctx, employee.ID, month, year); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			log.Printf("[payroll] WARN: lookup salary employee=%s period=%02d/%d: %v", employee.ID, month, year, err)
			continue
		}

		rows, err := s.repo.ListAttendance(ctx, domain.AttendanceFilter{EmployeeID: employee.ID, From: &from, To: &to})
		if err != nil {
			log.Printf("[payroll] WARN: load attendance employee=%s period=%02d/%d: %v", employee.ID, month, year, err)
			continue
		}
		base, bonus, deduction := s.computeSalary(employee, rows)

		now := s.now().UTC()
		salary := domain.Salary{
			EmployeeID: employee.ID,
			Month:      month,
			Year:       year,
			BaseSalary: base,
			Bonus:      bonus,
			Deduction:  deduction,
			Status:     domain.SalaryPending,
			Notes:      autoSalaryNote,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		salary.Recalculate()

		saved, err := s.repo.CreateSalary(ctx, salary)
		if err != nil {
			if !errors.Is(err, store.ErrDuplicate) {
				log.Printf("[payroll] WARN: create salary employee=%s period=%02d/%d: %v", employee.ID, month, year, err)
			}
			continue
		}
		created = append(created, *saved)
	}

	if len(created) > 0 {
		s.logAudit(ctx, "salary_calculate", "salary", fmt.Sprintf("%04d-%02d", year, month), fmt.Sprintf("created=%d", len(created)))
	}
	return created, nil
}

// UpdateSalaryAdjustments replaces bonus and deduction and records the
// change. ChangedBy defaults to the acting employee.
func (s *Service) UpdateSalaryAdjustments(ctx context.Context, id string, req domain.SalaryAdjustmentRequest) (domain.Salary, error) {
	bonus := decimalOrZero(req.Bonus)
	deduction := decimalOrZero(req.Deduction)
	if bonus.IsNegative() || deduction.IsNegative() {
		return domain.Salary{}, store.Invalid("bonus and deduction must not be negative")
	}

	changedBy := strings.TrimSpace(req.ChangedBy)
	if changedBy == "" {
		if actor, ok := ActorFromContext(ctx); ok {
			changedBy = actor.EmployeeID
		}
	}
	if changedBy == "" {
		return domain.Salary{}, store.Invalid("changed_by is required")
	}

	current, err := s.repo.GetSalary(ctx, id)
	if err != nil {
		return domain.Salary{}, err
	}
	if current.Status == domain.SalaryPaid {
		return domain.Salary{}, store.Invalid("paid salary cannot be adjusted")
	}
	if _, err := s.repo.GetEmployee(ctx, changedBy); err != nil {
		return domain.Salary{}, err
	}

	// The store re-checks the status under its lock and records the old
	// amounts from the row it replaces.
	now := s.now().UTC()
	updated := *current
	updated.Bonus = domain.Round2(bonus)
	updated.Deduction = domain.Round2(deduction)
	updated.Recalculate()
	updated.UpdatedAt = now

	note := strings.TrimSpace(req.Note)
	if note == "" {
		note = defaultHistoryNote
	}
	saved, err := s.repo.UpdateSalaryWithHistory(ctx, updated, domain.SalaryHistory{
		SalaryID:       current.ID,
		ChangedBy:      changedBy,
		ChangeDate:     now,
		NewBaseSalary:  updated.BaseSalary,
		NewBonus:       updated.Bonus,
		NewDeduction:   updated.Deduction,
		NewTotalSalary: updated.TotalSalary,
		Note:           note,
	})
	if err != nil {
		return domain.Salary{}, err
	}

	s.logAudit(ctx, "salary_adjust", "salary", saved.ID, fmt.Sprintf("bonus=%s,deduction=%s,total=%s", saved.Bonus, saved.Deduction, saved.TotalSalary))
	return *saved, nil
}

// CreateOrUpdateSalary writes a salary by hand for an employee and period.
// The total is always derived and paid rows cannot be changed.
func (s *Service) CreateOrUpdateSalary(ctx context.Context, req domain.SalaryUpsertRequest) (domain.Salary, error) {
	if err := validatePeriod(req.Month, req.Year); err != nil {
		return domain.Salary{}, err
	}
	bonus := decimalOrZero(req.Bonus)
	deduction := decimalOrZero(req.Deduction)
	if req.BaseSalary.IsNegative() || bonus.IsNegative() || deduction.IsNegative() {
		return domain.Salary{}, store.Invalid("salary amounts must not be negative")
	}
	if _, err := s.repo.GetEmployee(ctx, req.EmployeeID); err != nil {
		return domain.Salary{}, err
	}

	now := s.now().UTC()
	existing, err := s.repo.FindSalary(ctx, req.EmployeeID, req.Month, req.Year)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.Salary{}, err
	}

	if existing == nil {
		salary := domain.Salary{
			EmployeeID: req.EmployeeID,
			Month:      req.Month,
			Year:       req.Year,
			BaseSalary: domain.Round2(req.BaseSalary),
			Bonus:      domain.Round2(bonus),
			Deduction:  domain.Round2(deduction),
			Status:     domain.SalaryPending,
			Notes:      strings.TrimSpace(req.Notes),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		salary.Recalculate()
		saved, err := s.repo.CreateSalary(ctx, salary)
		if err != nil {
			return domain.Salary{}, err
		}
		s.logAudit(ctx, "salary_create", "salary", saved.ID, fmt.Sprintf("total=%s", saved.TotalSalary))
		return *saved, nil
	}

	if existing.Status == domain.SalaryPaid {
		return domain.Salary{}, store.Invalid("paid salary cannot be modified")
	}
	updated := *existing
	updated.BaseSalary = domain.Round2(req.BaseSalary)
	updated.Bonus = domain.Round2(bonus)
	updated.Deduction = domain.Round2(deduction)
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		updated.Notes = notes
	}
	updated.Recalculate()
	updated.UpdatedAt = now

	var saved *domain.Salary
	actor, _ := ActorFromContext(ctx)
	if actor.EmployeeID != "" {
		saved, err = s.repo.UpdateSalaryWithHistory(ctx, updated, domain.SalaryHistory{
			SalaryID:       existing.ID,
			ChangedBy:      actor.EmployeeID,
			ChangeDate:     now,
			NewBaseSalary:  updated.BaseSalary,
			NewBonus:       updated.Bonus,
			NewDeduction:   updated.Deduction,
			NewTotalSalary: updated.TotalSalary,
			Note:           "Salary updated manually",
		})
	} else {
		saved, err = s.repo.UpdateSalary(ctx, updated)
	}
	if err != nil {
		return domain.Salary{}, err
	}

	s.logAudit(ctx, "salary_update", "salary", saved.ID, fmt.Sprintf("total=%s", saved.TotalSalary))
	return *saved, nil
}

func (s *Service) MarkAsPaid(ctx context.Context, id string) (domain.Salary, error) {
	saved, err := s.repo.MarkSalaryPaid(ctx, id, s.now().UTC())
	if err != nil {
		return domain.Salary{}, err
	}
	s.logAudit(ctx, "salary_paid", "salary", saved.ID, fmt.Sprintf("total=%s", saved.TotalSalary))
	return *saved, nil
}

// MarkMultipleAsPaid pays each id independently and returns the ones that
// succeeded.
func (s *Service) MarkMultipleAsPaid(ctx context.Context, ids []string) ([]domain.Salary, error) {
	if len(ids) == 0 {
		return nil, store.Invalid("ids must not be empty")
	}
	paid := make([]domain.Salary, 0, len(ids))
	for _, id := range ids {
		saved, err := s.MarkAsPaid(ctx, id)
		if err != nil {
			log.Printf("[payroll] WARN: mark salary %s paid: %v", id, err)
			continue
		}
		paid = append(paid, saved)
	}
	return paid, nil
}

func (s *Service) TotalSalaryPaid(ctx context.Context, month int, year int) (decimal.Decimal, error) {
	if err := validatePeriod(month, year); err != nil {
		return decimal.Zero, err
	}
	total, err := s.repo.SumPaidSalaries(ctx, month, year)
	if err != nil {
		return decimal.Zero, err
	}
	return domain.Round2(total), nil
}

func (s *Service) GetSalary(ctx context.Context, id string) (domain.Salary, error) {
	salary, err := s.repo.GetSalary(ctx, id)
	if err != nil {
		return domain.Salary{}, err
	}
	return *salary, nil
}

func (s *Service) ListSalaries(ctx context.Context, filter domain.SalaryFilter) ([]domain.Salary, error) {
	if filter.Month != 0 && (filter.Month < 1 || filter.Month > 12) {
		return nil, store.Invalid("month must be between 1 and 12")
	}
	if strings.TrimSpace(filter.Status) != "" {
		status, ok := normalizeEnum(filter.Status, domain.SalaryPending, domain.SalaryPaid)
		if !ok {
			return nil, store.Invalid("status must be Pending or Paid")
		}
		filter.Status = status
	}
	return s.repo.ListSalaries(ctx, filter)
}

func (s *Service) SalaryHistory(ctx context.Context, id string) ([]domain.SalaryHistory, error) {
	if _, err := s.repo.GetSalary(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListSalaryHistory(ctx, id)
}

func (s *Service) DeleteSalary(ctx context.Context, id string) error {
	if err := s.repo.DeleteSalary(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "salary_delete", "salary", id, "deleted")
	return nil
}
