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
	JobMarkAbsent           = "attendance.mark-absent"
	JobMarkAbsentAfterShift = "attendance.mark-absent-after-shift"
	JobAutoCheckout         = "attendance.auto-checkout"
	JobAutoCancelOrders     = "orders.auto-cancel"
	absentNote              = "Auto-marked absent - no check-in record"
	absentAfterShiftNote    = "Auto-marked absent after shift - no check-in record by 17:00"
	autoCheckoutNote        = "Auto-checked out at end of day"
	autoCancelNote          = "auto-cancelled after pending timeout"
	jobActor                = "scheduler"
)

func jobContext(ctx context.Context, job string) context.Context {
	if _, ok := ActorFromContext(ctx); ok {
		return ctx
	}
	return WithActor(ctx, domain.Actor{Username: jobActor + ":" + job})
}

// MarkAbsentEmployees inserts an Absent row for every active employee with
// no attendance for the calendar date of now.
func (s *Service) MarkAbsentEmployees(ctx context.Context, now time.Time) (domain.JobResult, error) {
	return s.markAbsent(ctx, now, JobMarkAbsent, absentNote)
}

// MarkAbsentAfterShift is the early variant of MarkAbsentEmployees run
// after the day shift ends.
func (s *Service) MarkAbsentAfterShift(ctx context.Context, now time.Time) (domain.JobResult, error) {
	return s.markAbsent(ctx, now, JobMarkAbsentAfterShift, absentAfterShiftNote)
}

func (s *Service) markAbsent(ctx context.Context, now time.Time, job string, note string) (domain.JobResult, error) {
	result := domain.JobResult{Job: job, RanAt: now, Affected: []string{}}
	ctx = jobContext(ctx, job)
	date := domain.CalendarDate(now, s.policy.Location)

	employees, err := s.repo.ListEmployees(ctx, domain.EmployeeActive)
	if err != nil {
		return result, err
	}
	existing, err := s.repo.ListAttendance(ctx, domain.AttendanceFilter{From: &date, To: &date})
	if err != nil {
		return result, err
	}
	recorded := make(map[string]bool, len(existing))
	for _, row := range existing {
		recorded[row.EmployeeID] = true
	}

	for _, employee := range employees {
		if recorded[employee.ID] {
			result.Skipped++
			continue
		}
		row, err := s.repo.CreateAttendance(ctx, domain.Attendance{
			EmployeeID:    employee.ID,
			Date:          date,
			WorkingHours:  decimal.Zero,
			OvertimeHours: decimal.Zero,
			Status:        domain.AttendanceAbsent,
			Notes:         note,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		if err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				result.Skipped++
				continue
			}
			result.Failed++
			log.Printf("[attendance] WARN: %s employee=%s date=%s: %v", job, employee.ID, date.Format(time.DateOnly), err)
			continue
		}
		result.Affected = append(result.Affected, row.ID)
	}

	s.auditJob(ctx, "attendance_mark_absent", date, result)
	logJob(result)
	return result, nil
}

// AutoCheckoutEmployees closes every open record for the calendar date of
// now at the configured end-of-day time.
func (s *Service) AutoCheckoutEmployees(ctx context.Context, now time.Time) (domain.JobResult, error) {
	result := domain.JobResult{Job: JobAutoCheckout, RanAt: now, Affected: []string{}}
	ctx = jobContext(ctx, JobAutoCheckout)
	date := domain.CalendarDate(now, s.policy.Location)
	checkOut := s.policy.EndOfDay.On(date, s.policy.Location)

	rows, err := s.repo.ListAttendance(ctx, domain.AttendanceFilter{From: &date, To: &date})
	if err != nil {
		return result, err
	}
	for _, row := range rows {
		if row.CheckInTime == nil || row.CheckOutTime != nil {
			result.Skipped++
			continue
		}

		closed := row
		out := checkOut
		if out.Before(*row.CheckInTime) {
			out = *row.CheckInTime
		}
		closed.CheckOutTime = &out
		closed.WorkingHours, closed.OvertimeHours = domain.WorkedHours(*row.CheckInTime, out, s.policy.StandardWorkHours)
		closed.Notes = appendNote(row.Notes, autoCheckoutNote)
		closed.UpdatedAt = now

		if _, err := s.repo.CloseAttendance(ctx, closed); err != nil {
			if errors.Is(err, store.ErrInvalidRequest) {
				result.Skipped++
				continue
			}
			result.Failed++
			log.Printf("[attendance] WARN: %s attendance=%s: %v", JobAutoCheckout, row.ID, err)
			continue
		}
		result.Affected = append(result.Affected, row.ID)
	}

	s.auditJob(ctx, "attendance_auto_checkout", date, result)
	logJob(result)
	return result, nil
}

// AutoCancelExpiredOrders cancels PENDING orders placed before now minus
// the configured timeout. Consumed stock is not returned.
func (s *Service) AutoCancelExpiredOrders(ctx context.Context, now time.Time) (domain.JobResult, error) {
	result := domain.JobResult{Job: JobAutoCancelOrders, RanAt: now, Affected: []string{}}
	ctx = jobContext(ctx, JobAutoCancelOrders)
	cutoff := now.Add(-s.policy.OrderAutoCancelAfter)

	orders, err := s.repo.ListPendingOrdersBefore(ctx, cutoff)
	if err != nil {
		return result, err
	}
	for _, order := range orders {
		_, err := s.repo.UpdateOrderStatus(ctx, order.ID, domain.OrderPending, domain.OrderCancelled, now.UTC())
		if err != nil {
			if errors.Is(err, store.ErrInvalidRequest) || errors.Is(err, store.ErrNotFound) {
				result.Skipped++
				continue
			}
			result.Failed++
			log.Printf("[orders] WARN: %s order=%s: %v", JobAutoCancelOrders, order.ID, err)
			continue
		}
		s.logAudit(ctx, "order_status", "order", order.ID, fmt.Sprintf("%s->%s,%s", domain.OrderPending, domain.OrderCancelled, autoCancelNote))
		result.Affected = append(result.Affected, order.ID)
	}

	logJob(result)
	return result, nil
}

func appendNote(existing string, note string) string {
	existing = strings.TrimSpace(existing)
	if existing == "" {
		return note
	}
	return existing + "; " + note
}

// auditJob writes one summary row for a run that changed something.
func (s *Service) auditJob(ctx context.Context, action string, date time.Time, result domain.JobResult) {
	if len(result.Affected) == 0 {
		return
	}
	s.logAudit(ctx, action, "attendance", date.Format(time.DateOnly), fmt.Sprintf("job=%s,affected=%d,skipped=%d,failed=%d", result.Job, len(result.Affected), result.Skipped, result.Failed))
}

func logJob(result domain.JobResult) {
	if len(result.Affected) == 0 && result.Failed == 0 {
		return
	}
	log.Printf("[jobs] %s affected=%d skipped=%d failed=%d", result.Job, len(result.Affected), result.Skipped, result.Failed)
}
