package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cafeops/backend/internal/clock"
	"cafeops/backend/internal/domain"
	"cafeops/backend/internal/store"
	"cafeops/backend/internal/xid"
)

// ErrForbidden is returned when the actor may not act on another
// employee's records.
var ErrForbidden = errors.New("forbidden")

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Policy holds the business constants for attendance, payroll, reporting
// and order expiry.
type Policy struct {
	Location             *time.Location
	LateAfter            domain.TimeOfDay
	EndOfDay             domain.TimeOfDay
	StandardWorkHours    decimal.Decimal
	HourlyRate           decimal.Decimal
	OvertimeMultiplier   decimal.Decimal
	StandardWorkDays     int
	ReportProrationDays  int
	OrderAutoCancelAfter time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Location:             time.UTC,
		LateAfter:            domain.TimeOfDay{Hour: 8, Minute: 15},
		EndOfDay:             domain.TimeOfDay{Hour: 23, Minute: 59},
		StandardWorkHours:    decimal.NewFromInt(8),
		HourlyRate:           decimal.NewFromInt(50000),
		OvertimeMultiplier:   decimal.NewFromFloat(1.5),
		StandardWorkDays:     22,
		ReportProrationDays:  30,
		OrderAutoCancelAfter: 60 * time.Minute,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.Location == nil {
		p.Location = def.Location
	}
	if p.LateAfter == (domain.TimeOfDay{}) {
		p.LateAfter = def.LateAfter
	}
	if p.EndOfDay == (domain.TimeOfDay{}) {
		p.EndOfDay = def.EndOfDay
	}
	if !p.StandardWorkHours.IsPositive() {
		p.StandardWorkHours = def.StandardWorkHours
	}
	if !p.HourlyRate.IsPositive() {
		p.HourlyRate = def.HourlyRate
	}
	if !p.OvertimeMultiplier.IsPositive() {
		p.OvertimeMultiplier = def.OvertimeMultiplier
	}
	if p.StandardWorkDays < 1 {
		p.StandardWorkDays = def.StandardWorkDays
	}
	if p.ReportProrationDays < 1 {
		p.ReportProrationDays = def.ReportProrationDays
	}
	if p.OrderAutoCancelAfter <= 0 {
		p.OrderAutoCancelAfter = def.OrderAutoCancelAfter
	}
	return p
}

type Service struct {
	repo   store.Repository
	clock  clock.Clock
	policy Policy
}

func New(repo store.Repository, clk clock.Clock, policy Policy) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Service{
		repo:   repo,
		clock:  clk,
		policy: policy.withDefaults(),
	}
}

func (s *Service) Policy() Policy {
	return s.policy
}

func (s *Service) now() time.Time {
	return s.clock.Now()
}

func (s *Service) today() time.Time {
	return domain.CalendarDate(s.now(), s.policy.Location)
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().Add(-24 * time.Hour)
	} else {
		day, err := parseDate(date)
		if err != nil {
			return nil, err
		}
		from = domain.AtLocalTime(day, 0, 0, s.policy.Location)
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:              xid.New("audit"),
		ActorUsername:   actor.Username,
		ActorEmployeeID: actor.EmployeeID,
		Action:          action,
		EntityType:      entityType,
		EntityID:        entityID,
		Detail:          detail,
		CreatedAt:       s.now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

// pageWindow turns a 0-based page and size into offset and limit.
func pageWindow(page int, size int) (int, int, int, int) {
	if page < 0 {
		page = 0
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page * size, size, page, size
}

func parseDate(raw string) (time.Time, error) {
	parsed, err := time.Parse(time.DateOnly, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, store.Invalid("date %q must be YYYY-MM-DD", raw)
	}
	return parsed, nil
}

func parseOptionalDate(raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	day, err := parseDate(raw)
	if err != nil {
		return nil, err
	}
	return &day, nil
}

// normalizeEnum matches raw case-insensitively against allowed and returns
// the canonical spelling.
func normalizeEnum(raw string, allowed ...string) (string, bool) {
	raw = strings.TrimSpace(raw)
	for _, value := range allowed {
		if strings.EqualFold(raw, value) {
			return value, true
		}
	}
	return "", false
}

func decimalOrZero(value *decimal.Decimal) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return *value
}
