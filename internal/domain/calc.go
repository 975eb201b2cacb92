package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Round2 rounds half away from zero to two decimals, which equals half-up
// for the non-negative amounts handled here.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// CalendarDate returns the calendar day of t in loc as midnight UTC.
func CalendarDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AtLocalTime returns the instant on the given calendar date at hh:mm in loc.
func AtLocalTime(date time.Time, hour, minute int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, loc)
}

// WorkedHours returns the whole minutes between in and out as hours rounded
// to two decimals, plus overtime beyond standardHours.
func WorkedHours(in, out time.Time, standardHours decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	minutes := int64(out.Sub(in) / time.Minute)
	if minutes < 0 {
		minutes = 0
	}
	raw := decimal.NewFromInt(minutes).Div(decimal.NewFromInt(60))
	overtime := decimal.Zero
	if raw.GreaterThan(standardHours) {
		overtime = raw.Sub(standardHours)
	}
	return Round2(raw), Round2(overtime)
}

// TimeOfDay is a wall-clock time without a date, like 08:15.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	parsed, err := time.Parse("15:04", raw)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("time of day %q must be HH:MM: %w", raw, err)
	}
	return TimeOfDay{Hour: parsed.Hour(), Minute: parsed.Minute()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On returns the instant at this time of day on the given calendar date.
func (t TimeOfDay) On(date time.Time, loc *time.Location) time.Time {
	return AtLocalTime(date, t.Hour, t.Minute, loc)
}

// PassedBy reports whether the wall-clock time of instant in loc is
// strictly after t.
func (t TimeOfDay) PassedBy(instant time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	local := instant.In(loc)
	threshold := time.Date(local.Year(), local.Month(), local.Day(), t.Hour, t.Minute, 0, 0, loc)
	return local.After(threshold)
}
