package monitoring

import (
	"time"

	"github.com/samber/lo"
)

// DateRange selects alerts created between the start of Start's day and
// the end of End's day, both inclusive
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the day-aligned range
func (d DateRange) Contains(t time.Time) bool {
	from := StartOfDay(d.Start)
	to := EndOfDay(d.End)
	return !t.Before(from) && !t.After(to)
}

// Criteria narrows an alert collection. Nil fields impose no constraint.
type Criteria struct {
	Status    *AlertStatus
	AlertType *AlertType
	DateRange *DateRange
}

// IsEmpty reports whether c matches every record
func (c Criteria) IsEmpty() bool {
	return c.Status == nil && c.AlertType == nil && c.DateRange == nil
}

// Matches reports whether r satisfies every present criterion
func (c Criteria) Matches(r AlertRecord) bool {
	if c.Status != nil && r.Status != *c.Status {
		return false
	}
	if c.AlertType != nil && r.AlertType != *c.AlertType {
		return false
	}
	if c.DateRange != nil && !c.DateRange.Contains(r.CreatedAt) {
		return false
	}
	return true
}

// Filter returns the records matching c, keeping their relative order
func Filter(records []AlertRecord, c Criteria) []AlertRecord {
	return lo.Filter(records, func(r AlertRecord, _ int) bool {
		return c.Matches(r)
	})
}

// Active returns the records that still need handling
func Active(records []AlertRecord) []AlertRecord {
	return lo.Filter(records, func(r AlertRecord, _ int) bool {
		return r.Status.IsActive()
	})
}

// StartOfDay returns midnight of t's day in t's location
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last representable instant of t's day in t's location
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
