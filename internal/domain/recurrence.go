package domain

import (
	"fmt"
	"time"
)

// Frequency is the closed set of supported recurrence frequencies.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// Valid reports whether f is one of the supported frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// Recurrence describes how a task or appointment repeats.
//
// Dates are civil dates (YYYY-MM-DD, no timezone conversion). DayOfWeek and
// DayOfMonth are anchors that keep "every Tuesday" / "the 15th of each month"
// stable even when the expansion cursor would otherwise drift.
type Recurrence struct {
	Frequency  Frequency `json:"frequency"`
	EndDate    string    `json:"endDate,omitempty"`    // YYYY-MM-DD, inclusive
	DayOfWeek  *int      `json:"dayOfWeek,omitempty"`  // 0=Sunday .. 6=Saturday
	DayOfMonth *int      `json:"dayOfMonth,omitempty"` // 1-31, clamped to month length
}

// Validate rejects inconsistent recurrence configuration at construction time
// so the expansion loop never sees a frequency it cannot advance.
func (r *Recurrence) Validate() error {
	if !r.Frequency.Valid() {
		return fmt.Errorf("unknown frequency %q", r.Frequency)
	}
	if r.EndDate != "" {
		if _, err := ParseDate(r.EndDate); err != nil {
			return fmt.Errorf("invalid endDate %q: %w", r.EndDate, err)
		}
	}
	if r.DayOfWeek != nil && (*r.DayOfWeek < 0 || *r.DayOfWeek > 6) {
		return fmt.Errorf("dayOfWeek %d out of range 0-6", *r.DayOfWeek)
	}
	if r.DayOfMonth != nil && (*r.DayOfMonth < 1 || *r.DayOfMonth > 31) {
		return fmt.Errorf("dayOfMonth %d out of range 1-31", *r.DayOfMonth)
	}
	return nil
}

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// ParseDate parses a civil date (YYYY-MM-DD) into a wall-clock midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

// FormatDate renders a time as a civil date (YYYY-MM-DD).
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// ParseTimeOfDay validates a wall-clock time of day (HH:MM).
func ParseTimeOfDay(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// CombineDateTime builds the local instant for a civil date + time of day.
func CombineDateTime(date, timeOfDay string, loc *time.Location) (time.Time, error) {
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	tod, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", timeOfDay, err)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), tod.Hour(), tod.Minute(), 0, 0, loc), nil
}
