// Package recurrence expands recurring tasks and appointments into the
// concrete dates they fall on within a display window.
package recurrence

import (
	"fmt"
	"time"

	"github.com/2kPi/OpenFamily/internal/domain"
)

// maxIterations bounds a single expansion. EndDate is optional and callers
// may pass a wide window; a misconfigured entity must not spin forever.
const maxIterations = 4000

// Entity is the minimal recurring shape shared by tasks and appointments.
type Entity struct {
	AnchorDate string // YYYY-MM-DD, first occurrence
	AnchorTime string // HH:MM, optional (tasks may omit it)
	Recurring  *domain.Recurrence
}

// Occurrence is one concrete calendar manifestation of an entity. It is a
// derived value that only lives for the duration of an expansion call.
type Occurrence struct {
	Date string `json:"date"` // YYYY-MM-DD
	Time string `json:"time,omitempty"`
}

// FromTask adapts a task to the expandable shape.
func FromTask(t *domain.Task) Entity {
	return Entity{AnchorDate: t.DueDate, AnchorTime: t.DueTime, Recurring: t.Recurring}
}

// FromAppointment adapts an appointment to the expandable shape.
func FromAppointment(a *domain.Appointment) Entity {
	return Entity{AnchorDate: a.Date, AnchorTime: a.Time, Recurring: a.Recurring}
}

// Expand returns the occurrences of e within [windowStart, windowEnd], both
// inclusive. It is a pure function of its inputs.
//
// A non-recurring entity yields its single occurrence unconditionally; the
// caller decides whether it belongs to the window. For recurring entities the
// cursor starts at the anchor date and advances per frequency until it passes
// the recurrence end date or the window end, whichever comes first.
func Expand(e Entity, windowStart, windowEnd time.Time) ([]Occurrence, error) {
	if e.Recurring == nil {
		return []Occurrence{{Date: e.AnchorDate, Time: e.AnchorTime}}, nil
	}
	if err := e.Recurring.Validate(); err != nil {
		return nil, fmt.Errorf("expand: %w", err)
	}

	anchor, err := domain.ParseDate(e.AnchorDate)
	if err != nil {
		return nil, fmt.Errorf("expand: invalid anchor date %q: %w", e.AnchorDate, err)
	}

	recurEnd := windowEnd
	if e.Recurring.EndDate != "" {
		// Already validated above.
		recurEnd, _ = domain.ParseDate(e.Recurring.EndDate)
	}

	var occurrences []Occurrence
	cursor := anchor
	for iter := 0; !cursor.After(recurEnd) && !cursor.After(windowEnd) && iter < maxIterations; iter++ {
		if !cursor.Before(windowStart) {
			occurrences = append(occurrences, Occurrence{Date: domain.FormatDate(cursor), Time: e.AnchorTime})
		}
		next, err := advance(cursor, anchor, e.Recurring)
		if err != nil {
			return nil, fmt.Errorf("expand: %w", err)
		}
		cursor = next
	}
	return occurrences, nil
}

// advance moves the cursor to the next occurrence date. It always moves
// forward by at least one day, so expansion terminates even when the window
// is wide open.
func advance(cursor, anchor time.Time, rec *domain.Recurrence) (time.Time, error) {
	switch rec.Frequency {
	case domain.FrequencyDaily:
		return cursor.AddDate(0, 0, 1), nil

	case domain.FrequencyWeekly:
		if rec.DayOfWeek == nil {
			return cursor.AddDate(0, 0, 7), nil
		}
		// Next occurrence of the target weekday strictly after the cursor:
		// if the cursor already sits on it, skip a full week so the same
		// date is never emitted twice.
		daysToAdd := (*rec.DayOfWeek - int(cursor.Weekday()) + 7) % 7
		if daysToAdd == 0 {
			daysToAdd = 7
		}
		return cursor.AddDate(0, 0, daysToAdd), nil

	case domain.FrequencyMonthly:
		targetDay := anchor.Day()
		if rec.DayOfMonth != nil {
			targetDay = *rec.DayOfMonth
		}
		return nextMonthDay(cursor, targetDay), nil

	case domain.FrequencyYearly:
		return cursor.AddDate(1, 0, 0), nil
	}
	return time.Time{}, fmt.Errorf("unknown frequency %q", rec.Frequency)
}

// nextMonthDay returns targetDay in the month after the cursor's, clamped to
// the length of that month. The clamp is recomputed every call because month
// lengths vary (28/29/30/31).
func nextMonthDay(cursor time.Time, targetDay int) time.Time {
	year, month := cursor.Year(), cursor.Month()+1
	if month > time.December {
		year, month = year+1, time.January
	}
	day := targetDay
	if last := DaysInMonth(month, year); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, cursor.Location())
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(month time.Month, year int) int {
	firstOfNext := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1).Day()
}
