// Package calendar exports a family's appointments as an iCalendar feed.
package calendar

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"

	"github.com/2kPi/OpenFamily/internal/domain"
)

// rrule-go weekdays indexed by civil day-of-week (0=Sunday).
var rruleWeekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

var rruleFrequencies = map[domain.Frequency]rrule.Frequency{
	domain.FrequencyDaily:   rrule.DAILY,
	domain.FrequencyWeekly:  rrule.WEEKLY,
	domain.FrequencyMonthly: rrule.MONTHLY,
	domain.FrequencyYearly:  rrule.YEARLY,
}

// Build assembles the VCALENDAR for the given appointments.
func Build(appointments []*domain.Appointment, loc *time.Location) (*ical.Calendar, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//OpenFamily//Calendar//FR")

	for _, a := range appointments {
		vevent, err := buildEvent(a, loc)
		if err != nil {
			return nil, fmt.Errorf("appointment %s: %w", a.ID, err)
		}
		cal.Children = append(cal.Children, vevent.Component)
	}
	return cal, nil
}

// Write encodes the feed for the given appointments to w.
func Write(w io.Writer, appointments []*domain.Appointment, loc *time.Location) error {
	cal, err := Build(appointments, loc)
	if err != nil {
		return err
	}
	return ical.NewEncoder(w).Encode(cal)
}

func buildEvent(a *domain.Appointment, loc *time.Location) (*ical.Event, error) {
	startsAt, err := a.StartsAt(loc)
	if err != nil {
		return nil, err
	}

	vevent := ical.NewEvent()
	vevent.Props.SetText(ical.PropUID, a.ID+"@openfamily")
	vevent.Props.SetText(ical.PropSummary, a.Title)
	if a.Description != "" {
		vevent.Props.SetText(ical.PropDescription, a.Description)
	}
	if a.Location != "" {
		vevent.Props.SetText(ical.PropLocation, a.Location)
	}

	// UTC instants so the encoder emits the Z suffix.
	vevent.Props.SetDateTime(ical.PropDateTimeStart, startsAt.UTC())
	if a.Duration > 0 {
		vevent.Props.SetDateTime(ical.PropDateTimeEnd, startsAt.Add(time.Duration(a.Duration)*time.Minute).UTC())
	}

	if a.Recurring != nil {
		rule, err := recurrenceRule(a.Recurring, startsAt, loc)
		if err != nil {
			return nil, err
		}
		prop := ical.NewProp(ical.PropRecurrenceRule)
		prop.SetValueType(ical.ValueRecurrence)
		prop.Value = rule
		vevent.Props.Set(prop)
	}

	vevent.Props.SetDateTime(ical.PropDateTimeStamp, a.CreatedAt.UTC())
	return vevent, nil
}

// recurrenceRule renders the RRULE property value for a recurrence.
func recurrenceRule(rec *domain.Recurrence, startsAt time.Time, loc *time.Location) (string, error) {
	freq, ok := rruleFrequencies[rec.Frequency]
	if !ok {
		return "", fmt.Errorf("unknown frequency %q", rec.Frequency)
	}

	opt := rrule.ROption{Freq: freq, Dtstart: startsAt}
	if rec.DayOfWeek != nil {
		opt.Byweekday = []rrule.Weekday{rruleWeekdays[*rec.DayOfWeek]}
	}
	if rec.DayOfMonth != nil {
		opt.Bymonthday = []int{*rec.DayOfMonth}
	}
	if rec.EndDate != "" {
		end, err := domain.ParseDate(rec.EndDate)
		if err != nil {
			return "", fmt.Errorf("invalid endDate: %w", err)
		}
		// Inclusive end date: run until the end of that day.
		opt.Until = time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, loc).UTC()
	}

	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return "", fmt.Errorf("build RRULE: %w", err)
	}
	return rule.OrigOptions.RRuleString(), nil
}
