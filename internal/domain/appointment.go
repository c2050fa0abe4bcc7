package domain

import (
	"fmt"
	"strings"
	"time"
)

type AppointmentType string

const (
	AppointmentDoctor   AppointmentType = "doctor"
	AppointmentSchool   AppointmentType = "school"
	AppointmentWork     AppointmentType = "work"
	AppointmentPersonal AppointmentType = "personal"
	AppointmentOther    AppointmentType = "other"
)

// Appointment is a dated event with a mandatory time of day.
type Appointment struct {
	ID          string          `json:"id"`
	FamilyID    string          `json:"familyId"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Date        string          `json:"date"` // YYYY-MM-DD
	Time        string          `json:"time"` // HH:MM
	Duration    int             `json:"duration,omitempty"` // minutes
	Location    string          `json:"location,omitempty"`
	Type        AppointmentType `json:"type"`
	Attendees   []string        `json:"attendees,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	Recurring   *Recurrence     `json:"recurring,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func (a *Appointment) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return fmt.Errorf("appointment title cannot be empty")
	}
	if _, err := ParseDate(a.Date); err != nil {
		return fmt.Errorf("invalid date %q: %w", a.Date, err)
	}
	if _, err := ParseTimeOfDay(a.Time); err != nil {
		return fmt.Errorf("invalid time %q: %w", a.Time, err)
	}
	if a.Recurring != nil {
		if err := a.Recurring.Validate(); err != nil {
			return fmt.Errorf("invalid recurrence: %w", err)
		}
	}
	return nil
}

// StartsAt returns the local instant of the appointment's first occurrence.
func (a *Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	return CombineDateTime(a.Date, a.Time, loc)
}
