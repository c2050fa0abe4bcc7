package service

import (
	"fmt"
	"time"

	"github.com/2kPi/OpenFamily/internal/domain"
	"github.com/2kPi/OpenFamily/internal/storage"
)

// NotificationService turns an appointment plus the user's lead times into
// discrete scheduled notifications. It is the producer side of the reminder
// scheduler.
type NotificationService struct {
	storage  *storage.Storage
	timezone *time.Location
}

func NewNotificationService(s *storage.Storage, tz *time.Location) *NotificationService {
	return &NotificationService{storage: s, timezone: tz}
}

// ScheduleAppointmentReminders replaces all reminders of an appointment with
// a fresh set: one per enabled lead time whose trigger is still in the
// future, plus one at the exact appointment time. Past-dated triggers are
// silently dropped. Returns the number of reminders created.
//
// There is no incremental diffing on edit; the previous set is always deleted
// wholesale first.
func (s *NotificationService) ScheduleAppointmentReminders(a *domain.Appointment, timings []domain.ReminderTiming, now time.Time) (int, error) {
	startsAt, err := a.StartsAt(s.timezone)
	if err != nil {
		return 0, fmt.Errorf("appointment date/time: %w", err)
	}

	if err := s.storage.DeleteNotificationsForAppointment(a.ID); err != nil {
		return 0, fmt.Errorf("delete previous reminders: %w", err)
	}

	created := 0
	for _, timing := range timings {
		if !timing.Enabled {
			continue
		}
		triggerAt := startsAt.Add(-time.Duration(timing.Minutes) * time.Minute)
		if !triggerAt.After(now) {
			continue
		}

		n := &domain.ScheduledNotification{
			AppointmentID: a.ID,
			FamilyID:      a.FamilyID,
			Title:         "Rappel de rendez-vous",
			Body:          fmt.Sprintf("%s à %s (dans %s)", a.Title, a.Time, FormatLeadTime(timing.Minutes)),
			ScheduledTime: triggerAt,
		}
		if err := s.storage.CreateNotification(n); err != nil {
			return created, fmt.Errorf("create reminder: %w", err)
		}
		created++
	}

	// One more at the exact appointment time.
	if startsAt.After(now) {
		n := &domain.ScheduledNotification{
			AppointmentID: a.ID,
			FamilyID:      a.FamilyID,
			Title:         "Rendez-vous",
			Body:          fmt.Sprintf("%s maintenant (%s)", a.Title, a.Time),
			ScheduledTime: startsAt,
		}
		if err := s.storage.CreateNotification(n); err != nil {
			return created, fmt.Errorf("create reminder: %w", err)
		}
		created++
	}

	return created, nil
}

// CancelAppointmentReminders deletes every pending reminder for the
// appointment. Cancelling is deletion; there is no separate cancelled state.
func (s *NotificationService) CancelAppointmentReminders(appointmentID string) error {
	return s.storage.DeleteNotificationsForAppointment(appointmentID)
}

// ListScheduled returns every scheduled notification, for the debug endpoint.
func (s *NotificationService) ListScheduled() ([]*domain.ScheduledNotification, error) {
	return s.storage.ListNotifications()
}

// FormatLeadTime renders a lead time in minutes the way notification bodies
// show it: "2 jour(s)", "1h30min", "45 min".
func FormatLeadTime(minutes int) string {
	switch {
	case minutes >= 24*60:
		return fmt.Sprintf("%d jour(s)", minutes/(24*60))
	case minutes >= 60:
		if rem := minutes % 60; rem > 0 {
			return fmt.Sprintf("%dh%dmin", minutes/60, rem)
		}
		return fmt.Sprintf("%dh", minutes/60)
	default:
		return fmt.Sprintf("%d min", minutes)
	}
}
