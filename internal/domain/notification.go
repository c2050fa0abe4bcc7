package domain

import "time"

// ScheduledNotification is one discrete reminder to deliver at ScheduledTime.
//
// Lifecycle: pending (sent=false), then fired (sent=true), then purged after
// the retention window. Cancelling means deleting the pending row.
type ScheduledNotification struct {
	ID            int64      `json:"id"`
	AppointmentID string     `json:"appointmentId"`
	FamilyID      string     `json:"familyId"`
	Title         string     `json:"title"`
	Body          string     `json:"body"`
	ScheduledTime time.Time  `json:"scheduledTime"`
	Sent          bool       `json:"sent"`
	SentAt        *time.Time `json:"sentAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// PushSubscription is one browser push endpoint registered by a device.
type PushSubscription struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"userId"`
	FamilyID  string    `json:"familyId"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ReminderTiming is a user-configurable lead time before an appointment.
type ReminderTiming struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Minutes int    `json:"minutes"`
	Enabled bool   `json:"enabled"`
}

// DefaultReminderTimings mirrors the client defaults: only the 30-minute
// reminder is enabled out of the box.
func DefaultReminderTimings() []ReminderTiming {
	return []ReminderTiming{
		{ID: "day", Label: "1 jour avant", Minutes: 24 * 60},
		{ID: "hours2", Label: "2 heures avant", Minutes: 2 * 60},
		{ID: "hour1", Label: "1 heure avant", Minutes: 60},
		{ID: "min30", Label: "30 minutes avant", Minutes: 30, Enabled: true},
		{ID: "min15", Label: "15 minutes avant", Minutes: 15},
	}
}
