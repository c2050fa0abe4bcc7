package scheduler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/2kPi/OpenFamily/internal/domain"
)

// retention is how long fired notifications are kept before the purge step
// deletes them.
const retention = 7 * 24 * time.Hour

// Notifier is the delivery channel the scheduler pushes reminders through.
type Notifier interface {
	Send(familyID, title, body string, data map[string]string) error
}

// NotificationStore is the slice of storage the tick loop needs.
type NotificationStore interface {
	ListDueNotifications(now time.Time) ([]*domain.ScheduledNotification, error)
	MarkNotificationSent(id int64, sentAt time.Time) error
	PurgeSentNotificationsBefore(cutoff time.Time) (int64, error)
	ListFamilyIDsWithSubscriptions() ([]string, error)
}

// AgendaSource builds the daily digest body for a family.
type AgendaSource interface {
	DailyDigest(familyID string, day time.Time) (string, bool, error)
}

// Scheduler drives the reminder delivery loop: a minute tick that fires due
// notifications and purges old ones, plus an optional daily agenda job.
type Scheduler struct {
	cron     *cron.Cron
	store    NotificationStore
	notifier Notifier
	agenda   AgendaSource
	timezone *time.Location

	agendaTime string // HH:MM, empty disables the agenda job
	now        func() time.Time
}

func New(store NotificationStore, notifier Notifier, tz *time.Location) *Scheduler {
	c := cron.New(
		cron.WithLocation(tz),
		// A slow tick must not overlap the next one: overlapping ticks would
		// race on the same due set and double-deliver.
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)

	return &Scheduler{
		cron:     c,
		store:    store,
		notifier: notifier,
		timezone: tz,
		now:      time.Now,
	}
}

// SetAgenda enables the daily agenda digest at the given local time.
func (s *Scheduler) SetAgenda(agenda AgendaSource, agendaTime string) {
	s.agenda = agenda
	s.agendaTime = agendaTime
}

func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc("* * * * *", s.tick); err != nil {
		return fmt.Errorf("add notification check: %w", err)
	}

	if s.agenda != nil && s.agendaTime != "" {
		spec, err := dailySpec(s.agendaTime)
		if err != nil {
			return fmt.Errorf("agenda time: %w", err)
		}
		if _, err := s.cron.AddFunc(spec, s.sendAgendas); err != nil {
			return fmt.Errorf("add agenda job: %w", err)
		}
	}

	s.cron.Start()
	log.Printf("Notification scheduler started (TZ: %s, check every minute)", s.timezone)

	<-ctx.Done()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Notification scheduler stopped")
}

// tick runs the per-minute protocol: query the due set, deliver each item,
// mark it sent, then purge old fired notifications. A failure on one item
// never blocks the rest; the failed item stays pending and is retried on the
// next tick (at-least-once delivery).
func (s *Scheduler) tick() {
	now := s.now()

	due, err := s.store.ListDueNotifications(now)
	if err != nil {
		// Abort the whole tick; the due set is recomputed from scratch next
		// minute, so nothing is lost.
		log.Printf("Error getting due notifications: %v", err)
		return
	}

	if len(due) > 0 {
		log.Printf("%d notification(s) to send", len(due))
	}

	for _, n := range due {
		data := map[string]string{
			"appointmentId": n.AppointmentID,
			"scheduledTime": n.ScheduledTime.Format(time.RFC3339),
		}
		if err := s.notifier.Send(n.FamilyID, n.Title, n.Body, data); err != nil {
			log.Printf("Error sending notification %d: %v", n.ID, err)
			continue
		}

		if err := s.store.MarkNotificationSent(n.ID, now); err != nil {
			log.Printf("Error marking notification %d as sent: %v", n.ID, err)
		}
	}

	purged, err := s.store.PurgeSentNotificationsBefore(now.Add(-retention))
	if err != nil {
		log.Printf("Error purging old notifications: %v", err)
	} else if purged > 0 {
		log.Printf("Purged %d old notification(s)", purged)
	}
}

// sendAgendas pushes the daily digest to every family with at least one
// registered device.
func (s *Scheduler) sendAgendas() {
	today := s.now().In(s.timezone)

	familyIDs, err := s.store.ListFamilyIDsWithSubscriptions()
	if err != nil {
		log.Printf("Error listing families for agenda: %v", err)
		return
	}

	for _, familyID := range familyIDs {
		body, ok, err := s.agenda.DailyDigest(familyID, today)
		if err != nil {
			log.Printf("Error building agenda for family %s: %v", familyID, err)
			continue
		}
		if !ok {
			continue
		}
		if err := s.notifier.Send(familyID, "Agenda du jour", body, nil); err != nil {
			log.Printf("Error sending agenda to family %s: %v", familyID, err)
		}
	}
}

// dailySpec converts HH:MM into a cron spec.
func dailySpec(hhmm string) (string, error) {
	parts := strings.Split(hhmm, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time %q, expected HH:MM", hhmm)
	}
	if _, err := domain.ParseTimeOfDay(hhmm); err != nil {
		return "", fmt.Errorf("invalid time %q: %w", hhmm, err)
	}
	return fmt.Sprintf("%s %s * * *", strings.TrimPrefix(parts[1], "0"), strings.TrimPrefix(parts[0], "0")), nil
}
