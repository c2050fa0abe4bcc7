package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/2kPi/OpenFamily/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			family_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT DEFAULT '',
			category TEXT DEFAULT 'other',
			assigned_to TEXT DEFAULT '',
			due_date TEXT NOT NULL,
			due_time TEXT DEFAULT '',
			priority TEXT DEFAULT 'medium',
			completed INTEGER DEFAULT 0,
			completed_dates TEXT DEFAULT '[]',
			recurring TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_family_id ON tasks(family_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_due_date ON tasks(due_date)`,
		`CREATE TABLE IF NOT EXISTS appointments (
			id TEXT PRIMARY KEY,
			family_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT DEFAULT '',
			date TEXT NOT NULL,
			time TEXT NOT NULL,
			duration INTEGER DEFAULT 0,
			location TEXT DEFAULT '',
			type TEXT DEFAULT 'other',
			attendees TEXT DEFAULT '[]',
			notes TEXT DEFAULT '',
			recurring TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_family_id ON appointments(family_id)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_date ON appointments(date)`,
		`CREATE TABLE IF NOT EXISTS scheduled_notifications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			appointment_id TEXT NOT NULL,
			family_id TEXT NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			scheduled_time DATETIME NOT NULL,
			sent INTEGER DEFAULT 0,
			sent_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scheduled_notifications_time ON scheduled_notifications(scheduled_time)`,
		`CREATE INDEX IF NOT EXISTS idx_scheduled_notifications_sent ON scheduled_notifications(sent)`,
		`CREATE INDEX IF NOT EXISTS idx_scheduled_notifications_family ON scheduled_notifications(family_id)`,
		`CREATE TABLE IF NOT EXISTS push_subscriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			family_id TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			p256dh TEXT NOT NULL,
			auth TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_push_subscriptions_user_endpoint ON push_subscriptions(user_id, endpoint)`,
		`CREATE INDEX IF NOT EXISTS idx_push_subscriptions_family ON push_subscriptions(family_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// Ignore "duplicate column" errors for ALTER TABLE
			if !strings.Contains(err.Error(), "duplicate column") {
				return fmt.Errorf("exec migration: %w", err)
			}
		}
	}
	return nil
}

// === Tasks ===

func (s *Storage) CreateTask(t *domain.Task) error {
	recurring, err := marshalRecurrence(t.Recurring)
	if err != nil {
		return err
	}
	dates, _ := json.Marshal(emptyIfNil(t.CompletedDates))

	_, err = s.db.Exec(
		`INSERT INTO tasks (id, family_id, title, description, category, assigned_to, due_date, due_time, priority, completed, completed_dates, recurring)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.FamilyID, t.Title, t.Description, t.Category, t.AssignedTo, t.DueDate, t.DueTime, t.Priority, t.Completed, string(dates), recurring,
	)
	if err != nil {
		return err
	}
	t.CreatedAt = time.Now()
	return nil
}

func (s *Storage) GetTask(id string) (*domain.Task, error) {
	row := s.db.QueryRow(
		`SELECT id, family_id, title, description, category, assigned_to, due_date, due_time, priority, completed, completed_dates, recurring, created_at
		 FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

func (s *Storage) ListTasksByFamily(familyID string) ([]*domain.Task, error) {
	rows, err := s.db.Query(
		`SELECT id, family_id, title, description, category, assigned_to, due_date, due_time, priority, completed, completed_dates, recurring, created_at
		 FROM tasks WHERE family_id = ? ORDER BY due_date, due_time, created_at`, familyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *Storage) UpdateTask(t *domain.Task) error {
	recurring, err := marshalRecurrence(t.Recurring)
	if err != nil {
		return err
	}
	dates, _ := json.Marshal(emptyIfNil(t.CompletedDates))

	res, err := s.db.Exec(
		`UPDATE tasks SET title = ?, description = ?, category = ?, assigned_to = ?, due_date = ?, due_time = ?, priority = ?, completed = ?, completed_dates = ?, recurring = ?
		 WHERE id = ?`,
		t.Title, t.Description, t.Category, t.AssignedTo, t.DueDate, t.DueTime, t.Priority, t.Completed, string(dates), recurring, t.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Storage) DeleteTask(id string) error {
	_, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	return err
}

// === Appointments ===

func (s *Storage) CreateAppointment(a *domain.Appointment) error {
	recurring, err := marshalRecurrence(a.Recurring)
	if err != nil {
		return err
	}
	attendees, _ := json.Marshal(emptyIfNil(a.Attendees))

	_, err = s.db.Exec(
		`INSERT INTO appointments (id, family_id, title, description, date, time, duration, location, type, attendees, notes, recurring)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.FamilyID, a.Title, a.Description, a.Date, a.Time, a.Duration, a.Location, a.Type, string(attendees), a.Notes, recurring,
	)
	if err != nil {
		return err
	}
	a.CreatedAt = time.Now()
	return nil
}

func (s *Storage) GetAppointment(id string) (*domain.Appointment, error) {
	row := s.db.QueryRow(
		`SELECT id, family_id, title, description, date, time, duration, location, type, attendees, notes, recurring, created_at
		 FROM appointments WHERE id = ?`, id)
	return scanAppointment(row)
}

func (s *Storage) ListAppointmentsByFamily(familyID string) ([]*domain.Appointment, error) {
	rows, err := s.db.Query(
		`SELECT id, family_id, title, description, date, time, duration, location, type, attendees, notes, recurring, created_at
		 FROM appointments WHERE family_id = ? ORDER BY date, time`, familyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appointments []*domain.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appointments = append(appointments, a)
	}
	return appointments, rows.Err()
}

func (s *Storage) UpdateAppointment(a *domain.Appointment) error {
	recurring, err := marshalRecurrence(a.Recurring)
	if err != nil {
		return err
	}
	attendees, _ := json.Marshal(emptyIfNil(a.Attendees))

	res, err := s.db.Exec(
		`UPDATE appointments SET title = ?, description = ?, date = ?, time = ?, duration = ?, location = ?, type = ?, attendees = ?, notes = ?, recurring = ?
		 WHERE id = ?`,
		a.Title, a.Description, a.Date, a.Time, a.Duration, a.Location, a.Type, string(attendees), a.Notes, recurring, a.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Storage) DeleteAppointment(id string) error {
	_, err := s.db.Exec(`DELETE FROM appointments WHERE id = ?`, id)
	return err
}

// === Scheduled notifications ===

func (s *Storage) CreateNotification(n *domain.ScheduledNotification) error {
	res, err := s.db.Exec(
		`INSERT INTO scheduled_notifications (appointment_id, family_id, title, body, scheduled_time)
		 VALUES (?, ?, ?, ?, ?)`,
		n.AppointmentID, n.FamilyID, n.Title, n.Body, n.ScheduledTime.UTC(),
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	n.ID = id
	n.CreatedAt = time.Now()
	return nil
}

// ListDueNotifications returns unsent notifications whose scheduled time has
// passed, oldest first.
func (s *Storage) ListDueNotifications(now time.Time) ([]*domain.ScheduledNotification, error) {
	rows, err := s.db.Query(
		`SELECT id, appointment_id, family_id, title, body, scheduled_time, sent, sent_at, created_at
		 FROM scheduled_notifications
		 WHERE sent = 0 AND scheduled_time <= ?
		 ORDER BY scheduled_time ASC`, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectNotifications(rows)
}

func (s *Storage) ListNotifications() ([]*domain.ScheduledNotification, error) {
	rows, err := s.db.Query(
		`SELECT id, appointment_id, family_id, title, body, scheduled_time, sent, sent_at, created_at
		 FROM scheduled_notifications ORDER BY scheduled_time ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectNotifications(rows)
}

func (s *Storage) MarkNotificationSent(id int64, sentAt time.Time) error {
	res, err := s.db.Exec(
		`UPDATE scheduled_notifications SET sent = 1, sent_at = ? WHERE id = ?`,
		sentAt.UTC(), id,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// PurgeSentNotificationsBefore deletes fired notifications older than the
// retention cutoff.
func (s *Storage) PurgeSentNotificationsBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(
		`DELETE FROM scheduled_notifications WHERE sent = 1 AND sent_at < ?`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteNotificationsForAppointment cancels all reminders owned by an
// appointment. Used both on edit (delete + recreate) and on delete (cascade).
func (s *Storage) DeleteNotificationsForAppointment(appointmentID string) error {
	_, err := s.db.Exec(`DELETE FROM scheduled_notifications WHERE appointment_id = ?`, appointmentID)
	return err
}

// === Push subscriptions ===

// SavePushSubscription inserts or refreshes the subscription for a
// (user, endpoint) pair.
func (s *Storage) SavePushSubscription(sub *domain.PushSubscription) error {
	var id int64
	err := s.db.QueryRow(
		`SELECT id FROM push_subscriptions WHERE user_id = ? AND endpoint = ?`,
		sub.UserID, sub.Endpoint,
	).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		res, err := s.db.Exec(
			`INSERT INTO push_subscriptions (user_id, family_id, endpoint, p256dh, auth)
			 VALUES (?, ?, ?, ?, ?)`,
			sub.UserID, sub.FamilyID, sub.Endpoint, sub.P256dh, sub.Auth,
		)
		if err != nil {
			return err
		}
		sub.ID, _ = res.LastInsertId()
		return nil
	case err != nil:
		return err
	}

	_, err = s.db.Exec(
		`UPDATE push_subscriptions SET p256dh = ?, auth = ?, family_id = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		sub.P256dh, sub.Auth, sub.FamilyID, id,
	)
	sub.ID = id
	return err
}

func (s *Storage) DeletePushSubscriptionsByUser(userID string) error {
	_, err := s.db.Exec(`DELETE FROM push_subscriptions WHERE user_id = ?`, userID)
	return err
}

// DeletePushSubscriptionByEndpoint removes a subscription the push service
// reported as gone (HTTP 410).
func (s *Storage) DeletePushSubscriptionByEndpoint(endpoint string) error {
	_, err := s.db.Exec(`DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	return err
}

func (s *Storage) ListPushSubscriptionsByFamily(familyID string) ([]*domain.PushSubscription, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, family_id, endpoint, p256dh, auth, created_at, updated_at
		 FROM push_subscriptions WHERE family_id = ?`, familyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*domain.PushSubscription
	for rows.Next() {
		sub := &domain.PushSubscription{}
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.FamilyID, &sub.Endpoint, &sub.P256dh, &sub.Auth, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// ListFamilyIDsWithSubscriptions returns the families that registered at
// least one push endpoint. The daily agenda job iterates over these.
func (s *Storage) ListFamilyIDsWithSubscriptions() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT family_id FROM push_subscriptions ORDER BY family_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// === helpers ===

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	t := &domain.Task{}
	var dates, recurring string
	err := row.Scan(&t.ID, &t.FamilyID, &t.Title, &t.Description, &t.Category, &t.AssignedTo, &t.DueDate, &t.DueTime, &t.Priority, &t.Completed, &dates, &recurring, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(dates), &t.CompletedDates); err != nil {
		return nil, fmt.Errorf("decode completed_dates: %w", err)
	}
	if t.Recurring, err = unmarshalRecurrence(recurring); err != nil {
		return nil, err
	}
	return t, nil
}

func scanAppointment(row rowScanner) (*domain.Appointment, error) {
	a := &domain.Appointment{}
	var attendees, recurring string
	err := row.Scan(&a.ID, &a.FamilyID, &a.Title, &a.Description, &a.Date, &a.Time, &a.Duration, &a.Location, &a.Type, &attendees, &a.Notes, &recurring, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(attendees), &a.Attendees); err != nil {
		return nil, fmt.Errorf("decode attendees: %w", err)
	}
	if a.Recurring, err = unmarshalRecurrence(recurring); err != nil {
		return nil, err
	}
	return a, nil
}

func collectNotifications(rows *sql.Rows) ([]*domain.ScheduledNotification, error) {
	var list []*domain.ScheduledNotification
	for rows.Next() {
		n := &domain.ScheduledNotification{}
		if err := rows.Scan(&n.ID, &n.AppointmentID, &n.FamilyID, &n.Title, &n.Body, &n.ScheduledTime, &n.Sent, &n.SentAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

func marshalRecurrence(r *domain.Recurrence) (string, error) {
	if r == nil {
		return "", nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode recurrence: %w", err)
	}
	return string(b), nil
}

func unmarshalRecurrence(s string) (*domain.Recurrence, error) {
	if s == "" {
		return nil, nil
	}
	r := &domain.Recurrence{}
	if err := json.Unmarshal([]byte(s), r); err != nil {
		return nil, fmt.Errorf("decode recurrence: %w", err)
	}
	return r, nil
}

func emptyIfNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
