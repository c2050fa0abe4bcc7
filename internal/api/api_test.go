package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2kPi/OpenFamily/internal/domain"
	"github.com/2kPi/OpenFamily/internal/service"
	"github.com/2kPi/OpenFamily/internal/storage"
)

func setupRouter(t *testing.T) http.Handler {
	t.Helper()
	store, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tasks := service.NewTaskService(store)
	appointments := service.NewAppointmentService(store)
	notifications := service.NewNotificationService(store, time.UTC)
	return NewHandler(store, tasks, appointments, notifications, time.UTC).Router()
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealthz(t *testing.T) {
	router := setupRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTaskLifecycle(t *testing.T) {
	router := setupRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/tasks", map[string]any{
		"familyId": "fam-1",
		"title":    "Courses",
		"dueDate":  "2025-04-01",
		"recurring": map[string]any{
			"frequency": "weekly",
			"dayOfWeek": 6,
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created domain.Task
	decode(t, rec, &created)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, domain.PriorityMedium, created.Priority)

	rec = doJSON(t, router, http.MethodGet, "/api/tasks/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/tasks/"+created.ID+"/toggle", map[string]string{"date": "2025-04-05"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var toggled domain.Task
	decode(t, rec, &toggled)
	assert.Contains(t, toggled.CompletedDates, "2025-04-05")

	rec = doJSON(t, router, http.MethodDelete, "/api/tasks/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/tasks/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateTaskValidation(t *testing.T) {
	router := setupRouter(t)

	// Missing familyId.
	rec := doJSON(t, router, http.MethodPost, "/api/tasks", map[string]any{
		"title": "x", "dueDate": "2025-04-01",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Bad recurrence frequency.
	rec = doJSON(t, router, http.MethodPost, "/api/tasks", map[string]any{
		"familyId": "fam-1", "title": "x", "dueDate": "2025-04-01",
		"recurring": map[string]any{"frequency": "hourly"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListOccurrences(t *testing.T) {
	router := setupRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/appointments", map[string]any{
		"familyId": "fam-1",
		"title":    "Piscine",
		"date":     "2025-02-03",
		"time":     "17:00",
		"recurring": map[string]any{
			"frequency": "daily",
			"endDate":   "2025-02-07",
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var appt domain.Appointment
	decode(t, rec, &appt)

	rec = doJSON(t, router, http.MethodGet, "/api/occurrences?familyId=fam-1&start=2025-02-01&end=2025-02-28", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Tasks        map[string][]struct{ Date, Time string } `json:"tasks"`
		Appointments map[string][]struct{ Date, Time string } `json:"appointments"`
	}
	decode(t, rec, &resp)
	assert.Len(t, resp.Appointments[appt.ID], 5)
	assert.Empty(t, resp.Tasks)

	rec = doJSON(t, router, http.MethodGet, "/api/occurrences?familyId=fam-1&start=bad&end=2025-02-28", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScheduleAppointmentEndpoint(t *testing.T) {
	router := setupRouter(t)

	date := domain.FormatDate(time.Now().AddDate(0, 0, 7))
	rec := doJSON(t, router, http.MethodPost, "/api/appointments", map[string]any{
		"familyId": "fam-1",
		"title":    "Pédiatre",
		"date":     date,
		"time":     "14:00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var appt domain.Appointment
	decode(t, rec, &appt)

	rec = doJSON(t, router, http.MethodPost, "/api/push/schedule-appointment", map[string]any{
		"appointmentId": appt.ID,
		"timings": []map[string]any{
			{"minutes": 30, "enabled": true},
			{"minutes": 60, "enabled": true},
			{"minutes": 1440, "enabled": false},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Success bool `json:"success"`
		Count   int  `json:"count"`
	}
	decode(t, rec, &resp)
	assert.True(t, resp.Success)
	// Two enabled lead times plus the exact-time reminder.
	assert.Equal(t, 3, resp.Count)

	rec = doJSON(t, router, http.MethodGet, "/api/push/debug/scheduled", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var dbg struct {
		Notifications []domain.ScheduledNotification `json:"notifications"`
	}
	decode(t, rec, &dbg)
	assert.Len(t, dbg.Notifications, 3)

	// Deleting the appointment cascades to its reminders.
	rec = doJSON(t, router, http.MethodDelete, "/api/appointments/"+appt.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/push/debug/scheduled", nil)
	decode(t, rec, &dbg)
	assert.Empty(t, dbg.Notifications)
}

func TestScheduleAppointmentUnknownID(t *testing.T) {
	router := setupRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/push/schedule-appointment", map[string]any{
		"appointmentId": "missing",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPushSubscribeAndDebug(t *testing.T) {
	router := setupRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/push/subscribe", map[string]any{
		"userId":   "user-1",
		"familyId": "fam-1",
		"subscription": map[string]any{
			"endpoint": "https://push.example/ep1",
			"keys":     map[string]string{"p256dh": "k", "auth": "a"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/push/debug/subscriptions?familyId=fam-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var dbg struct {
		Subscriptions []domain.PushSubscription `json:"subscriptions"`
	}
	decode(t, rec, &dbg)
	require.Len(t, dbg.Subscriptions, 1)
	assert.Equal(t, "https://push.example/ep1", dbg.Subscriptions[0].Endpoint)

	rec = doJSON(t, router, http.MethodPost, "/api/push/unsubscribe", map[string]string{"userId": "user-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/push/debug/subscriptions?familyId=fam-1", nil)
	decode(t, rec, &dbg)
	assert.Empty(t, dbg.Subscriptions)
}

func TestCalendarFeed(t *testing.T) {
	router := setupRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/appointments", map[string]any{
		"familyId": "fam-1",
		"title":    "Dentiste",
		"date":     "2025-05-06",
		"time":     "09:30",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/calendar.ics?familyId=fam-1", nil)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req)

	require.Equal(t, http.StatusOK, rec2.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec2.Header().Get("Content-Type"))
	body := rec2.Body.String()
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "SUMMARY:Dentiste")
}

func TestListTasksRequiresFamilyID(t *testing.T) {
	router := setupRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/tasks", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]string
	decode(t, rec, &resp)
	assert.Equal(t, "familyId is required", resp["error"])
}

func TestListTasksEmptyIsArray(t *testing.T) {
	router := setupRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/tasks?familyId=fam-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", string(bytes.TrimSpace(rec.Body.Bytes())))
}
