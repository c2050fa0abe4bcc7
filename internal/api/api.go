// Package api exposes the HTTP surface of the server: entity CRUD for the
// calendar views, the push subscription registry, and the reminder
// scheduling trigger.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/2kPi/OpenFamily/internal/calendar"
	"github.com/2kPi/OpenFamily/internal/domain"
	"github.com/2kPi/OpenFamily/internal/recurrence"
	"github.com/2kPi/OpenFamily/internal/service"
	"github.com/2kPi/OpenFamily/internal/storage"
)

type Handler struct {
	storage       *storage.Storage
	tasks         *service.TaskService
	appointments  *service.AppointmentService
	notifications *service.NotificationService
	timezone      *time.Location
}

func NewHandler(
	store *storage.Storage,
	tasks *service.TaskService,
	appointments *service.AppointmentService,
	notifications *service.NotificationService,
	tz *time.Location,
) *Handler {
	return &Handler{
		storage:       store,
		tasks:         tasks,
		appointments:  appointments,
		notifications: notifications,
		timezone:      tz,
	}
}

func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)

	r.HandleFunc("/api/tasks", h.listTasks).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks", h.createTask).Methods(http.MethodPost)
	r.HandleFunc("/api/tasks/{id}", h.getTask).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks/{id}", h.updateTask).Methods(http.MethodPut)
	r.HandleFunc("/api/tasks/{id}", h.deleteTask).Methods(http.MethodDelete)
	r.HandleFunc("/api/tasks/{id}/toggle", h.toggleTaskOccurrence).Methods(http.MethodPost)

	r.HandleFunc("/api/appointments", h.listAppointments).Methods(http.MethodGet)
	r.HandleFunc("/api/appointments", h.createAppointment).Methods(http.MethodPost)
	r.HandleFunc("/api/appointments/{id}", h.getAppointment).Methods(http.MethodGet)
	r.HandleFunc("/api/appointments/{id}", h.updateAppointment).Methods(http.MethodPut)
	r.HandleFunc("/api/appointments/{id}", h.deleteAppointment).Methods(http.MethodDelete)

	r.HandleFunc("/api/occurrences", h.listOccurrences).Methods(http.MethodGet)
	r.HandleFunc("/api/calendar.ics", h.calendarFeed).Methods(http.MethodGet)

	r.HandleFunc("/api/push/subscribe", h.pushSubscribe).Methods(http.MethodPost)
	r.HandleFunc("/api/push/unsubscribe", h.pushUnsubscribe).Methods(http.MethodPost)
	r.HandleFunc("/api/push/schedule-appointment", h.scheduleAppointment).Methods(http.MethodPost)
	r.HandleFunc("/api/push/debug/scheduled", h.debugScheduled).Methods(http.MethodGet)
	r.HandleFunc("/api/push/debug/subscriptions", h.debugSubscriptions).Methods(http.MethodGet)

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// === Tasks ===

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	familyID := r.URL.Query().Get("familyId")
	if familyID == "" {
		h.writeError(w, r, http.StatusBadRequest, "familyId is required")
		return
	}
	tasks, err := h.tasks.List(familyID)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if tasks == nil {
		tasks = []*domain.Task{}
	}
	h.writeJSON(w, r, http.StatusOK, tasks)
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	var t domain.Task
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if t.FamilyID == "" {
		h.writeError(w, r, http.StatusBadRequest, "familyId is required")
		return
	}
	created, err := h.tasks.Create(&t)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, r, http.StatusCreated, created)
}

func (h *Handler) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.tasks.Get(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if task == nil {
		h.writeError(w, r, http.StatusNotFound, "task not found")
		return
	}
	h.writeJSON(w, r, http.StatusOK, task)
}

func (h *Handler) updateTask(w http.ResponseWriter, r *http.Request) {
	var t domain.Task
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	t.ID = mux.Vars(r)["id"]
	if err := h.tasks.Update(&t); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, r, http.StatusOK, &t)
}

func (h *Handler) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.tasks.Delete(mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeStatus(w, r, http.StatusNoContent)
}

func (h *Handler) toggleTaskOccurrence(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	task, err := h.tasks.ToggleOccurrence(mux.Vars(r)["id"], req.Date)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, r, http.StatusOK, task)
}

// === Appointments ===

func (h *Handler) listAppointments(w http.ResponseWriter, r *http.Request) {
	familyID := r.URL.Query().Get("familyId")
	if familyID == "" {
		h.writeError(w, r, http.StatusBadRequest, "familyId is required")
		return
	}
	appointments, err := h.appointments.List(familyID)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if appointments == nil {
		appointments = []*domain.Appointment{}
	}
	h.writeJSON(w, r, http.StatusOK, appointments)
}

func (h *Handler) createAppointment(w http.ResponseWriter, r *http.Request) {
	var a domain.Appointment
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if a.FamilyID == "" {
		h.writeError(w, r, http.StatusBadRequest, "familyId is required")
		return
	}
	created, err := h.appointments.Create(&a)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, r, http.StatusCreated, created)
}

func (h *Handler) getAppointment(w http.ResponseWriter, r *http.Request) {
	appointment, err := h.appointments.Get(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if appointment == nil {
		h.writeError(w, r, http.StatusNotFound, "appointment not found")
		return
	}
	h.writeJSON(w, r, http.StatusOK, appointment)
}

func (h *Handler) updateAppointment(w http.ResponseWriter, r *http.Request) {
	var a domain.Appointment
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	a.ID = mux.Vars(r)["id"]
	if err := h.appointments.Update(&a); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, r, http.StatusOK, &a)
}

func (h *Handler) deleteAppointment(w http.ResponseWriter, r *http.Request) {
	if err := h.appointments.Delete(mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeStatus(w, r, http.StatusNoContent)
}

// === Calendar ===

type occurrencesResponse struct {
	Tasks        map[string][]recurrence.Occurrence `json:"tasks"`
	Appointments map[string][]recurrence.Occurrence `json:"appointments"`
}

// listOccurrences expands the family's tasks and appointments over a display
// window, keyed by entity ID.
func (h *Handler) listOccurrences(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	familyID := q.Get("familyId")
	if familyID == "" {
		h.writeError(w, r, http.StatusBadRequest, "familyId is required")
		return
	}
	start, err := domain.ParseDate(q.Get("start"))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid start date")
		return
	}
	end, err := domain.ParseDate(q.Get("end"))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid end date")
		return
	}

	taskOccs, err := h.tasks.Occurrences(familyID, start, end)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	appOccs, err := h.appointments.Occurrences(familyID, start, end)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, r, http.StatusOK, occurrencesResponse{Tasks: taskOccs, Appointments: appOccs})
}

func (h *Handler) calendarFeed(w http.ResponseWriter, r *http.Request) {
	familyID := r.URL.Query().Get("familyId")
	if familyID == "" {
		h.writeError(w, r, http.StatusBadRequest, "familyId is required")
		return
	}
	appointments, err := h.appointments.List(familyID)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	if err := calendar.Write(w, appointments, h.timezone); err != nil {
		log.Printf("%s %s %s - Error writing calendar feed: %v", r.Method, r.URL.Path, r.UserAgent(), err)
		return
	}
	log.Printf("%s %s %s %d", r.Method, r.URL.Path, r.UserAgent(), http.StatusOK)
}

// === Push ===

func (h *Handler) pushSubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID       string `json:"userId"`
		FamilyID     string `json:"familyId"`
		Subscription struct {
			Endpoint string `json:"endpoint"`
			Keys     struct {
				P256dh string `json:"p256dh"`
				Auth   string `json:"auth"`
			} `json:"keys"`
		} `json:"subscription"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" || req.Subscription.Endpoint == "" {
		h.writeError(w, r, http.StatusBadRequest, "userId and subscription are required")
		return
	}

	sub := &domain.PushSubscription{
		UserID:   req.UserID,
		FamilyID: req.FamilyID,
		Endpoint: req.Subscription.Endpoint,
		P256dh:   req.Subscription.Keys.P256dh,
		Auth:     req.Subscription.Keys.Auth,
	}
	if err := h.storage.SavePushSubscription(sub); err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) pushUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" {
		h.writeError(w, r, http.StatusBadRequest, "userId is required")
		return
	}
	if err := h.storage.DeletePushSubscriptionsByUser(req.UserID); err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{"success": true})
}

// scheduleAppointment recomputes the reminder set for an appointment from
// the user's lead times. Missing timings fall back to the defaults.
func (h *Handler) scheduleAppointment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AppointmentID string                  `json:"appointmentId"`
		Timings       []domain.ReminderTiming `json:"timings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.AppointmentID == "" {
		h.writeError(w, r, http.StatusBadRequest, "appointmentId is required")
		return
	}

	appointment, err := h.appointments.Get(req.AppointmentID)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if appointment == nil {
		h.writeError(w, r, http.StatusNotFound, "appointment not found")
		return
	}

	timings := req.Timings
	if timings == nil {
		timings = domain.DefaultReminderTimings()
	}
	count, err := h.notifications.ScheduleAppointmentReminders(appointment, timings, time.Now())
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{"success": true, "count": count})
}

func (h *Handler) debugScheduled(w http.ResponseWriter, r *http.Request) {
	notifications, err := h.notifications.ListScheduled()
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if notifications == nil {
		notifications = []*domain.ScheduledNotification{}
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{"notifications": notifications})
}

func (h *Handler) debugSubscriptions(w http.ResponseWriter, r *http.Request) {
	familyID := r.URL.Query().Get("familyId")
	if familyID == "" {
		h.writeError(w, r, http.StatusBadRequest, "familyId is required")
		return
	}
	subs, err := h.storage.ListPushSubscriptionsByFamily(familyID)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if subs == nil {
		subs = []*domain.PushSubscription{}
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{"subscriptions": subs})
}

// === helpers ===

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
	log.Printf("%s %s %s %d", r.Method, r.URL.Path, r.UserAgent(), status)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
	log.Printf("%s %s %s %d - %s", r.Method, r.URL.Path, r.UserAgent(), status, msg)
}

func (h *Handler) writeStatus(w http.ResponseWriter, r *http.Request, status int) {
	w.WriteHeader(status)
	log.Printf("%s %s %s %d", r.Method, r.URL.Path, r.UserAgent(), status)
}
