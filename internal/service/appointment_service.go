package service

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2kPi/OpenFamily/internal/domain"
	"github.com/2kPi/OpenFamily/internal/recurrence"
	"github.com/2kPi/OpenFamily/internal/storage"
)

type AppointmentService struct {
	storage *storage.Storage
}

func NewAppointmentService(s *storage.Storage) *AppointmentService {
	return &AppointmentService{storage: s}
}

func (s *AppointmentService) Create(a *domain.Appointment) (*domain.Appointment, error) {
	a.Title = strings.TrimSpace(a.Title)
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Type == "" {
		a.Type = domain.AppointmentOther
	}

	if err := s.storage.CreateAppointment(a); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	return a, nil
}

func (s *AppointmentService) Get(id string) (*domain.Appointment, error) {
	return s.storage.GetAppointment(id)
}

func (s *AppointmentService) List(familyID string) ([]*domain.Appointment, error) {
	return s.storage.ListAppointmentsByFamily(familyID)
}

func (s *AppointmentService) Update(a *domain.Appointment) error {
	a.Title = strings.TrimSpace(a.Title)
	if err := a.Validate(); err != nil {
		return err
	}
	if err := s.storage.UpdateAppointment(a); err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	return nil
}

// Delete removes the appointment and cancels its pending reminders, so a
// deleted appointment can never fire a notification.
func (s *AppointmentService) Delete(id string) error {
	if err := s.storage.DeleteNotificationsForAppointment(id); err != nil {
		return fmt.Errorf("delete reminders: %w", err)
	}
	if err := s.storage.DeleteAppointment(id); err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	return nil
}

// Occurrences expands every appointment of the family over [start, end].
func (s *AppointmentService) Occurrences(familyID string, start, end time.Time) (map[string][]recurrence.Occurrence, error) {
	appointments, err := s.storage.ListAppointmentsByFamily(familyID)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	result := make(map[string][]recurrence.Occurrence, len(appointments))
	for _, a := range appointments {
		occs, err := recurrence.Expand(recurrence.FromAppointment(a), start, end)
		if err != nil {
			log.Printf("Error expanding appointment %s: %v", a.ID, err)
			continue
		}
		result[a.ID] = occs
	}
	return result, nil
}
