package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/2kPi/OpenFamily/internal/domain"
)

// AgendaService builds the morning digest of a family's day.
type AgendaService struct {
	tasks        *TaskService
	appointments *AppointmentService
}

func NewAgendaService(tasks *TaskService, appointments *AppointmentService) *AgendaService {
	return &AgendaService{tasks: tasks, appointments: appointments}
}

type agendaLine struct {
	time  string
	label string
}

// DailyDigest returns the digest body for the given civil date, and whether
// there is anything to announce at all.
func (s *AgendaService) DailyDigest(familyID string, day time.Time) (string, bool, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	date := domain.FormatDate(dayStart)

	var lines []agendaLine

	appointments, err := s.appointments.List(familyID)
	if err != nil {
		return "", false, fmt.Errorf("list appointments: %w", err)
	}
	appOccs, err := s.appointments.Occurrences(familyID, dayStart, dayStart)
	if err != nil {
		return "", false, err
	}
	for _, a := range appointments {
		for _, occ := range appOccs[a.ID] {
			if occ.Date != date {
				continue
			}
			label := a.Title
			if a.Location != "" {
				label += " (" + a.Location + ")"
			}
			lines = append(lines, agendaLine{time: occ.Time, label: "📅 " + occ.Time + " " + label})
		}
	}

	tasks, err := s.tasks.List(familyID)
	if err != nil {
		return "", false, fmt.Errorf("list tasks: %w", err)
	}
	taskOccs, err := s.tasks.Occurrences(familyID, dayStart, dayStart)
	if err != nil {
		return "", false, err
	}
	for _, t := range tasks {
		for _, occ := range taskOccs[t.ID] {
			// Non-recurring occurrences come back unfiltered; keep today's only.
			if occ.Date != date || t.IsDoneOn(date) {
				continue
			}
			label := "✔️ " + t.Title
			if occ.Time != "" {
				label = "✔️ " + occ.Time + " " + t.Title
			}
			lines = append(lines, agendaLine{time: occ.Time, label: label})
		}
	}

	if len(lines) == 0 {
		return "", false, nil
	}

	// Timed entries first, in order; untimed tasks at the end.
	sort.SliceStable(lines, func(i, j int) bool {
		if (lines[i].time == "") != (lines[j].time == "") {
			return lines[i].time != ""
		}
		return lines[i].time < lines[j].time
	})

	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(l.label)
		sb.WriteByte('\n')
	}
	return strings.TrimSpace(sb.String()), true, nil
}
