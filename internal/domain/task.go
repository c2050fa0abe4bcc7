package domain

import (
	"fmt"
	"strings"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

type TaskCategory string

const (
	TaskCategoryHousehold TaskCategory = "household"
	TaskCategoryBaby      TaskCategory = "baby"
	TaskCategoryPersonal  TaskCategory = "personal"
	TaskCategoryOther     TaskCategory = "other"
)

// Task is a one-off or recurring to-do item.
//
// A non-recurring task is done when Completed is true. A recurring task
// tracks completion per occurrence in CompletedDates; the Completed flag is
// never consulted for it.
type Task struct {
	ID             string       `json:"id"`
	FamilyID       string       `json:"familyId"`
	Title          string       `json:"title"`
	Description    string       `json:"description,omitempty"`
	Category       TaskCategory `json:"category"`
	AssignedTo     string       `json:"assignedTo,omitempty"`
	DueDate        string       `json:"dueDate"`            // YYYY-MM-DD
	DueTime        string       `json:"dueTime,omitempty"`  // HH:MM
	Priority       Priority     `json:"priority"`
	Completed      bool         `json:"completed"`
	CompletedDates []string     `json:"completedDates,omitempty"` // YYYY-MM-DD per done occurrence
	Recurring      *Recurrence  `json:"recurring,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// Validate checks the fields the expander and scheduler depend on.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("task title cannot be empty")
	}
	if _, err := ParseDate(t.DueDate); err != nil {
		return fmt.Errorf("invalid dueDate %q: %w", t.DueDate, err)
	}
	if t.DueTime != "" {
		if _, err := ParseTimeOfDay(t.DueTime); err != nil {
			return fmt.Errorf("invalid dueTime %q: %w", t.DueTime, err)
		}
	}
	if t.Recurring != nil {
		if err := t.Recurring.Validate(); err != nil {
			return fmt.Errorf("invalid recurrence: %w", err)
		}
	}
	return nil
}

// IsDoneOn reports whether the occurrence on the given civil date is done.
// For recurring tasks this is set membership in CompletedDates, never the
// Completed flag.
func (t *Task) IsDoneOn(date string) bool {
	if t.Recurring == nil {
		return t.Completed
	}
	for _, d := range t.CompletedDates {
		if d == date {
			return true
		}
	}
	return false
}

// ToggleOccurrence flips the completion state of one occurrence. For
// non-recurring tasks it flips the Completed flag instead.
func (t *Task) ToggleOccurrence(date string) {
	if t.Recurring == nil {
		t.Completed = !t.Completed
		return
	}
	for i, d := range t.CompletedDates {
		if d == date {
			t.CompletedDates = append(t.CompletedDates[:i], t.CompletedDates[i+1:]...)
			return
		}
	}
	t.CompletedDates = append(t.CompletedDates, date)
}
