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

type TaskService struct {
	storage *storage.Storage
}

func NewTaskService(s *storage.Storage) *TaskService {
	return &TaskService{storage: s}
}

func (s *TaskService) Create(t *domain.Task) (*domain.Task, error) {
	t.Title = strings.TrimSpace(t.Title)
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Priority == "" {
		t.Priority = domain.PriorityMedium
	}
	if t.Category == "" {
		t.Category = domain.TaskCategoryOther
	}

	if err := s.storage.CreateTask(t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

func (s *TaskService) Get(id string) (*domain.Task, error) {
	return s.storage.GetTask(id)
}

func (s *TaskService) List(familyID string) ([]*domain.Task, error) {
	return s.storage.ListTasksByFamily(familyID)
}

func (s *TaskService) Update(t *domain.Task) error {
	t.Title = strings.TrimSpace(t.Title)
	if err := t.Validate(); err != nil {
		return err
	}
	if err := s.storage.UpdateTask(t); err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

func (s *TaskService) Delete(id string) error {
	return s.storage.DeleteTask(id)
}

// ToggleOccurrence flips completion of one occurrence. For recurring tasks
// the toggled date joins or leaves the completion record; the boolean flag is
// used only for one-off tasks.
func (s *TaskService) ToggleOccurrence(id, date string) (*domain.Task, error) {
	task, err := s.storage.GetTask(id)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if task == nil {
		return nil, fmt.Errorf("task not found")
	}
	if task.Recurring != nil {
		if _, err := domain.ParseDate(date); err != nil {
			return nil, fmt.Errorf("invalid occurrence date %q: %w", date, err)
		}
	}

	task.ToggleOccurrence(date)
	if err := s.storage.UpdateTask(task); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return task, nil
}

// Occurrences expands every task of the family over [start, end]. Expansion
// failures are logged and yield no occurrences for that task instead of
// failing the whole calendar view.
func (s *TaskService) Occurrences(familyID string, start, end time.Time) (map[string][]recurrence.Occurrence, error) {
	tasks, err := s.storage.ListTasksByFamily(familyID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	result := make(map[string][]recurrence.Occurrence, len(tasks))
	for _, t := range tasks {
		occs, err := recurrence.Expand(recurrence.FromTask(t), start, end)
		if err != nil {
			log.Printf("Error expanding task %s: %v", t.ID, err)
			continue
		}
		result[t.ID] = occs
	}
	return result, nil
}
