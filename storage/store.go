package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"task-manager/domain"
)

// LoadStatus describes what Open found in the backend.
type LoadStatus int

const (
	// LoadFresh means nothing had been saved yet.
	LoadFresh LoadStatus = iota
	// LoadRestored means the saved list was read successfully.
	LoadRestored
	// LoadDiscarded means saved data existed but could not be read, and the
	// store started empty.
	LoadDiscarded
)

func (s LoadStatus) String() string {
	switch s {
	case LoadFresh:
		return "fresh"
	case LoadRestored:
		return "restored"
	case LoadDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// LoadReport is the outcome of reading the backend at startup. ReadOnly is
// set when saved data could not be read and was left in place: changes are
// refused until a later load succeeds.
type LoadReport struct {
	Status   LoadStatus
	Tasks    int
	Err      error
	ReadOnly bool
}

// Store holds the ordered task list and writes it through to a Backend after
// every change.
type Store struct {
	mu      sync.Mutex
	backend Backend
	logger  *log.Logger
	tasks   []domain.Task
	newID   func() string
	// loadErr holds the failure of a load that left unread data in the
	// backend. While set, the in-memory list must not be saved over it.
	loadErr error
}

// Open creates a store and loads the saved list from backend. Load failures do
// not prevent startup: the store starts empty and the report says why.
func Open(ctx context.Context, backend Backend, logger *log.Logger) (*Store, LoadReport) {
	if backend == nil {
		panic("storage.Open: backend is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	s := &Store{
		backend: backend,
		logger:  logger,
		newID:   uuid.NewString,
	}
	return s, s.load(ctx)
}

func (s *Store) load(ctx context.Context) LoadReport {
	tasks, err := s.backend.Load(ctx)
	switch {
	case errors.Is(err, ErrNoData):
		s.logger.Info("no saved tasks, starting with an empty list")
		return LoadReport{Status: LoadFresh}
	case errors.Is(err, ErrMovedAside):
		s.logger.WithError(err).Warn("saved tasks could not be loaded, starting with an empty list")
		return LoadReport{Status: LoadDiscarded, Err: err}
	case err != nil:
		s.loadErr = err
		s.logger.WithError(err).Warn("saved tasks could not be loaded, changes are refused until they can be read")
		return LoadReport{Status: LoadDiscarded, Err: err, ReadOnly: true}
	}

	s.adopt(ctx, tasks)
	return LoadReport{Status: LoadRestored, Tasks: len(tasks)}
}

// adopt makes tasks the current list, giving a fresh ID to any task without
// one or sharing one with an earlier task.
func (s *Store) adopt(ctx context.Context, tasks []domain.Task) {
	assigned := 0
	seen := make(map[string]struct{}, len(tasks))
	for i := range tasks {
		if _, dup := seen[tasks[i].ID]; tasks[i].ID == "" || dup {
			tasks[i].ID = s.newID()
			assigned++
		}
		seen[tasks[i].ID] = struct{}{}
	}
	s.tasks = tasks
	if assigned > 0 {
		if err := s.backend.Save(ctx, s.tasks); err != nil {
			s.logger.WithError(err).Warn("failed to persist assigned task ids")
		}
	}
	s.logger.WithFields(log.Fields{"tasks": len(tasks), "assigned_ids": assigned}).Info("tasks loaded")
}

// ensureLoaded retries a startup load that left unread data in the backend.
// It must be called with s.mu held, before a mutation reads s.tasks.
func (s *Store) ensureLoaded(ctx context.Context, op string) error {
	if s.loadErr == nil {
		return nil
	}
	tasks, err := s.backend.Load(ctx)
	switch {
	case errors.Is(err, ErrNoData), errors.Is(err, ErrMovedAside):
		tasks = nil
	case err != nil:
		s.logger.WithError(err).WithField("op", op).Error("saved tasks still unreadable, change refused")
		return &SaveError{Op: op, Err: fmt.Errorf("%w: %v", ErrNotLoaded, err)}
	}
	s.loadErr = nil
	s.adopt(ctx, tasks)
	return nil
}

// List returns a copy of the tasks in display order.
func (s *Store) List() []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Len returns the number of tasks.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Get returns the task with the given id.
func (s *Store) Get(id string) (domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOfID(id); i >= 0 {
		return s.tasks[i], true
	}
	return domain.Task{}, false
}

// Add appends task to the end of the list and returns it with its new ID. Any
// ID already set on task is replaced.
func (s *Store) Add(ctx context.Context, task domain.Task) (domain.Task, error) {
	if err := task.Validate(); err != nil {
		return domain.Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx, "add"); err != nil {
		return domain.Task{}, err
	}

	task.ID = s.newID()
	next := make([]domain.Task, len(s.tasks), len(s.tasks)+1)
	copy(next, s.tasks)
	next = append(next, task)
	if err := s.commit(ctx, "add", next); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// Remove deletes the task with the given id. It reports false without
// touching storage when no such task exists.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx, "remove"); err != nil {
		return false, err
	}
	return s.removeAt(ctx, "remove", s.indexOfID(id))
}

// RemoveTask deletes the first task equal to task by value.
func (s *Store) RemoveTask(ctx context.Context, task domain.Task) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx, "remove"); err != nil {
		return false, err
	}
	return s.removeAt(ctx, "remove", s.indexOfValue(task))
}

// Update replaces the task with the given id, keeping its position and ID.
// It returns domain.ErrTaskNotFound and changes nothing when id is unknown.
func (s *Store) Update(ctx context.Context, id string, next domain.Task) (domain.Task, error) {
	if err := next.Validate(); err != nil {
		return domain.Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx, "update"); err != nil {
		return domain.Task{}, err
	}

	i := s.indexOfID(id)
	if i < 0 {
		return domain.Task{}, domain.ErrTaskNotFound
	}
	return s.replaceAt(ctx, "update", i, next)
}

// Replace swaps the first task equal to old by value for next. It reports
// false and leaves the list unchanged when old is not present.
func (s *Store) Replace(ctx context.Context, old, next domain.Task) (bool, error) {
	if err := next.Validate(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx, "update"); err != nil {
		return false, err
	}

	i := s.indexOfValue(old)
	if i < 0 {
		return false, nil
	}
	if _, err := s.replaceAt(ctx, "update", i, next); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) removeAt(ctx context.Context, op string, i int) (bool, error) {
	if i < 0 {
		return false, nil
	}
	next := make([]domain.Task, 0, len(s.tasks)-1)
	next = append(next, s.tasks[:i]...)
	next = append(next, s.tasks[i+1:]...)
	if err := s.commit(ctx, op, next); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) replaceAt(ctx context.Context, op string, i int, task domain.Task) (domain.Task, error) {
	task.ID = s.tasks[i].ID
	next := make([]domain.Task, len(s.tasks))
	copy(next, s.tasks)
	next[i] = task
	if err := s.commit(ctx, op, next); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// commit persists next and only then makes it the current list.
func (s *Store) commit(ctx context.Context, op string, next []domain.Task) error {
	if err := s.backend.Save(ctx, next); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"op":    op,
			"tasks": len(next),
		}).Error("saving tasks failed, change discarded")
		return &SaveError{Op: op, Err: err}
	}
	s.tasks = next
	s.logger.WithFields(log.Fields{"op": op, "tasks": len(next)}).Debug("tasks saved")
	return nil
}

func (s *Store) indexOfID(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) indexOfValue(task domain.Task) int {
	for i := range s.tasks {
		if s.tasks[i].Equal(task) {
			return i
		}
	}
	return -1
}
