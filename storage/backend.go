package storage

import (
	"context"
	"errors"
	"fmt"

	"task-manager/domain"
)

// Backend persists the whole task list as one unit.
type Backend interface {
	// Load returns the persisted tasks in display order. It returns ErrNoData
	// when nothing has been saved yet.
	Load(ctx context.Context) ([]domain.Task, error)
	// Save replaces the persisted list with tasks. Implementations must not
	// retain the slice.
	Save(ctx context.Context, tasks []domain.Task) error
}

var (
	// ErrNoData means the backend holds no saved list, as on a fresh install.
	ErrNoData = errors.New("no saved tasks")
	// ErrCorruptData means saved data exists but cannot be decoded.
	ErrCorruptData = errors.New("saved tasks are unreadable")
	// ErrUnsupportedVersion is reported for documents written in a format
	// version this build does not know.
	ErrUnsupportedVersion = errors.New("unsupported tasks file version")
	// ErrMovedAside is wrapped into a Load error when the unreadable data was
	// moved out of the way, so a later Save cannot overwrite it.
	ErrMovedAside = errors.New("unreadable tasks moved aside")
	// ErrNotLoaded is reported for changes attempted while saved data exists
	// that the store has not been able to read.
	ErrNotLoaded = errors.New("saved tasks could not be read, changes are refused")
)

// SaveError reports a mutation whose result could not be persisted. The store
// has already discarded the change when it is returned.
type SaveError struct {
	Op  string
	Err error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("task change was not saved (%s): %v", e.Op, e.Err)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}
