package api

import (
	"context"

	"task-manager/domain"
)

// Store is the task list the handlers operate on.
type Store interface {
	List() []domain.Task
	Len() int
	Get(id string) (domain.Task, bool)
	Add(ctx context.Context, task domain.Task) (domain.Task, error)
	Update(ctx context.Context, id string, next domain.Task) (domain.Task, error)
	Remove(ctx context.Context, id string) (bool, error)
}

// Deduper remembers Idempotency-Key values of accepted create requests.
type Deduper interface {
	// Add records the key and returns true if it was not seen before.
	Add(ctx context.Context, key string) (bool, error)
	// Remove forgets a key so a failed request may be retried.
	Remove(ctx context.Context, key string) error
}
