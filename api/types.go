package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"taskflow-api/domain"
	"taskflow-api/repository"
)

// TaskRepository is the task persistence used by handlers.
type TaskRepository interface {
	GetAll(ctx context.Context) ([]domain.Task, error)
	GetByID(ctx context.Context, id string) (domain.Task, error)
	Create(ctx context.Context, p domain.TaskPatch) (domain.Task, error)
	Update(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// CategoryRepository is the category persistence used by handlers.
type CategoryRepository interface {
	GetAll(ctx context.Context) ([]domain.Category, error)
	GetByID(ctx context.Context, id string) (domain.Category, error)
	Create(ctx context.Context, p domain.CategoryPatch) (domain.Category, error)
	Update(ctx context.Context, id string, p domain.CategoryPatch) (domain.Category, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// Reorderer persists a new task order.
type Reorderer interface {
	Persist(ctx context.Context, tasks []domain.Task) (repository.ReorderResult, error)
	Move(ctx context.Context, tasks []domain.Task, from, to int) (repository.ReorderResult, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper rejects repeated create requests carrying the same idempotency key.
type Deduper interface {
	// Add records the key and returns true if it was newly added.
	Add(ctx context.Context, scope, key string) (bool, error)
	// Remove deletes a previously added key, used when the create fails.
	Remove(ctx context.Context, scope, key string) error
}

// Publisher delivers change events downstream.
type Publisher interface {
	Publish(ctx context.Context, ev domain.ChangeEvent) error
}

// Deps are the collaborators of the HTTP surface. Auth, Deduper and
// Notifier are optional; a nil value disables the feature.
type Deps struct {
	Tasks          TaskRepository
	Categories     CategoryRepository
	Reorder        Reorderer
	Auth           Authenticator
	Deduper        Deduper
	Notifier       *Notifier
	Logger         *log.Logger
	RequestTimeout time.Duration
}
