package repository

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"taskflow-api/domain"
	"taskflow-api/storage"
)

// Tasks is the task repository.
type Tasks struct {
	repo recordRepo[domain.Task]
	now  func() time.Time
}

func NewTasks(store storage.RecordStore, logger *log.Logger) *Tasks {
	r := &Tasks{now: time.Now}
	r.repo = recordRepo[domain.Task]{
		store:      store,
		logger:     loggerOrDefault(logger),
		entity:     "task",
		collection: storage.CollectionTasks,
		fields:     taskFields,
		fieldNames: taskFieldNames,
		fromRecord: func(rec storage.Record) domain.Task { return taskFromRecord(rec, r.now()) },
		orderOf:    func(t domain.Task) int { return t.Order },
	}
	return r
}

// GetAll returns every task ordered by position.
func (r *Tasks) GetAll(ctx context.Context) ([]domain.Task, error) {
	return r.repo.getAll(ctx)
}

func (r *Tasks) GetByID(ctx context.Context, id string) (domain.Task, error) {
	return r.repo.getByID(ctx, id)
}

// Create stores a new task. Priority defaults to medium, the task starts
// open, and without an explicit order it goes to the end of the list.
func (r *Tasks) Create(ctx context.Context, p domain.TaskPatch) (domain.Task, error) {
	fields := map[string]string{}
	if p.Title == nil || strings.TrimSpace(*p.Title) == "" {
		fields["title"] = "is required"
	} else {
		p.Title = domain.Ptr(strings.TrimSpace(*p.Title))
	}
	if p.Priority == nil {
		p.Priority = domain.Ptr(domain.PriorityMedium)
	} else if !p.Priority.Valid() {
		fields["priority"] = "must be one of high, medium, low"
	}
	if p.Order != nil && *p.Order < 0 {
		fields["order"] = "must not be negative"
	}
	if len(fields) > 0 {
		return domain.Task{}, domain.NewValidationError(fields)
	}

	if p.Completed == nil {
		p.Completed = domain.Ptr(false)
	}
	p.CreatedAt = domain.Ptr(r.now().UTC())
	if p.Order == nil {
		n, err := r.repo.count(ctx)
		if err != nil {
			return domain.Task{}, err
		}
		p.Order = &n
	}
	return r.repo.create(ctx, TaskRecordPatch(p))
}

// Update applies the fields present in p to the task with the given id.
func (r *Tasks) Update(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error) {
	if p.Empty() {
		return domain.Task{}, domain.Invalid("fields", "nothing to update")
	}
	fields := map[string]string{}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			fields["title"] = "is required"
		}
		p.Title = &title
	}
	if p.Priority != nil && !p.Priority.Valid() {
		fields["priority"] = "must be one of high, medium, low"
	}
	if p.CreatedAt != nil {
		fields["createdAt"] = "cannot be changed"
	}
	if p.Order != nil && *p.Order < 0 {
		fields["order"] = "must not be negative"
	}
	if len(fields) > 0 {
		return domain.Task{}, domain.NewValidationError(fields)
	}
	return r.repo.update(ctx, id, TaskRecordPatch(p))
}

// Delete removes the task; true means the store confirmed the deletion.
func (r *Tasks) Delete(ctx context.Context, id string) (bool, error) {
	return r.repo.delete(ctx, id)
}
