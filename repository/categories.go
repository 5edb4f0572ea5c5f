package repository

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"taskflow-api/domain"
	"taskflow-api/storage"
)

// Categories is the category repository. Deleting a category leaves the
// tasks that reference it untouched.
type Categories struct {
	repo recordRepo[domain.Category]
}

func NewCategories(store storage.RecordStore, logger *log.Logger) *Categories {
	return &Categories{repo: recordRepo[domain.Category]{
		store:      store,
		logger:     loggerOrDefault(logger),
		entity:     "category",
		collection: storage.CollectionCategories,
		fields:     categoryFields,
		fieldNames: categoryFieldNames,
		fromRecord: CategoryFromRecord,
		orderOf:    func(c domain.Category) int { return c.Order },
	}}
}

func (r *Categories) GetAll(ctx context.Context) ([]domain.Category, error) {
	return r.repo.getAll(ctx)
}

func (r *Categories) GetByID(ctx context.Context, id string) (domain.Category, error) {
	return r.repo.getByID(ctx, id)
}

// Create stores a new category, defaulting icon and color to the first
// entries of the offered sets.
func (r *Categories) Create(ctx context.Context, p domain.CategoryPatch) (domain.Category, error) {
	fields := map[string]string{}
	if p.Name == nil || strings.TrimSpace(*p.Name) == "" {
		fields["name"] = "is required"
	} else {
		p.Name = domain.Ptr(strings.TrimSpace(*p.Name))
	}
	if p.Order != nil && *p.Order < 0 {
		fields["order"] = "must not be negative"
	}
	if len(fields) > 0 {
		return domain.Category{}, domain.NewValidationError(fields)
	}

	if p.Icon == nil || *p.Icon == "" {
		p.Icon = domain.Ptr(domain.CategoryIcons[0])
	}
	if p.Color == nil || *p.Color == "" {
		p.Color = domain.Ptr(domain.CategoryColors[0])
	}
	if p.Order == nil {
		n, err := r.repo.count(ctx)
		if err != nil {
			return domain.Category{}, err
		}
		p.Order = &n
	}
	return r.repo.create(ctx, CategoryRecordPatch(p))
}

func (r *Categories) Update(ctx context.Context, id string, p domain.CategoryPatch) (domain.Category, error) {
	if p.Empty() {
		return domain.Category{}, domain.Invalid("fields", "nothing to update")
	}
	fields := map[string]string{}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			fields["name"] = "is required"
		}
		p.Name = &name
	}
	if p.Order != nil && *p.Order < 0 {
		fields["order"] = "must not be negative"
	}
	if len(fields) > 0 {
		return domain.Category{}, domain.NewValidationError(fields)
	}
	return r.repo.update(ctx, id, CategoryRecordPatch(p))
}

func (r *Categories) Delete(ctx context.Context, id string) (bool, error) {
	return r.repo.delete(ctx, id)
}
