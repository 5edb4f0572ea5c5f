package repository

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"taskflow-api/domain"
	"taskflow-api/storage"
)

// Remote field names of a task record.
const (
	taskTitle     = "title"
	taskCompleted = "completed"
	taskPriority  = "priority"
	taskCategory  = "category_id"
	taskDueDate   = "due_date"
	taskCreatedAt = "created_at"
	taskOrder     = "order"
)

// Remote field names of a category record.
const (
	categoryName  = "Name"
	categoryColor = "color"
	categoryIcon  = "icon"
	categoryOrder = "order"
)

var (
	taskFields     = []string{taskTitle, taskCompleted, taskPriority, taskCategory, taskDueDate, taskCreatedAt, taskOrder}
	categoryFields = []string{categoryName, categoryColor, categoryIcon, categoryOrder}
)

// Remote to entity field names, used to report store rejections in the
// vocabulary of the API.
var (
	taskFieldNames = map[string]string{
		taskTitle:     "title",
		taskCompleted: "completed",
		taskPriority:  "priority",
		taskCategory:  "categoryId",
		taskDueDate:   "dueDate",
		taskCreatedAt: "createdAt",
		taskOrder:     "order",
	}
	categoryFieldNames = map[string]string{
		categoryName:  "name",
		categoryColor: "color",
		categoryIcon:  "icon",
		categoryOrder: "order",
	}
)

// TaskFromRecord converts a stored record into a task, filling defaults for
// every missing field.
func TaskFromRecord(rec storage.Record) domain.Task {
	return taskFromRecord(rec, time.Now())
}

func taskFromRecord(rec storage.Record, now time.Time) domain.Task {
	t := domain.Task{
		ID:         rec.ID(),
		Title:      asString(rec[taskTitle]),
		Completed:  asBool(rec[taskCompleted]),
		Priority:   domain.PriorityMedium,
		CategoryID: reference(rec[taskCategory]),
		Order:      asInt(rec[taskOrder]),
		CreatedAt:  now.UTC(),
	}
	if p, ok := domain.ParsePriority(asString(rec[taskPriority])); ok {
		t.Priority = p
	}
	if s := asString(rec[taskDueDate]); s != "" {
		if d, err := domain.ParseDate(s); err == nil {
			t.DueDate = &d
		}
	}
	if s := asString(rec[taskCreatedAt]); s != "" {
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			t.CreatedAt = ts.UTC()
		}
	}
	return t
}

// CategoryFromRecord converts a stored record into a category.
func CategoryFromRecord(rec storage.Record) domain.Category {
	return domain.Category{
		ID:    rec.ID(),
		Name:  asString(rec[categoryName]),
		Color: asString(rec[categoryColor]),
		Icon:  asString(rec[categoryIcon]),
		Order: asInt(rec[categoryOrder]),
	}
}

// TaskRecordPatch builds the outbound record for a task change. Only fields
// set in the patch are present; cleared references are sent as nil.
func TaskRecordPatch(p domain.TaskPatch) storage.Record {
	rec := storage.Record{}
	if p.Title != nil {
		rec[taskTitle] = *p.Title
	}
	if p.Completed != nil {
		rec[taskCompleted] = *p.Completed
	}
	if p.Priority != nil {
		rec[taskPriority] = string(*p.Priority)
	}
	switch {
	case p.ClearCategory:
		rec[taskCategory] = nil
	case p.CategoryID != nil:
		rec[taskCategory] = *p.CategoryID
	}
	switch {
	case p.ClearDueDate:
		rec[taskDueDate] = nil
	case p.DueDate != nil:
		rec[taskDueDate] = p.DueDate.String()
	}
	if p.CreatedAt != nil {
		rec[taskCreatedAt] = p.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if p.Order != nil {
		rec[taskOrder] = *p.Order
	}
	return rec
}

// CategoryRecordPatch builds the outbound record for a category change.
func CategoryRecordPatch(p domain.CategoryPatch) storage.Record {
	rec := storage.Record{}
	if p.Name != nil {
		rec[categoryName] = *p.Name
	}
	if p.Color != nil {
		rec[categoryColor] = *p.Color
	}
	if p.Icon != nil {
		rec[categoryIcon] = *p.Icon
	}
	if p.Order != nil {
		rec[categoryOrder] = *p.Order
	}
	return rec
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(s)
	}
}

func asBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, _ := strconv.ParseBool(strings.TrimSpace(b))
		return parsed
	default:
		n, ok := asNumber(v)
		return ok && n != 0
	}
}

func asInt(v any) int {
	n, ok := asNumber(v)
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return int(n)
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// reference returns nil for any falsy raw reference.
func reference(v any) *string {
	switch r := v.(type) {
	case nil, bool:
		return nil
	case string:
		if strings.TrimSpace(r) == "" {
			return nil
		}
		return &r
	default:
		n, ok := asNumber(v)
		if !ok || n == 0 {
			return nil
		}
		s := strconv.FormatFloat(n, 'f', -1, 64)
		return &s
	}
}
