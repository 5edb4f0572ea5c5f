package domain

import (
	"strings"
	"time"
)

// Priority ranks a task on the board.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority accepts any casing of high, medium or low.
func ParsePriority(s string) (Priority, bool) {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityHigh:
		return PriorityHigh, true
	case PriorityMedium:
		return PriorityMedium, true
	case PriorityLow:
		return PriorityLow, true
	default:
		return "", false
	}
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Task is a single board item as seen by the UI.
type Task struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Completed  bool      `json:"completed"`
	Priority   Priority  `json:"priority"`
	CategoryID *string   `json:"categoryId"` // nil when uncategorized
	DueDate    *Date     `json:"dueDate"`
	CreatedAt  time.Time `json:"createdAt"`
	Order      int       `json:"order"`
}

// TaskPatch carries the fields of a partial task change. Nil fields are left
// untouched; the Clear flags distinguish "set to nothing" from "leave as is".
type TaskPatch struct {
	Title         *string
	Completed     *bool
	Priority      *Priority
	CategoryID    *string
	ClearCategory bool
	DueDate       *Date
	ClearDueDate  bool
	CreatedAt     *time.Time
	Order         *int
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Completed == nil && p.Priority == nil &&
		p.CategoryID == nil && !p.ClearCategory && p.DueDate == nil &&
		!p.ClearDueDate && p.CreatedAt == nil && p.Order == nil
}

// Category groups tasks in the sidebar.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
	Order int    `json:"order"`
}

// CategoryPatch carries the fields of a partial category change.
type CategoryPatch struct {
	Name  *string
	Icon  *string
	Color *string
	Order *int
}

// Empty reports whether the patch changes nothing.
func (p CategoryPatch) Empty() bool {
	return p.Name == nil && p.Icon == nil && p.Color == nil && p.Order == nil
}

// Icons and colors offered when creating a category. The first entry of each
// list is the default.
var (
	CategoryIcons = []string{
		"Folder", "Briefcase", "Home", "ShoppingCart", "Heart",
		"Star", "BookOpen", "Coffee", "Car", "Gamepad2",
	}
	CategoryColors = []string{
		"#5B67CA", "#FF6B6B", "#4ECDC4", "#FFE66D", "#4D96FF",
		"#A78BFA", "#F472B6", "#FB7185", "#34D399", "#FBBF24",
	}
)

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
