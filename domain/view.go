package domain

import (
	"math"
	"sort"
	"strings"
)

// FilterAll disables a filter dimension.
const FilterAll = "all"

// Status filter values.
const (
	StatusCompleted = "completed"
	StatusPending   = "pending"
)

// Filters is the current filter state of the board. Empty values behave
// like FilterAll.
type Filters struct {
	Category string `json:"category"`
	Search   string `json:"search"`
	Priority string `json:"priority"`
	Status   string `json:"status"`
}

// Validate rejects priority and status values the board does not know.
func (f Filters) Validate() error {
	fields := map[string]string{}
	if p := f.Priority; p != "" && p != FilterAll && !Priority(p).Valid() {
		fields["priority"] = "must be all, high, medium or low"
	}
	switch f.Status {
	case "", FilterAll, StatusCompleted, StatusPending:
	default:
		fields["status"] = "must be all, completed or pending"
	}
	if len(fields) > 0 {
		return NewValidationError(fields)
	}
	return nil
}

// Group is one display bucket of the task list.
type Group struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Tasks []Task `json:"tasks"`
}

// Stats are computed over the full task set, never the filtered view.
type Stats struct {
	Completed      int `json:"completed"`
	Total          int `json:"total"`
	CompletionRate int `json:"completionRate"`
}

// View is everything the board renders for one filter state.
type View struct {
	VisibleTasks []Task         `json:"visibleTasks"`
	Groups       []Group        `json:"groups"`
	Stats        Stats          `json:"stats"`
	Counts       map[string]int `json:"counts"`
}

// Derive filters, sorts and groups tasks for display.
func Derive(tasks []Task, categories []Category, f Filters) View {
	visible := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if f.matches(t) {
			visible = append(visible, t)
		}
	}
	SortByOrder(visible)

	return View{
		VisibleTasks: visible,
		Groups:       GroupTasks(visible),
		Stats:        ComputeStats(tasks),
		Counts:       CategoryCounts(tasks, categories),
	}
}

func (f Filters) matches(t Task) bool {
	if c := f.Category; c != "" && c != FilterAll {
		if t.CategoryID == nil || *t.CategoryID != c {
			return false
		}
	}
	if q := f.Search; q != "" && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(q)) {
		return false
	}
	if p := f.Priority; p != "" && p != FilterAll && string(t.Priority) != p {
		return false
	}
	switch f.Status {
	case "", FilterAll:
	case StatusCompleted:
		if !t.Completed {
			return false
		}
	case StatusPending:
		if t.Completed {
			return false
		}
	default:
		return false
	}
	return true
}

// SortByOrder sorts tasks ascending by order, keeping the relative position of
// equal orders.
func SortByOrder(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Order < tasks[j].Order })
}

// GroupTasks buckets open tasks by priority and puts every completed task in a
// trailing Completed bucket. Empty buckets are left out.
func GroupTasks(tasks []Task) []Group {
	buckets := []Group{
		{Key: string(PriorityHigh), Title: "High Priority"},
		{Key: string(PriorityMedium), Title: "Medium Priority"},
		{Key: string(PriorityLow), Title: "Low Priority"},
		{Key: StatusCompleted, Title: "Completed"},
	}
	for _, t := range tasks {
		switch {
		case t.Completed:
			buckets[3].Tasks = append(buckets[3].Tasks, t)
		case t.Priority == PriorityHigh:
			buckets[0].Tasks = append(buckets[0].Tasks, t)
		case t.Priority == PriorityMedium:
			buckets[1].Tasks = append(buckets[1].Tasks, t)
		case t.Priority == PriorityLow:
			buckets[2].Tasks = append(buckets[2].Tasks, t)
		}
	}
	out := make([]Group, 0, len(buckets))
	for _, b := range buckets {
		if len(b.Tasks) > 0 {
			out = append(out, b)
		}
	}
	return out
}

// ComputeStats counts completed tasks and the rounded completion percentage.
func ComputeStats(tasks []Task) Stats {
	s := Stats{Total: len(tasks)}
	for _, t := range tasks {
		if t.Completed {
			s.Completed++
		}
	}
	if s.Total > 0 {
		s.CompletionRate = int(math.Round(100 * float64(s.Completed) / float64(s.Total)))
	}
	return s
}

// CategoryCounts returns the number of tasks per known category plus the
// total under FilterAll. Tasks pointing at unknown categories only count
// towards the total.
func CategoryCounts(tasks []Task, categories []Category) map[string]int {
	counts := make(map[string]int, len(categories)+1)
	counts[FilterAll] = len(tasks)
	for _, c := range categories {
		counts[c.ID] = 0
	}
	for _, t := range tasks {
		if t.CategoryID == nil {
			continue
		}
		if _, ok := counts[*t.CategoryID]; ok && *t.CategoryID != FilterAll {
			counts[*t.CategoryID]++
		}
	}
	return counts
}
