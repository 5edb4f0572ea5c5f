package domain

import "fmt"

// Resequence assigns each task its slice index as order and returns the
// renumbered copy together with the ids whose order changed.
func Resequence(tasks []Task) ([]Task, []string) {
	out := make([]Task, len(tasks))
	var changed []string
	for i, t := range tasks {
		if t.Order != i {
			changed = append(changed, t.ID)
		}
		t.Order = i
		out[i] = t
	}
	return out, changed
}

// Relocate moves the task at index from to index to, shifting the tasks in
// between. Orders are left as they were so callers can tell which positions
// changed. The input slice is not modified.
func Relocate(tasks []Task, from, to int) ([]Task, error) {
	if from < 0 || from >= len(tasks) {
		return nil, fmt.Errorf("move from index %d out of range [0,%d)", from, len(tasks))
	}
	if to < 0 || to >= len(tasks) {
		return nil, fmt.Errorf("move to index %d out of range [0,%d)", to, len(tasks))
	}
	moved := make([]Task, 0, len(tasks))
	moved = append(moved, tasks[:from]...)
	moved = append(moved, tasks[from+1:]...)
	moved = append(moved[:to], append([]Task{tasks[from]}, moved[to:]...)...)
	return moved, nil
}

// MoveTask relocates a task and resequences the result.
func MoveTask(tasks []Task, from, to int) ([]Task, []string, error) {
	moved, err := Relocate(tasks, from, to)
	if err != nil {
		return nil, nil, err
	}
	out, changed := Resequence(moved)
	return out, changed, nil
}

// ArrangeByIDs orders tasks so the listed ids come first in the given order,
// followed by the remaining tasks in their current relative order. Unknown or
// repeated ids are rejected.
func ArrangeByIDs(tasks []Task, ids []string) ([]Task, error) {
	index := make(map[string]int, len(tasks))
	for i, t := range tasks {
		index[t.ID] = i
	}
	used := make(map[string]bool, len(ids))
	out := make([]Task, 0, len(tasks))
	for _, id := range ids {
		i, ok := index[id]
		if !ok {
			return nil, fmt.Errorf("%w: task %s", ErrNotFound, id)
		}
		if used[id] {
			return nil, Invalid("ids", "task "+id+" listed more than once")
		}
		used[id] = true
		out = append(out, tasks[i])
	}
	for _, t := range tasks {
		if !used[t.ID] {
			out = append(out, t)
		}
	}
	return out, nil
}
