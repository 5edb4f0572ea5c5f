package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"taskflow-api/domain"
)

const defaultReorderConcurrency = 4

// TaskUpdater persists a partial task change.
type TaskUpdater interface {
	Update(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error)
}

// ReorderResult reports the outcome of persisting a new task order. Tasks
// always holds the locally applied order, whether or not every change was
// stored.
type ReorderResult struct {
	Tasks     []domain.Task
	Persisted []string
	Failed    map[string]error
}

// FailedIDs returns the ids that could not be persisted, sorted.
func (r ReorderResult) FailedIDs() []string {
	ids := make([]string, 0, len(r.Failed))
	for id := range r.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reorderer applies a new order locally, then writes the changed positions
// one update per task. Updates that fail are reported and never rolled back.
type Reorderer struct {
	tasks       TaskUpdater
	logger      *log.Logger
	concurrency int
}

func NewReorderer(tasks TaskUpdater, logger *log.Logger, concurrency int) *Reorderer {
	if concurrency <= 0 {
		concurrency = defaultReorderConcurrency
	}
	return &Reorderer{tasks: tasks, logger: loggerOrDefault(logger), concurrency: concurrency}
}

// Persist renumbers tasks densely in slice order and stores the order of
// every task whose position changed.
func (r *Reorderer) Persist(ctx context.Context, tasks []domain.Task) (ReorderResult, error) {
	ordered, changed := domain.Resequence(tasks)
	result := ReorderResult{Tasks: ordered, Failed: map[string]error{}}
	if len(changed) == 0 {
		return result, nil
	}

	orderByID := make(map[string]int, len(ordered))
	for _, t := range ordered {
		orderByID[t.ID] = t.Order
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, r.concurrency)
	)
	for _, id := range changed {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				result.Failed[id] = ctx.Err()
				mu.Unlock()
				return
			}
			order := orderByID[id]
			_, err := r.tasks.Update(ctx, id, domain.TaskPatch{Order: &order})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed[id] = err
				return
			}
			result.Persisted = append(result.Persisted, id)
		}(id)
	}
	wg.Wait()
	sort.Strings(result.Persisted)

	if len(result.Failed) == 0 {
		return result, nil
	}
	failed := result.FailedIDs()
	r.logger.WithFields(log.Fields{
		"failed":    len(failed),
		"persisted": len(result.Persisted),
		"task_ids":  strings.Join(failed, ","),
	}).Warn("reorder incomplete")
	return result, fmt.Errorf("%w: %d of %d tasks not saved (%s)", domain.ErrReorderIncomplete, len(failed), len(changed), strings.Join(failed, ", "))
}

// Move relocates the task at index from to index to and persists the result.
func (r *Reorderer) Move(ctx context.Context, tasks []domain.Task, from, to int) (ReorderResult, error) {
	moved, err := domain.Relocate(tasks, from, to)
	if err != nil {
		return ReorderResult{}, domain.Invalid("to", err.Error())
	}
	return r.Persist(ctx, moved)
}
