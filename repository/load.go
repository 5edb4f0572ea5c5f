package repository

import (
	"context"
	"sync"

	"taskflow-api/domain"
)

// TaskLister lists every task.
type TaskLister interface {
	GetAll(ctx context.Context) ([]domain.Task, error)
}

// CategoryLister lists every category.
type CategoryLister interface {
	GetAll(ctx context.Context) ([]domain.Category, error)
}

// Snapshot is the board state fetched at start-up.
type Snapshot struct {
	Tasks      []domain.Task
	Categories []domain.Category
}

// Load fetches tasks and categories concurrently. The board is only usable
// with both, so either failure fails the whole load and the first error
// is returned.
func Load(ctx context.Context, tasks TaskLister, categories CategoryLister) (Snapshot, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		once    sync.Once
		snap    Snapshot
		loadErr error
	)
	fail := func(err error) {
		once.Do(func() {
			loadErr = err
			cancel()
		})
	}
	wg.Add(2)
	go func() {
		defer wg.Done()
		list, err := tasks.GetAll(ctx)
		if err != nil {
			fail(err)
			return
		}
		snap.Tasks = list
	}()
	go func() {
		defer wg.Done()
		list, err := categories.GetAll(ctx)
		if err != nil {
			fail(err)
			return
		}
		snap.Categories = list
	}()
	wg.Wait()

	if loadErr != nil {
		return Snapshot{}, loadErr
	}
	return snap, nil
}
