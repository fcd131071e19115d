package stats

import (
	"context"

	"github.com/quillnote/tasks-api/internal/models"
	"github.com/quillnote/tasks-api/internal/storage"
)

// Aggregator derives task counts from the task store. Pure read side:
// every call reflects the latest store contents, nothing is cached.
type Aggregator struct {
	store storage.TaskStore
}

// NewAggregator creates a stats aggregator over the given store.
func NewAggregator(store storage.TaskStore) *Aggregator {
	return &Aggregator{store: store}
}

// GetTaskStats counts the current tasks by status.
func (a *Aggregator) GetTaskStats(ctx context.Context) (models.TaskStats, error) {
	tasksList, err := a.store.List(ctx)
	if err != nil {
		return models.TaskStats{}, err
	}

	stats := models.TaskStats{Total: len(tasksList)}
	for _, task := range tasksList {
		switch task.Status {
		case models.TaskStatusTodo:
			stats.Todo++
		case models.TaskStatusInProgress:
			stats.InProgress++
		case models.TaskStatusDone:
			stats.Done++
		case models.TaskStatusCancelled:
			stats.Cancelled++
		}
	}
	return stats, nil
}
