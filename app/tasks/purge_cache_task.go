package tasks

import (
	"context"
	"log/slog"
)

// PurgeCacheTask drops expired result cache entries. It is never retried;
// the next scheduler tick purges again.
type PurgeCacheTask struct {
	Task
	cache CachePurger
}

func NewPurgeCacheTask(cache CachePurger) *PurgeCacheTask {
	return &PurgeCacheTask{
		Task:  newTaskWithRetries(TaskTypePurgeCache, "", 0),
		cache: cache,
	}
}

func (t *PurgeCacheTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	purged := t.cache.PurgeExpired()

	if purged > 0 {
		slog.Info("Task completed",
			"type", "PurgedCache",
			"duration", t.GetDuration(),
			"purged", purged)
	}

	return nil
}
