package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/feed-cascade/app/content"
)

// WarmFeedTask builds a viewer's feed ahead of the request so the next read
// is served from the cache.
type WarmFeedTask struct {
	Task
	Request content.FeedRequest
	builder FeedBuilder
}

func NewWarmFeedTask(builder FeedBuilder, req content.FeedRequest) *WarmFeedTask {
	req.ForceRefresh = true
	return &WarmFeedTask{
		Task:    NewTask(TaskTypeWarmFeed, req.ViewerID),
		Request: req,
		builder: builder,
	}
}

func (t *WarmFeedTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	result, err := t.builder.Build(ctx, t.Request)
	if err != nil {
		return fmt.Errorf("failed to build feed: %w", err)
	}

	// Nothing is cached when every level failed, so a retry is worthwhile.
	if len(result.Items) == 0 && len(result.Metadata.FailedLevels) > 0 {
		return fmt.Errorf("no cascade level returned data, failed levels: %v", result.Metadata.FailedLevels)
	}

	slog.Info("Task completed",
		"type", "WarmedFeed",
		"viewer", t.Target,
		"duration", t.GetDuration(),
		"items", len(result.Items),
		"levels_used", result.Metadata.CascadeLevelsUsed)

	return nil
}
