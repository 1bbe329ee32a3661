package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/feed-cascade/app/ingest"
)

type ImportSource struct {
	URL    string
	Source ingest.Source
}

type ImportFeedTask struct {
	Task
	Source   ImportSource
	importer FeedImporter
}

func NewImportFeedTask(importer FeedImporter, source ImportSource) *ImportFeedTask {
	return &ImportFeedTask{
		Task:     NewTask(TaskTypeImportFeed, source.URL),
		Source:   source,
		importer: importer,
	}
}

func (t *ImportFeedTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	result, err := t.importer.ImportURL(ctx, t.Source.URL, t.Source.Source)
	if err != nil {
		return fmt.Errorf("failed to import feed: %w", err)
	}

	slog.Info("Task completed",
		"type", "ImportedFeed",
		"url", t.Source.URL,
		"duration", t.GetDuration(),
		"total", result.Total,
		"stored", result.Stored,
		"invalidated", result.Invalidated)

	return nil
}
