package tasks

import (
	"context"

	"github.com/lysyi3m/feed-cascade/app/content"
	"github.com/lysyi3m/feed-cascade/app/ingest"
)

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the composition root and the API to run background work.
// Example usage:
//
//	scheduler := NewScheduler(Config{...}, resultCache, importer)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewWarmFeedTask(builder, req))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

type CachePurger interface {
	PurgeExpired() int
}

type FeedBuilder interface {
	Build(ctx context.Context, req content.FeedRequest) (*content.FeedResult, error)
}

type FeedImporter interface {
	ImportURL(ctx context.Context, url string, source ingest.Source) (ingest.Result, error)
}
