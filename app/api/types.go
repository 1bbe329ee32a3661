package api

import (
	"context"
	"net/http"
	"time"

	"github.com/lysyi3m/feed-cascade/app/cache"
	"github.com/lysyi3m/feed-cascade/app/content"
	"github.com/lysyi3m/feed-cascade/app/database"
	"github.com/lysyi3m/feed-cascade/app/feed"
	"github.com/lysyi3m/feed-cascade/app/tasks"
)

type FeedBuilder interface {
	Build(ctx context.Context, req content.FeedRequest) (*content.FeedResult, error)
	LevelStates() map[string]string
}

type ResultCache interface {
	Stats() cache.Stats
	Clear()
	InvalidateAll() int
	InvalidateForViewer(viewerID string) int
	InvalidateForContent(contentID string) int
}

type ContentRepository interface {
	UpsertItem(ctx context.Context, item content.ContentItem) error
	SetFlagged(ctx context.Context, id string, flagged bool) error
	DeleteItem(ctx context.Context, id string) error
	GetItem(ctx context.Context, id string) (*content.ContentItem, error)
	GetItemCount(ctx context.Context) (int, error)
}

type GeneratorInterface interface {
	Run(channel feed.Channel, result *content.FeedResult) (string, error)
}

var (
	_ FeedBuilder        = (*feed.Builder)(nil)
	_ ResultCache        = (*cache.ResultCache)(nil)
	_ ContentRepository  = (*database.ContentRepository)(nil)
	_ GeneratorInterface = (*feed.Generator)(nil)
)

type Options struct {
	BaseUrl           string
	Version           string
	DefaultTargetSize int
	MaxTargetSize     int
}

type Handler struct {
	builder   FeedBuilder
	cache     ResultCache
	repo      ContentRepository
	generator GeneratorInterface
	scheduler tasks.TaskSchedulerInterface
	metrics   http.Handler
	options   Options
}

// ContentRequest is the body of POST /api/content.
type ContentRequest struct {
	ID        string     `json:"id"`
	AuthorID  string     `json:"author_id" binding:"required"`
	CreatedAt *time.Time `json:"created_at"`
	Privacy   string     `json:"privacy" binding:"required"`
	Promoted  bool       `json:"promoted"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Link      string     `json:"link"`
}

type FlagRequest struct {
	Flagged *bool `json:"flagged"`
}
