package feed

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/lysyi3m/feed-cascade/app/cache"
	"github.com/lysyi3m/feed-cascade/app/content"
)

const (
	DefaultCapFraction  = 0.4
	DefaultOverfetch    = 1.5
	DefaultQueryTimeout = 3 * time.Second
)

// ResultCache is the part of the result cache the builder needs.
type ResultCache interface {
	Get(key string) (*content.FeedResult, bool)
	Generation() uint64
	SetIfGeneration(key, viewerID string, result *content.FeedResult, ttl time.Duration, generation uint64) bool
}

var _ ResultCache = (*cache.ResultCache)(nil)

type Config struct {
	CapFraction     float64
	Overfetch       float64
	CacheTTL        time.Duration
	QueryTimeout    time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Builder assembles feeds by walking the cascade levels in order.
type Builder struct {
	store    content.Store
	cache    ResultCache
	levels   []Level
	guards   map[string]*levelGuard
	config   Config
	recorder Recorder
}

func NewBuilder(store content.Store, resultCache ResultCache, levels []Level, config Config) *Builder {
	if config.CapFraction == 0 {
		config.CapFraction = DefaultCapFraction
	}
	if config.Overfetch < 1 {
		config.Overfetch = DefaultOverfetch
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = cache.DefaultTTL
	}
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = DefaultQueryTimeout
	}

	levels = append([]Level(nil), levels...)
	guards := make(map[string]*levelGuard, len(levels))
	for _, level := range levels {
		guards[level.Name] = newLevelGuard(level.Name, config.BreakerFailures, config.BreakerCooldown)
	}

	return &Builder{
		store:    store,
		cache:    resultCache,
		levels:   levels,
		guards:   guards,
		config:   config,
		recorder: nopRecorder{},
	}
}

func (b *Builder) SetRecorder(recorder Recorder) {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	b.recorder = recorder
}

func (b *Builder) Levels() []Level {
	return append([]Level(nil), b.levels...)
}

// LevelStates reports the breaker state of every level, keyed by level name.
func (b *Builder) LevelStates() map[string]string {
	states := make(map[string]string, len(b.guards))
	for name, guard := range b.guards {
		states[name] = guard.state().String()
	}
	return states
}

// Build returns the feed for req. Store failures never surface as errors:
// a level that fails is recorded in the metadata and the next level is
// tried. Only an invalid request or a failing must-succeed level returns an
// error.
func (b *Builder) Build(ctx context.Context, req content.FeedRequest) (*content.FeedResult, error) {
	start := time.Now()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	viewerID := content.NormalizeID(req.ViewerID)
	key := cache.Key(req)

	if !req.ForceRefresh {
		if cached, ok := b.cache.Get(key); ok {
			// GeneratedAt keeps the original build time; Elapsed is this lookup.
			cached.Metadata.CacheHit = true
			cached.Metadata.Elapsed = time.Since(start)
			b.recorder.ObserveBuild(cached.Metadata)
			slog.Debug("Feed served from cache", "viewer", viewerID, "items", len(cached.Items))
			return cached, nil
		}
	}

	generation := b.cache.Generation()
	metrics := startBuildMetrics()
	following := normalizeIDs(req.Following)

	collected, err := b.collect(ctx, req, following, metrics)
	if err != nil {
		return nil, err
	}

	items, diversity := Diversify(collected, b.config.CapFraction, req.TargetSize, following)
	if len(items) > req.TargetSize {
		items = items[:req.TargetSize]
	}

	result := &content.FeedResult{
		Items:    items,
		Metadata: metrics.metadata(diversity),
	}

	if len(result.Items) > 0 {
		if !b.cache.SetIfGeneration(key, viewerID, result, b.config.CacheTTL, generation) {
			slog.Debug("Feed not cached, content changed during build", "viewer", viewerID)
		}
	}

	b.recorder.ObserveBuild(result.Metadata)

	slog.Debug("Feed built",
		"viewer", viewerID,
		"items", len(result.Items),
		"levels_used", result.Metadata.CascadeLevelsUsed,
		"levels_with_data", result.Metadata.LevelsWithData,
		"failed_levels", result.Metadata.FailedLevels,
		"duration", result.Metadata.Elapsed)

	return result, nil
}

func (b *Builder) collect(ctx context.Context, req content.FeedRequest, following []string, metrics *buildMetrics) ([]content.ContentItem, error) {
	seen := make(map[string]struct{})
	var collected []content.ContentItem

	for _, level := range b.levels {
		admissible := b.admissible(collected, req.TargetSize, following)
		if admissible >= req.TargetSize {
			break
		}
		if level.PrivilegedOnly && !req.Privileged {
			continue
		}
		if ctx.Err() != nil {
			slog.Warn("Feed build cancelled, skipping remaining levels", "viewer", req.ViewerID, "level", level.Name, "error", ctx.Err())
			break
		}

		metrics.attempted()

		limit := overfetchLimit(req.TargetSize-admissible, b.config.Overfetch) + len(collected)
		items, err := b.queryLevel(ctx, level, following, limit)
		if err != nil {
			metrics.failed(level.Name)
			slog.Warn("Cascade level failed",
				"viewer", req.ViewerID,
				"level", level.Name,
				"kind", string(content.Classify(err)),
				"error", err)
			if level.MustSucceed {
				return nil, fmt.Errorf("required cascade level %s failed: %w", level.Name, err)
			}
			continue
		}

		if len(items) > 0 {
			metrics.returnedData()
		}

		added := 0
		for _, item := range items {
			normalized, err := content.Normalize(item)
			if err != nil {
				slog.Debug("Skipping invalid item", "level", level.Name, "error", err)
				continue
			}
			if normalized.Flagged {
				continue
			}
			if _, dup := seen[normalized.ID]; dup {
				continue
			}
			seen[normalized.ID] = struct{}{}
			collected = append(collected, normalized)
			added++
		}

		slog.Debug("Cascade level queried", "viewer", req.ViewerID, "level", level.Name,
			"limit", limit, "returned", len(items), "added", added)
	}

	return collected, nil
}

// admissible is the number of collected items that would survive the
// diversity pass.
func (b *Builder) admissible(collected []content.ContentItem, targetSize int, following []string) int {
	if len(collected) == 0 {
		return 0
	}
	admitted, _ := Diversify(collected, b.config.CapFraction, targetSize, following)
	return len(admitted)
}

func (b *Builder) queryLevel(ctx context.Context, level Level, following []string, limit int) ([]content.ContentItem, error) {
	query := content.Query{
		Privacy:        level.Privacy,
		ExcludeFlagged: true,
		OrderBy:        content.OrderRecency,
		Limit:          limit,
	}

	switch level.Scope {
	case ScopeFollowed:
		if len(following) == 0 {
			b.recorder.ObserveLevel(level.Name, OutcomeEmpty, 0)
			return nil, nil
		}
		query.Authors = content.Authors(following...)
	case ScopePromoted:
		query.Authors = content.AnyAuthor()
		query.PromotedOnly = true
	default:
		query.Authors = content.AnyAuthor()
	}

	queryCtx, cancel := context.WithTimeout(ctx, b.config.QueryTimeout)
	defer cancel()

	start := time.Now()
	items, err := b.guards[level.Name].query(func() ([]content.ContentItem, error) {
		return b.store.Query(queryCtx, query)
	})
	duration := time.Since(start)

	switch {
	case err != nil:
		b.recorder.ObserveLevel(level.Name, OutcomeFailure, duration)
	case len(items) == 0:
		b.recorder.ObserveLevel(level.Name, OutcomeEmpty, duration)
	default:
		b.recorder.ObserveLevel(level.Name, OutcomeData, duration)
	}

	return items, err
}

func overfetchLimit(remaining int, overfetch float64) int {
	return max(int(math.Ceil(float64(remaining)*overfetch)), 1)
}

func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = content.NormalizeID(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
