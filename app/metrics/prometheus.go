package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/lysyi3m/feed-cascade/app/cache"
	"github.com/lysyi3m/feed-cascade/app/content"
	"github.com/lysyi3m/feed-cascade/app/feed"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "feed_cascade"

type CacheStatsSource interface {
	Stats() cache.Stats
}

// Registry exports feed build and cache numbers to Prometheus. It implements
// feed.Recorder.
type Registry struct {
	registry *prometheus.Registry

	Builds         *prometheus.CounterVec
	BuildDuration  prometheus.Histogram
	LevelQueries   *prometheus.CounterVec
	LevelDuration  *prometheus.HistogramVec
	LevelsUsed     prometheus.Histogram
	EmptyFeeds     prometheus.Counter
	MaxAuthorPosts prometheus.Histogram
}

var _ feed.Recorder = (*Registry)(nil)

func NewRegistry(stats CacheStatsSource) *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		Builds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "builds_total",
				Help:      "Total number of feed builds by cache outcome",
			},
			[]string{"cache_hit"},
		),

		BuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "build_duration_seconds",
				Help:      "Duration of uncached feed builds in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
		),

		LevelQueries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "level_queries_total",
				Help:      "Total number of cascade level queries by outcome",
			},
			[]string{"level", "outcome"},
		),

		LevelDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "level_query_duration_seconds",
				Help:      "Duration of cascade level queries in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"level"},
		),

		LevelsUsed: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "levels_used",
				Help:      "Number of cascade levels attempted per uncached build",
				Buckets:   []float64{1, 2, 3, 4, 5, 6, 8},
			},
		),

		EmptyFeeds: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "empty_feeds_total",
				Help:      "Total number of builds where no level returned data",
			},
		),

		MaxAuthorPosts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "max_posts_from_single_author",
				Help:      "Largest per-author share of a built feed",
				Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
			},
		),
	}

	r.registry.MustRegister(
		r.Builds,
		r.BuildDuration,
		r.LevelQueries,
		r.LevelDuration,
		r.LevelsUsed,
		r.EmptyFeeds,
		r.MaxAuthorPosts,
	)

	if stats != nil {
		r.registerCacheGauges(stats)
	}

	return r
}

func (r *Registry) registerCacheGauges(source CacheStatsSource) {
	gauge := func(name, help string, value func(cache.Stats) float64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Namespace: namespace, Subsystem: "cache", Name: name, Help: help},
			func() float64 { return value(source.Stats()) },
		)
	}

	r.registry.MustRegister(
		gauge("entries", "Number of cached feed results", func(s cache.Stats) float64 { return float64(s.TotalEntries) }),
		gauge("memory_bytes", "Estimated memory held by cached results", func(s cache.Stats) float64 { return float64(s.MemoryUsage) }),
		gauge("hit_ratio", "Cache hit ratio since start (0.0 to 1.0)", func(s cache.Stats) float64 { return s.HitRate }),
		gauge("fill_ratio", "Share of cache capacity in use", func(s cache.Stats) float64 { return s.FillPercentage }),
		gauge("evictions", "Entries evicted to stay within capacity", func(s cache.Stats) float64 { return float64(s.Evictions) }),
	)
}

func (r *Registry) ObserveLevel(level string, outcome feed.LevelOutcome, duration time.Duration) {
	r.LevelQueries.WithLabelValues(level, string(outcome)).Inc()
	if duration > 0 {
		r.LevelDuration.WithLabelValues(level).Observe(duration.Seconds())
	}
}

func (r *Registry) ObserveBuild(metadata content.FeedMetadata) {
	r.Builds.WithLabelValues(strconv.FormatBool(metadata.CacheHit)).Inc()
	if metadata.CacheHit {
		return
	}

	r.BuildDuration.Observe(metadata.Elapsed.Seconds())
	r.LevelsUsed.Observe(float64(metadata.CascadeLevelsUsed))
	r.MaxAuthorPosts.Observe(float64(metadata.Diversity.MaxPostsFromSingleUser))
	if metadata.LevelsWithData == 0 {
		r.EmptyFeeds.Inc()
	}
}

func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
