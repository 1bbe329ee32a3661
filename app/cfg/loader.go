package cfg

import (
	"cmp"
	"fmt"
	"log/slog"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage
	DBPath string `long:"db-path" env:"DB_PATH" default:"./feed-cascade.db" description:"Path to the sqlite content database"`

	// HTTP server
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl      string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://feeds.example.com)"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Cascade
	LevelsFile        string        `long:"levels-file" env:"LEVELS_FILE" description:"YAML file describing the cascade levels (built-in levels when empty)"`
	CapFraction       float64       `long:"cap-fraction" env:"CAP_FRACTION" default:"0.4" description:"Largest share of a feed a single author may fill (0 or 1 disables the cap)"`
	Overfetch         float64       `long:"overfetch" env:"OVERFETCH" default:"1.5" description:"Multiplier applied to the remaining item count when querying a level"`
	QueryTimeout      time.Duration `long:"query-timeout" env:"QUERY_TIMEOUT" default:"3s" description:"Timeout of a single cascade level query"`
	BreakerFailures   uint32        `long:"breaker-failures" env:"BREAKER_FAILURES" default:"5" description:"Consecutive failures that open a level's circuit breaker"`
	BreakerCooldown   time.Duration `long:"breaker-cooldown" env:"BREAKER_COOLDOWN" default:"30s" description:"How long an open breaker waits before probing the level again"`
	DefaultTargetSize int           `long:"default-size" env:"DEFAULT_TARGET_SIZE" default:"20" description:"Feed size when a request does not ask for one"`
	MaxTargetSize     int           `long:"max-size" env:"MAX_TARGET_SIZE" default:"100" description:"Largest feed size a request may ask for"`

	// Result cache
	CacheCapacity int           `long:"cache-capacity" env:"CACHE_CAPACITY" default:"1000" description:"Maximum number of cached feed results"`
	CacheTTL      time.Duration `long:"cache-ttl" env:"CACHE_TTL" default:"5m" description:"Lifetime of a cached feed result"`

	// Background tasks
	WorkerCount       int           `long:"worker-count" env:"WORKER_COUNT" default:"2" description:"Number of background workers"`
	SchedulerInterval int           `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"60" description:"Scheduler interval in seconds"`
	ImportURLs        []string      `long:"import-url" env:"IMPORT_URLS" env-delim:"," description:"RSS/Atom feeds imported as promoted content (repeatable)"`
	ImportInterval    time.Duration `long:"import-interval" env:"IMPORT_INTERVAL" default:"15m" description:"How often promoted feeds are re-imported"`
	MaxFeedSize       int64         `long:"max-feed-size" env:"MAX_FEED_SIZE" default:"10485760" description:"Maximum size in bytes of an imported feed"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Feed-Cascade/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load parses args and the environment. It returns nil, nil when help was
// requested.
func Load(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:            raw.DBPath,
		Port:              raw.Port,
		BaseUrl:           raw.BaseUrl,
		APIAccessKey:      raw.APIAccessKey,
		LevelsFile:        raw.LevelsFile,
		CapFraction:       raw.CapFraction,
		Overfetch:         raw.Overfetch,
		QueryTimeout:      raw.QueryTimeout,
		BreakerFailures:   raw.BreakerFailures,
		BreakerCooldown:   raw.BreakerCooldown,
		DefaultTargetSize: raw.DefaultTargetSize,
		MaxTargetSize:     raw.MaxTargetSize,
		CacheCapacity:     raw.CacheCapacity,
		CacheTTL:          raw.CacheTTL,
		WorkerCount:       raw.WorkerCount,
		SchedulerInterval: raw.SchedulerInterval,
		ImportURLs:        raw.ImportURLs,
		ImportInterval:    raw.ImportInterval,
		MaxFeedSize:       raw.MaxFeedSize,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		slog.Warn("Invalid timezone, using system default", "timezone", cfg.Timezone, "error", err)
	}

	return cfg, nil
}

func (c *Cfg) validate() error {
	if c.CapFraction < 0 || c.CapFraction > 1 {
		return fmt.Errorf("cap fraction must be between 0 and 1, got %g", c.CapFraction)
	}
	if c.Overfetch < 1 {
		return fmt.Errorf("overfetch must be at least 1, got %g", c.Overfetch)
	}
	if c.DefaultTargetSize <= 0 {
		return fmt.Errorf("default target size must be positive, got %d", c.DefaultTargetSize)
	}
	if c.MaxTargetSize < c.DefaultTargetSize {
		return fmt.Errorf("max target size %d is below the default size %d", c.MaxTargetSize, c.DefaultTargetSize)
	}
	if c.CacheCapacity <= 0 {
		return fmt.Errorf("cache capacity must be positive, got %d", c.CacheCapacity)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("worker count must be positive, got %d", c.WorkerCount)
	}
	if c.MaxFeedSize <= 0 {
		return fmt.Errorf("max feed size must be positive, got %d", c.MaxFeedSize)
	}
	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			slog.Debug("Timezone configured", "timezone", timezone)
		}
	}
	return nil
}
