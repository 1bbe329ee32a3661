package cfg

import "time"

type Cfg struct {
	// Storage
	DBPath string

	// HTTP server
	Port         string
	BaseUrl      string
	APIAccessKey string

	// Cascade
	LevelsFile        string
	CapFraction       float64
	Overfetch         float64
	QueryTimeout      time.Duration
	BreakerFailures   uint32
	BreakerCooldown   time.Duration
	DefaultTargetSize int
	MaxTargetSize     int

	// Result cache
	CacheCapacity int
	CacheTTL      time.Duration

	// Background tasks
	WorkerCount       int
	SchedulerInterval int
	ImportURLs        []string
	ImportInterval    time.Duration
	MaxFeedSize       int64

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
