package feed

import (
	"time"

	"github.com/lysyi3m/feed-cascade/app/content"
)

type LevelOutcome string

const (
	OutcomeData    LevelOutcome = "data"
	OutcomeEmpty   LevelOutcome = "empty"
	OutcomeFailure LevelOutcome = "failure"
)

// Recorder receives the same numbers that end up in FeedMetadata, for
// exporting to an external sink.
type Recorder interface {
	ObserveLevel(level string, outcome LevelOutcome, duration time.Duration)
	ObserveBuild(metadata content.FeedMetadata)
}

type nopRecorder struct{}

func (nopRecorder) ObserveLevel(string, LevelOutcome, time.Duration) {}
func (nopRecorder) ObserveBuild(content.FeedMetadata) {}

// buildMetrics accumulates the counters of a single Build call.
type buildMetrics struct {
	startedAt       time.Time
	levelsAttempted int
	levelsWithData  int
	failedLevels    []string
}

func startBuildMetrics() *buildMetrics {
	return &buildMetrics{startedAt: time.Now()}
}

func (m *buildMetrics) attempted() {
	m.levelsAttempted++
}

func (m *buildMetrics) returnedData() {
	m.levelsWithData++
}

func (m *buildMetrics) failed(level string) {
	m.failedLevels = append(m.failedLevels, level)
}

func (m *buildMetrics) metadata(diversity content.DiversityMetrics) content.FeedMetadata {
	return content.FeedMetadata{
		Elapsed:           time.Since(m.startedAt),
		CascadeLevelsUsed: m.levelsAttempted,
		LevelsWithData:    m.levelsWithData,
		FailedLevels:      m.failedLevels,
		CacheHit:          false,
		Diversity:         diversity,
		GeneratedAt:       time.Now().UTC(),
	}
}
