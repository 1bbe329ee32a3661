package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lysyi3m/feed-cascade/app/content"
	"github.com/lysyi3m/feed-cascade/app/ingest"
)

type mockPurger struct {
	calls atomic.Int32
}

func (m *mockPurger) PurgeExpired() int {
	m.calls.Add(1)
	return 2
}

type mockImporter struct {
	mu   sync.Mutex
	urls []string
	err  error
}

func (m *mockImporter) ImportURL(_ context.Context, url string, _ ingest.Source) (ingest.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.urls = append(m.urls, url)
	if m.err != nil {
		return ingest.Result{}, m.err
	}
	return ingest.Result{Total: 3, Stored: 3}, nil
}

func (m *mockImporter) imported() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.urls...)
}

type mockBuilder struct {
	result *content.FeedResult
	err    error
	reqs   []content.FeedRequest
}

func (m *mockBuilder) Build(_ context.Context, req content.FeedRequest) (*content.FeedResult, error) {
	m.reqs = append(m.reqs, req)
	return m.result, m.err
}

// flakyTask fails until it has been executed failUntil times.
type flakyTask struct {
	Task
	failUntil int32
	runs      atomic.Int32
	done      chan struct{}
}

func newFlakyTask(failUntil int32) *flakyTask {
	return &flakyTask{
		Task:      NewTask(TaskTypeWarmFeed, "viewer"),
		failUntil: failUntil,
		done:      make(chan struct{}),
	}
}

func (f *flakyTask) Execute(ctx context.Context) error {
	if n := f.runs.Add(1); n <= f.failUntil {
		return errors.New("transient failure")
	}
	close(f.done)
	return nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met before timeout")
}

func TestNewScheduler(t *testing.T) {
	scheduler := NewScheduler(Config{WorkerCount: 2, Interval: time.Second}, &mockPurger{}, nil)

	if scheduler.workerCount != 2 {
		t.Errorf("Expected worker count 2, got %d", scheduler.workerCount)
	}
	if scheduler.interval != time.Second {
		t.Errorf("Expected interval 1s, got %v", scheduler.interval)
	}
	if scheduler.Stats().CurrentWorkers != 2 {
		t.Errorf("Expected current workers 2, got %d", scheduler.Stats().CurrentWorkers)
	}

	defaults := NewScheduler(Config{}, nil, nil)
	if defaults.workerCount != 1 || defaults.interval != time.Minute {
		t.Errorf("Expected 1 worker and 1m interval by default, got %d and %v", defaults.workerCount, defaults.interval)
	}
}

func TestSchedulerPurgesCachePeriodically(t *testing.T) {
	purger := &mockPurger{}
	scheduler := NewScheduler(Config{WorkerCount: 1, Interval: 10 * time.Millisecond}, purger, nil)

	scheduler.Start()
	waitFor(t, 2*time.Second, func() bool { return purger.calls.Load() >= 2 })
	scheduler.Stop()

	if scheduler.Stats().TotalProcessed < 2 {
		t.Errorf("Expected at least 2 processed tasks, got %d", scheduler.Stats().TotalProcessed)
	}
}

func TestSchedulerImportsOnStartup(t *testing.T) {
	importer := &mockImporter{}
	config := Config{
		WorkerCount: 1,
		Interval:    time.Hour,
		Imports: []ImportSource{
			{URL: "https://a.example.com/rss", Source: ingest.Source{Name: "a"}},
			{URL: "https://b.example.com/rss", Source: ingest.Source{Name: "b"}},
		},
	}
	scheduler := NewScheduler(config, nil, importer)

	scheduler.Start()
	waitFor(t, 2*time.Second, func() bool { return len(importer.imported()) == 2 })
	scheduler.Stop()
}

func TestSchedulerRetriesFailedTasks(t *testing.T) {
	scheduler := NewScheduler(Config{WorkerCount: 1, Interval: time.Hour}, nil, nil)
	scheduler.retryBase = time.Millisecond
	scheduler.retryCap = 5 * time.Millisecond

	scheduler.Start()
	defer scheduler.Stop()

	task := newFlakyTask(2)
	if err := scheduler.EnqueueTask(task); err != nil {
		t.Fatal(err)
	}

	select {
	case <-task.done:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected task to succeed after retries")
	}

	if task.GetRetryCount() != 2 {
		t.Errorf("Expected 2 retries, got %d", task.GetRetryCount())
	}
	stats := scheduler.Stats()
	if stats.TotalErrors != 2 || stats.TotalRetries != 2 {
		t.Errorf("Expected 2 errors and 2 retries, got %d and %d", stats.TotalErrors, stats.TotalRetries)
	}
}

func TestSchedulerGivesUpAfterMaxRetries(t *testing.T) {
	scheduler := NewScheduler(Config{WorkerCount: 1, Interval: time.Hour}, nil, nil)
	scheduler.retryBase = time.Millisecond
	scheduler.retryCap = time.Millisecond

	scheduler.Start()

	task := newFlakyTask(100)
	scheduler.EnqueueTask(task)

	waitFor(t, 2*time.Second, func() bool { return task.runs.Load() == DefaultMaxRetries+1 })
	time.Sleep(20 * time.Millisecond)
	scheduler.Stop()

	if runs := task.runs.Load(); runs != DefaultMaxRetries+1 {
		t.Errorf("Expected %d runs, got %d", DefaultMaxRetries+1, runs)
	}
}

func TestEnqueueAfterStop(t *testing.T) {
	scheduler := NewScheduler(Config{WorkerCount: 1, Interval: time.Hour}, nil, nil)
	scheduler.Start()
	scheduler.Stop()

	if err := scheduler.EnqueueTask(newFlakyTask(0)); err == nil {
		t.Error("Expected error when enqueueing on a stopped scheduler")
	}
}

func TestEnqueueDuringStop(t *testing.T) {
	scheduler := NewScheduler(Config{WorkerCount: 1, Interval: time.Hour}, nil, nil)
	scheduler.Start()

	var wg sync.WaitGroup
	stopped := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stopped:
					return
				default:
					scheduler.EnqueueTask(newFlakyTask(0))
				}
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	scheduler.Stop()
	time.Sleep(10 * time.Millisecond)
	close(stopped)
	wg.Wait()

	if err := scheduler.EnqueueTask(newFlakyTask(0)); err == nil {
		t.Error("Expected error when enqueueing on a stopped scheduler")
	}
}

func TestRetryDelay(t *testing.T) {
	scheduler := NewScheduler(Config{}, nil, nil)

	tests := []struct {
		retry    int
		expected time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{6, 30 * time.Second},
		{70, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := scheduler.retryDelay(tt.retry); got != tt.expected {
			t.Errorf("retryDelay(%d): expected %v, got %v", tt.retry, tt.expected, got)
		}
	}
}

func TestHealth(t *testing.T) {
	scheduler := NewScheduler(Config{WorkerCount: 2}, nil, nil)

	health := scheduler.Health()
	if health["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", health["status"])
	}
	if health["workers"] != 2 {
		t.Errorf("Expected workers 2, got %v", health["workers"])
	}

	scheduler.mu.Lock()
	scheduler.stats.TotalProcessed = 10
	scheduler.stats.TotalErrors = 2
	scheduler.mu.Unlock()

	health = scheduler.Health()
	if health["error_rate"] != 0.2 {
		t.Errorf("Expected error rate 0.2, got %v", health["error_rate"])
	}
	if health["status"] != "degraded" {
		t.Errorf("Expected status 'degraded' with 20%% error rate, got %v", health["status"])
	}

	scheduler.mu.Lock()
	scheduler.stats.TotalErrors = 6
	scheduler.mu.Unlock()

	if health := scheduler.Health(); health["status"] != "unhealthy" {
		t.Errorf("Expected status 'unhealthy' with 60%% error rate, got %v", health["status"])
	}
}

func TestWarmFeedTask(t *testing.T) {
	builder := &mockBuilder{result: &content.FeedResult{
		Items: []content.ContentItem{{ID: "p1"}},
	}}

	task := NewWarmFeedTask(builder, content.FeedRequest{ViewerID: "viewer-1", TargetSize: 20})
	if task.GetTarget() != "viewer-1" {
		t.Errorf("Expected target 'viewer-1', got '%s'", task.GetTarget())
	}

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(builder.reqs) != 1 || !builder.reqs[0].ForceRefresh {
		t.Error("Expected a single forced rebuild")
	}

	builder.result = &content.FeedResult{Metadata: content.FeedMetadata{FailedLevels: []string{"followed", "public"}}}
	if err := task.Execute(context.Background()); err == nil {
		t.Error("Expected error when every level failed")
	}

	builder.err = content.ErrInvalidRequest
	if err := task.Execute(context.Background()); !errors.Is(err, content.ErrInvalidRequest) {
		t.Errorf("Expected wrapped build error, got %v", err)
	}
}

func TestPurgeAndImportTasks(t *testing.T) {
	purger := &mockPurger{}
	purge := NewPurgeCacheTask(purger)
	if purge.CanRetry() {
		t.Error("Expected purge tasks not to be retried")
	}
	if err := purge.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if purger.calls.Load() != 1 {
		t.Errorf("Expected 1 purge, got %d", purger.calls.Load())
	}

	importer := &mockImporter{err: errors.New("HTTP error: 500")}
	task := NewImportFeedTask(importer, ImportSource{URL: "https://a.example.com/rss"})
	if err := task.Execute(context.Background()); err == nil {
		t.Error("Expected import failure to surface")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := task.Execute(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
