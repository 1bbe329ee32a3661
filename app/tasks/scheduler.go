package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const (
	defaultQueueSize   = 300
	defaultTaskTimeout = 5 * time.Minute
	defaultRetryBase   = time.Second
	defaultRetryCap    = 30 * time.Second
)

type Config struct {
	WorkerCount    int
	Interval       time.Duration
	ImportInterval time.Duration
	Imports        []ImportSource
}

type Stats struct {
	CurrentWorkers int   `json:"current_workers"`
	QueueSize      int   `json:"queue_size"`
	TotalProcessed int64 `json:"total_processed"`
	TotalErrors    int64 `json:"total_errors"`
	TotalRetries   int64 `json:"total_retries"`
}

type Scheduler struct {
	cache          CachePurger
	importer       FeedImporter
	imports        []ImportSource
	interval       time.Duration
	importInterval time.Duration
	workerCount    int
	retryBase      time.Duration
	retryCap       time.Duration
	taskTimeout    time.Duration
	lastImport     time.Time

	mu    sync.Mutex
	stats Stats

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	taskQueue chan TaskInterface
}

func NewScheduler(config Config, cache CachePurger, importer FeedImporter) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}

	return &Scheduler{
		cache:          cache,
		importer:       importer,
		imports:        config.Imports,
		interval:       config.Interval,
		importInterval: config.ImportInterval,
		workerCount:    config.WorkerCount,
		retryBase:      defaultRetryBase,
		retryCap:       defaultRetryCap,
		taskTimeout:    defaultTaskTimeout,
		stats:          Stats{CurrentWorkers: config.WorkerCount},
		ctx:            ctx,
		cancel:         cancel,
		taskQueue:      make(chan TaskInterface, defaultQueueSize),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueImports(time.Now())

		for {
			select {
			case <-s.ctx.Done():
				return
			case now := <-ticker.C:
				s.enqueueTasks(now)
			}
		}
	}()
}

// Stop cancels the scheduler and waits for workers and pending retries.
// The task queue stays open: EnqueueTask may still race with Stop, and a
// send on a closed channel would panic. Tasks left in it are dropped.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats
	stats.QueueSize = len(s.taskQueue)
	return stats
}

// Health summarizes task outcomes. More than 10% failed tasks is degraded,
// more than half is unhealthy.
func (s *Scheduler) Health() map[string]interface{} {
	stats := s.Stats()

	errorRate := 0.0
	if stats.TotalProcessed > 0 {
		errorRate = float64(stats.TotalErrors) / float64(stats.TotalProcessed)
	}

	status := "healthy"
	switch {
	case errorRate > 0.5:
		status = "unhealthy"
	case errorRate > 0.1:
		status = "degraded"
	}

	return map[string]interface{}{
		"status":          status,
		"workers":         stats.CurrentWorkers,
		"queue_size":      stats.QueueSize,
		"total_processed": stats.TotalProcessed,
		"total_errors":    stats.TotalErrors,
		"error_rate":      errorRate,
	}
}

func (s *Scheduler) enqueueTasks(now time.Time) {
	if s.cache != nil {
		if err := s.EnqueueTask(NewPurgeCacheTask(s.cache)); err != nil {
			slog.Warn("Failed to enqueue PurgeCacheTask", "error", err)
		}
	}

	if s.importInterval > 0 && now.Sub(s.lastImport) >= s.importInterval {
		s.enqueueImports(now)
	}
}

func (s *Scheduler) enqueueImports(now time.Time) {
	if s.importer == nil || len(s.imports) == 0 {
		slog.Debug("No import sources configured")
		return
	}

	s.lastImport = now

	for _, source := range s.imports {
		if err := s.EnqueueTask(NewImportFeedTask(s.importer, source)); err != nil {
			slog.Warn("Failed to enqueue ImportFeedTask", "url", source.URL, "error", err)
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, s.taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)

	s.mu.Lock()
	s.stats.TotalProcessed++
	if err != nil {
		s.stats.TotalErrors++
	}
	s.mu.Unlock()

	if err == nil {
		return
	}

	attrs := logAttrs(task)
	slog.Error("Worker task execution failed", append(attrs, "worker_id", workerID, "error", err)...)

	if !task.CanRetry() {
		if task.GetMaxRetries() > 0 {
			slog.Error("Task failed after maximum retries", append(attrs, "max_retries", task.GetMaxRetries(), "last_error", err)...)
		}
		return
	}

	task.IncrementRetryCount()
	retryDelay := s.retryDelay(task.GetRetryCount())

	slog.Warn("Task retry scheduled", append(logAttrs(task), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())...)

	s.mu.Lock()
	s.stats.TotalRetries++
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(retryDelay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", logAttrs(task)...)
		case <-timer.C:
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", append(logAttrs(task), "error", retryErr)...)
			}
		}
	}()
}

// retryDelay doubles from retryBase with every attempt, capped at retryCap.
func (s *Scheduler) retryDelay(retryCount int) time.Duration {
	delay := s.retryBase << uint(retryCount-1)
	if delay > s.retryCap || delay <= 0 {
		delay = s.retryCap
	}
	return delay
}
