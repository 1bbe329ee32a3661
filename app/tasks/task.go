package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TaskType string

const (
	TaskTypePurgeCache TaskType = "purge_cache"
	TaskTypeWarmFeed   TaskType = "warm_feed"
	TaskTypeImportFeed TaskType = "import_feed"
)

const DefaultMaxRetries = 3

type TaskInterface interface {
	Execute(ctx context.Context) error
	GetID() string
	GetType() TaskType
	GetTarget() string
	GetRetryCount() int
	GetMaxRetries() int
	IncrementRetryCount()
	CanRetry() bool
	Start()
	GetDuration() time.Duration
}

// Task carries the bookkeeping shared by every task type. Concrete tasks
// embed it and implement Execute.
type Task struct {
	ID         string
	Type       TaskType
	Target     string // viewer id, feed URL, or empty for global tasks
	RetryCount int
	MaxRetries int
	StartedAt  time.Time // set on every attempt
}

func (t *Task) GetID() string {
	return t.ID
}

func (t *Task) GetType() TaskType {
	return t.Type
}

func (t *Task) GetTarget() string {
	return t.Target
}

func (t *Task) GetRetryCount() int {
	return t.RetryCount
}

func (t *Task) GetMaxRetries() int {
	return t.MaxRetries
}

func (t *Task) IncrementRetryCount() {
	t.RetryCount++
}

func (t *Task) CanRetry() bool {
	return t.RetryCount < t.MaxRetries
}

func (t *Task) Start() {
	t.StartedAt = time.Now()
}

func (t *Task) GetDuration() time.Duration {
	if t.StartedAt.IsZero() {
		return 0
	}
	return time.Since(t.StartedAt)
}

func NewTask(taskType TaskType, target string) Task {
	return newTaskWithRetries(taskType, target, DefaultMaxRetries)
}

func newTaskWithRetries(taskType TaskType, target string, maxRetries int) Task {
	return Task{
		ID:         uuid.NewString(),
		Type:       taskType,
		Target:     target,
		MaxRetries: max(maxRetries, 0),
	}
}

// logAttrs identifies a task in scheduler log lines.
func logAttrs(task TaskInterface) []any {
	return []any{"type", string(task.GetType()), "id", task.GetID(), "target", task.GetTarget(), "retry_count", task.GetRetryCount()}
}
