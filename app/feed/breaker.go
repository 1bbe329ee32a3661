package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/feed-cascade/app/content"
	"github.com/sony/gobreaker"
)

const (
	DefaultBreakerFailures = 5
	DefaultBreakerCooldown = 30 * time.Second
)

// levelGuard stops querying a level whose store keeps failing. An open
// breaker is reported as a transient failure so the cascade moves on to the
// next level instead of waiting on a query that is likely to fail again.
type levelGuard struct {
	breaker *gobreaker.CircuitBreaker
}

func newLevelGuard(levelName string, failures uint32, cooldown time.Duration) *levelGuard {
	if failures == 0 {
		failures = DefaultBreakerFailures
	}
	if cooldown <= 0 {
		cooldown = DefaultBreakerCooldown
	}

	settings := gobreaker.Settings{
		Name:        levelName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// A caller giving up is not the store's fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Cascade level breaker state changed", "level", name, "from", from.String(), "to", to.String())
		},
	}

	return &levelGuard{breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (g *levelGuard) query(fn func() ([]content.ContentItem, error)) ([]content.ContentItem, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, content.Transient(fmt.Errorf("level %s unavailable: %w", g.breaker.Name(), err))
		}
		return nil, err
	}

	items, _ := out.([]content.ContentItem)
	return items, nil
}

func (g *levelGuard) state() gobreaker.State {
	return g.breaker.State()
}
