package cache

import (
	"container/list"
	"crypto/sha256"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/lysyi3m/feed-cascade/app/content"
)

const (
	DefaultCapacity = 1000
	DefaultTTL      = 5 * time.Minute

	entryOverhead = 160
	itemOverhead  = 112
)

type entry struct {
	key        string
	viewerID   string
	result     *content.FeedResult
	insertedAt time.Time
	ttl        time.Duration
	size       int64
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.insertedAt) >= e.ttl
}

type Stats struct {
	HitRate        float64 `json:"hit_rate"`
	TotalEntries   int     `json:"total_entries"`
	MemoryUsage    int64   `json:"memory_usage"`
	FillPercentage float64 `json:"fill_percentage"`
	Capacity       int     `json:"capacity"`
	Hits           int64   `json:"hits"`
	Misses         int64   `json:"misses"`
	Evictions      int64   `json:"evictions"`
}

// ResultCache is a bounded LRU cache of feed results with per-entry TTL.
// All access goes through one mutex; results are copied on the way in and
// on the way out so callers never share memory with a cached entry.
type ResultCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	recency  *list.List // front is most recently used

	hits      int64
	misses    int64
	evictions int64
	memory    int64

	// generation advances on every invalidation so that a build started
	// before it cannot write its result back afterwards.
	generation uint64

	now func() time.Time
}

func NewResultCache(capacity int) *ResultCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &ResultCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element, capacity),
		recency:  list.New(),
		now:      time.Now,
	}
}

// Key derives the cache key for a request. The viewer id is kept readable;
// the rest of the request shape is hashed so that follow order and
// duplicates do not matter.
func Key(req content.FeedRequest) string {
	viewer := content.NormalizeID(req.ViewerID)

	following := make([]string, 0, len(req.Following))
	for _, id := range req.Following {
		if id = content.NormalizeID(id); id != "" {
			following = append(following, id)
		}
	}
	slices.Sort(following)
	following = slices.Compact(following)

	hash := sha256.Sum256([]byte(fmt.Sprintf("%d|%t|%s", req.TargetSize, req.Privileged, strings.Join(following, ","))))
	return fmt.Sprintf("feed:%s:%x", viewer, hash[:8])
}

// Get returns a copy of the cached result. Expired entries are dropped and
// reported as a miss.
func (c *ResultCache) Get(key string) (*content.FeedResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	e := el.Value.(*entry)
	if e.result == nil || e.expired(c.now()) {
		c.removeElement(el)
		c.misses++
		return nil, false
	}

	c.recency.MoveToFront(el)
	c.hits++
	return e.result.Clone(), true
}

// Generation returns the current invalidation generation.
func (c *ResultCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Set stores a copy of result under key. A non-positive ttl uses DefaultTTL.
func (c *ResultCache) Set(key, viewerID string, result *content.FeedResult, ttl time.Duration) {
	c.store(key, viewerID, result, ttl, nil)
}

// SetIfGeneration stores result only if no invalidation happened since
// generation was read. It reports whether the entry was written.
func (c *ResultCache) SetIfGeneration(key, viewerID string, result *content.FeedResult, ttl time.Duration, generation uint64) bool {
	return c.store(key, viewerID, result, ttl, &generation)
}

func (c *ResultCache) store(key, viewerID string, result *content.FeedResult, ttl time.Duration, generation *uint64) bool {
	if result == nil {
		return false
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	e := &entry{
		key:        key,
		viewerID:   content.NormalizeID(viewerID),
		result:     result.Clone(),
		insertedAt: c.now(),
		ttl:        ttl,
	}
	e.size = estimateSize(e)

	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != nil && *generation != c.generation {
		return false
	}

	if el, ok := c.entries[key]; ok {
		c.removeElement(el)
	}

	c.entries[key] = c.recency.PushFront(e)
	c.memory += e.size

	for c.recency.Len() > c.capacity {
		c.removeElement(c.recency.Back())
		c.evictions++
	}
	return true
}

// InvalidateForViewer drops every entry built for viewerID.
func (c *ResultCache) InvalidateForViewer(viewerID string) int {
	viewerID = content.NormalizeID(viewerID)
	return c.invalidateWhere(func(e *entry) bool {
		return e.viewerID == viewerID
	})
}

// InvalidateForContent drops every entry whose result contains contentID.
func (c *ResultCache) InvalidateForContent(contentID string) int {
	contentID = content.NormalizeID(contentID)
	return c.invalidateWhere(func(e *entry) bool {
		return e.result.Contains(contentID)
	})
}

// PurgeExpired drops entries whose TTL has passed without waiting for a read.
func (c *ResultCache) PurgeExpired() int {
	now := c.now()
	return c.removeWhere(func(e *entry) bool {
		return e.expired(now)
	})
}

// InvalidateAll drops every entry. Used when an item becomes visible again
// or is created: any cached feed might now have to include it.
func (c *ResultCache) InvalidateAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := c.recency.Len()
	c.entries = make(map[string]*list.Element, c.capacity)
	c.recency.Init()
	c.memory = 0
	c.generation++
	return removed
}

func (c *ResultCache) Clear() {
	c.InvalidateAll()
}

func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len()
}

func (c *ResultCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	hitRate := 0.0
	if total := c.hits + c.misses; total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return Stats{
		HitRate:        hitRate,
		TotalEntries:   c.recency.Len(),
		MemoryUsage:    c.memory,
		FillPercentage: float64(c.recency.Len()) / float64(c.capacity),
		Capacity:       c.capacity,
		Hits:           c.hits,
		Misses:         c.misses,
		Evictions:      c.evictions,
	}
}

func (c *ResultCache) removeWhere(match func(e *entry) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.recency.Front(); el != nil; {
		next := el.Next()
		if match(el.Value.(*entry)) {
			c.removeElement(el)
			removed++
		}
		el = next
	}
	return removed
}

// invalidateWhere is removeWhere for content changes: it also advances the
// generation, even when nothing matched, to fence off in-flight builds.
func (c *ResultCache) invalidateWhere(match func(e *entry) bool) int {
	removed := c.removeWhere(match)

	c.mu.Lock()
	c.generation++
	c.mu.Unlock()

	return removed
}

// removeElement must be called with mu held.
func (c *ResultCache) removeElement(el *list.Element) {
	e := c.recency.Remove(el).(*entry)
	delete(c.entries, e.key)
	c.memory -= e.size
}

func estimateSize(e *entry) int64 {
	size := int64(entryOverhead + len(e.key) + len(e.viewerID))
	for _, item := range e.result.Items {
		size += int64(itemOverhead + len(item.ID) + len(item.AuthorID) + len(item.Privacy) +
			len(item.Title) + len(item.Body) + len(item.Link))
	}
	for _, level := range e.result.Metadata.FailedLevels {
		size += int64(16 + len(level))
	}
	return size
}
