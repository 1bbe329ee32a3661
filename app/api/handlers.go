package api

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lysyi3m/feed-cascade/app/content"
	"github.com/lysyi3m/feed-cascade/app/feed"
	"github.com/lysyi3m/feed-cascade/app/tasks"
)

func NewHandler(builder FeedBuilder, resultCache ResultCache, repo ContentRepository,
	scheduler tasks.TaskSchedulerInterface, metrics http.Handler, options Options) *Handler {
	if options.DefaultTargetSize <= 0 {
		options.DefaultTargetSize = 20
	}
	options.MaxTargetSize = max(options.MaxTargetSize, options.DefaultTargetSize)

	return &Handler{
		builder:   builder,
		cache:     resultCache,
		repo:      repo,
		generator: feed.NewGenerator(time.Local),
		scheduler: scheduler,
		metrics:   metrics,
		options:   options,
	}
}

func (h *Handler) GetFeed(c *gin.Context) {
	req, err := h.feedRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, ok := h.build(c, req)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetFeedRSS(c *gin.Context) {
	req, err := h.feedRequest(c)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	result, ok := h.build(c, req)
	if !ok {
		return
	}

	channel := feed.Channel{
		Title:       fmt.Sprintf("Feed for %s", req.ViewerID),
		Link:        h.baseURL(c),
		Description: fmt.Sprintf("Personalized feed for %s", req.ViewerID),
		SelfLink:    h.baseURL(c) + c.Request.URL.RequestURI(),
		Version:     h.options.Version,
	}

	rss, err := h.generator.Run(channel, result)
	if err != nil {
		slog.Error("RSS generation error", "viewer", req.ViewerID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(result.Items)))
	c.String(http.StatusOK, rss)
}

func (h *Handler) build(c *gin.Context, req content.FeedRequest) (*content.FeedResult, bool) {
	result, err := h.builder.Build(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, content.ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return nil, false
		}
		slog.Error("Feed build failed", "viewer", req.ViewerID, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Feed temporarily unavailable"})
		return nil, false
	}

	cacheStatus := "MISS"
	if result.Metadata.CacheHit {
		cacheStatus = "HIT"
	}
	c.Header("X-Cache", cacheStatus)
	c.Header("X-Cascade-Levels", strconv.Itoa(result.Metadata.CascadeLevelsUsed))

	return result, true
}

// feedRequest reads the viewer from the path and the rest of the request
// from the query string: following=a,b (repeatable), size, privileged, refresh.
func (h *Handler) feedRequest(c *gin.Context) (content.FeedRequest, error) {
	req := content.FeedRequest{
		ViewerID:   c.Param("viewer"),
		TargetSize: h.options.DefaultTargetSize,
	}

	for _, value := range c.QueryArray("following") {
		for _, id := range strings.Split(value, ",") {
			if id = strings.TrimSpace(id); id != "" {
				req.Following = append(req.Following, id)
			}
		}
	}

	if size := c.Query("size"); size != "" {
		n, err := strconv.Atoi(size)
		if err != nil || n <= 0 {
			return req, fmt.Errorf("size must be a positive integer")
		}
		if n > h.options.MaxTargetSize {
			return req, fmt.Errorf("size must not exceed %d", h.options.MaxTargetSize)
		}
		req.TargetSize = n
	}

	var err error
	if req.Privileged, err = queryBool(c, "privileged"); err != nil {
		return req, err
	}
	if req.ForceRefresh, err = queryBool(c, "refresh"); err != nil {
		return req, err
	}

	return req, nil
}

func queryBool(c *gin.Context, name string) (bool, error) {
	value := c.Query(name)
	if value == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean", name)
	}
	return b, nil
}

func (h *Handler) baseURL(c *gin.Context) string {
	if h.options.BaseUrl != "" {
		return strings.TrimSuffix(h.options.BaseUrl, "/")
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, c.Request.Host)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.options.Version,
	}

	if count, err := h.repo.GetItemCount(c.Request.Context()); err == nil {
		health["content_items"] = count
	} else {
		slog.Error("Database error", "operation", "get_item_count", "error", err)
		health["status"] = "degraded"
	}

	health["cache"] = h.cache.Stats()

	levels := h.builder.LevelStates()
	health["levels"] = levels
	for _, state := range levels {
		if state != "closed" {
			health["status"] = "degraded"
		}
	}

	if reporter, ok := h.scheduler.(interface{ Health() map[string]interface{} }); ok {
		health["scheduler"] = reporter.Health()
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetMetrics(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusNotFound)
		return
	}
	h.metrics.ServeHTTP(c.Writer, c.Request)
}

func (h *Handler) APIGetCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.cache.Stats())
}

func (h *Handler) APIClearCache(c *gin.Context) {
	h.cache.Clear()
	slog.Info("Result cache cleared via API")
	c.JSON(http.StatusOK, gin.H{"message": "Cache cleared"})
}

func (h *Handler) APIInvalidateViewer(c *gin.Context) {
	viewerID := c.Param("id")
	removed := h.cache.InvalidateForViewer(viewerID)
	slog.Debug("Viewer cache invalidated", "viewer", viewerID, "removed", removed)
	c.JSON(http.StatusOK, gin.H{"viewer_id": viewerID, "invalidated": removed})
}

func (h *Handler) APIInvalidateContent(c *gin.Context) {
	contentID := c.Param("id")
	removed := h.cache.InvalidateForContent(contentID)
	slog.Debug("Content cache invalidated", "content", contentID, "removed", removed)
	c.JSON(http.StatusOK, gin.H{"content_id": contentID, "invalidated": removed})
}

func (h *Handler) APIGetContent(c *gin.Context) {
	id := c.Param("id")

	item, err := h.repo.GetItem(c.Request.Context(), id)
	if err != nil {
		slog.Error("Database error", "operation", "get_item", "content", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Content item not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"item": item, "flagged": item.Flagged})
}

func (h *Handler) APIUpsertContent(c *gin.Context) {
	var body ContentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	privacy, err := content.ParsePrivacyLevel(body.Privacy)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item := content.ContentItem{
		ID:        cmp.Or(strings.TrimSpace(body.ID), uuid.NewString()),
		AuthorID:  body.AuthorID,
		CreatedAt: time.Now().UTC(),
		Privacy:   privacy,
		Promoted:  body.Promoted,
		Title:     body.Title,
		Body:      body.Body,
		Link:      body.Link,
	}
	if body.CreatedAt != nil {
		item.CreatedAt = body.CreatedAt.UTC()
	}

	if err := h.repo.UpsertItem(c.Request.Context(), item); err != nil {
		if errors.Is(err, content.ErrInvalidItem) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.Error("Database error", "operation", "upsert_item", "content", item.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	// A new or edited item can belong in feeds that never contained it.
	removed := h.cache.InvalidateAll()

	c.JSON(http.StatusOK, gin.H{"id": content.NormalizeID(item.ID), "invalidated": removed})
}

func (h *Handler) APIFlagContent(c *gin.Context) {
	id := c.Param("id")

	var body FlagRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	flagged := body.Flagged == nil || *body.Flagged

	if err := h.repo.SetFlagged(c.Request.Context(), id, flagged); err != nil {
		h.mutationError(c, "set_flagged", id, err)
		return
	}

	var removed int
	if flagged {
		removed = h.cache.InvalidateForContent(id)
	} else {
		// No cached feed contains a flagged item, so any of them may now be short of it.
		removed = h.cache.InvalidateAll()
	}
	slog.Info("Content moderation updated", "content", id, "flagged", flagged, "invalidated", removed)

	c.JSON(http.StatusOK, gin.H{"id": id, "flagged": flagged, "invalidated": removed})
}

func (h *Handler) APIDeleteContent(c *gin.Context) {
	id := c.Param("id")

	if err := h.repo.DeleteItem(c.Request.Context(), id); err != nil {
		h.mutationError(c, "delete_item", id, err)
		return
	}

	removed := h.cache.InvalidateForContent(id)

	c.JSON(http.StatusOK, gin.H{"id": id, "deleted": true, "invalidated": removed})
}

func (h *Handler) mutationError(c *gin.Context, operation, id string, err error) {
	if errors.Is(err, content.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Content item not found"})
		return
	}
	slog.Error("Database error", "operation", operation, "content", id, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
}

func (h *Handler) APIWarmFeed(c *gin.Context) {
	req, err := h.feedRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Task scheduler not available"})
		return
	}

	task := tasks.NewWarmFeedTask(h.builder, req)
	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Error("Failed to enqueue WarmFeedTask", "viewer", req.ViewerID, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to enqueue task"})
		return
	}

	slog.Info("Feed warm-up enqueued", "viewer", req.ViewerID, "task_id", task.GetID())

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Feed warm-up enqueued",
		"viewer":  req.ViewerID,
		"task_id": task.GetID(),
	})
}
