package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/lysyi3m/feed-cascade/app/content"
)

const (
	DefaultFetchTimeout = 30 * time.Second
	DefaultMaxBodySize  = 10 << 20
)

type ItemWriter interface {
	UpsertItem(ctx context.Context, item content.ContentItem) error
}

// Invalidator drops cached feeds. Imported items may be new, so every
// cached feed is a candidate.
type Invalidator interface {
	InvalidateAll() int
}

type Result struct {
	Total       int
	Stored      int
	Invalidated int
}

// Importer pulls an RSS/Atom feed and writes its entries into the content
// store.
type Importer struct {
	httpClient  *http.Client
	parser      *Parser
	writer      ItemWriter
	invalidator Invalidator
	userAgent   string
	timeout     time.Duration
	maxBodySize int64
}

func NewImporter(httpClient *http.Client, parser *Parser, writer ItemWriter, invalidator Invalidator, userAgent string) *Importer {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Importer{
		httpClient:  httpClient,
		parser:      parser,
		writer:      writer,
		invalidator: invalidator,
		userAgent:   userAgent,
		timeout:     DefaultFetchTimeout,
		maxBodySize: DefaultMaxBodySize,
	}
}

// SetMaxBodySize caps how many bytes of a fetched feed are read. Non-positive
// values keep the current limit.
func (i *Importer) SetMaxBodySize(n int64) {
	if n > 0 {
		i.maxBodySize = n
	}
}

func (i *Importer) ImportURL(ctx context.Context, url string, source Source) (Result, error) {
	data, err := i.fetch(ctx, url)
	if err != nil {
		return Result{}, fmt.Errorf("failed to fetch feed: %w", err)
	}
	return i.Import(ctx, data, source)
}

func (i *Importer) Import(ctx context.Context, data []byte, source Source) (result Result, err error) {
	items, err := i.parser.Run(data, source)
	if err != nil {
		return Result{}, err
	}

	result = Result{Total: len(items)}
	defer func() {
		if i.invalidator != nil && result.Stored > 0 {
			result.Invalidated = i.invalidator.InvalidateAll()
		}
	}()

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := i.writer.UpsertItem(ctx, item); err != nil {
			return result, fmt.Errorf("failed to store item %s: %w", item.ID, err)
		}
		result.Stored++
	}

	slog.Debug("Feed imported", "source", source.Name, "total", result.Total, "stored", result.Stored)

	return result, nil
}

func (i *Importer) fetch(ctx context.Context, url string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if i.userAgent != "" {
		req.Header.Set("User-Agent", i.userAgent)
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, i.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > i.maxBodySize {
		return nil, fmt.Errorf("feed body exceeds %d bytes", i.maxBodySize)
	}

	return data, nil
}
