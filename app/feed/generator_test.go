package feed

import (
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/feed-cascade/app/content"
	"github.com/mmcdole/gofeed"
)

func sampleResult() *content.FeedResult {
	created := time.Date(2023, 7, 3, 10, 0, 0, 0, time.UTC)
	return &content.FeedResult{
		Items: []content.ContentItem{
			{
				ID:        "post-1",
				AuthorID:  "alice",
				CreatedAt: created,
				Privacy:   content.PrivacyPublic,
				Title:     "Morning run",
				Body:      "10k along the river",
				Link:      "https://example.com/posts/1",
			},
			{
				ID:        "https://ambassadors.example.com/p/2",
				AuthorID:  "carol",
				CreatedAt: created.Add(-time.Hour),
				Privacy:   content.PrivacyPublicHighlight,
				Promoted:  true,
			},
		},
		Metadata: content.FeedMetadata{
			CascadeLevelsUsed: 2,
			GeneratedAt:       created.Add(time.Minute),
		},
	}
}

func TestGenerateRSS(t *testing.T) {
	generator := NewGenerator(time.UTC)
	channel := Channel{
		Title:    "Feed for viewer-1",
		Link:     "https://example.com",
		SelfLink: "https://example.com/feeds/viewer-1/rss",
		Version:  "1.2.3",
	}

	rss, err := generator.Run(channel, sampleResult())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !strings.Contains(rss, `<?xml version="1.0" encoding="UTF-8"?>`) {
		t.Error("RSS should contain XML declaration")
	}
	if !strings.Contains(rss, `<atom:link href="https://example.com/feeds/viewer-1/rss" rel="self"`) {
		t.Error("RSS should contain atom self link")
	}
	if !strings.Contains(rss, "<generator>Feed-Cascade/1.2.3</generator>") {
		t.Error("RSS should contain versioned generator")
	}
	if !strings.Contains(rss, `<guid isPermaLink="false">post-1</guid>`) {
		t.Error("Expected non-URL id to be rendered as a non-permalink guid")
	}
	if !strings.Contains(rss, `<guid isPermaLink="true">https://ambassadors.example.com/p/2</guid>`) {
		t.Error("Expected URL id to be rendered as a permalink guid")
	}

	parsed, err := gofeed.NewParser().ParseString(rss)
	if err != nil {
		t.Fatalf("Expected generated RSS to parse, got: %v", err)
	}
	if parsed.Title != "Feed for viewer-1" {
		t.Errorf("Expected title 'Feed for viewer-1', got '%s'", parsed.Title)
	}
	if len(parsed.Items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(parsed.Items))
	}

	first := parsed.Items[0]
	if first.GUID != "post-1" {
		t.Errorf("Expected guid 'post-1', got '%s'", first.GUID)
	}
	if first.Title != "Morning run" {
		t.Errorf("Expected title 'Morning run', got '%s'", first.Title)
	}
	if first.Link != "https://example.com/posts/1" {
		t.Errorf("Expected link to post, got '%s'", first.Link)
	}
	if first.PublishedParsed == nil || !first.PublishedParsed.Equal(time.Date(2023, 7, 3, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected pubDate 2023-07-03 10:00 UTC, got %v", first.PublishedParsed)
	}

	second := parsed.Items[1]
	if second.Title != "Post by carol" {
		t.Errorf("Expected fallback title 'Post by carol', got '%s'", second.Title)
	}
	if second.Description != "No description available" {
		t.Errorf("Expected fallback description, got '%s'", second.Description)
	}
	if len(second.Categories) != 2 || second.Categories[1] != "promoted" {
		t.Errorf("Expected categories [public_highlight promoted], got %v", second.Categories)
	}
}

func TestGenerateWithEmptyResult(t *testing.T) {
	generator := NewGenerator(nil)
	generatedAt := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)

	rss, err := generator.Run(Channel{}, &content.FeedResult{Metadata: content.FeedMetadata{GeneratedAt: generatedAt}})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !strings.Contains(rss, "<title>Feed</title>") {
		t.Error("Expected default channel title")
	}
	if strings.Contains(rss, "<item>") {
		t.Error("Expected no items")
	}
	if strings.Contains(rss, "atom:link href") {
		t.Error("Expected no self link without a configured one")
	}
	if !strings.Contains(rss, "<lastBuildDate>"+generatedAt.Format(time.RFC1123Z)+"</lastBuildDate>") {
		t.Error("Expected lastBuildDate to fall back to the generation time")
	}
	if !strings.Contains(rss, "<generator>Feed-Cascade</generator>") {
		t.Error("Expected unversioned generator")
	}
}

func TestGenerateNilResult(t *testing.T) {
	if _, err := NewGenerator(time.UTC).Run(Channel{}, nil); err == nil {
		t.Error("Expected error for nil result")
	}
}

func TestGenerateWithSpecialCharacters(t *testing.T) {
	result := &content.FeedResult{
		Items: []content.ContentItem{{
			ID:        "p&1",
			AuthorID:  "bob",
			CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Privacy:   content.PrivacyPublic,
			Title:     `Splits <5:00> & "negative"`,
			Body:      "Tom & Jerry's <b>long</b> run",
		}},
	}

	rss, err := NewGenerator(time.UTC).Run(Channel{Title: "A & B"}, result)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !strings.Contains(rss, "<title>A &amp; B</title>") {
		t.Error("Expected escaped channel title")
	}
	if !strings.Contains(rss, "Splits &lt;5:00&gt; &amp; &#34;negative&#34;") {
		t.Error("Expected escaped item title")
	}

	parsed, err := gofeed.NewParser().ParseString(rss)
	if err != nil {
		t.Fatalf("Expected escaped RSS to parse, got: %v", err)
	}
	if parsed.Items[0].GUID != "p&1" {
		t.Errorf("Expected guid 'p&1', got '%s'", parsed.Items[0].GUID)
	}
}

func TestLastBuildDateUsesNewestItem(t *testing.T) {
	result := sampleResult()
	result.Metadata.GeneratedAt = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	rss, _ := NewGenerator(time.UTC).Run(Channel{}, result)

	want := result.Items[0].CreatedAt.Format(time.RFC1123Z)
	if !strings.Contains(rss, "<lastBuildDate>"+want+"</lastBuildDate>") {
		t.Errorf("Expected lastBuildDate %s", want)
	}
}

func TestIsURLMethod(t *testing.T) {
	generator := NewGenerator(time.UTC)

	tests := []struct {
		input    string
		expected bool
	}{
		{"http://example.com", true},
		{"https://example.com", true},
		{"ftp://example.com", false},
		{"example.com", false},
		{"", false},
		{"http://", true},
	}

	for _, test := range tests {
		if result := generator.isURL(test.input); result != test.expected {
			t.Errorf("isURL(%s): expected %t, got %t", test.input, test.expected, result)
		}
	}
}
