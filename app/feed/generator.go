package feed

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/lysyi3m/feed-cascade/app/content"
)

// Channel describes the RSS channel a feed result is rendered into.
type Channel struct {
	Title       string
	Link        string
	Description string
	SelfLink    string
	Version     string
}

// Generator renders feed results as RSS 2.0 documents.
type Generator struct {
	location *time.Location
}

func NewGenerator(location *time.Location) *Generator {
	if location == nil {
		location = time.UTC
	}
	return &Generator{location: location}
}

func (g *Generator) Run(channel Channel, result *content.FeedResult) (string, error) {
	if result == nil {
		return "", fmt.Errorf("failed to render feed: no result")
	}

	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", cmp.Or(channel.Title, "Feed"), 4)
	g.writeElement(&buf, "link", channel.Link, 4)
	g.writeElement(&buf, "description", cmp.Or(channel.Description, fmt.Sprintf("%d items", len(result.Items))), 4)

	if channel.SelfLink != "" {
		buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
			html.EscapeString(channel.SelfLink)))
	}

	lastBuildDate := cmp.Or(result.Metadata.GeneratedAt, time.Now())
	if len(result.Items) > 0 && result.Items[0].CreatedAt.After(lastBuildDate) {
		lastBuildDate = result.Items[0].CreatedAt
	}
	g.writeElement(&buf, "lastBuildDate", lastBuildDate.In(g.location).Format(time.RFC1123Z), 4)

	generator := "Feed-Cascade"
	if channel.Version != "" {
		generator += "/" + channel.Version
	}
	g.writeElement(&buf, "generator", generator, 4)

	for _, item := range result.Items {
		g.writeItem(&buf, item)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, item content.ContentItem) {
	buf.WriteString("    <item>\n")

	buf.WriteString(fmt.Sprintf("      <guid isPermaLink=\"%t\">", g.isURL(item.ID)))
	xml.EscapeText(buf, []byte(item.ID))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", cmp.Or(item.Title, fmt.Sprintf("Post by %s", item.AuthorID)), 6)
	g.writeElement(buf, "link", item.Link, 6)
	g.writeElement(buf, "description", cmp.Or(strings.TrimSpace(item.Body), "No description available"), 6)
	g.writeElement(buf, "pubDate", item.CreatedAt.In(g.location).Format(time.RFC1123Z), 6)
	g.writeElement(buf, "author", item.AuthorID, 6)
	g.writeElement(buf, "category", string(item.Privacy), 6)

	if item.Promoted {
		g.writeElement(buf, "category", "promoted", 6)
	}

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, text string, indent int) {
	if text == "" {
		return
	}

	buf.WriteString(strings.Repeat(" ", indent))
	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(text))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func (g *Generator) isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
