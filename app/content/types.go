package content

import (
	"context"
	"fmt"
	"time"
)

type PrivacyLevel string

const (
	PrivacyPrivate         PrivacyLevel = "private"
	PrivacyFriends         PrivacyLevel = "friends"
	PrivacyPublic          PrivacyLevel = "public"
	PrivacyCoachesOnly     PrivacyLevel = "coaches_only"
	PrivacyPublicHighlight PrivacyLevel = "public_highlight"
)

var privacyLevels = map[PrivacyLevel]bool{
	PrivacyPrivate:         true,
	PrivacyFriends:         true,
	PrivacyPublic:          true,
	PrivacyCoachesOnly:     true,
	PrivacyPublicHighlight: true,
}

func ParsePrivacyLevel(s string) (PrivacyLevel, error) {
	level := PrivacyLevel(s)
	if !privacyLevels[level] {
		return "", fmt.Errorf("unknown privacy level '%s'", s)
	}
	return level, nil
}

// ContentItem is a post as seen by the feed builder. The store owns it;
// nothing downstream of the store mutates it.
type ContentItem struct {
	ID        string       `json:"id"`
	AuthorID  string       `json:"author_id"`
	CreatedAt time.Time    `json:"created_at"`
	Privacy   PrivacyLevel `json:"privacy"`
	Flagged   bool         `json:"-"`
	Promoted  bool         `json:"promoted"`

	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	Link  string `json:"link,omitempty"`
}

type FeedRequest struct {
	ViewerID     string
	Following    []string
	TargetSize   int
	Privileged   bool // e.g. coaches; unlocks privileged-only levels
	ForceRefresh bool
}

type DiversityMetrics struct {
	TotalAuthors               int `json:"total_authors"`
	FollowedAuthorsRepresented int `json:"followed_authors_represented"`
	MaxPostsFromSingleUser     int `json:"max_posts_from_single_user"`
}

// FeedMetadata describes how a feed was produced. On a cache hit Elapsed is
// the lookup time and GeneratedAt is when the cached feed was built.
type FeedMetadata struct {
	Elapsed           time.Duration    `json:"elapsed"`
	CascadeLevelsUsed int              `json:"cascade_levels_used"`
	LevelsWithData    int              `json:"levels_with_data"`
	FailedLevels      []string         `json:"failed_levels,omitempty"`
	CacheHit          bool             `json:"cache_hit"`
	Diversity         DiversityMetrics `json:"diversity"`
	GeneratedAt       time.Time        `json:"generated_at"`
}

type FeedResult struct {
	Items    []ContentItem `json:"items"`
	Metadata FeedMetadata  `json:"metadata"`
}

// Clone returns a copy that shares no slices with r.
func (r *FeedResult) Clone() *FeedResult {
	if r == nil {
		return nil
	}
	out := &FeedResult{Metadata: r.Metadata}
	out.Items = append(make([]ContentItem, 0, len(r.Items)), r.Items...)
	if r.Metadata.FailedLevels != nil {
		out.Metadata.FailedLevels = append([]string(nil), r.Metadata.FailedLevels...)
	}
	return out
}

// Contains reports whether an item with the given id is part of the result.
func (r *FeedResult) Contains(contentID string) bool {
	for _, item := range r.Items {
		if item.ID == contentID {
			return true
		}
	}
	return false
}

type Order string

const OrderRecency Order = "recency"

// AuthorFilter selects either any author or an explicit set.
type AuthorFilter struct {
	Any bool
	IDs []string
}

func AnyAuthor() AuthorFilter {
	return AuthorFilter{Any: true}
}

func Authors(ids ...string) AuthorFilter {
	return AuthorFilter{IDs: ids}
}

type Query struct {
	Authors        AuthorFilter
	Privacy        []PrivacyLevel
	PromotedOnly   bool
	ExcludeFlagged bool
	OrderBy        Order
	Limit          int
}

// Store is the content store client consumed by the feed builder.
type Store interface {
	Query(ctx context.Context, q Query) ([]ContentItem, error)
}
