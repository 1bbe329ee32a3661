package content

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeID trims and NFC-normalizes an identifier so ids coming from
// different sources compare equal.
func NormalizeID(id string) string {
	return norm.NFC.String(strings.TrimSpace(id))
}

// Normalize validates an item read from a store and returns its canonical form.
func Normalize(item ContentItem) (ContentItem, error) {
	item.ID = NormalizeID(item.ID)
	item.AuthorID = NormalizeID(item.AuthorID)

	if item.ID == "" {
		return ContentItem{}, fmt.Errorf("%w: id is required", ErrInvalidItem)
	}
	if item.AuthorID == "" {
		return ContentItem{}, fmt.Errorf("%w: author is required for item %s", ErrInvalidItem, item.ID)
	}
	if !privacyLevels[item.Privacy] {
		return ContentItem{}, fmt.Errorf("%w: unknown privacy level '%s' for item %s", ErrInvalidItem, item.Privacy, item.ID)
	}
	if item.CreatedAt.IsZero() {
		return ContentItem{}, fmt.Errorf("%w: missing creation time for item %s", ErrInvalidItem, item.ID)
	}

	return item, nil
}

func (r FeedRequest) Validate() error {
	if NormalizeID(r.ViewerID) == "" {
		return fmt.Errorf("%w: viewer id is required", ErrInvalidRequest)
	}
	if r.TargetSize <= 0 {
		return fmt.Errorf("%w: target size must be positive, got %d", ErrInvalidRequest, r.TargetSize)
	}
	return nil
}

func (q Query) Validate() error {
	if q.Limit <= 0 {
		return fmt.Errorf("%w: limit must be positive, got %d", ErrMalformedQuery, q.Limit)
	}
	if len(q.Privacy) == 0 {
		return fmt.Errorf("%w: at least one privacy level is required", ErrMalformedQuery)
	}
	for _, p := range q.Privacy {
		if !privacyLevels[p] {
			return fmt.Errorf("%w: unknown privacy level '%s'", ErrMalformedQuery, p)
		}
	}
	if !q.Authors.Any && len(q.Authors.IDs) == 0 {
		return fmt.Errorf("%w: author filter is empty", ErrMalformedQuery)
	}
	if q.OrderBy != "" && q.OrderBy != OrderRecency {
		return fmt.Errorf("%w: unsupported order '%s'", ErrMalformedQuery, q.OrderBy)
	}
	return nil
}
