package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lysyi3m/feed-cascade/app/content"
)

const selectColumns = `id, author_id, created_at, privacy, flagged, promoted, title, body, link`

// ContentRepository is the sqlite implementation of content.Store.
type ContentRepository struct {
	db *DB
}

func NewContentRepository(db *DB) *ContentRepository {
	return &ContentRepository{db: db}
}

var _ content.Store = (*ContentRepository)(nil)

func (r *ContentRepository) Query(ctx context.Context, q content.Query) ([]content.ContentItem, error) {
	if err := q.Validate(); err != nil {
		return nil, content.Permanent(err)
	}

	var where []string
	var args []any

	if !q.Authors.Any {
		where = append(where, "author_id IN ("+placeholders(len(q.Authors.IDs))+")")
		for _, id := range q.Authors.IDs {
			args = append(args, id)
		}
	}

	where = append(where, "privacy IN ("+placeholders(len(q.Privacy))+")")
	for _, p := range q.Privacy {
		args = append(args, string(p))
	}

	if q.PromotedOnly {
		where = append(where, "promoted = 1")
	}
	if q.ExcludeFlagged {
		where = append(where, "flagged = 0")
	}

	query := "SELECT " + selectColumns + " FROM content_items WHERE " + strings.Join(where, " AND ") +
		" ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, q.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyError(ctx, fmt.Errorf("failed to query content items: %w", err))
	}
	defer rows.Close()

	items := make([]content.ContentItem, 0, q.Limit)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, classifyError(ctx, fmt.Errorf("failed to scan content item: %w", err))
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, classifyError(ctx, fmt.Errorf("error iterating content rows: %w", err))
	}

	return items, nil
}

// UpsertItem inserts item or updates its fields. The moderation flag of an
// existing row is left untouched.
func (r *ContentRepository) UpsertItem(ctx context.Context, item content.ContentItem) error {
	item, err := content.Normalize(item)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO content_items (
			id, author_id, created_at, privacy, flagged, promoted, title, body, link, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			author_id = excluded.author_id,
			created_at = excluded.created_at,
			privacy = excluded.privacy,
			promoted = excluded.promoted,
			title = excluded.title,
			body = excluded.body,
			link = excluded.link,
			updated_at = excluded.updated_at
	`, item.ID, item.AuthorID, item.CreatedAt.UTC().UnixMilli(), string(item.Privacy),
		item.Flagged, item.Promoted, item.Title, item.Body, item.Link, time.Now().UTC().UnixMilli())

	if err != nil {
		return fmt.Errorf("failed to upsert content item: %w", err)
	}

	return nil
}

// SetFlagged marks an item as suppressed or restores it.
func (r *ContentRepository) SetFlagged(ctx context.Context, id string, flagged bool) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE content_items SET flagged = ?, updated_at = ? WHERE id = ?
	`, flagged, time.Now().UTC().UnixMilli(), content.NormalizeID(id))
	if err != nil {
		return fmt.Errorf("failed to update content flag: %w", err)
	}

	return requireAffected(result, id)
}

func (r *ContentRepository) DeleteItem(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM content_items WHERE id = ?`, content.NormalizeID(id))
	if err != nil {
		return fmt.Errorf("failed to delete content item: %w", err)
	}

	return requireAffected(result, id)
}

// GetItem returns nil without an error when no item has the given id.
func (r *ContentRepository) GetItem(ctx context.Context, id string) (*content.ContentItem, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM content_items WHERE id = ?", content.NormalizeID(id))

	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get content item: %w", err)
	}

	return &item, nil
}

func (r *ContentRepository) GetItemCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM content_items`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get item count: %w", err)
	}

	return count, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (content.ContentItem, error) {
	var item content.ContentItem
	var createdAt int64
	var privacy string

	err := s.Scan(&item.ID, &item.AuthorID, &createdAt, &privacy, &item.Flagged, &item.Promoted,
		&item.Title, &item.Body, &item.Link)
	if err != nil {
		return content.ContentItem{}, err
	}

	item.CreatedAt = time.UnixMilli(createdAt).UTC()
	item.Privacy = content.PrivacyLevel(privacy)

	return item, nil
}

func requireAffected(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", content.ErrNotFound, id)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// classifyError tags store errors for the cascade. Cancellation, timeouts and
// lock contention may clear up on their own; anything else is a problem with
// the query or the schema.
func classifyError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return content.Transient(err)
	}

	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") {
		return content.Transient(err)
	}

	return content.Permanent(err)
}
