package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/lysyi3m/feed-cascade/app/content"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "content.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	version, dirty, err := RunMigrations(db)
	if err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	if version != 1 || dirty {
		t.Fatalf("Expected clean schema version 1, got %d (dirty=%t)", version, dirty)
	}

	return db
}

var created = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T, repo *ContentRepository, items ...content.ContentItem) {
	t.Helper()
	for _, item := range items {
		if err := repo.UpsertItem(context.Background(), item); err != nil {
			t.Fatalf("Failed to seed %s: %v", item.ID, err)
		}
	}
}

func seedItems() []content.ContentItem {
	return []content.ContentItem{
		{ID: "a1", AuthorID: "alice", CreatedAt: created, Privacy: content.PrivacyPublic, Title: "Intervals"},
		{ID: "a2", AuthorID: "alice", CreatedAt: created.Add(time.Hour), Privacy: content.PrivacyFriends},
		{ID: "a3", AuthorID: "alice", CreatedAt: created.Add(2 * time.Hour), Privacy: content.PrivacyPrivate},
		{ID: "b1", AuthorID: "bob", CreatedAt: created.Add(30 * time.Minute), Privacy: content.PrivacyPublic},
		{ID: "c1", AuthorID: "carol", CreatedAt: created.Add(90 * time.Minute), Privacy: content.PrivacyPublicHighlight, Promoted: true},
		{ID: "k1", AuthorID: "coach", CreatedAt: created.Add(10 * time.Minute), Privacy: content.PrivacyCoachesOnly},
	}
}

func ids(items []content.ContentItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	db := setupTestDB(t)

	version, _, err := RunMigrations(db)
	if err != nil {
		t.Fatalf("Expected second migration run to succeed, got %v", err)
	}
	if version != 1 {
		t.Errorf("Expected version 1, got %d", version)
	}
}

func TestRollbackMigrations(t *testing.T) {
	db := setupTestDB(t)
	repo := NewContentRepository(db)

	if err := RollbackMigrations(db); err != nil {
		t.Fatalf("Expected rollback to succeed, got %v", err)
	}
	if _, err := repo.GetItemCount(context.Background()); err == nil {
		t.Error("Expected content table to be gone after rollback")
	}

	version, dirty, err := RunMigrations(db)
	if err != nil || version != 1 || dirty {
		t.Fatalf("Expected clean version 1 after re-applying, got %d (dirty=%t, err=%v)", version, dirty, err)
	}
	if count, err := repo.GetItemCount(context.Background()); err != nil || count != 0 {
		t.Errorf("Expected empty table, got %d (err %v)", count, err)
	}
}

func TestContentRepositoryQuery(t *testing.T) {
	repo := NewContentRepository(setupTestDB(t))
	seed(t, repo, seedItems()...)

	everyone := []content.PrivacyLevel{content.PrivacyPublic, content.PrivacyFriends, content.PrivacyPublicHighlight}

	tests := []struct {
		name     string
		query    content.Query
		expected []string
	}{
		{
			name:     "followed authors newest first",
			query:    content.Query{Authors: content.Authors("alice", "bob"), Privacy: everyone, Limit: 10},
			expected: []string{"a2", "b1", "a1"},
		},
		{
			name:     "limit",
			query:    content.Query{Authors: content.Authors("alice", "bob"), Privacy: everyone, Limit: 2},
			expected: []string{"a2", "b1"},
		},
		{
			name:     "promoted only",
			query:    content.Query{Authors: content.AnyAuthor(), Privacy: everyone, PromotedOnly: true, Limit: 10},
			expected: []string{"c1"},
		},
		{
			name:     "privacy filter",
			query:    content.Query{Authors: content.AnyAuthor(), Privacy: []content.PrivacyLevel{content.PrivacyCoachesOnly}, Limit: 10},
			expected: []string{"k1"},
		},
		{
			name:     "any author public",
			query:    content.Query{Authors: content.AnyAuthor(), Privacy: []content.PrivacyLevel{content.PrivacyPublic}, Limit: 10},
			expected: []string{"b1", "a1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := repo.Query(context.Background(), tt.query)
			if err != nil {
				t.Fatal(err)
			}
			if got := ids(items); !equalIDs(got, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestContentRepositoryRoundTrip(t *testing.T) {
	repo := NewContentRepository(setupTestDB(t))
	ctx := context.Background()
	seed(t, repo, seedItems()...)

	item, err := repo.GetItem(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	if item == nil {
		t.Fatal("Expected item a1")
	}
	if !item.CreatedAt.Equal(created) {
		t.Errorf("Expected created_at %v, got %v", created, item.CreatedAt)
	}
	if item.Title != "Intervals" || item.Privacy != content.PrivacyPublic {
		t.Errorf("Unexpected item fields: %+v", item)
	}

	missing, err := repo.GetItem(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("Expected nil, nil for missing item, got %v, %v", missing, err)
	}

	count, err := repo.GetItemCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != len(seedItems()) {
		t.Errorf("Expected %d items, got %d", len(seedItems()), count)
	}
}

func TestContentRepositoryFlagging(t *testing.T) {
	repo := NewContentRepository(setupTestDB(t))
	ctx := context.Background()
	seed(t, repo, seedItems()...)

	if err := repo.SetFlagged(ctx, "b1", true); err != nil {
		t.Fatal(err)
	}

	query := content.Query{
		Authors:        content.Authors("bob"),
		Privacy:        []content.PrivacyLevel{content.PrivacyPublic},
		ExcludeFlagged: true,
		Limit:          10,
	}
	items, _ := repo.Query(ctx, query)
	if len(items) != 0 {
		t.Errorf("Expected flagged item to be excluded, got %v", ids(items))
	}

	query.ExcludeFlagged = false
	items, _ = repo.Query(ctx, query)
	if len(items) != 1 || !items[0].Flagged {
		t.Errorf("Expected flagged item when not excluded, got %+v", items)
	}

	// Re-importing must not clear the moderation flag.
	seed(t, repo, content.ContentItem{ID: "b1", AuthorID: "bob", CreatedAt: created, Privacy: content.PrivacyPublic, Title: "edited"})
	item, _ := repo.GetItem(ctx, "b1")
	if !item.Flagged {
		t.Error("Expected flag to survive an upsert")
	}
	if item.Title != "edited" {
		t.Errorf("Expected updated title, got '%s'", item.Title)
	}

	if err := repo.SetFlagged(ctx, "missing", true); !errors.Is(err, content.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestContentRepositoryDelete(t *testing.T) {
	repo := NewContentRepository(setupTestDB(t))
	ctx := context.Background()
	seed(t, repo, seedItems()...)

	if err := repo.DeleteItem(ctx, "a1"); err != nil {
		t.Fatal(err)
	}
	if item, _ := repo.GetItem(ctx, "a1"); item != nil {
		t.Error("Expected a1 to be deleted")
	}
	if err := repo.DeleteItem(ctx, "a1"); !errors.Is(err, content.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestContentRepositoryRejectsInvalidInput(t *testing.T) {
	repo := NewContentRepository(setupTestDB(t))
	ctx := context.Background()

	err := repo.UpsertItem(ctx, content.ContentItem{ID: "x", CreatedAt: created, Privacy: content.PrivacyPublic})
	if !errors.Is(err, content.ErrInvalidItem) {
		t.Errorf("Expected ErrInvalidItem for missing author, got %v", err)
	}

	_, err = repo.Query(ctx, content.Query{Authors: content.AnyAuthor(), Limit: 10})
	if content.Classify(err) != content.FailurePermanent {
		t.Errorf("Expected permanent failure for malformed query, got %v", err)
	}
}

func TestContentRepositoryFailureKinds(t *testing.T) {
	db := setupTestDB(t)
	repo := NewContentRepository(db)
	query := content.Query{Authors: content.AnyAuthor(), Privacy: []content.PrivacyLevel{content.PrivacyPublic}, Limit: 5}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := repo.Query(ctx, query); content.Classify(err) != content.FailureTransient {
		t.Errorf("Expected transient failure for cancelled context, got %v", err)
	}

	if _, err := db.Exec(`DROP TABLE content_items`); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Query(context.Background(), query); content.Classify(err) != content.FailurePermanent {
		t.Errorf("Expected permanent failure for missing table, got %v", err)
	}
}
