package archiver

import (
	"context"
	"path/filepath"
	"testing"

	"pressroom/internal/issue"
	"pressroom/internal/logging"
)

func newTestStore(t *testing.T) *issue.Store {
	t.Helper()
	store, err := issue.OpenPath(filepath.Join(t.TempDir(), "pressroom.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestExecuteArchivesAndClears(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	record, err := store.NewIssue(ctx, "Daily", "2026-03-02")
	if err != nil {
		t.Fatalf("create issue: %v", err)
	}
	feed, err := store.AddFeed(ctx, "Example", "https://example.com/feed.xml")
	if err != nil {
		t.Fatalf("add feed: %v", err)
	}
	for i, title := range []string{"First", "Second"} {
		post := &issue.Post{IssueID: record.ID, FeedID: feed.ID, Title: title, Link: "https://example.com/" + title}
		if _, err := store.InsertPost(ctx, post); err != nil {
			t.Fatalf("insert post %d: %v", i, err)
		}
	}

	stage := New(store, logging.NewNop())
	counters, err := stage.Execute(ctx, record)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if counters["posts_archived"] != 2 {
		t.Fatalf("expected 2 archived posts, got %d", counters["posts_archived"])
	}

	remaining, err := store.PostsForIssue(ctx, record.ID)
	if err != nil {
		t.Fatalf("list posts: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected working posts cleared, got %d", len(remaining))
	}
}

func TestExecuteEmptyIssueSucceeds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	record, err := store.NewIssue(ctx, "Daily", "2026-03-02")
	if err != nil {
		t.Fatalf("create issue: %v", err)
	}

	stage := New(store, logging.NewNop())
	counters, err := stage.Execute(ctx, record)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if counters["posts_archived"] != 0 {
		t.Fatalf("expected 0 archived posts, got %d", counters["posts_archived"])
	}
}
