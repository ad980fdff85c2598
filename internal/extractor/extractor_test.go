package extractor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

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

func insertRecentPost(t *testing.T, store *issue.Store, issueID, link, summary string) *issue.Post {
	t.Helper()
	published := time.Now().UTC().Add(-time.Hour)
	post := &issue.Post{
		IssueID:     issueID,
		Title:       "Some Post",
		Link:        link,
		Summary:     summary,
		PublishedAt: &published,
	}
	if _, err := store.InsertPost(context.Background(), post); err != nil {
		t.Fatalf("insert post: %v", err)
	}
	return post
}

func TestExecuteExtractsPageText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><style>body{}</style><script>var x=1;</script></head>
			<body><h1>Article Title</h1><p>The &amp; full article text.</p></body></html>`))
	}))
	defer server.Close()

	store := newTestStore(t)
	ctx := context.Background()
	record, err := store.NewIssue(ctx, "Daily", "2026-03-02")
	if err != nil {
		t.Fatalf("create issue: %v", err)
	}
	post := insertRecentPost(t, store, record.ID, server.URL, "feed summary")

	stage := New(store, logging.NewNop(), Options{})
	counters, err := stage.Execute(ctx, record)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if counters["posts_extracted"] != 1 || counters["posts_degraded"] != 0 {
		t.Fatalf("unexpected counters %v", counters)
	}

	posts, err := store.PostsForIssue(ctx, record.ID)
	if err != nil {
		t.Fatalf("list posts: %v", err)
	}
	if len(posts) != 1 || posts[0].ID != post.ID {
		t.Fatalf("unexpected posts %v", posts)
	}
	text := posts[0].FullText
	if !strings.Contains(text, "Article Title") || !strings.Contains(text, "The & full article text.") {
		t.Fatalf("unexpected extracted text %q", text)
	}
	if strings.Contains(text, "var x") || strings.Contains(text, "body{}") {
		t.Fatalf("script/style leaked into text %q", text)
	}
}

func TestExecuteDegradesToSummary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	store := newTestStore(t)
	ctx := context.Background()
	record, err := store.NewIssue(ctx, "Daily", "2026-03-02")
	if err != nil {
		t.Fatalf("create issue: %v", err)
	}
	insertRecentPost(t, store, record.ID, server.URL, "the feed summary")

	stage := New(store, logging.NewNop(), Options{})
	counters, err := stage.Execute(ctx, record)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if counters["posts_degraded"] != 1 {
		t.Fatalf("expected 1 degraded post, got %v", counters)
	}

	posts, err := store.PostsForIssue(ctx, record.ID)
	if err != nil {
		t.Fatalf("list posts: %v", err)
	}
	if posts[0].FullText != "the feed summary" {
		t.Fatalf("expected summary fallback, got %q", posts[0].FullText)
	}
}

func TestExecuteSkipsOldPosts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	record, err := store.NewIssue(ctx, "Daily", "2026-03-02")
	if err != nil {
		t.Fatalf("create issue: %v", err)
	}
	old := time.Now().UTC().Add(-96 * time.Hour)
	post := &issue.Post{IssueID: record.ID, Title: "Old", Link: "https://example.com/old", PublishedAt: &old}
	if _, err := store.InsertPost(ctx, post); err != nil {
		t.Fatalf("insert post: %v", err)
	}

	stage := New(store, logging.NewNop(), Options{ExtractWindow: 48 * time.Hour})
	counters, err := stage.Execute(ctx, record)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if counters["posts_extracted"] != 0 || counters["posts_degraded"] != 0 {
		t.Fatalf("old post should be skipped, got %v", counters)
	}
}

func TestStripHTML(t *testing.T) {
	got := stripHTML(`<div><p>Hello</p><script>bad()</script><p>world &gt; all</p></div>`)
	if got != "Hello world > all" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestStripHTMLCapKeepsRuneBoundary(t *testing.T) {
	// Three-byte runes never align with the byte cap, so a naive slice would
	// end mid-rune.
	page := "<p>" + strings.Repeat("⌘", maxExtractedText) + "</p>"
	got := stripHTML(page)
	if len(got) > maxExtractedText {
		t.Fatalf("expected at most %d bytes, got %d", maxExtractedText, len(got))
	}
	if !utf8.ValidString(got) {
		t.Fatal("cap split a rune")
	}
}
