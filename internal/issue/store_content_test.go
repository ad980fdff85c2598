package issue

import (
	"context"
	"testing"
	"time"
)

func TestInsertPostDeduplicatesOnLink(t *testing.T) {
	store := newTestStore(t)
	record := newTestIssue(t, store)
	ctx := context.Background()

	feed, err := store.AddFeed(ctx, "Example Wire", "https://example.com/rss")
	if err != nil {
		t.Fatalf("add feed: %v", err)
	}

	post := &Post{
		IssueID: record.ID,
		FeedID:  feed.ID,
		Title:   "Model launch",
		Link:    "https://example.com/posts/1",
		Summary: "A launch happened.",
	}
	inserted, err := store.InsertPost(ctx, post)
	if err != nil || !inserted {
		t.Fatalf("first insert should succeed: inserted=%v err=%v", inserted, err)
	}
	if post.ID == 0 {
		t.Fatal("insert should backfill the post ID")
	}

	duplicate := &Post{IssueID: record.ID, FeedID: feed.ID, Title: "Model launch again", Link: post.Link}
	inserted, err = store.InsertPost(ctx, duplicate)
	if err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if inserted {
		t.Fatal("duplicate link should be ignored")
	}

	posts, err := store.PostsForIssue(ctx, record.ID)
	if err != nil {
		t.Fatalf("posts for issue: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(posts))
	}
}

func TestPostsNeedingExtractionWindow(t *testing.T) {
	store := newTestStore(t)
	record := newTestIssue(t, store)
	ctx := context.Background()

	recent := time.Now().UTC().Add(-2 * time.Hour)
	old := time.Now().UTC().Add(-100 * time.Hour)
	for i, published := range []time.Time{recent, old} {
		ts := published
		post := &Post{
			IssueID:     record.ID,
			Title:       "post",
			Link:        "https://example.com/" + string(rune('a'+i)),
			PublishedAt: &ts,
		}
		if _, err := store.InsertPost(ctx, post); err != nil {
			t.Fatalf("insert post: %v", err)
		}
	}

	cutoff := time.Now().UTC().Add(-48 * time.Hour)
	pending, err := store.PostsNeedingExtraction(ctx, record.ID, cutoff)
	if err != nil {
		t.Fatalf("posts needing extraction: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected only the recent post, got %d", len(pending))
	}

	if err := store.SetPostFullText(ctx, pending[0].ID, "full body"); err != nil {
		t.Fatalf("set full text: %v", err)
	}
	pending, _ = store.PostsNeedingExtraction(ctx, record.ID, cutoff)
	if len(pending) != 0 {
		t.Fatal("extracted post should not be returned again")
	}
}

func TestScoredPostsOrdering(t *testing.T) {
	store := newTestStore(t)
	record := newTestIssue(t, store)
	ctx := context.Background()

	scores := []float64{0.2, 0.9, 0.5}
	ids := make([]int64, 0, len(scores))
	for i := range scores {
		post := &Post{IssueID: record.ID, Title: "post", Link: "https://example.com/p" + string(rune('0'+i))}
		if _, err := store.InsertPost(ctx, post); err != nil {
			t.Fatalf("insert post: %v", err)
		}
		ids = append(ids, post.ID)
	}
	for i, score := range scores {
		if err := store.SetPostScore(ctx, ids[i], score, "top_stories"); err != nil {
			t.Fatalf("set score: %v", err)
		}
	}

	ranked, err := store.ScoredPosts(ctx, record.ID, "top_stories", 2)
	if err != nil {
		t.Fatalf("scored posts: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(ranked))
	}
	if *ranked[0].Score != 0.9 || *ranked[1].Score != 0.5 {
		t.Fatalf("unexpected ordering: %v %v", *ranked[0].Score, *ranked[1].Score)
	}
}

func TestArchiveIssueContentSnapshotsAndClears(t *testing.T) {
	store := newTestStore(t)
	record := newTestIssue(t, store)
	ctx := context.Background()

	for i, score := range []float64{0.4, 0.8} {
		post := &Post{IssueID: record.ID, Title: "post", Link: "https://example.com/arch" + string(rune('0'+i))}
		if _, err := store.InsertPost(ctx, post); err != nil {
			t.Fatalf("insert post: %v", err)
		}
		if err := store.SetPostScore(ctx, post.ID, score, "top_stories"); err != nil {
			t.Fatalf("set score: %v", err)
		}
		article := &Article{IssueID: record.ID, PostID: post.ID, Section: "top_stories", Headline: "H", Body: "B", Position: i}
		if err := store.InsertArticle(ctx, article); err != nil {
			t.Fatalf("insert article: %v", err)
		}
	}

	archived, err := store.ArchiveIssueContent(ctx, record.ID)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if archived != 2 {
		t.Fatalf("expected 2 archived rows, got %d", archived)
	}

	posts, _ := store.PostsForIssue(ctx, record.ID)
	if len(posts) != 0 {
		t.Fatalf("posts should be cleared, got %d", len(posts))
	}
	articles, _ := store.ArticlesForIssue(ctx, record.ID)
	if len(articles) != 0 {
		t.Fatalf("articles should be cleared, got %d", len(articles))
	}

	// Snapshot keeps ranking: best score gets position 1.
	var position int
	var score float64
	row := store.db.QueryRow(
		`SELECT position, score FROM post_archive WHERE issue_id = ? ORDER BY position LIMIT 1`,
		record.ID,
	)
	if err := row.Scan(&position, &score); err != nil {
		t.Fatalf("scan archive row: %v", err)
	}
	if position != 1 || score != 0.8 {
		t.Fatalf("expected best post first, got position=%d score=%v", position, score)
	}
}

func TestFeedErrorCounters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	feed, err := store.AddFeed(ctx, "Example Wire", "https://example.com/rss")
	if err != nil {
		t.Fatalf("add feed: %v", err)
	}
	if err := store.IncrementFeedError(ctx, feed.ID); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := store.IncrementFeedError(ctx, feed.ID); err != nil {
		t.Fatalf("increment: %v", err)
	}

	updated, _ := store.FeedByID(ctx, feed.ID)
	if updated.ErrorCount != 2 {
		t.Fatalf("expected error_count 2, got %d", updated.ErrorCount)
	}

	if err := store.ResetFeedError(ctx, feed.ID); err != nil {
		t.Fatalf("reset: %v", err)
	}
	updated, _ = store.FeedByID(ctx, feed.ID)
	if updated.ErrorCount != 0 {
		t.Fatalf("expected error_count 0, got %d", updated.ErrorCount)
	}
}
