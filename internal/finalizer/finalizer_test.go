package finalizer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"pressroom/internal/issue"
	"pressroom/internal/logging"
)

type fakeNotifier struct {
	ready []string
	err   error
}

func (f *fakeNotifier) NotifyWorkflowFailed(ctx context.Context, record *issue.Issue) error {
	return nil
}

func (f *fakeNotifier) NotifyIssueReady(ctx context.Context, record *issue.Issue) error {
	if f.err != nil {
		return f.err
	}
	f.ready = append(f.ready, record.ID)
	return nil
}

func (f *fakeNotifier) TestNotification(ctx context.Context) error { return nil }

func newTestStore(t *testing.T) *issue.Store {
	t.Helper()
	store, err := issue.OpenPath(filepath.Join(t.TempDir(), "pressroom.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestExecuteMarksReadyAndNotifies(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	record, err := store.NewIssue(ctx, "Daily", "2026-03-02")
	if err != nil {
		t.Fatalf("create issue: %v", err)
	}
	if err := store.InsertArticle(ctx, &issue.Article{
		IssueID: record.ID, Section: issue.SectionNews, Headline: "H", Body: "B", Position: 1,
	}); err != nil {
		t.Fatalf("insert article: %v", err)
	}

	notifier := &fakeNotifier{}
	stage := New(store, notifier, logging.NewNop())
	counters, err := stage.Execute(ctx, record)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if counters["articles_ready"] != 1 {
		t.Fatalf("unexpected counters %v", counters)
	}
	if len(notifier.ready) != 1 || notifier.ready[0] != record.ID {
		t.Fatalf("expected ready notification, got %v", notifier.ready)
	}

	stored, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("reload issue: %v", err)
	}
	if stored.Status != issue.StatusReady {
		t.Fatalf("expected ready status, got %s", stored.Status)
	}
}

func TestExecuteNotificationFailureIsNotFatal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	record, err := store.NewIssue(ctx, "Daily", "2026-03-02")
	if err != nil {
		t.Fatalf("create issue: %v", err)
	}

	notifier := &fakeNotifier{err: errors.New("ntfy unreachable")}
	stage := New(store, notifier, logging.NewNop())
	if _, err := stage.Execute(ctx, record); err != nil {
		t.Fatalf("notification failure must not fail finalize: %v", err)
	}

	stored, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("reload issue: %v", err)
	}
	if stored.Status != issue.StatusReady {
		t.Fatalf("expected ready status, got %s", stored.Status)
	}
}
