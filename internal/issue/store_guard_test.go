package issue

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenPath(filepath.Join(t.TempDir(), "pressroom.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestIssue(t *testing.T, store *Store) *Issue {
	t.Helper()
	record, err := store.NewIssue(context.Background(), "Daily Brief", "2026-08-30")
	if err != nil {
		t.Fatalf("new issue: %v", err)
	}
	if record.WorkflowState != StatePendingArchive {
		t.Fatalf("new issue should start pending_archive, got %q", record.WorkflowState)
	}
	return record
}

func TestStartStepClaims(t *testing.T) {
	store := newTestStore(t)
	record := newTestIssue(t, store)
	ctx := context.Background()

	claim, err := store.StartStep(ctx, record.ID, StatePendingArchive)
	if err != nil {
		t.Fatalf("start step: %v", err)
	}
	if !claim.Claimed || claim.State != StateArchiving {
		t.Fatalf("unexpected claim %+v", claim)
	}

	updated, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("get issue: %v", err)
	}
	if updated.WorkflowState != StateArchiving {
		t.Fatalf("state should be archiving, got %q", updated.WorkflowState)
	}
	if updated.Status != StatusProcessing {
		t.Fatalf("status mirror should be processing, got %q", updated.Status)
	}
}

func TestStartStepLosesRaceWithoutMutation(t *testing.T) {
	store := newTestStore(t)
	record := newTestIssue(t, store)
	ctx := context.Background()

	first, err := store.StartStep(ctx, record.ID, StatePendingArchive)
	if err != nil || !first.Claimed {
		t.Fatalf("first claim should win: %+v %v", first, err)
	}

	second, err := store.StartStep(ctx, record.ID, StatePendingArchive)
	if err != nil {
		t.Fatalf("losing claim should not error: %v", err)
	}
	if second.Claimed {
		t.Fatal("second claim should lose")
	}
	if second.State != StateArchiving {
		t.Fatalf("losing claim should observe current state, got %q", second.State)
	}

	current, _ := store.GetByID(ctx, record.ID)
	if current.WorkflowState != StateArchiving {
		t.Fatalf("losing claim must not mutate state, got %q", current.WorkflowState)
	}
}

func TestCompleteStepAdvancesAndClearsError(t *testing.T) {
	store := newTestStore(t)
	record := newTestIssue(t, store)
	ctx := context.Background()

	if _, err := store.StartStep(ctx, record.ID, StatePendingArchive); err != nil {
		t.Fatalf("start step: %v", err)
	}
	next, advanced, err := store.CompleteStep(ctx, record.ID, StateArchiving)
	if err != nil {
		t.Fatalf("complete step: %v", err)
	}
	if !advanced || next != StatePendingFetchFeeds {
		t.Fatalf("unexpected completion: advanced=%v next=%q", advanced, next)
	}

	updated, _ := store.GetByID(ctx, record.ID)
	if updated.WorkflowState != StatePendingFetchFeeds {
		t.Fatalf("state should be pending_fetch_feeds, got %q", updated.WorkflowState)
	}
	if updated.WorkflowError != "" {
		t.Fatalf("workflow error should be cleared, got %q", updated.WorkflowError)
	}
}

func TestStartStepAfterAdvanceReturnsConflict(t *testing.T) {
	store := newTestStore(t)
	record := newTestIssue(t, store)
	ctx := context.Background()

	if _, err := store.StartStep(ctx, record.ID, StatePendingArchive); err != nil {
		t.Fatalf("start step: %v", err)
	}
	if _, _, err := store.CompleteStep(ctx, record.ID, StateArchiving); err != nil {
		t.Fatalf("complete step: %v", err)
	}

	// Re-triggering the already finished stage is a harmless no-op.
	claim, err := store.StartStep(ctx, record.ID, StatePendingArchive)
	if err != nil {
		t.Fatalf("re-trigger: %v", err)
	}
	if claim.Claimed {
		t.Fatal("re-trigger should not claim")
	}
	current, _ := store.GetByID(ctx, record.ID)
	if current.WorkflowState != StatePendingFetchFeeds {
		t.Fatalf("re-trigger must leave state untouched, got %q", current.WorkflowState)
	}
}

func TestFailWorkflowTruncatesAndMirrorsStatus(t *testing.T) {
	store := newTestStore(t)
	record := newTestIssue(t, store)
	ctx := context.Background()

	long := strings.Repeat("feed timeout; ", 100)
	if err := store.FailWorkflow(ctx, record.ID, long); err != nil {
		t.Fatalf("fail workflow: %v", err)
	}

	failed, _ := store.GetByID(ctx, record.ID)
	if failed.WorkflowState != StateFailed {
		t.Fatalf("state should be failed, got %q", failed.WorkflowState)
	}
	if failed.Status != StatusFailed {
		t.Fatalf("status mirror should be failed, got %q", failed.Status)
	}
	if len(failed.WorkflowError) != ErrorMessageLimit {
		t.Fatalf("error should be truncated to %d bytes, got %d", ErrorMessageLimit, len(failed.WorkflowError))
	}
	if failed.FailureAlertedAt != nil {
		t.Fatal("fresh failure should not be marked alerted")
	}
}

func TestTerminalImmutability(t *testing.T) {
	store := newTestStore(t)
	record := newTestIssue(t, store)
	ctx := context.Background()

	if err := store.FailWorkflow(ctx, record.ID, "boom"); err != nil {
		t.Fatalf("fail workflow: %v", err)
	}

	claim, err := store.StartStep(ctx, record.ID, StatePendingArchive)
	if err != nil {
		t.Fatalf("start step on failed issue: %v", err)
	}
	if claim.Claimed {
		t.Fatal("failed issue must not be claimable")
	}

	if _, advanced, err := store.CompleteStep(ctx, record.ID, StateArchiving); err != nil || advanced {
		t.Fatalf("complete step on failed issue should be a no-op: advanced=%v err=%v", advanced, err)
	}

	if err := store.FailWorkflow(ctx, record.ID, "second failure"); err != nil {
		t.Fatalf("second fail: %v", err)
	}
	current, _ := store.GetByID(ctx, record.ID)
	if current.WorkflowError != "boom" {
		t.Fatalf("terminal failure should keep first error, got %q", current.WorkflowError)
	}
}

func TestRetryFromResetsFailure(t *testing.T) {
	store := newTestStore(t)
	record := newTestIssue(t, store)
	ctx := context.Background()

	if err := store.FailWorkflow(ctx, record.ID, "boom"); err != nil {
		t.Fatalf("fail workflow: %v", err)
	}
	if err := store.MarkFailureAlerted(ctx, record.ID, time.Now()); err != nil {
		t.Fatalf("mark alerted: %v", err)
	}

	moved, err := store.RetryFrom(ctx, record.ID, StatePendingScore)
	if err != nil || !moved {
		t.Fatalf("retry should move the issue: moved=%v err=%v", moved, err)
	}

	current, _ := store.GetByID(ctx, record.ID)
	if current.WorkflowState != StatePendingScore {
		t.Fatalf("state should be pending_score, got %q", current.WorkflowState)
	}
	if current.WorkflowError != "" || current.FailureAlertedAt != nil {
		t.Fatalf("retry should clear error and alert marker: %+v", current)
	}

	if _, err := store.RetryFrom(ctx, record.ID, StateScoring); err == nil {
		t.Fatal("retry into a non-pending state should be rejected")
	}
}

func TestStalePendingScan(t *testing.T) {
	store := newTestStore(t)
	record := newTestIssue(t, store)
	ctx := context.Background()

	stale, err := store.StalePending(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("stale pending: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("fresh issue should not be stale, got %d", len(stale))
	}

	stale, err = store.StalePending(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("stale pending: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != record.ID {
		t.Fatalf("expected one stale issue, got %d", len(stale))
	}

	// In-progress issues never show up in the pending scan.
	if _, err := store.StartStep(ctx, record.ID, StatePendingArchive); err != nil {
		t.Fatalf("start step: %v", err)
	}
	stale, _ = store.StalePending(ctx, time.Now().Add(time.Hour))
	if len(stale) != 0 {
		t.Fatal("in-progress issue must not appear in pending scan")
	}
	inProgress, err := store.StaleInProgress(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("stale in-progress: %v", err)
	}
	if len(inProgress) != 1 {
		t.Fatalf("expected one stale in-progress issue, got %d", len(inProgress))
	}
}

func TestUnalertedFailures(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := newTestIssue(t, store)
	second := newTestIssue(t, store)
	if err := store.FailWorkflow(ctx, first.ID, "first"); err != nil {
		t.Fatalf("fail first: %v", err)
	}
	if err := store.FailWorkflow(ctx, second.ID, "second"); err != nil {
		t.Fatalf("fail second: %v", err)
	}

	failures, err := store.UnalertedFailures(ctx, 10)
	if err != nil {
		t.Fatalf("unalerted failures: %v", err)
	}
	if len(failures) != 2 {
		t.Fatalf("expected 2 unalerted failures, got %d", len(failures))
	}

	if err := store.MarkFailureAlerted(ctx, first.ID, time.Now()); err != nil {
		t.Fatalf("mark alerted: %v", err)
	}
	failures, _ = store.UnalertedFailures(ctx, 10)
	if len(failures) != 1 || failures[0].ID != second.ID {
		t.Fatalf("expected only the second failure to remain, got %d", len(failures))
	}

	failures, _ = store.UnalertedFailures(ctx, 1)
	if len(failures) != 1 {
		t.Fatalf("limit should bound the batch, got %d", len(failures))
	}
}
