package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"pressroom/internal/issue"
	"pressroom/internal/logging"
	"pressroom/internal/services"
)

type fakeHandler struct {
	counters Counters
	err      error
	calls    int
}

func (f *fakeHandler) Execute(ctx context.Context, record *issue.Issue) (Counters, error) {
	f.calls++
	return f.counters, f.err
}

func (f *fakeHandler) HealthCheck(ctx context.Context) Health {
	return Healthy("fake")
}

type recordingDispatcher struct {
	mu       sync.Mutex
	triggers []string
}

func (d *recordingDispatcher) Dispatch(step Step, issueID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.triggers = append(d.triggers, step.Name+":"+issueID)
}

func (d *recordingDispatcher) all() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]string, len(d.triggers))
	copy(cp, d.triggers)
	return cp
}

func newTestStore(t *testing.T) *issue.Store {
	t.Helper()
	store, err := issue.OpenPath(filepath.Join(t.TempDir(), "pressroom.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestIssue(t *testing.T, store *issue.Store) *issue.Issue {
	t.Helper()
	record, err := store.NewIssue(context.Background(), "Morning Edition", "2026-03-02")
	if err != nil {
		t.Fatalf("create issue: %v", err)
	}
	return record
}

func TestRunStepAdvancesAndDispatchesNext(t *testing.T) {
	store := newTestStore(t)
	record := newTestIssue(t, store)
	dispatcher := &recordingDispatcher{}
	runner := NewRunner(store, logging.NewNop(), dispatcher)
	handler := &fakeHandler{counters: Counters{"posts_archived": 3}}
	runner.Register(StepArchive, handler)

	result, err := runner.RunStep(context.Background(), StepArchive, record.ID)
	if err != nil {
		t.Fatalf("run step: %v", err)
	}
	if result.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %s (%s)", result.Outcome, result.Message)
	}
	if result.NextState != issue.StatePendingFetchFeeds {
		t.Fatalf("expected next state pending_fetch_feeds, got %s", result.NextState)
	}
	if result.Counters["posts_archived"] != 3 {
		t.Fatalf("expected counters passed through, got %v", result.Counters)
	}
	if handler.calls != 1 {
		t.Fatalf("expected one handler call, got %d", handler.calls)
	}

	triggers := dispatcher.all()
	if len(triggers) != 1 || triggers[0] != StepFetchFeeds+":"+record.ID {
		t.Fatalf("expected fetch_feeds dispatch, got %v", triggers)
	}

	stored, err := store.GetByID(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("reload issue: %v", err)
	}
	if stored.WorkflowState != issue.StatePendingFetchFeeds {
		t.Fatalf("expected stored state pending_fetch_feeds, got %s", stored.WorkflowState)
	}
}

func TestRunStepConflictWhenStateMismatch(t *testing.T) {
	store := newTestStore(t)
	record := newTestIssue(t, store)
	dispatcher := &recordingDispatcher{}
	runner := NewRunner(store, logging.NewNop(), dispatcher)
	handler := &fakeHandler{}
	runner.Register(StepFetchFeeds, handler)

	// The issue is in pending_archive; triggering fetch_feeds must lose the
	// claim without side effects.
	result, err := runner.RunStep(context.Background(), StepFetchFeeds, record.ID)
	if err != nil {
		t.Fatalf("run step: %v", err)
	}
	if result.Outcome != OutcomeConflict {
		t.Fatalf("expected conflict, got %s", result.Outcome)
	}
	if handler.calls != 0 {
		t.Fatalf("handler must not run on a lost claim, got %d calls", handler.calls)
	}
	if triggers := dispatcher.all(); len(triggers) != 0 {
		t.Fatalf("expected no dispatches, got %v", triggers)
	}

	stored, err := store.GetByID(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("reload issue: %v", err)
	}
	if stored.WorkflowState != issue.StatePendingArchive {
		t.Fatalf("lost claim mutated state to %s", stored.WorkflowState)
	}
}

func TestRunStepFailureParksIssue(t *testing.T) {
	store := newTestStore(t)
	record := newTestIssue(t, store)
	dispatcher := &recordingDispatcher{}
	runner := NewRunner(store, logging.NewNop(), dispatcher)
	stageErr := services.Wrap(services.ErrExternalTool, "archive", "snapshot", "disk full", errors.New("write failed"))
	runner.Register(StepArchive, &fakeHandler{err: stageErr})

	result, err := runner.RunStep(context.Background(), StepArchive, record.ID)
	if err == nil {
		t.Fatal("expected error from failing stage")
	}
	if result.Outcome != OutcomeFailure {
		t.Fatalf("expected failure outcome, got %s", result.Outcome)
	}
	if triggers := dispatcher.all(); len(triggers) != 0 {
		t.Fatalf("failed step must not dispatch, got %v", triggers)
	}

	stored, err := store.GetByID(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("reload issue: %v", err)
	}
	if stored.WorkflowState != issue.StateFailed {
		t.Fatalf("expected failed state, got %s", stored.WorkflowState)
	}
	if stored.Status != issue.StatusFailed {
		t.Fatalf("expected failed status, got %s", stored.Status)
	}
	if stored.WorkflowError == "" {
		t.Fatal("expected recorded workflow error")
	}
}

func TestRunStepUnknownStep(t *testing.T) {
	store := newTestStore(t)
	runner := NewRunner(store, logging.NewNop(), nil)

	_, err := runner.RunStep(context.Background(), "publish", "whatever")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRunStepFullPipeline(t *testing.T) {
	store := newTestStore(t)
	record := newTestIssue(t, store)
	runner := NewRunner(store, logging.NewNop(), NopDispatcher{})
	for _, step := range Steps() {
		runner.Register(step.Name, &fakeHandler{})
	}

	for _, step := range Steps() {
		result, err := runner.RunStep(context.Background(), step.Name, record.ID)
		if err != nil {
			t.Fatalf("step %s: %v", step.Name, err)
		}
		if result.Outcome != OutcomeSuccess {
			t.Fatalf("step %s: expected success, got %s", step.Name, result.Outcome)
		}
	}

	stored, err := store.GetByID(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("reload issue: %v", err)
	}
	if stored.WorkflowState != issue.StateComplete {
		t.Fatalf("expected complete, got %s", stored.WorkflowState)
	}
}
