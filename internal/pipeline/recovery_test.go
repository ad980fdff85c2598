package pipeline

import (
	"context"
	"testing"
	"time"

	"pressroom/internal/issue"
	"pressroom/internal/logging"
)

func TestRecoveryScanRetriggersStalledPending(t *testing.T) {
	store := newTestStore(t)
	record := newTestIssue(t, store)
	dispatcher := &recordingDispatcher{}

	// A negative minimum age moves the cutoff into the future so the freshly
	// created issue counts as stalled.
	scanner := NewRecoveryScanner(store, dispatcher, logging.NewNop(), -time.Second)
	triggered, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if triggered != 1 {
		t.Fatalf("expected 1 re-trigger, got %d", triggered)
	}
	triggers := dispatcher.all()
	if len(triggers) != 1 || triggers[0] != StepArchive+":"+record.ID {
		t.Fatalf("expected archive trigger for issue, got %v", triggers)
	}
}

func TestRecoveryScanIgnoresFreshAndInProgress(t *testing.T) {
	store := newTestStore(t)
	record := newTestIssue(t, store)
	if _, err := store.StartStep(context.Background(), record.ID, issue.StatePendingArchive); err != nil {
		t.Fatalf("claim step: %v", err)
	}

	dispatcher := &recordingDispatcher{}
	scanner := NewRecoveryScanner(store, dispatcher, logging.NewNop(), -time.Second)
	triggered, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if triggered != 0 {
		t.Fatalf("in-progress issue must not be re-triggered, got %d", triggered)
	}
	if triggers := dispatcher.all(); len(triggers) != 0 {
		t.Fatalf("expected no dispatches, got %v", triggers)
	}

	fresh := NewRecoveryScanner(store, dispatcher, logging.NewNop(), time.Hour)
	triggered, err = fresh.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if triggered != 0 {
		t.Fatalf("fresh issue must not be re-triggered, got %d", triggered)
	}
}
