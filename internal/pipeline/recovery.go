package pipeline

import (
	"context"
	"log/slog"
	"time"

	"pressroom/internal/issue"
	"pressroom/internal/logging"
)

// RecoveryScanner re-triggers issues parked in a pending state longer than the
// configured age. Because StartStep is a compare-and-set, re-invoking an
// already-advanced issue is a safe no-op.
type RecoveryScanner struct {
	store      *issue.Store
	dispatcher Dispatcher
	logger     *slog.Logger
	minAge     time.Duration
}

// NewRecoveryScanner constructs a scanner with the given staleness threshold.
func NewRecoveryScanner(store *issue.Store, dispatcher Dispatcher, logger *slog.Logger, minAge time.Duration) *RecoveryScanner {
	if dispatcher == nil {
		dispatcher = NopDispatcher{}
	}
	return &RecoveryScanner{
		store:      store,
		dispatcher: dispatcher,
		logger:     logging.NewComponentLogger(logger, "recovery"),
		minAge:     minAge,
	}
}

// Scan dispatches one trigger per stalled pending issue and reports how many
// were re-triggered.
func (s *RecoveryScanner) Scan(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.minAge)
	stalled, err := s.store.StalePending(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	triggered := 0
	for _, record := range stalled {
		step, ok := StepForPending(record.WorkflowState)
		if !ok {
			s.logger.Warn("no step for pending state",
				logging.String(logging.FieldIssueID, record.ID),
				logging.String("state", string(record.WorkflowState)))
			continue
		}
		s.logger.Info("re-triggering stalled issue",
			logging.String(logging.FieldEventType, "recovery_trigger"),
			logging.String(logging.FieldIssueID, record.ID),
			logging.String(logging.FieldStage, step.Name),
			logging.Duration("stalled_for", time.Since(record.WorkflowStateStartedAt)))
		s.dispatcher.Dispatch(step, record.ID)
		triggered++
	}
	return triggered, nil
}

// Run scans on the given interval until the context is canceled.
func (s *RecoveryScanner) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Scan(ctx); err != nil {
				s.logger.Warn("recovery scan failed", logging.Error(err))
			}
		}
	}
}
