package pipeline

import (
	"context"
	"log/slog"
	"time"

	"pressroom/internal/issue"
	"pressroom/internal/logging"
	"pressroom/internal/notifications"
)

// FailureMonitor surfaces terminal failures to humans. Alerting is
// at-least-once: the alerted marker is only set after a send succeeds, so a
// failed send leaves the issue eligible for the next scan.
type FailureMonitor struct {
	store     *issue.Store
	notifier  notifications.Service
	logger    *slog.Logger
	batchSize int
}

// NewFailureMonitor constructs a monitor with the given batch bound.
func NewFailureMonitor(store *issue.Store, notifier notifications.Service, logger *slog.Logger, batchSize int) *FailureMonitor {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &FailureMonitor{
		store:     store,
		notifier:  notifier,
		logger:    logging.NewComponentLogger(logger, "failure-monitor"),
		batchSize: batchSize,
	}
}

// Scan alerts unalerted failures oldest-first and reports how many alerts went
// out. A send failure for one issue never blocks the rest of the batch.
func (m *FailureMonitor) Scan(ctx context.Context) (int, error) {
	failures, err := m.store.UnalertedFailures(ctx, m.batchSize)
	if err != nil {
		return 0, err
	}

	alerted := 0
	for _, record := range failures {
		if err := m.notifier.NotifyWorkflowFailed(ctx, record); err != nil {
			m.logger.Warn("failure alert not delivered",
				logging.String(logging.FieldIssueID, record.ID),
				logging.Error(err))
			continue
		}
		if err := m.store.MarkFailureAlerted(ctx, record.ID, time.Now().UTC()); err != nil {
			m.logger.Error("failed to record alert marker",
				logging.String(logging.FieldIssueID, record.ID),
				logging.Error(err))
			continue
		}
		m.logger.Info("failure alerted",
			logging.String(logging.FieldEventType, "failure_alert"),
			logging.String(logging.FieldIssueID, record.ID),
			logging.String("error_message", record.WorkflowError))
		alerted++
	}
	return alerted, nil
}

// Run scans on the given interval until the context is canceled.
func (m *FailureMonitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Scan(ctx); err != nil {
				m.logger.Warn("failure monitor scan failed", logging.Error(err))
			}
		}
	}
}
