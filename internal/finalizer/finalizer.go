// Package finalizer closes out a pipeline run: the issue is marked ready for
// review and the ready notification goes out. Notification delivery is best
// effort and never fails the stage.
package finalizer

import (
	"context"
	"log/slog"

	"pressroom/internal/issue"
	"pressroom/internal/logging"
	"pressroom/internal/notifications"
	"pressroom/internal/pipeline"
	"pressroom/internal/services"
)

// Finalizer implements the last pipeline stage.
type Finalizer struct {
	store    *issue.Store
	notifier notifications.Service
	logger   *slog.Logger
}

// New constructs the finalize stage.
func New(store *issue.Store, notifier notifications.Service, logger *slog.Logger) *Finalizer {
	return &Finalizer{
		store:    store,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "finalizer"),
	}
}

// Execute marks the issue ready and announces it.
func (f *Finalizer) Execute(ctx context.Context, record *issue.Issue) (pipeline.Counters, error) {
	logger := logging.WithContext(ctx, f.logger)

	articles, err := f.store.ArticlesForIssue(ctx, record.ID)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "finalize", "list articles",
			"load generated articles", err)
	}
	if err := f.store.MarkReady(ctx, record.ID); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "finalize", "mark ready",
			"flip issue status to ready", err)
	}

	if err := f.notifier.NotifyIssueReady(ctx, record); err != nil {
		logger.Warn("issue ready notification not delivered", logging.Error(err))
	}

	logger.Info("issue finalized", logging.Int("articles", len(articles)))
	return pipeline.Counters{"articles_ready": len(articles)}, nil
}

// HealthCheck verifies the store is reachable.
func (f *Finalizer) HealthCheck(ctx context.Context) pipeline.Health {
	if _, err := f.store.Health(ctx); err != nil {
		return pipeline.Unhealthy("finalize", err.Error())
	}
	return pipeline.Healthy("finalize")
}
