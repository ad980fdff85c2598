// Package archiver snapshots a previous edition's content before a new
// pipeline run begins. Posts are copied into the archive table with their
// score-derived position, then the working tables are cleared for the issue.
package archiver

import (
	"context"
	"log/slog"

	"pressroom/internal/issue"
	"pressroom/internal/logging"
	"pressroom/internal/pipeline"
	"pressroom/internal/services"
)

// Archiver implements the first pipeline stage.
type Archiver struct {
	store  *issue.Store
	logger *slog.Logger
}

// New constructs the archive stage.
func New(store *issue.Store, logger *slog.Logger) *Archiver {
	return &Archiver{
		store:  store,
		logger: logging.NewComponentLogger(logger, "archiver"),
	}
}

// Execute archives the issue's working content in a single transaction. An
// issue with no prior content archives zero rows and still succeeds.
func (a *Archiver) Execute(ctx context.Context, record *issue.Issue) (pipeline.Counters, error) {
	archived, err := a.store.ArchiveIssueContent(ctx, record.ID)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "archive", "snapshot content",
			"archive previous edition content", err)
	}
	logging.WithContext(ctx, a.logger).Info("previous edition archived",
		logging.Int64("posts_archived", archived))
	return pipeline.Counters{"posts_archived": int(archived)}, nil
}

// HealthCheck verifies the store is reachable.
func (a *Archiver) HealthCheck(ctx context.Context) pipeline.Health {
	if _, err := a.store.Health(ctx); err != nil {
		return pipeline.Unhealthy("archive", err.Error())
	}
	return pipeline.Healthy("archive")
}
