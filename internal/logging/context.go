package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldIssueID is the standardized structured logging key for issue identifiers.
	FieldIssueID = "issue_id"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldEventType is the standardized structured logging key for event classification.
	FieldEventType = "event_type"
	// FieldRequestID is the standardized structured logging key for request correlation identifiers.
	FieldRequestID = "request_id"
	// FieldErrorKind is the standardized structured logging key for error classification.
	FieldErrorKind = "error_kind"
)

type contextKey struct{}

type contextFields struct {
	issueID   string
	stage     string
	requestID string
}

// WithIssue attaches an issue identifier to the context for downstream log enrichment.
func WithIssue(ctx context.Context, issueID string) context.Context {
	fields := fieldsFromContext(ctx)
	fields.issueID = issueID
	return context.WithValue(ctx, contextKey{}, fields)
}

// WithStage attaches a stage name to the context for downstream log enrichment.
func WithStage(ctx context.Context, stage string) context.Context {
	fields := fieldsFromContext(ctx)
	fields.stage = stage
	return context.WithValue(ctx, contextKey{}, fields)
}

// WithRequestID attaches a request correlation identifier to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	fields := fieldsFromContext(ctx)
	fields.requestID = requestID
	return context.WithValue(ctx, contextKey{}, fields)
}

// WithContext returns a logger enriched with any fields carried by the context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := fieldsFromContext(ctx)
	if fields.issueID != "" {
		logger = logger.With(String(FieldIssueID, fields.issueID))
	}
	if fields.stage != "" {
		logger = logger.With(String(FieldStage, fields.stage))
	}
	if fields.requestID != "" {
		logger = logger.With(String(FieldRequestID, fields.requestID))
	}
	return logger
}

func fieldsFromContext(ctx context.Context) contextFields {
	if ctx == nil {
		return contextFields{}
	}
	if fields, ok := ctx.Value(contextKey{}).(contextFields); ok {
		return fields
	}
	return contextFields{}
}
