// Package logging builds the slog loggers used across pressroom and carries
// request-scoped fields (issue, stage, request id) through context so every
// component logs with consistent keys.
package logging
