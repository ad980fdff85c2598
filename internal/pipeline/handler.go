package pipeline

import (
	"context"

	"pressroom/internal/issue"
)

// Counters carries stage-specific counts reported for observability. They are
// informational only and never gate a transition.
type Counters map[string]int

// Handler describes the contract the step runner needs from each stage
// collaborator.
type Handler interface {
	Execute(ctx context.Context, record *issue.Issue) (Counters, error)
	HealthCheck(ctx context.Context) Health
}

// Health summarizes the readiness of a pipeline stage.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}
