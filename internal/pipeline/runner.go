package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pressroom/internal/issue"
	"pressroom/internal/logging"
	"pressroom/internal/services"
)

// Outcome classifies a step invocation.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeConflict Outcome = "conflict"
	OutcomeFailure  Outcome = "failure"
)

// StepResult reports a step invocation back to the HTTP layer.
type StepResult struct {
	Outcome   Outcome
	Message   string
	IssueID   string
	Step      Step
	NextState issue.WorkflowState
	Counters  Counters
}

// Runner executes pipeline steps: claim the stage through the store's
// compare-and-set, run the stage collaborator, commit the transition, and fire
// the next stage's trigger.
type Runner struct {
	store      *issue.Store
	logger     *slog.Logger
	dispatcher Dispatcher
	handlers   map[string]Handler
}

// NewRunner constructs a runner with no registered handlers.
func NewRunner(store *issue.Store, logger *slog.Logger, dispatcher Dispatcher) *Runner {
	if dispatcher == nil {
		dispatcher = NopDispatcher{}
	}
	return &Runner{
		store:      store,
		logger:     logging.NewComponentLogger(logger, "runner"),
		dispatcher: dispatcher,
		handlers:   make(map[string]Handler),
	}
}

// Register binds a stage collaborator to a step.
func (r *Runner) Register(name string, handler Handler) {
	r.handlers[name] = handler
}

// StageHealth reports readiness of every registered stage collaborator.
func (r *Runner) StageHealth(ctx context.Context) []Health {
	health := make([]Health, 0, len(steps))
	for _, step := range steps {
		handler, ok := r.handlers[step.Name]
		if !ok {
			health = append(health, Unhealthy(step.Name, "no handler registered"))
			continue
		}
		health = append(health, handler.HealthCheck(ctx))
	}
	return health
}

// RunStep executes one stage for one issue. A lost claim is reported as a
// conflict, not an error: it is the expected outcome of benign
// double-triggering.
func (r *Runner) RunStep(ctx context.Context, stepName, issueID string) (StepResult, error) {
	step, ok := StepByName(stepName)
	if !ok {
		return StepResult{}, services.Wrap(services.ErrValidation, "pipeline", "resolve step",
			fmt.Sprintf("unknown step %q", stepName), nil)
	}
	handler, ok := r.handlers[step.Name]
	if !ok {
		return StepResult{}, services.Wrap(services.ErrConfiguration, step.Name, "resolve handler",
			"no handler registered", nil)
	}

	stageCtx := logging.WithIssue(logging.WithStage(ctx, step.Name), issueID)
	logger := logging.WithContext(stageCtx, r.logger)

	claim, err := r.store.StartStep(stageCtx, issueID, step.Pending)
	if err != nil {
		return StepResult{}, fmt.Errorf("claim %s: %w", step.Name, err)
	}
	if !claim.Claimed {
		logger.Info("step already handled",
			logging.String(logging.FieldEventType, "step_conflict"),
			logging.String("observed_state", string(claim.State)))
		return StepResult{
			Outcome:   OutcomeConflict,
			Message:   fmt.Sprintf("issue is in %s, expected %s", claim.State, step.Pending),
			IssueID:   issueID,
			Step:      step,
			NextState: claim.State,
		}, nil
	}

	record, err := r.store.GetByID(stageCtx, issueID)
	if err != nil || record == nil {
		failErr := err
		if failErr == nil {
			failErr = fmt.Errorf("issue %s disappeared after claim", issueID)
		}
		r.failStep(stageCtx, logger, step, issueID, failErr)
		return StepResult{}, failErr
	}

	stepStart := time.Now()
	logger.Info("step started",
		logging.String(logging.FieldEventType, "step_start"),
		logging.String("in_progress_state", string(step.InProgress)))

	counters, execErr := handler.Execute(stageCtx, record)
	if execErr != nil {
		r.failStep(stageCtx, logger, step, issueID, execErr)
		return StepResult{
			Outcome:  OutcomeFailure,
			Message:  services.Details(execErr).Message,
			IssueID:  issueID,
			Step:     step,
			Counters: counters,
		}, execErr
	}

	next, advanced, err := r.store.CompleteStep(stageCtx, issueID, step.InProgress)
	if err != nil {
		r.failStep(stageCtx, logger, step, issueID, err)
		return StepResult{}, fmt.Errorf("commit %s: %w", step.Name, err)
	}
	if !advanced {
		// Someone terminated the workflow while the stage ran.
		current, _ := r.store.GetByID(stageCtx, issueID)
		observed := issue.WorkflowState("")
		if current != nil {
			observed = current.WorkflowState
		}
		logger.Warn("step finished but issue had left its in-progress state",
			logging.String(logging.FieldEventType, "step_commit_conflict"),
			logging.String("observed_state", string(observed)))
		return StepResult{
			Outcome:   OutcomeConflict,
			Message:   fmt.Sprintf("issue left %s before completion", step.InProgress),
			IssueID:   issueID,
			Step:      step,
			NextState: observed,
			Counters:  counters,
		}, nil
	}

	logger.Info("step completed",
		logging.String(logging.FieldEventType, "step_complete"),
		logging.String("next_state", string(next)),
		logging.Duration("step_duration", time.Since(stepStart)))

	// Self-propulsion: fire the next stage and return without waiting on it.
	if nextStep, ok := StepForPending(next); ok {
		r.dispatcher.Dispatch(nextStep, issueID)
	}

	return StepResult{
		Outcome:   OutcomeSuccess,
		IssueID:   issueID,
		Step:      step,
		NextState: next,
		Counters:  counters,
	}, nil
}

func (r *Runner) failStep(ctx context.Context, logger *slog.Logger, step Step, issueID string, stageErr error) {
	details := services.Details(stageErr)
	message := fmt.Sprintf("%s: %s", step.Name, details.Message)
	logger.Error("step failed",
		logging.String(logging.FieldEventType, "step_failure"),
		logging.String(logging.FieldErrorKind, details.Kind),
		logging.Error(stageErr))

	if err := r.store.FailWorkflow(ctx, issueID, message); err != nil {
		// The issue stays parked in its in-progress state; the stale
		// in-progress diagnostics surface it.
		logger.Error("failed to persist workflow failure", logging.Error(err))
	}
}
