package issue

import (
	"context"
	"fmt"
	"time"
)

// Claim is the outcome of a StartStep attempt.
type Claim struct {
	Claimed bool
	// State is the in-progress state entered when Claimed, or the stored
	// state observed when the claim lost the race.
	State WorkflowState
}

// StartStep atomically claims a stage: the issue moves to the in-progress form
// of expected only if its stored state still equals expected. A lost race is
// not an error; the caller must abort without side effects.
func (s *Store) StartStep(ctx context.Context, id string, expected WorkflowState) (Claim, error) {
	if !expected.IsPending() {
		return Claim{}, fmt.Errorf("start step: %q is not a pending state", expected)
	}
	inProgress, ok := Next(expected)
	if !ok {
		return Claim{}, fmt.Errorf("start step: no transition from %q", expected)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE issues
         SET workflow_state = ?, workflow_state_started_at = ?, status = ?, updated_at = ?
         WHERE id = ? AND workflow_state = ?`,
		inProgress,
		now,
		StatusProcessing,
		now,
		id,
		expected,
	)
	if err != nil {
		return Claim{}, fmt.Errorf("claim step: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Claim{}, fmt.Errorf("claim step rows affected: %w", err)
	}
	if affected > 0 {
		return Claim{Claimed: true, State: inProgress}, nil
	}

	record, err := s.GetByID(ctx, id)
	if err != nil {
		return Claim{}, err
	}
	if record == nil {
		return Claim{}, fmt.Errorf("claim step: issue %s not found", id)
	}
	return Claim{Claimed: false, State: record.WorkflowState}, nil
}

// CompleteStep advances the issue from its in-progress state to the transition
// table's successor, clearing any recorded workflow error. It reports false
// when the issue was no longer in the given state (terminal states are never
// overwritten).
func (s *Store) CompleteStep(ctx context.Context, id string, current WorkflowState) (WorkflowState, bool, error) {
	next, ok := Next(current)
	if !ok {
		return "", false, fmt.Errorf("complete step: no transition from %q", current)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE issues
         SET workflow_state = ?, workflow_state_started_at = ?, workflow_error = NULL, updated_at = ?
         WHERE id = ? AND workflow_state = ?`,
		next,
		now,
		now,
		id,
		current,
	)
	if err != nil {
		return "", false, fmt.Errorf("complete step: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("complete step rows affected: %w", err)
	}
	return next, affected > 0, nil
}

// FailWorkflow terminally fails an issue, recording a truncated error message
// and mirroring the failure into the user-visible status. Terminal issues are
// left untouched.
func (s *Store) FailWorkflow(ctx context.Context, id, message string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(
		ctx,
		`UPDATE issues
         SET workflow_state = ?, workflow_error = ?, status = ?,
             workflow_state_started_at = ?, failure_alerted_at = NULL, updated_at = ?
         WHERE id = ? AND workflow_state NOT IN (?, ?)`,
		StateFailed,
		TruncateError(message),
		StatusFailed,
		now,
		now,
		id,
		StateComplete,
		StateFailed,
	)
	if err != nil {
		return fmt.Errorf("fail workflow: %w", err)
	}
	return nil
}

// MarkReady flips the user-visible status to ready. Called by the finalize
// stage before its completion transition.
func (s *Store) MarkReady(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(
		ctx,
		`UPDATE issues SET status = ?, updated_at = ? WHERE id = ?`,
		StatusReady,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}
	return nil
}

// RetryFrom moves a failed issue back to the given pending state for manual
// reprocessing, clearing the recorded error and alert marker.
func (s *Store) RetryFrom(ctx context.Context, id string, pending WorkflowState) (bool, error) {
	if !pending.IsPending() {
		return false, fmt.Errorf("retry: %q is not a pending state", pending)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE issues
         SET workflow_state = ?, workflow_state_started_at = ?, status = ?,
             workflow_error = NULL, failure_alerted_at = NULL, updated_at = ?
         WHERE id = ? AND workflow_state = ?`,
		pending,
		now,
		StatusProcessing,
		now,
		id,
		StateFailed,
	)
	if err != nil {
		return false, fmt.Errorf("retry issue: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("retry rows affected: %w", err)
	}
	return affected > 0, nil
}

// StalePending returns issues parked in a pending state since before the
// cutoff, oldest first. These are recovery-scan candidates.
func (s *Store) StalePending(ctx context.Context, cutoff time.Time) ([]*Issue, error) {
	return s.staleInStates(ctx, pendingStates, cutoff)
}

// StaleInProgress returns issues stuck in an in-progress state since before
// the cutoff. These are diagnostic only; nothing auto-resets them.
func (s *Store) StaleInProgress(ctx context.Context, cutoff time.Time) ([]*Issue, error) {
	return s.staleInStates(ctx, inProgressStates, cutoff)
}

func (s *Store) staleInStates(ctx context.Context, states []WorkflowState, cutoff time.Time) ([]*Issue, error) {
	placeholders := makePlaceholders(len(states))
	args := make([]any, 0, len(states)+1)
	for _, state := range states {
		args = append(args, state)
	}
	args = append(args, cutoff.UTC().Format(time.RFC3339Nano))

	query := `SELECT ` + issueColumns + ` FROM issues
        WHERE workflow_state IN (` + placeholders + `) AND workflow_state_started_at < ?
        ORDER BY workflow_state_started_at`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stale issues: %w", err)
	}
	defer rows.Close()

	var issues []*Issue
	for rows.Next() {
		record, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, record)
	}
	return issues, rows.Err()
}

// UnalertedFailures returns failed issues that have not yet been alerted,
// oldest first, bounded by limit.
func (s *Store) UnalertedFailures(ctx context.Context, limit int) ([]*Issue, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+issueColumns+` FROM issues
         WHERE workflow_state = ? AND failure_alerted_at IS NULL
         ORDER BY workflow_state_started_at
         LIMIT ?`,
		StateFailed,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query unalerted failures: %w", err)
	}
	defer rows.Close()

	var issues []*Issue
	for rows.Next() {
		record, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, record)
	}
	return issues, rows.Err()
}

// MarkFailureAlerted records that a failure notification went out for the issue.
func (s *Store) MarkFailureAlerted(ctx context.Context, id string, when time.Time) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(
		ctx,
		`UPDATE issues SET failure_alerted_at = ?, updated_at = ? WHERE id = ?`,
		when.UTC().Format(time.RFC3339Nano),
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark failure alerted: %w", err)
	}
	return nil
}
