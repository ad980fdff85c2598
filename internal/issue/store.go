package issue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const issueColumns = "id, title, edition_date, status, workflow_state, workflow_state_started_at, workflow_error, failure_alerted_at, created_at, updated_at"

// NewIssue inserts a fresh issue in pending_archive.
func (s *Store) NewIssue(ctx context.Context, title, editionDate string) (*Issue, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	id := uuid.NewString()

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO issues (
            id, title, edition_date, status, workflow_state,
            workflow_state_started_at, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		title,
		editionDate,
		StatusDraft,
		StatePendingArchive,
		timestamp,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert issue: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches an issue by identifier. Returns nil when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Issue, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = ?`, id)
	record, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	return record, nil
}

// List returns issues filtered by workflow state set (or all issues when no
// state is provided), newest first.
func (s *Store) List(ctx context.Context, states ...WorkflowState) ([]*Issue, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + issueColumns + ` FROM issues`
	orderClause := ` ORDER BY created_at DESC`

	if len(states) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(states))
		args := make([]any, len(states))
		for i, state := range states {
			args[i] = state
		}
		query := baseQuery + ` WHERE workflow_state IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
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

// Stats returns a count of issues grouped by workflow state.
func (s *Store) Stats(ctx context.Context) (map[WorkflowState]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT workflow_state, COUNT(1) FROM issues GROUP BY workflow_state`)
	if err != nil {
		return nil, fmt.Errorf("issue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[WorkflowState]int)
	for rows.Next() {
		var state WorkflowState
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[state] = count
	}
	return stats, rows.Err()
}

// Health aggregates issue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for state, count := range stats {
		health.Total += count
		switch {
		case state == StateComplete:
			health.Complete += count
		case state == StateFailed:
			health.Failed += count
		case state.IsPending():
			health.Pending += count
		default:
			health.InProgress += count
		}
	}
	return health, nil
}

// Remove deletes an issue and its content by identifier.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM issues WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete issue: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanIssue(scanner interface{ Scan(dest ...any) error }) (*Issue, error) {
	var (
		id            string
		title         sql.NullString
		editionDate   sql.NullString
		status        sql.NullString
		stateStr      string
		startedRaw    sql.NullString
		workflowError sql.NullString
		alertedRaw    sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&title,
		&editionDate,
		&status,
		&stateStr,
		&startedRaw,
		&workflowError,
		&alertedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	record := &Issue{
		ID:            id,
		Title:         title.String,
		EditionDate:   editionDate.String,
		Status:        status.String,
		WorkflowState: WorkflowState(stateStr),
		WorkflowError: workflowError.String,
	}
	if started, err := parseTimeString(startedRaw.String); err == nil {
		record.WorkflowStateStartedAt = started
	}
	if alertedRaw.Valid {
		if alerted, err := parseTimeString(alertedRaw.String); err == nil {
			record.FailureAlertedAt = &alerted
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		record.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		record.UpdatedAt = updated
	}
	return record, nil
}
