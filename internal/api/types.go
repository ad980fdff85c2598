package api

import (
	"time"

	"pressroom/internal/issue"
	"pressroom/internal/pipeline"
)

// stepRequest is the body of every step and retry invocation.
type stepRequest struct {
	IssueID string `json:"issue_id"`
}

// retryRequest resets a failed issue to a chosen pending state.
type retryRequest struct {
	IssueID string `json:"issue_id"`
	From    string `json:"from"`
}

// createIssueRequest is the body of POST /api/v1/issues.
type createIssueRequest struct {
	Title       string `json:"title"`
	EditionDate string `json:"edition_date"`
}

// stepResponse reports a step invocation result over the wire. The step field
// carries the "n/7" pipeline position; the stage name travels separately.
type stepResponse struct {
	Success   bool           `json:"success"`
	IssueID   string         `json:"issue_id"`
	Stage     string         `json:"stage"`
	Step      string         `json:"step"`
	NextState string         `json:"next_state,omitempty"`
	Counters  map[string]int `json:"counters,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// cronResponse reports a recovery or alert scan result.
type cronResponse struct {
	Processed int `json:"processed"`
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}

// issueView is the read-surface representation of an issue.
type issueView struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	EditionDate      string     `json:"edition_date"`
	Status           string     `json:"status"`
	WorkflowState    string     `json:"workflow_state"`
	StateStartedAt   time.Time  `json:"state_started_at"`
	WorkflowError    string     `json:"workflow_error,omitempty"`
	FailureAlertedAt *time.Time `json:"failure_alerted_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// issueDetailView extends issueView with the issue's content.
type issueDetailView struct {
	issueView
	Posts    []postView    `json:"posts"`
	Articles []articleView `json:"articles"`
}

type postView struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Section     string     `json:"section,omitempty"`
	Score       *float64   `json:"score,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

type articleView struct {
	ID        int64  `json:"id"`
	Section   string `json:"section"`
	Position  int    `json:"position"`
	Headline  string `json:"headline"`
	Body      string `json:"body"`
	FactCheck string `json:"fact_check,omitempty"`
}

// healthResponse summarizes store and stage readiness.
type healthResponse struct {
	Status          string              `json:"status"`
	Issues          issue.HealthSummary `json:"issues"`
	StaleInProgress int                 `json:"stale_in_progress"`
	Stages          []stageHealthView   `json:"stages"`
}

type stageHealthView struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

func toIssueView(record *issue.Issue) issueView {
	return issueView{
		ID:               record.ID,
		Title:            record.Title,
		EditionDate:      record.EditionDate,
		Status:           record.Status,
		WorkflowState:    string(record.WorkflowState),
		StateStartedAt:   record.WorkflowStateStartedAt,
		WorkflowError:    record.WorkflowError,
		FailureAlertedAt: record.FailureAlertedAt,
		CreatedAt:        record.CreatedAt,
		UpdatedAt:        record.UpdatedAt,
	}
}

func toPostViews(posts []*issue.Post) []postView {
	views := make([]postView, 0, len(posts))
	for _, post := range posts {
		views = append(views, postView{
			ID:          post.ID,
			Title:       post.Title,
			Link:        post.Link,
			Section:     post.Section,
			Score:       post.Score,
			PublishedAt: post.PublishedAt,
		})
	}
	return views
}

func toArticleViews(articles []*issue.Article) []articleView {
	views := make([]articleView, 0, len(articles))
	for _, article := range articles {
		views = append(views, articleView{
			ID:        article.ID,
			Section:   article.Section,
			Position:  article.Position,
			Headline:  article.Headline,
			Body:      article.Body,
			FactCheck: article.FactCheck,
		})
	}
	return views
}

func toStageHealthViews(health []pipeline.Health) []stageHealthView {
	views := make([]stageHealthView, 0, len(health))
	for _, h := range health {
		views = append(views, stageHealthView{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	return views
}

func toStepResponse(result pipeline.StepResult) stepResponse {
	return stepResponse{
		Success:   result.Outcome == pipeline.OutcomeSuccess,
		IssueID:   result.IssueID,
		Stage:     result.Step.Name,
		Step:      result.Step.Position(),
		NextState: string(result.NextState),
		Counters:  result.Counters,
		Message:   result.Message,
	}
}
