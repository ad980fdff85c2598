package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pressroom/internal/config"
	"pressroom/internal/issue"
)

const userAgent = "Pressroom-Go/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyWorkflowFailed(ctx context.Context, record *issue.Issue) error
	NotifyIssueReady(ctx context.Context, record *issue.Issue) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		errors:     cfg.Notifications.Errors,
		issueReady: cfg.Notifications.IssueReady,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	errors     bool
	issueReady bool
}

func (n *ntfyService) NotifyWorkflowFailed(ctx context.Context, record *issue.Issue) error {
	if !n.errors || record == nil {
		return nil
	}
	message := fmt.Sprintf(
		"Issue %s (%s) failed\nLast state entered: %s\nError: %s",
		record.ID,
		strings.TrimSpace(record.Title),
		record.WorkflowStateStartedAt.UTC().Format(time.RFC3339),
		strings.TrimSpace(record.WorkflowError),
	)
	data := payload{
		title:    "Pressroom - Issue Failed",
		message:  message,
		tags:     []string{"pressroom", "issue", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyIssueReady(ctx context.Context, record *issue.Issue) error {
	if !n.issueReady || record == nil {
		return nil
	}
	data := payload{
		title:   "Pressroom - Issue Ready",
		message: fmt.Sprintf("Issue %s (%s) is ready for review", record.ID, strings.TrimSpace(record.Title)),
		tags:    []string{"pressroom", "issue", "ready"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Pressroom - Test",
		message:  "Notification system test",
		tags:     []string{"pressroom", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyWorkflowFailed(context.Context, *issue.Issue) error { return nil }
func (noopService) NotifyIssueReady(context.Context, *issue.Issue) error    { return nil }
func (noopService) TestNotification(context.Context) error                  { return nil }
