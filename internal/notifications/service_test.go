package notifications

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pressroom/internal/config"
	"pressroom/internal/issue"
)

func TestNewServiceReturnsNoopWithoutTopic(t *testing.T) {
	cfg := config.Default()
	svc := NewService(&cfg)
	if _, ok := svc.(noopService); !ok {
		t.Fatalf("expected noop service, got %T", svc)
	}
	if err := svc.NotifyWorkflowFailed(context.Background(), nil); err != nil {
		t.Fatalf("noop notify should not error: %v", err)
	}
}

func TestNotifyWorkflowFailedSendsHeaders(t *testing.T) {
	var gotTitle, gotPriority, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.Header.Get("Title")
		gotPriority = r.Header.Get("Priority")
		buf := make([]byte, 4096)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := NewService(&cfg)

	record := &issue.Issue{
		ID:                     "iss-1",
		Title:                  "Daily Brief",
		WorkflowState:          issue.StateFailed,
		WorkflowError:          "fetch_feeds: upstream 503",
		WorkflowStateStartedAt: time.Now().UTC(),
	}
	if err := svc.NotifyWorkflowFailed(context.Background(), record); err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	if gotTitle != "Pressroom - Issue Failed" {
		t.Fatalf("unexpected title %q", gotTitle)
	}
	if gotPriority != "high" {
		t.Fatalf("failure alerts should be high priority, got %q", gotPriority)
	}
	if !strings.Contains(gotBody, "upstream 503") {
		t.Fatalf("body should carry the error message, got %q", gotBody)
	}
}

func TestNotifyErrorStatusSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := NewService(&cfg)

	err := svc.TestNotification(context.Background())
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestDisabledErrorNotifications(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("disabled notifications must not reach the endpoint")
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Errors = false
	svc := NewService(&cfg)

	record := &issue.Issue{ID: "iss-1", WorkflowState: issue.StateFailed}
	if err := svc.NotifyWorkflowFailed(context.Background(), record); err != nil {
		t.Fatalf("disabled notify should be a no-op: %v", err)
	}
}
