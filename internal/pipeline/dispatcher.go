package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"pressroom/internal/logging"
)

// Dispatcher triggers a stage endpoint for an issue without awaiting or
// propagating its result. Swapping this boundary for a queue broker leaves the
// step executors untouched.
type Dispatcher interface {
	Dispatch(step Step, issueID string)
}

// HTTPDispatcher fires step triggers at the server's own step endpoints.
type HTTPDispatcher struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewHTTPDispatcher builds a dispatcher targeting baseURL with the shared
// bearer token.
func NewHTTPDispatcher(baseURL, token string, timeout time.Duration, logger *slog.Logger) *HTTPDispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPDispatcher{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		logger:  logging.NewComponentLogger(logger, "dispatcher"),
		timeout: timeout,
	}
}

// Dispatch posts to the step endpoint in the background. Errors are logged and
// never reach the triggering stage; the recovery scan covers lost triggers.
func (d *HTTPDispatcher) Dispatch(step Step, issueID string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		body, err := json.Marshal(map[string]string{"issue_id": issueID})
		if err != nil {
			d.logger.Warn("encode dispatch body", logging.Error(err))
			return
		}
		url := d.baseURL + "/api/v1/steps/" + step.Name
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			d.logger.Warn("build dispatch request", logging.Error(err))
			return
		}
		req.Header.Set("Content-Type", "application/json")
		if d.token != "" {
			req.Header.Set("Authorization", "Bearer "+d.token)
		}

		resp, err := d.client.Do(req)
		if err != nil {
			d.logger.Debug("step dispatch not confirmed",
				logging.String(logging.FieldStage, step.Name),
				logging.String(logging.FieldIssueID, issueID),
				logging.Error(err))
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		d.logger.Debug("step dispatched",
			logging.String(logging.FieldStage, step.Name),
			logging.String(logging.FieldIssueID, issueID),
			logging.Int("status", resp.StatusCode))
	}()
}

// Wait blocks until in-flight dispatches settle. Used during shutdown.
func (d *HTTPDispatcher) Wait() {
	d.wg.Wait()
}

// NopDispatcher drops every trigger. Used in tests and one-shot CLI runs.
type NopDispatcher struct{}

func (NopDispatcher) Dispatch(Step, string) {}
