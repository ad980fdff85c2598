// Package api exposes the HTTP surface of the workflow engine: the six step
// endpoints driven by chained fire-and-forget triggers, the cron endpoints an
// external scheduler may own, and the admin read surface.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"pressroom/internal/issue"
	"pressroom/internal/logging"
	"pressroom/internal/pipeline"
	"pressroom/internal/services"
)

// Server routes workflow and admin requests to the pipeline components.
type Server struct {
	router   chi.Router
	store    *issue.Store
	runner   *pipeline.Runner
	recovery *pipeline.RecoveryScanner
	monitor  *pipeline.FailureMonitor
	logger   *slog.Logger
	token    string
	staleAge time.Duration
}

// Options carries the server's collaborators.
type Options struct {
	Store    *issue.Store
	Runner   *pipeline.Runner
	Recovery *pipeline.RecoveryScanner
	Monitor  *pipeline.FailureMonitor
	Logger   *slog.Logger
	APIToken string
	// StaleInProgressAge bounds the stale in-progress diagnostic on the
	// health endpoint.
	StaleInProgressAge time.Duration
}

// NewServer constructs the HTTP server and mounts all routes.
func NewServer(opts Options) *Server {
	staleAge := opts.StaleInProgressAge
	if staleAge <= 0 {
		staleAge = time.Hour
	}
	s := &Server{
		router:   chi.NewRouter(),
		store:    opts.Store,
		runner:   opts.Runner,
		recovery: opts.Recovery,
		monitor:  opts.Monitor,
		logger:   logging.NewComponentLogger(opts.Logger, "api"),
		token:    strings.TrimSpace(opts.APIToken),
		staleAge: staleAge,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requestLogger)
		r.Use(s.authenticate)

		r.Post("/steps/{step}", s.handleStep)
		r.Post("/cron/recover", s.handleRecover)
		r.Post("/cron/alerts", s.handleAlerts)

		r.Post("/issues", s.handleCreateIssue)
		r.Post("/issues/retry", s.handleRetryIssue)
		r.Get("/issues", s.handleListIssues)
		r.Get("/issues/{id}", s.handleGetIssue)
		r.Delete("/issues/{id}", s.handleDeleteIssue)
		r.Get("/health", s.handleHealth)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		ctx := logging.WithRequestID(r.Context(), requestID)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		s.logger.Debug("request handled",
			logging.String(logging.FieldRequestID, requestID),
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Duration("duration", time.Since(start)))
	})
}

// authenticate enforces the shared bearer secret on every endpoint. A server
// with no configured token refuses all requests rather than running open.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			s.writeError(w, http.StatusServiceUnavailable, "api token not configured")
			return
		}
		header := r.Header.Get("Authorization")
		presented, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(s.token)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	stepName := chi.URLParam(r, "step")
	var req stepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.IssueID) == "" {
		s.writeError(w, http.StatusBadRequest, "issue_id is required")
		return
	}

	result, err := s.runner.RunStep(r.Context(), stepName, req.IssueID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrValidation):
			s.writeError(w, http.StatusNotFound, services.Details(err).Message)
		case result.Outcome == pipeline.OutcomeFailure:
			s.writeJSON(w, http.StatusInternalServerError, toStepResponse(result))
		default:
			s.writeError(w, http.StatusInternalServerError, services.Details(err).Message)
		}
		return
	}

	status := http.StatusOK
	if result.Outcome == pipeline.OutcomeConflict {
		status = http.StatusConflict
	}
	s.writeJSON(w, status, toStepResponse(result))
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	triggered, err := s.recovery.Scan(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, cronResponse{Processed: triggered})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerted, err := s.monitor.Scan(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, cronResponse{Processed: alerted})
}

func (s *Server) handleCreateIssue(w http.ResponseWriter, r *http.Request) {
	var req createIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.EditionDate) == "" {
		s.writeError(w, http.StatusBadRequest, "title and edition_date are required")
		return
	}

	record, err := s.store.NewIssue(r.Context(), strings.TrimSpace(req.Title), strings.TrimSpace(req.EditionDate))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, toIssueView(record))
}

func (s *Server) handleRetryIssue(w http.ResponseWriter, r *http.Request) {
	var req retryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	state, ok := issue.ParseWorkflowState(req.From)
	if !ok || !state.IsPending() {
		s.writeError(w, http.StatusBadRequest, "from must be a pending workflow state")
		return
	}

	retried, err := s.store.RetryFrom(r.Context(), req.IssueID, state)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !retried {
		s.writeError(w, http.StatusConflict, "issue is not in the failed state")
		return
	}
	record, err := s.store.GetByID(r.Context(), req.IssueID)
	if err != nil || record == nil {
		s.writeError(w, http.StatusInternalServerError, "reload issue after retry")
		return
	}
	s.writeJSON(w, http.StatusOK, toIssueView(record))
}

func (s *Server) handleListIssues(w http.ResponseWriter, r *http.Request) {
	var states []issue.WorkflowState
	if raw := strings.TrimSpace(r.URL.Query().Get("state")); raw != "" {
		for _, value := range strings.Split(raw, ",") {
			state, ok := issue.ParseWorkflowState(value)
			if !ok {
				s.writeError(w, http.StatusBadRequest, "unknown workflow state "+value)
				return
			}
			states = append(states, state)
		}
	}

	records, err := s.store.List(r.Context(), states...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]issueView, 0, len(records))
	for _, record := range records {
		views = append(views, toIssueView(record))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetIssue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	record, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if record == nil {
		s.writeError(w, http.StatusNotFound, "issue not found")
		return
	}

	posts, err := s.store.PostsForIssue(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	articles, err := s.store.ArticlesForIssue(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, issueDetailView{
		issueView: toIssueView(record),
		Posts:     toPostViews(posts),
		Articles:  toArticleViews(articles),
	})
}

func (s *Server) handleDeleteIssue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	removed, err := s.store.Remove(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !removed {
		s.writeError(w, http.StatusNotFound, "issue not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	summary, err := s.store.Health(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	stale, err := s.store.StaleInProgress(r.Context(), time.Now().UTC().Add(-s.staleAge))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	stages := s.runner.StageHealth(r.Context())
	status := "ok"
	for _, stage := range stages {
		if !stage.Ready {
			status = "degraded"
			break
		}
	}
	if len(stale) > 0 {
		status = "degraded"
	}

	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:          status,
		Issues:          summary,
		StaleInProgress: len(stale),
		Stages:          toStageHealthViews(stages),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}
