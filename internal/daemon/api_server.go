package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"covercat/internal/api"
	"covercat/internal/config"
	"covercat/internal/logging"
	"covercat/internal/records"
	"covercat/internal/review"
	"covercat/internal/services"
	"covercat/internal/workflow"
)

const maxBodyBytes = 1 << 20

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		token:  cfg.Paths.APIToken,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Single-record runs are synchronous and bounded by the stage timeout.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/stages", s.handleStages)
		r.Get("/snapshot", s.handleSnapshot)
		r.Get("/records", s.handleList)
		r.Get("/records/{id}", s.handleRecord)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(s.token))
			r.Post("/records/{id}/run", s.handleRun)
			r.Post("/records/{id}/approve", s.handleApprove)
			r.Post("/records/{id}/retry", s.handleRetry)
			r.Post("/records/{id}/review", s.handleMarkReview)
			r.Patch("/records/{id}/attributes", s.handleEdit)
			r.Post("/runs", s.handleBatch)
		})
	})
	return r
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_serve_failed", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.deps.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable", "unavailable", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	// Refresh the record gauges so scrapes see current counts.
	if _, err := s.daemon.deps.Review.Snapshot(r.Context()); err != nil {
		logging.WarnWithContext(s.logger, "record gauge refresh failed", "metrics_refresh_failed", logging.Error(err))
	}
	s.daemon.deps.Metrics.Handler().ServeHTTP(w, r)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleStages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, api.FromDescriptors(s.daemon.deps.Engine.Registry().Descriptors()))
}

func (s *apiServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.daemon.deps.Review.Snapshot(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromSnapshot(snap))
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := api.ListRequest{Stage: query.Get("stage"), Status: query.Get("status")}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit: "+raw, "bad_request", nil)
			return
		}
		req.Limit = limit
	}
	if err := api.Validate(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_request", nil)
		return
	}
	recs, err := s.daemon.deps.Review.List(r.Context(), req.Filter())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromRecordList(recs))
}

func (s *apiServer) handleRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.daemon.deps.Store.Get(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, workflow.TranslateStoreError(id, err))
		return
	}
	events, err := s.daemon.deps.Store.Events(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.RecordResponse{Record: api.FromRecord(rec), Events: api.FromEvents(events)})
}

func (s *apiServer) handleRun(w http.ResponseWriter, r *http.Request) {
	var req api.RunRequest
	if !s.decode(w, r, &req) {
		return
	}
	outcome, err := s.daemon.deps.Coordinator.RunOne(r.Context(), chi.URLParam(r, "id"), strings.TrimSpace(req.Stage))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromOutcome(outcome))
}

func (s *apiServer) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req api.BatchRunRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.daemon.StartBatch(req); err != nil {
		if errors.Is(err, ErrBatchRunning) {
			writeError(w, http.StatusConflict, err.Error(), "busy", nil)
			return
		}
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, api.BatchAccepted{IDs: req.IDs, All: req.All, Limit: req.Limit, Stage: req.Stage})
}

func (s *apiServer) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req api.ApproveRequest
	if !s.decode(w, r, &req) {
		return
	}
	rec, err := s.daemon.deps.Review.Approve(r.Context(), chi.URLParam(r, "id"), req.Corrected())
	s.writeRecord(w, r, rec, err)
}

func (s *apiServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	var req api.RetryRequest
	if !s.decode(w, r, &req) {
		return
	}
	rec, err := s.daemon.deps.Review.RetryFrom(r.Context(), chi.URLParam(r, "id"), strings.TrimSpace(req.Stage))
	s.writeRecord(w, r, rec, err)
}

func (s *apiServer) handleMarkReview(w http.ResponseWriter, r *http.Request) {
	var req api.ReviewRequest
	if !s.decode(w, r, &req) {
		return
	}
	rec, err := s.daemon.deps.Review.MarkReview(r.Context(), chi.URLParam(r, "id"), req.Reason)
	s.writeRecord(w, r, rec, err)
}

func (s *apiServer) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req api.EditRequest
	if !s.decode(w, r, &req) {
		return
	}
	rec, err := s.daemon.deps.Review.Edit(r.Context(), chi.URLParam(r, "id"), records.Attributes(req.Attributes))
	s.writeRecord(w, r, rec, err)
}

func (s *apiServer) writeRecord(w http.ResponseWriter, r *http.Request, rec *records.Record, err error) {
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromRecord(rec))
}

// decode reads an optional JSON body into dst and validates it. An empty body
// leaves dst at its zero value.
func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error(), "bad_request", nil)
		return false
	}
	if err := api.Validate(dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_request", nil)
		return false
	}
	return true
}

// writeDomainError maps workflow errors onto HTTP statuses.
func (s *apiServer) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusForError(err)
	var missing []string
	var pre *workflow.PreconditionError
	if errors.As(err, &pre) {
		missing = pre.Missing
	}
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "api request failed", "api_error",
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	}
	writeError(w, status, err.Error(), kind, missing)
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, workflow.ErrRecordNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, workflow.ErrRecordBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, workflow.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, workflow.ErrUnknownStage):
		return http.StatusUnprocessableEntity, "unknown_stage"
	case errors.Is(err, workflow.ErrStagePrecondition):
		return http.StatusUnprocessableEntity, "precondition"
	case errors.Is(err, review.ErrInvalidEdit):
		return http.StatusUnprocessableEntity, "invalid_edit"
	case errors.Is(err, api.ErrInvalidRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "cancelled"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, kind string, missing []string) {
	writeJSON(w, status, api.ErrorResponse{Error: message, Kind: kind, Missing: missing})
}
