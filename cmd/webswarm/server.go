package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"webswarm/internal/config"
	"webswarm/internal/domain"
	"webswarm/internal/metrics"
	sqlitestore "webswarm/internal/store/sqlite"
)

// RunStore is the read side of the run history served over HTTP.
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error)
	GetRun(ctx context.Context, runID string) (domain.RunSummary, error)
	ListOutcomes(ctx context.Context, runID string, limit int) ([]domain.Outcome, error)
	ListFeatures(ctx context.Context, runID string) ([]domain.FeaturePoint, error)
}

type app struct {
	cfg     config.Config
	store   RunStore
	metrics *metrics.Collector
	logger  *zap.Logger
}

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/config", a.handleConfig)
	mux.HandleFunc("/runs", a.handleRuns)
	mux.HandleFunc("/runs/", a.handleRunByID)
	mux.Handle("/metrics", a.metrics.Handler())
	return loggingMiddleware(a.logger, a.metrics, mux)
}

func (a *app) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *app) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"path":   a.cfg.Path,
		"config": a.cfg.Redacted(),
	})
}

func (a *app) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	runs, err := a.store.ListRuns(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a *app) handleRunByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	trimmed := strings.TrimPrefix(r.URL.Path, "/runs/")
	parts := strings.Split(trimmed, "/")
	runID := parts[0]
	if runID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("run id is required"))
		return
	}

	run, err := a.store.GetRun(r.Context(), runID)
	if errors.Is(err, sqlitestore.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if len(parts) == 1 {
		writeJSON(w, http.StatusOK, run)
		return
	}

	switch action := parts[1]; action {
	case "outcomes":
		items, err := a.store.ListOutcomes(r.Context(), runID, queryInt(r, "limit", 0))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	case "features":
		items, err := a.store.ListFeatures(r.Context(), runID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown action: %s", action))
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{
		"error": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *zap.Logger, m *metrics.Collector, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.HTTPRequest(routeLabel(r.URL.Path), rec.status)
		logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

// routeLabel collapses run ids so the route label stays bounded.
func routeLabel(path string) string {
	trimmed, ok := strings.CutPrefix(path, "/runs/")
	if !ok {
		switch path {
		case "/healthz", "/config", "/runs", "/metrics":
			return path
		}
		return "other"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) == 1 {
		return "/runs/{id}"
	}
	switch parts[1] {
	case "outcomes", "features":
		return "/runs/{id}/" + parts[1]
	}
	return "other"
}

func queryInt(r *http.Request, key string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
