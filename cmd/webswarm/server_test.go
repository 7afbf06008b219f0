package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"webswarm/internal/config"
	"webswarm/internal/domain"
	"webswarm/internal/metrics"
)

func newTestServer(t *testing.T) (*httptest.Server, domain.Report) {
	t.Helper()
	ctx := context.Background()
	store, err := openStore(ctx, filepath.Join(t.TempDir(), "nested", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	start := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)
	feature := domain.FeaturePoint{ID: "feature_0", Type: domain.FeatureTypeForm, Category: domain.CategoryAuth, Description: "Login form"}
	rep := domain.Report{
		RunID:              "run-abc",
		Mode:               domain.RunModeExplore,
		StartTime:          start,
		EndTime:            &end,
		TargetURL:          "http://site.local/",
		TotalTests:         1,
		PassedTests:        1,
		TotalFeatures:      1,
		TestedFeatures:     1,
		DiscoveredFeatures: []domain.FeaturePoint{feature},
		TestDetails: []domain.Outcome{
			{Timestamp: start, AgentID: "Agent-1", Feature: &feature, Status: domain.OutcomeStatusPassed, Details: map[string]string{"result": "ok"}},
		},
	}
	require.NoError(t, store.WriteReport(ctx, rep))

	cfg := config.Config{Raw: map[string]any{
		"llm": map[string]any{"model": "gpt-5-mini", "api_key": "sk-secret"},
	}}
	a := &app{cfg: cfg, store: store, metrics: metrics.New(), logger: zaptest.NewLogger(t)}
	srv := httptest.NewServer(a.routes())
	t.Cleanup(srv.Close)
	return srv, rep
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestServerRunRoutes(t *testing.T) {
	srv, rep := newTestServer(t)

	var runs []domain.RunSummary
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/runs?limit=5", &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, rep.RunID, runs[0].RunID)

	var run domain.RunSummary
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/runs/run-abc", &run))
	assert.Equal(t, domain.RunModeExplore, run.Mode)
	assert.Equal(t, 1, run.PassedTests)

	var outcomes []domain.Outcome
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/runs/run-abc/outcomes", &outcomes))
	require.Len(t, outcomes, 1)
	assert.Equal(t, "ok", outcomes[0].Details["result"])

	var features []domain.FeaturePoint
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/runs/run-abc/features", &features))
	require.Len(t, features, 1)
	assert.Equal(t, "Login form", features[0].Description)
}

func TestServerErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		path string
		want int
	}{
		{path: "/runs/missing", want: http.StatusNotFound},
		{path: "/runs/", want: http.StatusBadRequest},
		{path: "/runs/run-abc/bogus", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		var body map[string]any
		if got := getJSON(t, srv.URL+tt.path, &body); got != tt.want {
			t.Fatalf("%s: expected %d, got %d", tt.path, tt.want, got)
		}
		if _, ok := body["error"]; !ok {
			t.Fatalf("%s: expected error body", tt.path)
		}
	}

	resp, err := http.Post(srv.URL+"/runs", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServerHealthConfigAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	var health map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/healthz", &health))
	assert.Equal(t, "ok", health["status"])

	var cfg map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/config", &cfg))
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sk-secret")
	assert.Contains(t, string(raw), "gpt-5-mini")

	require.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/runs/missing", nil))

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `webswarm_http_requests_total{code="404",route="/runs/{id}"} 1`)
	assert.Contains(t, string(body), `webswarm_http_requests_total{code="200",route="/healthz"} 1`)
}

func TestRouteLabel(t *testing.T) {
	tests := map[string]string{
		"/healthz":           "/healthz",
		"/runs":              "/runs",
		"/runs/abc":          "/runs/{id}",
		"/runs/abc/outcomes": "/runs/{id}/outcomes",
		"/runs/abc/features": "/runs/{id}/features",
		"/runs/abc/bogus":    "other",
		"/favicon.ico":       "other",
	}
	for path, want := range tests {
		if got := routeLabel(path); got != want {
			t.Fatalf("routeLabel(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestQueryInt(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{query: "", want: 7},
		{query: "limit=3", want: 3},
		{query: "limit=-1", want: 7},
		{query: "limit=abc", want: 7},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/runs?"+tt.query, nil)
		if got := queryInt(r, "limit", 7); got != tt.want {
			t.Fatalf("%q: expected %d, got %d", tt.query, tt.want, got)
		}
	}
}
