package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webswarm/internal/domain"
)

func TestTrimLine(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{in: "short", limit: 10, want: "short"},
		{in: "abcdefghij", limit: 6, want: "abc..."},
		{in: "登录表单测试用例", limit: 5, want: "登录..."},
		{in: "abcdef", limit: 2, want: "ab"},
	}
	for _, tt := range tests {
		if got := trimLine(tt.in, tt.limit); got != tt.want {
			t.Fatalf("trimLine(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
		}
	}
}

func TestRenderAgentSummary(t *testing.T) {
	start := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Minute)
	run := &domain.RunSummary{RunID: "0123456789abcdef", Mode: domain.RunModeExplore, StartTime: start, EndTime: &end}
	feature := &domain.FeaturePoint{Description: "Search box"}
	outcomes := []domain.Outcome{
		{Timestamp: start, AgentID: "Agent-2", Type: "login_test", Description: "Login", Status: domain.OutcomeStatusPassed},
		{Timestamp: start.Add(time.Second), AgentID: "Agent-1", Feature: feature, Status: domain.OutcomeStatusFailed, Details: map[string]string{"error": "step limit"}},
		{Timestamp: start.Add(2 * time.Second), AgentID: "Agent-2", Description: "Logout", Status: domain.OutcomeStatusPassed},
	}

	got := renderAgentSummary(run, outcomes)
	assert.Contains(t, got, "Run: 01234567")
	assert.Contains(t, got, "state=finished")
	assert.Contains(t, got, "duration=2m0s")
	assert.Contains(t, got, "passed=2 failed=0 last=Logout")
	assert.Contains(t, got, "error: step limit")
	assert.Less(t, strings.Index(got, "Agent-1"), strings.Index(got, "Agent-2"))

	assert.Equal(t, "No run selected", renderAgentSummary(nil, nil))
}

func TestRenderOutcomesAndFeatures(t *testing.T) {
	assert.Equal(t, "No outcomes", renderOutcomes(nil))
	assert.Equal(t, "No discovered features", renderFeatures(nil))

	out := renderOutcomes([]domain.Outcome{
		{AgentID: "Agent-1", Type: "navigation_test", Description: "Nav", Status: domain.OutcomeStatusPassed, Details: map[string]string{"result": "visited\n3 pages"}},
	})
	assert.Contains(t, out, "[green]PASSED[-]")
	assert.Contains(t, out, "navigation_test: Nav")
	assert.Contains(t, out, "result: visited 3 pages")

	features := renderFeatures([]domain.FeaturePoint{{ID: "feature_0", Type: domain.FeatureTypeForm, Category: domain.CategoryAuth, Description: "Login [form]", Priority: 1}})
	assert.Contains(t, features, "feature_0")
	assert.Contains(t, features, "p1")
}

func TestClientDecodesRuns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/healthz":
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/runs":
			assert.Equal(t, "5", r.URL.Query().Get("limit"))
			_ = json.NewEncoder(w).Encode([]domain.RunSummary{{RunID: "r1", Mode: domain.RunModeCatalog}})
		case r.URL.Path == "/runs/r1/features":
			_ = json.NewEncoder(w).Encode([]domain.FeaturePoint{{ID: "feature_0"}})
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"run not found"}`))
		}
	}))
	defer srv.Close()

	c := newClient(srv.URL + "/")
	require.NoError(t, c.waitHealth(time.Second))

	runs, err := c.listRuns(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "r1", runs[0].RunID)

	features, err := c.listFeatures("r1")
	require.NoError(t, err)
	require.Len(t, features, 1)

	_, err = c.listOutcomes("missing", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestSelectionFollowsListing(t *testing.T) {
	sel := &selection{}
	sel.setRuns(nil)
	assert.Equal(t, "", sel.runID)

	sel.setRuns([]domain.RunSummary{{RunID: "new"}, {RunID: "old"}})
	assert.Equal(t, "new", sel.runID, "newest run is selected by default")

	require.True(t, sel.pick(1))
	assert.Equal(t, "old", sel.runID)
	assert.False(t, sel.pick(2))
	assert.False(t, sel.pick(-1))
	assert.Equal(t, "old", sel.runID)

	sel.setRuns([]domain.RunSummary{{RunID: "newer"}, {RunID: "new"}, {RunID: "old"}})
	assert.Equal(t, "old", sel.runID, "a picked run stays selected across refreshes")
	require.NotNil(t, sel.find("old"))
	assert.Nil(t, sel.find("missing"))

	sel.setRuns([]domain.RunSummary{{RunID: "newest"}})
	assert.Equal(t, "newest", sel.runID, "a vanished run falls back to the newest")
}
