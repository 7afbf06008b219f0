package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"webswarm/internal/domain"
	"webswarm/internal/messaging/inproc"
	"webswarm/internal/metrics"
)

func TestRunMenu(t *testing.T) {
	errBoom := errors.New("boom")
	tests := []struct {
		name     string
		input    string
		choice   string
		wantCall string
		wantOut  string
		wantErr  error
	}{
		{name: "parallel from prompt", input: "1\n", wantCall: "parallel", wantOut: "Enter option"},
		{name: "sequential preset", choice: "2", wantCall: "sequential"},
		{name: "exit", input: "0\n", wantOut: "Exiting"},
		{name: "invalid", input: "9\n", wantOut: "Invalid option"},
		{name: "eof without newline", input: "2", wantCall: "sequential"},
		{name: "action error", choice: "1", wantCall: "parallel", wantErr: errBoom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called string
			var out bytes.Buffer
			actions := menuActions{
				parallel: func(context.Context) error {
					called = "parallel"
					return tt.wantErr
				},
				sequential: func(context.Context) error {
					called = "sequential"
					return tt.wantErr
				},
			}
			err := runMenu(context.Background(), strings.NewReader(tt.input), &out, tt.choice, actions)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if called != tt.wantCall {
				t.Fatalf("expected call %q, got %q", tt.wantCall, called)
			}
			if !strings.Contains(out.String(), tt.wantOut) {
				t.Fatalf("expected output to contain %q, got %q", tt.wantOut, out.String())
			}
		})
	}
}

func TestProgressPrintsEvents(t *testing.T) {
	bus := inproc.New(16)
	var out bytes.Buffer
	stop := startProgress(bus, &out)

	outcome := domain.Outcome{AgentID: "Agent-2", Type: "search_test", Description: "Search test", Status: domain.OutcomeStatusFailed}
	events := []domain.Event{
		{Kind: domain.EventKindPhase, RunID: "r1", Phase: "discover", Message: "looking for features", CreatedAt: time.Now()},
		{Kind: domain.EventKindSlot, RunID: "r1", AgentID: "Agent-2", Message: "started: Search test"},
		{Kind: domain.EventKindOutcome, RunID: "r1", Outcome: &outcome},
		{Kind: domain.EventKindFinished, RunID: "r1", Message: "0 passed, 1 failed"},
	}
	for _, evt := range events {
		if err := bus.Publish(evt); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	stop()

	got := out.String()
	for _, want := range []string{
		"[DISCOVER] looking for features",
		"[Agent-2] started: Search test",
		"[Agent-2] [FAILED] search_test: Search test",
		"run r1 finished: 0 passed, 1 failed",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, got)
		}
	}
}

func TestMetricsServerExposesRunCollectors(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	collector := metrics.New()
	collector.RunStarted(string(domain.RunModeCatalog))
	collector.OutcomeRecorded(string(domain.RunModeCatalog), string(domain.OutcomeStatusPassed))

	stop := startMetricsServer(ln, collector, zaptest.NewLogger(t))
	url := "http://" + ln.Addr().String() + "/metrics"
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	for _, want := range []string{
		`webswarm_runs_total{mode="catalog"} 1`,
		`webswarm_outcomes_total{mode="catalog",status="passed"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("expected %q in:\n%s", want, body)
		}
	}

	stop()
	if _, err := http.Get(url); err == nil {
		t.Fatalf("expected metrics server to be stopped")
	}
}

func TestServeMetricsDisabledWithoutAddr(t *testing.T) {
	rt := &runtime{logger: zaptest.NewLogger(t), metrics: metrics.New()}
	stop, err := rt.serveMetrics("  ")
	if err != nil {
		t.Fatalf("serve metrics: %v", err)
	}
	stop()
}

func TestPrintRuns(t *testing.T) {
	start := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	var out bytes.Buffer
	err := printRuns(&out, []domain.RunSummary{
		{RunID: "done", Mode: domain.RunModeCatalog, StartTime: start, EndTime: &end, PassedTests: 4, FailedTests: 1},
		{RunID: "open", Mode: domain.RunModeExplore, StartTime: start},
	})
	if err != nil {
		t.Fatalf("print runs: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "1m30s") || !strings.Contains(got, "running") {
		t.Fatalf("unexpected table:\n%s", got)
	}
}
