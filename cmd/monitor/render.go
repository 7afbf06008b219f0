package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"webswarm/internal/domain"
)

func renderRunsTable(table *tview.Table, runs []domain.RunSummary, selectedRunID string) {
	table.Clear()
	headers := []string{"Run", "Mode", "Started", "Pass", "Fail", "Features", "Target"}
	for i, h := range headers {
		table.SetCell(0, i, tview.NewTableCell(h).SetSelectable(false).SetAttributes(tcell.AttrBold))
	}
	for i, r := range runs {
		row := i + 1
		table.SetCell(row, 0, tview.NewTableCell(shortID(r.RunID)))
		table.SetCell(row, 1, tview.NewTableCell(string(r.Mode)))
		table.SetCell(row, 2, tview.NewTableCell(r.StartTime.Local().Format("01-02 15:04:05")))
		table.SetCell(row, 3, tview.NewTableCell(fmt.Sprint(r.PassedTests)).SetTextColor(tcell.ColorGreen))
		table.SetCell(row, 4, tview.NewTableCell(fmt.Sprint(r.FailedTests)).SetTextColor(failColor(r.FailedTests)))
		table.SetCell(row, 5, tview.NewTableCell(fmt.Sprintf("%d/%d", r.TestedFeatures, r.TotalFeatures)))
		table.SetCell(row, 6, tview.NewTableCell(trimLine(r.TargetURL, 40)))
		if r.RunID == selectedRunID {
			table.Select(row, 0)
		}
	}
}

func failColor(n int) tcell.Color {
	if n > 0 {
		return tcell.ColorRed
	}
	return tcell.ColorDefault
}

func renderOutcomes(items []domain.Outcome) string {
	if len(items) == 0 {
		return "No outcomes"
	}
	var b strings.Builder
	for _, o := range items {
		color := "green"
		if o.Status != domain.OutcomeStatusPassed {
			color = "red"
		}
		fmt.Fprintf(&b, "[%s] %s [%s]%s[-] %s\n",
			o.Timestamp.Local().Format("15:04:05"),
			o.AgentID,
			color,
			strings.ToUpper(string(o.Status)),
			tview.Escape(trimLine(outcomeLabel(o), 80)),
		)
		if msg := o.Details["error"]; msg != "" {
			b.WriteString("  error: " + tview.Escape(trimLine(msg, 120)) + "\n")
		} else if res := o.Details["result"]; res != "" {
			b.WriteString("  result: " + tview.Escape(trimLine(oneLine(res), 120)) + "\n")
		}
	}
	return b.String()
}

func outcomeLabel(o domain.Outcome) string {
	if o.Feature != nil {
		return o.Feature.Description
	}
	if o.Type != "" {
		return o.Type + ": " + o.Description
	}
	return o.Description
}

func renderFeatures(items []domain.FeaturePoint) string {
	if len(items) == 0 {
		return "No discovered features"
	}
	var b strings.Builder
	for _, f := range items {
		fmt.Fprintf(&b, "%-11s p%d %-6s %-10s %s\n",
			f.ID, f.Priority, f.Type, f.Category, tview.Escape(trimLine(f.Description, 60)))
	}
	return b.String()
}

type agentLine struct {
	agent   string
	passed  int
	failed  int
	last    string
	lastAt  time.Time
	lastErr string
}

// renderAgentSummary folds a run's outcomes into one line per agent.
func renderAgentSummary(run *domain.RunSummary, outcomes []domain.Outcome) string {
	if run == nil {
		return "No run selected"
	}
	lines := map[string]*agentLine{}
	for _, o := range outcomes {
		line, ok := lines[o.AgentID]
		if !ok {
			line = &agentLine{agent: o.AgentID}
			lines[o.AgentID] = line
		}
		if o.Status == domain.OutcomeStatusPassed {
			line.passed++
		} else {
			line.failed++
		}
		if line.lastAt.IsZero() || !o.Timestamp.Before(line.lastAt) {
			line.lastAt = o.Timestamp
			line.last = outcomeLabel(o)
			line.lastErr = o.Details["error"]
		}
	}

	agents := make([]string, 0, len(lines))
	for id := range lines {
		agents = append(agents, id)
	}
	sort.Strings(agents)

	state := "running"
	duration := "-"
	if run.EndTime != nil {
		state = "finished"
		duration = run.EndTime.Sub(run.StartTime).Round(time.Second).String()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run: %s  mode=%s  state=%s  duration=%s\n", shortID(run.RunID), run.Mode, state, duration)
	for _, id := range agents {
		line := lines[id]
		fmt.Fprintf(&b, "%-10s passed=%d failed=%d last=%s\n",
			line.agent, line.passed, line.failed, tview.Escape(trimLine(line.last, 48)))
		if line.lastErr != "" {
			b.WriteString("  error: " + tview.Escape(trimLine(line.lastErr, 100)) + "\n")
		}
	}
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// trimLine cuts s to at most limit runes, marking the cut with "...".
func trimLine(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

func shortID(v string) string {
	if len(v) <= 8 {
		return v
	}
	return v[:8]
}
