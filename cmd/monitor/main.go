// Command monitor is a terminal dashboard over the `webswarm serve` API.
package main

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/spf13/cobra"

	"webswarm/internal/domain"
)

var monitorFlags struct {
	addr      string
	interval  time.Duration
	embedded  bool
	serverBin string
	dbPath    string
	limit     int
}

var rootCmd = &cobra.Command{
	Use:          "monitor",
	Short:        "Terminal dashboard for webswarm runs",
	SilenceUsage: true,
	RunE:         runMonitor,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&monitorFlags.addr, "addr", "http://localhost:8092", "webswarm serve base URL")
	f.DurationVar(&monitorFlags.interval, "interval", 2*time.Second, "refresh interval")
	f.BoolVar(&monitorFlags.embedded, "embedded", false, "start webswarm serve for the lifetime of the monitor")
	f.StringVar(&monitorFlags.serverBin, "webswarm-bin", "", "path to the webswarm binary (embedded mode)")
	f.StringVar(&monitorFlags.dbPath, "db", "data/webswarm.db", "sqlite run history for the embedded server")
	f.IntVar(&monitorFlags.limit, "limit", 50, "runs to list")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMonitor(_ *cobra.Command, _ []string) error {
	c := newClient(monitorFlags.addr)

	if monitorFlags.embedded {
		proc, err := startEmbeddedServer(monitorFlags.addr, monitorFlags.serverBin, monitorFlags.dbPath)
		if err != nil {
			return fmt.Errorf("failed to start embedded server: %w", err)
		}
		defer proc.Stop()
	}
	if err := c.waitHealth(30 * time.Second); err != nil {
		return fmt.Errorf("webswarm health check failed: %w", err)
	}

	app := tview.NewApplication()
	runsTable := tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false)
	runsTable.SetTitle("Runs (Enter inspect, F5 refresh, F10 quit)").SetBorder(true)

	outcomesView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	outcomesView.SetTitle("Outcomes").SetBorder(true)

	featuresView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	featuresView.SetTitle("Features").SetBorder(true)

	agentsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	agentsView.SetTitle("Agents").SetBorder(true)

	statusView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	statusView.SetBorder(true).SetTitle("Status")
	statusView.SetText(fmt.Sprintf(
		"Connected to %s | embedded=%t | shortcuts: F10 quit, F5 refresh, Tab cycle panes",
		c.baseURL,
		monitorFlags.embedded,
	))

	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(agentsView, 8, 0, false).
		AddItem(outcomesView, 0, 3, false).
		AddItem(featuresView, 0, 2, false)

	mainLayout := tview.NewFlex().
		AddItem(runsTable, 0, 1, true).
		AddItem(right, 0, 2, false)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(mainLayout, 0, 12, true).
		AddItem(statusView, 3, 0, false)

	// sel is only touched on the tview event goroutine: from input handlers
	// or inside QueueUpdateDraw.
	sel := &selection{}
	var detailsVersion uint64

	setStatusUI := func(msg string) {
		statusView.SetText(msg)
	}

	var refreshDetailsAsync func(runID string)
	refreshAll := func() {
		runs, err := c.listRuns(monitorFlags.limit)
		app.QueueUpdateDraw(func() {
			if err != nil {
				runsTable.Clear()
				runsTable.SetCell(0, 0, tview.NewTableCell(fmt.Sprintf("load error: %v", err)).SetTextColor(tview.Styles.ContrastSecondaryTextColor))
				return
			}
			sel.setRuns(runs)
			renderRunsTable(runsTable, runs, sel.runID)
			refreshDetailsAsync(sel.runID)
		})
	}

	refreshDetailsAsync = func(runID string) {
		if strings.TrimSpace(runID) == "" {
			return
		}
		version := atomic.AddUint64(&detailsVersion, 1)
		run := sel.find(runID)

		go func(selected string, v uint64) {
			type outcomeResult struct {
				items []domain.Outcome
				err   error
			}
			type featureResult struct {
				items []domain.FeaturePoint
				err   error
			}

			outcomeCh := make(chan outcomeResult, 1)
			featureCh := make(chan featureResult, 1)
			go func() {
				items, err := c.listOutcomes(selected, 0)
				outcomeCh <- outcomeResult{items: items, err: err}
			}()
			go func() {
				items, err := c.listFeatures(selected)
				featureCh <- featureResult{items: items, err: err}
			}()
			outcomeRes := <-outcomeCh
			featureRes := <-featureCh

			if atomic.LoadUint64(&detailsVersion) != v {
				return
			}
			app.QueueUpdateDraw(func() {
				if selected != sel.runID {
					return
				}
				if outcomeRes.err != nil {
					outcomesView.SetText(fmt.Sprintf("error: %v", outcomeRes.err))
				} else {
					outcomesView.SetText(renderOutcomes(outcomeRes.items))
				}
				if featureRes.err != nil {
					featuresView.SetText(fmt.Sprintf("error: %v", featureRes.err))
				} else {
					featuresView.SetText(renderFeatures(featureRes.items))
				}
				agentsView.SetText(renderAgentSummary(run, outcomeRes.items))
			})
		}(runID, version)
	}

	runsTable.SetSelectedFunc(func(row, _ int) {
		if !sel.pick(row - 1) {
			return
		}
		outcomesView.SetText("Loading...")
		featuresView.SetText("Loading...")
		agentsView.SetText("Loading...")
		refreshDetailsAsync(sel.runID)
		setStatusUI("Inspecting run " + sel.runID)
	})

	panes := []tview.Primitive{runsTable, agentsView, outcomesView, featuresView}
	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyF10:
			app.Stop()
			return nil
		case tcell.KeyF5:
			go refreshAll()
			setStatusUI("Manual refresh requested")
			return nil
		case tcell.KeyEscape:
			app.SetFocus(runsTable)
			return nil
		case tcell.KeyTAB:
			app.SetFocus(nextPane(panes, app.GetFocus()))
			return nil
		}
		return event
	})

	go func() {
		ticker := time.NewTicker(monitorFlags.interval)
		defer ticker.Stop()

		refreshAll()
		for range ticker.C {
			refreshAll()
		}
	}()

	if err := app.SetRoot(root, true).EnableMouse(true).SetFocus(runsTable).Run(); err != nil {
		return fmt.Errorf("monitor failed: %w", err)
	}
	return nil
}

func nextPane(panes []tview.Primitive, current tview.Primitive) tview.Primitive {
	for i, p := range panes {
		if p == current {
			return panes[(i+1)%len(panes)]
		}
	}
	return panes[0]
}

// selection tracks the listed runs and the one being inspected.
type selection struct {
	runs  []domain.RunSummary
	runID string
}

// setRuns replaces the listing. When nothing is selected, or the selected
// run is gone, the newest run is selected.
func (s *selection) setRuns(runs []domain.RunSummary) {
	s.runs = runs
	if s.find(s.runID) != nil {
		return
	}
	s.runID = ""
	if len(runs) > 0 {
		s.runID = runs[0].RunID
	}
}

func (s *selection) pick(index int) bool {
	if index < 0 || index >= len(s.runs) {
		return false
	}
	s.runID = s.runs[index].RunID
	return true
}

func (s *selection) find(runID string) *domain.RunSummary {
	for i := range s.runs {
		if s.runs[i].RunID == runID {
			run := s.runs[i]
			return &run
		}
	}
	return nil
}
