package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"webswarm/internal/domain"
	"webswarm/internal/report"
)

var historyFlags struct {
	limit int
}

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List recent runs, or the outcomes of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyFlags.limit, "limit", 20, "maximum rows to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	store, err := openStore(ctx, cfg.Report.DBPath)
	if err != nil {
		return fmt.Errorf("open run history: %w", err)
	}
	defer func() {
		_ = store.Close()
	}()

	out := cmd.OutOrStdout()
	if len(args) == 0 {
		runs, err := store.ListRuns(ctx, historyFlags.limit)
		if err != nil {
			return err
		}
		return printRuns(out, runs)
	}

	run, err := store.GetRun(ctx, args[0])
	if err != nil {
		return err
	}
	outcomes, err := store.ListOutcomes(ctx, run.RunID, historyFlags.limit)
	if err != nil {
		return err
	}
	if err := printRuns(out, []domain.RunSummary{run}); err != nil {
		return err
	}
	fmt.Fprintln(out)
	for _, o := range outcomes {
		fmt.Fprintln(out, report.Line(o))
	}
	return nil
}

func printRuns(out io.Writer, runs []domain.RunSummary) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tMODE\tSTARTED\tDURATION\tPASSED\tFAILED\tFEATURES\tTARGET")
	for _, r := range runs {
		duration := "running"
		if r.EndTime != nil {
			duration = r.EndTime.Sub(r.StartTime).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d/%d\t%s\n",
			r.RunID, r.Mode, r.StartTime.Local().Format("2006-01-02 15:04:05"), duration,
			r.PassedTests, r.FailedTests, r.TestedFeatures, r.TotalFeatures, r.TargetURL)
	}
	return tw.Flush()
}
