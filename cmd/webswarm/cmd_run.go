package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"webswarm/internal/catalog"
	"webswarm/internal/config"
	"webswarm/internal/domain"
	"webswarm/internal/report"
)

var runFlags struct {
	target      targetFlags
	catalogPath string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the fixed task catalog with one agent per task",
	RunE:  runCatalog,
}

func init() {
	addTargetFlags(runCmd, &runFlags.target, config.DefaultReportPath)
	runCmd.Flags().StringVar(&runFlags.catalogPath, "catalog", "", "YAML task catalog replacing the built-in tasks")
}

func runCatalog(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	runFlags.target.apply(cmd, &cfg)
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	creds := credentials(cfg)
	tasks := catalog.Default(creds)
	if runFlags.catalogPath != "" {
		tasks, err = catalog.LoadFile(runFlags.catalogPath, creds)
		if err != nil {
			return err
		}
	}
	if cfg.Agents.Slots < len(tasks) {
		logger.Info("limiting tasks to slot count", zap.Int("tasks", len(tasks)), zap.Int("slots", cfg.Agents.Slots))
		tasks = tasks[:cfg.Agents.Slots]
	}

	path := firstNonEmpty(runFlags.target.report, cfg.Report.Path)
	rt, err := newRuntime(cmd.Context(), cfg, logger, runtimeOptions{reportPath: path})
	if err != nil {
		return err
	}
	defer rt.Close()
	stopMetrics, err := rt.serveMetrics(runFlags.target.metricsAddr)
	if err != nil {
		return err
	}
	defer stopMetrics()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\nParallel test of %s\nAgents: %d\n%s\n", rule, cfg.Target.URL, len(tasks), rule)
	stop := startProgress(rt.bus, out)
	rep, runErr := rt.service.RunCatalog(cmd.Context(), domain.RunModeCatalog, tasks)
	stop()

	fmt.Fprint(out, report.Summary(rep, path))
	return runErr
}
