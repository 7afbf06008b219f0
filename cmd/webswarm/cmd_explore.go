package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"webswarm/internal/config"
	"webswarm/internal/report"
)

var exploreFlags struct {
	target targetFlags
}

var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Discover feature points, spread them over agents and test them",
	RunE:  runExplore,
}

func init() {
	addTargetFlags(exploreCmd, &exploreFlags.target, config.DefaultExplorePath)
}

func runExplore(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	exploreFlags.target.apply(cmd, &cfg)
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	path := firstNonEmpty(exploreFlags.target.report, cfg.Report.ExplorePath)
	rt, err := newRuntime(cmd.Context(), cfg, logger, runtimeOptions{exploreReportPath: path})
	if err != nil {
		return err
	}
	defer rt.Close()
	stopMetrics, err := rt.serveMetrics(exploreFlags.target.metricsAddr)
	if err != nil {
		return err
	}
	defer stopMetrics()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\nExploratory test of %s\nAgents: %d\n%s\n", rule, cfg.Target.URL, cfg.Agents.Slots, rule)
	stop := startProgress(rt.bus, out)
	rep, runErr := rt.service.RunExploration(cmd.Context())
	stop()

	fmt.Fprint(out, report.Summary(rep, path))
	return runErr
}
