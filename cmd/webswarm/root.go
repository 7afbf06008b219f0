package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"webswarm/internal/config"
	"webswarm/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	dbPath     string
}

var rootCmd = &cobra.Command{
	Use:   "webswarm",
	Short: "Parallel LLM browser agents for web application testing",
	Long: "webswarm runs several isolated browser agents against one web application,\n" +
		"either from a fixed task catalog or from features it discovers itself,\n" +
		"and writes one aggregated JSON report per run.",
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.configPath, "config", "", "path to config.toml (default: ~/.webswarm/config.toml)")
	pf.StringVar(&rootFlags.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.StringVar(&rootFlags.logFormat, "log-format", "console", "log format: console or json")
	pf.StringVar(&rootFlags.dbPath, "db", "", "sqlite run history path override")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(exploreCmd)
	rootCmd.AddCommand(exampleCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(rootFlags.configPath)
	if err != nil {
		return config.Config{}, err
	}
	cfg.Report.DBPath = firstNonEmpty(rootFlags.dbPath, cfg.Report.DBPath)
	return cfg, nil
}

func newLogger() (*zap.Logger, error) {
	return logging.New(rootFlags.logLevel, rootFlags.logFormat)
}
