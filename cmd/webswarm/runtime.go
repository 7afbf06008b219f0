package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"webswarm/internal/agent"
	"webswarm/internal/catalog"
	"webswarm/internal/config"
	"webswarm/internal/llm"
	"webswarm/internal/messaging/inproc"
	"webswarm/internal/metrics"
	"webswarm/internal/orchestrator"
	"webswarm/internal/profiles"
	sqlitestore "webswarm/internal/store/sqlite"
)

// targetFlags are the per-command overrides shared by run, explore and
// example. Unset flags leave the config value alone.
type targetFlags struct {
	url         string
	username    string
	password    string
	slots       int
	maxSteps    int
	headless    bool
	report      string
	metricsAddr string
}

func addTargetFlags(cmd *cobra.Command, f *targetFlags, defaultReport string) {
	fs := cmd.Flags()
	fs.StringVar(&f.url, "url", "", "target site URL")
	fs.StringVar(&f.username, "username", "", "login username handed to agents")
	fs.StringVar(&f.password, "password", "", "login password handed to agents")
	fs.IntVar(&f.slots, "slots", 0, "number of parallel agent slots")
	fs.IntVar(&f.maxSteps, "max-steps", 0, "step budget per agent")
	fs.BoolVar(&f.headless, "headless", false, "run browsers without a window")
	fs.StringVar(&f.report, "report", "", "JSON report path (default "+defaultReport+")")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus /metrics on this address while the run lasts")
}

func (f *targetFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	cfg.Target.URL = firstNonEmpty(f.url, cfg.Target.URL)
	cfg.Target.Username = firstNonEmpty(f.username, cfg.Target.Username)
	cfg.Target.Password = firstNonEmpty(f.password, cfg.Target.Password)
	if f.slots > 0 {
		cfg.Agents.Slots = f.slots
	}
	if f.maxSteps > 0 {
		cfg.Agents.MaxSteps = f.maxSteps
	}
	if cmd.Flags().Changed("headless") {
		cfg.Agents.Headless = f.headless
	}
}

func credentials(cfg config.Config) catalog.Credentials {
	return catalog.Credentials{
		TargetURL: cfg.Target.URL,
		Username:  cfg.Target.Username,
		Password:  cfg.Target.Password,
	}
}

// runtime is everything a test run needs, built from one config.
type runtime struct {
	cfg      config.Config
	logger   *zap.Logger
	metrics  *metrics.Collector
	bus      *inproc.Bus
	store    *sqlitestore.Store
	profiles *profiles.Manager
	service  *orchestrator.Service
}

type runtimeOptions struct {
	reportPath        string
	exploreReportPath string
}

func newRuntime(ctx context.Context, cfg config.Config, logger *zap.Logger, opts runtimeOptions) (*runtime, error) {
	rt := &runtime{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
		bus:     inproc.New(256),
	}

	mgr, err := profiles.NewManager(cfg.Agents.ProfileRoot, cfg.Agents.EphemeralProfiles)
	if err != nil {
		return nil, err
	}
	rt.profiles = mgr

	store, err := openStore(ctx, cfg.Report.DBPath)
	if err != nil {
		logger.Warn("run history disabled", zap.String("db", cfg.Report.DBPath), zap.Error(err))
	} else {
		rt.store = store
	}

	if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		logger.Warn("no LLM API key configured; set OPENAI_API_KEY or [llm].api_key")
	}
	client, err := llm.New(llm.Config{
		Endpoint:          cfg.LLM.Endpoint,
		Model:             cfg.LLM.Model,
		ReasoningEffort:   cfg.LLM.ReasoningEffort,
		AuthToken:         cfg.LLM.APIKey,
		Timeout:           time.Duration(cfg.LLM.TimeoutMS) * time.Millisecond,
		Retries:           cfg.LLM.Retries,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		Logger:            logger,
		Metrics:           rt.metrics,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("create llm client: %w", err)
	}
	launcher := &agent.BrowserLauncher{
		Planner:  client,
		StartURL: cfg.Target.URL,
		Logger:   logger,
	}

	svcOpts := []orchestrator.Option{
		orchestrator.WithBus(rt.bus),
		orchestrator.WithMetrics(rt.metrics),
	}
	if rt.store != nil {
		svcOpts = append(svcOpts, orchestrator.WithWriters(rt.store))
	}
	rt.service = orchestrator.New(launcher, mgr, orchestrator.Config{
		TargetURL:         cfg.Target.URL,
		Username:          cfg.Target.Username,
		Password:          cfg.Target.Password,
		Slots:             cfg.Agents.Slots,
		Headless:          cfg.Agents.Headless,
		FlashMode:         cfg.FlashMode(),
		MaxSteps:          cfg.Agents.MaxSteps,
		DiscoveryMaxSteps: cfg.Agents.DiscoveryMaxSteps,
		ReportPath:        opts.reportPath,
		ExploreReportPath: opts.exploreReportPath,
	}, logger, svcOpts...)
	return rt, nil
}

func (rt *runtime) Close() {
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			rt.logger.Warn("close store", zap.Error(err))
		}
	}
}

// serveMetrics exposes the run's collectors on addr until stop is called.
// An empty addr serves nothing.
func (rt *runtime) serveMetrics(addr string) (stop func(), err error) {
	if strings.TrimSpace(addr) == "" {
		return func() {}, nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for metrics: %w", err)
	}
	rt.logger.Info("serving run metrics", zap.String("addr", ln.Addr().String()))
	return startMetricsServer(ln, rt.metrics, rt.logger), nil
}

func startMetricsServer(ln net.Listener, collector *metrics.Collector, logger *zap.Logger) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server failed", zap.Error(err))
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}

func openStore(ctx context.Context, dbPath string) (*sqlitestore.Store, error) {
	dbPath = filepath.Clean(dbPath)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	store, err := sqlitestore.Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
