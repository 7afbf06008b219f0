package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"webswarm/internal/agent"
	"webswarm/internal/allocate"
	"webswarm/internal/catalog"
	"webswarm/internal/dedup"
	"webswarm/internal/discovery"
	"webswarm/internal/domain"
	"webswarm/internal/report"
)

var ErrSlotPanic = errors.New("agent slot panicked")

const (
	PhaseDiscover = "discover"
	PhaseDedup    = "dedup"
	PhaseAllocate = "allocate"
	PhaseTest     = "test"
)

type Bus interface {
	Publish(evt domain.Event) error
}

type Metrics interface {
	RunStarted(mode string)
	OutcomeRecorded(mode, status string)
	SlotFinished(mode string, d time.Duration)
	SetFeaturesDiscovered(n int)
	AddDuplicateFeatures(n int)
}

type Profiles interface {
	Dir(prefix string, index int) (string, error)
	Cleanup() error
}

type Config struct {
	TargetURL         string
	Username          string
	Password          string
	Slots             int
	Headless          bool
	FlashMode         bool
	MaxSteps          int
	DiscoveryMaxSteps int
	// ExampleMaxSteps bounds each agent of the parallel example run.
	ExampleMaxSteps int
	// ResultLimit overrides the per-mode truncation of agent output.
	ResultLimit int
	// ReportPath receives catalog and example reports, ExploreReportPath
	// exploration reports. Empty paths skip the JSON file.
	ReportPath        string
	ExploreReportPath string
}

func (c Config) withDefaults() Config {
	if c.Slots <= 0 {
		c.Slots = 5
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = 50
	}
	if c.DiscoveryMaxSteps <= 0 {
		c.DiscoveryMaxSteps = 30
	}
	if c.ExampleMaxSteps <= 0 {
		c.ExampleMaxSteps = 30
	}
	return c
}

func (c Config) maxSteps(mode domain.RunMode) int {
	if mode == domain.RunModeExampleParallel {
		return c.ExampleMaxSteps
	}
	return c.MaxSteps
}

func (c Config) credentials() catalog.Credentials {
	return catalog.Credentials{TargetURL: c.TargetURL, Username: c.Username, Password: c.Password}
}

func (c Config) resultLimit(mode domain.RunMode) int {
	if c.ResultLimit > 0 {
		return c.ResultLimit
	}
	if mode == domain.RunModeCatalog {
		return 500
	}
	return 200
}

func profilePrefix(mode domain.RunMode) string {
	switch mode {
	case domain.RunModeExplore:
		return "test-profile-v2"
	case domain.RunModeExampleParallel:
		return "temp-profile"
	case domain.RunModeExampleSequential:
		return "sequential-profile"
	default:
		return "test-profile"
	}
}

type Option func(*Service)

func WithBus(b Bus) Option {
	return func(s *Service) { s.bus = b }
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithWriters adds report sinks that receive every finished run.
func WithWriters(w ...report.Writer) Option {
	return func(s *Service) { s.writers = append(s.writers, w...) }
}

func WithRunID(next func() string) Option {
	return func(s *Service) { s.newRunID = next }
}

type Service struct {
	launcher agent.Launcher
	profiles Profiles
	cfg      Config
	logger   *zap.Logger

	bus      Bus
	metrics  Metrics
	writers  []report.Writer
	newRunID func() string
}

func New(launcher agent.Launcher, profiles Profiles, cfg Config, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		launcher: launcher,
		profiles: profiles,
		cfg:      cfg.withDefaults(),
		logger:   logger.With(zap.String("component", "orchestrator")),
		metrics:  nopMetrics{},
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Config() Config {
	return s.cfg
}

type slotJob struct {
	index       int
	agentID     string
	taskType    string
	description string
	prompt      string
	maxSteps    int
	features    []domain.FeaturePoint
}

type run struct {
	id       string
	mode     domain.RunMode
	recorder *report.Recorder
	path     string
	logger   *zap.Logger
}

func (s *Service) startRun(mode domain.RunMode, path string) *run {
	id := s.newRunID()
	opts := []report.Option{
		report.WithLogger(s.logger),
		report.WithMetrics(s.metrics),
	}
	if s.bus != nil {
		opts = append(opts, report.WithPublisher(s.bus))
	}
	s.metrics.RunStarted(string(mode))
	r := &run{
		id:       id,
		mode:     mode,
		recorder: report.NewRecorder(id, mode, s.cfg.TargetURL, opts...),
		path:     path,
		logger:   s.logger.With(zap.String("run_id", id), zap.String("mode", string(mode))),
	}
	r.logger.Info("run started", zap.String("target_url", s.cfg.TargetURL))
	return r
}

// finish stamps the end time and hands the report to every writer. It runs
// even when ctx is cancelled so interrupted runs are still saved.
func (s *Service) finish(ctx context.Context, r *run) (domain.Report, error) {
	final := r.recorder.Finish()

	writers := append([]report.Writer{}, s.writers...)
	if r.path != "" {
		writers = append(writers, report.FileWriter{Path: r.path})
	}
	writeErr := report.WriteAll(context.WithoutCancel(ctx), final, writers...)
	if writeErr != nil {
		r.logger.Error("save report", zap.Error(writeErr))
	} else if r.path != "" {
		r.logger.Info("report saved", zap.String("path", r.path))
	}

	if s.profiles != nil {
		if err := s.profiles.Cleanup(); err != nil {
			r.logger.Warn("clean up profiles", zap.Error(err))
		}
	}
	s.publish(domain.Event{Kind: domain.EventKindFinished, RunID: r.id, Message: fmt.Sprintf("%d passed, %d failed", final.PassedTests, final.FailedTests)})
	r.logger.Info("run finished",
		zap.Int("total", final.TotalTests),
		zap.Int("passed", final.PassedTests),
		zap.Int("failed", final.FailedTests),
	)
	return final, errors.Join(ctx.Err(), writeErr)
}

// RunCatalog runs every task in its own slot, all at once.
func (s *Service) RunCatalog(ctx context.Context, mode domain.RunMode, tasks []domain.TaskSpec) (rep domain.Report, err error) {
	r := s.startRun(mode, s.cfg.ReportPath)
	defer func() {
		rep, err = s.finish(ctx, r)
	}()

	jobs := make([]slotJob, 0, len(tasks))
	for i, t := range tasks {
		jobs = append(jobs, slotJob{
			index:       i,
			agentID:     t.AgentID,
			taskType:    t.Type,
			description: t.Description,
			prompt:      t.Prompt,
			maxSteps:    s.cfg.maxSteps(mode),
		})
	}
	s.phase(r, PhaseTest, fmt.Sprintf("starting %d agents", len(jobs)))
	s.fanOut(ctx, r, jobs)
	return
}

// RunSequential runs the tasks one after another. A failed task is recorded
// and the next one still runs.
func (s *Service) RunSequential(ctx context.Context, tasks []domain.TaskSpec) (rep domain.Report, err error) {
	r := s.startRun(domain.RunModeExampleSequential, s.cfg.ReportPath)
	defer func() {
		rep, err = s.finish(ctx, r)
	}()

	for i, t := range tasks {
		if ctx.Err() != nil {
			break
		}
		s.phase(r, PhaseTest, fmt.Sprintf("task %d/%d: %s", i+1, len(tasks), t.Description))
		s.runSlot(ctx, r, slotJob{
			index:       0,
			agentID:     t.AgentID,
			taskType:    t.Type,
			description: t.Description,
			prompt:      t.Prompt,
			maxSteps:    s.cfg.MaxSteps,
		})
	}
	return
}

// RunExploration discovers feature points, drops duplicates, spreads them
// over the slots and tests every slot in parallel. Any phase that leaves
// nothing to do ends the run early; the report is saved either way.
func (s *Service) RunExploration(ctx context.Context) (rep domain.Report, err error) {
	r := s.startRun(domain.RunModeExplore, s.cfg.ExploreReportPath)
	defer func() {
		rep, err = s.finish(ctx, r)
	}()

	s.phase(r, PhaseDiscover, "discovering feature points")
	profileDir := ""
	if s.profiles != nil {
		dir, dirErr := s.profiles.Dir("discovery-profile", 0)
		if dirErr != nil {
			r.logger.Error("discovery profile", zap.Error(dirErr))
			return
		}
		profileDir = dir
	}
	disc := discovery.New(s.launcher, discovery.Config{
		TargetURL:  s.cfg.TargetURL,
		ProfileDir: profileDir,
		Headless:   s.cfg.Headless,
		FlashMode:  s.cfg.FlashMode,
		MaxSteps:   s.cfg.DiscoveryMaxSteps,
	}, r.logger)
	features, discErr := disc.Discover(ctx)
	if discErr != nil {
		r.logger.Error("feature discovery failed", zap.Error(discErr))
	}
	s.metrics.SetFeaturesDiscovered(len(features))
	if len(features) == 0 {
		s.phase(r, PhaseDiscover, "no feature points found, stopping")
		return
	}

	s.phase(r, PhaseDedup, fmt.Sprintf("deduplicating %d feature points", len(features)))
	unique := dedup.New(r.logger, s.metrics).Deduplicate(features)
	r.recorder.SetDiscoveredFeatures(unique)
	if len(unique) == 0 {
		s.phase(r, PhaseDedup, "no feature points left, stopping")
		return
	}

	s.phase(r, PhaseAllocate, fmt.Sprintf("allocating %d feature points to %d agents", len(unique), s.cfg.Slots))
	allocations, allocErr := allocate.New(s.cfg.Slots).Allocate(unique)
	if allocErr != nil {
		r.logger.Error("allocate features", zap.Error(allocErr))
		return
	}
	if len(allocations) == 0 {
		s.phase(r, PhaseAllocate, "no allocations, stopping")
		return
	}
	for _, a := range allocations {
		r.logger.Info("allocation", zap.String("agent_id", a.AgentID), zap.Int("features", a.Count), zap.String("description", a.Description))
	}

	creds := s.cfg.credentials()
	jobs := make([]slotJob, 0, len(allocations))
	for i, a := range allocations {
		jobs = append(jobs, slotJob{
			index:       i,
			agentID:     a.AgentID,
			description: a.Description,
			prompt:      catalog.CombinedTask(creds, a.Features),
			maxSteps:    s.cfg.MaxSteps,
			features:    a.Features,
		})
	}
	s.phase(r, PhaseTest, fmt.Sprintf("starting %d agents", len(jobs)))
	s.fanOut(ctx, r, jobs)
	return
}

// fanOut runs every job concurrently and waits for all of them. Slot
// goroutines never return an error, so one failing slot cannot cancel its
// siblings.
func (s *Service) fanOut(ctx context.Context, r *run, jobs []slotJob) {
	var g errgroup.Group
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			s.runSlot(ctx, r, job)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) runSlot(ctx context.Context, r *run, job slotJob) {
	started := time.Now()
	s.publish(domain.Event{Kind: domain.EventKindSlot, RunID: r.id, AgentID: job.agentID, Message: "started: " + job.description})

	output, err := s.execute(ctx, r, job)
	s.metrics.SlotFinished(string(r.mode), time.Since(started))

	status := domain.OutcomeStatusPassed
	if err != nil {
		status = domain.OutcomeStatusFailed
		r.logger.Warn("slot failed", zap.String("agent_id", job.agentID), zap.Error(err))
	}
	details := func() map[string]string {
		if err != nil {
			d := map[string]string{"error": err.Error()}
			if output != "" {
				d["result"] = report.TrimDetail(output, s.cfg.resultLimit(r.mode))
			}
			return d
		}
		return map[string]string{"result": report.TrimDetail(output, s.cfg.resultLimit(r.mode))}
	}

	if len(job.features) == 0 {
		r.recorder.Record(domain.Outcome{
			AgentID:     job.agentID,
			Type:        job.taskType,
			Description: job.description,
			Status:      status,
			Details:     details(),
		})
	} else {
		for i := range job.features {
			f := job.features[i]
			r.recorder.Record(domain.Outcome{
				AgentID: job.agentID,
				Feature: &f,
				Status:  status,
				Details: details(),
			})
		}
	}
	s.publish(domain.Event{Kind: domain.EventKindSlot, RunID: r.id, AgentID: job.agentID, Message: "finished: " + string(status)})
}

// execute owns the whole session lifecycle of one slot. Panics from the
// agent are turned into errors; the session is closed before that happens.
func (s *Service) execute(ctx context.Context, r *run, job slotJob) (output string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("slot panic", zap.String("agent_id", job.agentID), zap.Any("panic", rec), zap.Stack("stack"))
			err = fmt.Errorf("%w: %v", ErrSlotPanic, rec)
		}
	}()

	profileDir := ""
	if s.profiles != nil {
		profileDir, err = s.profiles.Dir(profilePrefix(r.mode), job.index)
		if err != nil {
			return "", fmt.Errorf("profile for %s: %w", job.agentID, err)
		}
	}
	session, err := s.launcher.NewSession(ctx, agent.SessionOptions{
		SlotID:     job.agentID,
		ProfileDir: profileDir,
		Headless:   s.cfg.Headless,
		FlashMode:  s.cfg.FlashMode,
		MaxSteps:   job.maxSteps,
	})
	if err != nil {
		return "", fmt.Errorf("open session for %s: %w", job.agentID, err)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			r.logger.Warn("close session", zap.String("agent_id", job.agentID), zap.Error(closeErr))
		}
	}()

	return session.Run(ctx, job.prompt)
}

func (s *Service) phase(r *run, phase, message string) {
	r.logger.Info(message, zap.String("phase", phase))
	s.publish(domain.Event{Kind: domain.EventKindPhase, RunID: r.id, Phase: phase, Message: message})
}

func (s *Service) publish(evt domain.Event) {
	if s.bus == nil {
		return
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}
	if err := s.bus.Publish(evt); err != nil {
		s.logger.Debug("publish event", zap.String("kind", string(evt.Kind)), zap.Error(err))
	}
}

type nopMetrics struct{}

func (nopMetrics) RunStarted(string) {}
func (nopMetrics) OutcomeRecorded(string, string) {}
func (nopMetrics) SlotFinished(string, time.Duration) {}
func (nopMetrics) SetFeaturesDiscovered(int) {}
func (nopMetrics) AddDuplicateFeatures(int) {}
