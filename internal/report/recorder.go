package report

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"webswarm/internal/domain"
)

type Publisher interface {
	Publish(evt domain.Event) error
}

type OutcomeMetrics interface {
	OutcomeRecorded(mode, status string)
}

type Option func(*Recorder)

func WithPublisher(p Publisher) Option {
	return func(r *Recorder) { r.publisher = p }
}

func WithMetrics(m OutcomeMetrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// Recorder accumulates outcomes for one run. Appends are serialised by a
// single mutex; total always equals passed plus failed.
type Recorder struct {
	mu     sync.Mutex
	report domain.Report

	publisher Publisher
	metrics   OutcomeMetrics
	logger    *zap.Logger
	now       func() time.Time
}

func NewRecorder(runID string, mode domain.RunMode, targetURL string, opts ...Option) *Recorder {
	r := &Recorder{
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "report"), zap.String("run_id", runID))
	r.report = domain.Report{
		RunID:              runID,
		Mode:               mode,
		StartTime:          r.now(),
		TargetURL:          targetURL,
		DiscoveredFeatures: []domain.FeaturePoint{},
		TestDetails:        []domain.Outcome{},
	}
	return r
}

func (r *Recorder) Record(o domain.Outcome) domain.Outcome {
	if o.Status != domain.OutcomeStatusPassed {
		o.Status = domain.OutcomeStatusFailed
	}
	if o.Details == nil {
		o.Details = map[string]string{}
	}

	r.mu.Lock()
	o.Timestamp = r.now()
	r.report.TotalTests++
	if o.Status == domain.OutcomeStatusPassed {
		r.report.PassedTests++
	} else {
		r.report.FailedTests++
	}
	if o.Feature != nil {
		r.report.TestedFeatures++
	}
	r.report.TestDetails = append(r.report.TestDetails, o)
	runID, mode := r.report.RunID, r.report.Mode
	r.mu.Unlock()

	r.logger.Info(Line(o), zap.String("agent_id", o.AgentID), zap.String("status", string(o.Status)))
	if r.metrics != nil {
		r.metrics.OutcomeRecorded(string(mode), string(o.Status))
	}
	if r.publisher != nil {
		recorded := o
		if err := r.publisher.Publish(domain.Event{
			Kind:      domain.EventKindOutcome,
			RunID:     runID,
			AgentID:   o.AgentID,
			Outcome:   &recorded,
			CreatedAt: o.Timestamp,
		}); err != nil {
			r.logger.Debug("publish outcome event", zap.Error(err))
		}
	}
	return o
}

func (r *Recorder) SetDiscoveredFeatures(features []domain.FeaturePoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.TotalFeatures = len(features)
	r.report.DiscoveredFeatures = append([]domain.FeaturePoint{}, features...)
}

// Finish stamps the end time on first call and returns the final report.
func (r *Recorder) Finish() domain.Report {
	r.mu.Lock()
	if r.report.EndTime == nil {
		end := r.now()
		r.report.EndTime = &end
	}
	r.mu.Unlock()
	return r.Snapshot()
}

func (r *Recorder) Snapshot() domain.Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.report
	out.DiscoveredFeatures = append([]domain.FeaturePoint{}, r.report.DiscoveredFeatures...)
	out.TestDetails = make([]domain.Outcome, len(r.report.TestDetails))
	copy(out.TestDetails, r.report.TestDetails)
	if r.report.EndTime != nil {
		end := *r.report.EndTime
		out.EndTime = &end
	}
	return out
}

// Line renders one outcome the way it is echoed live, e.g.
// "[Agent-2] [PASSED] login_test: Login test".
func Line(o domain.Outcome) string {
	label := o.Description
	if o.Feature != nil {
		label = o.Feature.Description
	}
	if o.Type != "" {
		return fmt.Sprintf("[%s] [%s] %s: %s", o.AgentID, strings.ToUpper(string(o.Status)), o.Type, label)
	}
	return fmt.Sprintf("[%s] [%s] %s", o.AgentID, strings.ToUpper(string(o.Status)), label)
}

// TrimDetail cuts agent output for storage in a report.
func TrimDetail(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8Start(s[cut]) {
		cut--
	}
	return s[:cut]
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}
