package domain

import (
	"time"
)

type FeatureType string

const (
	FeatureTypeForm      FeatureType = "form"
	FeatureTypeButton    FeatureType = "button"
	FeatureTypeLink      FeatureType = "link"
	FeatureTypeSearch    FeatureType = "search"
	FeatureTypeDataTable FeatureType = "data_table"
)

type Category string

const (
	CategoryAuth        Category = "auth"
	CategoryNavigation  Category = "navigation"
	CategoryDataEntry   Category = "data_entry"
	CategoryInteraction Category = "interaction"
	CategoryDisplay     Category = "display"
)

type OutcomeStatus string

const (
	OutcomeStatusPassed OutcomeStatus = "passed"
	OutcomeStatusFailed OutcomeStatus = "failed"
)

type RunMode string

const (
	RunModeCatalog           RunMode = "catalog"
	RunModeExplore           RunMode = "explore"
	RunModeExampleParallel   RunMode = "example-parallel"
	RunModeExampleSequential RunMode = "example-sequential"
)

type EventKind string

const (
	EventKindPhase    EventKind = "phase"
	EventKindSlot     EventKind = "slot"
	EventKindOutcome  EventKind = "outcome"
	EventKindFinished EventKind = "finished"
)

// FeaturePoint is a guessed UI affordance. It is created once by discovery
// and never mutated afterwards.
type FeaturePoint struct {
	ID          string      `json:"id"`
	Type        FeatureType `json:"type"`
	Category    Category    `json:"category"`
	Description string      `json:"description"`
	Selector    string      `json:"selector"`
	Text        string      `json:"text"`
	Priority    int         `json:"priority"`
}

type Allocation struct {
	AgentID     string         `json:"agent_id"`
	Features    []FeaturePoint `json:"features"`
	Description string         `json:"description"`
	Count       int            `json:"count"`
}

type TaskSpec struct {
	ID          string `json:"id" yaml:"id"`
	AgentID     string `json:"agent_id" yaml:"agent_id"`
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description" yaml:"description"`
	Prompt      string `json:"task" yaml:"prompt"`
}

type Outcome struct {
	Timestamp   time.Time         `json:"timestamp"`
	AgentID     string            `json:"agent_id"`
	Type        string            `json:"type,omitempty"`
	Description string            `json:"description,omitempty"`
	Feature     *FeaturePoint     `json:"feature,omitempty"`
	Status      OutcomeStatus     `json:"status"`
	Details     map[string]string `json:"details"`
}

type Report struct {
	RunID              string         `json:"run_id"`
	Mode               RunMode        `json:"mode"`
	StartTime          time.Time      `json:"start_time"`
	EndTime            *time.Time     `json:"end_time"`
	TargetURL          string         `json:"target_url"`
	TotalTests         int            `json:"total_tests"`
	PassedTests        int            `json:"passed_tests"`
	FailedTests        int            `json:"failed_tests"`
	TotalFeatures      int            `json:"total_features"`
	TestedFeatures     int            `json:"tested_features"`
	DiscoveredFeatures []FeaturePoint `json:"discovered_features"`
	TestDetails        []Outcome      `json:"test_details"`
}

type RunSummary struct {
	RunID          string     `json:"run_id"`
	Mode           RunMode    `json:"mode"`
	TargetURL      string     `json:"target_url"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	TotalTests     int        `json:"total_tests"`
	PassedTests    int        `json:"passed_tests"`
	FailedTests    int        `json:"failed_tests"`
	TotalFeatures  int        `json:"total_features"`
	TestedFeatures int        `json:"tested_features"`
}

type Event struct {
	Kind      EventKind `json:"kind"`
	RunID     string    `json:"run_id"`
	AgentID   string    `json:"agent_id,omitempty"`
	Phase     string    `json:"phase,omitempty"`
	Message   string    `json:"message,omitempty"`
	Outcome   *Outcome  `json:"outcome,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (r Report) Summary() RunSummary {
	return RunSummary{
		RunID:          r.RunID,
		Mode:           r.Mode,
		TargetURL:      r.TargetURL,
		StartTime:      r.StartTime,
		EndTime:        r.EndTime,
		TotalTests:     r.TotalTests,
		PassedTests:    r.PassedTests,
		FailedTests:    r.FailedTests,
		TotalFeatures:  r.TotalFeatures,
		TestedFeatures: r.TestedFeatures,
	}
}
