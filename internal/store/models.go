package store

import (
	"time"

	"github.com/sitelens/sitelens/internal/rules"
)

// AggregateRow is one group of an aggregate query. GroupKey is "" for
// ungrouped queries.
type AggregateRow struct {
	GroupKey string
	Sessions uint64
	Events   uint64
	Clicks   uint64
	Visitors uint64
}

// VariantTotals are the top-level experiment counts for one variant.
type VariantTotals struct {
	VariantID   string
	Users       uint64
	Conversions uint64
}

// GoalRow is the per-variant, per-goal conversion breakdown. Goal type and
// name live on the experiment definition.
type GoalRow struct {
	VariantID   string
	GoalID      string
	Conversions uint64
	Revenue     float64
}

// Cohort is a user-authored segment definition, owned by a site. Immutable
// once referenced by a running computation.
type Cohort struct {
	ID        string
	SiteID    string
	Name      string
	Rules     []rules.Rule // Decoded from JSON
	CreatedAt time.Time
}

type ExperimentStatus string

const (
	StatusRunning   ExperimentStatus = "running"
	StatusPaused    ExperimentStatus = "paused"
	StatusCompleted ExperimentStatus = "completed"
)

type GoalType string

const (
	GoalConversion GoalType = "conversion"
	GoalRevenue    GoalType = "revenue"
)

// Goal is one conversion goal of an experiment.
type Goal struct {
	ID   string   `json:"id"`
	Type GoalType `json:"type"`
	Name string   `json:"name"`
}

// Experiment is an A/B test definition. VariantIDs are stored in ascending
// order; the first is the control.
type Experiment struct {
	ID         string
	SiteID     string
	Name       string
	Status     ExperimentStatus
	VariantIDs []string // Decoded from JSON
	Goals      []Goal   // Decoded from JSON
	StartedAt  time.Time
	CreatedAt  time.Time
}

// Event is one visitor interaction on a customer site. Ingestion is owned by
// the external pipeline; this type exists for the embedded store and tests.
type Event struct {
	SiteID          string
	SessionID       string
	VisitorID       string
	EventType       string // page_view, click, scroll, form_submit
	PageURL         string
	Referrer        string
	DeviceType      string
	Browser         string
	OS              string
	Country         string
	UTMSource       string
	UTMMedium       string
	UTMCampaign     string
	ScrollDepth     float64
	SessionDuration float64
	IsReturning     bool
	Timestamp       time.Time
}

// ExperimentEvent is an exposure or conversion within an experiment.
type ExperimentEvent struct {
	SiteID       string
	ExperimentID string
	VariantID    string
	VisitorID    string
	EventType    string // exposure | conversion
	GoalID       string
	Revenue      float64
	Timestamp    time.Time
}
