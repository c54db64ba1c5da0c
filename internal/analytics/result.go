// Package analytics composes the rule compiler, the event aggregator, and
// the statistics engine behind the result cache. It owns the two operations
// the platform exposes: cohort metrics and experiment results.
package analytics

import (
	"github.com/sitelens/sitelens/internal/stats"
)

// CohortInfo identifies the cohort a result belongs to.
type CohortInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Metrics are the headline numbers for a single cohort.
type Metrics struct {
	Sessions         uint64  `json:"sessions"`
	TotalEvents      uint64  `json:"totalEvents"`
	Clicks           uint64  `json:"clicks"`
	Visitors         uint64  `json:"visitors"`
	ClickRate        float64 `json:"clickRate"`
	EventsPerSession float64 `json:"eventsPerSession"`
}

// PageRow is one entry of the top-pages breakdown.
type PageRow struct {
	PageURL  string `json:"pageUrl"`
	Sessions uint64 `json:"sessions"`
	Events   uint64 `json:"events"`
}

// DeviceRow is one entry of the device breakdown.
type DeviceRow struct {
	DeviceType string  `json:"deviceType"`
	Sessions   uint64  `json:"sessions"`
	Share      float64 `json:"share"`
}

// CohortMetrics is the single-cohort result.
type CohortMetrics struct {
	Cohort          CohortInfo  `json:"cohort"`
	Metrics         Metrics     `json:"metrics"`
	TopPages        []PageRow   `json:"topPages"`
	DeviceBreakdown []DeviceRow `json:"deviceBreakdown"`
	QueryFailed     bool        `json:"queryFailed,omitempty"`
}

// ComparisonRow is one cohort of a multi-cohort comparison. Comparison is
// presentational only; no cross-cohort hypothesis testing.
type ComparisonRow struct {
	CohortID         string  `json:"cohortId"`
	CohortName       string  `json:"cohortName"`
	Sessions         uint64  `json:"sessions"`
	Events           uint64  `json:"events"`
	Clicks           uint64  `json:"clicks"`
	EventsPerSession float64 `json:"eventsPerSession"`
}

// CohortComparison is the multi-cohort result.
type CohortComparison struct {
	Comparison  []ComparisonRow `json:"comparison"`
	QueryFailed bool            `json:"queryFailed,omitempty"`
}

// GoalStats is the per-variant, per-goal breakdown of an experiment. The
// revenue fields are populated for revenue-typed goals only. Goal rows are
// descriptive aggregates; they are not independently significance-tested.
type GoalStats struct {
	GoalID            string  `json:"goalId"`
	GoalType          string  `json:"goalType"`
	GoalName          string  `json:"goalName,omitempty"`
	VariantID         string  `json:"variantId"`
	Conversions       uint64  `json:"conversions"`
	ConversionRate    float64 `json:"conversionRate"`
	TotalRevenue      float64 `json:"totalRevenue,omitempty"`
	AvgOrderValue     float64 `json:"avgOrderValue,omitempty"`
	RevenuePerVisitor float64 `json:"revenuePerVisitor,omitempty"`
}

// ExperimentResult is the full inference result for one experiment.
type ExperimentResult struct {
	ExperimentID      string               `json:"experimentId"`
	Status            string               `json:"status"`
	Message           string               `json:"message"`
	TotalUsers        uint64               `json:"totalUsers"`
	Variants          []stats.VariantStats `json:"variants"`
	IsSignificant     bool                 `json:"isSignificant"`
	ConfidenceLevel   float64              `json:"confidenceLevel"`
	WinnerVariantID   string               `json:"winnerVariantId,omitempty"`
	Comparisons       []stats.Comparison   `json:"pairwiseComparisons,omitempty"`
	DaysRunning       int                  `json:"daysRunning"`
	MinimumSampleSize uint64               `json:"minimumSampleSize"`
	HasEnoughData     bool                 `json:"hasEnoughData"`
	Goals             []GoalStats          `json:"goals,omitempty"`
	QueryFailed       bool                 `json:"queryFailed,omitempty"`
}
