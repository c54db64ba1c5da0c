package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// DefaultWindow is the trailing window applied when a request carries no
// explicit time range.
const DefaultWindow = 30 * 24 * time.Hour

// TimeRange bounds a query. A zero range means "default trailing window".
type TimeRange struct {
	Start time.Time
	End   time.Time
}

func (r TimeRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// OrDefault resolves a zero range to the trailing default window ending at
// now. An explicit start/end pair passes through unchanged.
func (r TimeRange) OrDefault(now time.Time) TimeRange {
	if r.IsZero() {
		return TimeRange{Start: now.Add(-DefaultWindow), End: now}
	}
	return r
}

// GroupBy selects the grouping column of an aggregate query. Only
// whitelisted columns are expressible; there is no way to inject an
// arbitrary grouping expression.
type GroupBy string

const (
	GroupNone   GroupBy = ""
	GroupPage   GroupBy = "page_url"
	GroupDevice GroupBy = "device_type"
)

// AggregateSpec composes a compiled predicate, a site scope, and a time
// range into one aggregate query against the event store.
type AggregateSpec struct {
	SiteID  string
	Where   string // compiled predicate SQL, parameterized
	Args    []any
	Range   TimeRange
	GroupBy GroupBy
}

// ExperimentSpec scopes an experiment-counts query.
type ExperimentSpec struct {
	SiteID       string
	ExperimentID string
	Range        TimeRange
}

// Querier is the query interface the decision core requires of the
// analytical event store. The store itself is external; this package ships
// an embedded SQLite implementation of the same contract.
type Querier interface {
	AggregateEvents(ctx context.Context, spec AggregateSpec) (map[string]AggregateRow, error)
	VariantTotals(ctx context.Context, spec ExperimentSpec) ([]VariantTotals, error)
	GoalBreakdown(ctx context.Context, spec ExperimentSpec) ([]GoalRow, error)
}

// Definitions is read-only access to cohort and experiment definitions.
// Definitions are created and deleted by the external API layer; the core
// only reads them at compile time.
type Definitions interface {
	GetCohort(ctx context.Context, cohortID string) (*Cohort, error)
	ListCohorts(ctx context.Context, siteID string) ([]*Cohort, error)
	GetExperiment(ctx context.Context, experimentID string) (*Experiment, error)
	ListExperiments(ctx context.Context, siteID string) ([]*Experiment, error)
}
