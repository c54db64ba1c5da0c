package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/sitelens/sitelens/internal/rules"
	"github.com/sitelens/sitelens/internal/store"
)

// ErrQueryFailed marks a store query that did not produce a result within
// its timeout and retry budget. Callers translate it into a zeroed result;
// it is never cached.
var ErrQueryFailed = errors.New("store query failed")

// Aggregator is a thin adapter over the event store's query interface. It
// resolves the default time window, bounds query execution, retries
// transient failures, and guarantees the conversions<=users contract the
// statistics engine assumes.
type Aggregator struct {
	querier store.Querier
	log     *logrus.Logger
	timeout time.Duration
	retries uint64
}

func NewAggregator(q store.Querier, log *logrus.Logger, timeout time.Duration, retries uint64) *Aggregator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Aggregator{querier: q, log: log, timeout: timeout, retries: retries}
}

// Aggregate runs one aggregate query for the site over the compiled
// predicate and time range.
func (a *Aggregator) Aggregate(ctx context.Context, siteID string, pred rules.Predicate, r store.TimeRange, groupBy store.GroupBy) (map[string]store.AggregateRow, error) {
	spec := store.AggregateSpec{
		SiteID:  siteID,
		Where:   pred.SQL(),
		Args:    pred.Args(),
		Range:   r.OrDefault(time.Now()),
		GroupBy: groupBy,
	}

	var out map[string]store.AggregateRow
	err := a.run(ctx, "aggregate_events", func(ctx context.Context) error {
		var err error
		out, err = a.querier.AggregateEvents(ctx, spec)
		return err
	})
	if err != nil {
		a.log.WithError(err).WithField("site", siteID).Error("aggregate query failed")
		return nil, ErrQueryFailed
	}
	return out, nil
}

// VariantTotals fetches per-variant experiment counts, clamping conversions
// to users so downstream inference never sees a rate above 1.
func (a *Aggregator) VariantTotals(ctx context.Context, siteID, experimentID string, r store.TimeRange) ([]store.VariantTotals, error) {
	spec := store.ExperimentSpec{SiteID: siteID, ExperimentID: experimentID, Range: r.OrDefault(time.Now())}

	var totals []store.VariantTotals
	err := a.run(ctx, "variant_totals", func(ctx context.Context) error {
		var err error
		totals, err = a.querier.VariantTotals(ctx, spec)
		return err
	})
	if err != nil {
		a.log.WithError(err).WithFields(logrus.Fields{"site": siteID, "experiment": experimentID}).Error("variant totals query failed")
		return nil, ErrQueryFailed
	}

	for i := range totals {
		if totals[i].Conversions > totals[i].Users {
			totals[i].Conversions = totals[i].Users
		}
	}
	return totals, nil
}

// GoalBreakdown fetches the per-variant, per-goal conversion rows.
func (a *Aggregator) GoalBreakdown(ctx context.Context, siteID, experimentID string, r store.TimeRange) ([]store.GoalRow, error) {
	spec := store.ExperimentSpec{SiteID: siteID, ExperimentID: experimentID, Range: r.OrDefault(time.Now())}

	var rows []store.GoalRow
	err := a.run(ctx, "goal_breakdown", func(ctx context.Context) error {
		var err error
		rows, err = a.querier.GoalBreakdown(ctx, spec)
		return err
	})
	if err != nil {
		a.log.WithError(err).WithFields(logrus.Fields{"site": siteID, "experiment": experimentID}).Error("goal breakdown query failed")
		return nil, ErrQueryFailed
	}
	return rows, nil
}

// run executes one store query with a bounded timeout and exponential
// backoff for transient failures.
func (a *Aggregator) run(ctx context.Context, name string, query func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	started := time.Now()
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), a.retries), ctx)
	err := backoff.Retry(func() error {
		return query(ctx)
	}, bo)

	queryDuration.WithLabelValues(name).Observe(time.Since(started).Seconds())
	if err != nil {
		queryFailures.WithLabelValues(name).Inc()
	}
	return err
}
