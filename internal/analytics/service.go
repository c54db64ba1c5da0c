package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sitelens/sitelens/internal/cache"
	"github.com/sitelens/sitelens/internal/rules"
	"github.com/sitelens/sitelens/internal/stats"
	"github.com/sitelens/sitelens/internal/store"
)

// ErrScopeViolation is returned when a requested entity does not belong to
// the requesting site. The API layer checks this too; it is re-checked here
// because the entity id is passed down.
var ErrScopeViolation = errors.New("entity does not belong to site")

// minDetectableEffect is the relative lift the sample-size guidance is
// calibrated to detect.
const minDetectableEffect = 0.2

// Service is the aggregation orchestrator. All of its state is
// constructor-injected; the cache is the only shared mutable component.
type Service struct {
	defs  store.Definitions
	agg   *Aggregator
	cache *cache.Cache
	ttl   time.Duration
	log   *logrus.Logger
	now   func() time.Time
}

func NewService(defs store.Definitions, agg *Aggregator, c *cache.Cache, ttl time.Duration, log *logrus.Logger) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{defs: defs, agg: agg, cache: c, ttl: ttl, log: log, now: time.Now}
}

// CohortMetrics computes the metrics for one cohort over the given range.
// On store failure it returns a zeroed result flagged QueryFailed, which is
// never cached.
func (s *Service) CohortMetrics(ctx context.Context, siteID, cohortID string, r store.TimeRange) (*CohortMetrics, error) {
	cohort, err := s.defs.GetCohort(ctx, cohortID)
	if err != nil {
		return nil, err
	}
	if cohort.SiteID != siteID {
		return nil, fmt.Errorf("cohort %s: %w", cohortID, ErrScopeViolation)
	}

	key := cacheKey(siteID, "cohort", cohort.ID, ruleHash(cohort.Rules), rangeKey(r))
	v, err := s.cache.GetOrCompute(ctx, key, s.ttl, func(ctx context.Context) (any, error) {
		return s.computeCohortMetrics(ctx, siteID, cohort, r)
	})
	if err != nil {
		if errors.Is(err, ErrQueryFailed) {
			return &CohortMetrics{
				Cohort:      CohortInfo{ID: cohort.ID, Name: cohort.Name},
				QueryFailed: true,
			}, nil
		}
		return nil, err
	}
	return v.(*CohortMetrics), nil
}

func (s *Service) computeCohortMetrics(ctx context.Context, siteID string, cohort *store.Cohort, r store.TimeRange) (*CohortMetrics, error) {
	pred := s.compile(cohort)

	overall, err := s.agg.Aggregate(ctx, siteID, pred, r, store.GroupNone)
	if err != nil {
		return nil, err
	}
	pages, err := s.agg.Aggregate(ctx, siteID, pred, r, store.GroupPage)
	if err != nil {
		return nil, err
	}
	devices, err := s.agg.Aggregate(ctx, siteID, pred, r, store.GroupDevice)
	if err != nil {
		return nil, err
	}

	out := &CohortMetrics{
		Cohort:  CohortInfo{ID: cohort.ID, Name: cohort.Name},
		Metrics: shapeMetrics(overall[""]),
	}
	for _, row := range sortRows(pages) {
		out.TopPages = append(out.TopPages, PageRow{PageURL: row.GroupKey, Sessions: row.Sessions, Events: row.Events})
	}
	total := out.Metrics.Sessions
	for _, row := range sortRows(devices) {
		share := 0.0
		if total > 0 {
			share = float64(row.Sessions) / float64(total)
		}
		out.DeviceBreakdown = append(out.DeviceBreakdown, DeviceRow{DeviceType: row.GroupKey, Sessions: row.Sessions, Share: share})
	}
	return out, nil
}

// CompareCohorts computes one row per cohort. The comparison is
// presentational only; no cross-cohort hypothesis test is run.
func (s *Service) CompareCohorts(ctx context.Context, siteID string, cohortIDs []string, r store.TimeRange) (*CohortComparison, error) {
	cohorts := make([]*store.Cohort, 0, len(cohortIDs))
	keyParts := make([]string, 0, len(cohortIDs)+1)
	for _, id := range cohortIDs {
		cohort, err := s.defs.GetCohort(ctx, id)
		if err != nil {
			return nil, err
		}
		if cohort.SiteID != siteID {
			return nil, fmt.Errorf("cohort %s: %w", id, ErrScopeViolation)
		}
		cohorts = append(cohorts, cohort)
		keyParts = append(keyParts, cohort.ID+"@"+ruleHash(cohort.Rules))
	}
	keyParts = append(keyParts, rangeKey(r))

	key := cacheKey(siteID, "cohort-compare", keyParts...)
	v, err := s.cache.GetOrCompute(ctx, key, s.ttl, func(ctx context.Context) (any, error) {
		return s.computeComparison(ctx, siteID, cohorts, r)
	})
	if err != nil {
		if errors.Is(err, ErrQueryFailed) {
			return &CohortComparison{QueryFailed: true}, nil
		}
		return nil, err
	}
	return v.(*CohortComparison), nil
}

func (s *Service) computeComparison(ctx context.Context, siteID string, cohorts []*store.Cohort, r store.TimeRange) (*CohortComparison, error) {
	out := &CohortComparison{Comparison: make([]ComparisonRow, 0, len(cohorts))}
	for _, cohort := range cohorts {
		pred := s.compile(cohort)
		overall, err := s.agg.Aggregate(ctx, siteID, pred, r, store.GroupNone)
		if err != nil {
			return nil, err
		}
		row := overall[""]
		eps := 0.0
		if row.Sessions > 0 {
			eps = float64(row.Events) / float64(row.Sessions)
		}
		out.Comparison = append(out.Comparison, ComparisonRow{
			CohortID:         cohort.ID,
			CohortName:       cohort.Name,
			Sessions:         row.Sessions,
			Events:           row.Events,
			Clicks:           row.Clicks,
			EventsPerSession: eps,
		})
	}
	return out, nil
}

// ExperimentResults computes the inference result for one experiment,
// including per-goal breakdowns when the experiment defines goals.
func (s *Service) ExperimentResults(ctx context.Context, siteID, experimentID string, r store.TimeRange) (*ExperimentResult, error) {
	exp, err := s.defs.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if exp.SiteID != siteID {
		return nil, fmt.Errorf("experiment %s: %w", experimentID, ErrScopeViolation)
	}

	key := cacheKey(siteID, "experiment", exp.ID, experimentHash(exp), rangeKey(r))
	v, err := s.cache.GetOrCompute(ctx, key, s.ttl, func(ctx context.Context) (any, error) {
		return s.computeExperimentResults(ctx, siteID, exp, r)
	})
	if err != nil {
		if errors.Is(err, ErrQueryFailed) {
			// No Message: the zeroed counts reflect a store outage, not a
			// statistical judgment.
			return &ExperimentResult{
				ExperimentID: exp.ID,
				Status:       string(exp.Status),
				QueryFailed:  true,
			}, nil
		}
		return nil, err
	}
	return v.(*ExperimentResult), nil
}

func (s *Service) computeExperimentResults(ctx context.Context, siteID string, exp *store.Experiment, r store.TimeRange) (*ExperimentResult, error) {
	totals, err := s.agg.VariantTotals(ctx, siteID, exp.ID, r)
	if err != nil {
		return nil, err
	}

	byVariant := make(map[string]store.VariantTotals, len(totals))
	for _, t := range totals {
		byVariant[t.VariantID] = t
	}

	// The definition's variant order is ascending and stable; the first
	// variant is the control. Variants without any events still appear,
	// zeroed, so the ordering never depends on the data.
	variants := make([]stats.VariantStats, 0, len(exp.VariantIDs))
	var totalUsers uint64
	for _, id := range exp.VariantIDs {
		t := byVariant[id]
		variants = append(variants, stats.NewVariantStats(id, t.Users, t.Conversions))
		totalUsers += t.Users
	}

	analysis := stats.Analyze(variants)

	result := &ExperimentResult{
		ExperimentID:    exp.ID,
		Status:          string(exp.Status),
		Message:         stats.StatusMessage(analysis, totalUsers),
		TotalUsers:      totalUsers,
		Variants:        variants,
		IsSignificant:   analysis.IsSignificant,
		ConfidenceLevel: analysis.ConfidenceLevel,
		WinnerVariantID: analysis.WinnerVariantID,
		Comparisons:     analysis.Comparisons,
		DaysRunning:     daysRunning(exp.StartedAt, s.now()),
	}

	if len(variants) > 0 && variants[0].ConversionRate > 0 {
		result.MinimumSampleSize = stats.MinimumSampleSize(variants[0].ConversionRate, minDetectableEffect)
	}
	result.HasEnoughData = hasEnoughData(variants, result.MinimumSampleSize)

	if len(exp.Goals) > 0 {
		goals, err := s.agg.GoalBreakdown(ctx, siteID, exp.ID, r)
		if err != nil {
			return nil, err
		}
		result.Goals = shapeGoals(exp, variants, goals)
	}

	return result, nil
}

// compile runs the rule compiler and logs its diagnostics.
func (s *Service) compile(cohort *store.Cohort) rules.Predicate {
	pred := rules.Compile(cohort.Rules)
	for _, w := range pred.Warnings() {
		s.log.WithFields(logrus.Fields{
			"cohort":   cohort.ID,
			"field":    w.Field,
			"operator": string(w.Operator),
		}).Warn(w.Reason)
	}
	return pred
}

func shapeMetrics(row store.AggregateRow) Metrics {
	m := Metrics{
		Sessions:    row.Sessions,
		TotalEvents: row.Events,
		Clicks:      row.Clicks,
		Visitors:    row.Visitors,
	}
	if row.Events > 0 {
		m.ClickRate = float64(row.Clicks) / float64(row.Events)
	}
	if row.Sessions > 0 {
		m.EventsPerSession = float64(row.Events) / float64(row.Sessions)
	}
	return m
}

func shapeGoals(exp *store.Experiment, variants []stats.VariantStats, rows []store.GoalRow) []GoalStats {
	goalDefs := make(map[string]store.Goal, len(exp.Goals))
	for _, g := range exp.Goals {
		goalDefs[g.ID] = g
	}
	usersByVariant := make(map[string]uint64, len(variants))
	for _, v := range variants {
		usersByVariant[v.VariantID] = v.Users
	}

	out := make([]GoalStats, 0, len(rows))
	for _, row := range rows {
		def := goalDefs[row.GoalID]
		g := GoalStats{
			GoalID:      row.GoalID,
			GoalType:    string(def.Type),
			GoalName:    def.Name,
			VariantID:   row.VariantID,
			Conversions: row.Conversions,
		}
		if users := usersByVariant[row.VariantID]; users > 0 {
			g.ConversionRate = float64(row.Conversions) / float64(users)
			if def.Type == store.GoalRevenue {
				g.RevenuePerVisitor = row.Revenue / float64(users)
			}
		}
		if def.Type == store.GoalRevenue {
			g.TotalRevenue = row.Revenue
			if row.Conversions > 0 {
				g.AvgOrderValue = row.Revenue / float64(row.Conversions)
			}
		}
		out = append(out, g)
	}
	return out
}

func hasEnoughData(variants []stats.VariantStats, minSample uint64) bool {
	if minSample == 0 || len(variants) == 0 {
		return false
	}
	for _, v := range variants {
		if v.Users < minSample {
			return false
		}
	}
	return true
}

func daysRunning(startedAt, now time.Time) int {
	if startedAt.IsZero() || now.Before(startedAt) {
		return 0
	}
	return int(now.Sub(startedAt).Hours() / 24)
}

// sortRows orders grouped rows by sessions descending, group key ascending,
// so shaped breakdowns are deterministic.
func sortRows(rows map[string]store.AggregateRow) []store.AggregateRow {
	out := make([]store.AggregateRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sessions != out[j].Sessions {
			return out[i].Sessions > out[j].Sessions
		}
		return out[i].GroupKey < out[j].GroupKey
	})
	return out
}
