package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/sitelens/sitelens/internal/rules"
	"github.com/sitelens/sitelens/internal/store"
)

func openTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedSessions(t *testing.T, s *store.SQLiteStore, ts time.Time) {
	t.Helper()
	ctx := context.Background()

	// Three mobile sessions and two desktop sessions, with a few events each.
	sessions := []struct {
		session, visitor, device string
		events                   []string
		page                     string
	}{
		{"m1", "v1", "mobile", []string{"page_view", "click"}, "/pricing"},
		{"m2", "v2", "mobile", []string{"page_view"}, "/pricing"},
		{"m3", "v3", "mobile", []string{"page_view", "click", "scroll"}, "/home"},
		{"d1", "v4", "desktop", []string{"page_view"}, "/home"},
		{"d2", "v5", "desktop", []string{"page_view", "click"}, "/home"},
	}
	for _, sess := range sessions {
		for _, eventType := range sess.events {
			err := s.RecordEvent(ctx, store.Event{
				SiteID:     "site-a",
				SessionID:  sess.session,
				VisitorID:  sess.visitor,
				EventType:  eventType,
				PageURL:    sess.page,
				DeviceType: sess.device,
				Timestamp:  ts,
			})
			if err != nil {
				t.Fatalf("failed to record event: %v", err)
			}
		}
	}
}

func testRange(ts time.Time) store.TimeRange {
	return store.TimeRange{Start: ts.Add(-time.Hour), End: ts.Add(time.Hour)}
}

func TestAggregateEvents_PredicateFilters(t *testing.T) {
	s := openTestStore(t)
	ts := time.Now().Add(-time.Hour)
	seedSessions(t, s, ts)

	pred := rules.Compile([]rules.Rule{
		{Field: "device_type", Operator: rules.OpEquals, Value: rules.StringValue("mobile")},
	})

	out, err := s.AggregateEvents(context.Background(), store.AggregateSpec{
		SiteID: "site-a",
		Where:  pred.SQL(),
		Args:   pred.Args(),
		Range:  testRange(ts),
	})
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}

	row := out[""]
	if row.Sessions != 3 {
		t.Errorf("expected 3 mobile sessions, got %d", row.Sessions)
	}
	if row.Events != 6 {
		t.Errorf("expected 6 mobile events, got %d", row.Events)
	}
	if row.Clicks != 2 {
		t.Errorf("expected 2 mobile clicks, got %d", row.Clicks)
	}
	if row.Visitors != 3 {
		t.Errorf("expected 3 mobile visitors, got %d", row.Visitors)
	}
}

func TestAggregateEvents_ContainsIsCaseSensitive(t *testing.T) {
	s := openTestStore(t)
	ts := time.Now().Add(-time.Hour)
	seedSessions(t, s, ts)

	run := func(value string) store.AggregateRow {
		pred := rules.Compile([]rules.Rule{
			{Field: "page_url", Operator: rules.OpContains, Value: rules.StringValue(value)},
		})
		out, err := s.AggregateEvents(context.Background(), store.AggregateSpec{
			SiteID: "site-a",
			Where:  pred.SQL(),
			Args:   pred.Args(),
			Range:  testRange(ts),
		})
		if err != nil {
			t.Fatalf("aggregate failed: %v", err)
		}
		return out[""]
	}

	if got := run("PRICING").Sessions; got != 0 {
		t.Errorf("expected 0 sessions for mismatched case, got %d", got)
	}
	if got := run("pricing").Sessions; got != 2 {
		t.Errorf("expected 2 sessions for exact-case substring, got %d", got)
	}
}

func TestAggregateEvents_AlwaysTruePredicate(t *testing.T) {
	s := openTestStore(t)
	ts := time.Now().Add(-time.Hour)
	seedSessions(t, s, ts)

	pred := rules.Compile(nil)
	out, err := s.AggregateEvents(context.Background(), store.AggregateSpec{
		SiteID: "site-a",
		Where:  pred.SQL(),
		Args:   pred.Args(),
		Range:  testRange(ts),
	})
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}

	if out[""].Sessions != 5 {
		t.Errorf("expected all 5 sessions, got %d", out[""].Sessions)
	}
}

func TestAggregateEvents_SiteScoped(t *testing.T) {
	s := openTestStore(t)
	ts := time.Now().Add(-time.Hour)
	seedSessions(t, s, ts)

	pred := rules.Compile(nil)
	out, err := s.AggregateEvents(context.Background(), store.AggregateSpec{
		SiteID: "site-b",
		Where:  pred.SQL(),
		Args:   pred.Args(),
		Range:  testRange(ts),
	})
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}

	if out[""].Sessions != 0 {
		t.Errorf("expected no sessions for another site, got %d", out[""].Sessions)
	}
}

func TestAggregateEvents_GroupedByDevice(t *testing.T) {
	s := openTestStore(t)
	ts := time.Now().Add(-time.Hour)
	seedSessions(t, s, ts)

	pred := rules.Compile(nil)
	out, err := s.AggregateEvents(context.Background(), store.AggregateSpec{
		SiteID:  "site-a",
		Where:   pred.SQL(),
		Args:    pred.Args(),
		Range:   testRange(ts),
		GroupBy: store.GroupDevice,
	})
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}

	if len(out) != 2 {
		t.Fatalf("expected 2 device groups, got %d", len(out))
	}
	if out["mobile"].Sessions != 3 {
		t.Errorf("expected 3 mobile sessions, got %d", out["mobile"].Sessions)
	}
	if out["desktop"].Sessions != 2 {
		t.Errorf("expected 2 desktop sessions, got %d", out["desktop"].Sessions)
	}
}

func TestAggregateEvents_RangeExcludesOutside(t *testing.T) {
	s := openTestStore(t)
	ts := time.Now().Add(-48 * time.Hour)
	seedSessions(t, s, ts)

	pred := rules.Compile(nil)
	out, err := s.AggregateEvents(context.Background(), store.AggregateSpec{
		SiteID: "site-a",
		Where:  pred.SQL(),
		Args:   pred.Args(),
		Range:  store.TimeRange{Start: time.Now().Add(-time.Hour), End: time.Now()},
	})
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}

	if out[""].Events != 0 {
		t.Errorf("expected no events inside the range, got %d", out[""].Events)
	}
}

func TestVariantTotals_DistinctVisitors(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ts := time.Now().Add(-time.Hour)

	events := []store.ExperimentEvent{
		// v1 exposed twice and converted once: counts once each.
		{VariantID: "control", VisitorID: "v1", EventType: "exposure"},
		{VariantID: "control", VisitorID: "v1", EventType: "exposure"},
		{VariantID: "control", VisitorID: "v1", EventType: "conversion"},
		{VariantID: "control", VisitorID: "v2", EventType: "exposure"},
		{VariantID: "variant-b", VisitorID: "v3", EventType: "exposure"},
		{VariantID: "variant-b", VisitorID: "v3", EventType: "conversion"},
		{VariantID: "variant-b", VisitorID: "v3", EventType: "conversion"},
	}
	for _, e := range events {
		e.SiteID = "site-a"
		e.ExperimentID = "exp-1"
		e.Timestamp = ts
		if err := s.RecordExperimentEvent(ctx, e); err != nil {
			t.Fatalf("failed to record experiment event: %v", err)
		}
	}

	totals, err := s.VariantTotals(ctx, store.ExperimentSpec{
		SiteID: "site-a", ExperimentID: "exp-1", Range: testRange(ts),
	})
	if err != nil {
		t.Fatalf("variant totals failed: %v", err)
	}

	want := []store.VariantTotals{
		{VariantID: "control", Users: 2, Conversions: 1},
		{VariantID: "variant-b", Users: 1, Conversions: 1},
	}
	if !reflect.DeepEqual(totals, want) {
		t.Errorf("got %+v, want %+v", totals, want)
	}
}

func TestGoalBreakdown_RevenueSums(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ts := time.Now().Add(-time.Hour)

	events := []store.ExperimentEvent{
		{VariantID: "control", VisitorID: "v1", EventType: "conversion", GoalID: "purchase", Revenue: 49.5},
		{VariantID: "control", VisitorID: "v2", EventType: "conversion", GoalID: "purchase", Revenue: 50.5},
		{VariantID: "control", VisitorID: "v3", EventType: "conversion", GoalID: "signup"},
		// Top-level conversions with no goal are excluded from the breakdown.
		{VariantID: "control", VisitorID: "v4", EventType: "conversion"},
	}
	for _, e := range events {
		e.SiteID = "site-a"
		e.ExperimentID = "exp-1"
		e.Timestamp = ts
		if err := s.RecordExperimentEvent(ctx, e); err != nil {
			t.Fatalf("failed to record experiment event: %v", err)
		}
	}

	rows, err := s.GoalBreakdown(ctx, store.ExperimentSpec{
		SiteID: "site-a", ExperimentID: "exp-1", Range: testRange(ts),
	})
	if err != nil {
		t.Fatalf("goal breakdown failed: %v", err)
	}

	want := []store.GoalRow{
		{VariantID: "control", GoalID: "purchase", Conversions: 2, Revenue: 100},
		{VariantID: "control", GoalID: "signup", Conversions: 1, Revenue: 0},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("got %+v, want %+v", rows, want)
	}
}

func TestCohort_Roundtrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	v2 := rules.NumberValue(90)
	in := &store.Cohort{
		ID:     "engaged-mobile",
		SiteID: "site-a",
		Name:   "Engaged mobile",
		Rules: []rules.Rule{
			{Field: "device_type", Operator: rules.OpEquals, Value: rules.StringValue("mobile")},
			{Field: "scroll_depth", Operator: rules.OpBetween, Value: rules.NumberValue(50), Value2: &v2},
			{Field: "is_returning", Operator: rules.OpEquals, Value: rules.BoolValue(true)},
		},
	}
	if err := s.CreateCohort(ctx, in); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	out, err := s.GetCohort(ctx, "engaged-mobile")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if out.SiteID != "site-a" || out.Name != "Engaged mobile" {
		t.Errorf("unexpected cohort: %+v", out)
	}
	if !reflect.DeepEqual(out.Rules, in.Rules) {
		t.Errorf("rules did not survive the roundtrip:\n%+v\n%+v", out.Rules, in.Rules)
	}
}

func TestGetCohort_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetCohort(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestExperiment_Roundtrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	in := &store.Experiment{
		ID:         "checkout-cta",
		SiteID:     "site-a",
		Name:       "Checkout CTA",
		VariantIDs: []string{"control", "variant-b"},
		Goals: []store.Goal{
			{ID: "purchase", Type: store.GoalRevenue, Name: "Purchase"},
			{ID: "signup", Type: store.GoalConversion, Name: "Signup"},
		},
	}
	if err := s.CreateExperiment(ctx, in); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	out, err := s.GetExperiment(ctx, "checkout-cta")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if out.Status != store.StatusRunning {
		t.Errorf("expected default running status, got %q", out.Status)
	}
	if !reflect.DeepEqual(out.VariantIDs, in.VariantIDs) {
		t.Errorf("variants did not survive the roundtrip: %+v", out.VariantIDs)
	}
	if !reflect.DeepEqual(out.Goals, in.Goals) {
		t.Errorf("goals did not survive the roundtrip: %+v", out.Goals)
	}
	if out.StartedAt.IsZero() {
		t.Error("expected a started_at timestamp")
	}
}

func TestExperiment_NoGoals(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	in := &store.Experiment{
		ID:         "plain",
		SiteID:     "site-a",
		Name:       "Plain",
		VariantIDs: []string{"a", "b"},
	}
	if err := s.CreateExperiment(ctx, in); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	out, err := s.GetExperiment(ctx, "plain")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(out.Goals) != 0 {
		t.Errorf("expected no goals, got %+v", out.Goals)
	}
}

func TestListCohorts_SiteScoped(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, c := range []*store.Cohort{
		{ID: "a1", SiteID: "site-a", Name: "A1"},
		{ID: "a2", SiteID: "site-a", Name: "A2"},
		{ID: "b1", SiteID: "site-b", Name: "B1"},
	} {
		if err := s.CreateCohort(ctx, c); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	cohorts, err := s.ListCohorts(ctx, "site-a")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(cohorts) != 2 {
		t.Errorf("expected 2 cohorts for site-a, got %d", len(cohorts))
	}
}
