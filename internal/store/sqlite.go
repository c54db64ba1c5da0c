package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Querier and Definitions over an embedded SQLite
// database. It stands in for the external analytical store in self-hosted
// deployments and in tests.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    site_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    visitor_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    page_url TEXT NOT NULL DEFAULT '',
    referrer TEXT NOT NULL DEFAULT '',
    device_type TEXT NOT NULL DEFAULT '',
    browser TEXT NOT NULL DEFAULT '',
    os TEXT NOT NULL DEFAULT '',
    country TEXT NOT NULL DEFAULT '',
    utm_source TEXT NOT NULL DEFAULT '',
    utm_medium TEXT NOT NULL DEFAULT '',
    utm_campaign TEXT NOT NULL DEFAULT '',
    scroll_depth REAL NOT NULL DEFAULT 0,
    session_duration REAL NOT NULL DEFAULT 0,
    is_returning INTEGER NOT NULL DEFAULT 0,
    ts INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_site_ts ON events(site_id, ts);
CREATE INDEX IF NOT EXISTS idx_events_site_session ON events(site_id, session_id);

CREATE TABLE IF NOT EXISTS experiment_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    site_id TEXT NOT NULL,
    experiment_id TEXT NOT NULL,
    variant_id TEXT NOT NULL,
    visitor_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    goal_id TEXT NOT NULL DEFAULT '',
    revenue REAL NOT NULL DEFAULT 0,
    ts INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_expevents_site_exp ON experiment_events(site_id, experiment_id, ts);
CREATE INDEX IF NOT EXISTS idx_expevents_visitor ON experiment_events(site_id, experiment_id, visitor_id, event_type);

CREATE TABLE IF NOT EXISTS cohorts (
    id TEXT PRIMARY KEY,
    site_id TEXT NOT NULL,
    name TEXT NOT NULL,
    rules TEXT NOT NULL,
    created_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_cohorts_site ON cohorts(site_id);

CREATE TABLE IF NOT EXISTS experiments (
    id TEXT PRIMARY KEY,
    site_id TEXT NOT NULL,
    name TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'running',
    variants TEXT NOT NULL,
    goals TEXT,
    started_at INTEGER NOT NULL,
    created_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_experiments_site ON experiments(site_id);
`

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// LIKE is case-insensitive for ASCII by default; contains rules are
	// case-sensitive substring matches.
	if _, err := db.Exec("PRAGMA case_sensitive_like=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure LIKE: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for health checks
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// AggregateEvents runs one aggregate query scoped to the site and time
// range, filtered by the compiled predicate, optionally grouped.
func (s *SQLiteStore) AggregateEvents(ctx context.Context, spec AggregateSpec) (map[string]AggregateRow, error) {
	where := "site_id = ? AND ts >= ? AND ts < ? AND (" + spec.Where + ")"
	args := append([]any{spec.SiteID, spec.Range.Start.Unix(), spec.Range.End.Unix()}, spec.Args...)

	const counts = `
		COUNT(DISTINCT session_id) AS sessions,
		COUNT(*) AS events,
		COALESCE(SUM(CASE WHEN event_type = 'click' THEN 1 ELSE 0 END), 0) AS clicks,
		COUNT(DISTINCT visitor_id) AS visitors`

	out := make(map[string]AggregateRow)

	if spec.GroupBy == GroupNone {
		var row AggregateRow
		err := s.db.QueryRowContext(ctx,
			"SELECT"+counts+" FROM events WHERE "+where, args...,
		).Scan(&row.Sessions, &row.Events, &row.Clicks, &row.Visitors)
		if err != nil {
			return nil, fmt.Errorf("failed to aggregate events: %w", err)
		}
		out[row.GroupKey] = row
		return out, nil
	}

	col, err := groupColumn(spec.GroupBy)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+col+","+counts+" FROM events WHERE "+where+
			" GROUP BY "+col+" ORDER BY sessions DESC, "+col+" ASC LIMIT 25", args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row AggregateRow
		if err := rows.Scan(&row.GroupKey, &row.Sessions, &row.Events, &row.Clicks, &row.Visitors); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate row: %w", err)
		}
		out[row.GroupKey] = row
	}
	return out, rows.Err()
}

// groupColumn maps a GroupBy to its column name. The whitelist keeps
// grouping expressions out of reach of request parameters.
func groupColumn(g GroupBy) (string, error) {
	switch g {
	case GroupPage:
		return "page_url", nil
	case GroupDevice:
		return "device_type", nil
	default:
		return "", fmt.Errorf("unsupported grouping %q", g)
	}
}

// VariantTotals counts distinct exposed and converted visitors per variant.
func (s *SQLiteStore) VariantTotals(ctx context.Context, spec ExperimentSpec) ([]VariantTotals, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			variant_id,
			COUNT(DISTINCT CASE WHEN event_type = 'exposure' THEN visitor_id END) AS users,
			COUNT(DISTINCT CASE WHEN event_type = 'conversion' THEN visitor_id END) AS conversions
		FROM experiment_events
		WHERE site_id = ? AND experiment_id = ? AND ts >= ? AND ts < ?
		GROUP BY variant_id
		ORDER BY variant_id
	`, spec.SiteID, spec.ExperimentID, spec.Range.Start.Unix(), spec.Range.End.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to get variant totals: %w", err)
	}
	defer rows.Close()

	var totals []VariantTotals
	for rows.Next() {
		var t VariantTotals
		if err := rows.Scan(&t.VariantID, &t.Users, &t.Conversions); err != nil {
			return nil, fmt.Errorf("failed to scan variant totals: %w", err)
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// GoalBreakdown counts distinct converted visitors and revenue per variant
// and goal.
func (s *SQLiteStore) GoalBreakdown(ctx context.Context, spec ExperimentSpec) ([]GoalRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			variant_id,
			goal_id,
			COUNT(DISTINCT visitor_id) AS conversions,
			COALESCE(SUM(revenue), 0) AS revenue
		FROM experiment_events
		WHERE site_id = ? AND experiment_id = ? AND event_type = 'conversion' AND goal_id != ''
		  AND ts >= ? AND ts < ?
		GROUP BY variant_id, goal_id
		ORDER BY variant_id, goal_id
	`, spec.SiteID, spec.ExperimentID, spec.Range.Start.Unix(), spec.Range.End.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to get goal breakdown: %w", err)
	}
	defer rows.Close()

	var breakdown []GoalRow
	for rows.Next() {
		var g GoalRow
		if err := rows.Scan(&g.VariantID, &g.GoalID, &g.Conversions, &g.Revenue); err != nil {
			return nil, fmt.Errorf("failed to scan goal row: %w", err)
		}
		breakdown = append(breakdown, g)
	}
	return breakdown, rows.Err()
}

func (s *SQLiteStore) GetCohort(ctx context.Context, cohortID string) (*Cohort, error) {
	var c Cohort
	var rulesJSON string
	var createdAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT id, site_id, name, rules, created_at FROM cohorts WHERE id = ?`, cohortID,
	).Scan(&c.ID, &c.SiteID, &c.Name, &rulesJSON, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cohort: %w", err)
	}

	if err := json.Unmarshal([]byte(rulesJSON), &c.Rules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rules: %w", err)
	}
	c.CreatedAt = time.Unix(createdAt, 0)

	return &c, nil
}

func (s *SQLiteStore) ListCohorts(ctx context.Context, siteID string) ([]*Cohort, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, site_id, name, rules, created_at FROM cohorts WHERE site_id = ? ORDER BY created_at DESC`,
		siteID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list cohorts: %w", err)
	}
	defer rows.Close()

	var cohorts []*Cohort
	for rows.Next() {
		var c Cohort
		var rulesJSON string
		var createdAt int64
		if err := rows.Scan(&c.ID, &c.SiteID, &c.Name, &rulesJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan cohort: %w", err)
		}
		if err := json.Unmarshal([]byte(rulesJSON), &c.Rules); err != nil {
			return nil, fmt.Errorf("failed to unmarshal rules: %w", err)
		}
		c.CreatedAt = time.Unix(createdAt, 0)
		cohorts = append(cohorts, &c)
	}
	return cohorts, rows.Err()
}

func (s *SQLiteStore) GetExperiment(ctx context.Context, experimentID string) (*Experiment, error) {
	var e Experiment
	var variantsJSON string
	var goalsJSON sql.NullString
	var startedAt, createdAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT id, site_id, name, status, variants, goals, started_at, created_at
		 FROM experiments WHERE id = ?`, experimentID,
	).Scan(&e.ID, &e.SiteID, &e.Name, &e.Status, &variantsJSON, &goalsJSON, &startedAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}

	if err := json.Unmarshal([]byte(variantsJSON), &e.VariantIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variants: %w", err)
	}
	if goalsJSON.Valid && goalsJSON.String != "" {
		if err := json.Unmarshal([]byte(goalsJSON.String), &e.Goals); err != nil {
			return nil, fmt.Errorf("failed to unmarshal goals: %w", err)
		}
	}
	e.StartedAt = time.Unix(startedAt, 0)
	e.CreatedAt = time.Unix(createdAt, 0)

	return &e, nil
}

func (s *SQLiteStore) ListExperiments(ctx context.Context, siteID string) ([]*Experiment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, site_id, name, status, variants, goals, started_at, created_at
		 FROM experiments WHERE site_id = ? ORDER BY created_at DESC`,
		siteID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var experiments []*Experiment
	for rows.Next() {
		var e Experiment
		var variantsJSON string
		var goalsJSON sql.NullString
		var startedAt, createdAt int64
		if err := rows.Scan(&e.ID, &e.SiteID, &e.Name, &e.Status, &variantsJSON, &goalsJSON, &startedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		if err := json.Unmarshal([]byte(variantsJSON), &e.VariantIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal variants: %w", err)
		}
		if goalsJSON.Valid && goalsJSON.String != "" {
			if err := json.Unmarshal([]byte(goalsJSON.String), &e.Goals); err != nil {
				return nil, fmt.Errorf("failed to unmarshal goals: %w", err)
			}
		}
		e.StartedAt = time.Unix(startedAt, 0)
		e.CreatedAt = time.Unix(createdAt, 0)
		experiments = append(experiments, &e)
	}
	return experiments, rows.Err()
}

// CreateCohort writes a cohort definition. Definition writes belong to the
// external API layer; this exists for that layer and for tests.
func (s *SQLiteStore) CreateCohort(ctx context.Context, c *Cohort) error {
	rulesJSON, err := json.Marshal(c.Rules)
	if err != nil {
		return fmt.Errorf("failed to marshal rules: %w", err)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cohorts (id, site_id, name, rules, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.SiteID, c.Name, string(rulesJSON), c.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert cohort: %w", err)
	}
	return nil
}

// CreateExperiment writes an experiment definition. Same ownership caveat as
// CreateCohort.
func (s *SQLiteStore) CreateExperiment(ctx context.Context, e *Experiment) error {
	variantsJSON, err := json.Marshal(e.VariantIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal variants: %w", err)
	}
	var goalsJSON []byte
	if len(e.Goals) > 0 {
		goalsJSON, err = json.Marshal(e.Goals)
		if err != nil {
			return fmt.Errorf("failed to marshal goals: %w", err)
		}
	}
	if e.Status == "" {
		e.Status = StatusRunning
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = e.CreatedAt
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO experiments (id, site_id, name, status, variants, goals, started_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SiteID, e.Name, string(e.Status), string(variantsJSON), nullableString(goalsJSON),
		e.StartedAt.Unix(), e.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert experiment: %w", err)
	}
	return nil
}

// RecordEvent appends one interaction event. Ingestion is owned by the
// external pipeline; this exists for the embedded store and tests.
func (s *SQLiteStore) RecordEvent(ctx context.Context, e Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	isReturning := 0
	if e.IsReturning {
		isReturning = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (site_id, session_id, visitor_id, event_type, page_url, referrer,
			device_type, browser, os, country, utm_source, utm_medium, utm_campaign,
			scroll_depth, session_duration, is_returning, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SiteID, e.SessionID, e.VisitorID, e.EventType, e.PageURL, e.Referrer,
		e.DeviceType, e.Browser, e.OS, e.Country, e.UTMSource, e.UTMMedium, e.UTMCampaign,
		e.ScrollDepth, e.SessionDuration, isReturning, e.Timestamp.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// RecordExperimentEvent appends one exposure or conversion event.
func (s *SQLiteStore) RecordExperimentEvent(ctx context.Context, e ExperimentEvent) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO experiment_events (site_id, experiment_id, variant_id, visitor_id, event_type, goal_id, revenue, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SiteID, e.ExperimentID, e.VariantID, e.VisitorID, e.EventType, e.GoalID, e.Revenue, e.Timestamp.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record experiment event: %w", err)
	}
	return nil
}

func nullableString(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
