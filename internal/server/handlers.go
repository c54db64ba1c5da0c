package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sitelens/sitelens/internal/analytics"
	"github.com/sitelens/sitelens/internal/store"
)

type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.store.DB().PingContext(r.Context()); err != nil {
		http.Error(w, "Store unavailable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, HealthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleCohortMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	siteID := r.URL.Query().Get("site")
	cohortID := r.URL.Query().Get("cohort")
	if siteID == "" || cohortID == "" {
		http.Error(w, "site and cohort are required", http.StatusBadRequest)
		return
	}

	timeRange, err := parseRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.svc.CohortMetrics(r.Context(), siteID, cohortID, timeRange)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, result)
}

func (s *Server) handleCohortCompare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	siteID := r.URL.Query().Get("site")
	cohortsParam := r.URL.Query().Get("cohorts")
	if siteID == "" || cohortsParam == "" {
		http.Error(w, "site and cohorts are required", http.StatusBadRequest)
		return
	}

	var cohortIDs []string
	for _, id := range strings.Split(cohortsParam, ",") {
		if id = strings.TrimSpace(id); id != "" {
			cohortIDs = append(cohortIDs, id)
		}
	}
	if len(cohortIDs) < 2 {
		http.Error(w, "at least two cohorts are required", http.StatusBadRequest)
		return
	}

	timeRange, err := parseRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.svc.CompareCohorts(r.Context(), siteID, cohortIDs, timeRange)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, result)
}

func (s *Server) handleExperimentResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	siteID := r.URL.Query().Get("site")
	experimentID := r.URL.Query().Get("experiment")
	if siteID == "" || experimentID == "" {
		http.Error(w, "site and experiment are required", http.StatusBadRequest)
		return
	}

	timeRange, err := parseRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.svc.ExperimentResults(r.Context(), siteID, experimentID, timeRange)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, result)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, analytics.ErrScopeViolation):
		http.Error(w, "Forbidden", http.StatusForbidden)
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	default:
		s.log.WithError(err).Error("request failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// parseRange reads optional start/end query parameters. Dates accept
// RFC 3339 or plain YYYY-MM-DD; both must be given together.
func parseRange(r *http.Request) (store.TimeRange, error) {
	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")
	if start == "" && end == "" {
		return store.TimeRange{}, nil
	}
	if start == "" || end == "" {
		return store.TimeRange{}, errors.New("start and end must be given together")
	}

	startAt, err := parseDate(start)
	if err != nil {
		return store.TimeRange{}, err
	}
	endAt, err := parseDate(end)
	if err != nil {
		return store.TimeRange{}, err
	}
	if !endAt.After(startAt) {
		return store.TimeRange{}, errors.New("end must be after start")
	}
	return store.TimeRange{Start: startAt, End: endAt}, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, errors.New("dates must be RFC 3339 or YYYY-MM-DD")
	}
	return t, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
