// Package server exposes the decision core over HTTP. Authentication and the
// dashboard live in the external API layer; this surface carries only the
// analytics operations plus health and metrics.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/sitelens/sitelens/internal/analytics"
	"github.com/sitelens/sitelens/internal/store"
)

type Server struct {
	svc       *analytics.Service
	store     *store.SQLiteStore
	log       *logrus.Logger
	port      int
	router    *http.ServeMux
	startTime time.Time
}

func New(svc *analytics.Service, s *store.SQLiteStore, log *logrus.Logger, port int) *Server {
	srv := &Server{
		svc:       svc,
		store:     s,
		log:       log,
		port:      port,
		router:    http.NewServeMux(),
		startTime: time.Now(),
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.HandleFunc("/api/cohorts/metrics", s.withRequestLog(s.handleCohortMetrics))
	s.router.HandleFunc("/api/cohorts/compare", s.withRequestLog(s.handleCohortCompare))
	s.router.HandleFunc("/api/experiments/results", s.withRequestLog(s.handleExperimentResults))
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.log.WithField("addr", addr).Info("sitelens listening")
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) StartTime() time.Time {
	return s.startTime
}

// withRequestLog tags each request with an id and logs its outcome timing.
func (s *Server) withRequestLog(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)

		started := time.Now()
		next(w, r)

		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"path":       r.URL.Path,
			"elapsed":    time.Since(started).String(),
		}).Debug("request served")
	}
}
