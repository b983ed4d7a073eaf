package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mendhq/mend/pkg/log"
	"github.com/mendhq/mend/pkg/metrics"
	"github.com/mendhq/mend/pkg/snapshot"
)

// defaultReportPeriod is used when /report has no period parameter.
const defaultReportPeriod = 24 * time.Hour

// Server is the read-only HTTP surface: health, Prometheus metrics,
// dashboard and report JSON, and rollback point listing.
type Server struct {
	recorder  *metrics.Recorder
	snapshots *snapshot.Store
	srv       *http.Server
}

// NewServer creates a server listening on addr.
func NewServer(addr string, recorder *metrics.Recorder, snapshots *snapshot.Store) *Server {
	s := &Server{
		recorder:  recorder,
		snapshots: snapshots,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", metrics.HealthHandler())
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/dashboard", s.handleDashboard)
	mux.HandleFunc("/report", s.handleReport)
	mux.HandleFunc("/rollback-points", s.handleRollbackPoints)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		log.WithComponent("api").Info().Str("addr", s.srv.Addr).Msg("API server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithComponent("api").Error().Err(err).Msg("API server failed")
			metrics.UpdateComponent("api", false, err.Error())
		}
	}()
	metrics.RegisterComponent("api", true, "")
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, s.recorder.Dashboard())
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	period := defaultReportPeriod
	if raw := r.URL.Query().Get("period"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid period %q", raw))
			return
		}
		period = parsed
	}

	writeJSON(w, http.StatusOK, s.recorder.Report(period, time.Now()))
}

func (s *Server) handleRollbackPoints(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	if s.snapshots == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshot store not configured")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = parsed
	}

	var tags []string
	if tag := r.URL.Query().Get("tag"); tag != "" {
		tags = []string{tag}
	}

	writeJSON(w, http.StatusOK, s.snapshots.List(tags, limit))
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
