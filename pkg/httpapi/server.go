package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Smooother/poolheating/pkg/alarm"
	"github.com/Smooother/poolheating/pkg/pool"
	"github.com/Smooother/poolheating/pkg/quota"
	"github.com/Smooother/poolheating/pkg/state"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CycleRunner runs a single decision cycle outside the regular schedule.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*pool.Record, error)
}

// DecisionReader is the read side of the decision log.
type DecisionReader interface {
	Recent(ctx context.Context, deviceID string, limit int) ([]*pool.Record, error)
	LastStatus(ctx context.Context, deviceID string) (*state.Status, error)
}

type Server struct {
	runner   CycleRunner
	log      DecisionReader
	budget   *quota.Budget
	alarms   *alarm.ActiveAlarms
	deviceID string
}

func NewServer(runner CycleRunner, log DecisionReader, budget *quota.Budget, alarms *alarm.ActiveAlarms, deviceID string) *Server {
	return &Server{
		runner:   runner,
		log:      log,
		budget:   budget,
		alarms:   alarms,
		deviceID: deviceID,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	// a manually triggered cycle can run for up to its full budget
	r.Use(middleware.Timeout(3 * time.Minute))

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/decisions", s.handleDecisions)
		r.Post("/cycle/run", s.handleRunCycle)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.log.LastStatus(r.Context(), s.deviceID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"deviceId": s.deviceID,
		"status":   st,
		"quota":    s.budget.Snapshot(),
		"alarms":   s.alarms.Active(),
	})
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	records, err := s.log.Recent(r.Context(), s.deviceID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, records)
}

func (s *Server) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	record, err := s.runner.RunCycle(r.Context())
	if err != nil {
		if errors.Is(err, pool.ErrCycleRunning) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, record)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
