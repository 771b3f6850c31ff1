package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cuemby/elbscaler/pkg/metrics"
	"github.com/cuemby/elbscaler/pkg/types"
)

// DecisionSource lists journaled control loop decisions
type DecisionSource interface {
	RecentDecisions(n int) ([]types.ScaleDecision, error)
}

const defaultDecisionLimit = 20

// HealthServer provides the HTTP health, metrics and state endpoints
type HealthServer struct {
	health    *metrics.HealthChecker
	state     metrics.Snapshotter
	decisions DecisionSource
	mux       *http.ServeMux
	server    *http.Server
}

// NewHealthServer creates the HTTP server. decisions may be nil when the
// journal is disabled.
func NewHealthServer(health *metrics.HealthChecker, state metrics.Snapshotter, decisions DecisionSource) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		health:    health,
		state:     state,
		decisions: decisions,
		mux:       mux,
	}

	// Register endpoints
	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readyHandler)
	mux.HandleFunc("/state", hs.stateHandler)
	mux.HandleFunc("/decisions", hs.decisionsHandler)
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

// Start serves on addr until Shutdown is called
func (hs *HealthServer) Start(addr string) error {
	hs.server = &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := hs.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight requests until ctx expires
func (hs *HealthServer) Shutdown(ctx context.Context) error {
	if hs.server == nil {
		return nil
	}
	return hs.server.Shutdown(ctx)
}

// healthHandler implements the /health endpoint. It is a liveness check:
// the status code is always 200 and the body reports each component.
func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, hs.health.Health())
}

// readyHandler implements the /ready endpoint. The process is ready once
// it holds a subscription to the master.
func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := hs.health.Readiness()
	code := http.StatusOK
	if status.Status != metrics.StatusReady {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// stateHandler returns the registry snapshot
func (hs *HealthServer) stateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, hs.state.Snapshot())
}

// decisionsHandler returns the most recent journaled decisions, ?limit=N
func (hs *HealthServer) decisionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if hs.decisions == nil {
		http.Error(w, "history journal disabled", http.StatusNotFound)
		return
	}

	limit := defaultDecisionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	decisions, err := hs.decisions.RecentDecisions(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if decisions == nil {
		decisions = []types.ScaleDecision{}
	}
	writeJSON(w, http.StatusOK, decisions)
}

// GetHandler returns the HTTP handler for embedding in other servers
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
