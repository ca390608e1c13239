// Package handlers implements the internal HTTP surface's read-only
// endpoints: health/readiness, per-pair statistics, recent outcomes, and
// signal history. The trading-side CRUD surface (exchange connections, pair
// management, blacklist edits, notification inbox) is out of scope for a
// read-only observation system and was dropped rather than adapted (see
// DESIGN.md).
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"arbitrage/internal/domain"
	"arbitrage/internal/storage"
)

// PairStatsGetter is the narrow read surface this handler needs from C10,
// defined locally so this package never imports internal/stats.
type PairStatsGetter interface {
	Get(ctx context.Context, pairID, symbol string) (domain.PairStatistics, bool, error)
	RecentOutcomes(ctx context.Context, pairID, symbol string, limit int) ([]domain.RecentOutcome, error)
}

// Pinger is the narrow health-check surface the pipeline exposes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ObservatoryHandler serves the dashboard's read-only REST surface.
type ObservatoryHandler struct {
	stats   PairStatsGetter
	signals *storage.SignalStore
	pinger  Pinger
}

// NewObservatoryHandler returns a handler bound to the pipeline's query
// surfaces. Any dependency may be nil; the corresponding endpoints then
// answer 503.
func NewObservatoryHandler(stats PairStatsGetter, signals *storage.SignalStore, pinger Pinger) *ObservatoryHandler {
	return &ObservatoryHandler{stats: stats, signals: signals, pinger: pinger}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Healthz reports liveness unconditionally: the process is up.
func (h *ObservatoryHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SuccessResponse{Message: "ok"})
}

// Readyz reports readiness: Postgres and the KV backend both answer.
func (h *ObservatoryHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.pinger == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "pipeline not wired"})
		return
	}
	if err := h.pinger.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Message: "ready"})
}

// GetPairStats serves C10's lifetime aggregate for one (pair_id,symbol).
func (h *ObservatoryHandler) GetPairStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "stats service not wired"})
		return
	}
	vars := mux.Vars(r)
	pairID, symbol := vars["pair_id"], vars["symbol"]

	s, ok, err := h.stats.Get(r.Context(), pairID, symbol)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "no statistics for pair"})
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// GetRecentOutcomes serves C10's recent_outcomes(pair, symbol, limit) query.
func (h *ObservatoryHandler) GetRecentOutcomes(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "stats service not wired"})
		return
	}
	vars := mux.Vars(r)
	pairID, symbol := vars["pair_id"], vars["symbol"]

	outcomes, err := h.stats.RecentOutcomes(r.Context(), pairID, symbol, 20)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, outcomes)
}

// GetSignalsBySymbol serves the signal-history endpoint: the 50 most recent
// signals emitted for symbol, newest first.
func (h *ObservatoryHandler) GetSignalsBySymbol(w http.ResponseWriter, r *http.Request) {
	if h.signals == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "signal store not wired"})
		return
	}
	symbol := mux.Vars(r)["symbol"]

	recs, err := h.signals.ListBySymbol(r.Context(), symbol, 50)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, recs)
}
