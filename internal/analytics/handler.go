package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

const (
	defaultTopN = 10
	maxTopN     = 100
)

// Handler serves the aggregator's snapshot over HTTP.
type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// Stats serves GET /api/v1/analytics/stats. The optional top parameter
// bounds the query rankings (1..100, default 10).
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		h.writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	n := defaultTopN
	if raw := r.URL.Query().Get("top"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxTopN {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "top must be an integer between 1 and 100"})
			return
		}
		n = v
	}
	w.Header().Set("Cache-Control", "no-store")
	h.writeJSON(w, http.StatusOK, h.aggregator.StatsTop(n))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("writing analytics response", "status", status, "error", err)
	}
}
