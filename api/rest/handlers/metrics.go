package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"rl-orchestrator/core/metrics"
	"rl-orchestrator/core/quota"
)

// MetricsHandler handles metrics and quota-admin HTTP requests.
type MetricsHandler struct {
	agg   *metrics.Aggregator
	quota *quota.Helper
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(agg *metrics.Aggregator, q *quota.Helper) *MetricsHandler {
	return &MetricsHandler{agg: agg, quota: q}
}

// SystemCounts handles GET /v1/metrics
func (h *MetricsHandler) SystemCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.agg.SystemCounts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// ProfileCounts handles GET /v1/metrics/profiles/{id}
func (h *MetricsHandler) ProfileCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.agg.ProfileCounts(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// ModelCounts handles GET /v1/metrics/models/{id}
func (h *MetricsHandler) ModelCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.agg.ModelCounts(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// ProfileUsage handles GET /v1/profiles/{id}/usage
func (h *MetricsHandler) ProfileUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.quota.LoadProfileComputeUsage(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"profileId":              usage.ProfileID,
		"computeMinutesQueued":   usage.ComputeMinutesQueued,
		"computeMinutesUsed":     usage.ComputeMinutesUsed,
		"modelCount":             usage.ModelCount,
		"maxTotalComputeMinutes": usage.MaxTotalComputeMinutes,
		"maxModelCount":          usage.MaxModelCount,
	})
}

// ResetQuotas handles POST /v1/admin/quota-reset
func (h *MetricsHandler) ResetQuotas(w http.ResponseWriter, r *http.Request) {
	batchSize := 0
	if v := r.URL.Query().Get("batchSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "Invalid batchSize", http.StatusBadRequest)
			return
		}
		batchSize = n
	}

	cursor, err := h.quota.ResetMonthlyQuotas(r.Context(), batchSize, r.URL.Query().Get("cursor"))
	if err != nil {
		// The cursor marks where the run stopped so an operator can resume.
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":  "reset interrupted",
			"cursor": cursor,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"done": true})
}
