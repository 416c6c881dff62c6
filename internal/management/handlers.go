package management

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/snowrank/snowrank/internal/database"
	"github.com/snowrank/snowrank/internal/pipeline"
)

// Handlers contains the HTTP handlers for the management API.
type Handlers struct {
	controller *Controller
	runner     *pipeline.Runner
	gateway    *database.Gateway
}

// NewHandlers creates the handler set.
func NewHandlers(controller *Controller, runner *pipeline.Runner, gateway *database.Gateway) *Handlers {
	return &Handlers{controller: controller, runner: runner, gateway: gateway}
}

// GetHealth reports liveness. Unauthenticated.
func (h *Handlers) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}

// TriggerRun starts a pipeline run synchronously and returns its summary.
// A run already in progress yields 409.
func (h *Handlers) TriggerRun(w http.ResponseWriter, r *http.Request) {
	summary, err := h.runner.RunOnce(r.Context())
	if errors.Is(err, pipeline.ErrRunInProgress) {
		h.sendError(w, http.StatusConflict, "a pipeline run is already in progress", nil)
		return
	}
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "pipeline run failed", err)
		return
	}

	h.sendJSON(w, map[string]interface{}{
		"started_at":        summary.StartedAt,
		"finished_at":       summary.FinishedAt,
		"resorts":           summary.Resorts,
		"fetched":           summary.Fetched,
		"failed_resorts":    len(summary.FailedResortIDs),
		"snapshots_written": summary.SnapshotsWritten,
		"scores_written":    summary.ScoresWritten,
		"failure_rate":      summary.FailureRate,
		"alerted":           summary.Alerted,
	})
}

// GetQualityReport returns each active resort's latest data-quality state.
func (h *Handlers) GetQualityReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.gateway.LatestQuality()
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to load quality report", err)
		return
	}

	type entry struct {
		Slug        string   `json:"slug"`
		Name        string   `json:"name"`
		DataQuality string   `json:"data_quality"`
		Flags       []string `json:"flags"`
		SnowDepthCM *float64 `json:"snow_depth_cm"`
		FetchedAt   string   `json:"fetched_at"`
	}
	entries := make([]entry, len(report))
	for i, row := range report {
		flags := row.Flags
		if flags == nil {
			flags = []string{}
		}
		entries[i] = entry{
			Slug:        row.Slug,
			Name:        row.Name,
			DataQuality: row.DataQuality,
			Flags:       flags,
			SnowDepthCM: row.SnowDepthCM,
			FetchedAt:   row.FetchedAt.UTC().Format(time.RFC3339),
		}
	}

	h.sendJSON(w, map[string]interface{}{
		"resorts":   entries,
		"timestamp": time.Now().Unix(),
	})
}

type overrideRequest struct {
	DepthCM     float64 `json:"depth_cm"`
	Reason      string  `json:"reason"`
	ThresholdCM float64 `json:"threshold_cm"`
}

// SetOverride creates or replaces a resort's manual depth override.
func (h *Handlers) SetOverride(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.DepthCM < 0 {
		h.sendError(w, http.StatusBadRequest, "depth_cm must be non-negative", nil)
		return
	}
	if req.ThresholdCM <= 0 {
		req.ThresholdCM = 20
	}

	override, err := h.gateway.SetOverride(slug, req.DepthCM, req.Reason, req.ThresholdCM, time.Now().UTC())
	if err != nil {
		h.sendError(w, http.StatusNotFound, "failed to set override", err)
		return
	}

	h.sendJSON(w, map[string]interface{}{
		"slug":         slug,
		"depth_cm":     override.DepthCM,
		"threshold_cm": override.ThresholdCM,
		"reason":       override.Reason,
		"set_at":       override.SetAt.UTC().Format(time.RFC3339),
		"active":       override.Active,
	})
}

// ClearOverride deactivates a resort's manual depth override.
func (h *Handlers) ClearOverride(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	if err := h.gateway.ClearOverride(slug); err != nil {
		h.sendError(w, http.StatusNotFound, "failed to clear override", err)
		return
	}

	h.sendJSON(w, map[string]interface{}{
		"slug":   slug,
		"active": false,
	})
}

// sendJSON writes a JSON response.
func (h *Handlers) sendJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.controller.logger.Errorf("error encoding JSON response: %v", err)
	}
}

// sendError writes a JSON error response.
func (h *Handlers) sendError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		h.controller.logger.Errorf("%s: %v", message, err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
