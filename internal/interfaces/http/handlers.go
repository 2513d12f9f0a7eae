package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/breadthlab/regimed/internal/feedback"
	"github.com/breadthlab/regimed/internal/persistence"
	"github.com/breadthlab/regimed/internal/pipeline"
)

// Handlers bundles the read-only endpoints over the engine and repositories.
type Handlers struct {
	engine  *pipeline.Engine
	tracker *feedback.Tracker
	repo    persistence.Repository
	started time.Time
}

func NewHandlers(engine *pipeline.Engine, tracker *feedback.Tracker, repo persistence.Repository) *Handlers {
	return &Handlers{
		engine:  engine,
		tracker: tracker,
		repo:    repo,
		started: time.Now(),
	}
}

// Health reports liveness and engine status.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"uptime_sec": int(time.Since(h.started).Seconds()),
		"engine":     h.engine.Status(),
	})
}

// Regime returns the currently held regime state.
func (h *Handlers) Regime(w http.ResponseWriter, r *http.Request) {
	state, ok := h.engine.CurrentState(r.Context())
	if !ok {
		writeError(w, http.StatusNotFound, "no regime held yet")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// Predictions returns recent predictions. Query params: hours (default 24),
// limit (default 100, max 1000).
func (h *Handlers) Predictions(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", 24)
	limit := queryInt(r, "limit", 100)
	if limit > 1000 {
		limit = 1000
	}

	now := time.Now()
	preds, err := h.repo.Predictions.ListRange(r.Context(), persistence.TimeRange{
		From: now.Add(-time.Duration(hours) * time.Hour),
		To:   now,
	}, limit)
	if err != nil {
		log.Error().Err(err).Msg("Prediction query failed")
		writeError(w, http.StatusInternalServerError, "prediction query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":       len(preds),
		"predictions": preds,
	})
}

// Accuracy returns graded-outcome statistics. Query param: hours (default
// 168, one week).
func (h *Handlers) Accuracy(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", 168)

	now := time.Now()
	stats, err := h.tracker.Report(r.Context(), persistence.TimeRange{
		From: now.Add(-time.Duration(hours) * time.Hour),
		To:   now,
	})
	if err != nil {
		log.Error().Err(err).Msg("Accuracy query failed")
		writeError(w, http.StatusInternalServerError, "accuracy query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"window_hours": hours,
		"overall":      stats.Overall(),
		"total":        stats.Total,
		"by_regime":    stats.ByRegime,
	})
}

// Models lists stored model versions, newest first.
func (h *Handlers) Models(w http.ResponseWriter, r *http.Request) {
	versions, err := h.repo.Models.List(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		log.Error().Err(err).Msg("Model version query failed")
		writeError(w, http.StatusInternalServerError, "model query failed")
		return
	}
	// Strip the binary payloads; this endpoint is for inspection.
	type versionSummary struct {
		ID        string    `json:"id"`
		TrainedAt time.Time `json:"trained_at"`
		Accuracy  float64   `json:"accuracy"`
		Samples   int       `json:"samples"`
	}
	summaries := make([]versionSummary, len(versions))
	for i, v := range versions {
		summaries[i] = versionSummary{ID: v.ID, TrainedAt: v.TrainedAt, Accuracy: v.Accuracy, Samples: v.Samples}
	}
	writeJSON(w, http.StatusOK, summaries)
}

// NotFound is the JSON 404 handler.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeError(w, http.StatusNotFound, "not found")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
