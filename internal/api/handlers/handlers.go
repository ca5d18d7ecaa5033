// Package handlers implements the HTTP handlers for the model serving API.
// Handlers receive the startup-built model state by injection; there is no
// process-global model handle, so the surface is deterministic under test.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/modelyard/modelyard/internal/model"
	"github.com/modelyard/modelyard/internal/serving"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	State   *serving.State
	Version string // build version of the serving daemon
}

// New creates a Handlers instance around a startup-built model state.
func New(state *serving.State, version string) *Handlers {
	return &Handlers{State: state, Version: version}
}

// PredictRequest is the body of POST /predict.
type PredictRequest struct {
	Features []float64 `json:"features"`
}

// PredictResponse is the successful prediction payload. Source and version
// carry the provenance of the active model.
type PredictResponse struct {
	Prediction   int       `json:"prediction"`
	Probability  []float64 `json:"probability"`
	ModelVersion string    `json:"model_version"`
	ModelSource  string    `json:"model_source"`
	PredictionID string    `json:"prediction_id"`
}

// Root reports service identity and model state. Never fails.
//
// GET /
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"message":      "modelyard model serving API",
		"status":       string(h.State.Status),
		"model_loaded": h.State.Ready(),
		"source":       string(h.State.Source),
		"version":      h.State.Version,
	})
}

// Health is the liveness probe. Never fails, regardless of model state.
//
// GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"model_loaded": h.State.Ready(),
	})
}

// ModelInfo returns metadata about the active model.
//
// GET /model-info
func (h *Handlers) ModelInfo(w http.ResponseWriter, r *http.Request) {
	if !h.State.Ready() {
		respondError(w, http.StatusServiceUnavailable, "model not loaded")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"schema":  h.State.Model.SchemaName,
		"version": h.State.Version,
		"source":  string(h.State.Source),
		"dim":     h.State.Model.Dim,
		"classes": h.State.Model.Classes,
	})
}

// Predict scores a feature vector against the active model.
//
// POST /predict
func (h *Handlers) Predict(w http.ResponseWriter, r *http.Request) {
	// Availability is checked before input validation: an unavailable
	// server answers 503 even to a well-formed request.
	if !h.State.Ready() {
		respondError(w, http.StatusServiceUnavailable, "model not loaded")
		return
	}

	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.State.Model.Predict(req.Features)
	if err != nil {
		if errors.Is(err, model.ErrDimensionMismatch) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		// Model invocation failures never crash a request handler.
		log.Warn().Err(err).Msg("Prediction failed")
		respondError(w, http.StatusBadRequest, "prediction error: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, PredictResponse{
		Prediction:   p.Class,
		Probability:  p.Probabilities,
		ModelVersion: h.State.Version,
		ModelSource:  string(h.State.Source),
		PredictionID: uuid.New().String(),
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
