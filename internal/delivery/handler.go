// Package delivery exposes the synthesis engine over HTTP.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/book-expert/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hawkaii/fastspeech/internal/audio"
	"github.com/hawkaii/fastspeech/internal/core"
	"github.com/hawkaii/fastspeech/internal/engine"
)

const (
	headerContentType        = "Content-Type"
	headerContentDisposition = "Content-Disposition"
	contentTypeJSON          = "application/json"
	contentTypeWAV           = "audio/wav"
)

// Orchestrator is the part of the engine the HTTP layer drives.
type Orchestrator interface {
	Synthesize(
		ctx context.Context,
		text, language, voice string,
		opts engine.Options,
	) (*audio.Audio, error)
	SupportedModels() []core.ModelKey
	Preload(ctx context.Context, keys []core.ModelKey) map[core.ModelKey]error
	Health() engine.Health
}

// Handler serves the synthesis HTTP API.
type Handler struct {
	orchestrator Orchestrator
	log          *logger.Logger
}

// NewHandler creates the HTTP handler over an orchestrator.
func NewHandler(orchestrator Orchestrator, log *logger.Logger) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		log:          log,
	}
}

// Router builds the service routing table.
func (h *Handler) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	router.Post("/synthesize", h.synthesize)
	router.Get("/healthz", h.healthz)
	router.Get("/languages", h.languages)
	router.Post("/preload", h.preload)

	return router
}

type synthesizeRequest struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Voice    string  `json:"voice"`
	Alpha    float64 `json:"alpha,omitempty"`
}

type errorBody struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code"`
}

// POST /synthesize
func (h *Handler) synthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest

	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "invalid JSON body", "BAD_REQUEST")

		return
	}

	waveform, err := h.orchestrator.Synthesize(
		r.Context(), req.Text, req.Language, req.Voice,
		engine.Options{Alpha: req.Alpha},
	)
	if err != nil {
		h.writeDomainError(w, err)

		return
	}

	data, err := waveform.Bytes()
	if err != nil {
		h.log.Error("Failed to encode waveform: %v", err)
		h.writeJSONError(w, http.StatusInternalServerError, "failed to encode audio", "INTERNAL")

		return
	}

	filename := fmt.Sprintf("%s_%s_output.wav", req.Language, req.Voice)

	w.Header().Set(headerContentType, contentTypeWAV)
	w.Header().Set(headerContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// GET /healthz
func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	health := h.orchestrator.Health()

	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"device":        health.Device,
		"models_loaded": health.LoadedModels,
	})
}

// GET /languages
func (h *Handler) languages(w http.ResponseWriter, _ *http.Request) {
	voicesByLanguage := make(map[string][]string)

	for _, key := range h.orchestrator.SupportedModels() {
		voicesByLanguage[key.Language] = append(voicesByLanguage[key.Language], string(key.Voice))
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"languages": voicesByLanguage,
		"count":     len(voicesByLanguage),
	})
}

type preloadRequest struct {
	Models []struct {
		Language string `json:"language"`
		Voice    string `json:"voice"`
	} `json:"models"`
}

// POST /preload
func (h *Handler) preload(w http.ResponseWriter, r *http.Request) {
	var req preloadRequest

	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "invalid JSON body", "BAD_REQUEST")

		return
	}

	keys := make([]core.ModelKey, 0, len(req.Models))

	for _, entry := range req.Models {
		voice, parseErr := core.ParseVoice(entry.Voice)
		if parseErr != nil {
			h.writeDomainError(w, parseErr)

			return
		}

		keys = append(keys, core.ModelKey{Language: entry.Language, Voice: voice})
	}

	results := h.orchestrator.Preload(r.Context(), keys)

	loaded := make([]string, 0, len(results))
	failed := make(map[string]string)

	for key, keyErr := range results {
		if keyErr != nil {
			failed[key.String()] = keyErr.Error()

			continue
		}

		loaded = append(loaded, key.String())
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"loaded":       loaded,
		"failed":       failed,
		"total_cached": h.orchestrator.Health().LoadedModels,
	})
}

// writeDomainError maps the failure taxonomy to HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrMalformedMarkup):
		h.writeJSONError(w, http.StatusBadRequest, err.Error(), "MALFORMED_MARKUP")
	case errors.Is(err, core.ErrInputTooLong):
		h.writeJSONError(w, http.StatusBadRequest, err.Error(), "INPUT_TOO_LONG")
	case errors.Is(err, core.ErrModelNotFound):
		h.writeJSONError(w, http.StatusNotFound, err.Error(), "MODEL_NOT_FOUND")
	case errors.Is(err, core.ErrModelLoad):
		h.writeJSONError(w, http.StatusServiceUnavailable, err.Error(), "MODEL_LOAD_FAILED")
	default:
		h.log.Error("Synthesis request failed: %v", err)
		h.writeJSONError(w, http.StatusInternalServerError, err.Error(), "INTERNAL")
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, status int, detail, code string) {
	h.writeJSON(w, status, errorBody{Detail: detail, ErrorCode: code})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		h.log.Error("Failed to encode response body: %v", err)
	}
}
