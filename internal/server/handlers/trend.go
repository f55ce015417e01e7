package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"trendpulse/internal/domain/trend"
	"trendpulse/internal/service/trends"
)

// TrendHandler handles keyword trend HTTP requests
type TrendHandler struct {
	engine *trends.Engine
	logger *slog.Logger
}

// NewTrendHandler creates a new trend handler
func NewTrendHandler(engine *trends.Engine, logger *slog.Logger) *TrendHandler {
	return &TrendHandler{
		engine: engine,
		logger: logger,
	}
}

// GetTrendData returns a keyword's trend snapshot or a pending signal.
// A pending computation answers 202 with the task id to poll.
func (h *TrendHandler) GetTrendData(w http.ResponseWriter, r *http.Request) {
	keywordID := chi.URLParam(r, "keywordID")
	force := r.URL.Query().Get("refresh") == "true"

	result, err := h.engine.GetTrendData(r.Context(), keywordID, force)
	if err != nil {
		if errors.Is(err, trend.ErrInvalidKeyword) {
			respondWithError(h.logger, w, http.StatusNotFound, "Unknown keyword", nil)
			return
		}
		respondWithError(h.logger, w, http.StatusInternalServerError, "Failed to get trend data", err)
		return
	}

	if result.Pending {
		respondWithJSON(w, http.StatusAccepted, result)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// GetHistory returns a keyword's trend history, oldest first.
func (h *TrendHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	keywordID := chi.URLParam(r, "keywordID")

	history, err := h.engine.GetHistory(keywordID)
	if err != nil {
		respondWithError(h.logger, w, http.StatusInternalServerError, "Failed to get history", err)
		return
	}
	respondWithJSON(w, http.StatusOK, history)
}

// CompareKeywords returns a side-by-side comparison for ?ids=a,b,c.
func (h *TrendHandler) CompareKeywords(w http.ResponseWriter, r *http.Request) {
	idsParam := r.URL.Query().Get("ids")
	if idsParam == "" {
		respondWithError(h.logger, w, http.StatusBadRequest, "Missing ids parameter", nil)
		return
	}

	result, err := h.engine.CompareKeywords(r.Context(), strings.Split(idsParam, ","))
	if err != nil {
		respondWithError(h.logger, w, http.StatusInternalServerError, "Failed to compare keywords", err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// InvalidateKeyword drops a keyword's cached data.
func (h *TrendHandler) InvalidateKeyword(w http.ResponseWriter, r *http.Request) {
	keywordID := chi.URLParam(r, "keywordID")

	if err := h.engine.InvalidateKeyword(r.Context(), keywordID); err != nil {
		if errors.Is(err, trend.ErrInvalidKeyword) {
			respondWithError(h.logger, w, http.StatusNotFound, "Unknown keyword", nil)
			return
		}
		respondWithError(h.logger, w, http.StatusInternalServerError, "Failed to invalidate keyword", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetTaskStatus returns a recomputation task snapshot.
func (h *TrendHandler) GetTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	t, ok := h.engine.GetTaskStatus(taskID)
	if !ok {
		respondWithError(h.logger, w, http.StatusNotFound, "Task not found", nil)
		return
	}
	respondWithJSON(w, http.StatusOK, t)
}

// GetCacheStats returns hit/miss statistics for all tiers.
func (h *TrendHandler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.engine.GetCacheStats())
}

// Helper for JSON responses
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Failed to marshal response"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// Helper for error responses
func respondWithError(logger *slog.Logger, w http.ResponseWriter, code int, message string, err error) {
	if err != nil && code >= 500 {
		logger.Error("http error", "code", code, "message", message, "error", err)
	}

	response, _ := json.Marshal(map[string]string{"error": message})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
