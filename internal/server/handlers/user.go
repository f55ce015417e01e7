package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"trendpulse/internal/service/trends"
)

// UserHandler handles per-user ranking and cache administration
type UserHandler struct {
	engine *trends.Engine
	logger *slog.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(engine *trends.Engine, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		engine: engine,
		logger: logger,
	}
}

// GetRanking returns a user's keyword importance ranking.
func (h *UserHandler) GetRanking(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	force := r.URL.Query().Get("refresh") == "true"

	result, err := h.engine.GetRanking(r.Context(), userID, force)
	if err != nil {
		respondWithError(h.logger, w, http.StatusInternalServerError, "Failed to get ranking", err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// GetSummary returns aggregate statistics over a user's keywords.
func (h *UserHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	summary, err := h.engine.GetSummary(r.Context(), userID)
	if err != nil {
		respondWithError(h.logger, w, http.StatusInternalServerError, "Failed to get summary", err)
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

// Warmup precomputes a user's keyword metrics and derived caches.
func (h *UserHandler) Warmup(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if err := h.engine.Warmup(r.Context(), userID); err != nil {
		respondWithError(h.logger, w, http.StatusInternalServerError, "Warmup failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// InvalidateUser drops all of a user's cached trend data.
func (h *UserHandler) InvalidateUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if err := h.engine.InvalidateUser(r.Context(), userID); err != nil {
		respondWithError(h.logger, w, http.StatusInternalServerError, "Failed to invalidate user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
