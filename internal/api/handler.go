// Package api provides HTTP handlers for the intake service.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ashureev/incident-intake/internal/store"
	"github.com/ashureev/incident-intake/internal/transport"
)

// Handler provides the intake REST endpoints.
type Handler struct {
	repo  store.Repository
	turns transport.TurnHandler
	hub   *transport.Hub
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, turns transport.TurnHandler, hub *transport.Hub) *Handler {
	return &Handler{
		repo:  repo,
		turns: turns,
		hub:   hub,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
