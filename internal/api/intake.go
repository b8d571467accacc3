package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ashureev/incident-intake/internal/identity"
	"github.com/ashureev/incident-intake/internal/transport"
	"github.com/go-chi/chi/v5"
)

// maxTurnBody bounds a turn request, including base64 attachment data.
const maxTurnBody = 32 << 20

// TurnResponse is returned by PostTurn.
type TurnResponse struct {
	SessionID string   `json:"session_id"`
	Outcome   string   `json:"outcome"`
	Replies   []string `json:"replies"`
}

// RegisterRoutes registers the intake routes. The identity middleware must
// run before them.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/turns", h.PostTurn)
		r.Get("/incidents", h.ListIncidents)
		r.Get("/incidents/{id}", h.GetIncident)
	})
}

// PostTurn applies one turn and returns the replies queued for the session.
// Replies already pushed to a live websocket are not repeated.
func (h *Handler) PostTurn(w http.ResponseWriter, r *http.Request) {
	from, ok := identity.FromContext(r.Context())
	if !ok {
		Error(w, http.StatusBadRequest, "missing identity")
		return
	}
	sessionID := identity.SessionIDFromContext(r.Context())

	var frame transport.Frame
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTurnBody)).Decode(&frame); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	turn, err := frame.Turn(sessionID, from)
	if err != nil {
		if errors.Is(err, transport.ErrInvalidFrame) {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
		Error(w, http.StatusInternalServerError, "failed to parse turn")
		return
	}

	outcome, err := h.turns.HandleTurn(r.Context(), turn)
	if err != nil {
		slog.Error("Failed to handle turn", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to handle turn")
		return
	}

	replies := h.hub.Drain(sessionID)
	if replies == nil {
		replies = []string{}
	}
	JSON(w, http.StatusOK, TurnResponse{SessionID: sessionID, Outcome: string(outcome), Replies: replies})
}

// ListIncidents returns the incident ids filed by the caller.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	from, ok := identity.FromContext(r.Context())
	if !ok {
		Error(w, http.StatusBadRequest, "missing identity")
		return
	}

	ids, err := h.repo.ListIncidentIDs(r.Context(), &from.UserID)
	if err != nil {
		slog.Error("Failed to list incidents", "error", err, "user_id", from.UserID)
		Error(w, http.StatusInternalServerError, "failed to list incidents")
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"user_id": from.UserID, "incident_ids": ids})
}

// GetIncident returns one of the caller's incidents.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	from, ok := identity.FromContext(r.Context())
	if !ok {
		Error(w, http.StatusBadRequest, "missing identity")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid incident id")
		return
	}

	inc, err := h.repo.GetIncident(r.Context(), id)
	if err != nil {
		slog.Error("Failed to get incident", "error", err, "incident_id", id)
		Error(w, http.StatusInternalServerError, "failed to get incident")
		return
	}
	if inc == nil || inc.UserID != from.UserID {
		Error(w, http.StatusNotFound, "incident not found")
		return
	}
	JSON(w, http.StatusOK, inc)
}

