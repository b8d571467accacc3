package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/incident-intake/internal/domain"
	"github.com/ashureev/incident-intake/internal/identity"
	"github.com/ashureev/incident-intake/internal/intake"
	"github.com/coder/websocket"
)

// TurnHandler applies one conversation turn.
type TurnHandler interface {
	HandleTurn(ctx context.Context, turn intake.Turn) (intake.Outcome, error)
}

// WebSocketHandler serves intake conversations over websockets.
type WebSocketHandler struct {
	turns         TurnHandler
	hub           *Hub
	allowedOrigin string
	isDev         bool
	readLimit     int64
}

// NewWebSocketHandler creates a websocket handler. readLimit bounds a
// single frame, including base64 attachment data.
func NewWebSocketHandler(turns TurnHandler, hub *Hub, allowedOrigin string, isDev bool, readLimit int64) *WebSocketHandler {
	return &WebSocketHandler{
		turns:         turns,
		hub:           hub,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		readLimit:     readLimit,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	from, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing identity", http.StatusBadRequest)
		return
	}
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("WebSocket connection request", "user_id", from.UserID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", from.UserID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()
	if h.readLimit > 0 {
		ws.SetReadLimit(h.readLimit)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.hub.Register(ctx, sessionID, ws)
	defer h.hub.Unregister(sessionID, ws)

	h.readLoop(ctx, ws, from, sessionID)
	slog.Info("Intake connection ended", "session_id", sessionID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// readLoop applies turns in arrival order. A turn finishes before the next
// frame is read.
func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, from domain.Identity, sessionID string) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket closed by client", "session_id", sessionID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "session_id", sessionID)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			h.writeError(ctx, ws, "malformed frame")
			continue
		}
		if frame.Type == FramePing {
			if err := h.writeJSON(ctx, ws, replyFrame{Type: FramePong}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
			continue
		}

		turn, err := frame.Turn(sessionID, from)
		if err != nil {
			h.writeError(ctx, ws, err.Error())
			continue
		}
		if _, err := h.turns.HandleTurn(ctx, turn); err != nil {
			slog.Error("Failed to handle turn", "error", err, "session_id", sessionID, "kind", turn.Kind)
			h.writeError(ctx, ws, "turn failed")
		}
	}
}

func (h *WebSocketHandler) writeError(ctx context.Context, ws *websocket.Conn, msg string) {
	if err := h.writeJSON(ctx, ws, errorFrame{Type: FrameError, Error: msg}); err != nil {
		slog.Debug("Failed to send error frame", "error", err)
	}
}

func (h *WebSocketHandler) writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return writeFrame(writeCtx, ws, v)
}
