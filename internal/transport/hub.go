// Package transport carries conversation turns and replies over websockets.
package transport

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const defaultWriteTimeout = 5 * time.Second

// Hub tracks the live websocket of each session and routes replies to it.
// Replies for a session without a live connection are queued, keeping the
// newest maxQueue per session.
type Hub struct {
	mu       sync.Mutex
	conns    map[string]*hubConn
	queues   map[string]*list.List
	maxQueue int
	timeout  time.Duration
}

// hubConn serializes writes to one connection so queued replies go out
// before newer ones.
type hubConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewHub creates a hub. maxQueue defaults to 100.
func NewHub(maxQueue int) *Hub {
	if maxQueue <= 0 {
		maxQueue = 100
	}
	return &Hub{
		conns:    make(map[string]*hubConn),
		queues:   make(map[string]*list.List),
		maxQueue: maxQueue,
		timeout:  defaultWriteTimeout,
	}
}

// Register attaches conn to a session, replacing any previous connection,
// and flushes the replies queued while the session was offline. Replies
// sent concurrently wait until the backlog is written.
func (h *Hub) Register(ctx context.Context, sessionID string, conn *websocket.Conn) {
	hc := &hubConn{conn: conn}
	hc.mu.Lock()
	defer hc.mu.Unlock()

	h.mu.Lock()
	if existing, ok := h.conns[sessionID]; ok && existing.conn != conn {
		_ = existing.conn.Close(websocket.StatusNormalClosure, "session replaced")
	}
	h.conns[sessionID] = hc
	backlog := h.drainLocked(sessionID)
	h.mu.Unlock()
	slog.Info("Intake connection registered", "session_id", sessionID, "backlog", len(backlog))

	for i, text := range backlog {
		if err := h.write(ctx, hc, text); err != nil {
			slog.Debug("Failed to flush queued reply", "error", err, "session_id", sessionID)
			h.mu.Lock()
			h.requeueLocked(sessionID, backlog[i:])
			h.mu.Unlock()
			return
		}
	}
}

// Unregister detaches conn if it is still the session's live connection.
func (h *Hub) Unregister(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.conns[sessionID]; ok && current.conn == conn {
		delete(h.conns, sessionID)
		slog.Info("Intake connection unregistered", "session_id", sessionID)
	}
}

// Connected reports whether a session has a live connection.
func (h *Hub) Connected(sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.conns[sessionID]
	return ok
}

// Send delivers a reply to the session's connection, or queues it.
func (h *Hub) Send(ctx context.Context, sessionID, text string) error {
	h.mu.Lock()
	hc := h.conns[sessionID]
	if hc == nil {
		h.enqueueLocked(sessionID, text)
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	hc.mu.Lock()
	defer hc.mu.Unlock()
	if err := h.write(ctx, hc, text); err != nil {
		h.mu.Lock()
		h.enqueueLocked(sessionID, text)
		h.mu.Unlock()
		return fmt.Errorf("transport: write reply: %w", err)
	}
	return nil
}

// write sends one reply frame. The caller holds hc.mu.
func (h *Hub) write(ctx context.Context, hc *hubConn, text string) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.timeout)
	defer cancel()
	return writeFrame(writeCtx, hc.conn, replyFrame{Type: FrameReply, Text: text})
}

// Drain removes and returns the replies queued for a session.
func (h *Hub) Drain(sessionID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.drainLocked(sessionID)
}

// Pending returns the number of replies queued for a session.
func (h *Hub) Pending(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if l, ok := h.queues[sessionID]; ok {
		return l.Len()
	}
	return 0
}

func (h *Hub) enqueueLocked(sessionID, text string) {
	l, ok := h.queues[sessionID]
	if !ok {
		l = list.New()
		h.queues[sessionID] = l
	}
	l.PushBack(text)
	for l.Len() > h.maxQueue {
		l.Remove(l.Front())
	}
}

// requeueLocked puts unsent replies back ahead of anything queued since.
func (h *Hub) requeueLocked(sessionID string, texts []string) {
	l, ok := h.queues[sessionID]
	if !ok {
		l = list.New()
		h.queues[sessionID] = l
	}
	for i := len(texts) - 1; i >= 0; i-- {
		l.PushFront(texts[i])
	}
	for l.Len() > h.maxQueue {
		l.Remove(l.Front())
	}
}

func (h *Hub) drainLocked(sessionID string) []string {
	l, ok := h.queues[sessionID]
	if !ok {
		return nil
	}
	delete(h.queues, sessionID)

	out := make([]string, 0, l.Len())
	for e := l.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(string))
	}
	return out
}

func writeFrame(ctx context.Context, conn *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
