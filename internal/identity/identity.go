// Package identity resolves the remote party and conversation session of
// each request.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/ashureev/incident-intake/internal/domain"
)

const (
	UserIDHeader      = "X-Intake-User-ID"
	FirstNameHeader   = "X-Intake-First-Name"
	UsernameHeader    = "X-Intake-Username"
	SessionHeaderName = "X-Intake-Session-ID"
)

type contextKey int

const (
	identityKey contextKey = iota
	sessionIDKey
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// FromContext returns the remote party attached by Middleware.
func FromContext(ctx context.Context) (domain.Identity, bool) {
	v, ok := ctx.Value(identityKey).(domain.Identity)
	return v, ok
}

// SessionIDFromContext returns the conversation session of the request.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// WithIdentity attaches a remote party and session id to ctx.
func WithIdentity(ctx context.Context, from domain.Identity, sessionID string) context.Context {
	ctx = context.WithValue(ctx, identityKey, from)
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

func sanitizeSessionID(id string, fallback string) string {
	id = strings.TrimSpace(id)
	if id == "" || !sessionIDPattern.MatchString(id) {
		return fallback
	}
	return id
}

// param reads a header, falling back to a query parameter. Browsers cannot
// set headers on websocket upgrades.
func param(r *http.Request, header, query string) string {
	if v := r.Header.Get(header); v != "" {
		return v
	}
	return r.URL.Query().Get(query)
}

// FromRequest parses the remote party and session id of r.
func FromRequest(r *http.Request) (domain.Identity, string, bool) {
	raw := strings.TrimSpace(param(r, UserIDHeader, "user_id"))
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return domain.Identity{}, "", false
	}

	from := domain.Identity{
		UserID:    userID,
		FirstName: strings.TrimSpace(param(r, FirstNameHeader, "first_name")),
		Username:  strings.TrimSpace(param(r, UsernameHeader, "username")),
	}
	sessionID := sanitizeSessionID(param(r, SessionHeaderName, "session_id"), strconv.FormatInt(userID, 10))
	return from, sessionID, true
}

// Middleware rejects requests without a valid user id and injects the
// remote party and session id into the request context.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			from, sessionID, ok := FromRequest(r)
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"missing or invalid user id"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), from, sessionID)))
		})
	}
}

// IPFromRequest returns a normalized remote IP for request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
