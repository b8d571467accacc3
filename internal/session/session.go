// Package session keeps per-conversation intake state.
package session

import (
	"context"

	"github.com/ashureev/incident-intake/internal/domain"
)

// Store loads and saves intake sessions by session ID.
//
// Load never returns nil for a missing session; it returns an idle one.
// Callers serialize read-modify-write cycles per session themselves.
type Store interface {
	Load(ctx context.Context, id string) (*domain.Session, error)
	Save(ctx context.Context, s *domain.Session) error
	Reset(ctx context.Context, id string) error
}
