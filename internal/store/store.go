// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/ashureev/incident-intake/internal/domain"
)

// ErrIntegrity is returned when an incident references a user that has not
// been registered.
var ErrIntegrity = errors.New("store: incident references unknown user")

// Repository defines the interface for persisting users and incidents.
type Repository interface {
	// RegisterUser inserts the user unless a row with the same ID exists.
	// Registering an existing user is a no-op, never an error.
	RegisterUser(ctx context.Context, user *domain.User) error

	// IsRegistered reports whether a user row exists for id.
	IsRegistered(ctx context.Context, id int64) (bool, error)

	// GetUser retrieves a user by ID. Returns nil, nil when absent.
	GetUser(ctx context.Context, id int64) (*domain.User, error)

	// AddIncident appends an incident and returns its assigned ID.
	// Returns ErrIntegrity if incident.UserID is not registered.
	AddIncident(ctx context.Context, incident *domain.Incident) (int64, error)

	// GetIncident retrieves an incident by ID. Returns nil, nil when absent.
	GetIncident(ctx context.Context, id int64) (*domain.Incident, error)

	// ListIncidentIDs returns incident IDs in insertion order, optionally
	// filtered by user.
	ListIncidentIDs(ctx context.Context, userID *int64) ([]int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
