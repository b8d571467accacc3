// Package domain contains core domain types for the incident intake service.
package domain

import (
	"time"
)

// User is a remote party that has talked to the intake at least once.
type User struct {
	ID           int64     `json:"id"`
	FirstName    string    `json:"first_name"`
	Username     string    `json:"username,omitempty"`
	RegisteredOn time.Time `json:"registered_on"`
}

// Identity carries the identity fields a turn arrives with.
type Identity struct {
	UserID    int64  `json:"user_id"`
	FirstName string `json:"first_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// DisplayName returns the name used in greetings.
func (i Identity) DisplayName() string {
	if i.FirstName != "" {
		return i.FirstName
	}
	if i.Username != "" {
		return i.Username
	}
	return "there"
}

// User builds the record registered for this identity on the given day.
func (i Identity) User(now time.Time) *User {
	y, m, d := now.Date()
	return &User{
		ID:           i.UserID,
		FirstName:    i.FirstName,
		Username:     i.Username,
		RegisteredOn: time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
	}
}
