package auth

import (
	"time"

	"github.com/sudandp/paradigm-ifs-sub000/internal/shared"
)

// User represents an authenticated user account.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Actor returns the identity carried by requests signed in as u.
func (u User) Actor() shared.Actor {
	return shared.Actor{ID: u.ID, Name: u.Name, Role: u.Role}
}
