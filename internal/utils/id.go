package utils

import "github.com/google/uuid"

// NewID returns a random connection identifier.
func NewID() string {
	return uuid.NewString()
}

// NewInviteCode returns a fresh server invite code.
func NewInviteCode() string {
	return uuid.NewString()
}
