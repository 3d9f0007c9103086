package models

import (
	"strings"
	"time"

	"certify/pkg/platform/validation"
)

// Admin is an account allowed to issue and manage certificates.
type Admin struct {
	ID           string
	Username     string
	PasswordHash []byte
	CreatedAt    time.Time
}

// LoginRequest is the body of POST /admin/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=72"`
}

// Validate trims the username and checks required fields. Passwords are
// compared as given.
func (r *LoginRequest) Validate() error {
	r.Username = strings.TrimSpace(r.Username)
	return validation.Struct(r)
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
