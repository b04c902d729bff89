package dto

import "time"

// StaffLoginRequest payload.
type StaffLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// StaffRegisterRequest payload. Admin-only.
type StaffRegisterRequest struct {
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Password   string  `json:"password"`
	Role       string  `json:"role"`
	PlatformID *string `json:"platform_id,omitempty"`
}

// StaffSessionResponse wraps a successful login.
type StaffSessionResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	Staff     StaffResponse `json:"staff"`
}

// StaffResponse is the wire shape of a staff member.
type StaffResponse struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Role       string  `json:"role"`
	PlatformID *string `json:"platform_id,omitempty"`
	Active     bool    `json:"active"`
}
