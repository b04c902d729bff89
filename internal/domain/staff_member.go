package domain

import "time"

// StaffRole enumerates internal operator roles.
type StaffRole string

const (
	StaffRoleModerator StaffRole = "MODERATOR"
	StaffRoleAdmin     StaffRole = "ADMIN"
)

// StaffMember models a moderator or administrator who can claim and decide
// tickets through the staff surface.
type StaffMember struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         StaffRole
	PlatformID   *string // chat-platform user id, when linked
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
