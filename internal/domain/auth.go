package domain

import "time"

// SubjectType differentiates staff tokens from the bot-gateway service token.
type SubjectType string

const (
	SubjectTypeStaff   SubjectType = "STAFF"
	SubjectTypeGateway SubjectType = "GATEWAY"
)

// Token represents issued authentication token metadata.
type Token struct {
	ID        string
	SubjectID string
	Subject   SubjectType
	Role      *StaffRole
	ExpiresAt time.Time
	IssuedAt  time.Time
}
