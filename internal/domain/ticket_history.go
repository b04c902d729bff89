package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeStatus    TicketChangeType = "STATUS_CHANGE"
	ChangeTypeClaim     TicketChangeType = "CLAIM_CHANGE"
	ChangeTypeExtension TicketChangeType = "EXTENSION"
)

// TicketHistory is an immutable audit trail entry appended after every
// committed transition.
type TicketHistory struct {
	ID         string
	TicketID   string
	ActorType  SubjectType
	ActorID    *string
	ChangeType TicketChangeType
	OldValue   map[string]any
	NewValue   map[string]any
	CreatedAt  time.Time
}
