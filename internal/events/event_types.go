package events

import (
	"time"

	"github.com/spec-kit/wager-arbiter/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated     EventType = "ticket_created"
	EventTicketAccepted    EventType = "ticket_accepted"
	EventTicketClaimed     EventType = "ticket_claimed"
	EventTicketResolved    EventType = "ticket_resolved"
	EventTicketDodged      EventType = "ticket_dodged"
	EventTicketExtended    EventType = "ticket_extended"
	EventInactivityWarning EventType = "inactivity_warning"
	EventTierChanged       EventType = "tier_changed"
)

// Actor encapsulates actor metadata for an event. Scheduler-originated
// transitions carry no actor id.
type Actor struct {
	Type   domain.SubjectType `json:"type"`
	UserID *string            `json:"user_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	GuildID   string      `json:"guild_id"`
	ChannelID string      `json:"channel_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Kind          domain.TicketKind `json:"kind"`
	ChallengerIDs []string          `json:"challenger_ids"`
	ChallengedIDs []string          `json:"challenged_ids"`
}

// TicketAcceptedPayload payload.
type TicketAcceptedPayload struct {
	AcceptedBy string `json:"accepted_by"`
}

// TicketClaimedPayload payload.
type TicketClaimedPayload struct {
	ClaimedBy string `json:"claimed_by"`
}

// TicketResolvedPayload payload.
type TicketResolvedPayload struct {
	WinningSide domain.TicketSide `json:"winning_side"`
	WinnerIDs   []string          `json:"winner_ids"`
	LoserIDs    []string          `json:"loser_ids"`
	Timeout     bool              `json:"timeout"`
}

// TicketDodgedPayload payload.
type TicketDodgedPayload struct {
	DodgedBy string `json:"dodged_by"`
	Timeout  bool   `json:"timeout"`
}

// InactivityWarningPayload payload.
type InactivityWarningPayload struct {
	Deadline time.Time `json:"deadline"`
}

// TierChangedPayload payload.
type TierChangedPayload struct {
	UserID   string `json:"user_id"`
	Wins     int    `json:"wins"`
	TierName string `json:"tier_name,omitempty"`
	RoleID   string `json:"role_id,omitempty"`
}
