package domain

import "time"

// TicketStatus enumerates lifecycle states for wager tickets.
type TicketStatus string

const (
	TicketStatusOpenUnaccepted TicketStatus = "OPEN_UNACCEPTED"
	TicketStatusOpenAccepted   TicketStatus = "OPEN_ACCEPTED"
	TicketStatusDodge          TicketStatus = "DODGE"
	TicketStatusClosed         TicketStatus = "CLOSED"
)

// IsTerminal reports whether no further transitions are possible.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusDodge || s == TicketStatusClosed
}

// OpenStatuses lists the non-terminal states.
func OpenStatuses() []TicketStatus {
	return []TicketStatus{TicketStatusOpenUnaccepted, TicketStatusOpenAccepted}
}

// TicketKind enumerates challenge formats.
type TicketKind string

const (
	TicketKind1v1 TicketKind = "WAGER_1V1"
	TicketKind2v2 TicketKind = "WAR_2V2"
)

// TeamSize returns the participant count per side.
func (k TicketKind) TeamSize() int {
	if k == TicketKind2v2 {
		return 2
	}
	return 1
}

// TicketSide identifies one side of a challenge.
type TicketSide string

const (
	SideChallenger TicketSide = "challenger"
	SideChallenged TicketSide = "challenged"
)

// Other returns the opposing side.
func (s TicketSide) Other() TicketSide {
	if s == SideChallenger {
		return SideChallenged
	}
	return SideChallenger
}

// Ticket is the aggregate for one wager/war challenge. The persisted record
// is the sole arbitration point: every transition is a conditional update on
// the guard fields, never a read-then-write.
type Ticket struct {
	ID                      string
	GuildID                 string
	ChannelID               string
	CategoryID              string
	Kind                    TicketKind
	ChallengerIDs           []string
	ChallengedIDs           []string
	Status                  TicketStatus
	AcceptedAt              *time.Time
	AcceptedBy              *string
	ClaimedAt               *time.Time
	ClaimedBy               *string
	ClosedAt                *time.Time
	ClosedBy                *string
	DodgedBy                *string
	LastInactivityWarningAt *time.Time
	LastExtensionAt         *time.Time
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// Participants returns both sides merged, challengers first.
func (t *Ticket) Participants() []string {
	out := make([]string, 0, len(t.ChallengerIDs)+len(t.ChallengedIDs))
	out = append(out, t.ChallengerIDs...)
	out = append(out, t.ChallengedIDs...)
	return out
}

// HasParticipant reports membership on either side.
func (t *Ticket) HasParticipant(userID string) bool {
	for _, id := range t.Participants() {
		if id == userID {
			return true
		}
	}
	return false
}

// Side returns the participant ids for one side.
func (t *Ticket) Side(side TicketSide) []string {
	if side == SideChallenged {
		return t.ChallengedIDs
	}
	return t.ChallengerIDs
}

// SideOf returns which side a participant belongs to.
func (t *Ticket) SideOf(userID string) (TicketSide, bool) {
	for _, id := range t.ChallengerIDs {
		if id == userID {
			return SideChallenger, true
		}
	}
	for _, id := range t.ChallengedIDs {
		if id == userID {
			return SideChallenged, true
		}
	}
	return "", false
}

// EscalationReference is the instant inactivity windows are measured from:
// the later of acceptance and the most recent extension.
func (t *Ticket) EscalationReference() time.Time {
	ref := t.CreatedAt
	if t.AcceptedAt != nil {
		ref = *t.AcceptedAt
	}
	if t.LastExtensionAt != nil && t.LastExtensionAt.After(ref) {
		ref = *t.LastExtensionAt
	}
	return ref
}
