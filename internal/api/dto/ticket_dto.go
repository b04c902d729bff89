package dto

import "time"

// CreateTicketRequest payload for opening a wager ticket.
type CreateTicketRequest struct {
	GuildID       string   `json:"guild_id"`
	Kind          string   `json:"kind"`
	ChallengerIDs []string `json:"challenger_ids"`
	ChallengedIDs []string `json:"challenged_ids"`
	Region        string   `json:"region,omitempty"`
	CategoryHint  string   `json:"category_hint,omitempty"`
}

// AcceptRequest payload for accepting a challenge on behalf of a user.
type AcceptRequest struct {
	UserID string `json:"user_id"`
}

// DecideRequest payload for recording a result.
type DecideRequest struct {
	WinningSide string `json:"winning_side"`
}

// DodgeRequest payload for a manual dodge.
type DodgeRequest struct {
	DodgerID string `json:"dodger_id"`
}

// InteractionRequest is the gateway's relay of a button press. The custom id
// carries the correlation, the actor fields identify who pressed it.
type InteractionRequest struct {
	CustomID     string   `json:"custom_id"`
	GuildID      string   `json:"guild_id"`
	ChannelID    string   `json:"channel_id"`
	ActorID      string   `json:"actor_id"`
	ActorRoleIDs []string `json:"actor_role_ids,omitempty"`
}

// TicketSummary is the wire shape of a ticket.
type TicketSummary struct {
	ID            string     `json:"id"`
	GuildID       string     `json:"guild_id"`
	ChannelID     string     `json:"channel_id"`
	CategoryID    string     `json:"category_id,omitempty"`
	Kind          string     `json:"kind"`
	Status        string     `json:"status"`
	ChallengerIDs []string   `json:"challenger_ids"`
	ChallengedIDs []string   `json:"challenged_ids"`
	AcceptedAt    *time.Time `json:"accepted_at,omitempty"`
	AcceptedBy    *string    `json:"accepted_by,omitempty"`
	ClaimedAt     *time.Time `json:"claimed_at,omitempty"`
	ClaimedBy     *string    `json:"claimed_by,omitempty"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
	ClosedBy      *string    `json:"closed_by,omitempty"`
	DodgedBy      *string    `json:"dodged_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// HistoryEntry is one audit-trail record.
type HistoryEntry struct {
	ID         string         `json:"id"`
	ActorType  string         `json:"actor_type"`
	ActorID    *string        `json:"actor_id,omitempty"`
	ChangeType string         `json:"change_type"`
	OldValue   map[string]any `json:"old_value,omitempty"`
	NewValue   map[string]any `json:"new_value,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
