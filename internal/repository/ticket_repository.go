package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/wager-arbiter/internal/domain"
)

// TicketRepository encapsulates ticket persistence. Every transition method
// is a single conditional UPDATE guarded on the current state; a guard miss
// surfaces as pgx.ErrNoRows so callers can classify the race after re-reading.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// GetByChannel is the secondary lookup used by interaction dispatch when
	// the primary id is not yet known to the caller.
	GetByChannel(ctx context.Context, guildID, channelID string, statuses []domain.TicketStatus) (*domain.Ticket, error)
	ListOpenByGuild(ctx context.Context, guildID string) ([]domain.Ticket, error)
	ListGuildsWithOpen(ctx context.Context) ([]string, error)

	Accept(ctx context.Context, id, actorID string) (*domain.Ticket, error)
	Claim(ctx context.Context, id, actorID string) (*domain.Ticket, error)
	Close(ctx context.Context, id string, closedBy *string) (*domain.Ticket, error)
	CloseUnaccepted(ctx context.Context, id string) (*domain.Ticket, error)
	MarkDodge(ctx context.Context, id, dodgerID string) (*domain.Ticket, error)
	Extend(ctx context.Context, id string) (*domain.Ticket, error)
	SetInactivityWarning(ctx context.Context, id string, at time.Time) (*domain.Ticket, error)
}

const ticketColumns = `id, guild_id, channel_id, category_id, kind, challenger_ids, challenged_ids, status,
           accepted_at, accepted_by, claimed_at, claimed_by, closed_at, closed_by, dodged_by,
           last_inactivity_warning_at, last_extension_at, created_at, updated_at`

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (guild_id, channel_id, category_id, kind, challenger_ids, challenged_ids, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.GuildID,
		ticket.ChannelID,
		ticket.CategoryID,
		ticket.Kind,
		ticket.ChallengerIDs,
		ticket.ChallengedIDs,
		ticket.Status,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByChannel(ctx context.Context, guildID, channelID string, statuses []domain.TicketStatus) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + `
        FROM tickets WHERE guild_id=$1 AND channel_id=$2 AND status=ANY($3)
        ORDER BY created_at DESC LIMIT 1`
	return r.fetchSingle(ctx, query, guildID, channelID, statusStrings(statuses))
}

func (r *ticketRepository) ListOpenByGuild(ctx context.Context, guildID string) ([]domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + `
        FROM tickets WHERE guild_id=$1 AND status=ANY($2) ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, guildID, statusStrings(domain.OpenStatuses()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListGuildsWithOpen(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT guild_id FROM tickets WHERE status=ANY($1)`
	rows, err := r.pool.Query(ctx, query, statusStrings(domain.OpenStatuses()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var guilds []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		guilds = append(guilds, id)
	}
	return guilds, rows.Err()
}

// Accept commits OPEN_UNACCEPTED -> OPEN_ACCEPTED at most once.
func (r *ticketRepository) Accept(ctx context.Context, id, actorID string) (*domain.Ticket, error) {
	const query = `
        UPDATE tickets SET status=$3, accepted_at=NOW(), accepted_by=$2, updated_at=NOW()
        WHERE id=$1 AND status=$4 AND accepted_by IS NULL
        RETURNING ` + ticketColumns
	return r.fetchSingle(ctx, query, id, actorID, domain.TicketStatusOpenAccepted, domain.TicketStatusOpenUnaccepted)
}

// Claim grants exclusive resolution authority to one actor.
func (r *ticketRepository) Claim(ctx context.Context, id, actorID string) (*domain.Ticket, error) {
	const query = `
        UPDATE tickets SET claimed_at=NOW(), claimed_by=$2, updated_at=NOW()
        WHERE id=$1 AND status=$3 AND claimed_by IS NULL
        RETURNING ` + ticketColumns
	return r.fetchSingle(ctx, query, id, actorID, domain.TicketStatusOpenAccepted)
}

// Close commits OPEN_ACCEPTED -> CLOSED.
func (r *ticketRepository) Close(ctx context.Context, id string, closedBy *string) (*domain.Ticket, error) {
	const query = `
        UPDATE tickets SET status=$3, closed_at=NOW(), closed_by=$2, updated_at=NOW()
        WHERE id=$1 AND status=$4
        RETURNING ` + ticketColumns
	return r.fetchSingle(ctx, query, id, closedBy, domain.TicketStatusClosed, domain.TicketStatusOpenAccepted)
}

// CloseUnaccepted commits OPEN_UNACCEPTED -> CLOSED (no penalty path).
func (r *ticketRepository) CloseUnaccepted(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `
        UPDATE tickets SET status=$2, closed_at=NOW(), updated_at=NOW()
        WHERE id=$1 AND status=$3
        RETURNING ` + ticketColumns
	return r.fetchSingle(ctx, query, id, domain.TicketStatusClosed, domain.TicketStatusOpenUnaccepted)
}

// MarkDodge commits either open state -> DODGE.
func (r *ticketRepository) MarkDodge(ctx context.Context, id, dodgerID string) (*domain.Ticket, error) {
	const query = `
        UPDATE tickets SET status=$3, dodged_by=$2, closed_at=NOW(), updated_at=NOW()
        WHERE id=$1 AND status=ANY($4)
        RETURNING ` + ticketColumns
	return r.fetchSingle(ctx, query, id, dodgerID, domain.TicketStatusDodge, statusStrings(domain.OpenStatuses()))
}

// Extend resets the escalation reference and clears the warning marker; valid
// only while accepted and non-terminal.
func (r *ticketRepository) Extend(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `
        UPDATE tickets SET last_extension_at=NOW(), last_inactivity_warning_at=NULL, updated_at=NOW()
        WHERE id=$1 AND status=$2
        RETURNING ` + ticketColumns
	return r.fetchSingle(ctx, query, id, domain.TicketStatusOpenAccepted)
}

// SetInactivityWarning records the warning instant exactly once.
func (r *ticketRepository) SetInactivityWarning(ctx context.Context, id string, at time.Time) (*domain.Ticket, error) {
	const query = `
        UPDATE tickets SET last_inactivity_warning_at=$2, updated_at=NOW()
        WHERE id=$1 AND status=$3 AND last_inactivity_warning_at IS NULL
        RETURNING ` + ticketColumns
	return r.fetchSingle(ctx, query, id, at, domain.TicketStatusOpenAccepted)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&ticket.ID,
		&ticket.GuildID,
		&ticket.ChannelID,
		&ticket.CategoryID,
		&ticket.Kind,
		&ticket.ChallengerIDs,
		&ticket.ChallengedIDs,
		&ticket.Status,
		&ticket.AcceptedAt,
		&ticket.AcceptedBy,
		&ticket.ClaimedAt,
		&ticket.ClaimedBy,
		&ticket.ClosedAt,
		&ticket.ClosedBy,
		&ticket.DodgedBy,
		&ticket.LastInactivityWarningAt,
		&ticket.LastExtensionAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.GuildID,
			&ticket.ChannelID,
			&ticket.CategoryID,
			&ticket.Kind,
			&ticket.ChallengerIDs,
			&ticket.ChallengedIDs,
			&ticket.Status,
			&ticket.AcceptedAt,
			&ticket.AcceptedBy,
			&ticket.ClaimedAt,
			&ticket.ClaimedBy,
			&ticket.ClosedAt,
			&ticket.ClosedBy,
			&ticket.DodgedBy,
			&ticket.LastInactivityWarningAt,
			&ticket.LastExtensionAt,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func statusStrings(statuses []domain.TicketStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
