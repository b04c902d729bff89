package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/wager-arbiter/internal/config"
	"github.com/spec-kit/wager-arbiter/internal/domain"
	"github.com/spec-kit/wager-arbiter/internal/events"
	"github.com/spec-kit/wager-arbiter/internal/observability"
	"github.com/spec-kit/wager-arbiter/internal/platform/chat"
	"github.com/spec-kit/wager-arbiter/internal/repository"
	"github.com/spec-kit/wager-arbiter/internal/scheduler"
	apperrors "github.com/spec-kit/wager-arbiter/pkg/util"
)

// LifecycleService owns every ticket state transition. Each public operation
// commits through a single guarded conditional update on the ticket record;
// when the guard misses, the ticket is re-read once to classify the race into
// a typed error. Side effects (gate changes, messages, rank sync, deletion)
// run strictly after the commit and never roll it back.
type LifecycleService struct {
	tickets    repository.TicketRepository
	history    repository.TicketHistoryRepository
	allocator  *AllocationService
	gate       *GateService
	rank       *RankService
	chat       chat.Client
	dispatcher events.Dispatcher
	deleter    *scheduler.DeferredDeleter
	metrics    *observability.Metrics
	logger     *zap.Logger
	windows    config.LifecycleConfig
}

// LifecycleDependencies bundles collaborators for the lifecycle service.
type LifecycleDependencies struct {
	TicketRepo  repository.TicketRepository
	HistoryRepo repository.TicketHistoryRepository
	Allocator   *AllocationService
	Gate        *GateService
	Rank        *RankService
	Chat        chat.Client
	Dispatcher  events.Dispatcher
	Deleter     *scheduler.DeferredDeleter
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Windows     config.LifecycleConfig
}

// TicketCreateInput describes a creation request from the gateway.
type TicketCreateInput struct {
	GuildID       string
	Kind          domain.TicketKind
	ChallengerIDs []string
	ChallengedIDs []string
	Region        string
	CategoryHint  string
}

// NewLifecycleService constructs the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	return &LifecycleService{
		tickets:    deps.TicketRepo,
		history:    deps.HistoryRepo,
		allocator:  deps.Allocator,
		gate:       deps.Gate,
		rank:       deps.Rank,
		chat:       deps.Chat,
		dispatcher: deps.Dispatcher,
		deleter:    deps.Deleter,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		windows:    deps.Windows,
	}
}

// Create allocates a channel slot, creates the channel already locked, and
// persists the ticket in OPEN_UNACCEPTED. Channel creation and gate
// initialization happen in one platform call so no window exists where an
// outsider can read the channel.
func (s *LifecycleService) Create(ctx context.Context, input TicketCreateInput) (*domain.Ticket, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	slot, err := s.allocator.Allocate(ctx, input.GuildID, input.Kind, input.Region, input.CategoryHint)
	if err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		GuildID:       input.GuildID,
		CategoryID:    slot.CategoryID,
		Kind:          input.Kind,
		ChallengerIDs: input.ChallengerIDs,
		ChallengedIDs: input.ChallengedIDs,
		Status:        domain.TicketStatusOpenUnaccepted,
	}

	channel, err := s.chat.CreateChannel(ctx, chat.CreateChannelParams{
		GuildID:    input.GuildID,
		ParentID:   slot.CategoryID,
		Name:       channelName(input),
		Overwrites: s.gate.LockedOverwrites(ticket),
	})
	if err != nil {
		s.allocator.Release(ctx, slot.CategoryID)
		return nil, apperrors.NewExternalUnavailable("chat platform", err)
	}
	ticket.ChannelID = channel.ID

	if err := s.tickets.Create(ctx, ticket); err != nil {
		if delErr := s.chat.DeleteChannel(ctx, channel.ID); delErr != nil {
			s.logger.Warn("orphan channel cleanup failed",
				zap.String("channel_id", channel.ID), zap.Error(delErr))
		}
		s.allocator.Release(ctx, slot.CategoryID)
		return nil, apperrors.MapError(err)
	}

	s.metrics.RecordTransition(string(ticket.Status))
	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketCreated,
		TicketID:  ticket.ID,
		GuildID:   ticket.GuildID,
		ChannelID: ticket.ChannelID,
		Actor:     gatewayActor(),
		Payload: events.TicketCreatedPayload{
			Kind:          ticket.Kind,
			ChallengerIDs: ticket.ChallengerIDs,
			ChallengedIDs: ticket.ChallengedIDs,
		},
	})
	return ticket, nil
}

// Accept commits OPEN_UNACCEPTED -> OPEN_ACCEPTED exactly once, then unlocks
// send permission for all participants.
func (s *LifecycleService) Accept(ctx context.Context, ticketID, actorID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.Accept(ctx, ticketID, actorID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.MapError(err)
		}
		current, err := s.loadForRace(ctx, ticketID)
		if err != nil {
			return nil, err
		}
		if current.AcceptedBy != nil {
			return nil, apperrors.NewAlreadyAccepted(ticketID, current.AcceptedBy)
		}
		return nil, apperrors.NewInvalidTransition(string(current.Status), "accept")
	}

	if gateErr := s.gate.Apply(ctx, ticket.ChannelID, s.gate.AcceptedOverwrites(ticket)); gateErr != nil {
		s.logger.Warn("accept gate unlock failed", zap.String("ticket_id", ticket.ID), zap.Error(gateErr))
	}

	s.metrics.RecordTransition(string(ticket.Status))
	s.recordStatus(ctx, ticket, domain.TicketStatusOpenUnaccepted, actorID, "accepted")
	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketAccepted,
		TicketID:  ticket.ID,
		GuildID:   ticket.GuildID,
		ChannelID: ticket.ChannelID,
		Actor:     userActor(actorID),
		Payload:   events.TicketAcceptedPayload{AcceptedBy: actorID},
	})
	return ticket, nil
}

// Claim grants exclusive resolution authority to one staff actor and narrows
// the gate to that actor alone.
func (s *LifecycleService) Claim(ctx context.Context, ticketID, actorID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.Claim(ctx, ticketID, actorID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.MapError(err)
		}
		current, err := s.loadForRace(ctx, ticketID)
		if err != nil {
			return nil, err
		}
		if current.ClaimedBy != nil {
			return nil, apperrors.NewAlreadyClaimed(ticketID, current.ClaimedBy)
		}
		return nil, apperrors.NewInvalidTransition(string(current.Status), "claim")
	}

	if gateErr := s.gate.Apply(ctx, ticket.ChannelID, s.gate.ClaimedOverwrites(ticket, actorID)); gateErr != nil {
		s.logger.Warn("claim gate narrowing failed", zap.String("ticket_id", ticket.ID), zap.Error(gateErr))
	}

	s.recordClaim(ctx, ticket, actorID)
	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketClaimed,
		TicketID:  ticket.ID,
		GuildID:   ticket.GuildID,
		ChannelID: ticket.ChannelID,
		Actor:     userActor(actorID),
		Payload:   events.TicketClaimedPayload{ClaimedBy: actorID},
	})
	return ticket, nil
}

// DecideWinner commits OPEN_ACCEPTED -> CLOSED, then applies result side
// effects: profile updates and rank sync for both sides, and deferred channel
// deletion. A failure past the commit is logged, never rolled back; rank and
// role state self-heal on the next recomputation.
func (s *LifecycleService) DecideWinner(ctx context.Context, ticketID string, side domain.TicketSide, decidedBy string) (*domain.Ticket, error) {
	if side != domain.SideChallenger && side != domain.SideChallenged {
		return nil, apperrors.NewValidationError("side must be challenger or challenged", nil)
	}

	// Claims are monotonic, so the pre-read holds through the commit.
	current, err := s.loadForRace(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if current.ClaimedBy != nil && *current.ClaimedBy != decidedBy {
		return nil, apperrors.NewForbidden("ticket is claimed by another staff member")
	}

	ticket, err := s.tickets.Close(ctx, ticketID, &decidedBy)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.MapError(err)
		}
		current, err := s.loadForRace(ctx, ticketID)
		if err != nil {
			return nil, err
		}
		return nil, apperrors.NewInvalidTransition(string(current.Status), "decideWinner")
	}

	winners := ticket.Side(side)
	losers := ticket.Side(side.Other())

	if rankErr := s.rank.RecordResult(ctx, ticket.GuildID, winners, losers); rankErr != nil {
		s.logger.Error("result recording failed after close",
			zap.String("ticket_id", ticket.ID), zap.Error(rankErr))
	}

	s.deleter.Schedule(ticket.ID)
	s.metrics.RecordTransition(string(ticket.Status))
	s.recordStatus(ctx, ticket, domain.TicketStatusOpenAccepted, decidedBy, "decided:"+string(side))
	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketResolved,
		TicketID:  ticket.ID,
		GuildID:   ticket.GuildID,
		ChannelID: ticket.ChannelID,
		Actor:     userActor(decidedBy),
		Payload: events.TicketResolvedPayload{
			WinningSide: side,
			WinnerIDs:   winners,
			LoserIDs:    losers,
		},
	})
	return ticket, nil
}

// MarkDodge commits either open state -> DODGE and reopens the channel for
// the remaining participants. Profiles are never mutated on a dodge.
func (s *LifecycleService) MarkDodge(ctx context.Context, ticketID, dodgerID string) (*domain.Ticket, error) {
	return s.markDodge(ctx, ticketID, dodgerID, false)
}

func (s *LifecycleService) markDodge(ctx context.Context, ticketID, dodgerID string, timeout bool) (*domain.Ticket, error) {
	ticket, err := s.tickets.MarkDodge(ctx, ticketID, dodgerID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.MapError(err)
		}
		current, err := s.loadForRace(ctx, ticketID)
		if err != nil {
			return nil, err
		}
		return nil, apperrors.NewInvalidTransition(string(current.Status), "dodge")
	}

	if gateErr := s.gate.Apply(ctx, ticket.ChannelID, s.gate.DodgedOverwrites(ticket, dodgerID)); gateErr != nil {
		s.logger.Warn("dodge gate reopen failed", zap.String("ticket_id", ticket.ID), zap.Error(gateErr))
	}

	s.metrics.RecordTransition(string(ticket.Status))
	s.recordStatus(ctx, ticket, domain.TicketStatusOpenAccepted, dodgerID, "dodged")
	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketDodged,
		TicketID:  ticket.ID,
		GuildID:   ticket.GuildID,
		ChannelID: ticket.ChannelID,
		Actor:     userActor(dodgerID),
		Payload:   events.TicketDodgedPayload{DodgedBy: dodgerID, Timeout: timeout},
	})
	return ticket, nil
}

// Extend resets the escalation reference window on an accepted ticket and
// clears any pending inactivity warning. Status does not change.
func (s *LifecycleService) Extend(ctx context.Context, ticketID, actorID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.Extend(ctx, ticketID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.MapError(err)
		}
		current, err := s.loadForRace(ctx, ticketID)
		if err != nil {
			return nil, err
		}
		return nil, apperrors.NewInvalidTransition(string(current.Status), "extend")
	}

	s.recordExtension(ctx, ticket, actorID)
	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketExtended,
		TicketID:  ticket.ID,
		GuildID:   ticket.GuildID,
		ChannelID: ticket.ChannelID,
		Actor:     userActor(actorID),
	})
	return ticket, nil
}

// CloseExpired commits the no-penalty timeout close of a stale unaccepted
// ticket. Idempotent: a ticket already moved by a concurrent actor is
// skipped silently.
func (s *LifecycleService) CloseExpired(ctx context.Context, ticketID string) error {
	ticket, err := s.tickets.CloseUnaccepted(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil // already moved; the guard did its job
		}
		return err
	}

	s.deleter.Schedule(ticket.ID)
	s.metrics.RecordTransition(string(ticket.Status))
	s.recordStatus(ctx, ticket, domain.TicketStatusOpenUnaccepted, "", "expired_unaccepted")
	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketResolved,
		TicketID:  ticket.ID,
		GuildID:   ticket.GuildID,
		ChannelID: ticket.ChannelID,
		Actor:     schedulerActor(),
		Payload:   events.TicketResolvedPayload{Timeout: true},
	})
	return nil
}

// WarnInactivity records the inactivity warning instant at most once and
// notifies the channel with an extend affordance.
func (s *LifecycleService) WarnInactivity(ctx context.Context, ticketID string) error {
	ticket, err := s.tickets.SetInactivityWarning(ctx, ticketID, time.Now())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil // already warned or already terminal
		}
		return err
	}

	deadline := ticket.EscalationReference().Add(s.windows.InactivityDodgeAfter)
	s.publishEvent(ctx, events.Event{
		Type:      events.EventInactivityWarning,
		TicketID:  ticket.ID,
		GuildID:   ticket.GuildID,
		ChannelID: ticket.ChannelID,
		Actor:     schedulerActor(),
		Payload:   events.InactivityWarningPayload{Deadline: deadline},
	})
	return nil
}

// DodgeTimeout commits the timeout dodge against the challenged side. The
// challenged side is always the penalized one, whichever side went quiet;
// for team tickets the first challenged member carries the attribution.
func (s *LifecycleService) DodgeTimeout(ctx context.Context, ticketID string) error {
	current, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}
	if current.Status.IsTerminal() || len(current.ChallengedIDs) == 0 {
		return nil
	}
	_, err = s.markDodge(ctx, ticketID, current.ChallengedIDs[0], true)
	if err != nil && apperrors.IsCode(err, "INVALID_TRANSITION") {
		return nil // lost the race to a manual action
	}
	return err
}

// DeleteTicketChannel is the deferred-deletion callback: removes the channel
// and releases the category slot. Missing channels are treated as already
// resolved.
func (s *LifecycleService) DeleteTicketChannel(ticketID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		s.logger.Warn("deferred deletion lookup failed", zap.String("ticket_id", ticketID), zap.Error(err))
		return
	}
	if err := s.chat.DeleteChannel(ctx, ticket.ChannelID); err != nil && !errors.Is(err, chat.ErrNotFound) {
		s.logger.Warn("channel deletion failed",
			zap.String("ticket_id", ticketID),
			zap.String("channel_id", ticket.ChannelID),
			zap.Error(err))
		return
	}
	if ticket.CategoryID != "" {
		s.allocator.Release(ctx, ticket.CategoryID)
	}
}

// GetTicket resolves a ticket by primary id.
func (s *LifecycleService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.loadForRace(ctx, ticketID)
}

// ResolveTicket looks a ticket up by id, falling back to the (guild, channel,
// open-status) composite key. Interaction dispatch uses the fallback during
// the window where the caller only knows the channel.
func (s *LifecycleService) ResolveTicket(ctx context.Context, ticketID, guildID, channelID string) (*domain.Ticket, error) {
	if ticketID != "" {
		ticket, err := s.tickets.GetByID(ctx, ticketID)
		if err == nil {
			return ticket, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.MapError(err)
		}
	}
	if guildID != "" && channelID != "" {
		ticket, err := s.tickets.GetByChannel(ctx, guildID, channelID, domain.OpenStatuses())
		if err == nil {
			return ticket, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.MapError(err)
		}
	}
	return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
}

// ListOpenTickets returns the guild's non-terminal tickets.
func (s *LifecycleService) ListOpenTickets(ctx context.Context, guildID string) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListOpenByGuild(ctx, guildID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// History returns the audit trail for a ticket.
func (s *LifecycleService) History(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketHistory, error) {
	if s.history == nil {
		return []domain.TicketHistory{}, nil
	}
	entries, err := s.history.ListByTicket(ctx, ticketID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

func (s *LifecycleService) loadForRace(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func validateCreateInput(input TicketCreateInput) error {
	if input.GuildID == "" {
		return apperrors.NewValidationError("guild_id required", nil)
	}
	if input.Kind != domain.TicketKind1v1 && input.Kind != domain.TicketKind2v2 {
		return apperrors.NewValidationError("unknown ticket kind", map[string]any{"kind": input.Kind})
	}
	size := input.Kind.TeamSize()
	if len(input.ChallengerIDs) != size || len(input.ChallengedIDs) != size {
		return apperrors.NewValidationError("wrong participant count for kind", map[string]any{
			"kind":     input.Kind,
			"expected": size,
		})
	}
	seen := make(map[string]struct{}, 2*size)
	for _, id := range append(append([]string{}, input.ChallengerIDs...), input.ChallengedIDs...) {
		if id == "" {
			return apperrors.NewValidationError("empty participant id", nil)
		}
		if _, dup := seen[id]; dup {
			return apperrors.NewValidationError("duplicate participant", map[string]any{"user_id": id})
		}
		seen[id] = struct{}{}
	}
	return nil
}

func channelName(input TicketCreateInput) string {
	prefix := "wager"
	if input.Kind == domain.TicketKind2v2 {
		prefix = "war"
	}
	return prefix + "-" + uuid.NewString()[:8]
}

func (s *LifecycleService) recordStatus(ctx context.Context, ticket *domain.Ticket, oldStatus domain.TicketStatus, actorID, reason string) {
	s.appendHistory(ctx, ticket.ID, actorID, domain.ChangeTypeStatus,
		map[string]any{"status": oldStatus},
		map[string]any{"status": ticket.Status, "reason": reason})
}

func (s *LifecycleService) recordClaim(ctx context.Context, ticket *domain.Ticket, actorID string) {
	s.appendHistory(ctx, ticket.ID, actorID, domain.ChangeTypeClaim,
		map[string]any{"claimed_by": nil},
		map[string]any{"claimed_by": actorID})
}

func (s *LifecycleService) recordExtension(ctx context.Context, ticket *domain.Ticket, actorID string) {
	s.appendHistory(ctx, ticket.ID, actorID, domain.ChangeTypeExtension,
		nil, map[string]any{"extended_at": ticket.LastExtensionAt})
}

func (s *LifecycleService) appendHistory(ctx context.Context, ticketID, actorID string, changeType domain.TicketChangeType, oldVal, newVal map[string]any) {
	if s.history == nil {
		return
	}
	entry := &domain.TicketHistory{
		TicketID:   ticketID,
		ActorType:  domain.SubjectTypeGateway,
		ChangeType: changeType,
		OldValue:   oldVal,
		NewValue:   newVal,
	}
	if actorID != "" {
		entry.ActorID = &actorID
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("history append failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

func (s *LifecycleService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func userActor(userID string) events.Actor {
	return events.Actor{Type: domain.SubjectTypeGateway, UserID: &userID}
}

func gatewayActor() events.Actor {
	return events.Actor{Type: domain.SubjectTypeGateway}
}

func schedulerActor() events.Actor {
	return events.Actor{Type: domain.SubjectTypeGateway}
}
