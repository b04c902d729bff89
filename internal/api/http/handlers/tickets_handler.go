package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/wager-arbiter/internal/api/dto"
	"github.com/spec-kit/wager-arbiter/internal/auth"
	"github.com/spec-kit/wager-arbiter/internal/domain"
	"github.com/spec-kit/wager-arbiter/internal/service"
	apperrors "github.com/spec-kit/wager-arbiter/pkg/util"
)

// TicketsHandler covers ticket lifecycle endpoints. Creation comes from the
// gateway; claim, decide, extend and dodge are also reachable by staff over
// HTTP using their linked platform id as the actor.
type TicketsHandler struct {
	lifecycle *service.LifecycleService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(lifecycle *service.LifecycleService) *TicketsHandler {
	return &TicketsHandler{lifecycle: lifecycle}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.lifecycle.Create(c.UserContext(), service.TicketCreateInput{
		GuildID:       req.GuildID,
		Kind:          domain.TicketKind(strings.ToUpper(req.Kind)),
		ChallengerIDs: req.ChallengerIDs,
		ChallengedIDs: req.ChallengedIDs,
		Region:        req.Region,
		CategoryHint:  req.CategoryHint,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.lifecycle.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// GetHistory GET /tickets/:id/history.
func (h *TicketsHandler) GetHistory(c *fiber.Ctx) error {
	limit := parseInt(c.Query("limit"), 50)
	offset := parseInt(c.Query("offset"), 0)
	entries, err := h.lifecycle.History(c.UserContext(), c.Params("id"), limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.HistoryEntry, 0, len(entries))
	for i := range entries {
		items = append(items, historyEntry(&entries[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// ListOpen GET /guilds/:guildId/tickets.
func (h *TicketsHandler) ListOpen(c *fiber.Ctx) error {
	tickets, err := h.lifecycle.ListOpenTickets(c.UserContext(), c.Params("guildId"))
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Accept POST /tickets/:id/accept. Gateway-relayed acceptance on behalf of
// a challenged participant.
func (h *TicketsHandler) Accept(c *fiber.Ctx) error {
	var req dto.AcceptRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.UserID == "" {
		return apperrors.NewValidationError("user_id required", nil)
	}
	ticket, err := h.lifecycle.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if side, member := ticket.SideOf(req.UserID); !member || side != domain.SideChallenged {
		return apperrors.NewForbidden("only the challenged side may accept")
	}
	updated, err := h.lifecycle.Accept(c.UserContext(), ticket.ID, req.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(updated)})
}

// Claim POST /tickets/:id/claim.
func (h *TicketsHandler) Claim(c *fiber.Ctx) error {
	actorID, err := staffActorID(c)
	if err != nil {
		return err
	}
	ticket, err := h.lifecycle.Claim(c.UserContext(), c.Params("id"), actorID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Decide POST /tickets/:id/decide.
func (h *TicketsHandler) Decide(c *fiber.Ctx) error {
	actorID, err := staffActorID(c)
	if err != nil {
		return err
	}
	var req dto.DecideRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.lifecycle.DecideWinner(c.UserContext(), c.Params("id"),
		domain.TicketSide(strings.ToLower(req.WinningSide)), actorID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Extend POST /tickets/:id/extend.
func (h *TicketsHandler) Extend(c *fiber.Ctx) error {
	actorID, err := staffActorID(c)
	if err != nil {
		return err
	}
	ticket, err := h.lifecycle.Extend(c.UserContext(), c.Params("id"), actorID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Dodge POST /tickets/:id/dodge. Staff attribute the dodge to a participant.
func (h *TicketsHandler) Dodge(c *fiber.Ctx) error {
	if _, err := staffActorID(c); err != nil {
		return err
	}
	var req dto.DodgeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.DodgerID == "" {
		return apperrors.NewValidationError("dodger_id required", nil)
	}
	ticket, err := h.lifecycle.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if !ticket.HasParticipant(req.DodgerID) {
		return apperrors.NewValidationError("dodger is not a participant", map[string]any{"user_id": req.DodgerID})
	}
	updated, err := h.lifecycle.MarkDodge(c.UserContext(), ticket.ID, req.DodgerID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(updated)})
}

// staffActorID resolves the acting staff principal to their chat-platform
// user id, which is the actor identity recorded on tickets.
func staffActorID(c *fiber.Ctx) (string, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Staff == nil {
		return "", apperrors.NewUnauthorized("staff token required")
	}
	if principal.Staff.PlatformID == nil || *principal.Staff.PlatformID == "" {
		return "", apperrors.NewForbidden("staff account has no linked platform id")
	}
	return *principal.Staff.PlatformID, nil
}

func ticketSummary(t *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:            t.ID,
		GuildID:       t.GuildID,
		ChannelID:     t.ChannelID,
		CategoryID:    t.CategoryID,
		Kind:          string(t.Kind),
		Status:        string(t.Status),
		ChallengerIDs: t.ChallengerIDs,
		ChallengedIDs: t.ChallengedIDs,
		AcceptedAt:    t.AcceptedAt,
		AcceptedBy:    t.AcceptedBy,
		ClaimedAt:     t.ClaimedAt,
		ClaimedBy:     t.ClaimedBy,
		ClosedAt:      t.ClosedAt,
		ClosedBy:      t.ClosedBy,
		DodgedBy:      t.DodgedBy,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func historyEntry(e *domain.TicketHistory) dto.HistoryEntry {
	return dto.HistoryEntry{
		ID:         e.ID,
		ActorType:  string(e.ActorType),
		ActorID:    e.ActorID,
		ChangeType: string(e.ChangeType),
		OldValue:   e.OldValue,
		NewValue:   e.NewValue,
		CreatedAt:  e.CreatedAt,
	}
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}
