package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/wager-arbiter/internal/api/dto"
	"github.com/spec-kit/wager-arbiter/internal/domain"
	"github.com/spec-kit/wager-arbiter/internal/service"
	apperrors "github.com/spec-kit/wager-arbiter/pkg/util"
)

// InteractionsHandler receives button presses relayed by the bot gateway and
// routes them onto lifecycle operations. Authorization happens here: the
// custom id says what, the actor fields say who, and the verb decides which
// of participant or staff standing is required.
type InteractionsHandler struct {
	lifecycle    *service.LifecycleService
	auth         *service.AuthService
	staffRoleIDs map[string]struct{}
}

// NewInteractionsHandler constructs handler.
func NewInteractionsHandler(lifecycle *service.LifecycleService, authService *service.AuthService, staffRoleIDs []string) *InteractionsHandler {
	roleSet := make(map[string]struct{}, len(staffRoleIDs))
	for _, id := range staffRoleIDs {
		roleSet[id] = struct{}{}
	}
	return &InteractionsHandler{lifecycle: lifecycle, auth: authService, staffRoleIDs: roleSet}
}

// Handle POST /interactions.
func (h *InteractionsHandler) Handle(c *fiber.Ctx) error {
	var req dto.InteractionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.ActorID == "" {
		return apperrors.NewValidationError("actor_id required", nil)
	}

	verb, ticketID, extra, ok := service.ParseCustomID(req.CustomID)
	if !ok {
		return apperrors.NewValidationError("unrecognized custom_id", map[string]any{"custom_id": req.CustomID})
	}

	ticket, err := h.lifecycle.ResolveTicket(c.UserContext(), ticketID, req.GuildID, req.ChannelID)
	if err != nil {
		return err
	}

	var updated *domain.Ticket
	switch verb {
	case "accept":
		if side, member := ticket.SideOf(req.ActorID); !member || side != domain.SideChallenged {
			return apperrors.NewForbidden("only the challenged side can accept")
		}
		updated, err = h.lifecycle.Accept(c.UserContext(), ticket.ID, req.ActorID)
	case "dodge":
		if !ticket.HasParticipant(req.ActorID) {
			return apperrors.NewForbidden("only a participant can dodge")
		}
		updated, err = h.lifecycle.MarkDodge(c.UserContext(), ticket.ID, req.ActorID)
	case "claim":
		if !h.isStaff(c, req) {
			return apperrors.NewForbidden("staff standing required")
		}
		updated, err = h.lifecycle.Claim(c.UserContext(), ticket.ID, req.ActorID)
	case "decide":
		if !h.isStaff(c, req) {
			return apperrors.NewForbidden("staff standing required")
		}
		updated, err = h.lifecycle.DecideWinner(c.UserContext(), ticket.ID, domain.TicketSide(extra), req.ActorID)
	case "extend":
		if !ticket.HasParticipant(req.ActorID) && !h.isStaff(c, req) {
			return apperrors.NewForbidden("participant or staff standing required")
		}
		updated, err = h.lifecycle.Extend(c.UserContext(), ticket.ID, req.ActorID)
	default:
		return apperrors.NewValidationError("unknown interaction verb", map[string]any{"verb": verb})
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(updated)})
}

// isStaff grants staff standing when the actor holds a configured staff role
// in the guild, or has a linked staff account.
func (h *InteractionsHandler) isStaff(c *fiber.Ctx, req dto.InteractionRequest) bool {
	for _, roleID := range req.ActorRoleIDs {
		if _, ok := h.staffRoleIDs[roleID]; ok {
			return true
		}
	}
	if h.auth != nil {
		if _, err := h.auth.ResolvePlatformStaff(c.UserContext(), req.ActorID); err == nil {
			return true
		}
	}
	return false
}
