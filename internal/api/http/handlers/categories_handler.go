package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/wager-arbiter/internal/domain"
	"github.com/spec-kit/wager-arbiter/internal/repository"
	"github.com/spec-kit/wager-arbiter/internal/service"
	apperrors "github.com/spec-kit/wager-arbiter/pkg/util"
)

// CategoriesHandler administers the category slot pool.
type CategoriesHandler struct {
	categories repository.CategoryRepository
	allocator  *service.AllocationService
}

// NewCategoriesHandler constructs handler.
func NewCategoriesHandler(categories repository.CategoryRepository, allocator *service.AllocationService) *CategoriesHandler {
	return &CategoriesHandler{categories: categories, allocator: allocator}
}

type categoryUpsertRequest struct {
	CategoryID string `json:"category_id"`
	Kind       string `json:"kind"`
	Region     string `json:"region,omitempty"`
	Position   int    `json:"position"`
	Capacity   int    `json:"capacity,omitempty"`
}

// Upsert PUT /guilds/:guildId/categories.
func (h *CategoriesHandler) Upsert(c *fiber.Ctx) error {
	var req categoryUpsertRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.CategoryID == "" {
		return apperrors.NewValidationError("category_id required", nil)
	}
	capacity := req.Capacity
	if capacity <= 0 || capacity > domain.CategoryCapacity {
		capacity = domain.CategoryCapacity
	}
	slot := &domain.CategorySlot{
		CategoryID: req.CategoryID,
		GuildID:    c.Params("guildId"),
		Kind:       domain.TicketKind(strings.ToUpper(req.Kind)),
		Region:     req.Region,
		Position:   req.Position,
		Capacity:   capacity,
	}
	if err := h.categories.Upsert(c.UserContext(), slot); err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": categoryResponse(slot)})
}

// List GET /guilds/:guildId/categories.
func (h *CategoriesHandler) List(c *fiber.Ctx) error {
	slots, err := h.categories.ListByGuild(c.UserContext(), c.Params("guildId"))
	if err != nil {
		return apperrors.MapError(err)
	}
	items := make([]fiber.Map, 0, len(slots))
	for i := range slots {
		items = append(items, categoryResponse(&slots[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Reconcile POST /guilds/:guildId/categories/reconcile. Re-counts live
// channels per category and repairs drifted slot counters.
func (h *CategoriesHandler) Reconcile(c *fiber.Ctx) error {
	if err := h.allocator.Reconcile(c.UserContext(), c.Params("guildId")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": "reconciled"}})
}

func categoryResponse(slot *domain.CategorySlot) fiber.Map {
	return fiber.Map{
		"category_id":   slot.CategoryID,
		"guild_id":      slot.GuildID,
		"kind":          slot.Kind,
		"region":        slot.Region,
		"position":      slot.Position,
		"channel_count": slot.ChannelCount,
		"capacity":      slot.Capacity,
	}
}
