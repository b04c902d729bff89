package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/wager-arbiter/internal/api/dto"
	"github.com/spec-kit/wager-arbiter/internal/domain"
	"github.com/spec-kit/wager-arbiter/internal/repository"
	"github.com/spec-kit/wager-arbiter/internal/service"
	apperrors "github.com/spec-kit/wager-arbiter/pkg/util"
)

// RankHandler covers leaderboard reads and tier administration.
type RankHandler struct {
	rank  *service.RankService
	tiers repository.TierRepository
}

// NewRankHandler constructs handler.
func NewRankHandler(rankService *service.RankService, tiers repository.TierRepository) *RankHandler {
	return &RankHandler{rank: rankService, tiers: tiers}
}

// Leaderboard GET /guilds/:guildId/leaderboard.
func (h *RankHandler) Leaderboard(c *fiber.Ctx) error {
	limit := parseInt(c.Query("limit"), domain.DefaultTopN)
	profiles, err := h.rank.Leaderboard(c.UserContext(), c.Params("guildId"), limit)
	if err != nil {
		return err
	}
	items := make([]dto.LeaderboardEntry, 0, len(profiles))
	for i, p := range profiles {
		items = append(items, dto.LeaderboardEntry{
			Rank:          i + 1,
			UserID:        p.UserID,
			Wins:          p.Wins,
			Losses:        p.Losses,
			WinStreak:     p.WinStreak,
			PeakWinStreak: p.PeakWinStreak,
			LastResultAt:  p.LastResultAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// TierProbe GET /guilds/:guildId/tiers/:wins. Answers which tier a win
// count lands on under the guild's ladder.
func (h *RankHandler) TierProbe(c *fiber.Ctx) error {
	wins := parseInt(c.Params("wins"), -1)
	if wins < 0 {
		return apperrors.NewValidationError("wins must be a non-negative integer", nil)
	}
	tier, err := h.rank.TierForWins(c.UserContext(), c.Params("guildId"), wins)
	if err != nil {
		return err
	}
	if tier == nil {
		return c.JSON(fiber.Map{"data": nil})
	}
	return c.JSON(fiber.Map{"data": dto.TierEntry{
		Name:      tier.Name,
		Threshold: tier.Threshold,
		RoleID:    tier.RoleID,
	}})
}

// RecordResult POST /guilds/:guildId/results. Manual result entry outside
// the ticket flow, applying the same profile and role sync path.
func (h *RankHandler) RecordResult(c *fiber.Ctx) error {
	var req dto.ResultRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if len(req.WinnerIDs) == 0 || len(req.LoserIDs) == 0 {
		return apperrors.NewValidationError("winner_ids and loser_ids required", nil)
	}
	losers := make(map[string]struct{}, len(req.LoserIDs))
	for _, id := range req.LoserIDs {
		losers[id] = struct{}{}
	}
	for _, id := range req.WinnerIDs {
		if _, dup := losers[id]; dup {
			return apperrors.NewValidationError("a user cannot be on both sides", map[string]any{"user_id": id})
		}
	}
	if err := h.rank.RecordResult(c.UserContext(), c.Params("guildId"), req.WinnerIDs, req.LoserIDs); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": "recorded"}})
}

// SetWins PUT /guilds/:guildId/profiles/wins. Admin-only override.
func (h *RankHandler) SetWins(c *fiber.Ctx) error {
	var req dto.SetWinsRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.UserID == "" {
		return apperrors.NewValidationError("user_id required", nil)
	}
	profile, err := h.rank.AdminSetWins(c.UserContext(), c.Params("guildId"), req.UserID, req.Wins)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.LeaderboardEntry{
		UserID:        profile.UserID,
		Wins:          profile.Wins,
		Losses:        profile.Losses,
		WinStreak:     profile.WinStreak,
		PeakWinStreak: profile.PeakWinStreak,
		LastResultAt:  profile.LastResultAt,
	}})
}

// PutTiers PUT /guilds/:guildId/tiers. Replaces the guild ladder.
func (h *RankHandler) PutTiers(c *fiber.Ctx) error {
	var req dto.TierUpsertRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if len(req.Tiers) == 0 {
		return apperrors.NewValidationError("at least one tier required", nil)
	}
	cfg := &domain.TierConfig{
		GuildID:   c.Params("guildId"),
		TopRoleID: req.TopRole,
		TopN:      req.TopN,
	}
	for _, entry := range req.Tiers {
		if entry.Name == "" || entry.RoleID == "" || entry.Threshold < 0 {
			return apperrors.NewValidationError("each tier needs name, role_id and a non-negative threshold", nil)
		}
		cfg.Tiers = append(cfg.Tiers, domain.Tier{
			Name:      entry.Name,
			Threshold: entry.Threshold,
			RoleID:    entry.RoleID,
		})
	}
	if err := h.tiers.Put(c.UserContext(), cfg); err != nil {
		return apperrors.MapError(err)
	}
	h.rank.SyncTopN(c.UserContext(), cfg.GuildID)
	return c.JSON(fiber.Map{"data": fiber.Map{"guild_id": cfg.GuildID, "tiers": len(cfg.Tiers)}})
}

// SyncTopN POST /guilds/:guildId/ranks/sync. Forces a top-N reassignment.
func (h *RankHandler) SyncTopN(c *fiber.Ctx) error {
	h.rank.SyncTopN(c.UserContext(), c.Params("guildId"))
	return c.JSON(fiber.Map{"data": fiber.Map{"status": "synced"}})
}
