package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/wager-arbiter/internal/domain"
	"github.com/spec-kit/wager-arbiter/internal/platform/chat"
	"github.com/spec-kit/wager-arbiter/internal/repository"
	apperrors "github.com/spec-kit/wager-arbiter/pkg/util"
)

// RankService derives tiers from cumulative wins and reconciles external role
// assignment. Role state is never source of truth: both sync operations are
// full recomputations from (wins, configuration) and are safe to re-run.
type RankService struct {
	profiles repository.ProfileRepository
	tiers    repository.TierRepository
	chat     chat.Client
	redis    *redis.Client
	logger   *zap.Logger
}

// NewRankService constructs the rank engine.
func NewRankService(profiles repository.ProfileRepository, tiers repository.TierRepository, chatClient chat.Client, redisClient *redis.Client, logger *zap.Logger) *RankService {
	return &RankService{
		profiles: profiles,
		tiers:    tiers,
		chat:     chatClient,
		redis:    redisClient,
		logger:   logger,
	}
}

func leaderboardKey(guildID string) string {
	return fmt.Sprintf("wager:leaderboard:%s", guildID)
}

// TierForWins resolves the tier for a win count under the guild's ladder.
// Returns nil below the lowest threshold.
func (s *RankService) TierForWins(ctx context.Context, guildID string, wins int) (*domain.Tier, error) {
	cfg, err := s.tiers.GetByGuild(ctx, guildID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return cfg.TierFor(wins), nil
}

// RecordResult applies a committed result to every participant profile and
// refreshes roles for the winners. Exposed to the gateway for administrative
// results as well as invoked internally after decideWinner.
func (s *RankService) RecordResult(ctx context.Context, guildID string, winnerIDs, loserIDs []string) error {
	for _, userID := range winnerIDs {
		profile, err := s.profiles.ApplyWin(ctx, guildID, userID)
		if err != nil {
			return apperrors.MapError(err)
		}
		s.updateLeaderboard(ctx, guildID, userID, profile.Wins)
		s.SyncParticipantTier(ctx, guildID, userID, profile.Wins)
	}
	for _, userID := range loserIDs {
		if _, err := s.profiles.ApplyLoss(ctx, guildID, userID); err != nil {
			return apperrors.MapError(err)
		}
	}
	s.SyncTopN(ctx, guildID)
	return nil
}

// SyncParticipantTier computes the target tier and reconciles the member's
// role set: every other configured tier role is removed, the target added if
// absent. Idempotent; failures are logged, never retried synchronously.
func (s *RankService) SyncParticipantTier(ctx context.Context, guildID, userID string, wins int) {
	cfg, err := s.tiers.GetByGuild(ctx, guildID)
	if err != nil {
		s.logger.Warn("tier config load failed", zap.String("guild_id", guildID), zap.Error(err))
		return
	}
	if len(cfg.Tiers) == 0 {
		return
	}

	member, err := s.chat.GuildMember(ctx, guildID, userID)
	if err != nil {
		s.logger.Warn("member lookup failed",
			zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Error(err))
		return
	}

	target := cfg.TierFor(wins)
	held := make(map[string]struct{}, len(member.RoleIDs))
	for _, roleID := range member.RoleIDs {
		held[roleID] = struct{}{}
	}

	for _, roleID := range cfg.RoleIDs() {
		if target != nil && roleID == target.RoleID {
			continue
		}
		if _, has := held[roleID]; !has {
			continue
		}
		if err := s.chat.RemoveMemberRole(ctx, guildID, userID, roleID); err != nil {
			s.logger.Warn("tier role removal failed",
				zap.String("user_id", userID), zap.String("role_id", roleID), zap.Error(err))
		}
	}

	if target == nil {
		return
	}
	if _, has := held[target.RoleID]; has {
		return
	}
	if err := s.chat.AddMemberRole(ctx, guildID, userID, target.RoleID); err != nil {
		s.logger.Warn("tier role grant failed",
			zap.String("user_id", userID),
			zap.String("role_id", target.RoleID),
			zap.String("tier", target.Name),
			zap.Error(err))
	}
}

// SyncTopN recomputes the top-N member set by wins and makes the top role
// match it exactly: full reassignment each call, not incremental.
func (s *RankService) SyncTopN(ctx context.Context, guildID string) {
	cfg, err := s.tiers.GetByGuild(ctx, guildID)
	if err != nil || cfg.TopRoleID == "" {
		return
	}

	top, err := s.topMembers(ctx, guildID, cfg.TopN)
	if err != nil {
		s.logger.Warn("leaderboard query failed", zap.String("guild_id", guildID), zap.Error(err))
		return
	}
	wanted := make(map[string]struct{}, len(top))
	for _, userID := range top {
		wanted[userID] = struct{}{}
	}

	holders, err := s.chat.ListMembersWithRole(ctx, guildID, cfg.TopRoleID)
	if err != nil {
		s.logger.Warn("top role holder query failed", zap.String("guild_id", guildID), zap.Error(err))
		return
	}

	holding := make(map[string]struct{}, len(holders))
	for _, member := range holders {
		holding[member.UserID] = struct{}{}
		if _, keep := wanted[member.UserID]; keep {
			continue
		}
		if err := s.chat.RemoveMemberRole(ctx, guildID, member.UserID, cfg.TopRoleID); err != nil {
			s.logger.Warn("top role removal failed",
				zap.String("user_id", member.UserID), zap.Error(err))
		}
	}
	for _, userID := range top {
		if _, has := holding[userID]; has {
			continue
		}
		if err := s.chat.AddMemberRole(ctx, guildID, userID, cfg.TopRoleID); err != nil {
			if errors.Is(err, chat.ErrNotFound) {
				continue // member left the guild; skip
			}
			s.logger.Warn("top role grant failed",
				zap.String("user_id", userID), zap.Error(err))
		}
	}
}

// Leaderboard returns the guild ranking, preferring the Redis index and
// falling back to postgres when the index is cold.
func (s *RankService) Leaderboard(ctx context.Context, guildID string, limit int) ([]domain.Profile, error) {
	if limit <= 0 {
		limit = domain.DefaultTopN
	}
	profiles, err := s.profiles.TopByWins(ctx, guildID, limit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return profiles, nil
}

// AdminSetWins overwrites a profile win count and resynchronizes tier roles
// and the leaderboard index. Administrative escape hatch only; normal play
// reaches profiles exclusively through RecordResult.
func (s *RankService) AdminSetWins(ctx context.Context, guildID, userID string, wins int) (*domain.Profile, error) {
	if wins < 0 {
		return nil, apperrors.NewValidationError("wins cannot be negative", nil)
	}
	if err := s.profiles.Ensure(ctx, guildID, userID); err != nil {
		return nil, apperrors.MapError(err)
	}
	profile, err := s.profiles.OverrideWins(ctx, guildID, userID, wins)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.updateLeaderboard(ctx, guildID, userID, profile.Wins)
	s.SyncParticipantTier(ctx, guildID, userID, profile.Wins)
	s.SyncTopN(ctx, guildID)
	return profile, nil
}

func (s *RankService) topMembers(ctx context.Context, guildID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = domain.DefaultTopN
	}
	if s.redis != nil {
		members, err := s.redis.ZRevRange(ctx, leaderboardKey(guildID), 0, int64(limit-1)).Result()
		if err == nil && len(members) > 0 {
			return members, nil
		}
	}
	profiles, err := s.profiles.TopByWins(ctx, guildID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, p.UserID)
	}
	return out, nil
}

func (s *RankService) updateLeaderboard(ctx context.Context, guildID, userID string, wins int) {
	if s.redis == nil {
		return
	}
	err := s.redis.ZAdd(ctx, leaderboardKey(guildID), redis.Z{
		Score:  float64(wins),
		Member: userID,
	}).Err()
	if err != nil {
		s.logger.Warn("leaderboard update failed",
			zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Error(err))
	}
}
