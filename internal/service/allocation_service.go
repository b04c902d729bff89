package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/wager-arbiter/internal/domain"
	"github.com/spec-kit/wager-arbiter/internal/platform/chat"
	"github.com/spec-kit/wager-arbiter/internal/repository"
	apperrors "github.com/spec-kit/wager-arbiter/pkg/util"
)

// AllocationService selects a capacity-bounded category for new ticket
// channels and keeps the recorded counts honest. The capacity check and the
// platform-side channel creation are not transactional against each other;
// simultaneous creations can briefly overshoot on the platform, which the
// conditional count increment and later reconciliation keep bounded.
type AllocationService struct {
	categories   repository.CategoryRepository
	chat         chat.Client
	guildCeiling int
	logger       *zap.Logger
}

// NewAllocationService constructs the allocator.
func NewAllocationService(categories repository.CategoryRepository, chatClient chat.Client, guildCeiling int, logger *zap.Logger) *AllocationService {
	return &AllocationService{
		categories:   categories,
		chat:         chatClient,
		guildCeiling: guildCeiling,
		logger:       logger,
	}
}

// Allocate returns the first slot with room, scanning in priority order.
// categoryHint, when present and valid for the scope, is tried first.
func (s *AllocationService) Allocate(ctx context.Context, guildID string, kind domain.TicketKind, region, categoryHint string) (*domain.CategorySlot, error) {
	if s.guildCeiling > 0 {
		total, err := s.chat.GuildChannelCount(ctx, guildID)
		if err != nil {
			return nil, apperrors.NewExternalUnavailable("chat platform", err)
		}
		if total >= s.guildCeiling {
			return nil, apperrors.NewCapacityExceeded("server channel limit reached", map[string]any{
				"guild_id": guildID,
				"ceiling":  s.guildCeiling,
			})
		}
	}

	slots, err := s.categories.ListByScope(ctx, guildID, kind, region)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if len(slots) == 0 {
		return nil, apperrors.NewCapacityExceeded("no categories configured", map[string]any{
			"guild_id": guildID,
			"kind":     kind,
			"region":   region,
		})
	}

	ordered := slots
	if categoryHint != "" {
		ordered = hintFirst(slots, categoryHint)
	}

	for i := range ordered {
		slot, err := s.categories.TryAcquire(ctx, ordered[i].CategoryID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue // full, try the next slot
			}
			return nil, apperrors.MapError(err)
		}
		return slot, nil
	}

	return nil, apperrors.NewCapacityExceeded("all categories full", map[string]any{
		"guild_id": guildID,
		"kind":     kind,
		"region":   region,
	})
}

// Release decrements the slot count after channel deletion. Best-effort: a
// missed release is repaired by the next reconciliation pass.
func (s *AllocationService) Release(ctx context.Context, categoryID string) {
	if err := s.categories.Release(ctx, categoryID); err != nil {
		s.logger.Warn("category release failed",
			zap.String("category_id", categoryID), zap.Error(err))
	}
}

// Reconcile re-queries actual channel membership for every slot of a guild
// and overwrites the recorded counts, tolerating drift from missed releases.
func (s *AllocationService) Reconcile(ctx context.Context, guildID string) error {
	slots, err := s.categories.ListByGuild(ctx, guildID)
	if err != nil {
		return err
	}
	for i := range slots {
		actual, err := s.chat.CategoryChannelCount(ctx, slots[i].CategoryID)
		if err != nil {
			s.logger.Warn("category count query failed",
				zap.String("category_id", slots[i].CategoryID), zap.Error(err))
			continue
		}
		if actual == slots[i].ChannelCount {
			continue
		}
		if err := s.categories.SetCount(ctx, slots[i].CategoryID, actual); err != nil {
			s.logger.Warn("category count update failed",
				zap.String("category_id", slots[i].CategoryID), zap.Error(err))
			continue
		}
		s.logger.Info("category count reconciled",
			zap.String("category_id", slots[i].CategoryID),
			zap.Int("recorded", slots[i].ChannelCount),
			zap.Int("actual", actual))
	}
	return nil
}

func hintFirst(slots []domain.CategorySlot, hint string) []domain.CategorySlot {
	for i := range slots {
		if slots[i].CategoryID == hint {
			reordered := make([]domain.CategorySlot, 0, len(slots))
			reordered = append(reordered, slots[i])
			reordered = append(reordered, slots[:i]...)
			reordered = append(reordered, slots[i+1:]...)
			return reordered
		}
	}
	return slots
}
