package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/wager-arbiter/internal/domain"
	"github.com/spec-kit/wager-arbiter/internal/platform/chat"
)

// GateService owns per-channel access control. Each lifecycle phase maps to a
// full overwrite set computed as a pure function of the ticket, so gate state
// is always re-derivable and applying a phase twice is harmless.
type GateService struct {
	chat         chat.Client
	staffRoleIDs []string
	logger       *zap.Logger
}

// NewGateService constructs the gate.
func NewGateService(chatClient chat.Client, staffRoleIDs []string, logger *zap.Logger) *GateService {
	return &GateService{chat: chatClient, staffRoleIDs: staffRoleIDs, logger: logger}
}

const participantReadMask = chat.PermViewChannel | chat.PermReadMessageHistory
const participantFullMask = participantReadMask | chat.PermSendMessages

// LockedOverwrites is the creation-time set: the guild at large sees nothing,
// participants can read but not send, staff roles have full access.
func (g *GateService) LockedOverwrites(t *domain.Ticket) []chat.Overwrite {
	overwrites := []chat.Overwrite{
		// the everyone role shares the guild id on the platform
		{TargetID: t.GuildID, TargetType: "role", Deny: chat.PermViewChannel},
	}
	for _, roleID := range g.staffRoleIDs {
		overwrites = append(overwrites, chat.Overwrite{
			TargetID: roleID, TargetType: "role", Allow: participantFullMask,
		})
	}
	for _, userID := range t.Participants() {
		overwrites = append(overwrites, chat.Overwrite{
			TargetID: userID, TargetType: "member",
			Allow: participantReadMask, Deny: chat.PermSendMessages,
		})
	}
	return overwrites
}

// AcceptedOverwrites grants send permission to all participants, both sides.
func (g *GateService) AcceptedOverwrites(t *domain.Ticket) []chat.Overwrite {
	overwrites := make([]chat.Overwrite, 0, len(t.Participants()))
	for _, userID := range t.Participants() {
		overwrites = append(overwrites, chat.Overwrite{
			TargetID: userID, TargetType: "member", Allow: participantFullMask,
		})
	}
	return overwrites
}

// ClaimedOverwrites revokes general staff access and re-grants it solely to
// the claiming actor, preventing simultaneous conflicting rulings.
func (g *GateService) ClaimedOverwrites(t *domain.Ticket, claimerID string) []chat.Overwrite {
	overwrites := make([]chat.Overwrite, 0, len(g.staffRoleIDs)+1)
	for _, roleID := range g.staffRoleIDs {
		overwrites = append(overwrites, chat.Overwrite{
			TargetID: roleID, TargetType: "role", Deny: participantFullMask,
		})
	}
	overwrites = append(overwrites, chat.Overwrite{
		TargetID: claimerID, TargetType: "member", Allow: participantFullMask,
	})
	return overwrites
}

// DodgedOverwrites reopens the channel for the remaining participants without
// restoring staff-wide access.
func (g *GateService) DodgedOverwrites(t *domain.Ticket, dodgerID string) []chat.Overwrite {
	overwrites := make([]chat.Overwrite, 0, len(t.Participants()))
	for _, userID := range t.Participants() {
		if userID == dodgerID {
			continue
		}
		overwrites = append(overwrites, chat.Overwrite{
			TargetID: userID, TargetType: "member", Allow: participantFullMask,
		})
	}
	return overwrites
}

// Apply pushes an overwrite set to the channel. Failures are reported to the
// caller, which decides whether the gate change is authoritative.
func (g *GateService) Apply(ctx context.Context, channelID string, overwrites []chat.Overwrite) error {
	if err := g.chat.ApplyOverwrites(ctx, channelID, overwrites); err != nil {
		g.logger.Warn("permission overwrite failed",
			zap.String("channel_id", channelID), zap.Error(err))
		return err
	}
	return nil
}
