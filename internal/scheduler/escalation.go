package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/wager-arbiter/internal/config"
	"github.com/spec-kit/wager-arbiter/internal/domain"
	"github.com/spec-kit/wager-arbiter/internal/observability"
	"github.com/spec-kit/wager-arbiter/internal/platform/chat"
	"github.com/spec-kit/wager-arbiter/internal/repository"
)

// Escalator is the slice of the lifecycle service the scheduler drives. Each
// method commits through the same guarded path as the manual operation, so a
// sweep racing a user action loses cleanly and skips the ticket.
type Escalator interface {
	CloseExpired(ctx context.Context, ticketID string) error
	WarnInactivity(ctx context.Context, ticketID string) error
	DodgeTimeout(ctx context.Context, ticketID string) error
}

// Reconciler repairs category slot counts on startup.
type Reconciler interface {
	Reconcile(ctx context.Context, guildID string) error
}

// EscalationScheduler applies time-based transitions across all open tickets
// on two cadences: a fine sweep for inactivity reminders and an hourly sweep
// for lifecycle escalation.
type EscalationScheduler struct {
	tickets    repository.TicketRepository
	escalator  Escalator
	reconciler Reconciler
	chat       chat.Client
	redis      *redis.Client
	clock      Clock
	logger     *zap.Logger
	metrics    *observability.Metrics
	lifecycle  config.LifecycleConfig
	sweeps     config.SchedulerConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEscalationScheduler constructs the scheduler.
func NewEscalationScheduler(
	tickets repository.TicketRepository,
	escalator Escalator,
	reconciler Reconciler,
	chatClient chat.Client,
	redisClient *redis.Client,
	clock Clock,
	logger *zap.Logger,
	metrics *observability.Metrics,
	lifecycle config.LifecycleConfig,
	sweeps config.SchedulerConfig,
) *EscalationScheduler {
	return &EscalationScheduler{
		tickets:    tickets,
		escalator:  escalator,
		reconciler: reconciler,
		chat:       chatClient,
		redis:      redisClient,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
		lifecycle:  lifecycle,
		sweeps:     sweeps,
	}
}

// Start reconciles slot counts, then launches both sweep loops.
func (s *EscalationScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.reconciler != nil {
		guilds, err := s.tickets.ListGuildsWithOpen(ctx)
		if err != nil {
			s.logger.Warn("startup guild listing failed", zap.Error(err))
		}
		for _, guildID := range guilds {
			if err := s.reconciler.Reconcile(ctx, guildID); err != nil {
				s.logger.Warn("slot reconciliation failed",
					zap.String("guild_id", guildID), zap.Error(err))
			}
		}
	}

	s.wg.Add(2)
	go s.loop(ctx, s.sweeps.FineSweepInterval, s.FineSweep)
	go s.loop(ctx, s.sweeps.EscalationSweepInterval, s.EscalationSweep)
	s.logger.Info("escalation scheduler started",
		zap.Duration("fine_interval", s.sweeps.FineSweepInterval),
		zap.Duration("escalation_interval", s.sweeps.EscalationSweepInterval))
}

// Stop cancels the loops and waits for them to drain.
func (s *EscalationScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *EscalationScheduler) loop(ctx context.Context, interval time.Duration, sweep func(context.Context)) {
	defer s.wg.Done()
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C():
			sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// FineSweep posts a generic activity reminder on any open ticket channel that
// has not been reminded recently. Throttling lives in Redis with a TTL, so
// reminder state survives restarts and expires on its own.
func (s *EscalationScheduler) FineSweep(ctx context.Context) {
	reminded := 0
	s.forEachOpenTicket(ctx, "fine", func(t *domain.Ticket) error {
		throttleKey := fmt.Sprintf("wager:reminder:%s", t.ChannelID)
		if s.redis != nil {
			set, err := s.redis.SetNX(ctx, throttleKey, s.clock.Now().Unix(), s.lifecycle.ReminderThrottle).Result()
			if err != nil {
				return err
			}
			if !set {
				return nil // reminded within the throttle window
			}
		}
		_, err := s.chat.SendMessage(ctx, t.ChannelID, chat.Message{
			Content: "This challenge is still open. Post an update or it will be escalated.",
		})
		if err != nil {
			return err
		}
		reminded++
		return nil
	})
	s.metrics.RecordSweep("fine", reminded)
}

// EscalationSweep walks every non-terminal ticket per guild and applies the
// time rules: close stale unaccepted, warn then dodge stale accepted. All
// commits use the guarded paths, so a concurrent manual action wins at most
// once and the sweep simply skips the loser.
func (s *EscalationScheduler) EscalationSweep(ctx context.Context) {
	escalated := 0
	now := s.clock.Now()
	s.forEachOpenTicket(ctx, "escalation", func(t *domain.Ticket) error {
		switch t.Status {
		case domain.TicketStatusOpenUnaccepted:
			if now.Sub(t.CreatedAt) >= s.lifecycle.UnacceptedCloseAfter {
				if err := s.escalator.CloseExpired(ctx, t.ID); err != nil {
					return err
				}
				escalated++
			}
		case domain.TicketStatusOpenAccepted:
			elapsed := now.Sub(t.EscalationReference())
			if elapsed >= s.lifecycle.InactivityDodgeAfter {
				if err := s.escalator.DodgeTimeout(ctx, t.ID); err != nil {
					return err
				}
				escalated++
				return nil
			}
			if elapsed >= s.lifecycle.InactivityWarnAfter && t.LastInactivityWarningAt == nil {
				if err := s.escalator.WarnInactivity(ctx, t.ID); err != nil {
					return err
				}
				escalated++
			}
		}
		return nil
	})
	s.metrics.RecordSweep("escalation", escalated)
}

// forEachOpenTicket iterates all guilds' open tickets, logging per-ticket
// failures without aborting the remainder of the sweep.
func (s *EscalationScheduler) forEachOpenTicket(ctx context.Context, sweep string, fn func(*domain.Ticket) error) {
	guilds, err := s.tickets.ListGuildsWithOpen(ctx)
	if err != nil {
		s.logger.Error("sweep guild listing failed", zap.String("sweep", sweep), zap.Error(err))
		return
	}
	for _, guildID := range guilds {
		tickets, err := s.tickets.ListOpenByGuild(ctx, guildID)
		if err != nil {
			s.logger.Error("sweep ticket listing failed",
				zap.String("sweep", sweep), zap.String("guild_id", guildID), zap.Error(err))
			continue
		}
		for i := range tickets {
			if ctx.Err() != nil {
				return
			}
			if err := fn(&tickets[i]); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn("sweep ticket failed",
					zap.String("sweep", sweep),
					zap.String("ticket_id", tickets[i].ID),
					zap.Error(err))
			}
		}
	}
}
