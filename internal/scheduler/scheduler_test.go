package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/wager-arbiter/internal/domain"
	"github.com/spec-kit/wager-arbiter/internal/platform/chat"
)

// listTicketRepo serves the listing calls the sweeps use; mutations are not
// exercised through it and report no rows.
type listTicketRepo struct {
	mu      sync.Mutex
	tickets []domain.Ticket
}

func (r *listTicketRepo) add(t domain.Ticket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets = append(r.tickets, t)
}

func (r *listTicketRepo) ListGuildsWithOpen(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[string]struct{}{}
	var out []string
	for _, t := range r.tickets {
		if t.Status.IsTerminal() {
			continue
		}
		if _, ok := seen[t.GuildID]; !ok {
			seen[t.GuildID] = struct{}{}
			out = append(out, t.GuildID)
		}
	}
	return out, nil
}

func (r *listTicketRepo) ListOpenByGuild(ctx context.Context, guildID string) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, t := range r.tickets {
		if t.GuildID == guildID && !t.Status.IsTerminal() {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *listTicketRepo) Create(ctx context.Context, t *domain.Ticket) error { return nil }
func (r *listTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return nil, pgx.ErrNoRows
}
func (r *listTicketRepo) GetByChannel(ctx context.Context, guildID, channelID string, statuses []domain.TicketStatus) (*domain.Ticket, error) {
	return nil, pgx.ErrNoRows
}
func (r *listTicketRepo) Accept(ctx context.Context, id, actorID string) (*domain.Ticket, error) {
	return nil, pgx.ErrNoRows
}
func (r *listTicketRepo) Claim(ctx context.Context, id, actorID string) (*domain.Ticket, error) {
	return nil, pgx.ErrNoRows
}
func (r *listTicketRepo) Close(ctx context.Context, id string, closedBy *string) (*domain.Ticket, error) {
	return nil, pgx.ErrNoRows
}
func (r *listTicketRepo) CloseUnaccepted(ctx context.Context, id string) (*domain.Ticket, error) {
	return nil, pgx.ErrNoRows
}
func (r *listTicketRepo) MarkDodge(ctx context.Context, id, dodgerID string) (*domain.Ticket, error) {
	return nil, pgx.ErrNoRows
}
func (r *listTicketRepo) Extend(ctx context.Context, id string) (*domain.Ticket, error) {
	return nil, pgx.ErrNoRows
}
func (r *listTicketRepo) SetInactivityWarning(ctx context.Context, id string, at time.Time) (*domain.Ticket, error) {
	return nil, pgx.ErrNoRows
}

// recordingEscalator records which escalation each ticket received.
type recordingEscalator struct {
	mu      sync.Mutex
	closed  []string
	warned  []string
	dodged  []string
	failFor map[string]error
}

func newRecordingEscalator() *recordingEscalator {
	return &recordingEscalator{failFor: map[string]error{}}
}

func (e *recordingEscalator) CloseExpired(ctx context.Context, ticketID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.failFor[ticketID]; err != nil {
		return err
	}
	e.closed = append(e.closed, ticketID)
	return nil
}

func (e *recordingEscalator) WarnInactivity(ctx context.Context, ticketID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.failFor[ticketID]; err != nil {
		return err
	}
	e.warned = append(e.warned, ticketID)
	return nil
}

func (e *recordingEscalator) DodgeTimeout(ctx context.Context, ticketID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.failFor[ticketID]; err != nil {
		return err
	}
	e.dodged = append(e.dodged, ticketID)
	return nil
}

type recordingReconciler struct {
	mu     sync.Mutex
	guilds []string
}

func (r *recordingReconciler) Reconcile(ctx context.Context, guildID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guilds = append(r.guilds, guildID)
	return nil
}

// stubChat records sent messages; the rest of the surface is unused by the
// scheduler.
type stubChat struct {
	mu       sync.Mutex
	messages map[string]int
}

func newStubChat() *stubChat { return &stubChat{messages: map[string]int{}} }

func (s *stubChat) sent(channelID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[channelID]
}

func (s *stubChat) SendMessage(ctx context.Context, channelID string, msg chat.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[channelID]++
	return "msg-1", nil
}

func (s *stubChat) CreateChannel(ctx context.Context, params chat.CreateChannelParams) (*chat.Channel, error) {
	return nil, chat.ErrNotFound
}
func (s *stubChat) DeleteChannel(ctx context.Context, channelID string) error { return nil }
func (s *stubChat) ApplyOverwrites(ctx context.Context, channelID string, overwrites []chat.Overwrite) error {
	return nil
}
func (s *stubChat) PinMessage(ctx context.Context, channelID, messageID string) error { return nil }
func (s *stubChat) GuildMember(ctx context.Context, guildID, userID string) (*chat.Member, error) {
	return &chat.Member{UserID: userID}, nil
}
func (s *stubChat) ListMembersWithRole(ctx context.Context, guildID, roleID string) ([]chat.Member, error) {
	return nil, nil
}
func (s *stubChat) AddMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	return nil
}
func (s *stubChat) RemoveMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	return nil
}
func (s *stubChat) GuildChannelCount(ctx context.Context, guildID string) (int, error) {
	return 0, nil
}
func (s *stubChat) CategoryChannelCount(ctx context.Context, categoryID string) (int, error) {
	return 0, nil
}

// frozenClock reports a fixed instant; timers fire on Advance.
type frozenClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*frozenTimer
}

type frozenTimer struct {
	deadline time.Time
	fn       func()
	stopped  bool
}

func (t *frozenTimer) Stop() bool {
	t.stopped = true
	return true
}

func newFrozenClock(now time.Time) *frozenClock {
	return &frozenClock{now: now}
}

func (c *frozenClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *frozenClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &frozenTimer{deadline: c.now.Add(d), fn: f}
	c.timers = append(c.timers, timer)
	return timer
}

func (c *frozenClock) NewTicker(d time.Duration) Ticker {
	return &frozenTicker{ch: make(chan time.Time)}
}

func (c *frozenClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*frozenTimer
	remaining := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped && !t.deadline.After(c.now) {
			due = append(due, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	c.timers = remaining
	c.mu.Unlock()
	for _, t := range due {
		t.fn()
	}
}

type frozenTicker struct {
	ch chan time.Time
}

func (t *frozenTicker) C() <-chan time.Time { return t.ch }
func (t *frozenTicker) Stop()               {}
