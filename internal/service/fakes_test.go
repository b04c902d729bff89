package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/wager-arbiter/internal/domain"
	"github.com/spec-kit/wager-arbiter/internal/platform/chat"
	"github.com/spec-kit/wager-arbiter/internal/scheduler"
)

// fakeTicketRepo mirrors the guarded-update semantics of the SQL layer: every
// mutation checks its guard under the lock and reports pgx.ErrNoRows on a
// miss, exactly like the conditional UPDATE does.
type fakeTicketRepo struct {
	mu      sync.Mutex
	seq     int
	tickets map[string]*domain.Ticket

	failCreate error
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: make(map[string]*domain.Ticket)}
}

func (r *fakeTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate != nil {
		return r.failCreate
	}
	r.seq++
	ticket.ID = fmt.Sprintf("tck-%d", r.seq)
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now()
	}
	ticket.UpdatedAt = ticket.CreatedAt
	clone := *ticket
	r.tickets[ticket.ID] = &clone
	return nil
}

func (r *fakeTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *t
	return &clone, nil
}

func (r *fakeTicketRepo) GetByChannel(ctx context.Context, guildID, channelID string, statuses []domain.TicketStatus) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tickets {
		if t.GuildID != guildID || t.ChannelID != channelID {
			continue
		}
		for _, status := range statuses {
			if t.Status == status {
				clone := *t
				return &clone, nil
			}
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeTicketRepo) ListOpenByGuild(ctx context.Context, guildID string) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, t := range r.tickets {
		if t.GuildID == guildID && !t.Status.IsTerminal() {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeTicketRepo) ListGuildsWithOpen(ctx context.Context) ([]string, error) {
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
	sort.Strings(out)
	return out, nil
}

func (r *fakeTicketRepo) Accept(ctx context.Context, id, actorID string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok || t.Status != domain.TicketStatusOpenUnaccepted || t.AcceptedBy != nil {
		return nil, pgx.ErrNoRows
	}
	now := time.Now()
	t.Status = domain.TicketStatusOpenAccepted
	t.AcceptedAt = &now
	t.AcceptedBy = &actorID
	t.UpdatedAt = now
	clone := *t
	return &clone, nil
}

func (r *fakeTicketRepo) Claim(ctx context.Context, id, actorID string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok || t.Status != domain.TicketStatusOpenAccepted || t.ClaimedBy != nil {
		return nil, pgx.ErrNoRows
	}
	now := time.Now()
	t.ClaimedAt = &now
	t.ClaimedBy = &actorID
	t.UpdatedAt = now
	clone := *t
	return &clone, nil
}

func (r *fakeTicketRepo) Close(ctx context.Context, id string, closedBy *string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok || t.Status != domain.TicketStatusOpenAccepted {
		return nil, pgx.ErrNoRows
	}
	now := time.Now()
	t.Status = domain.TicketStatusClosed
	t.ClosedAt = &now
	t.ClosedBy = closedBy
	t.UpdatedAt = now
	clone := *t
	return &clone, nil
}

func (r *fakeTicketRepo) CloseUnaccepted(ctx context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok || t.Status != domain.TicketStatusOpenUnaccepted {
		return nil, pgx.ErrNoRows
	}
	now := time.Now()
	t.Status = domain.TicketStatusClosed
	t.ClosedAt = &now
	t.UpdatedAt = now
	clone := *t
	return &clone, nil
}

func (r *fakeTicketRepo) MarkDodge(ctx context.Context, id, dodgerID string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok || t.Status.IsTerminal() {
		return nil, pgx.ErrNoRows
	}
	now := time.Now()
	t.Status = domain.TicketStatusDodge
	t.DodgedBy = &dodgerID
	t.ClosedAt = &now
	t.UpdatedAt = now
	clone := *t
	return &clone, nil
}

func (r *fakeTicketRepo) Extend(ctx context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok || t.Status != domain.TicketStatusOpenAccepted {
		return nil, pgx.ErrNoRows
	}
	now := time.Now()
	t.LastExtensionAt = &now
	t.LastInactivityWarningAt = nil
	t.UpdatedAt = now
	clone := *t
	return &clone, nil
}

func (r *fakeTicketRepo) SetInactivityWarning(ctx context.Context, id string, at time.Time) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok || t.Status != domain.TicketStatusOpenAccepted || t.LastInactivityWarningAt != nil {
		return nil, pgx.ErrNoRows
	}
	t.LastInactivityWarningAt = &at
	t.UpdatedAt = at
	clone := *t
	return &clone, nil
}

// mutate edits the stored record directly, for arranging test states.
func (r *fakeTicketRepo) mutate(id string, fn func(*domain.Ticket)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tickets[id]; ok {
		fn(t)
	}
}

type fakeHistoryRepo struct {
	mu      sync.Mutex
	entries []domain.TicketHistory
}

func (r *fakeHistoryRepo) Create(ctx context.Context, entry *domain.TicketHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = fmt.Sprintf("hist-%d", len(r.entries)+1)
	entry.CreatedAt = time.Now()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeHistoryRepo) ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TicketHistory
	for _, e := range r.entries {
		if e.TicketID == ticketID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeCategoryRepo struct {
	mu    sync.Mutex
	slots []*domain.CategorySlot
}

func (r *fakeCategoryRepo) add(categoryID, guildID string, kind domain.TicketKind, region string, position, count, capacity int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots = append(r.slots, &domain.CategorySlot{
		CategoryID:   categoryID,
		GuildID:      guildID,
		Kind:         kind,
		Region:       region,
		Position:     position,
		ChannelCount: count,
		Capacity:     capacity,
	})
}

func (r *fakeCategoryRepo) Upsert(ctx context.Context, slot *domain.CategorySlot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slots {
		if s.CategoryID == slot.CategoryID {
			s.Kind = slot.Kind
			s.Region = slot.Region
			s.Position = slot.Position
			s.Capacity = slot.Capacity
			return nil
		}
	}
	clone := *slot
	r.slots = append(r.slots, &clone)
	return nil
}

func (r *fakeCategoryRepo) ListByScope(ctx context.Context, guildID string, kind domain.TicketKind, region string) ([]domain.CategorySlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.CategorySlot
	for _, s := range r.slots {
		if s.GuildID == guildID && s.Kind == kind && s.Region == region {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r *fakeCategoryRepo) ListByGuild(ctx context.Context, guildID string) ([]domain.CategorySlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.CategorySlot
	for _, s := range r.slots {
		if s.GuildID == guildID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeCategoryRepo) TryAcquire(ctx context.Context, categoryID string) (*domain.CategorySlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slots {
		if s.CategoryID != categoryID {
			continue
		}
		if s.ChannelCount >= s.Capacity {
			return nil, pgx.ErrNoRows
		}
		s.ChannelCount++
		clone := *s
		return &clone, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeCategoryRepo) Release(ctx context.Context, categoryID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slots {
		if s.CategoryID == categoryID && s.ChannelCount > 0 {
			s.ChannelCount--
		}
	}
	return nil
}

func (r *fakeCategoryRepo) SetCount(ctx context.Context, categoryID string, count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slots {
		if s.CategoryID == categoryID {
			s.ChannelCount = count
		}
	}
	return nil
}

func (r *fakeCategoryRepo) count(categoryID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slots {
		if s.CategoryID == categoryID {
			return s.ChannelCount
		}
	}
	return -1
}

type fakeProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]*domain.Profile
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{profiles: make(map[string]*domain.Profile)}
}

func profileKey(guildID, userID string) string { return guildID + "/" + userID }

func (r *fakeProfileRepo) Ensure(ctx context.Context, guildID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := profileKey(guildID, userID)
	if _, ok := r.profiles[key]; !ok {
		r.profiles[key] = &domain.Profile{UserID: userID, GuildID: guildID}
	}
	return nil
}

func (r *fakeProfileRepo) GetByUser(ctx context.Context, guildID, userID string) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[profileKey(guildID, userID)]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *p
	return &clone, nil
}

func (r *fakeProfileRepo) ApplyWin(ctx context.Context, guildID, userID string) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := profileKey(guildID, userID)
	p, ok := r.profiles[key]
	if !ok {
		p = &domain.Profile{UserID: userID, GuildID: guildID}
		r.profiles[key] = p
	}
	now := time.Now()
	p.Wins++
	p.WinStreak++
	p.LossStreak = 0
	if p.WinStreak > p.PeakWinStreak {
		p.PeakWinStreak = p.WinStreak
	}
	p.LastResultAt = &now
	clone := *p
	return &clone, nil
}

func (r *fakeProfileRepo) ApplyLoss(ctx context.Context, guildID, userID string) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := profileKey(guildID, userID)
	p, ok := r.profiles[key]
	if !ok {
		p = &domain.Profile{UserID: userID, GuildID: guildID}
		r.profiles[key] = p
	}
	now := time.Now()
	p.Losses++
	p.LossStreak++
	p.WinStreak = 0
	p.LastResultAt = &now
	clone := *p
	return &clone, nil
}

func (r *fakeProfileRepo) TopByWins(ctx context.Context, guildID string, limit int) ([]domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Profile
	for _, p := range r.profiles {
		if p.GuildID == guildID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Wins != out[j].Wins {
			return out[i].Wins > out[j].Wins
		}
		return out[i].UserID < out[j].UserID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeProfileRepo) OverrideWins(ctx context.Context, guildID, userID string, wins int) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[profileKey(guildID, userID)]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	p.Wins = wins
	clone := *p
	return &clone, nil
}

type fakeTierRepo struct {
	mu      sync.Mutex
	configs map[string]*domain.TierConfig
}

func newFakeTierRepo() *fakeTierRepo {
	return &fakeTierRepo{configs: make(map[string]*domain.TierConfig)}
}

func (r *fakeTierRepo) GetByGuild(ctx context.Context, guildID string) (*domain.TierConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.configs[guildID]
	if !ok {
		return &domain.TierConfig{GuildID: guildID, TopN: domain.DefaultTopN}, nil
	}
	clone := *cfg
	return &clone, nil
}

func (r *fakeTierRepo) Put(ctx context.Context, cfg *domain.TierConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sorted := *cfg
	sort.Slice(sorted.Tiers, func(i, j int) bool { return sorted.Tiers[i].Threshold > sorted.Tiers[j].Threshold })
	r.configs[cfg.GuildID] = &sorted
	return nil
}

// fakeChat records calls and tracks channel and role state in memory.
type fakeChat struct {
	mu       sync.Mutex
	seq      int
	channels map[string][]chat.Overwrite // channelID -> last applied overwrites
	members  map[string]map[string]bool  // userID -> roleID set
	messages []sentMessage
	pinned   []string

	failCreateChannel error
	channelTotal      int
}

type sentMessage struct {
	ChannelID string
	Msg       chat.Message
}

func newFakeChat() *fakeChat {
	return &fakeChat{
		channels: make(map[string][]chat.Overwrite),
		members:  make(map[string]map[string]bool),
	}
}

func (f *fakeChat) CreateChannel(ctx context.Context, params chat.CreateChannelParams) (*chat.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreateChannel != nil {
		return nil, f.failCreateChannel
	}
	f.seq++
	id := fmt.Sprintf("chan-%d", f.seq)
	f.channels[id] = params.Overwrites
	return &chat.Channel{ID: id, GuildID: params.GuildID, ParentID: params.ParentID, Name: params.Name}, nil
}

func (f *fakeChat) DeleteChannel(ctx context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.channels[channelID]; !ok {
		return chat.ErrNotFound
	}
	delete(f.channels, channelID)
	return nil
}

func (f *fakeChat) ApplyOverwrites(ctx context.Context, channelID string, overwrites []chat.Overwrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[channelID] = overwrites
	return nil
}

func (f *fakeChat) SendMessage(ctx context.Context, channelID string, msg chat.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, sentMessage{ChannelID: channelID, Msg: msg})
	return fmt.Sprintf("msg-%d", len(f.messages)), nil
}

func (f *fakeChat) PinMessage(ctx context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pinned = append(f.pinned, messageID)
	return nil
}

func (f *fakeChat) GuildMember(ctx context.Context, guildID, userID string) (*chat.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	roles := make([]string, 0)
	for roleID, has := range f.members[userID] {
		if has {
			roles = append(roles, roleID)
		}
	}
	sort.Strings(roles)
	return &chat.Member{UserID: userID, RoleIDs: roles}, nil
}

func (f *fakeChat) ListMembersWithRole(ctx context.Context, guildID, roleID string) ([]chat.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []chat.Member
	ids := make([]string, 0, len(f.members))
	for userID := range f.members {
		ids = append(ids, userID)
	}
	sort.Strings(ids)
	for _, userID := range ids {
		if f.members[userID][roleID] {
			out = append(out, chat.Member{UserID: userID, RoleIDs: []string{roleID}})
		}
	}
	return out, nil
}

func (f *fakeChat) AddMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[userID] == nil {
		f.members[userID] = make(map[string]bool)
	}
	f.members[userID][roleID] = true
	return nil
}

func (f *fakeChat) RemoveMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[userID] != nil {
		delete(f.members[userID], roleID)
	}
	return nil
}

func (f *fakeChat) GuildChannelCount(ctx context.Context, guildID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.channelTotal > 0 {
		return f.channelTotal, nil
	}
	return len(f.channels), nil
}

func (f *fakeChat) CategoryChannelCount(ctx context.Context, categoryID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.channels), nil
}

func (f *fakeChat) roles(userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for roleID, has := range f.members[userID] {
		if has {
			out = append(out, roleID)
		}
	}
	sort.Strings(out)
	return out
}

func (f *fakeChat) sentTo(channelID string) []chat.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []chat.Message
	for _, m := range f.messages {
		if m.ChannelID == channelID {
			out = append(out, m.Msg)
		}
	}
	return out
}

func (f *fakeChat) hasChannel(channelID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.channels[channelID]
	return ok
}

// manualClock fires AfterFunc tasks only when advanced.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	deadline time.Time
	fn       func()
	stopped  bool
}

func (t *manualTimer) Stop() bool {
	t.stopped = true
	return true
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) scheduler.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &manualTimer{deadline: c.now.Add(d), fn: f}
	c.timers = append(c.timers, timer)
	return timer
}

func (c *manualClock) NewTicker(d time.Duration) scheduler.Ticker {
	return &manualTicker{ch: make(chan time.Time)}
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*manualTimer
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

type manualTicker struct {
	ch chan time.Time
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               {}
