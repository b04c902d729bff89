package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/spec-kit/wager-arbiter/internal/config"
	"github.com/spec-kit/wager-arbiter/internal/domain"
	"github.com/spec-kit/wager-arbiter/internal/observability"
)

var testWindows = config.LifecycleConfig{
	UnacceptedCloseAfter: 24 * time.Hour,
	InactivityWarnAfter:  48 * time.Hour,
	InactivityDodgeAfter: 72 * time.Hour,
	DeletionGrace:        15 * time.Second,
	ReminderThrottle:     12 * time.Hour,
}

var testSweeps = config.SchedulerConfig{
	FineSweepInterval:       30 * time.Minute,
	EscalationSweepInterval: time.Hour,
}

func newSweeper(repo *listTicketRepo, escalator Escalator, clock Clock) *EscalationScheduler {
	return NewEscalationScheduler(
		repo, escalator, nil,
		newStubChat(), nil, clock,
		zap.NewNop(), observability.NewMetrics(),
		testWindows, testSweeps,
	)
}

func unacceptedTicket(id string, age time.Duration, now time.Time) domain.Ticket {
	return domain.Ticket{
		ID:        id,
		GuildID:   "guild-1",
		ChannelID: "chan-" + id,
		Status:    domain.TicketStatusOpenUnaccepted,
		CreatedAt: now.Add(-age),
	}
}

func acceptedTicket(id string, sinceAccept time.Duration, now time.Time) domain.Ticket {
	acceptedAt := now.Add(-sinceAccept)
	return domain.Ticket{
		ID:         id,
		GuildID:    "guild-1",
		ChannelID:  "chan-" + id,
		Status:     domain.TicketStatusOpenAccepted,
		CreatedAt:  acceptedAt.Add(-time.Hour),
		AcceptedAt: &acceptedAt,
	}
}

func TestEscalationSweepClosesStaleUnaccepted(t *testing.T) {
	clock := newFrozenClock(time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC))
	repo := &listTicketRepo{}
	repo.add(unacceptedTicket("tck-old", 25*time.Hour, clock.Now()))
	repo.add(unacceptedTicket("tck-fresh", 23*time.Hour, clock.Now()))
	escalator := newRecordingEscalator()

	newSweeper(repo, escalator, clock).EscalationSweep(context.Background())

	assert.Equal(t, []string{"tck-old"}, escalator.closed)
	assert.Empty(t, escalator.warned)
	assert.Empty(t, escalator.dodged)
}

func TestEscalationSweepWarnsThenDodges(t *testing.T) {
	clock := newFrozenClock(time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC))
	repo := &listTicketRepo{}
	repo.add(acceptedTicket("tck-quiet", 49*time.Hour, clock.Now()))
	repo.add(acceptedTicket("tck-gone", 73*time.Hour, clock.Now()))
	repo.add(acceptedTicket("tck-active", 2*time.Hour, clock.Now()))
	escalator := newRecordingEscalator()

	newSweeper(repo, escalator, clock).EscalationSweep(context.Background())

	assert.Equal(t, []string{"tck-quiet"}, escalator.warned)
	assert.Equal(t, []string{"tck-gone"}, escalator.dodged)
	assert.Empty(t, escalator.closed)
}

func TestEscalationSweepSkipsAlreadyWarned(t *testing.T) {
	clock := newFrozenClock(time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC))
	repo := &listTicketRepo{}
	ticket := acceptedTicket("tck-warned", 50*time.Hour, clock.Now())
	warnedAt := clock.Now().Add(-time.Hour)
	ticket.LastInactivityWarningAt = &warnedAt
	repo.add(ticket)
	escalator := newRecordingEscalator()

	newSweeper(repo, escalator, clock).EscalationSweep(context.Background())

	assert.Empty(t, escalator.warned, "a warned ticket is not re-warned")
	assert.Empty(t, escalator.dodged)
}

func TestEscalationSweepHonorsExtension(t *testing.T) {
	clock := newFrozenClock(time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC))
	repo := &listTicketRepo{}
	ticket := acceptedTicket("tck-extended", 73*time.Hour, clock.Now())
	extendedAt := clock.Now().Add(-time.Hour)
	ticket.LastExtensionAt = &extendedAt
	repo.add(ticket)
	escalator := newRecordingEscalator()

	newSweeper(repo, escalator, clock).EscalationSweep(context.Background())

	assert.Empty(t, escalator.dodged, "extension resets the inactivity window")
	assert.Empty(t, escalator.warned)
}

func TestEscalationSweepDodgePreemptsWarning(t *testing.T) {
	clock := newFrozenClock(time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC))
	repo := &listTicketRepo{}
	repo.add(acceptedTicket("tck-gone", 80*time.Hour, clock.Now()))
	escalator := newRecordingEscalator()

	newSweeper(repo, escalator, clock).EscalationSweep(context.Background())

	assert.Equal(t, []string{"tck-gone"}, escalator.dodged)
	assert.Empty(t, escalator.warned, "past the dodge window only the dodge fires")
}

func TestEscalationSweepContinuesPastFailures(t *testing.T) {
	clock := newFrozenClock(time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC))
	repo := &listTicketRepo{}
	repo.add(unacceptedTicket("tck-a", 30*time.Hour, clock.Now()))
	repo.add(unacceptedTicket("tck-b", 30*time.Hour, clock.Now()))
	escalator := newRecordingEscalator()
	escalator.failFor["tck-a"] = assert.AnError

	newSweeper(repo, escalator, clock).EscalationSweep(context.Background())

	assert.Equal(t, []string{"tck-b"}, escalator.closed, "one failing ticket never stalls the sweep")
}

func TestFineSweepRemindsOpenTickets(t *testing.T) {
	clock := newFrozenClock(time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC))
	repo := &listTicketRepo{}
	repo.add(unacceptedTicket("tck-a", time.Hour, clock.Now()))
	repo.add(acceptedTicket("tck-b", time.Hour, clock.Now()))
	chatClient := newStubChat()

	sweeper := NewEscalationScheduler(
		repo, newRecordingEscalator(), nil,
		chatClient, nil, clock,
		zap.NewNop(), observability.NewMetrics(),
		testWindows, testSweeps,
	)
	sweeper.FineSweep(context.Background())

	assert.Equal(t, 1, chatClient.sent("chan-tck-a"))
	assert.Equal(t, 1, chatClient.sent("chan-tck-b"))
}

func TestStartReconcilesGuildsWithOpenTickets(t *testing.T) {
	clock := newFrozenClock(time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC))
	repo := &listTicketRepo{}
	repo.add(unacceptedTicket("tck-a", time.Hour, clock.Now()))
	reconciler := &recordingReconciler{}

	sweeper := NewEscalationScheduler(
		repo, newRecordingEscalator(), reconciler,
		newStubChat(), nil, clock,
		zap.NewNop(), observability.NewMetrics(),
		testWindows, testSweeps,
	)
	sweeper.Start(context.Background())
	sweeper.Stop()

	assert.Equal(t, []string{"guild-1"}, reconciler.guilds)
}
