package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/wager-arbiter/internal/events"
	"github.com/spec-kit/wager-arbiter/internal/platform/chat"
)

// NotificationService translates domain events into channel messages. It is
// the only component that writes chat content; every message with buttons
// carries correlation custom ids in the "wager:<verb>:<ticketId>[:extra]"
// form, which the interaction endpoint parses back.
type NotificationService struct {
	chat   chat.Client
	logger *zap.Logger
}

// NewNotificationService wires handlers onto the dispatcher.
func NewNotificationService(chatClient chat.Client, dispatcher events.Dispatcher, logger *zap.Logger) *NotificationService {
	s := &NotificationService{chat: chatClient, logger: logger}
	dispatcher.Subscribe(events.EventTicketCreated, s.onCreated)
	dispatcher.Subscribe(events.EventTicketAccepted, s.onAccepted)
	dispatcher.Subscribe(events.EventTicketClaimed, s.onClaimed)
	dispatcher.Subscribe(events.EventTicketResolved, s.onResolved)
	dispatcher.Subscribe(events.EventTicketDodged, s.onDodged)
	dispatcher.Subscribe(events.EventTicketExtended, s.onExtended)
	dispatcher.Subscribe(events.EventInactivityWarning, s.onInactivityWarning)
	return s
}

func (s *NotificationService) onCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return nil
	}
	msg := chat.Message{
		Content: fmt.Sprintf("%s challenged %s. The challenged side must accept within 24 hours or the ticket closes.",
			mentionAll(payload.ChallengerIDs), mentionAll(payload.ChallengedIDs)),
		Buttons: []chat.Button{
			{Label: "Accept", CustomID: CustomID("accept", event.TicketID)},
			{Label: "Dodge", CustomID: CustomID("dodge", event.TicketID)},
		},
	}
	messageID, err := s.chat.SendMessage(ctx, event.ChannelID, msg)
	if err != nil {
		s.deliveryFailed(event, err)
		return err
	}
	if pinErr := s.chat.PinMessage(ctx, event.ChannelID, messageID); pinErr != nil {
		s.logger.Warn("control message pin failed",
			zap.String("ticket_id", event.TicketID), zap.Error(pinErr))
	}
	return nil
}

func (s *NotificationService) onAccepted(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.TicketAcceptedPayload)
	msg := chat.Message{
		Content: fmt.Sprintf("%s accepted the challenge. Play the match and have staff record the result.",
			mention(payload.AcceptedBy)),
		Buttons: []chat.Button{
			{Label: "Claim", CustomID: CustomID("claim", event.TicketID)},
			{Label: "Challenger won", CustomID: CustomID("decide", event.TicketID, "challenger")},
			{Label: "Challenged won", CustomID: CustomID("decide", event.TicketID, "challenged")},
			{Label: "Extend", CustomID: CustomID("extend", event.TicketID)},
		},
	}
	return s.send(ctx, event, msg)
}

func (s *NotificationService) onClaimed(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.TicketClaimedPayload)
	return s.send(ctx, event, chat.Message{
		Content: fmt.Sprintf("%s claimed this ticket and is now the only staff member who can act on it.",
			mention(payload.ClaimedBy)),
	})
}

func (s *NotificationService) onResolved(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.TicketResolvedPayload)
	if payload.Timeout {
		return s.send(ctx, event, chat.Message{
			Content: "Closed: the challenge was not accepted in time. No records were changed.",
		})
	}
	return s.send(ctx, event, chat.Message{
		Content: fmt.Sprintf("Result recorded: %s won. This channel will be removed shortly.",
			mentionAll(payload.WinnerIDs)),
	})
}

func (s *NotificationService) onDodged(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.TicketDodgedPayload)
	content := fmt.Sprintf("%s dodged the challenge. The channel stays open for the remaining participants.",
		mention(payload.DodgedBy))
	if payload.Timeout {
		content = fmt.Sprintf("Marked as dodge against %s after three days without activity.",
			mention(payload.DodgedBy))
	}
	return s.send(ctx, event, chat.Message{Content: content})
}

func (s *NotificationService) onExtended(ctx context.Context, event events.Event) error {
	return s.send(ctx, event, chat.Message{
		Content: "Deadline extended. The inactivity timer starts over from now.",
	})
}

func (s *NotificationService) onInactivityWarning(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.InactivityWarningPayload)
	return s.send(ctx, event, chat.Message{
		Content: fmt.Sprintf("No activity on this ticket. It will be marked as a dodge at %s unless the match is played or extended.",
			payload.Deadline.UTC().Format("2006-01-02 15:04 MST")),
		Buttons: []chat.Button{
			{Label: "Extend", CustomID: CustomID("extend", event.TicketID)},
		},
	})
}

func (s *NotificationService) send(ctx context.Context, event events.Event, msg chat.Message) error {
	if _, err := s.chat.SendMessage(ctx, event.ChannelID, msg); err != nil {
		s.deliveryFailed(event, err)
		return err
	}
	return nil
}

func (s *NotificationService) deliveryFailed(event events.Event, err error) {
	s.logger.Warn("notification delivery failed",
		zap.String("event", string(event.Type)),
		zap.String("ticket_id", event.TicketID),
		zap.String("channel_id", event.ChannelID),
		zap.Error(err))
}

// CustomID builds a correlation id. Verbs are accept, dodge, claim, extend
// and decide; decide carries the winning side as the extra segment.
func CustomID(verb, ticketID string, extra ...string) string {
	parts := append([]string{"wager", verb, ticketID}, extra...)
	return strings.Join(parts, ":")
}

// ParseCustomID splits a correlation id back into verb, ticket id and the
// optional extra segment. Returns ok=false for ids this service never built.
func ParseCustomID(customID string) (verb, ticketID, extra string, ok bool) {
	parts := strings.Split(customID, ":")
	if len(parts) < 3 || parts[0] != "wager" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	if len(parts) > 4 {
		return "", "", "", false
	}
	verb, ticketID = parts[1], parts[2]
	if len(parts) == 4 {
		extra = parts[3]
	}
	return verb, ticketID, extra, true
}

func mention(userID string) string {
	return "<@" + userID + ">"
}

func mentionAll(userIDs []string) string {
	mentions := make([]string, len(userIDs))
	for i, id := range userIDs {
		mentions[i] = mention(id)
	}
	return strings.Join(mentions, " ")
}
