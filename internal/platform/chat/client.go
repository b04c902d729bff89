// Package chat wraps the chat-platform REST API behind the narrow surface the
// core needs: channel create/delete, permission overwrites, role mutation and
// message delivery. Everything here is an external collaborator; callers
// treat failures as transient and never let them drive ticket state.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/spec-kit/wager-arbiter/internal/config"
)

// Permission bits used by the gate.
const (
	PermViewChannel        int64 = 1 << 10
	PermSendMessages       int64 = 1 << 11
	PermReadMessageHistory int64 = 1 << 16
)

// Overwrite targets either a user or a role on one channel.
type Overwrite struct {
	TargetID   string `json:"id"`
	TargetType string `json:"type"` // "member" or "role"
	Allow      int64  `json:"allow,string"`
	Deny       int64  `json:"deny,string"`
}

// Channel is the subset of channel fields the core reads back.
type Channel struct {
	ID       string `json:"id"`
	GuildID  string `json:"guild_id"`
	ParentID string `json:"parent_id"`
	Name     string `json:"name"`
}

// Member is a guild member with role assignments.
type Member struct {
	UserID  string   `json:"user_id"`
	RoleIDs []string `json:"roles"`
}

// Message is an outgoing channel message, optionally carrying interaction
// components routed back through the correlation custom id.
type Message struct {
	Content  string   `json:"content"`
	CustomID string   `json:"custom_id,omitempty"`
	Buttons  []Button `json:"buttons,omitempty"`
}

// Button is one interaction affordance under a message.
type Button struct {
	Label    string `json:"label"`
	CustomID string `json:"custom_id"`
}

// CreateChannelParams bundles channel creation with its initial permission
// overwrites so no window exists where the channel is readable by outsiders.
type CreateChannelParams struct {
	GuildID    string
	ParentID   string
	Name       string
	Overwrites []Overwrite
}

// Client is the chat-platform collaborator consumed by the core services.
type Client interface {
	CreateChannel(ctx context.Context, params CreateChannelParams) (*Channel, error)
	DeleteChannel(ctx context.Context, channelID string) error
	ApplyOverwrites(ctx context.Context, channelID string, overwrites []Overwrite) error
	SendMessage(ctx context.Context, channelID string, msg Message) (string, error)
	PinMessage(ctx context.Context, channelID, messageID string) error
	GuildMember(ctx context.Context, guildID, userID string) (*Member, error)
	ListMembersWithRole(ctx context.Context, guildID, roleID string) ([]Member, error)
	AddMemberRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveMemberRole(ctx context.Context, guildID, userID, roleID string) error
	GuildChannelCount(ctx context.Context, guildID string) (int, error)
	CategoryChannelCount(ctx context.Context, categoryID string) (int, error)
}

type restClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *zap.Logger
}

// NewClient builds the REST-backed platform client.
func NewClient(cfg config.ChatConfig, logger *zap.Logger) Client {
	return &restClient{
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		baseURL:    cfg.BaseURL,
		token:      cfg.BotToken,
		logger:     logger,
	}
}

func (c *restClient) CreateChannel(ctx context.Context, params CreateChannelParams) (*Channel, error) {
	body := map[string]any{
		"name":                  params.Name,
		"parent_id":             params.ParentID,
		"permission_overwrites": params.Overwrites,
	}
	var channel Channel
	path := fmt.Sprintf("/guilds/%s/channels", params.GuildID)
	if err := c.do(ctx, http.MethodPost, path, body, &channel); err != nil {
		return nil, err
	}
	if channel.GuildID == "" {
		channel.GuildID = params.GuildID
	}
	return &channel, nil
}

func (c *restClient) DeleteChannel(ctx context.Context, channelID string) error {
	return c.do(ctx, http.MethodDelete, "/channels/"+channelID, nil, nil)
}

func (c *restClient) ApplyOverwrites(ctx context.Context, channelID string, overwrites []Overwrite) error {
	for _, ow := range overwrites {
		path := fmt.Sprintf("/channels/%s/permissions/%s", channelID, ow.TargetID)
		if err := c.do(ctx, http.MethodPut, path, ow, nil); err != nil {
			return err
		}
	}
	return nil
}

func (c *restClient) SendMessage(ctx context.Context, channelID string, msg Message) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/channels/"+channelID+"/messages", msg, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

func (c *restClient) PinMessage(ctx context.Context, channelID, messageID string) error {
	return c.do(ctx, http.MethodPut, "/channels/"+channelID+"/pins/"+messageID, nil, nil)
}

func (c *restClient) GuildMember(ctx context.Context, guildID, userID string) (*Member, error) {
	var member Member
	path := fmt.Sprintf("/guilds/%s/members/%s", guildID, userID)
	if err := c.do(ctx, http.MethodGet, path, nil, &member); err != nil {
		return nil, err
	}
	if member.UserID == "" {
		member.UserID = userID
	}
	return &member, nil
}

func (c *restClient) ListMembersWithRole(ctx context.Context, guildID, roleID string) ([]Member, error) {
	var members []Member
	path := fmt.Sprintf("/guilds/%s/roles/%s/members", guildID, roleID)
	if err := c.do(ctx, http.MethodGet, path, nil, &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (c *restClient) AddMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	path := fmt.Sprintf("/guilds/%s/members/%s/roles/%s", guildID, userID, roleID)
	return c.do(ctx, http.MethodPut, path, nil, nil)
}

func (c *restClient) RemoveMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	path := fmt.Sprintf("/guilds/%s/members/%s/roles/%s", guildID, userID, roleID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *restClient) GuildChannelCount(ctx context.Context, guildID string) (int, error) {
	var channels []Channel
	if err := c.do(ctx, http.MethodGet, "/guilds/"+guildID+"/channels", nil, &channels); err != nil {
		return 0, err
	}
	return len(channels), nil
}

func (c *restClient) CategoryChannelCount(ctx context.Context, categoryID string) (int, error) {
	var channels []Channel
	if err := c.do(ctx, http.MethodGet, "/channels/"+categoryID+"/children", nil, &channels); err != nil {
		return 0, err
	}
	return len(channels), nil
}

func (c *restClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 400 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.logger.Warn("chat api error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", payload),
		)
		return fmt.Errorf("chat api %s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
