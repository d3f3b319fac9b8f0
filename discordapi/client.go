// Package discordapi contains a small client for the chat platform's private
// HTTP API: the session header set, the read calls the guild analyzer needs,
// and the login/user/guild helpers used by the server.
package discordapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/chanscope/telemetry"
)

// DefaultBaseURL is the versioned REST root used when Client.BaseURL is empty.
const DefaultBaseURL = "https://discord.com/api/v9"

// StatusError is returned when the upstream answers with anything but 200 OK.
type StatusError struct {
	Route      string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Route, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Route, e.StatusCode, e.Body)
}

// IsStatus reports whether err is a StatusError carrying code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// VoiceState is one entry of a guild's voice-presence list.
//
// Both the documented self_stream/self_video names and the bare
// streaming/video names are accepted.
type VoiceState struct {
	UserID     string `json:"user_id"`
	ChannelID  string `json:"channel_id"`
	Mute       bool   `json:"mute"`
	Deaf       bool   `json:"deaf"`
	SelfMute   bool   `json:"self_mute"`
	SelfDeaf   bool   `json:"self_deaf"`
	SelfStream bool   `json:"self_stream"`
	SelfVideo  bool   `json:"self_video"`
	Streaming  bool   `json:"streaming"`
	Video      bool   `json:"video"`
}

// Client issues requests on behalf of a single Session.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Session    Session
}

// NewClient returns a client for base (DefaultBaseURL when empty) carrying s.
func NewClient(base string, s Session) *Client {
	return &Client{BaseURL: base, Session: s}
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) base() string {
	if c.BaseURL == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(c.BaseURL, "/")
}

// WithSession returns a copy of c that sends s instead of c.Session.
func (c *Client) WithSession(s Session) *Client {
	cp := *c
	cp.Session = s
	return &cp
}

func (c *Client) newRequest(ctx context.Context, method, path string, q url.Values, body io.Reader) (*http.Request, error) {
	u := c.base() + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header = c.Session.Headers()
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(req *http.Request, route string) (*http.Response, error) {
	resp, err := c.http().Do(req)
	if err != nil {
		telemetry.RecordUpstream(route, 0)
		return nil, err
	}
	telemetry.RecordUpstream(route, resp.StatusCode)
	return resp, nil
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}

// getJSON decodes a 200 response into out; any other status is a *StatusError.
func (c *Client) getJSON(ctx context.Context, route, path string, q url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, q, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req, route)
	if err != nil {
		return err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Route: route, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", route, err)
	}
	return nil
}

// status performs a GET and returns only the status code, draining the body.
func (c *Client) status(ctx context.Context, route, path string, q url.Values) (int, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, q, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.do(req, route)
	if err != nil {
		return 0, err
	}
	defer closeBody(resp)
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// GuildChannels lists a guild's channels in the order the upstream returns them.
func (c *Client) GuildChannels(ctx context.Context, guildID string) ([]*discordgo.Channel, error) {
	if guildID == "" {
		return nil, fmt.Errorf("guildID empty")
	}
	var out []*discordgo.Channel
	if err := c.getJSON(ctx, "guild_channels", "/guilds/"+url.PathEscape(guildID)+"/channels", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ChannelStatus fetches a channel's metadata and returns the response status.
func (c *Client) ChannelStatus(ctx context.Context, channelID string) (int, error) {
	return c.status(ctx, "channel", "/channels/"+url.PathEscape(channelID), nil)
}

// LatestMessageStatus fetches at most one message of a channel's history and
// returns the response status.
func (c *Client) LatestMessageStatus(ctx context.Context, channelID string) (int, error) {
	q := url.Values{}
	q.Set("limit", "1")
	return c.status(ctx, "channel_messages", "/channels/"+url.PathEscape(channelID)+"/messages", q)
}

// GuildVoiceStates returns the live voice-presence list of a guild.
func (c *Client) GuildVoiceStates(ctx context.Context, guildID string) ([]VoiceState, error) {
	if guildID == "" {
		return nil, fmt.Errorf("guildID empty")
	}
	var out []VoiceState
	if err := c.getJSON(ctx, "voice_states", "/guilds/"+url.PathEscape(guildID)+"/voice-states", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// User fetches a user profile by id.
func (c *Client) User(ctx context.Context, userID string) (*discordgo.User, error) {
	if userID == "" {
		return nil, fmt.Errorf("userID empty")
	}
	var u discordgo.User
	if err := c.getJSON(ctx, "user", "/users/"+url.PathEscape(userID), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
