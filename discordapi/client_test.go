package discordapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/chanscope/discordapi"
	"github.com/onnwee/chanscope/testutil"
)

func TestGuildChannels(t *testing.T) {
	m := testutil.NewMockDiscordServer(t)
	m.MockChannels("g1", []*discordgo.Channel{
		{ID: "c1", Name: "general", Type: discordgo.ChannelTypeGuildText},
		{ID: "c2", Name: "Lounge", Type: discordgo.ChannelTypeGuildVoice, ParentID: "cat"},
	})
	c := discordapi.NewClient(m.URL, discordapi.Session{Token: "tok"})

	got, err := c.GuildChannels(context.Background(), "g1")
	if err != nil {
		t.Fatalf("GuildChannels() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "c1" || got[1].Type != discordgo.ChannelTypeGuildVoice || got[1].ParentID != "cat" {
		t.Errorf("GuildChannels() = %+v", got)
	}
	r := m.Requests()[0]
	if r.Header.Get("Authorization") != "tok" || r.Header.Get("X-Super-Properties") == "" {
		t.Errorf("request headers = %v", r.Header)
	}
}

func TestGuildChannelsStatusError(t *testing.T) {
	m := testutil.NewMockDiscordServer(t)
	m.MockStatus("/guilds/g1/channels", http.StatusForbidden)
	c := discordapi.NewClient(m.URL, discordapi.Session{Token: "tok"})

	_, err := c.GuildChannels(context.Background(), "g1")
	if !discordapi.IsStatus(err, http.StatusForbidden) {
		t.Errorf("GuildChannels() error = %v, want 403 StatusError", err)
	}
	if _, err := c.GuildChannels(context.Background(), ""); err == nil {
		t.Error("GuildChannels(\"\") should fail")
	}
}

func TestProbeStatuses(t *testing.T) {
	m := testutil.NewMockDiscordServer(t)
	m.MockChannelAccess("c1", http.StatusOK)
	m.MockMessagesAccess("c1", http.StatusForbidden)
	c := discordapi.NewClient(m.URL, discordapi.Session{Token: "tok"})
	ctx := context.Background()

	if code, err := c.ChannelStatus(ctx, "c1"); err != nil || code != http.StatusOK {
		t.Errorf("ChannelStatus() = %d, %v", code, err)
	}
	if code, err := c.LatestMessageStatus(ctx, "c1"); err != nil || code != http.StatusForbidden {
		t.Errorf("LatestMessageStatus() = %d, %v", code, err)
	}
	for _, r := range m.Requests() {
		if r.URL.Path == "/channels/c1/messages" && r.URL.Query().Get("limit") != "1" {
			t.Errorf("messages probe limit = %q, want 1", r.URL.Query().Get("limit"))
		}
	}
}

func TestProbeTransportError(t *testing.T) {
	m := testutil.NewMockDiscordServer(t)
	url := m.URL
	m.Close()
	c := discordapi.NewClient(url, discordapi.Session{Token: "tok"})
	if _, err := c.ChannelStatus(context.Background(), "c1"); err == nil {
		t.Error("ChannelStatus() against a closed server should fail")
	}
}

func TestGuildVoiceStatesBothFlagSpellings(t *testing.T) {
	m := testutil.NewMockDiscordServer(t)
	m.MockVoiceStates("g1", []map[string]any{
		{"user_id": "u1", "channel_id": "v1", "self_stream": true, "self_mute": true},
		{"user_id": "u2", "channel_id": "v1", "streaming": true, "video": true, "deaf": true},
	})
	c := discordapi.NewClient(m.URL, discordapi.Session{Token: "tok"})

	got, err := c.GuildVoiceStates(context.Background(), "g1")
	if err != nil {
		t.Fatalf("GuildVoiceStates() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GuildVoiceStates() len = %d", len(got))
	}
	if !got[0].SelfStream || !got[0].SelfMute || !got[1].Streaming || !got[1].Video || !got[1].Deaf {
		t.Errorf("GuildVoiceStates() = %+v", got)
	}
}

func TestUser(t *testing.T) {
	m := testutil.NewMockDiscordServer(t)
	m.MockUser(&discordgo.User{ID: "u1", Username: "alice", Discriminator: "1234", Avatar: "hash"})
	c := discordapi.NewClient(m.URL, discordapi.Session{Token: "tok"})

	u, err := c.User(context.Background(), "u1")
	if err != nil || u.Username != "alice" || u.Avatar != "hash" {
		t.Errorf("User() = %+v, %v", u, err)
	}
	if _, err := c.User(context.Background(), "missing"); !discordapi.IsStatus(err, http.StatusNotFound) {
		t.Errorf("User(missing) error = %v, want 404", err)
	}
}

func TestWithSessionDoesNotMutate(t *testing.T) {
	c := discordapi.NewClient("", discordapi.Session{Token: "a"})
	c2 := c.WithSession(discordapi.Session{Token: "b"})
	if c.Session.Token != "a" || c2.Session.Token != "b" {
		t.Errorf("WithSession mutated the original: %q %q", c.Session.Token, c2.Session.Token)
	}
}
