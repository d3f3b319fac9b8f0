package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
)

// MockDiscordServer mocks the REST routes the analyzer and server call.
// Handlers are keyed by URL path; unmatched paths answer 404.
type MockDiscordServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu       sync.Mutex
	requests []*http.Request
}

// NewMockDiscordServer starts a mock server that is closed when t finishes.
func NewMockDiscordServer(t *testing.T) *MockDiscordServer {
	t.Helper()
	m := &MockDiscordServer{Handlers: make(map[string]http.HandlerFunc)}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.requests = append(m.requests, r.Clone(r.Context()))
		h, ok := m.Handlers[r.URL.Path]
		m.mu.Unlock()
		if ok {
			h(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Requests returns a copy of every request received so far, in order.
func (m *MockDiscordServer) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request(nil), m.requests...)
}

// Count returns how many requests hit paths starting with prefix.
func (m *MockDiscordServer) Count(prefix string) int {
	n := 0
	for _, r := range m.Requests() {
		if strings.HasPrefix(r.URL.Path, prefix) {
			n++
		}
	}
	return n
}

// Handle registers h for path.
func (m *MockDiscordServer) Handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	m.Handlers[path] = h
	m.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}

// MockStatus answers path with an empty JSON body and code.
func (m *MockDiscordServer) MockStatus(path string, code int) {
	m.Handle(path, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, code, map[string]any{})
	})
}

// MockChannels serves a guild's channel list.
func (m *MockDiscordServer) MockChannels(guildID string, channels []*discordgo.Channel) {
	m.Handle("/guilds/"+guildID+"/channels", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, channels)
	})
}

// MockChannelAccess answers a channel's metadata route with code.
func (m *MockDiscordServer) MockChannelAccess(channelID string, code int) {
	m.MockStatus("/channels/"+channelID, code)
}

// MockMessagesAccess answers a channel's message-history route with code.
func (m *MockDiscordServer) MockMessagesAccess(channelID string, code int) {
	m.MockStatus("/channels/"+channelID+"/messages", code)
}

// MockVoiceStates serves a guild's voice-presence list. states are raw JSON
// objects so tests can exercise either flag spelling.
func (m *MockDiscordServer) MockVoiceStates(guildID string, states []map[string]any) {
	m.Handle("/guilds/"+guildID+"/voice-states", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, states)
	})
}

// MockUser serves a user profile.
func (m *MockDiscordServer) MockUser(u *discordgo.User) {
	m.Handle("/users/"+u.ID, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, u)
	})
}

// MockCurrentUser serves /users/@me and /users/@me/guilds for the token.
// Requests with any other Authorization header get 401.
func (m *MockDiscordServer) MockCurrentUser(token string, u *discordgo.User, guilds []*discordgo.UserGuild) {
	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if a := r.Header.Get("Authorization"); a != token && a != "Bearer "+token {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "401: Unauthorized", "code": 0})
				return
			}
			next(w, r)
		}
	}
	m.Handle("/users/@me", auth(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, u)
	}))
	m.Handle("/users/@me/guilds", auth(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, guilds)
	}))
}

// MockFingerprint serves /experiments.
func (m *MockDiscordServer) MockFingerprint(fp string) {
	m.Handle("/experiments", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"fingerprint": fp, "assignments": []any{}})
	})
}

// MockLogin answers /auth/login with code and body.
func (m *MockDiscordServer) MockLogin(code int, body map[string]any) {
	m.Handle("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, code, body)
	})
}

// MockOAuthTokenResponse answers an OAuth2 token endpoint at path.
func (m *MockDiscordServer) MockOAuthTokenResponse(path, accessToken, refreshToken string, expiresIn int) {
	m.Handle(path, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"expires_in":    expiresIn,
			"token_type":    "Bearer",
			"scope":         "identify guilds",
		})
	})
}
