// Package server exposes the HTTP API handlers.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/onnwee/chanscope/analyzer"
	"github.com/onnwee/chanscope/config"
	"github.com/onnwee/chanscope/db"
	"github.com/onnwee/chanscope/discordapi"
)

const (
	// Maximum number of OAuth states to keep in memory
	maxOAuthStates = 10000
	// Request bodies on /api/ are small JSON objects.
	maxBodyBytes = 1 << 16
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	cfg      *config.Config
	client   *discordapi.Client
	sessions *SessionHolder
	store    CredentialStore
	oauth    *oauth2.Config
	pacing   *analyzer.Pacing

	// crawlMu admits one crawl at a time; a second caller gets 409.
	crawlMu sync.Mutex

	stateStore map[string]time.Time
	stateMu    sync.RWMutex
}

// NewHandlers creates a new Handlers instance from d.
func NewHandlers(d Deps) *Handlers {
	h := &Handlers{
		cfg:        d.Config,
		client:     d.Client,
		sessions:   d.Sessions,
		store:      d.Store,
		oauth:      d.OAuth,
		pacing:     d.Pacing,
		stateStore: make(map[string]time.Time),
	}
	if h.cfg == nil {
		h.cfg = config.Default()
	}
	if h.client == nil {
		h.client = discordapi.NewClient(h.cfg.Discord.APIBase, discordapi.Session{})
	}
	if h.sessions == nil {
		h.sessions = NewSessionHolder(discordapi.Session{Locale: h.cfg.Discord.Locale})
	}
	if h.pacing == nil {
		p := analyzer.DefaultPacing()
		p.ChannelDelay = h.cfg.Pacing.ChannelDelay
		p.OccupantDelay = h.cfg.Pacing.OccupantDelay
		h.pacing = &p
	}
	if h.oauth == nil && h.cfg.ValidateOAuthReady() == nil {
		oc, err := discordapi.OAuthConfig(h.cfg.Discord.ClientID, h.cfg.Discord.ClientSecret, h.cfg.Discord.RedirectURI, h.cfg.Discord.Scopes)
		if err != nil {
			slog.Warn("oauth config invalid, OAuth login disabled", slog.Any("err", err), slog.String("component", "http"))
		} else {
			h.oauth = oc
		}
	}
	return h
}

// cleanExpiredStates removes expired OAuth states from the store.
// This should be called with stateMu locked.
func (h *Handlers) cleanExpiredStates() {
	now := time.Now()
	for state, expiry := range h.stateStore {
		if now.After(expiry) {
			delete(h.stateStore, state)
		}
	}
}

// addOAuthState records state until expiry. It reports false when the store
// is full.
func (h *Handlers) addOAuthState(state string, expiry time.Time) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if len(h.stateStore)%100 == 0 {
		h.cleanExpiredStates()
	}
	if len(h.stateStore) >= maxOAuthStates {
		return false
	}
	h.stateStore[state] = expiry
	return true
}

// consumeOAuthState reports whether state is known and unexpired, removing it either way.
func (h *Handlers) consumeOAuthState(state string) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	exp, ok := h.stateStore[state]
	delete(h.stateStore, state)
	return ok && time.Now().Before(exp)
}

// persist stores the session's credential when a store is configured. Failure
// only costs the session surviving a restart, so it is logged, not returned.
func (h *Handlers) persist(ctx context.Context, c db.Credential) {
	if h.store == nil {
		return
	}
	if err := h.store.UpsertCredential(ctx, c); err != nil {
		slog.Warn("failed to persist session", slog.Any("err", err), slog.String("component", "http"))
	}
}

// envelope is the failure body every /api/ route shares.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}

func writeFail(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, envelope{Success: false, Message: msg})
}

// decodeBody reads a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}
