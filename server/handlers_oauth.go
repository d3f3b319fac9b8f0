package server

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/chanscope/discordapi"
	"github.com/onnwee/chanscope/telemetry"
)

// HandleOAuthStart redirects to the authorization page.
func (h *Handlers) HandleOAuthStart(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		http.Error(w, "oauth not configured (need DISCORD_CLIENT_ID + DISCORD_CLIENT_SECRET + DISCORD_REDIRECT_URI)", http.StatusBadRequest)
		return
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		http.Error(w, "state gen error", http.StatusInternalServerError)
		return
	}
	st := hex.EncodeToString(b)
	if !h.addOAuthState(st, time.Now().Add(10*time.Minute)) {
		http.Error(w, "too many pending logins", http.StatusServiceUnavailable)
		return
	}
	http.Redirect(w, r, h.oauth.AuthCodeURL(st), http.StatusFound)
}

// HandleOAuthCallback exchanges the code, installs the bearer session and
// persists it with its refresh token.
func (h *Handlers) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		http.Error(w, "oauth not configured", http.StatusBadRequest)
		return
	}
	if e := r.URL.Query().Get("error"); e != "" {
		http.Error(w, "authorization denied: "+e, http.StatusBadRequest)
		return
	}
	code := r.URL.Query().Get("code")
	st := r.URL.Query().Get("state")
	if code == "" || st == "" {
		http.Error(w, "missing code/state", http.StatusBadRequest)
		return
	}
	if !h.consumeOAuthState(st) {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}

	tok, err := h.oauth.Exchange(r.Context(), code)
	telemetry.RecordLogin("oauth", err)
	if err != nil {
		slog.Warn("oauth code exchange failed", slog.Any("err", err), slog.String("component", "http"))
		http.Error(w, "code exchange failed", http.StatusBadGateway)
		return
	}
	s := discordapi.SessionFromToken(tok, h.cfg.Discord.Locale)
	h.sessions.Set(s)
	h.persist(r.Context(), CredentialFromSession(s, tok))

	writeJSON(w, http.StatusOK, map[string]any{
		"status":                "ok",
		"scope":                 discordapi.ScopeOf(tok),
		"expiry":                tok.Expiry,
		"refresh_token_present": tok.RefreshToken != "",
	})
}
