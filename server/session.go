package server

import (
	"context"
	"sync"

	"golang.org/x/oauth2"

	"github.com/onnwee/chanscope/db"
	"github.com/onnwee/chanscope/discordapi"
)

// CredentialStore persists the process session across restarts. *db.Store
// implements it.
type CredentialStore interface {
	GetCredential(ctx context.Context, provider string) (*db.Credential, error)
	UpsertCredential(ctx context.Context, c db.Credential) error
	DeleteCredential(ctx context.Context, provider string) error
	Ping(ctx context.Context) error
}

// SessionHolder is the single process-wide upstream session. Login and the
// OAuth callback replace it; crawls take a copy when they start.
type SessionHolder struct {
	mu sync.RWMutex
	s  discordapi.Session
}

// NewSessionHolder returns a holder seeded with s.
func NewSessionHolder(s discordapi.Session) *SessionHolder {
	return &SessionHolder{s: s}
}

// Get returns a copy of the current session.
func (h *SessionHolder) Get() discordapi.Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.s
}

// Set replaces the current session.
func (h *SessionHolder) Set(s discordapi.Session) {
	h.mu.Lock()
	h.s = s
	h.mu.Unlock()
}

// Clear drops the credential, keeping the locale.
func (h *SessionHolder) Clear() {
	h.mu.Lock()
	h.s = discordapi.Session{Locale: h.s.Locale}
	h.mu.Unlock()
}

// SessionFromCredential rebuilds a session from a stored credential.
func SessionFromCredential(c *db.Credential) discordapi.Session {
	return discordapi.Session{Token: c.Token, TokenType: c.TokenType, Locale: c.Locale, Fingerprint: c.Fingerprint}
}

// CredentialFromSession builds the stored form of s. tok carries the OAuth
// refresh data and may be nil for password logins.
func CredentialFromSession(s discordapi.Session, tok *oauth2.Token) db.Credential {
	c := db.Credential{
		Provider:    db.ProviderDiscord,
		Token:       s.Token,
		TokenType:   s.TokenType,
		Locale:      s.Locale,
		Fingerprint: s.Fingerprint,
	}
	if tok != nil {
		c.RefreshToken = tok.RefreshToken
		c.Expiry = tok.Expiry
		c.Scope = discordapi.ScopeOf(tok)
	}
	return c
}
