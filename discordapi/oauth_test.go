package discordapi_test

import (
	"context"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/onnwee/chanscope/discordapi"
	"github.com/onnwee/chanscope/testutil"
)

func TestOAuthConfig(t *testing.T) {
	if _, err := discordapi.OAuthConfig("", "s", "http://x/cb", ""); err == nil {
		t.Error("OAuthConfig() without client id should fail")
	}
	cfg, err := discordapi.OAuthConfig("id", "secret", "http://x/cb", "identify, guilds email")
	if err != nil {
		t.Fatalf("OAuthConfig() error = %v", err)
	}
	if len(cfg.Scopes) != 3 || cfg.Scopes[2] != "email" {
		t.Errorf("Scopes = %v", cfg.Scopes)
	}
	cfg, _ = discordapi.OAuthConfig("id", "secret", "http://x/cb", "")
	if len(cfg.Scopes) != len(discordapi.DefaultScopes) {
		t.Errorf("default Scopes = %v", cfg.Scopes)
	}
}

func TestSessionFromToken(t *testing.T) {
	s := discordapi.SessionFromToken(&oauth2.Token{AccessToken: "a"}, "es-ES")
	if s.Token != "a" || s.TokenType != "Bearer" || s.Locale != "es-ES" {
		t.Errorf("SessionFromToken() = %+v", s)
	}
	if got := s.Headers().Get("Authorization"); got != "Bearer a" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestRefresh(t *testing.T) {
	m := testutil.NewMockDiscordServer(t)
	m.MockOAuthTokenResponse("/api/oauth2/token", "new-access", "new-refresh", 3600)
	cfg, _ := discordapi.OAuthConfig("id", "secret", "http://x/cb", "")
	cfg.Endpoint.TokenURL = m.URL + "/api/oauth2/token"

	tok, err := discordapi.Refresh(context.Background(), cfg, "old-refresh")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if tok.AccessToken != "new-access" || tok.RefreshToken != "new-refresh" || time.Until(tok.Expiry) < 50*time.Minute {
		t.Errorf("Refresh() = %+v", tok)
	}
	if discordapi.ScopeOf(tok) != "identify guilds" {
		t.Errorf("ScopeOf() = %q", discordapi.ScopeOf(tok))
	}
	if _, err := discordapi.Refresh(context.Background(), cfg, ""); err == nil {
		t.Error("Refresh() with empty token should fail")
	}
	if r := m.Requests()[0]; r.Method != "POST" {
		t.Errorf("token request method = %s", r.Method)
	}
}
