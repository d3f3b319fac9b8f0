package discordapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/chanscope/discordapi"
	"github.com/onnwee/chanscope/testutil"
)

func TestLogin(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		body      map[string]any
		wantToken string
		wantErr   error
	}{
		{name: "success", code: http.StatusOK, body: map[string]any{"token": "user.tok", "user_id": "1"}, wantToken: "user.tok"},
		{name: "mfa", code: http.StatusOK, body: map[string]any{"mfa": true, "ticket": "t", "token": nil}, wantErr: discordapi.ErrMFARequired},
		{name: "captcha", code: http.StatusBadRequest, body: map[string]any{"captcha_key": []string{"captcha-required"}}, wantErr: discordapi.ErrCaptchaRequired},
		{name: "bad password", code: http.StatusBadRequest, body: map[string]any{"code": 50035, "message": "Invalid Form Body"}, wantErr: discordapi.ErrInvalidCredentials},
		{name: "unauthorized", code: http.StatusUnauthorized, body: map[string]any{}, wantErr: discordapi.ErrInvalidCredentials},
		{name: "no token", code: http.StatusOK, body: map[string]any{}, wantErr: discordapi.ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testutil.NewMockDiscordServer(t)
			m.MockFingerprint("fp.123")
			m.MockLogin(tt.code, tt.body)
			c := discordapi.NewClient(m.URL, discordapi.Session{Locale: "fr"})

			s, err := c.Login(context.Background(), "a@b.c", "pw")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Login() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Login() error = %v", err)
			}
			if s.Token != tt.wantToken || s.Fingerprint != "fp.123" || s.Locale != "fr" || s.TokenType != "" {
				t.Errorf("Login() session = %+v", s)
			}
		})
	}
}

func TestLoginRequest(t *testing.T) {
	m := testutil.NewMockDiscordServer(t)
	var got map[string]any
	var hdr http.Header
	m.Handle("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		hdr = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"t"}`))
	})
	c := discordapi.NewClient(m.URL, discordapi.Session{})

	// no fingerprint route: login still proceeds
	if _, err := c.Login(context.Background(), "a@b.c", "pw"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if got["login"] != "a@b.c" || got["password"] != "pw" || got["undelete"] != false {
		t.Errorf("login body = %v", got)
	}
	if v, ok := got["captcha_key"]; !ok || v != nil {
		t.Errorf("captcha_key = %v, want explicit null", v)
	}
	if hdr.Get("Authorization") != "" || hdr.Get("X-Fingerprint") != "" {
		t.Errorf("login headers = %v", hdr)
	}
	if hdr.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", hdr.Get("Content-Type"))
	}
}

func TestLoginServerError(t *testing.T) {
	m := testutil.NewMockDiscordServer(t)
	m.MockLogin(http.StatusInternalServerError, map[string]any{"message": "oops"})
	c := discordapi.NewClient(m.URL, discordapi.Session{})
	_, err := c.Login(context.Background(), "a@b.c", "pw")
	if !discordapi.IsStatus(err, http.StatusInternalServerError) {
		t.Errorf("Login() error = %v, want 500 StatusError", err)
	}
	if _, err := c.Login(context.Background(), "", "pw"); err == nil {
		t.Error("Login() with empty email should fail")
	}
}

func TestCurrentUserAndGuilds(t *testing.T) {
	m := testutil.NewMockDiscordServer(t)
	m.MockCurrentUser("tok", &discordgo.User{ID: "1", Username: "alice"}, []*discordgo.UserGuild{{ID: "g1", Name: "Guild One"}})
	ctx := context.Background()

	c := discordapi.NewClient(m.URL, discordapi.Session{Token: "tok"})
	u, err := c.CurrentUser(ctx)
	if err != nil {
		t.Fatalf("CurrentUser() error = %v", err)
	}
	if u.Username != "alice" || u.Discriminator != "0000" {
		t.Errorf("CurrentUser() = %+v", u)
	}
	gs, err := c.Guilds(ctx)
	if err != nil || len(gs) != 1 || gs[0].Name != "Guild One" {
		t.Errorf("Guilds() = %+v, %v", gs, err)
	}

	bad := c.WithSession(discordapi.Session{Token: "other"})
	if _, err := bad.CurrentUser(ctx); !discordapi.IsStatus(err, http.StatusUnauthorized) {
		t.Errorf("CurrentUser() with wrong token error = %v, want 401", err)
	}
}
