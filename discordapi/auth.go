package discordapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"
)

var (
	// ErrInvalidCredentials is returned when the login is rejected.
	ErrInvalidCredentials = errors.New("invalid login or password")
	// ErrMFARequired is returned when the account needs a second factor.
	ErrMFARequired = errors.New("account requires multi-factor authentication")
	// ErrCaptchaRequired is returned when the upstream demands a captcha solve.
	ErrCaptchaRequired = errors.New("login requires a captcha")
)

type loginRequest struct {
	Login         string  `json:"login"`
	Password      string  `json:"password"`
	Undelete      bool    `json:"undelete"`
	CaptchaKey    *string `json:"captcha_key"`
	LoginSource   *string `json:"login_source"`
	GiftCodeSKUID *string `json:"gift_code_sku_id"`
}

type loginResponse struct {
	Token      string   `json:"token"`
	UserID     string   `json:"user_id"`
	MFA        bool     `json:"mfa"`
	Ticket     string   `json:"ticket"`
	CaptchaKey []string `json:"captcha_key"`
}

// Fingerprint fetches the anonymous client fingerprint. Callers treat failure
// as non-fatal.
func (c *Client) Fingerprint(ctx context.Context) (string, error) {
	var body struct {
		Fingerprint string `json:"fingerprint"`
	}
	if err := c.getJSON(ctx, "experiments", "/experiments", nil, &body); err != nil {
		return "", err
	}
	return body.Fingerprint, nil
}

// Login exchanges an email and password for a user session. The returned
// Session carries the locale of c.Session and the fingerprint, if one could be
// obtained.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	if email == "" || password == "" {
		return Session{}, fmt.Errorf("email and password are required")
	}
	anon := Session{Locale: c.Session.Locale}
	lc := c.WithSession(anon)
	if fp, err := lc.Fingerprint(ctx); err != nil {
		slog.Debug("fingerprint fetch failed", slog.Any("err", err), slog.String("component", "discordapi"))
	} else {
		anon.Fingerprint = fp
		lc = c.WithSession(anon)
	}

	payload, err := json.Marshal(loginRequest{Login: email, Password: password})
	if err != nil {
		return Session{}, err
	}
	req, err := lc.newRequest(ctx, http.MethodPost, "/auth/login", nil, bytes.NewReader(payload))
	if err != nil {
		return Session{}, err
	}
	resp, err := lc.do(req, "login")
	if err != nil {
		return Session{}, fmt.Errorf("login request: %w", err)
	}
	defer closeBody(resp)

	var lr loginResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	_ = json.Unmarshal(raw, &lr)
	switch {
	case len(lr.CaptchaKey) > 0:
		return Session{}, ErrCaptchaRequired
	case resp.StatusCode == http.StatusOK && lr.MFA:
		return Session{}, ErrMFARequired
	case resp.StatusCode == http.StatusOK && lr.Token != "":
		anon.Token = lr.Token
		return anon, nil
	case resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnauthorized:
		return Session{}, ErrInvalidCredentials
	default:
		return Session{}, &StatusError{Route: "login", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
}

// UserInfo is the short identity summary of the session's own account.
type UserInfo struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
}

// CurrentUser returns the account the session belongs to.
func (c *Client) CurrentUser(ctx context.Context) (*UserInfo, error) {
	var u discordgo.User
	if err := c.getJSON(ctx, "current_user", "/users/@me", nil, &u); err != nil {
		return nil, err
	}
	disc := u.Discriminator
	if disc == "" {
		disc = "0000"
	}
	return &UserInfo{ID: u.ID, Username: u.Username, Discriminator: disc}, nil
}

// Guilds lists the guilds the session's account is a member of.
func (c *Client) Guilds(ctx context.Context) ([]*discordgo.UserGuild, error) {
	var out []*discordgo.UserGuild
	if err := c.getJSON(ctx, "current_user_guilds", "/users/@me/guilds", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
