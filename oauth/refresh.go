// Package oauth keeps a stored OAuth2 credential fresh. A background loop
// wakes on a jittered interval and refreshes the credential once its expiry
// falls within a configured window.
package oauth

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/onnwee/chanscope/db"
)

// CredentialStore is the persistence the refresher needs. *db.Store
// implements it.
type CredentialStore interface {
	GetCredential(ctx context.Context, provider string) (*db.Credential, error)
	UpsertCredential(ctx context.Context, c db.Credential) error
}

// RefreshFunc exchanges a refresh token for a new token.
type RefreshFunc func(ctx context.Context, refreshToken string) (*oauth2.Token, error)

// Refresher refreshes one provider's credential.
type Refresher struct {
	Store    CredentialStore
	Provider string
	Interval time.Duration
	Window   time.Duration
	Refresh  RefreshFunc
	// OnRefresh, when set, receives every credential successfully persisted.
	OnRefresh func(db.Credential)
}

func (r *Refresher) defaults() {
	if r.Interval <= 0 {
		r.Interval = 5 * time.Minute
	}
	if r.Window <= 0 {
		r.Window = 15 * time.Minute
	}
}

// Start launches the refresh loop; it stops when ctx is done.
func (r *Refresher) Start(ctx context.Context) {
	r.defaults()
	// Randomize initial delay to spread load across instances.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(rand.Int63n(int64(r.Interval/2) + 1))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			if _, err := r.CheckOnce(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("credential refresh failed", slog.String("provider", r.Provider), slog.Any("err", err), slog.String("component", "oauth_refresh"))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.nextSleep()):
			}
		}
	}()
}

// nextSleep is Interval with +/-20% jitter, never below Interval/2.
func (r *Refresher) nextSleep() time.Duration {
	jitterRange := int64(r.Interval / 5)
	if jitterRange <= 0 {
		return r.Interval
	}
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	jitter := time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
	next := r.Interval + jitter
	if next < r.Interval/2 {
		next = r.Interval / 2
	}
	return next
}

// CheckOnce refreshes the credential if it is within the window. It reports
// whether a refresh was persisted. A missing credential, one without a refresh
// token, or one with no expiry is skipped without error.
func (r *Refresher) CheckOnce(ctx context.Context) (bool, error) {
	r.defaults()
	cur, err := r.Store.GetCredential(ctx, r.Provider)
	if errors.Is(err, db.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if cur.RefreshToken == "" || cur.Expiry.IsZero() {
		return false, nil
	}
	if time.Until(cur.Expiry) > r.Window {
		return false, nil
	}

	ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
	tok, err := r.Refresh(ctx2, cur.RefreshToken)
	cancel()
	if err != nil {
		return false, err
	}

	next := *cur
	next.Token = tok.AccessToken
	if tok.TokenType != "" {
		next.TokenType = tok.TokenType
	}
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}
	next.Expiry = tok.Expiry
	if scope, ok := tok.Extra("scope").(string); ok && strings.TrimSpace(scope) != "" {
		next.Scope = strings.TrimSpace(scope)
	}
	if err := r.Store.UpsertCredential(ctx, next); err != nil {
		return false, err
	}
	slog.Info("credential refreshed", slog.String("provider", r.Provider), slog.Time("expires_at", next.Expiry), slog.String("component", "oauth_refresh"))
	if r.OnRefresh != nil {
		r.OnRefresh(next)
	}
	return true, nil
}
