package discordapi

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Endpoint is the platform's OAuth2 authorization-code endpoint pair.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://discord.com/oauth2/authorize",
	TokenURL:  "https://discord.com/api/oauth2/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// DefaultScopes are requested when none are configured.
var DefaultScopes = []string{"identify", "guilds"}

// OAuthConfig builds the oauth2 configuration for the code grant. scopes may be
// separated by spaces or commas.
func OAuthConfig(clientID, clientSecret, redirectURI, scopes string) (*oauth2.Config, error) {
	if clientID == "" || redirectURI == "" {
		return nil, errors.New("missing clientID or redirectURI")
	}
	sc := strings.Fields(strings.ReplaceAll(scopes, ",", " "))
	if len(sc) == 0 {
		sc = DefaultScopes
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       sc,
		Endpoint:     Endpoint,
	}, nil
}

// SessionFromToken wraps an OAuth2 access token as a Session.
func SessionFromToken(tok *oauth2.Token, locale string) Session {
	tt := tok.Type()
	if tt == "" {
		tt = "Bearer"
	}
	return Session{Token: tok.AccessToken, TokenType: tt, Locale: locale}
}

// Refresh exchanges a refresh token for a new token.
func Refresh(ctx context.Context, cfg *oauth2.Config, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, errors.New("refresh token empty")
	}
	return cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken, Expiry: time.Unix(1, 0)}).Token()
}

// ScopeOf returns the space-separated scope granted with tok, if reported.
func ScopeOf(tok *oauth2.Token) string {
	if s, ok := tok.Extra("scope").(string); ok {
		return s
	}
	return ""
}
