package discordapi

import (
	"encoding/base64"
	"encoding/json"
	"testing"
)

func TestAcceptLanguage(t *testing.T) {
	tests := map[string]string{
		"en-US": "en-US,en;q=0.9",
		"en-GB": "en-GB,en;q=0.9",
		"ru":    "ru-RU,ru;q=0.9,en;q=0.8",
		"pt-BR": "pt-BR,pt;q=0.9,en;q=0.8",
	}
	for in, want := range tests {
		if got := acceptLanguage(in); got != want {
			t.Errorf("acceptLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHeadersUnauthenticated(t *testing.T) {
	h := Session{}.Headers()
	if h.Get("Authorization") != "" || h.Get("X-Super-Properties") != "" {
		t.Errorf("unauthenticated headers carry credentials: %v", h)
	}
	if h.Get("User-Agent") == "" || h.Get("Accept-Language") != "en-US,en;q=0.9" {
		t.Errorf("base headers missing: %v", h)
	}
}

func TestHeadersAuthenticated(t *testing.T) {
	s := Session{Token: "user-token", Locale: "de", Fingerprint: "fp.1"}
	h := s.Headers()
	if got := h.Get("Authorization"); got != "user-token" {
		t.Errorf("Authorization = %q, want raw token", got)
	}
	if h.Get("X-Discord-Locale") != "de" || h.Get("X-Fingerprint") != "fp.1" {
		t.Errorf("locale/fingerprint headers = %v", h)
	}
	raw, err := base64.StdEncoding.DecodeString(h.Get("X-Super-Properties"))
	if err != nil {
		t.Fatalf("X-Super-Properties not base64: %v", err)
	}
	var props clientProperties
	if err := json.Unmarshal(raw, &props); err != nil {
		t.Fatalf("X-Super-Properties not JSON: %v", err)
	}
	if props.SystemLocale != "de" || props.ClientBuildNumber != clientBuild {
		t.Errorf("super properties = %+v", props)
	}

	// each call returns an independent copy
	h.Set("Authorization", "mutated")
	if s.Headers().Get("Authorization") != "user-token" {
		t.Error("Headers() shares state between calls")
	}
}

func TestAuthorizationBearer(t *testing.T) {
	s := Session{Token: "abc", TokenType: "Bearer"}
	if got := s.Authorization(); got != "Bearer abc" {
		t.Errorf("Authorization() = %q", got)
	}
}

func TestValidAndRedacted(t *testing.T) {
	if (Session{Token: "   "}).Valid() {
		t.Error("whitespace token reported valid")
	}
	if got := (Session{Token: "abcdefghijkl"}).Redacted(); got != "***ghijkl" {
		t.Errorf("Redacted() = %q", got)
	}
	if got := (Session{Token: "abc"}).Redacted(); got != "***" {
		t.Errorf("Redacted() short = %q", got)
	}
}
