package discordapi

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
)

const (
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	browserVersion   = "120.0.0.0"
	clientBuild      = 261974

	// DefaultLocale is used when a session has no locale set.
	DefaultLocale = "en-US"
)

// Session is the authenticated context attached to every upstream call: the
// credential plus the fixed header set the private API expects from a browser
// client. A Session is a plain value; nothing in this module mutates one after
// it is built.
type Session struct {
	// Token is the credential. User tokens obtained from Login are sent as-is.
	Token string
	// TokenType is empty for user tokens and "Bearer" for OAuth2 access tokens.
	TokenType string
	// Locale drives Accept-Language, X-Discord-Locale and the super properties.
	Locale string
	// Fingerprint is the optional X-Fingerprint obtained during login.
	Fingerprint string
}

// Valid reports whether the session carries a credential.
func (s Session) Valid() bool { return strings.TrimSpace(s.Token) != "" }

// Authorization returns the Authorization header value for the session.
func (s Session) Authorization() string {
	if s.TokenType == "" {
		return s.Token
	}
	return s.TokenType + " " + s.Token
}

func (s Session) locale() string {
	if s.Locale == "" {
		return DefaultLocale
	}
	return s.Locale
}

// Headers returns a fresh copy of the outbound header set. The Authorization
// header is only present for valid sessions, so the same set serves the
// unauthenticated login calls.
func (s Session) Headers() http.Header {
	h := baseHeaders(s.locale())
	if s.Fingerprint != "" {
		h.Set("X-Fingerprint", s.Fingerprint)
	}
	if s.Valid() {
		h.Set("Authorization", s.Authorization())
		h.Set("X-Super-Properties", superProperties(s.locale()))
		h.Set("X-Discord-Locale", s.locale())
		h.Set("X-Debug-Options", "bugReporterEnabled")
		h.Set("Origin", "https://discord.com")
		h.Set("Referer", "https://discord.com/channels/@me")
	}
	return h
}

// Redacted returns the token with everything but the last six characters masked.
func (s Session) Redacted() string {
	if len(s.Token) <= 6 {
		return "***"
	}
	return "***" + s.Token[len(s.Token)-6:]
}

func baseHeaders(locale string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", browserUserAgent)
	h.Set("Accept", "*/*")
	h.Set("Accept-Language", acceptLanguage(locale))
	h.Set("DNT", "1")
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Site", "same-origin")
	return h
}

// acceptLanguage turns "ru" into "ru-RU,ru;q=0.9,en;q=0.8" and "en-US" into "en-US,en;q=0.9".
func acceptLanguage(locale string) string {
	lang, region, found := strings.Cut(locale, "-")
	if !found {
		region = strings.ToUpper(lang)
	}
	full := lang + "-" + region
	if lang == "en" {
		return full + ",en;q=0.9"
	}
	return full + "," + lang + ";q=0.9,en;q=0.8"
}

type clientProperties struct {
	OS                     string  `json:"os"`
	Browser                string  `json:"browser"`
	Device                 string  `json:"device"`
	SystemLocale           string  `json:"system_locale"`
	BrowserUserAgent       string  `json:"browser_user_agent"`
	BrowserVersion         string  `json:"browser_version"`
	OSVersion              string  `json:"os_version"`
	Referrer               string  `json:"referrer"`
	ReferringDomain        string  `json:"referring_domain"`
	ReferrerCurrent        string  `json:"referrer_current"`
	ReferringDomainCurrent string  `json:"referring_domain_current"`
	ReleaseChannel         string  `json:"release_channel"`
	ClientBuildNumber      int     `json:"client_build_number"`
	ClientEventSource      *string `json:"client_event_source"`
}

func superProperties(locale string) string {
	b, _ := json.Marshal(clientProperties{
		OS:                "Windows",
		Browser:           "Chrome",
		SystemLocale:      locale,
		BrowserUserAgent:  browserUserAgent,
		BrowserVersion:    browserVersion,
		OSVersion:         "10",
		ReleaseChannel:    "stable",
		ClientBuildNumber: clientBuild,
	})
	return base64.StdEncoding.EncodeToString(b)
}
