package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/chanscope/analyzer"
	"github.com/onnwee/chanscope/db"
	"github.com/onnwee/chanscope/discordapi"
	"github.com/onnwee/chanscope/telemetry"
)

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin exchanges an email and password for the process session.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeFail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body loginBody
	if err := decodeBody(w, r, &body); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(body.Email) == "" || body.Password == "" {
		writeFail(w, http.StatusBadRequest, "email and password are required")
		return
	}

	log := telemetry.LoggerWithCorr(r.Context()).With(slog.String("component", "http"))
	client := h.client.WithSession(discordapi.Session{Locale: h.cfg.Discord.Locale})
	s, err := client.Login(r.Context(), body.Email, body.Password)
	telemetry.RecordLogin("password", err)
	if err != nil {
		code, msg := loginFailure(err)
		log.Warn("login failed", slog.Any("err", err))
		writeFail(w, code, msg)
		return
	}

	h.sessions.Set(s)
	h.persist(r.Context(), CredentialFromSession(s, nil))
	log.Info("login succeeded", slog.String("token", s.Redacted()))
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "login successful"})
}

func loginFailure(err error) (int, string) {
	switch {
	case errors.Is(err, discordapi.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid login credentials"
	case errors.Is(err, discordapi.ErrMFARequired):
		return http.StatusUnauthorized, "multi-factor authentication is required for this account"
	case errors.Is(err, discordapi.ErrCaptchaRequired):
		return http.StatusUnauthorized, "login requires a captcha; sign in through OAuth instead"
	default:
		return http.StatusBadGateway, "login failed: " + err.Error()
	}
}

// HandleLogout drops the process session and its stored credential.
func (h *Handlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeFail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	h.sessions.Clear()
	if h.store != nil {
		if err := h.store.DeleteCredential(r.Context(), db.ProviderDiscord); err != nil {
			slog.Warn("failed to delete stored session", slog.Any("err", err), slog.String("component", "http"))
		}
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "logged out"})
}

// session returns the current session, writing 401 when there is none.
func (h *Handlers) session(w http.ResponseWriter) (discordapi.Session, bool) {
	s := h.sessions.Get()
	if !s.Valid() {
		writeFail(w, http.StatusUnauthorized, "not logged in")
		return s, false
	}
	return s, true
}

// upstreamFailure maps an upstream error to a response status. A 401 from
// upstream means the stored session is dead.
func upstreamFailure(err error) int {
	switch {
	case discordapi.IsStatus(err, http.StatusUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// HandleUser returns the account behind the process session.
func (h *Handlers) HandleUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeFail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s, ok := h.session(w)
	if !ok {
		return
	}
	u, err := h.client.WithSession(s).CurrentUser(r.Context())
	if err != nil {
		writeFail(w, upstreamFailure(err), "failed to fetch user info: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool                 `json:"success"`
		User    *discordapi.UserInfo `json:"user"`
	}{true, u})
}

// HandleGuilds lists the guilds the session's account belongs to.
func (h *Handlers) HandleGuilds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeFail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s, ok := h.session(w)
	if !ok {
		return
	}
	guilds, err := h.client.WithSession(s).Guilds(r.Context())
	if err != nil {
		writeFail(w, upstreamFailure(err), "failed to fetch guild list: "+err.Error())
		return
	}
	if guilds == nil {
		guilds = []*discordgo.UserGuild{}
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool                   `json:"success"`
		Guilds  []*discordgo.UserGuild `json:"guilds"`
	}{true, guilds})
}

type analyzeBody struct {
	GuildID   string `json:"guildId"`
	GuildName string `json:"guildName"`
}

// HandleAnalyze crawls one guild and returns its report. Only one crawl runs
// at a time.
func (h *Handlers) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeFail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body analyzeBody
	if err := decodeBody(w, r, &body); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(body.GuildID) == "" || strings.TrimSpace(body.GuildName) == "" {
		writeFail(w, http.StatusBadRequest, "guildId and guildName are required")
		return
	}
	s, ok := h.session(w)
	if !ok {
		return
	}
	if !h.crawlMu.TryLock() {
		writeFail(w, http.StatusConflict, "a crawl is already running")
		return
	}
	defer h.crawlMu.Unlock()

	log := telemetry.LoggerWithCorr(r.Context())
	report, err := analyzer.AnalyzeGuild(r.Context(), h.client, s, body.GuildID, body.GuildName, analyzer.Options{
		WebBase: h.cfg.Discord.WebBase,
		Pacing:  h.pacing,
		Logger:  log,
	})
	if err != nil {
		writeFail(w, upstreamFailure(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*analyzer.Report
	}{true, report})
}
