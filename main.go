// Command chanscope serves the guild channel accessibility API.
// It:
//   - Loads configuration and initializes structured logging, metrics and tracing.
//   - Optionally connects to Postgres, runs migrations, and restores the stored session.
//   - Starts the OAuth refresher when a refreshable credential can exist.
//   - Exposes the HTTP API plus /healthz, /readyz and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"

	"github.com/onnwee/chanscope/config"
	"github.com/onnwee/chanscope/crypto"
	"github.com/onnwee/chanscope/db"
	"github.com/onnwee/chanscope/discordapi"
	"github.com/onnwee/chanscope/oauth"
	"github.com/onnwee/chanscope/server"
	"github.com/onnwee/chanscope/telemetry"
)

const version = "1.0.0"

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	_, logCloser := telemetry.SetupLogging(cfg.Logging)
	defer func() { _ = logCloser.Close() }()

	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("chanscope", version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := discordapi.NewClient(cfg.Discord.APIBase, discordapi.Session{Locale: cfg.Discord.Locale})
	client.HTTPClient = &http.Client{Timeout: 20 * time.Second}
	sessions := server.NewSessionHolder(discordapi.Session{Locale: cfg.Discord.Locale})

	var store server.CredentialStore
	var dbStore *db.Store
	if cfg.DBDsn != "" {
		dbStore, err = openStore(ctx, cfg)
		if err != nil {
			slog.Error("database setup failed", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := dbStore.DB.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		store = dbStore
	} else {
		slog.Warn("DB_DSN not set, the session will not survive a restart")
	}

	seedSession(ctx, cfg, sessions, store)

	var oauthCfg *oauth2.Config
	if cfg.ValidateOAuthReady() == nil {
		oauthCfg, err = discordapi.OAuthConfig(cfg.Discord.ClientID, cfg.Discord.ClientSecret, cfg.Discord.RedirectURI, cfg.Discord.Scopes)
		if err != nil {
			slog.Error("oauth config invalid", slog.Any("err", err))
			os.Exit(1)
		}
	}
	if oauthCfg != nil && dbStore != nil {
		r := &oauth.Refresher{
			Store:    dbStore,
			Provider: db.ProviderDiscord,
			Interval: cfg.Server.RefreshInterval,
			Window:   cfg.Server.RefreshWindow,
			Refresh: func(rctx context.Context, refreshToken string) (*oauth2.Token, error) {
				return discordapi.Refresh(rctx, oauthCfg, refreshToken)
			},
			OnRefresh: func(c db.Credential) {
				// only replace a bearer session; a password login since then wins
				if sessions.Get().TokenType != "" {
					sessions.Set(server.SessionFromCredential(&c))
				}
			},
		}
		r.Start(ctx)
	}

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	deps := server.Deps{
		Config:   cfg,
		Client:   client,
		Sessions: sessions,
		Store:    store,
		OAuth:    oauthCfg,
	}
	go func() {
		if err := server.Start(ctx, deps, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
}

func openStore(ctx context.Context, cfg *config.Config) (*db.Store, error) {
	var keys *crypto.Keyring
	if cfg.EncryptionKey != "" {
		k, err := crypto.NewKeyring(cfg.EncryptionKey, cfg.RetiredEncryptionKeys...)
		if err != nil {
			return nil, err
		}
		keys = k
		slog.Info("credential encryption enabled (AES-256-GCM)", slog.String("key_id", k.Primary().KeyID()), slog.String("component", "db_encryption"))
	}
	database, err := db.Connect(ctx, cfg.DBDsn)
	if err != nil {
		return nil, err
	}
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		_ = database.Close()
		return nil, err
	}
	return db.NewStore(database, keys), nil
}

// seedSession installs DISCORD_TOKEN or, failing that, the stored credential.
func seedSession(ctx context.Context, cfg *config.Config, sessions *server.SessionHolder, store server.CredentialStore) {
	if cfg.Discord.Token != "" {
		s := discordapi.Session{Token: cfg.Discord.Token, Locale: cfg.Discord.Locale}
		sessions.Set(s)
		slog.Info("session seeded from DISCORD_TOKEN", slog.String("token", s.Redacted()))
		return
	}
	if store == nil {
		return
	}
	c, err := store.GetCredential(ctx, db.ProviderDiscord)
	switch {
	case errors.Is(err, db.ErrNotFound):
		slog.Info("no stored session; log in through /api/login or /auth/discord/start")
	case err != nil:
		slog.Warn("failed to load stored session", slog.Any("err", err))
	default:
		if c.Locale == "" {
			c.Locale = cfg.Discord.Locale
		}
		s := server.SessionFromCredential(c)
		sessions.Set(s)
		slog.Info("session restored from database", slog.String("token", s.Redacted()), slog.Time("updated_at", c.UpdatedAt))
	}
}
