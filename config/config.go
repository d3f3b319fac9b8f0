// Package config loads the optional YAML config file and environment variables
// into a typed Config used across the service. Environment variables take
// precedence over the file, and defaults let the binary run locally with only
// a credential supplied. Use ValidateOAuthReady before enabling the OAuth flow.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/onnwee/chanscope/telemetry"
)

const (
	DefaultHTTPAddr      = ":8080"
	DefaultAPIBase       = "https://discord.com/api/v9"
	DefaultWebBase       = "https://discord.com"
	DefaultLocale        = "en-US"
	DefaultChannelDelay  = 300 * time.Millisecond
	DefaultOccupantDelay = 200 * time.Millisecond
)

type Config struct {
	HTTPAddr string `yaml:"http_addr"`

	Discord DiscordConfig `yaml:"discord"`
	Pacing  PacingConfig  `yaml:"pacing"`

	Server ServerConfig `yaml:"server"`

	// Database; an empty DSN keeps the session in memory only
	DBDsn         string `yaml:"db_dsn"`
	EncryptionKey string `yaml:"encryption_key"`

	// RetiredEncryptionKeys still open rows sealed before a key rotation.
	RetiredEncryptionKeys []string `yaml:"retired_encryption_keys"`

	Logging telemetry.LogConfig `yaml:"logging"`
}

// ServerConfig covers the HTTP API's protection and the OAuth refresher.
type ServerConfig struct {
	// API auth: basic auth (username+password) and/or a static token. Both
	// empty leaves /api/ open.
	APIUsername string `yaml:"api_username"`
	APIPassword string `yaml:"api_password"`
	APIToken    string `yaml:"api_token"`

	RateLimitEnabled   bool    `yaml:"rate_limit_enabled"`
	RateLimitPerMinute float64 `yaml:"rate_limit_per_minute"`
	RateLimitBurst     int     `yaml:"rate_limit_burst"`

	CORSPermissive     bool     `yaml:"cors_permissive"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`

	RefreshInterval time.Duration `yaml:"refresh_interval"`
	RefreshWindow   time.Duration `yaml:"refresh_window"`
}

// DiscordConfig holds upstream endpoints and credentials.
type DiscordConfig struct {
	APIBase string `yaml:"api_base"`
	WebBase string `yaml:"web_base"`
	Locale  string `yaml:"locale"`
	// Token is a pre-obtained user token, used by the CLI and to seed the server session.
	Token string `yaml:"token"`

	// OAuth2 code grant
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
	Scopes       string `yaml:"scopes"`
}

// PacingConfig holds the fixed idle delays between outbound crawl requests.
type PacingConfig struct {
	ChannelDelay  time.Duration `yaml:"channel_delay"`
	OccupantDelay time.Duration `yaml:"occupant_delay"`
}

// Default returns a Config with defaults applied.
func Default() *Config {
	return &Config{
		HTTPAddr: DefaultHTTPAddr,
		Discord: DiscordConfig{
			APIBase: DefaultAPIBase,
			WebBase: DefaultWebBase,
			Locale:  DefaultLocale,
			Scopes:  "identify guilds",
		},
		Pacing: PacingConfig{
			ChannelDelay:  DefaultChannelDelay,
			OccupantDelay: DefaultOccupantDelay,
		},
		Server: ServerConfig{
			RateLimitEnabled:   true,
			RateLimitPerMinute: 30,
			RateLimitBurst:     10,
			CORSPermissive:     true,
			RefreshInterval:    5 * time.Minute,
			RefreshWindow:      15 * time.Minute,
		},
		Logging: telemetry.LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads CONFIG_FILE (if set) and then applies environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	setString(&cfg.HTTPAddr, "HTTP_ADDR")

	setString(&cfg.Discord.APIBase, "DISCORD_API_BASE")
	setString(&cfg.Discord.WebBase, "DISCORD_WEB_BASE")
	setString(&cfg.Discord.Locale, "DISCORD_LOCALE")
	setString(&cfg.Discord.Token, "DISCORD_TOKEN")
	setString(&cfg.Discord.ClientID, "DISCORD_CLIENT_ID")
	setString(&cfg.Discord.ClientSecret, "DISCORD_CLIENT_SECRET")
	setString(&cfg.Discord.RedirectURI, "DISCORD_REDIRECT_URI")
	setString(&cfg.Discord.Scopes, "DISCORD_SCOPES")

	if err := setDuration(&cfg.Pacing.ChannelDelay, "CHANNEL_DELAY"); err != nil {
		return nil, err
	}
	if err := setDuration(&cfg.Pacing.OccupantDelay, "OCCUPANT_DELAY"); err != nil {
		return nil, err
	}

	setString(&cfg.Server.APIUsername, "API_USERNAME")
	setString(&cfg.Server.APIPassword, "API_PASSWORD")
	setString(&cfg.Server.APIToken, "API_TOKEN")
	setBool(&cfg.Server.RateLimitEnabled, "RATE_LIMIT_ENABLED")
	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Server.RateLimitPerMinute = f
		}
	}
	setInt(&cfg.Server.RateLimitBurst, "RATE_LIMIT_BURST")
	setBool(&cfg.Server.CORSPermissive, "CORS_PERMISSIVE")
	setList(&cfg.Server.CORSAllowedOrigins, "CORS_ALLOWED_ORIGINS")
	if err := setDuration(&cfg.Server.RefreshInterval, "OAUTH_REFRESH_INTERVAL"); err != nil {
		return nil, err
	}
	if err := setDuration(&cfg.Server.RefreshWindow, "OAUTH_REFRESH_WINDOW"); err != nil {
		return nil, err
	}

	setString(&cfg.DBDsn, "DB_DSN")
	setString(&cfg.EncryptionKey, "ENCRYPTION_KEY")
	setList(&cfg.RetiredEncryptionKeys, "ENCRYPTION_KEYS_RETIRED")

	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")
	setString(&cfg.Logging.FilePath, "LOG_FILE")
	setInt(&cfg.Logging.FileMaxSizeMB, "LOG_FILE_MAX_SIZE_MB")
	setInt(&cfg.Logging.FileMaxBackups, "LOG_FILE_MAX_BACKUPS")
	setInt(&cfg.Logging.FileMaxAgeDays, "LOG_FILE_MAX_AGE_DAYS")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the crawler cannot run with.
func (c *Config) Validate() error {
	if c.Pacing.ChannelDelay < 0 || c.Pacing.OccupantDelay < 0 {
		return errors.New("pacing delays must not be negative")
	}
	if c.Discord.APIBase == "" {
		return errors.New("discord api base must not be empty")
	}
	if (c.Server.APIUsername == "") != (c.Server.APIPassword == "") {
		return errors.New("API_USERNAME and API_PASSWORD must be set together")
	}
	return nil
}

// APIAuthEnabled reports whether any API credential is configured.
func (c *Config) APIAuthEnabled() bool {
	return c.Server.APIToken != "" || (c.Server.APIUsername != "" && c.Server.APIPassword != "")
}

// ValidateOAuthReady checks the fields the OAuth2 code flow needs.
func (c *Config) ValidateOAuthReady() error {
	if c.Discord.ClientID == "" || c.Discord.ClientSecret == "" || c.Discord.RedirectURI == "" {
		return fmt.Errorf("missing oauth env: require DISCORD_CLIENT_ID, DISCORD_CLIENT_SECRET, DISCORD_REDIRECT_URI")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	}
}

// setList splits a comma-separated variable, dropping empty items.
func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

// setDuration accepts Go duration strings ("300ms") or bare milliseconds ("300").
func setDuration(dst *time.Duration, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	if ms, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(ms) * time.Millisecond
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}
