package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("CHANNEL_DELAY", "")
	t.Setenv("OCCUPANT_DELAY", "")
	t.Setenv("DISCORD_API_BASE", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Pacing.ChannelDelay != 300*time.Millisecond {
		t.Errorf("ChannelDelay = %v, want 300ms", cfg.Pacing.ChannelDelay)
	}
	if cfg.Pacing.OccupantDelay != 200*time.Millisecond {
		t.Errorf("OccupantDelay = %v, want 200ms", cfg.Pacing.OccupantDelay)
	}
	if cfg.Discord.APIBase != DefaultAPIBase {
		t.Errorf("APIBase = %q, want %q", cfg.Discord.APIBase, DefaultAPIBase)
	}
}

func TestLoadDelayFormats(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    time.Duration
		wantErr bool
	}{
		{name: "duration string", value: "1s", want: time.Second},
		{name: "bare milliseconds", value: "150", want: 150 * time.Millisecond},
		{name: "zero disables pacing", value: "0", want: 0},
		{name: "garbage", value: "soon", wantErr: true},
		{name: "negative", value: "-5ms", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", "")
			t.Setenv("CHANNEL_DELAY", tt.value)
			cfg, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Load() error = nil, want error for %q", tt.value)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			if cfg.Pacing.ChannelDelay != tt.want {
				t.Errorf("ChannelDelay = %v, want %v", cfg.Pacing.ChannelDelay, tt.want)
			}
		})
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chanscope.yaml")
	content := `
http_addr: ":9090"
discord:
  locale: ru
  api_base: http://file.example/api
pacing:
  channel_delay: 500ms
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DISCORD_API_BASE", "http://env.example/api")
	t.Setenv("CHANNEL_DELAY", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want :9090 from file", cfg.HTTPAddr)
	}
	if cfg.Discord.Locale != "ru" {
		t.Errorf("Locale = %q, want ru", cfg.Discord.Locale)
	}
	if cfg.Discord.APIBase != "http://env.example/api" {
		t.Errorf("APIBase = %q, env should win over file", cfg.Discord.APIBase)
	}
	if cfg.Pacing.ChannelDelay != 500*time.Millisecond {
		t.Errorf("ChannelDelay = %v, want 500ms", cfg.Pacing.ChannelDelay)
	}
	if cfg.Pacing.OccupantDelay != DefaultOccupantDelay {
		t.Errorf("OccupantDelay = %v, want default", cfg.Pacing.OccupantDelay)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "read config file") {
		t.Errorf("Load() error = %v, want read config file error", err)
	}
}

func TestValidateOAuthReady(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DISCORD_CLIENT_ID", "id")
	t.Setenv("DISCORD_CLIENT_SECRET", "secret")
	t.Setenv("DISCORD_REDIRECT_URI", "http://localhost:8080/auth/discord/callback")
	cfg, _ := Load()
	if err := cfg.ValidateOAuthReady(); err != nil {
		t.Errorf("expected valid oauth config, got %v", err)
	}
	t.Setenv("DISCORD_CLIENT_SECRET", "")
	cfg, _ = Load()
	if err := cfg.ValidateOAuthReady(); err == nil {
		t.Errorf("expected error when DISCORD_CLIENT_SECRET missing")
	}
}

func TestLoadServerSettings(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("API_TOKEN", "secret")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("CORS_PERMISSIVE", "0")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("ENCRYPTION_KEYS_RETIRED", "k1,k2")
	t.Setenv("OAUTH_REFRESH_WINDOW", "20m")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.APIAuthEnabled() || cfg.Server.RateLimitEnabled || cfg.Server.CORSPermissive {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if got := cfg.Server.CORSAllowedOrigins; len(got) != 2 || got[1] != "https://b.example" {
		t.Errorf("CORSAllowedOrigins = %v", got)
	}
	if len(cfg.RetiredEncryptionKeys) != 2 || cfg.Server.RefreshWindow != 20*time.Minute {
		t.Errorf("retired keys = %v, window = %v", cfg.RetiredEncryptionKeys, cfg.Server.RefreshWindow)
	}
}

func TestValidateAPIUserPasswordPair(t *testing.T) {
	cfg := Default()
	cfg.Server.APIUsername = "admin"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted a username without a password")
	}
	cfg.Server.APIPassword = "pw"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if !cfg.APIAuthEnabled() {
		t.Error("APIAuthEnabled() = false with basic auth configured")
	}
}
