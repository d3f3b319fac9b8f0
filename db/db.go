// Package db persists upstream credentials in Postgres, sealing token material
// at rest when an encryption key is configured.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/onnwee/chanscope/crypto"
)

// ProviderDiscord is the credentials row holding the active Discord session.
const ProviderDiscord = "discord"

// ErrNotFound is returned when no credential is stored for a provider.
var ErrNotFound = errors.New("credential not found")

// Credential is a stored session. Token and RefreshToken are plaintext here;
// Store encrypts them on the way in.
type Credential struct {
	Provider     string
	Token        string
	TokenType    string
	RefreshToken string
	Expiry       time.Time
	Scope        string
	Locale       string
	Fingerprint  string
	UpdatedAt    time.Time
}

// Connect opens a Postgres connection pool for dsn and verifies it answers.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty DSN")
	}
	dbx, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	dbx.SetMaxOpenConns(5)
	dbx.SetConnMaxIdleTime(5 * time.Minute)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := dbx.PingContext(pctx); err != nil {
		_ = dbx.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return dbx, nil
}

// Store reads and writes the credentials table. A nil keyring stores tokens
// in plaintext (encryption_version 0).
type Store struct {
	DB   *sql.DB
	Keys *crypto.Keyring
}

// NewStore returns a Store. When keys is nil a warning is logged once.
func NewStore(dbx *sql.DB, keys *crypto.Keyring) *Store {
	if keys == nil {
		slog.Warn("ENCRYPTION_KEY not set, credentials will be stored in plaintext (not recommended for production)", slog.String("component", "db_encryption"))
	}
	return &Store{DB: dbx, Keys: keys}
}

// Ping checks database reachability.
func (s *Store) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

// UpsertCredential stores or replaces the credential for c.Provider.
func (s *Store) UpsertCredential(ctx context.Context, c Credential) error {
	if c.Provider == "" {
		return fmt.Errorf("provider empty")
	}
	if c.Token == "" {
		return fmt.Errorf("token empty")
	}
	token, refresh := c.Token, c.RefreshToken
	encVersion := 0
	var keyID sql.NullString
	if s.Keys != nil {
		enc := s.Keys.Primary()
		var err error
		if token, err = crypto.EncryptString(enc, c.Token); err != nil {
			return fmt.Errorf("encrypt token: %w", err)
		}
		if refresh, err = crypto.EncryptString(enc, c.RefreshToken); err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
		encVersion = 1
		keyID = sql.NullString{String: enc.KeyID(), Valid: true}
	}
	var expiry sql.NullTime
	if !c.Expiry.IsZero() {
		expiry = sql.NullTime{Time: c.Expiry, Valid: true}
	}

	q := `INSERT INTO credentials(provider, token, token_type, refresh_token, expires_at, scope, locale, fingerprint, encryption_version, encryption_key_id, updated_at)
		  VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW())
		  ON CONFLICT(provider) DO UPDATE SET
		    token=EXCLUDED.token,
		    token_type=EXCLUDED.token_type,
		    refresh_token=EXCLUDED.refresh_token,
		    expires_at=EXCLUDED.expires_at,
		    scope=EXCLUDED.scope,
		    locale=EXCLUDED.locale,
		    fingerprint=EXCLUDED.fingerprint,
		    encryption_version=EXCLUDED.encryption_version,
		    encryption_key_id=EXCLUDED.encryption_key_id,
		    updated_at=NOW()`
	_, err := s.DB.ExecContext(ctx, q, c.Provider, token, c.TokenType, refresh, expiry, c.Scope, c.Locale, c.Fingerprint, encVersion, keyID)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

// GetCredential loads the credential for provider, decrypting it when the row
// was sealed. Rows sealed under a retired key open as long as the keyring
// still holds that key.
func (s *Store) GetCredential(ctx context.Context, provider string) (*Credential, error) {
	var (
		c          = Credential{Provider: provider}
		expiry     sql.NullTime
		encVersion int
		keyID      sql.NullString
	)
	row := s.DB.QueryRowContext(ctx,
		`SELECT token, token_type, refresh_token, expires_at, scope, locale, fingerprint, encryption_version, encryption_key_id, updated_at
		 FROM credentials WHERE provider = $1`, provider)
	err := row.Scan(&c.Token, &c.TokenType, &c.RefreshToken, &expiry, &c.Scope, &c.Locale, &c.Fingerprint, &encVersion, &keyID, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	if expiry.Valid {
		c.Expiry = expiry.Time
	}
	if encVersion == 1 {
		if s.Keys == nil {
			return nil, fmt.Errorf("credential is encrypted but ENCRYPTION_KEY not configured")
		}
		enc, err := s.Keys.For(keyID.String)
		if err != nil {
			return nil, err
		}
		if c.Token, err = crypto.DecryptString(enc, c.Token); err != nil {
			return nil, fmt.Errorf("decrypt token: %w", err)
		}
		if c.RefreshToken, err = crypto.DecryptString(enc, c.RefreshToken); err != nil {
			return nil, fmt.Errorf("decrypt refresh token: %w", err)
		}
	}
	return &c, nil
}

// DeleteCredential removes the credential for provider. Deleting a missing
// row is not an error.
func (s *Store) DeleteCredential(ctx context.Context, provider string) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM credentials WHERE provider = $1`, provider); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

// PendingReseal lists providers whose rows are plaintext or sealed under a
// key other than the keyring's primary.
func (s *Store) PendingReseal(ctx context.Context) ([]string, error) {
	if s.Keys == nil {
		return nil, fmt.Errorf("no encryption key configured")
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT provider FROM credentials WHERE encryption_version = 0 OR encryption_key_id IS DISTINCT FROM $1 ORDER BY provider`,
		s.Keys.Primary().KeyID())
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var providers []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

// Reseal rewrites every pending row under the keyring's primary key,
// encrypting plaintext rows and rotating rows sealed under retired keys. It
// returns the number of rows rewritten.
func (s *Store) Reseal(ctx context.Context) (int, error) {
	providers, err := s.PendingReseal(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range providers {
		c, err := s.GetCredential(ctx, p)
		if err != nil {
			return n, fmt.Errorf("reseal %s: %w", p, err)
		}
		if err := s.UpsertCredential(ctx, *c); err != nil {
			return n, fmt.Errorf("reseal %s: %w", p, err)
		}
		n++
		slog.Info("credential resealed", slog.String("provider", p), slog.String("key_id", s.Keys.Primary().KeyID()), slog.String("component", "db_encryption"))
	}
	return n, nil
}
