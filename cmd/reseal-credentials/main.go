// Command reseal-credentials re-encrypts stored credentials under the current
// ENCRYPTION_KEY. Plaintext rows (encryption_version=0) are sealed and rows
// sealed under a key listed in ENCRYPTION_KEYS_RETIRED are rotated.
//
// Usage:
//
//	reseal-credentials [--dry-run]
//
// Environment Variables:
//
//	DB_DSN: Database connection string (required)
//	ENCRYPTION_KEY: Base64-encoded 32-byte encryption key (required)
//	ENCRYPTION_KEYS_RETIRED: comma-separated keys rows may still be sealed with
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/chanscope/config"
	"github.com/onnwee/chanscope/crypto"
	"github.com/onnwee/chanscope/db"
	"github.com/onnwee/chanscope/telemetry"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "List rows that would be resealed without changing them")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	_, closer := telemetry.SetupLogging(cfg.Logging)
	defer func() { _ = closer.Close() }()

	if err := run(cfg, *dryRun); err != nil {
		slog.Error("reseal failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, dryRun bool) error {
	if cfg.DBDsn == "" {
		return errors.New("DB_DSN is required")
	}
	if cfg.EncryptionKey == "" {
		return errors.New("ENCRYPTION_KEY is required")
	}
	keys, err := crypto.NewKeyring(cfg.EncryptionKey, cfg.RetiredEncryptionKeys...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	database, err := db.Connect(ctx, cfg.DBDsn)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	store := db.NewStore(database, keys)
	pending, err := store.PendingReseal(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		slog.Info("all credentials already sealed under the primary key", slog.String("key_id", keys.Primary().KeyID()))
		return nil
	}
	if dryRun {
		for _, p := range pending {
			slog.Info("would reseal credential (dry-run)", slog.String("provider", p))
		}
		return nil
	}

	n, err := store.Reseal(ctx)
	slog.Info("reseal summary", slog.Int("pending", len(pending)), slog.Int("resealed", n))
	return err
}
