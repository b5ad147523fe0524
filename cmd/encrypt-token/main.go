// Command encrypt-token upgrades a plaintext stored access token to
// AES-256-GCM encrypted storage. Useful after setting ENCRYPTION_KEY on a
// deployment that previously ran without one.
//
// Usage:
//
//	encrypt-token [--dry-run]
//
// Environment Variables:
//
//	DB_DSN: Database connection string (required)
//	ENCRYPTION_KEY: Base64-encoded 32-byte encryption key (required)
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/Altoar/twitch-livelist/crypto"
	"github.com/Altoar/twitch-livelist/db"
	"github.com/Altoar/twitch-livelist/state"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "show what would be migrated without making changes")
	flag.Parse()

	key := os.Getenv("ENCRYPTION_KEY")
	if key == "" {
		slog.Error("ENCRYPTION_KEY is required")
		os.Exit(1)
	}
	enc, err := crypto.NewAESEncryptor(key)
	if err != nil {
		slog.Error("invalid ENCRYPTION_KEY", slog.Any("err", err))
		os.Exit(1)
	}

	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	kv := &db.KV{DB: database}
	stored, ok, err := kv.Get(ctx, state.KeyAccessToken)
	if err != nil {
		slog.Error("failed to read token", slog.Any("err", err))
		os.Exit(1)
	}
	if !ok || stored == "" {
		slog.Info("no stored token, nothing to do")
		return
	}

	// A value that decrypts cleanly is already migrated.
	if _, err := crypto.DecryptString(enc, stored); err == nil {
		slog.Info("token already encrypted, nothing to do")
		return
	}

	if *dryRun {
		slog.Info("dry run: would encrypt stored token")
		return
	}

	encrypted, err := crypto.EncryptString(enc, stored)
	if err != nil {
		slog.Error("encryption failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := kv.Set(ctx, state.KeyAccessToken, encrypted); err != nil {
		slog.Error("failed to write encrypted token", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("stored token encrypted")
}
