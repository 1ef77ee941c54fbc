// Package cli holds startup plumbing shared by the bursar binaries:
// environment loading, logger construction, config validation, and the
// SQLite handle both processes open.
package cli

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"bursar/internal/config"
	applog "bursar/internal/log"
	"bursar/internal/storage"
)

// Bootstrap loads .env when present, installs the default logger, and
// returns the validated configuration. The process exits when the
// configuration is unusable, since neither binary can run without it.
func Bootstrap() (*slog.Logger, *config.Config) {
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig()).Logger
	slog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	return logger, cfg
}

// InitSQLite opens the ledger database, running migrations on the way in.
// Exits on failure for the same reason Bootstrap does.
func InitSQLite(logger *slog.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to open ledger database", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}
