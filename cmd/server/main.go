// Package main is the entry point for the user directory server.
//
// main stays minimal: read configuration, build the logger, make sure the
// database directory exists, then hand everything to internal/server.
//
// Configuration (environment variables, all optional):
//
//	PORT                   8080
//	DB_PATH                data/users.db
//	LOG_LEVEL              info   (debug, info, warn, error)
//	LOG_FORMAT             text   (text, json)
//	RATE_LIMIT_PER_MINUTE  600    (per client IP; 0 disables)
//	SHUTDOWN_TIMEOUT       30s
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/user-directory/internal/config"
	"github.com/sakif/user-directory/internal/logger"
	sqliteRepo "github.com/sakif/user-directory/internal/repository/sqlite"
	"github.com/sakif/user-directory/internal/server"
)

func main() {
	cfg := config.Load()

	log := logger.Setup(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	// os.MkdirAll is a no-op when the directory already exists.
	if cfg.DBPath != sqliteRepo.MemoryPath {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			log.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	srv, err := server.New(cfg, log)
	if err != nil {
		log.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		log.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
