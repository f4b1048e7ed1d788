// Package main provides the ceropos binary: backup, restore, inspection and
// validation of .cerobak archives for the CeroPOS point-of-sale data, plus a
// daemon mode that runs the auto-backup policy.
//
// The application flow:
//  1. Dispatch the subcommand.
//  2. Load configuration from environment variables and validate it.
//  3. Open the SQLite database and the image/settings stores.
//  4. Run the requested backup operation.
//
// All data lives under one data directory; archives are the only files the
// user manages outside it. There is no network I/O anywhere.
package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ceroware/ceropos/internal/archive"
	"github.com/ceroware/ceropos/internal/backup"
	"github.com/ceroware/ceropos/internal/config"
	"github.com/ceroware/ceropos/internal/crypto"
	"github.com/ceroware/ceropos/internal/events"
	"github.com/ceroware/ceropos/internal/settings"
	"github.com/ceroware/ceropos/internal/store/filesystem"
	"github.com/ceroware/ceropos/internal/store/sqlite"
)

// appVersion is stamped into archive metadata.
const appVersion = "1.2.0"

// realClock implements backup.Clock using time.Now.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// app bundles the wired stores and orchestrator for one command invocation.
type app struct {
	cfg      *config.Config
	db       *sql.DB
	settings *settings.Store
	bus      *events.Bus
	svc      *backup.Service
	log      *slog.Logger
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg)
	slog.SetDefault(log)

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	if err := os.MkdirAll(cfg.BackupPath(), 0o700); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	data, err := sqlite.New(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init database schema: %w", err)
	}
	images, err := filesystem.New(cfg.ImagesPath())
	if err != nil {
		db.Close()
		return nil, err
	}
	settingsStore, err := settings.New(cfg.DataDir)
	if err != nil {
		db.Close()
		return nil, err
	}

	clock := realClock{}
	bus := events.NewBus()
	svc := &backup.Service{
		Data:     data,
		Images:   images,
		Settings: settingsStore,
		Clock:    clock,
		Codec:    &archive.Codec{AppVersion: appVersion, Log: log, Now: clock.Now},
		Bus:      bus,
		Log:      log,
	}
	return &app{cfg: cfg, db: db, settings: settingsStore, bus: bus, svc: svc, log: log}, nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func usage(w *os.File) {
	fmt.Fprintln(w, `Usage: ceropos <command> [options]

Commands:
  backup    Create a backup archive of the current dataset
  restore   Restore a backup archive into the live dataset
  inspect   Preview an archive's contents without restoring
  check     Validate an archive's structure
  auto      Run the auto-backup daemon
  seed      Insert demonstration records into an empty database
  version   Print the application version

Run 'ceropos <command> -help' for command options.`)
}

func run(args []string) int {
	if len(args) == 0 {
		usage(os.Stderr)
		return 2
	}
	switch args[0] {
	case "backup":
		return backupCmd(args[1:])
	case "restore":
		return restoreCmd(args[1:])
	case "inspect":
		return inspectCmd(args[1:])
	case "check":
		return checkCmd(args[1:])
	case "auto":
		return autoCmd(args[1:])
	case "seed":
		return seedCmd(args[1:])
	case "version":
		fmt.Println("ceropos " + appVersion)
		return 0
	case "help", "-h", "-help", "--help":
		usage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		usage(os.Stderr)
		return 2
	}
}

func fail(err error) int {
	switch {
	case errors.Is(err, crypto.ErrAuthentication):
		fmt.Fprintln(os.Stderr, "Error: incorrect password")
	case errors.Is(err, archive.ErrInvalidArchive):
		fmt.Fprintln(os.Stderr, "Error: invalid or corrupt backup file")
	case errors.Is(err, archive.ErrUnsupportedVersion):
		fmt.Fprintln(os.Stderr, "Error: this backup requires a newer version of the application")
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return 1
}

func main() {
	os.Exit(run(os.Args[1:]))
}
