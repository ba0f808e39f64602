package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"stefabooks/internal/config"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, status, version, create")
		name    = flag.String("name", "", "Name for 'create' command")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	loadEnvFiles()
	dir := migrationsDir()

	if *command == "create" {
		if *name == "" {
			fatal(log, "name is required for 'create' command")
		}
		if err := goose.Create(nil, dir, *name, "sql"); err != nil {
			fatal(log, "failed to create migration", "error", err)
		}
		log.Info("migration created", "name", *name, "dir", dir)
		return
	}

	dsn := databaseDSN()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		fatal(log, "failed to connect to database", "dsn", config.RedactDSN(dsn), "error", err)
	}
	defer pool.Close()

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		fatal(log, "failed to set dialect", "error", err)
	}

	switch *command {
	case "up":
		err = goose.UpContext(ctx, db, dir)
	case "down":
		err = goose.DownContext(ctx, db, dir)
	case "status":
		err = goose.StatusContext(ctx, db, dir)
	case "version":
		err = goose.VersionContext(ctx, db, dir)
	default:
		fatal(log, "unknown command, use: up, down, status, version, create", "command", *command)
	}
	if err != nil {
		fatal(log, "migration failed", "command", *command, "error", err)
	}
	log.Info("migration finished", "command", *command, "dir", dir)
}

func fatal(log *slog.Logger, msg string, args ...any) {
	log.Error(msg, args...)
	os.Exit(1)
}
