package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samirrijal/pinmap/internal/pkg/config"
	"github.com/samirrijal/pinmap/internal/pkg/logging"
)

const migrationsDir = "migrations"

const createVersionTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		name       TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

// Usage: migrate <up|status>
func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|status>")
	}

	cfg, err := config.Load("pinmap-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format, "pinmap-migrate")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, createVersionTable); err != nil {
		log.Fatalf("schema_migrations: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.sql"))
	if err != nil {
		log.Fatalf("list migrations: %v", err)
	}
	sort.Strings(files)

	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		log.Fatalf("read applied migrations: %v", err)
	}

	switch os.Args[1] {
	case "up":
		n := 0
		for _, f := range files {
			name := filepath.Base(f)
			if applied[name] {
				continue
			}
			if err := apply(ctx, pool, f, name); err != nil {
				log.Fatalf("%s: %v", name, err)
			}
			logger.Info("migration applied", "name", name)
			n++
		}
		logger.Info("migrations up to date", "applied", n, "total", len(files))
	case "status":
		for _, f := range files {
			name := filepath.Base(f)
			state := "pending"
			if applied[name] {
				state = "applied"
			}
			fmt.Printf("%-8s %s\n", state, name)
		}
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}

func appliedMigrations(ctx context.Context, pool *pgxpool.Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out, nil
}

// apply runs one file and records it in the same transaction.
func apply(ctx context.Context, pool *pgxpool.Pool, path, name string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("exec: %w", err)
		}
		_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name)
		return err
	})
}
