package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/ignite/coach-nudge/internal/pkg/logger"
)

const migrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		name        TEXT PRIMARY KEY,
		applied_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

func main() {
	dir := flag.String("dir", "migrations", "directory of .sql files")
	listOnly := flag.Bool("list", false, "list applied migrations and exit")
	flag.Parse()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, migrationsTable); err != nil {
		logger.Error("create schema_migrations failed", "error", err)
		os.Exit(1)
	}

	var applied []string
	if err := db.SelectContext(ctx, &applied, `SELECT name FROM schema_migrations ORDER BY name`); err != nil {
		logger.Error("read schema_migrations failed", "error", err)
		os.Exit(1)
	}

	if *listOnly {
		for _, name := range applied {
			fmt.Println(" ", name)
		}
		fmt.Printf("Total: %d applied\n", len(applied))
		return
	}

	files, err := pending(*dir, applied)
	if err != nil {
		logger.Error("read migrations failed", "dir", *dir, "error", err)
		os.Exit(1)
	}

	for _, f := range files {
		if err := apply(ctx, db, filepath.Join(*dir, f), f); err != nil {
			logger.Error("migration failed", "file", f, "error", err)
			os.Exit(1)
		}
		logger.Info("migration applied", "file", f)
	}
	logger.Info("migrations complete", "applied", len(files), "already_applied", len(applied))
}

// pending returns the .sql files in dir not yet applied, in name order.
func pending(dir string, applied []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(applied))
	for _, a := range applied {
		done[a] = true
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") && !done[e.Name()] {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// apply runs one file and records it in the same transaction.
func apply(ctx context.Context, db *sqlx.DB, path, name string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if strings.TrimSpace(string(data)) != "" {
		if _, err := tx.ExecContext(ctx, string(data)); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
		return err
	}
	return tx.Commit()
}
