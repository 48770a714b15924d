package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

var requiredTables = []string{"corpus_tables", "documents", "subsets", "subset_rows", "artifacts"}

// Health reports database diagnostics.
type Health struct {
	Path          string
	Exists        bool
	Readable      bool
	Integrity     string
	MissingTables []string
	Migrations    []string
	Error         string
}

// OK reports whether the database passed every check.
func (h Health) OK() bool {
	return h.Exists && h.Readable && h.Integrity == "ok" && len(h.MissingTables) == 0 && h.Error == ""
}

// CheckHealth returns diagnostic information about the database.
func (d *DB) CheckHealth(ctx context.Context) (Health, error) {
	health := Health{Path: d.path}
	if d.path == "" {
		return health, errors.New("database path is unknown")
	}

	info, err := os.Stat(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("database path %q is a directory", d.path)
	}
	health.Exists = true

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 5*time.Second)
	defer cancel()

	if err := d.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping database: %w", err)
	}
	health.Readable = true

	for _, table := range requiredTables {
		var count int
		if err := d.db.QueryRowContext(connCtx,
			"SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&count); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("query table %s: %w", table, err)
		}
		if count == 0 {
			health.MissingTables = append(health.MissingTables, table)
		}
	}

	if err := d.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&health.Integrity); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}

	migrations, err := d.AppliedMigrations(connCtx)
	if err != nil {
		health.Error = err.Error()
		return health, err
	}
	health.Migrations = migrations
	return health, nil
}
