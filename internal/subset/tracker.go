package subset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"corpora/internal/corpus"
	"corpora/internal/idgen"
	"corpora/internal/services"
	"corpora/internal/storage"
)

// Tracker persists subset status rows.
type Tracker struct {
	db     *storage.DB
	corpus *corpus.Store
	ids    idgen.Generator
}

// NewTracker wires a tracker. ids mints claim tokens.
func NewTracker(db *storage.DB, ids idgen.Generator) *Tracker {
	if ids == nil {
		ids = idgen.NewULID()
	}
	return &Tracker{db: db, corpus: corpus.NewStore(db), ids: ids}
}

func storageErr(op, detail string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return services.Wrap(services.ErrTimeout, "subset", op, detail, err)
	}
	return services.Wrap(services.ErrStorage, "subset", op, detail, err)
}

// Define creates a subset over table. Defining an existing subset with the
// same table and mirror flag adds any missing keys and is otherwise a no-op.
func (t *Tracker) Define(ctx context.Context, def Definition) (Subset, error) {
	def.Name = strings.TrimSpace(def.Name)
	def.Table = strings.TrimSpace(def.Table)
	if def.Name == "" {
		return Subset{}, services.Wrap(services.ErrValidation, "subset", "define", "subset name is empty", nil)
	}
	if def.Mirror && def.Keys != nil {
		return Subset{}, services.Wrap(services.ErrValidation, "subset", "define", "mirror subsets cover the whole table", nil)
	}
	exists, err := t.corpus.TableExists(ctx, def.Table)
	if err != nil {
		return Subset{}, err
	}
	if !exists {
		return Subset{}, services.Wrap(services.ErrNotFound, "subset", "define", fmt.Sprintf("table %q does not exist", def.Table), nil)
	}

	err = t.db.WithTx(ctx, func(tx *storage.Tx) error {
		var (
			table  string
			mirror bool
		)
		err := tx.QueryRowContext(ctx, "SELECT tbl, mirror FROM subsets WHERE name = ?", def.Name).Scan(&table, &mirror)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO subsets (name, tbl, mirror, created_at) VALUES (?, ?, ?, ?)",
				def.Name, def.Table, def.Mirror, storage.Now(),
			); err != nil {
				return err
			}
		case err != nil:
			return err
		case table != def.Table || mirror != def.Mirror:
			return services.Wrap(services.ErrValidation, "subset", "define",
				fmt.Sprintf("subset %q already defined over %q (mirror=%t)", def.Name, table, mirror), nil)
		}

		now := storage.Now()
		if def.Keys == nil {
			_, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO subset_rows (subset, doc_key, status, updated_at)
				SELECT ?, doc_key, ?, ? FROM documents WHERE tbl = ?
				UNION ALL
				SELECT ?, doc_key, ?, ? FROM artifacts WHERE tbl = ?`,
				def.Name, StatusUnprocessed, now, def.Table,
				def.Name, StatusUnprocessed, now, def.Table,
			)
			return err
		}
		for _, id := range def.Keys {
			if err := id.Validate(); err != nil {
				return services.Wrap(services.ErrValidation, "subset", "define", id.String(), err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO subset_rows (subset, doc_key, status, updated_at) VALUES (?, ?, ?, ?)",
				def.Name, id.Key(), StatusUnprocessed, now,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			return Subset{}, err
		}
		return Subset{}, storageErr("define", def.Name, err)
	}
	return t.Get(ctx, def.Name)
}

// Get returns a defined subset.
func (t *Tracker) Get(ctx context.Context, name string) (Subset, error) {
	var (
		s       Subset
		created sql.NullString
	)
	err := t.db.QueryRow(ctx, "SELECT name, tbl, mirror, created_at FROM subsets WHERE name = ?", name).
		Scan(&s.Name, &s.Table, &s.Mirror, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Subset{}, services.Wrap(services.ErrNotFound, "subset", "get", fmt.Sprintf("subset %q", name), nil)
	}
	if err != nil {
		return Subset{}, storageErr("get", name, err)
	}
	s.CreatedAt = storage.ParseTime(created)
	return s, nil
}

// List returns every subset ordered by name.
func (t *Tracker) List(ctx context.Context) ([]Subset, error) {
	return t.querySubsets(ctx, "SELECT name, tbl, mirror, created_at FROM subsets ORDER BY name")
}

// Mirrors returns the mirror subsets defined over table.
func (t *Tracker) Mirrors(ctx context.Context, table string) ([]Subset, error) {
	return t.querySubsets(ctx, "SELECT name, tbl, mirror, created_at FROM subsets WHERE tbl = ? AND mirror = 1 ORDER BY name", table)
}

func (t *Tracker) querySubsets(ctx context.Context, query string, args ...any) ([]Subset, error) {
	rows, err := t.db.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list", "", err)
	}
	defer rows.Close()
	var out []Subset
	for rows.Next() {
		var (
			s       Subset
			created sql.NullString
		)
		if err := rows.Scan(&s.Name, &s.Table, &s.Mirror, &created); err != nil {
			return nil, storageErr("list", "scan", err)
		}
		s.CreatedAt = storage.ParseTime(created)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list", "iterate", err)
	}
	return out, nil
}

func (t *Tracker) requireSubset(ctx context.Context, name string) error {
	_, err := t.Get(ctx, name)
	return err
}

// Status returns aggregate counts for subset.
func (t *Tracker) Status(ctx context.Context, name string) (Counts, error) {
	if err := t.requireSubset(ctx, name); err != nil {
		return Counts{}, err
	}
	rows, err := t.db.Query(ctx,
		"SELECT status, has_errors, COUNT(1) FROM subset_rows WHERE subset = ? GROUP BY status, has_errors", name)
	if err != nil {
		return Counts{}, storageErr("status", name, err)
	}
	defer rows.Close()

	var counts Counts
	for rows.Next() {
		var (
			status    Status
			hasErrors bool
			n         int
		)
		if err := rows.Scan(&status, &hasErrors, &n); err != nil {
			return Counts{}, storageErr("status", "scan", err)
		}
		counts.Total += n
		switch status {
		case StatusUnprocessed:
			counts.Unprocessed += n
		case StatusInProcess:
			counts.InProcess += n
			if hasErrors {
				counts.Failed += n
			}
		case StatusProcessed:
			counts.Processed += n
		}
	}
	if err := rows.Err(); err != nil {
		return Counts{}, storageErr("status", "iterate", err)
	}
	return counts, nil
}

// Lookup returns the status row for one document.
func (t *Tracker) Lookup(ctx context.Context, name string, id corpus.DocumentID) (Entry, error) {
	row := t.db.QueryRow(ctx, `
		SELECT doc_key, status, last_component, has_errors, error_message, claimed_by, host_name, pid, claimed_at, updated_at
		FROM subset_rows WHERE subset = ? AND doc_key = ?`, name, id.Key())
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, services.Wrap(services.ErrNotFound, "subset", "lookup", fmt.Sprintf("%s/%s", name, id), nil)
	}
	if err != nil {
		return Entry{}, storageErr("lookup", id.String(), err)
	}
	return entry, nil
}

// Failures lists in_process rows with a recorded error, oldest first.
func (t *Tracker) Failures(ctx context.Context, name string, limit int) ([]Entry, error) {
	if err := t.requireSubset(ctx, name); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := t.db.Query(ctx, `
		SELECT doc_key, status, last_component, has_errors, error_message, claimed_by, host_name, pid, claimed_at, updated_at
		FROM subset_rows WHERE subset = ? AND has_errors = 1 ORDER BY updated_at, doc_key LIMIT ?`, name, limit)
	if err != nil {
		return nil, storageErr("failures", name, err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, storageErr("failures", "scan", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("failures", "iterate", err)
	}
	return out, nil
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		key, status                            string
		lastComponent, errMsg, claimedBy, host sql.NullString
		hasErrors                              bool
		pid                                    sql.NullInt64
		claimedAt, updatedAt                   sql.NullString
	)
	if err := scanner.Scan(&key, &status, &lastComponent, &hasErrors, &errMsg, &claimedBy, &host, &pid, &claimedAt, &updatedAt); err != nil {
		return Entry{}, err
	}
	return Entry{
		ID:            corpus.ParseKey(key),
		Status:        Status(status),
		LastComponent: lastComponent.String,
		HasErrors:     hasErrors,
		ErrorMessage:  errMsg.String,
		ClaimedBy:     claimedBy.String,
		Host:          host.String,
		PID:           int(pid.Int64),
		ClaimedAt:     storage.ParseTime(claimedAt),
		UpdatedAt:     storage.ParseTime(updatedAt),
	}, nil
}
