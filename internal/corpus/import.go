package corpus

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"strings"

	"corpora/internal/services"
	"corpora/internal/storage"
)

const maxRecordBytes = 64 << 20

// Record is one document in a bulk import.
type Record struct {
	ID     DocumentID        `json:"id"`
	Fields map[string]string `json:"fields"`
}

// ImportResult summarizes a bulk import.
type ImportResult struct {
	Table     string
	Inserted  int
	Updated   int
	Unchanged int
	// NewKeys lists keys that did not exist before the import.
	NewKeys []string
}

// Touched reports whether the import wrote anything.
func (r ImportResult) Touched() bool {
	return r.Inserted+r.Updated > 0
}

// ReadJSONL decodes one Record per non-blank line.
func ReadJSONL(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordBytes)
	var records []Record
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, services.Wrap(services.ErrValidation, "corpus", "read jsonl", fmt.Sprintf("line %d", line), err)
		}
		if err := rec.ID.Validate(); err != nil {
			return nil, services.Wrap(services.ErrValidation, "corpus", "read jsonl", fmt.Sprintf("line %d", line), err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, services.Wrap(services.ErrValidation, "corpus", "read jsonl", "scan", err)
	}
	return records, nil
}

// ImportHook runs inside the import transaction after every record is
// written. An error rolls the whole import back.
type ImportHook func(ctx context.Context, tx *storage.Tx, result ImportResult) error

// Import upserts records into table inside one transaction, creating the
// table if needed. Rows whose fields are identical to the stored ones are left
// untouched. Hooks run last, in order, within the same transaction.
func (s *Store) Import(ctx context.Context, table string, records []Record, hooks ...ImportHook) (ImportResult, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return ImportResult{}, services.Wrap(services.ErrValidation, "corpus", "import", "table name is empty", nil)
	}
	for i, rec := range records {
		if err := rec.ID.Validate(); err != nil {
			return ImportResult{}, services.Wrap(services.ErrValidation, "corpus", "import", fmt.Sprintf("record %d", i), err)
		}
	}

	var result ImportResult
	err := s.db.WithTx(ctx, func(tx *storage.Tx) error {
		result = ImportResult{Table: table}
		now := storage.Now()
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO corpus_tables (name, kind, created_at) VALUES (?, ?, ?)",
			table, KindSource, now,
		); err != nil {
			return err
		}
		for _, rec := range records {
			key := rec.ID.Key()
			var existing string
			err := tx.QueryRowContext(ctx, "SELECT fields FROM documents WHERE tbl = ? AND doc_key = ?", table, key).Scan(&existing)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				result.Inserted++
				result.NewKeys = append(result.NewKeys, key)
			case err != nil:
				return err
			default:
				current, decodeErr := decodeFields(existing)
				if decodeErr == nil && maps.Equal(current, rec.Fields) {
					result.Unchanged++
					continue
				}
				result.Updated++
			}
			encoded, err := encodeFields(rec.Fields)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO documents (tbl, doc_key, fields, updated_at) VALUES (?, ?, ?, ?)
				ON CONFLICT(tbl, doc_key) DO UPDATE SET fields = excluded.fields, updated_at = excluded.updated_at`,
				table, key, encoded, now,
			); err != nil {
				return err
			}
		}
		for _, hook := range hooks {
			if err := hook(ctx, tx, result); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			return ImportResult{}, err
		}
		return ImportResult{}, services.Wrap(services.ErrStorage, "corpus", "import", table, err)
	}
	return result, nil
}
