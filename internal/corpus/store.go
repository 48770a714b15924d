package corpus

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"corpora/internal/services"
	"corpora/internal/storage"
)

const (
	// KindSource marks tables that hold imported documents.
	KindSource = "source"
	// KindArtifact marks tables that hold pipeline output.
	KindArtifact = "artifact"
)

// Row is one stored document.
type Row struct {
	Table     string
	ID        DocumentID
	Fields    map[string]string
	UpdatedAt time.Time
}

// Field returns a named field value.
func (r Row) Field(name string) (string, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

// TableInfo describes a registered table.
type TableInfo struct {
	Name      string
	Kind      string
	Documents int
}

// Store reads and writes corpus tables.
type Store struct {
	db *storage.DB
}

// NewStore wraps db.
func NewStore(db *storage.DB) *Store {
	return &Store{db: db}
}

// CreateTable registers a source table. Creating an existing table is a no-op.
func (s *Store) CreateTable(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return services.Wrap(services.ErrValidation, "corpus", "create table", "table name is empty", nil)
	}
	if _, err := s.db.Exec(ctx,
		"INSERT OR IGNORE INTO corpus_tables (name, kind, created_at) VALUES (?, ?, ?)",
		name, KindSource, storage.Now(),
	); err != nil {
		return services.Wrap(services.ErrStorage, "corpus", "create table", name, err)
	}
	return nil
}

// TableExists reports whether name is a registered table of any kind.
func (s *Store) TableExists(ctx context.Context, name string) (bool, error) {
	var count int
	if err := s.db.QueryRow(ctx, "SELECT COUNT(1) FROM corpus_tables WHERE name = ?", name).Scan(&count); err != nil {
		return false, services.Wrap(services.ErrStorage, "corpus", "table exists", name, err)
	}
	return count > 0, nil
}

// Tables lists registered tables with their row counts.
func (s *Store) Tables(ctx context.Context) ([]TableInfo, error) {
	rows, err := s.db.Query(ctx, `
		SELECT t.name, t.kind,
		       CASE t.kind
		         WHEN 'artifact' THEN (SELECT COUNT(1) FROM artifacts a WHERE a.tbl = t.name)
		         ELSE (SELECT COUNT(1) FROM documents d WHERE d.tbl = t.name)
		       END
		FROM corpus_tables t ORDER BY t.name`)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "corpus", "list tables", "", err)
	}
	defer rows.Close()
	var out []TableInfo
	for rows.Next() {
		var info TableInfo
		if err := rows.Scan(&info.Name, &info.Kind, &info.Documents); err != nil {
			return nil, services.Wrap(services.ErrStorage, "corpus", "list tables", "scan", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// Get loads one document.
func (s *Store) Get(ctx context.Context, table string, id DocumentID) (Row, error) {
	row := s.db.QueryRow(ctx,
		"SELECT fields, updated_at FROM documents WHERE tbl = ? AND doc_key = ?", table, id.Key())
	var (
		raw     string
		updated sql.NullString
	)
	if err := row.Scan(&raw, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Row{}, services.Wrap(services.ErrNotFound, "corpus", "get", fmt.Sprintf("%s/%s", table, id), nil)
		}
		return Row{}, services.Wrap(services.ErrStorage, "corpus", "get", id.String(), err)
	}
	fields, err := decodeFields(raw)
	if err != nil {
		return Row{}, services.Wrap(services.ErrStorage, "corpus", "get", "decode fields", err)
	}
	return Row{Table: table, ID: id, Fields: fields, UpdatedAt: storage.ParseTime(updated)}, nil
}

// GetMany loads the given documents in one round trip per chunk, keyed by
// DocumentID.Key. Missing ids are absent from the result.
func (s *Store) GetMany(ctx context.Context, table string, ids []DocumentID) (map[string]Row, error) {
	out := make(map[string]Row, len(ids))
	for _, chunk := range storage.Chunk(Keys(ids), 500) {
		args := make([]any, 0, len(chunk)+1)
		args = append(args, table)
		for _, key := range chunk {
			args = append(args, key)
		}
		rows, err := s.db.Query(ctx,
			"SELECT doc_key, fields, updated_at FROM documents WHERE tbl = ? AND doc_key IN ("+storage.Placeholders(len(chunk))+")",
			args...)
		if err != nil {
			return nil, services.Wrap(services.ErrStorage, "corpus", "get many", table, err)
		}
		for rows.Next() {
			var (
				key, raw string
				updated  sql.NullString
			)
			if err := rows.Scan(&key, &raw, &updated); err != nil {
				rows.Close()
				return nil, services.Wrap(services.ErrStorage, "corpus", "get many", "scan", err)
			}
			fields, err := decodeFields(raw)
			if err != nil {
				rows.Close()
				return nil, services.Wrap(services.ErrStorage, "corpus", "get many", "decode fields", err)
			}
			out[key] = Row{Table: table, ID: ParseKey(key), Fields: fields, UpdatedAt: storage.ParseTime(updated)}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, services.Wrap(services.ErrStorage, "corpus", "get many", "iterate", err)
		}
	}
	return out, nil
}

// Keys returns every document key in table, ordered.
func (s *Store) Keys(ctx context.Context, table string) ([]string, error) {
	rows, err := s.db.Query(ctx, "SELECT doc_key FROM documents WHERE tbl = ? ORDER BY doc_key", table)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "corpus", "keys", table, err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, services.Wrap(services.ErrStorage, "corpus", "keys", "scan", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func decodeFields(raw string) (map[string]string, error) {
	fields := map[string]string{}
	if raw == "" {
		return fields, nil
	}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func encodeFields(fields map[string]string) (string, error) {
	if fields == nil {
		fields = map[string]string{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
