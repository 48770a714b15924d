package artifact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"corpora/internal/corpus"
	"corpora/internal/logging"
	"corpora/internal/services"
	"corpora/internal/storage"
	"corpora/internal/subset"
)

// HashCache is an optional read-through cache in front of stored hashes.
type HashCache interface {
	Get(ctx context.Context, table, key string) (string, bool, error)
	GetMany(ctx context.Context, table string, keys []string) (map[string]string, error)
	Set(ctx context.Context, table, key, hash string) error
	SetMany(ctx context.Context, table string, hashes map[string]string) error
}

// Record is one stored artifact row.
type Record struct {
	Table      string
	ID         corpus.DocumentID
	Artifact   string
	HashColumn string
	Hash       string
	UpdatedAt  time.Time
}

// PutResult reports what a Put changed.
type PutResult struct {
	Created bool
	Changed bool
	// Mirrored counts mirror subset rows added or reset by the write.
	Mirrored int
}

// Store reads and writes one artifact table.
type Store struct {
	db         *storage.DB
	table      string
	hashColumn string
	cache      HashCache
	logger     *slog.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithCache fronts hash lookups with cache.
func WithCache(cache HashCache) Option {
	return func(s *Store) { s.cache = cache }
}

// WithLogger sets the logger used for cache warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore binds a store to table. hashField names the hashed source field.
func NewStore(db *storage.DB, table, hashField string, opts ...Option) *Store {
	s := &Store{
		db:         db,
		table:      strings.TrimSpace(table),
		hashColumn: HashColumn(hashField),
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Table returns the bound artifact table.
func (s *Store) Table() string {
	return s.table
}

// LookupHash returns the stored hash for id.
func (s *Store) LookupHash(ctx context.Context, id corpus.DocumentID) (string, bool, error) {
	key := id.Key()
	if s.cache != nil {
		hash, ok, err := s.cache.Get(ctx, s.table, key)
		if err != nil {
			s.logger.Warn("hash cache lookup failed",
				logging.String(logging.FieldTable, s.table),
				logging.Error(err),
			)
		} else if ok {
			return hash, true, nil
		}
	}
	var hash string
	err := s.db.QueryRow(ctx, "SELECT hash FROM artifacts WHERE tbl = ? AND doc_key = ?", s.table, key).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, services.Wrap(services.ErrStorage, "artifact", "lookup hash", id.String(), err)
	}
	s.remember(ctx, key, hash)
	return hash, true, nil
}

// LookupHashes returns stored hashes for ids keyed by DocumentID.Key. Ids
// without an artifact are absent. Cached hashes are served first and the
// database is queried only for the rest.
func (s *Store) LookupHashes(ctx context.Context, ids []corpus.DocumentID) (map[string]string, error) {
	keys := corpus.Keys(ids)
	out := make(map[string]string, len(keys))
	missing := keys
	if s.cache != nil && len(keys) > 0 {
		cached, err := s.cache.GetMany(ctx, s.table, keys)
		if err != nil {
			s.logger.Warn("hash cache lookup failed",
				logging.String(logging.FieldTable, s.table),
				logging.Int("keys", len(keys)),
				logging.Error(err),
			)
		} else {
			missing = make([]string, 0, len(keys))
			for _, key := range keys {
				if hash, ok := cached[key]; ok {
					out[key] = hash
					continue
				}
				missing = append(missing, key)
			}
		}
	}
	found, err := s.queryHashes(ctx, missing)
	if err != nil {
		return nil, err
	}
	maps.Copy(out, found)
	if s.cache != nil && len(found) > 0 {
		if err := s.cache.SetMany(ctx, s.table, found); err != nil {
			s.logger.Warn("hash cache update failed",
				logging.String(logging.FieldTable, s.table),
				logging.Error(err),
			)
		}
	}
	return out, nil
}

func (s *Store) queryHashes(ctx context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, chunk := range storage.Chunk(keys, 500) {
		args := make([]any, 0, len(chunk)+1)
		args = append(args, s.table)
		for _, key := range chunk {
			args = append(args, key)
		}
		rows, err := s.db.Query(ctx,
			"SELECT doc_key, hash FROM artifacts WHERE tbl = ? AND doc_key IN ("+storage.Placeholders(len(chunk))+")",
			args...)
		if err != nil {
			return nil, services.Wrap(services.ErrStorage, "artifact", "lookup hashes", s.table, err)
		}
		for rows.Next() {
			var key, hash string
			if err := rows.Scan(&key, &hash); err != nil {
				rows.Close()
				return nil, services.Wrap(services.ErrStorage, "artifact", "lookup hashes", "scan", err)
			}
			out[key] = hash
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, services.Wrap(services.ErrStorage, "artifact", "lookup hashes", "iterate", err)
		}
	}
	return out, nil
}

// Get loads the artifact for id.
func (s *Store) Get(ctx context.Context, id corpus.DocumentID) (Record, error) {
	var (
		rec     = Record{Table: s.table, ID: id}
		updated sql.NullString
	)
	err := s.db.QueryRow(ctx,
		"SELECT artifact, hash_column, hash, updated_at FROM artifacts WHERE tbl = ? AND doc_key = ?",
		s.table, id.Key(),
	).Scan(&rec.Artifact, &rec.HashColumn, &rec.Hash, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, services.Wrap(services.ErrNotFound, "artifact", "get", fmt.Sprintf("%s/%s", s.table, id), nil)
	}
	if err != nil {
		return Record{}, services.Wrap(services.ErrStorage, "artifact", "get", id.String(), err)
	}
	rec.UpdatedAt = storage.ParseTime(updated)
	return rec, nil
}

// Put upserts the artifact and hash for id. Mirror subsets over the artifact
// table gain new keys as unprocessed, and keys whose hash changed are reset
// in them.
func (s *Store) Put(ctx context.Context, id corpus.DocumentID, artifact []byte, hash string) (PutResult, error) {
	if err := id.Validate(); err != nil {
		return PutResult{}, services.Wrap(services.ErrValidation, "artifact", "put", id.String(), err)
	}
	if s.table == "" {
		return PutResult{}, services.Wrap(services.ErrValidation, "artifact", "put", "artifact table is empty", nil)
	}
	key := id.Key()
	var result PutResult
	err := s.db.WithTx(ctx, func(tx *storage.Tx) error {
		result = PutResult{}
		now := storage.Now()
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO corpus_tables (name, kind, created_at) VALUES (?, ?, ?)",
			s.table, corpus.KindArtifact, now,
		); err != nil {
			return err
		}

		var previous string
		err := tx.QueryRowContext(ctx, "SELECT hash FROM artifacts WHERE tbl = ? AND doc_key = ?", s.table, key).Scan(&previous)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			result.Created = true
		case err != nil:
			return err
		default:
			result.Changed = previous != hash
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO artifacts (tbl, doc_key, artifact, hash_column, hash, updated_at) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(tbl, doc_key) DO UPDATE SET
				artifact = excluded.artifact,
				hash_column = excluded.hash_column,
				hash = excluded.hash,
				updated_at = excluded.updated_at`,
			s.table, key, string(artifact), s.hashColumn, hash, now,
		); err != nil {
			return err
		}

		var added, changed []string
		if result.Created {
			added = []string{key}
		}
		if result.Changed {
			changed = []string{key}
		}
		n, err := subset.SyncMirrors(ctx, tx, s.table, added, changed)
		result.Mirrored = n
		return err
	})
	if err != nil {
		return PutResult{}, services.Wrap(services.ErrStorage, "artifact", "put", id.String(), err)
	}
	s.remember(ctx, key, hash)
	return result, nil
}

func (s *Store) remember(ctx context.Context, key, hash string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, s.table, key, hash); err != nil {
		s.logger.Warn("hash cache update failed",
			logging.String(logging.FieldTable, s.table),
			logging.Error(err),
		)
	}
}
