package subset

import (
	"context"
	"fmt"

	"corpora/internal/storage"
)

// MirrorReset reports the rows one mirror subset returned to unprocessed.
type MirrorReset struct {
	Subset string
	Rows   int
}

func mirrorNames(ctx context.Context, tx *storage.Tx, table string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, "SELECT name FROM subsets WHERE tbl = ? AND mirror = 1 ORDER BY name", table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var mirrors []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		mirrors = append(mirrors, name)
	}
	return mirrors, rows.Err()
}

func addMirrorKeys(ctx context.Context, tx *storage.Tx, mirror string, keys []string, now string) (int, error) {
	touched := 0
	for _, key := range keys {
		res, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO subset_rows (subset, doc_key, status, updated_at) VALUES (?, ?, ?, ?)",
			mirror, key, StatusUnprocessed, now)
		if err != nil {
			return touched, fmt.Errorf("add %s to mirror %s: %w", key, mirror, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return touched, fmt.Errorf("add %s to mirror %s: %w", key, mirror, err)
		}
		touched += int(n)
	}
	return touched, nil
}

// SyncMirrors keeps mirror subsets over table in step with a write that
// happened inside tx. Added keys join each mirror as unprocessed; changed keys
// are reset to unprocessed. It returns the number of mirror rows touched.
func SyncMirrors(ctx context.Context, tx *storage.Tx, table string, added, changed []string) (int, error) {
	if len(added) == 0 && len(changed) == 0 {
		return 0, nil
	}
	mirrors, err := mirrorNames(ctx, tx, table)
	if err != nil || len(mirrors) == 0 {
		return 0, err
	}

	now := storage.Now()
	touched := 0
	for _, mirror := range mirrors {
		n, err := addMirrorKeys(ctx, tx, mirror, added, now)
		touched += n
		if err != nil {
			return touched, err
		}
		for _, chunk := range storage.Chunk(changed, 500) {
			args := []any{StatusUnprocessed, now, mirror}
			for _, key := range chunk {
				args = append(args, key)
			}
			res, err := tx.ExecContext(ctx, fmt.Sprintf(`
				UPDATE subset_rows
				SET status = ?, claim_token = NULL, has_errors = 0, error_message = NULL, claimed_at = NULL, updated_at = ?
				WHERE subset = ? AND doc_key IN (%s)`, storage.Placeholders(len(chunk))), args...)
			if err != nil {
				return touched, fmt.Errorf("reset mirror %s: %w", mirror, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return touched, fmt.Errorf("reset mirror %s: %w", mirror, err)
			}
			touched += int(n)
		}
	}
	return touched, nil
}

// ResetMirrors adds keys to every mirror subset over table and returns every
// row of those mirrors to unprocessed, all inside tx.
func ResetMirrors(ctx context.Context, tx *storage.Tx, table string, added []string) ([]MirrorReset, error) {
	mirrors, err := mirrorNames(ctx, tx, table)
	if err != nil || len(mirrors) == 0 {
		return nil, err
	}
	now := storage.Now()
	resets := make([]MirrorReset, 0, len(mirrors))
	for _, mirror := range mirrors {
		if _, err := addMirrorKeys(ctx, tx, mirror, added, now); err != nil {
			return nil, err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE subset_rows
			SET status = ?, claim_token = NULL, has_errors = 0, error_message = NULL, claimed_at = NULL, updated_at = ?
			WHERE subset = ?`,
			StatusUnprocessed, now, mirror,
		)
		if err != nil {
			return nil, fmt.Errorf("reset mirror %s: %w", mirror, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("reset mirror %s: %w", mirror, err)
		}
		resets = append(resets, MirrorReset{Subset: mirror, Rows: int(n)})
	}
	return resets, nil
}

// InvalidateTable runs ResetMirrors in its own transaction.
func (t *Tracker) InvalidateTable(ctx context.Context, table string, added []string) ([]MirrorReset, error) {
	var resets []MirrorReset
	err := t.db.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		resets, err = ResetMirrors(ctx, tx, table, added)
		return err
	})
	if err != nil {
		return nil, storageErr("invalidate", table, err)
	}
	return resets, nil
}
