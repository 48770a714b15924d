package subset

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"corpora/internal/corpus"
	"corpora/internal/services"
	"corpora/internal/storage"
)

// ClaimBatch moves up to maxSize unprocessed rows, ordered by key, to
// in_process and returns them. An empty claim is not an error.
func (t *Tracker) ClaimBatch(ctx context.Context, name string, maxSize int, owner Owner) (Claim, error) {
	if maxSize <= 0 {
		return Claim{}, services.Wrap(services.ErrValidation, "subset", "claim", fmt.Sprintf("batch size %d", maxSize), nil)
	}
	if err := t.requireSubset(ctx, name); err != nil {
		return Claim{}, err
	}

	claim := Claim{Subset: name}
	err := t.db.WithTx(ctx, func(tx *storage.Tx) error {
		token := t.ids.NewID()
		now := storage.Now()
		res, err := tx.ExecContext(ctx, `
			UPDATE subset_rows
			SET status = ?, claim_token = ?, claimed_by = ?, host_name = ?, pid = ?,
			    claimed_at = ?, updated_at = ?, has_errors = 0, error_message = NULL
			WHERE subset = ? AND doc_key IN (
				SELECT doc_key FROM subset_rows
				WHERE subset = ? AND status = ?
				ORDER BY doc_key
				LIMIT ?
			)`,
			StatusInProcess, token, storage.NullableString(owner.Worker), storage.NullableString(owner.Host), owner.PID,
			now, now,
			name, name, StatusUnprocessed, maxSize,
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		claim.Token = token
		claim.IDs = claim.IDs[:0]
		if affected == 0 {
			return nil
		}
		rows, err := tx.QueryContext(ctx,
			"SELECT doc_key FROM subset_rows WHERE subset = ? AND claim_token = ? ORDER BY doc_key", name, token)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				return err
			}
			claim.IDs = append(claim.IDs, corpus.ParseKey(key))
		}
		return rows.Err()
	})
	if err != nil {
		return Claim{}, storageErr("claim", name, err)
	}
	if len(claim.IDs) == 0 {
		claim.Token = ""
	}
	return claim, nil
}

// ErrClaimLost reports that a row was reset or reclaimed after the caller
// claimed it. The caller's work on that row is stale.
var ErrClaimLost = errors.New("claim no longer held")

// MarkProcessed records completion of id regardless of who holds it. Marking
// an already processed row again succeeds. Pipeline workers use CompleteClaim.
func (t *Tracker) MarkProcessed(ctx context.Context, name string, id corpus.DocumentID, lastComponent string) error {
	res, err := t.db.Exec(ctx, `
		UPDATE subset_rows
		SET status = ?, last_component = ?, claim_token = NULL, has_errors = 0, error_message = NULL, updated_at = ?
		WHERE subset = ? AND doc_key = ?`,
		StatusProcessed, storage.NullableString(lastComponent), storage.Now(), name, id.Key(),
	)
	if err != nil {
		return storageErr("mark processed", id.String(), err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storageErr("mark processed", id.String(), err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "subset", "mark processed", fmt.Sprintf("%s/%s", name, id), nil)
	}
	return nil
}

// CompleteClaim marks id processed on behalf of the claim identified by
// token. The row keeps the token, so repeating the call succeeds. When the
// row was reset or handed to another claim in the meantime nothing changes
// and the error wraps ErrClaimLost. An empty token behaves like MarkProcessed.
func (t *Tracker) CompleteClaim(ctx context.Context, name string, id corpus.DocumentID, token, lastComponent string) error {
	if token == "" {
		return t.MarkProcessed(ctx, name, id, lastComponent)
	}
	res, err := t.db.Exec(ctx, `
		UPDATE subset_rows
		SET status = ?, last_component = ?, has_errors = 0, error_message = NULL, updated_at = ?
		WHERE subset = ? AND doc_key = ? AND claim_token = ? AND status IN (?, ?)`,
		StatusProcessed, storage.NullableString(lastComponent), storage.Now(),
		name, id.Key(), token, StatusInProcess, StatusProcessed,
	)
	if err != nil {
		return storageErr("complete claim", id.String(), err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storageErr("complete claim", id.String(), err)
	}
	if affected == 0 {
		return t.claimMiss(ctx, "complete claim", name, id)
	}
	return nil
}

// MarkFailed records a stage failure on an in_process row. The row stays
// in_process so it is not reclaimed until an operator retries it.
func (t *Tracker) MarkFailed(ctx context.Context, name string, id corpus.DocumentID, component string, cause error) error {
	return t.FailClaim(ctx, name, id, "", component, cause)
}

// FailClaim is MarkFailed restricted to the claim identified by token. A row
// reset or reclaimed since the claim is left alone and the error wraps
// ErrClaimLost.
func (t *Tracker) FailClaim(ctx context.Context, name string, id corpus.DocumentID, token, component string, cause error) error {
	message := "unknown error"
	if cause != nil {
		message = cause.Error()
	}
	query := `
		UPDATE subset_rows
		SET last_component = ?, has_errors = 1, error_message = ?, updated_at = ?
		WHERE subset = ? AND doc_key = ? AND status = ?`
	args := []any{storage.NullableString(component), message, storage.Now(), name, id.Key(), StatusInProcess}
	if token != "" {
		query += " AND claim_token = ?"
		args = append(args, token)
	}
	res, err := t.db.Exec(ctx, query, args...)
	if err != nil {
		return storageErr("mark failed", id.String(), err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storageErr("mark failed", id.String(), err)
	}
	if affected == 0 {
		return t.claimMiss(ctx, "mark failed", name, id)
	}
	return nil
}

// claimMiss explains why a guarded update matched nothing.
func (t *Tracker) claimMiss(ctx context.Context, op, name string, id corpus.DocumentID) error {
	entry, err := t.Lookup(ctx, name, id)
	if err != nil {
		return err
	}
	return services.Wrap(services.ErrConflict, "subset", op,
		fmt.Sprintf("%s/%s is %s under another claim", name, id, entry.Status), ErrClaimLost)
}

// Release returns in_process ids to unprocessed. Rows in other states are
// left alone.
func (t *Tracker) Release(ctx context.Context, name string, ids []corpus.DocumentID) (int, error) {
	return t.resetKeys(ctx, "release", name, corpus.Keys(ids), []Status{StatusInProcess})
}

// ResetIDs returns ids to unprocessed regardless of their current state.
func (t *Tracker) ResetIDs(ctx context.Context, name string, ids []corpus.DocumentID) (int, error) {
	if err := t.requireSubset(ctx, name); err != nil {
		return 0, err
	}
	return t.resetKeys(ctx, "reset ids", name, corpus.Keys(ids), allStatuses)
}

func (t *Tracker) resetKeys(ctx context.Context, op, name string, keys []string, from []Status) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	total := 0
	err := t.db.WithTx(ctx, func(tx *storage.Tx) error {
		total = 0
		now := storage.Now()
		for _, chunk := range storage.Chunk(keys, 500) {
			args := []any{StatusUnprocessed, now, name}
			for _, status := range from {
				args = append(args, status)
			}
			for _, key := range chunk {
				args = append(args, key)
			}
			res, err := tx.ExecContext(ctx, fmt.Sprintf(`
				UPDATE subset_rows
				SET status = ?, claim_token = NULL, has_errors = 0, error_message = NULL, claimed_at = NULL, updated_at = ?
				WHERE subset = ? AND status IN (%s) AND doc_key IN (%s)`,
				storage.Placeholders(len(from)), storage.Placeholders(len(chunk))), args...)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			total += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, storageErr(op, name, err)
	}
	return total, nil
}

// ResetAll returns every row of the subset to unprocessed.
func (t *Tracker) ResetAll(ctx context.Context, name string) (int, error) {
	if err := t.requireSubset(ctx, name); err != nil {
		return 0, err
	}
	res, err := t.db.Exec(ctx, `
		UPDATE subset_rows
		SET status = ?, claim_token = NULL, has_errors = 0, error_message = NULL, claimed_at = NULL, updated_at = ?
		WHERE subset = ?`,
		StatusUnprocessed, storage.Now(), name,
	)
	if err != nil {
		return 0, storageErr("reset all", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("reset all", name, err)
	}
	return int(n), nil
}

// ResetFailed returns errored rows to unprocessed for another attempt.
func (t *Tracker) ResetFailed(ctx context.Context, name string) (int, error) {
	if err := t.requireSubset(ctx, name); err != nil {
		return 0, err
	}
	res, err := t.db.Exec(ctx, `
		UPDATE subset_rows
		SET status = ?, claim_token = NULL, has_errors = 0, error_message = NULL, claimed_at = NULL, updated_at = ?
		WHERE subset = ? AND has_errors = 1`,
		StatusUnprocessed, storage.Now(), name,
	)
	if err != nil {
		return 0, storageErr("reset failed", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("reset failed", name, err)
	}
	return int(n), nil
}

// ReclaimStale returns in_process rows claimed before cutoff to unprocessed.
// Rows carrying an error are left for ResetFailed. An empty name covers every
// subset.
func (t *Tracker) ReclaimStale(ctx context.Context, name string, cutoff time.Time) (int, error) {
	query := strings.Builder{}
	query.WriteString(`
		UPDATE subset_rows
		SET status = ?, claim_token = NULL, claimed_at = NULL, updated_at = ?
		WHERE status = ? AND has_errors = 0 AND claimed_at IS NOT NULL AND claimed_at < ?`)
	args := []any{StatusUnprocessed, storage.Now(), StatusInProcess, storage.FormatTime(cutoff)}
	if name != "" {
		query.WriteString(" AND subset = ?")
		args = append(args, name)
	}
	res, err := t.db.Exec(ctx, query.String(), args...)
	if err != nil {
		return 0, storageErr("reclaim stale", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("reclaim stale", name, err)
	}
	return int(n), nil
}
