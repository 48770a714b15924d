// Package invalidate resets mirror subsets after bulk updates to their table.
//
// The reset is coarse: every row of every mirror goes back to unprocessed.
// Unchanged documents are caught later by the hash gate.
package invalidate

import (
	"context"
	"log/slog"

	"corpora/internal/corpus"
	"corpora/internal/logging"
	"corpora/internal/metrics"
	"corpora/internal/storage"
	"corpora/internal/subset"
)

// Reset reports one mirror subset reset.
type Reset = subset.MirrorReset

// Invalidator reacts to bulk table updates.
type Invalidator struct {
	tracker *subset.Tracker
	logger  *slog.Logger
	metrics *metrics.Registry
}

// New wires an invalidator.
func New(tracker *subset.Tracker, logger *slog.Logger, reg *metrics.Registry) *Invalidator {
	return &Invalidator{
		tracker: tracker,
		logger:  logging.NewComponentLogger(logger, "invalidate"),
		metrics: reg,
	}
}

// OnBulkUpdate adds newKeys to every mirror of table and then resets each
// mirror wholesale, in one transaction.
func (i *Invalidator) OnBulkUpdate(ctx context.Context, table string, newKeys []string) ([]Reset, error) {
	resets, err := i.tracker.InvalidateTable(ctx, table, newKeys)
	if err != nil {
		return nil, err
	}
	i.observe(table, resets)
	return resets, nil
}

// Import writes records into table and invalidates its mirrors in the same
// transaction, so content and mirror status never disagree.
func (i *Invalidator) Import(ctx context.Context, store *corpus.Store, table string, records []corpus.Record) (corpus.ImportResult, []Reset, error) {
	var resets []Reset
	result, err := store.Import(ctx, table, records, func(ctx context.Context, tx *storage.Tx, result corpus.ImportResult) error {
		resets = nil
		if !result.Touched() {
			return nil
		}
		var err error
		resets, err = subset.ResetMirrors(ctx, tx, result.Table, result.NewKeys)
		return err
	})
	if err != nil {
		return corpus.ImportResult{}, nil, err
	}
	i.observe(result.Table, resets)
	return result, resets, nil
}

func (i *Invalidator) observe(table string, resets []Reset) {
	for _, reset := range resets {
		i.metrics.ObserveInvalidation(table, reset.Subset)
		i.logger.Info("mirror subset reset",
			logging.String(logging.FieldEventType, "mirror_reset"),
			logging.String(logging.FieldTable, table),
			logging.String(logging.FieldSubset, reset.Subset),
			logging.Int("rows", reset.Rows),
		)
	}
}
