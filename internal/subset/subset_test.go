package subset_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"corpora/internal/corpus"
	"corpora/internal/idgen"
	"corpora/internal/services"
	"corpora/internal/storage"
	"corpora/internal/subset"
	"corpora/internal/testsupport"
)

func newTracker(t *testing.T, docs int) (*subset.Tracker, *storage.DB) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	records := make([]corpus.Record, 0, docs)
	for i := 0; i < docs; i++ {
		records = append(records, corpus.Record{
			ID:     corpus.NewDocumentID(fmt.Sprintf("doc-%03d", i)),
			Fields: map[string]string{"text": fmt.Sprintf("body %d", i)},
		})
	}
	if _, err := corpus.NewStore(db).Import(context.Background(), "docs", records); err != nil {
		t.Fatalf("Import: %v", err)
	}
	return subset.NewTracker(db, idgen.NewSequence("claim")), db
}

func define(t *testing.T, tracker *subset.Tracker, name string) {
	t.Helper()
	if _, err := tracker.Define(context.Background(), subset.Definition{Name: name, Table: "docs"}); err != nil {
		t.Fatalf("Define: %v", err)
	}
}

func TestDefineMissingTableIsNotFound(t *testing.T) {
	tracker, _ := newTracker(t, 1)
	_, err := tracker.Define(context.Background(), subset.Definition{Name: "s", Table: "nope"})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDefineIsIdempotentAndRejectsConflicts(t *testing.T) {
	tracker, _ := newTracker(t, 3)
	ctx := context.Background()
	define(t, tracker, "s")
	define(t, tracker, "s")

	counts, err := tracker.Status(ctx, "s")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if counts.Total != 3 || counts.Unprocessed != 3 {
		t.Fatalf("unexpected counts %+v", counts)
	}

	_, err = tracker.Define(ctx, subset.Definition{Name: "s", Table: "docs", Mirror: true})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for conflicting definition, got %v", err)
	}
}

func TestDefineWithExplicitKeys(t *testing.T) {
	tracker, _ := newTracker(t, 5)
	ctx := context.Background()
	_, err := tracker.Define(ctx, subset.Definition{
		Name:  "pick",
		Table: "docs",
		Keys:  []corpus.DocumentID{corpus.NewDocumentID("doc-001"), corpus.NewDocumentID("doc-003")},
	})
	if err != nil {
		t.Fatalf("Define: %v", err)
	}
	counts, err := tracker.Status(ctx, "pick")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if counts.Total != 2 {
		t.Fatalf("expected 2 rows, got %+v", counts)
	}
}

func TestClaimBatchOrdersByKeyAndRecordsOwner(t *testing.T) {
	tracker, _ := newTracker(t, 4)
	ctx := context.Background()
	define(t, tracker, "s")

	claim, err := tracker.ClaimBatch(ctx, "s", 3, subset.Owner{Worker: "w1", Host: "box", PID: 42})
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	if len(claim.IDs) != 3 {
		t.Fatalf("expected 3 ids, got %d", len(claim.IDs))
	}
	for i, id := range claim.IDs {
		if want := fmt.Sprintf("doc-%03d", i); id.String() != want {
			t.Fatalf("claim[%d] = %s, want %s", i, id, want)
		}
	}
	entry, err := tracker.Lookup(ctx, "s", claim.IDs[0])
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if entry.Status != subset.StatusInProcess || entry.ClaimedBy != "w1" || entry.Host != "box" || entry.PID != 42 {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.ClaimedAt.IsZero() {
		t.Fatal("expected claimed_at to be set")
	}

	rest, err := tracker.ClaimBatch(ctx, "s", 3, subset.Owner{})
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	if len(rest.IDs) != 1 {
		t.Fatalf("expected 1 remaining id, got %d", len(rest.IDs))
	}
	empty, err := tracker.ClaimBatch(ctx, "s", 3, subset.Owner{})
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	if !empty.Empty() {
		t.Fatalf("expected empty claim, got %v", empty.IDs)
	}
}

func TestClaimBatchUnknownSubset(t *testing.T) {
	tracker, _ := newTracker(t, 1)
	_, err := tracker.ClaimBatch(context.Background(), "missing", 1, subset.Owner{})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentClaimsAreDisjoint(t *testing.T) {
	const docs = 40
	tracker, _ := newTracker(t, docs)
	ctx := context.Background()
	define(t, tracker, "s")

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
		errs = make(chan error, 2)
	)
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func(worker string) {
			defer wg.Done()
			for {
				claim, err := tracker.ClaimBatch(ctx, "s", 1, subset.Owner{Worker: worker})
				if err != nil {
					errs <- err
					return
				}
				if claim.Empty() {
					return
				}
				mu.Lock()
				for _, id := range claim.IDs {
					seen[id.Key()]++
				}
				mu.Unlock()
			}
		}(fmt.Sprintf("w%d", w))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("claim failed: %v", err)
	}
	if len(seen) != docs {
		t.Fatalf("expected %d distinct ids, got %d", docs, len(seen))
	}
	for key, n := range seen {
		if n != 1 {
			t.Fatalf("id %q claimed %d times", key, n)
		}
	}
}

func TestMarkProcessedIsIdempotent(t *testing.T) {
	tracker, _ := newTracker(t, 1)
	ctx := context.Background()
	define(t, tracker, "s")
	id := corpus.NewDocumentID("doc-000")

	for i := 0; i < 2; i++ {
		if err := tracker.MarkProcessed(ctx, "s", id, "checkpoint"); err != nil {
			t.Fatalf("MarkProcessed #%d: %v", i+1, err)
		}
	}
	entry, err := tracker.Lookup(ctx, "s", id)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if entry.Status != subset.StatusProcessed || entry.LastComponent != "checkpoint" {
		t.Fatalf("unexpected entry %+v", entry)
	}

	err = tracker.MarkProcessed(ctx, "s", corpus.NewDocumentID("ghost"), "checkpoint")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestResetAllClearsProgress(t *testing.T) {
	tracker, _ := newTracker(t, 3)
	ctx := context.Background()
	define(t, tracker, "s")

	claim, err := tracker.ClaimBatch(ctx, "s", 2, subset.Owner{})
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	if err := tracker.MarkProcessed(ctx, "s", claim.IDs[0], "checkpoint"); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	n, err := tracker.ResetAll(ctx, "s")
	if err != nil {
		t.Fatalf("ResetAll: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rows reset, got %d", n)
	}
	counts, err := tracker.Status(ctx, "s")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if counts.Processed != 0 || counts.InProcess != 0 || counts.Unprocessed != 3 {
		t.Fatalf("unexpected counts after reset %+v", counts)
	}

	if _, err := tracker.ResetAll(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkFailedKeepsRowInProcess(t *testing.T) {
	tracker, _ := newTracker(t, 2)
	ctx := context.Background()
	define(t, tracker, "s")

	claim, err := tracker.ClaimBatch(ctx, "s", 2, subset.Owner{})
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	if err := tracker.MarkFailed(ctx, "s", claim.IDs[0], "tokens", errors.New("boom")); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	counts, err := tracker.Status(ctx, "s")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if counts.InProcess != 2 || counts.Failed != 1 {
		t.Fatalf("unexpected counts %+v", counts)
	}

	failures, err := tracker.Failures(ctx, "s", 10)
	if err != nil {
		t.Fatalf("Failures: %v", err)
	}
	if len(failures) != 1 || failures[0].ErrorMessage != "boom" || failures[0].LastComponent != "tokens" {
		t.Fatalf("unexpected failures %+v", failures)
	}

	// Errored rows survive stale reclamation and wait for an explicit retry.
	if _, err := tracker.ReclaimStale(ctx, "s", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	entry, err := tracker.Lookup(ctx, "s", claim.IDs[0])
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if entry.Status != subset.StatusInProcess || !entry.HasErrors {
		t.Fatalf("errored row should stay in_process, got %+v", entry)
	}

	n, err := tracker.ResetFailed(ctx, "s")
	if err != nil {
		t.Fatalf("ResetFailed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 retried row, got %d", n)
	}
	entry, err = tracker.Lookup(ctx, "s", claim.IDs[0])
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if entry.Status != subset.StatusUnprocessed || entry.HasErrors {
		t.Fatalf("expected clean unprocessed row, got %+v", entry)
	}
}

func TestReclaimStaleHonorsCutoff(t *testing.T) {
	tracker, _ := newTracker(t, 2)
	ctx := context.Background()
	define(t, tracker, "s")

	if _, err := tracker.ClaimBatch(ctx, "s", 2, subset.Owner{}); err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	n, err := tracker.ReclaimStale(ctx, "s", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if n != 0 {
		t.Fatalf("fresh claims should not be reclaimed, got %d", n)
	}
	n, err = tracker.ReclaimStale(ctx, "", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 reclaimed rows, got %d", n)
	}
}

func TestReleaseOnlyTouchesInProcessRows(t *testing.T) {
	tracker, _ := newTracker(t, 3)
	ctx := context.Background()
	define(t, tracker, "s")

	claim, err := tracker.ClaimBatch(ctx, "s", 3, subset.Owner{})
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	if err := tracker.MarkProcessed(ctx, "s", claim.IDs[0], "checkpoint"); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	n, err := tracker.Release(ctx, "s", claim.IDs)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 released rows, got %d", n)
	}
	counts, err := tracker.Status(ctx, "s")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if counts.Processed != 1 || counts.Unprocessed != 2 {
		t.Fatalf("unexpected counts %+v", counts)
	}
}

func TestMirrorsFollowTableKeys(t *testing.T) {
	tracker, db := newTracker(t, 2)
	ctx := context.Background()
	if _, err := tracker.Define(ctx, subset.Definition{Name: "m", Table: "docs", Mirror: true}); err != nil {
		t.Fatalf("Define mirror: %v", err)
	}
	mirrors, err := tracker.Mirrors(ctx, "docs")
	if err != nil {
		t.Fatalf("Mirrors: %v", err)
	}
	if len(mirrors) != 1 || mirrors[0].Name != "m" {
		t.Fatalf("unexpected mirrors %+v", mirrors)
	}

	if err := tracker.MarkProcessed(ctx, "m", corpus.NewDocumentID("doc-000"), "checkpoint"); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	err = db.WithTx(ctx, func(tx *storage.Tx) error {
		_, err := subset.SyncMirrors(ctx, tx, "docs", []string{"doc-new"}, []string{"doc-000"})
		return err
	})
	if err != nil {
		t.Fatalf("SyncMirrors: %v", err)
	}
	counts, err := tracker.Status(ctx, "m")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if counts.Total != 3 || counts.Unprocessed != 3 {
		t.Fatalf("unexpected mirror counts %+v", counts)
	}
}

func TestClaimBatchStorageErrorMutatesNothing(t *testing.T) {
	tracker, db := newTracker(t, 3)
	ctx := context.Background()
	define(t, tracker, "s")
	if _, err := db.Exec(ctx, `
		CREATE TRIGGER refuse_claim BEFORE UPDATE OF status ON subset_rows
		WHEN NEW.status = 'in_process'
		BEGIN SELECT RAISE(ABORT, 'claim refused'); END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	claim, err := tracker.ClaimBatch(ctx, "s", 2, subset.Owner{Worker: "w1"})
	if !errors.Is(err, services.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if !claim.Empty() || claim.Token != "" {
		t.Fatalf("failed claim returned %+v", claim)
	}
	counts, err := tracker.Status(ctx, "s")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if counts.Unprocessed != 3 || counts.InProcess != 0 {
		t.Fatalf("failed claim changed rows: %+v", counts)
	}
}

func TestCompleteClaimGuardsAgainstReset(t *testing.T) {
	tracker, _ := newTracker(t, 2)
	ctx := context.Background()
	define(t, tracker, "s")

	claim, err := tracker.ClaimBatch(ctx, "s", 2, subset.Owner{Worker: "w1"})
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	done, reset := claim.IDs[0], claim.IDs[1]
	for i := 0; i < 2; i++ {
		if err := tracker.CompleteClaim(ctx, "s", done, claim.Token, "checkpoint"); err != nil {
			t.Fatalf("CompleteClaim #%d: %v", i+1, err)
		}
	}
	if _, err := tracker.ResetIDs(ctx, "s", []corpus.DocumentID{reset}); err != nil {
		t.Fatalf("ResetIDs: %v", err)
	}

	tests := []struct {
		name string
		call func() error
	}{
		{"complete", func() error { return tracker.CompleteClaim(ctx, "s", reset, claim.Token, "checkpoint") }},
		{"fail", func() error { return tracker.FailClaim(ctx, "s", reset, claim.Token, "tokens", errors.New("boom")) }},
		{"fail without token", func() error { return tracker.MarkFailed(ctx, "s", reset, "tokens", errors.New("boom")) }},
	}
	for _, tt := range tests {
		err := tt.call()
		if !errors.Is(err, subset.ErrClaimLost) || !errors.Is(err, services.ErrConflict) {
			t.Fatalf("%s: expected lost claim, got %v", tt.name, err)
		}
		entry, err := tracker.Lookup(ctx, "s", reset)
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		if entry.Status != subset.StatusUnprocessed || entry.HasErrors {
			t.Fatalf("%s: reset row changed to %+v", tt.name, entry)
		}
	}

	err = tracker.CompleteClaim(ctx, "s", corpus.NewDocumentID("ghost"), claim.Token, "checkpoint")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
}
