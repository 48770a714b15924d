package checkpoint_test

import (
	"context"
	"errors"
	"testing"

	"corpora/internal/checkpoint"
	"corpora/internal/corpus"
	"corpora/internal/idgen"
	"corpora/internal/pipeline"
	"corpora/internal/services"
	"corpora/internal/subset"
	"corpora/internal/testsupport"
)

type recordingMarker struct {
	calls []string
}

func (m *recordingMarker) CompleteClaim(_ context.Context, name string, id corpus.DocumentID, token, lastComponent string) error {
	m.calls = append(m.calls, name+"/"+id.String()+"/"+token+"/"+lastComponent)
	return nil
}

func TestApplyMarksSourceRow(t *testing.T) {
	marker := &recordingMarker{}
	stage := checkpoint.New("checkpoint", marker)
	ws := &pipeline.Workspace{
		Subset:     "s",
		SourceID:   corpus.NewDocumentID("doc", "1"),
		ClaimToken: "tok",
		DocID:      corpus.NewDocumentID("doc", "1", "p2"),
	}
	if err := stage.Apply(context.Background(), ws); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(marker.calls) != 1 || marker.calls[0] != "s/doc,1/tok/checkpoint" {
		t.Fatalf("unexpected calls %v", marker.calls)
	}
}

func TestApplyHonorsDeferredCheckpoint(t *testing.T) {
	marker := &recordingMarker{}
	stage := checkpoint.New("checkpoint", marker)
	ws := &pipeline.Workspace{Subset: "s", SourceID: corpus.NewDocumentID("doc"), DeferCheckpoint: true}
	if err := stage.Apply(context.Background(), ws); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(marker.calls) != 0 {
		t.Fatalf("deferred checkpoint should not mark, got %v", marker.calls)
	}
}

func TestApplyRespectsResetDuringRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	ctx := context.Background()
	id := corpus.NewDocumentID("doc")
	if _, err := corpus.NewStore(db).Import(ctx, "docs", []corpus.Record{{ID: id, Fields: map[string]string{"text": "x"}}}); err != nil {
		t.Fatalf("Import: %v", err)
	}
	tracker := subset.NewTracker(db, idgen.NewSequence("c"))
	if _, err := tracker.Define(ctx, subset.Definition{Name: "s", Table: "docs"}); err != nil {
		t.Fatalf("Define: %v", err)
	}
	stage := checkpoint.New("checkpoint", tracker)

	first, err := tracker.ClaimBatch(ctx, "s", 1, subset.Owner{Worker: "w1"})
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	ws := &pipeline.Workspace{Subset: "s", SourceID: id, ClaimToken: first.Token}
	for i := 0; i < 2; i++ {
		if err := stage.Apply(ctx, ws); err != nil {
			t.Fatalf("Apply #%d: %v", i+1, err)
		}
	}

	if _, err := tracker.ResetAll(ctx, "s"); err != nil {
		t.Fatalf("ResetAll: %v", err)
	}
	second, err := tracker.ClaimBatch(ctx, "s", 1, subset.Owner{Worker: "w1"})
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	if _, err := tracker.ResetAll(ctx, "s"); err != nil {
		t.Fatalf("ResetAll: %v", err)
	}

	// A worker still holding the reset claim must not complete the row.
	stale := &pipeline.Workspace{Subset: "s", SourceID: id, ClaimToken: second.Token}
	err = stage.Apply(ctx, stale)
	if !errors.Is(err, subset.ErrClaimLost) || !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected lost claim, got %v", err)
	}
	entry, err := tracker.Lookup(ctx, "s", id)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if entry.Status != subset.StatusUnprocessed {
		t.Fatalf("reset row was overwritten: %+v", entry)
	}
}
