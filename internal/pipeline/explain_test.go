package pipeline_test

import (
	"context"
	"slices"
	"testing"

	"corpora/internal/corpus"
)

func TestExplainReportsRouteWithoutTouchingStatus(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.importDocs(t, map[string]string{"a": "Alpha text."})
	f.define(t, "main", "docs", false)

	routes, err := f.engine.Runner.Explain(ctx, "main", corpus.NewDocumentID("a"))
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if len(routes) != 1 || routes[0].Skip || routes[0].Stored {
		t.Fatalf("unexpected routes before run %+v", routes)
	}
	if !slices.Equal(routes[0].Plan, f.engine.Runner.Canonical()) {
		t.Fatalf("plan = %v, want full plan", routes[0].Plan)
	}
	if got := f.status(t, "main"); got.Unprocessed != 1 {
		t.Fatalf("Explain changed status: %+v", got)
	}

	if _, err := f.engine.Runner.RunWorkers(ctx, "main", 1); err != nil {
		t.Fatalf("RunWorkers: %v", err)
	}
	routes, err = f.engine.Runner.Explain(ctx, "main", corpus.NewDocumentID("a"))
	if err != nil {
		t.Fatalf("Explain after run: %v", err)
	}
	if !routes[0].Skip || !routes[0].Stored || routes[0].StoredHash != routes[0].Hash {
		t.Fatalf("expected unchanged content to skip, got %+v", routes[0])
	}
	if !slices.Equal(routes[0].Plan, []string{f.cfg.Pipeline.CheckpointKey}) {
		t.Fatalf("reduced plan = %v", routes[0].Plan)
	}
}

func TestExplainUnknownDocument(t *testing.T) {
	f := newFixture(t, nil)
	f.importDocs(t, map[string]string{"a": "Alpha text."})
	f.define(t, "main", "docs", false)
	if _, err := f.engine.Runner.Explain(context.Background(), "main", corpus.NewDocumentID("zz")); err == nil {
		t.Fatal("expected error for unknown document")
	}
}
