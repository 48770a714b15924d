package services_test

import (
	"context"
	"testing"

	"corpora/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithSubset(ctx, "xmi_mirror")
	ctx = services.WithDocumentID(ctx, "pmid,42")
	ctx = services.WithStage(ctx, "sentences")
	ctx = services.WithWorker(ctx, "worker-1")
	ctx = services.WithRunID(ctx, "run-123")

	if subset, ok := services.SubsetFromContext(ctx); !ok || subset != "xmi_mirror" {
		t.Fatalf("unexpected subset: %v %v", subset, ok)
	}
	if id, ok := services.DocumentIDFromContext(ctx); !ok || id != "pmid,42" {
		t.Fatalf("unexpected doc id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "sentences" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if worker, ok := services.WorkerFromContext(ctx); !ok || worker != "worker-1" {
		t.Fatalf("unexpected worker: %v %v", worker, ok)
	}
	if rid, ok := services.RunIDFromContext(ctx); !ok || rid != "run-123" {
		t.Fatalf("unexpected run id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithSubset(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.SubsetFromContext(ctx); ok {
		t.Fatal("expected no subset value")
	}
}
