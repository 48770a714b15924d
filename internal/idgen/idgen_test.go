package idgen_test

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"corpora/internal/idgen"
)

func TestULIDIsMonotonicAndUnique(t *testing.T) {
	gen := idgen.NewULID()
	prev := ""
	for i := 0; i < 1000; i++ {
		id := gen.NewID()
		if _, err := ulid.ParseStrict(id); err != nil {
			t.Fatalf("invalid ulid %q: %v", id, err)
		}
		if id <= prev {
			t.Fatalf("expected monotonic ids, %q after %q", id, prev)
		}
		prev = id
	}
}

func TestULIDConcurrentUse(t *testing.T) {
	gen := idgen.NewULID()
	var (
		mu   sync.Mutex
		seen = map[string]struct{}{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := gen.NewID()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(seen) != 1600 {
		t.Fatalf("expected 1600 unique ids, got %d", len(seen))
	}
}

func TestNewSelectsGenerator(t *testing.T) {
	gen, err := idgen.New("uuid")
	if err != nil {
		t.Fatalf("New(uuid): %v", err)
	}
	if _, err := uuid.Parse(gen.NewID()); err != nil {
		t.Fatalf("expected uuid output: %v", err)
	}
	if _, err := idgen.New("serial"); err == nil {
		t.Fatal("expected error for unknown generator")
	}
}

func TestSequence(t *testing.T) {
	seq := idgen.NewSequence("run")
	if a, b := seq.NewID(), seq.NewID(); a != "run-1" || b != "run-2" {
		t.Fatalf("unexpected sequence %q %q", a, b)
	}
}
