package corpus_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"corpora/internal/corpus"
	"corpora/internal/services"
	"corpora/internal/testsupport"
)

func newStore(t *testing.T) *corpus.Store {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	return corpus.NewStore(testsupport.MustOpenDB(t, cfg))
}

func TestDocumentIDKeyRoundTrip(t *testing.T) {
	id := corpus.NewDocumentID("pmc", "12345")
	if got := corpus.ParseKey(id.Key()); !got.Equal(id) {
		t.Fatalf("ParseKey(Key()) = %v, want %v", got, id)
	}
	if id.String() != "pmc,12345" {
		t.Fatalf("unexpected string form %q", id.String())
	}
	if err := corpus.NewDocumentID().Validate(); err == nil {
		t.Fatal("expected empty id to be invalid")
	}
	if err := corpus.NewDocumentID("a\x1fb").Validate(); err == nil {
		t.Fatal("expected separator in part to be invalid")
	}
}

func TestImportClassifiesRows(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	first, err := store.Import(ctx, "docs", []corpus.Record{
		{ID: corpus.NewDocumentID("1"), Fields: map[string]string{"text": "alpha"}},
		{ID: corpus.NewDocumentID("2"), Fields: map[string]string{"text": "beta"}},
	})
	if err != nil {
		t.Fatalf("first import: %v", err)
	}
	if first.Inserted != 2 || first.Updated != 0 || len(first.NewKeys) != 2 {
		t.Fatalf("unexpected first result %+v", first)
	}

	second, err := store.Import(ctx, "docs", []corpus.Record{
		{ID: corpus.NewDocumentID("1"), Fields: map[string]string{"text": "alpha"}},
		{ID: corpus.NewDocumentID("2"), Fields: map[string]string{"text": "beta v2"}},
		{ID: corpus.NewDocumentID("3"), Fields: map[string]string{"text": "gamma"}},
	})
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if second.Inserted != 1 || second.Updated != 1 || second.Unchanged != 1 {
		t.Fatalf("unexpected second result %+v", second)
	}
	if len(second.NewKeys) != 1 || second.NewKeys[0] != corpus.NewDocumentID("3").Key() {
		t.Fatalf("unexpected new keys %v", second.NewKeys)
	}

	row, err := store.Get(ctx, "docs", corpus.NewDocumentID("2"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if text, _ := row.Field("text"); text != "beta v2" {
		t.Fatalf("expected updated text, got %q", text)
	}
}

func TestGetMissingIsNotFound(t *testing.T) {
	store := newStore(t)
	if err := store.CreateTable(context.Background(), "docs"); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	_, err := store.Get(context.Background(), "docs", corpus.NewDocumentID("nope"))
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetManySkipsMissing(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	if _, err := store.Import(ctx, "docs", []corpus.Record{
		{ID: corpus.NewDocumentID("a", "1"), Fields: map[string]string{"text": "x"}},
		{ID: corpus.NewDocumentID("a", "2"), Fields: map[string]string{"text": "y"}},
	}); err != nil {
		t.Fatalf("import: %v", err)
	}
	rows, err := store.GetMany(ctx, "docs", []corpus.DocumentID{
		corpus.NewDocumentID("a", "1"),
		corpus.NewDocumentID("a", "9"),
	})
	if err != nil {
		t.Fatalf("GetMany: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if _, ok := rows[corpus.NewDocumentID("a", "1").Key()]; !ok {
		t.Fatal("expected row a,1")
	}
}

func TestReadJSONL(t *testing.T) {
	input := `{"id":["1"],"fields":{"text":"one"}}

{"id":["2","x"],"fields":{"text":"two"}}
`
	records, err := corpus.ReadJSONL(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadJSONL: %v", err)
	}
	if len(records) != 2 || records[1].ID.String() != "2,x" {
		t.Fatalf("unexpected records %+v", records)
	}

	if _, err := corpus.ReadJSONL(strings.NewReader(`{"id":[],"fields":{}}`)); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty id, got %v", err)
	}
}

func TestTablesReportsCounts(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	if _, err := store.Import(ctx, "docs", []corpus.Record{{ID: corpus.NewDocumentID("1"), Fields: map[string]string{"text": "x"}}}); err != nil {
		t.Fatalf("import: %v", err)
	}
	tables, err := store.Tables(ctx)
	if err != nil {
		t.Fatalf("Tables: %v", err)
	}
	if len(tables) != 1 || tables[0].Name != "docs" || tables[0].Documents != 1 || tables[0].Kind != corpus.KindSource {
		t.Fatalf("unexpected tables %+v", tables)
	}
}
