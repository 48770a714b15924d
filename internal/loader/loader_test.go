package loader_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"corpora/internal/corpus"
	"corpora/internal/loader"
	"corpora/internal/pipeline"
	"corpora/internal/services"
)

func row(fields map[string]string) corpus.Row {
	return corpus.Row{Table: "docs", ID: corpus.NewDocumentID("d1"), Fields: fields}
}

func TestTextLoader(t *testing.T) {
	l, err := loader.New("text", "body")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := l.Load(context.Background(), row(map[string]string{"body": "hello"}), pipeline.NewPool(1))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != 1 || string(out[0].Content) != "hello" || !out[0].DocID.Equal(corpus.NewDocumentID("d1")) {
		t.Fatalf("unexpected workspaces %+v", out)
	}

	_, err = l.Load(context.Background(), row(map[string]string{}), pipeline.NewPool(1))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for missing field, got %v", err)
	}
}

func TestHTMLLoaderHashesRawButExtractsText(t *testing.T) {
	doc := `<html><head><style>p{}</style><script>var x;</script></head><body><h1>Title</h1><p>First para.</p></body></html>`
	l := loader.HTML{Field: "html"}
	out, err := l.Load(context.Background(), row(map[string]string{"html": doc}), pipeline.NewPool(1))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(out[0].Content) != doc {
		t.Fatal("content should be the raw field")
	}
	if strings.Contains(out[0].Text, "var x") || strings.Contains(out[0].Text, "p{}") {
		t.Fatalf("script or style leaked into text: %q", out[0].Text)
	}
	if !strings.Contains(out[0].Text, "Title") || !strings.Contains(out[0].Text, "First para.") {
		t.Fatalf("missing visible text: %q", out[0].Text)
	}
}

func TestParagraphLoaderExpands(t *testing.T) {
	l := loader.Paragraphs{Field: "text"}
	out, err := l.Load(context.Background(), row(map[string]string{"text": "one\n\n\ntwo a\ntwo b\n\n  \nthree"}), pipeline.NewPool(1))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 paragraphs, got %d", len(out))
	}
	if out[1].Text != "two a\ntwo b" || out[1].Part != 1 {
		t.Fatalf("unexpected second paragraph %+v", out[1])
	}
	if got := out[2].DocID; !slices.Equal(got, corpus.DocumentID{"d1", "p2"}) {
		t.Fatalf("DocID = %v", got)
	}
}

func TestParagraphLoaderEmptyFieldYieldsOneDocument(t *testing.T) {
	l := loader.Paragraphs{Field: "text"}
	out, err := l.Load(context.Background(), row(map[string]string{"text": "  \n\n"}), pipeline.NewPool(1))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != 1 || len(out[0].Content) != 0 {
		t.Fatalf("expected one empty workspace, got %+v", out)
	}
}

func TestNewRejectsUnknownLoader(t *testing.T) {
	if _, err := loader.New("pdf", "text"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
