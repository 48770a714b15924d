package loader

import (
	"context"
	"fmt"
	"strings"

	"corpora/internal/corpus"
	"corpora/internal/pipeline"
)

// Paragraphs splits a text field on blank lines and yields one document per
// paragraph. Each paragraph is hashed on its own, so editing one paragraph
// only reruns that paragraph in full. A field without paragraphs still yields
// one empty document so the row is checkpointed.
type Paragraphs struct {
	Field string
}

// Name implements pipeline.Loader.
func (Paragraphs) Name() string { return KindParagraphs }

// Load implements pipeline.Loader.
func (l Paragraphs) Load(_ context.Context, row corpus.Row, pool *pipeline.Pool) ([]*pipeline.Workspace, error) {
	value, err := fieldValue(row, l.Field)
	if err != nil {
		return nil, err
	}
	parts := SplitParagraphs(value)
	if len(parts) == 0 {
		parts = []string{""}
	}
	out := make([]*pipeline.Workspace, 0, len(parts))
	for i, part := range parts {
		ws := pool.Get()
		ws.DocID = ParagraphID(row.ID, i)
		ws.Part = i
		ws.SetFields(row.Fields)
		ws.Content = []byte(part)
		ws.Text = part
		out = append(out, ws)
	}
	return out, nil
}

// ParagraphID derives the document id of paragraph i of source.
func ParagraphID(source corpus.DocumentID, i int) corpus.DocumentID {
	id := make(corpus.DocumentID, 0, len(source)+1)
	id = append(id, source...)
	return append(id, fmt.Sprintf("p%d", i))
}

// SplitParagraphs returns the trimmed, non-empty blocks of text separated by
// blank lines.
func SplitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var (
		out     []string
		current []string
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		if joined := strings.TrimSpace(strings.Join(current, "\n")); joined != "" {
			out = append(out, joined)
		}
		current = current[:0]
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return out
}
