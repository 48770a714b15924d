// Package loader expands corpus rows into pipeline workspaces.
//
// Every loader hashes the raw bytes of one designated field so the hash gate
// sees the same content regardless of how the text is extracted.
package loader

import (
	"context"
	"fmt"
	"strings"

	"corpora/internal/corpus"
	"corpora/internal/pipeline"
	"corpora/internal/services"
)

const (
	KindText       = "text"
	KindHTML       = "html"
	KindParagraphs = "paragraphs"
)

// New returns the loader named kind reading field.
func New(kind, field string) (pipeline.Loader, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindText:
		return Text{Field: field}, nil
	case KindHTML:
		return HTML{Field: field}, nil
	case KindParagraphs:
		return Paragraphs{Field: field}, nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "loader", "new", fmt.Sprintf("unknown loader %q", kind), nil)
	}
}

func fieldValue(row corpus.Row, field string) (string, error) {
	value, ok := row.Field(field)
	if !ok {
		return "", services.Wrap(services.ErrValidation, "loader", "load",
			fmt.Sprintf("%s/%s has no field %q", row.Table, row.ID, field), nil)
	}
	return value, nil
}

func single(row corpus.Row, pool *pipeline.Pool, content, text string) []*pipeline.Workspace {
	ws := pool.Get()
	ws.DocID = row.ID
	ws.SetFields(row.Fields)
	ws.Content = []byte(content)
	ws.Text = text
	return []*pipeline.Workspace{ws}
}

// Text loads a plain text field as one document.
type Text struct {
	Field string
}

// Name implements pipeline.Loader.
func (Text) Name() string { return KindText }

// Load implements pipeline.Loader.
func (l Text) Load(_ context.Context, row corpus.Row, pool *pipeline.Pool) ([]*pipeline.Workspace, error) {
	value, err := fieldValue(row, l.Field)
	if err != nil {
		return nil, err
	}
	return single(row, pool, value, value), nil
}
