package stages

import (
	"context"
	"encoding/json"
	"log/slog"

	"corpora/internal/artifact"
	"corpora/internal/corpus"
	"corpora/internal/logging"
	"corpora/internal/pipeline"
	"corpora/internal/services"
)

// Putter writes artifacts.
type Putter interface {
	Put(ctx context.Context, id corpus.DocumentID, data []byte, hash string) (artifact.PutResult, error)
}

// Document is the serialized artifact written by Persist.
type Document struct {
	SourceID  []string       `json:"source_id"`
	DocID     []string       `json:"doc_id"`
	Part      int            `json:"part"`
	Text      string         `json:"text"`
	Sentences []string       `json:"sentences"`
	Tokens    []string       `json:"tokens"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// Persist writes the workspace as an artifact together with its content hash.
type Persist struct {
	store  Putter
	logger *slog.Logger
}

// NewPersist returns a persist stage writing to store.
func NewPersist(store Putter) *Persist {
	return &Persist{store: store, logger: logging.NewNop()}
}

// Key implements pipeline.Stage.
func (*Persist) Key() string { return KeyPersist }

// SetLogger implements pipeline.LoggerAware.
func (p *Persist) SetLogger(logger *slog.Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// Apply implements pipeline.Stage.
func (p *Persist) Apply(ctx context.Context, ws *pipeline.Workspace) error {
	hash := ""
	if ws.Decision != nil {
		hash = ws.Decision.Hash
	}
	if hash == "" {
		hash = artifact.ComputeContentHash(ws.Content)
	}
	doc := Document{
		SourceID:  ws.SourceID,
		DocID:     ws.DocID,
		Part:      ws.Part,
		Text:      ws.Text,
		Sentences: ws.Sentences,
		Tokens:    ws.Tokens,
	}
	if len(ws.Artifact) > 0 {
		doc.Extra = ws.Artifact
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return services.Wrap(services.ErrStageFailure, "persist", "encode", ws.DocID.String(), err)
	}
	res, err := p.store.Put(ctx, ws.DocID, data, hash)
	if err != nil {
		return err
	}
	if res.Mirrored > 0 {
		logging.WithContext(ctx, p.logger).Debug("downstream mirrors updated", logging.Int("rows", res.Mirrored))
	}
	return nil
}
