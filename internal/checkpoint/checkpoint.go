// Package checkpoint provides the terminal pipeline stage that marks a source
// row processed in its subset.
package checkpoint

import (
	"context"
	"log/slog"

	"corpora/internal/corpus"
	"corpora/internal/logging"
	"corpora/internal/pipeline"
)

// Marker records completion under a claim. An empty token marks the row
// unconditionally.
type Marker interface {
	CompleteClaim(ctx context.Context, name string, id corpus.DocumentID, token, lastComponent string) error
}

// Stage marks ws.SourceID processed unless the workspace defers its checkpoint.
type Stage struct {
	key    string
	marker Marker
	logger *slog.Logger
}

// New returns a checkpoint stage registered under key.
func New(key string, marker Marker) *Stage {
	return &Stage{key: key, marker: marker, logger: logging.NewNop()}
}

// Key returns the stage key.
func (s *Stage) Key() string {
	return s.key
}

// SetLogger implements pipeline.LoggerAware.
func (s *Stage) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Apply marks the source row processed. Marking twice is harmless; a row reset
// since it was claimed is left unprocessed.
func (s *Stage) Apply(ctx context.Context, ws *pipeline.Workspace) error {
	if ws.DeferCheckpoint {
		logging.WithContext(ctx, s.logger).Debug("checkpoint deferred to last expansion", logging.Int("part", ws.Part))
		return nil
	}
	return s.marker.CompleteClaim(ctx, ws.Subset, ws.SourceID, ws.ClaimToken, s.key)
}
