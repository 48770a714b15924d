package pipeline

import (
	"context"
	"log/slog"

	"corpora/internal/corpus"
)

// Stage is one processing step addressed by a unique key.
type Stage interface {
	Key() string
	Apply(ctx context.Context, ws *Workspace) error
}

// LoggerAware stages receive a logger once when the runner is built. Stages
// are shared across workers, so per-document fields come from the context.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}

// Loader expands one source row into workspaces taken from pool. Each
// returned workspace is decided, planned and executed independently.
type Loader interface {
	Name() string
	Load(ctx context.Context, row corpus.Row, pool *Pool) ([]*Workspace, error)
}

// StageFunc adapts a function to Stage.
type StageFunc struct {
	Name string
	Fn   func(context.Context, *Workspace) error
}

// Key returns the stage key.
func (s StageFunc) Key() string { return s.Name }

// Apply runs the function.
func (s StageFunc) Apply(ctx context.Context, ws *Workspace) error { return s.Fn(ctx, ws) }
