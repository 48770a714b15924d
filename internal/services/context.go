package services

import "context"

type contextKey string

const (
	subsetKey contextKey = "subset"
	docIDKey  contextKey = "doc_id"
	stageKey  contextKey = "stage"
	workerKey contextKey = "worker"
	runIDKey  contextKey = "run_id"
)

// WithSubset annotates context with the subset being processed.
func WithSubset(ctx context.Context, subset string) context.Context {
	if subset == "" {
		return ctx
	}
	return context.WithValue(ctx, subsetKey, subset)
}

// SubsetFromContext returns the subset name if present.
func SubsetFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, subsetKey)
}

// WithDocumentID annotates context with the rendered document identifier.
func WithDocumentID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, docIDKey, id)
}

// DocumentIDFromContext extracts the document identifier if present.
func DocumentIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, docIDKey)
}

// WithStage annotates context with the stage key.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage key if present.
func StageFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, stageKey)
}

// WithWorker annotates context with the worker name.
func WithWorker(ctx context.Context, worker string) context.Context {
	if worker == "" {
		return ctx
	}
	return context.WithValue(ctx, workerKey, worker)
}

// WorkerFromContext returns the worker name if present.
func WorkerFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, workerKey)
}

// WithRunID annotates context with the run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, runIDKey)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
