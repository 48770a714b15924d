package pipeline

import (
	"context"

	"corpora/internal/corpus"
	"corpora/internal/plan"
)

// Route is the routing decision for one expansion of a document.
type Route struct {
	DocID      corpus.DocumentID
	Hash       string
	StoredHash string
	Stored     bool
	Skip       bool
	Plan       []string
}

// Explain computes the plan each expansion of id would follow in subsetName
// without running any stage or touching its status.
func (r *Runner) Explain(ctx context.Context, subsetName string, id corpus.DocumentID) ([]Route, error) {
	s, err := r.tracker.Get(ctx, subsetName)
	if err != nil {
		return nil, err
	}
	row, err := r.corpus.Get(ctx, s.Table, id)
	if err != nil {
		return nil, err
	}
	workspaces, err := r.loader.Load(ctx, row, r.pool)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, ws := range workspaces {
			r.pool.Put(ws)
		}
	}()

	ids := make([]corpus.DocumentID, 0, len(workspaces))
	for _, ws := range workspaces {
		if len(ws.DocID) == 0 {
			ws.DocID = row.ID
		}
		ids = append(ids, ws.DocID)
	}
	snapshot, err := r.artifacts.LookupHashes(ctx, ids)
	if err != nil {
		return nil, err
	}

	routes := make([]Route, 0, len(workspaces))
	for _, ws := range workspaces {
		decision := r.gate.DecideFrom(snapshot, ws.DocID, ws.Content)
		p, err := plan.Build(r.canonical, &decision, r.checkpointKey)
		if err != nil {
			return nil, err
		}
		stored, ok := snapshot[ws.DocID.Key()]
		routes = append(routes, Route{
			DocID:      ws.DocID,
			Hash:       decision.Hash,
			StoredHash: stored,
			Stored:     ok,
			Skip:       decision.Skip,
			Plan:       p.Keys(),
		})
	}
	return routes, nil
}
