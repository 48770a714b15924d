// Package hashgate decides whether a document's content matches the hash
// stored with its last artifact. The decision is pure: no I/O and no state.
package hashgate

import (
	"slices"

	"corpora/internal/artifact"
	"corpora/internal/corpus"
)

// Decision tells the router which path a document takes. A nil *Decision
// routes like Skip=false.
type Decision struct {
	Skip bool
	// VisitKeys are the stage keys run when Skip is set.
	VisitKeys []string
	// Hash is the freshly computed content hash.
	Hash string
}

// Skipped reports whether d selects the reduced path.
func (d *Decision) Skipped() bool {
	return d != nil && d.Skip
}

// Decide compares content against a stored hash. Skip is set only when a
// stored hash exists and equals the content hash.
func Decide(content []byte, stored string, hasStored bool, visitKeys []string) Decision {
	hash := artifact.ComputeContentHash(content)
	if !hasStored || stored != hash {
		return Decision{Hash: hash}
	}
	return Decision{Skip: true, VisitKeys: slices.Clone(visitKeys), Hash: hash}
}

// Gate carries the stage keys visited by skipped documents.
type Gate struct {
	SkipKeys []string
}

// New returns a gate visiting skipKeys on skip.
func New(skipKeys []string) Gate {
	return Gate{SkipKeys: slices.Clone(skipKeys)}
}

// Decide applies the gate to one stored hash.
func (g Gate) Decide(content []byte, stored string, hasStored bool) Decision {
	return Decide(content, stored, hasStored, g.SkipKeys)
}

// DecideFrom looks id up in a prefetched snapshot of stored hashes keyed by
// DocumentID.Key.
func (g Gate) DecideFrom(snapshot map[string]string, id corpus.DocumentID, content []byte) Decision {
	stored, ok := snapshot[id.Key()]
	return g.Decide(content, stored, ok)
}
