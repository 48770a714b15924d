// Package plan turns a hash gate decision into the ordered stage keys run for
// one document.
package plan

import (
	"errors"

	"corpora/internal/hashgate"
)

// ErrNoCheckpoint is returned when the checkpoint key is empty.
var ErrNoCheckpoint = errors.New("checkpoint key is empty")

// Plan is an immutable ordered list of stage keys. It is never empty and its
// last key is always the checkpoint key.
type Plan struct {
	keys    []string
	reduced bool
}

// Build routes a document. A nil or non-skip decision yields the canonical
// order; a skip decision yields exactly its visit keys. In both cases the
// checkpoint key is moved to the end, or appended when absent.
func Build(canonical []string, decision *hashgate.Decision, checkpointKey string) (Plan, error) {
	if checkpointKey == "" {
		return Plan{}, ErrNoCheckpoint
	}
	source := canonical
	reduced := decision.Skipped()
	if reduced {
		source = decision.VisitKeys
	}
	keys := make([]string, 0, len(source)+1)
	for _, key := range source {
		if key == checkpointKey || key == "" {
			continue
		}
		keys = append(keys, key)
	}
	keys = append(keys, checkpointKey)
	return Plan{keys: keys, reduced: reduced}, nil
}

// Keys returns a copy of the planned keys.
func (p Plan) Keys() []string {
	return append([]string(nil), p.keys...)
}

// Len returns the number of planned stages.
func (p Plan) Len() int {
	return len(p.keys)
}

// Reduced reports whether the plan came from a skip decision.
func (p Plan) Reduced() bool {
	return p.reduced
}

// CheckpointOnly reports whether the plan runs nothing but the checkpoint.
func (p Plan) CheckpointOnly() bool {
	return len(p.keys) == 1
}

// Cursor starts a fresh walk over the plan. Each document gets its own cursor.
func (p Plan) Cursor() *Cursor {
	return &Cursor{keys: p.keys}
}

// Cursor walks a plan in order.
type Cursor struct {
	keys []string
	pos  int
}

// Next returns the next stage key, or false once the plan is exhausted.
func (c *Cursor) Next() (string, bool) {
	if c.pos >= len(c.keys) {
		return "", false
	}
	key := c.keys[c.pos]
	c.pos++
	return key, true
}

// Done reports whether every key has been returned.
func (c *Cursor) Done() bool {
	return c.pos >= len(c.keys)
}

// Position returns how many keys have been returned so far.
func (c *Cursor) Position() int {
	return c.pos
}
