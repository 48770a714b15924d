package pipeline

import (
	"maps"

	"corpora/internal/corpus"
	"corpora/internal/hashgate"
)

// Workspace is the mutable per-document record stages read and write. A
// workspace is owned by one goroutine at a time and is reset before reuse.
type Workspace struct {
	Subset   string
	Table    string
	SourceID corpus.DocumentID
	// ClaimToken identifies the claim the source row is processed under.
	ClaimToken string
	// DocID identifies this expansion. Single-document loaders use SourceID.
	DocID corpus.DocumentID
	// Part is the zero-based expansion index within the source row.
	Part   int
	Fields map[string]string
	// Content holds the designated field bytes that are hashed.
	Content []byte
	Text    string

	Sentences []string
	Tokens    []string
	Artifact  map[string]any

	Decision *hashgate.Decision
	// DeferCheckpoint holds back the subset checkpoint until the last
	// expansion of the source row.
	DeferCheckpoint bool
	// LastComponent is the key of the last stage that completed.
	LastComponent string
}

// Reset clears every field so the workspace can be reused.
func (w *Workspace) Reset() {
	clear(w.Fields)
	clear(w.Artifact)
	*w = Workspace{
		Fields:    w.Fields,
		Sentences: w.Sentences[:0],
		Tokens:    w.Tokens[:0],
		Artifact:  w.Artifact,
	}
}

// SetFields copies fields into the workspace.
func (w *Workspace) SetFields(fields map[string]string) {
	if w.Fields == nil {
		w.Fields = make(map[string]string, len(fields))
	}
	maps.Copy(w.Fields, fields)
}

// SetArtifact stores one artifact value.
func (w *Workspace) SetArtifact(key string, value any) {
	if w.Artifact == nil {
		w.Artifact = map[string]any{}
	}
	w.Artifact[key] = value
}

// Empty reports whether the workspace holds nothing. Reset workspaces are empty.
func (w *Workspace) Empty() bool {
	return w.Subset == "" && w.Table == "" && len(w.SourceID) == 0 && w.ClaimToken == "" && len(w.DocID) == 0 &&
		len(w.Fields) == 0 && len(w.Content) == 0 && w.Text == "" &&
		len(w.Sentences) == 0 && len(w.Tokens) == 0 && len(w.Artifact) == 0 &&
		w.Decision == nil && !w.DeferCheckpoint && w.LastComponent == "" && w.Part == 0
}
