package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// Record is one JSON Lines import record.
type Record struct {
	ID     []string          `json:"id"`
	Fields map[string]string `json:"fields"`
}

// WriteJSONL writes records as JSON Lines to path, creating parent directories.
func WriteJSONL(t testing.TB, path string, records []Record) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
}

// TextRecord builds a single-part record with a text field.
func TextRecord(id, text string) Record {
	return Record{ID: []string{id}, Fields: map[string]string{"text": text}}
}
