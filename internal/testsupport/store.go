package testsupport

import (
	"context"
	"testing"

	"corpora/internal/config"
	"corpora/internal/storage"
)

// MustOpenDB opens the configured database for tests and registers cleanup.
func MustOpenDB(t testing.TB, cfg *config.Config) *storage.DB {
	t.Helper()

	db, err := storage.OpenConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("storage.OpenConfig: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}
