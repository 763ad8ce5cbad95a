// Package testutil provides shared test helpers for temporary stores and ledgers.
package testutil

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/starford/lorekeeper/internal/storage"
	"github.com/starford/lorekeeper/internal/usage"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestLedger creates a usage ledger in a temporary directory that is closed
// automatically.
func TestLedger(t *testing.T) *usage.DB {
	t.Helper()
	db, err := usage.Open(filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatalf("usage.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestFS creates a temporary directory with a storage.Provider. Files in
// seed are written before it is returned.
func TestFS(t *testing.T, seed map[string]string) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	for name, content := range seed {
		if err := fs.Write(name, []byte(content)); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
	return dir, fs
}
