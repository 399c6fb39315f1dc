// Package testutil provides shared test helpers for setting up document stores.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/voxnote/internal/docstore"
	"github.com/starford/voxnote/internal/docstore/memstore"
	"github.com/starford/voxnote/internal/docstore/sqlitestore"
	"github.com/starford/voxnote/internal/docstore/vault"
)

// TestDB creates a temporary SQLite store that is automatically cleaned up.
func TestDB(t *testing.T) *sqlitestore.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "voxnote-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := sqlitestore.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a vault store in a temporary directory.
func TestVault(t *testing.T) (string, *vault.Vault) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "vault")
	v, err := vault.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	return v.Root(), v
}

// Stores returns one fresh instance of every local document store backend,
// keyed by driver name.
func Stores(t *testing.T) map[string]docstore.DocumentStore {
	t.Helper()
	_, v := TestVault(t)
	return map[string]docstore.DocumentStore{
		"memory": memstore.New(),
		"sqlite": TestDB(t),
		"vault":  v,
	}
}
