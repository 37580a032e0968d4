package leveldbkv

import (
	"path/filepath"
	"testing"

	"github.com/bverify/bverify-go/storage/kv"
)

// WithDB opens a fresh database in a temporary directory for _tests_
// and closes it when the test ends.
func WithDB(t testing.TB) kv.DB {
	db, err := OpenDB(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
