package db

import (
	"testing"
)

// NewTestMirrorDB creates an in-memory, migrated mirror database for testing.
// The database is automatically closed when the test completes.
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//	    t.Parallel()
//	    mdb := db.NewTestMirrorDB(t)
//	    // use mdb...
//	}
func NewTestMirrorDB(t testing.TB) *MirrorDB {
	t.Helper()

	mdb, err := OpenMirrorInMemory()
	if err != nil {
		t.Fatalf("create test mirror db: %v", err)
	}

	t.Cleanup(func() {
		_ = mdb.Close()
	})

	return mdb
}
