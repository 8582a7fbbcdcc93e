package testing

import (
	"path/filepath"
	"testing"

	"github.com/aristath/optionseller/internal/database"
)

// NewTestDB creates a file-backed SQLite database in a per-test temporary
// directory and applies the schema registered for name. Unknown names get
// an empty database. The database is closed when the test finishes.
func NewTestDB(t *testing.T, name string) *database.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), name+".db")

	db, err := database.New(database.Config{
		Path:    path,
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
	})
	return db
}
