// Package testutil provides shared test helpers for setting up databases and agenda directories.
package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/starford/council/internal/models"
	"github.com/starford/council/internal/storage"
	"github.com/starford/council/internal/store"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "council-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestFiles creates a temporary agenda directory with a storage.Provider.
func TestFiles(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	files, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, files
}

// InsertMeeting stores a standing committee meeting and returns its id.
func InsertMeeting(t *testing.T, db *store.DB, date, clock string) string {
	t.Helper()
	id, err := db.Insert(context.Background(), &models.Meeting{
		MeetingDate: date,
		MeetingTime: clock,
		MeetingType: models.MeetingTypeStandingCommittee,
	})
	if err != nil {
		t.Fatal(err)
	}
	return id
}
