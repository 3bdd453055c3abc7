package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/parleyhq/parley/internal/logging"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), logging.Discard())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesSchema(t *testing.T) {
	s := openTestStore(t)

	version, err := s.UserVersion()
	if err != nil {
		t.Fatalf("UserVersion failed: %v", err)
	}
	if version != CurrentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, CurrentSchemaVersion)
	}
}

func TestOpen_Reopen(t *testing.T) {
	dir := t.TempDir()
	log := logging.Discard()

	s, err := Open(dir, log)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	if err := s.PutBlob(context.Background(), "01A", "audio/mp4", []byte("x")); err != nil {
		t.Fatalf("PutBlob failed: %v", err)
	}
	s.Close()

	s2, err := Open(dir, log)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	_, found, err := s2.GetBlob(context.Background(), "01A")
	if err != nil {
		t.Fatalf("GetBlob failed: %v", err)
	}
	if !found {
		t.Error("blob did not survive reopen")
	}
}

func TestMigrate_V1ResetIsCleanAndComplete(t *testing.T) {
	dir := t.TempDir()

	// Lay down a legacy v1 database: single table, inlined payload.
	dbPath := filepath.Join(dir, "parley.db")
	legacy, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open legacy db: %v", err)
	}
	if _, err := legacy.Exec(`
		CREATE TABLE recordings (id TEXT PRIMARY KEY, topic TEXT, payload BLOB);
		INSERT INTO recordings VALUES ('old1', 'daily news', x'00ff');
		PRAGMA user_version=1;
	`); err != nil {
		t.Fatalf("seed legacy db: %v", err)
	}
	legacy.Close()

	s, err := Open(dir, logging.Discard())
	if err != nil {
		t.Fatalf("Open over v1 db failed: %v", err)
	}
	defer s.Close()

	version, err := s.UserVersion()
	if err != nil {
		t.Fatalf("UserVersion failed: %v", err)
	}
	if version != CurrentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, CurrentSchemaVersion)
	}

	// Pre-migration data is gone, but every v2 collection works.
	items, err := s.ListMetadata(context.Background(), -1, 0)
	if err != nil {
		t.Fatalf("ListMetadata failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected empty store after reset, got %d records", len(items))
	}
	if err := s.PutBlob(context.Background(), "new1", "audio/webm", []byte("y")); err != nil {
		t.Errorf("PutBlob after reset failed: %v", err)
	}
	if err := s.SetPref(context.Background(), "locale", []byte(`"en"`)); err != nil {
		t.Errorf("SetPref after reset failed: %v", err)
	}
}

func TestOpen_NewerSchemaRefused(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "parley.db")
	future, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := future.Exec(`PRAGMA user_version=99`); err != nil {
		t.Fatalf("set version: %v", err)
	}
	future.Close()

	if _, err := Open(dir, logging.Discard()); err == nil {
		t.Error("expected error opening a newer-versioned database")
	}
}

func TestShared_ConcurrentCallersGetOneStore(t *testing.T) {
	dir := t.TempDir()
	log := logging.Discard()

	const callers = 16
	stores := make([]*Store, callers)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			s, err := Shared(dir, log)
			if err != nil {
				t.Errorf("Shared failed: %v", err)
				return
			}
			stores[i] = s
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		if stores[i] != stores[0] {
			t.Fatalf("caller %d got a different store instance", i)
		}
	}
}
