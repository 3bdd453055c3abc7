package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/parleyhq/parley/internal/config"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
//
// Version 1 was a single recordings table with the payload inlined next to
// the metadata. Version 2 splits binary payloads into their own table so
// listings never page large blobs through the row cache, and adds the
// preference document table.
const CurrentSchemaVersion = 2

// Store wraps the SQLite substrate holding the blob, metadata, and
// preference collections. All methods are safe for concurrent use.
type Store struct {
	db  *sql.DB
	log *logrus.Logger
}

// Open initializes the SQLite database at baseDir/parley.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.parley.
func Open(baseDir string, log *logrus.Logger) (*Store, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	// Open database with pragmas in connection string (applies to all connections)
	dbPath := filepath.Join(baseDir, "parley.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(dbPath, 0600)

	return s, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func (s *Store) ConfigurePool(cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		s.db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		s.db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

type sharedEntry struct {
	once  sync.Once
	store *Store
	err   error
}

var (
	sharedMu sync.Mutex
	sharedBy = map[string]*sharedEntry{}
)

// Shared returns the process-lifetime store for baseDir, opening it on first
// use. Concurrent callers await the same in-flight initialization instead of
// racing to open the substrate twice. The handle is never explicitly torn
// down; it lives as long as the process.
func Shared(baseDir string, log *logrus.Logger) (*Store, error) {
	sharedMu.Lock()
	entry, ok := sharedBy[baseDir]
	if !ok {
		entry = &sharedEntry{}
		sharedBy[baseDir] = entry
	}
	sharedMu.Unlock()

	entry.once.Do(func() {
		entry.store, entry.err = Open(baseDir, log)
	})
	return entry.store, entry.err
}

// migrate applies schema migrations based on user_version.
func (s *Store) migrate() error {
	version, err := s.UserVersion()
	if err != nil {
		return err
	}

	if version > CurrentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, CurrentSchemaVersion)
	}

	if version == CurrentSchemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	// Migration 1 -> 2 cannot preserve old records: the v1 layout inlined
	// payloads with no media-type tag, so they cannot be split into the
	// two-store form. The reset is applied atomically with the new schema;
	// losing pre-migration data is accepted, a half-created schema is not.
	if version == 1 {
		s.log.Warn("resetting recording store: schema v1 cannot be migrated in place, existing recordings will be lost")
		if _, err := tx.Exec(`DROP TABLE IF EXISTS recordings`); err != nil {
			return fmt.Errorf("schema reset failed: %w", err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS blobs (
	  id         TEXT PRIMARY KEY,
	  media_type TEXT NOT NULL,
	  payload    BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS recordings (
	  id               TEXT PRIMARY KEY,
	  topic            TEXT,
	  kind             TEXT NOT NULL,
	  format           TEXT NOT NULL,
	  duration_seconds INTEGER NOT NULL,
	  size_bytes       INTEGER NOT NULL,
	  created_at       TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_recordings_created_at
	ON recordings(created_at DESC);

	CREATE TABLE IF NOT EXISTS prefs (
	  key   TEXT PRIMARY KEY,
	  value TEXT NOT NULL
	);
	`
	if _, err := tx.Exec(schema); err != nil {
		return fmt.Errorf("migration %d failed: %w", CurrentSchemaVersion, err)
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version=%d", CurrentSchemaVersion)); err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// UserVersion returns the current schema version (user_version pragma).
func (s *Store) UserVersion() (int, error) {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}
