// Package store provides durable persistence for missions and checkpoints
// on SQLite. Missions are whole-record JSON blobs behind a read-through
// cache; checkpoints are append-only snapshots ordered by creation time.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Store owns the SQLite database shared by the mission and checkpoint stores.
type Store struct {
	db  *sql.DB
	log *zap.Logger

	Missions    *MissionStore
	Checkpoints *CheckpointStore
}

// Open initializes the SQLite database at the given path.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		log.Debug("failed to set sqlite busy_timeout", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Debug("failed to set sqlite journal_mode=WAL", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		log.Debug("failed to set sqlite synchronous=NORMAL", zap.Error(err))
	}

	s := &Store{db: db, log: log}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	s.Missions = newMissionStore(db, log)
	s.Checkpoints = newCheckpointStore(db, log)

	log.Info("store opened", zap.String("path", path))
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS missions (
		id         TEXT PRIMARY KEY,
		state      TEXT NOT NULL,
		data       BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS checkpoints (
		id         TEXT NOT NULL,
		mission_id TEXT NOT NULL,
		data       BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (mission_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_missions_updated
		ON missions(updated_at DESC);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_mission
		ON checkpoints(mission_id, created_at DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}
