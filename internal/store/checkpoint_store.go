package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"chronicle/internal/mission"
)

// CheckpointStore persists checkpoint snapshots per mission, append-only.
// "Latest" is defined by creation time, not insertion order.
type CheckpointStore struct {
	db  *sql.DB
	log *zap.Logger
}

func newCheckpointStore(db *sql.DB, log *zap.Logger) *CheckpointStore {
	return &CheckpointStore{db: db, log: log}
}

// Save persists a checkpoint. Checkpoints are immutable once created.
func (cs *CheckpointStore) Save(cp *mission.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint %s: %w", cp.ID, err)
	}
	_, err = cs.db.Exec(`
		INSERT INTO checkpoints (id, mission_id, data, created_at)
		VALUES (?, ?, ?, ?)`,
		cp.ID, cp.MissionID, data, cp.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", cp.ID, err)
	}
	return nil
}

// Get returns a specific checkpoint, or nil if it does not exist.
func (cs *CheckpointStore) Get(missionID, checkpointID string) (*mission.Checkpoint, error) {
	var data []byte
	err := cs.db.QueryRow(`
		SELECT data FROM checkpoints
		WHERE mission_id = ? AND id = ?`, missionID, checkpointID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint %s/%s: %w", missionID, checkpointID, err)
	}
	return decodeCheckpoint(data)
}

// Latest returns the most recent checkpoint for the mission by creation
// time, or nil when no checkpoint exists.
func (cs *CheckpointStore) Latest(missionID string) (*mission.Checkpoint, error) {
	var data []byte
	err := cs.db.QueryRow(`
		SELECT data FROM checkpoints
		WHERE mission_id = ?
		ORDER BY created_at DESC
		LIMIT 1`, missionID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest checkpoint for %s: %w", missionID, err)
	}
	return decodeCheckpoint(data)
}

// ListForMission returns all checkpoints for the mission, newest first.
func (cs *CheckpointStore) ListForMission(missionID string) ([]*mission.Checkpoint, error) {
	rows, err := cs.db.Query(`
		SELECT data FROM checkpoints
		WHERE mission_id = ?
		ORDER BY created_at DESC`, missionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints for %s: %w", missionID, err)
	}
	defer rows.Close()

	var out []*mission.Checkpoint
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		cp, err := decodeCheckpoint(data)
		if err != nil {
			cs.log.Warn("skipping undecodable checkpoint row", zap.Error(err))
			continue
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// DeleteForMission removes all checkpoints for a mission and returns the
// number deleted.
func (cs *CheckpointStore) DeleteForMission(missionID string) (int64, error) {
	res, err := cs.db.Exec(`DELETE FROM checkpoints WHERE mission_id = ?`, missionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete checkpoints for %s: %w", missionID, err)
	}
	return res.RowsAffected()
}

func decodeCheckpoint(data []byte) (*mission.Checkpoint, error) {
	var cp mission.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &cp, nil
}
