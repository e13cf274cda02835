package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"chronicle/internal/mission"
)

// MissionStore persists missions keyed by id with a read-through cache.
// The cache hands out clones so callers never alias a live record; saves go
// through the cache first, giving read-your-writes within the process.
type MissionStore struct {
	db  *sql.DB
	log *zap.Logger

	mu    sync.RWMutex
	cache map[string]*mission.Mission
}

func newMissionStore(db *sql.DB, log *zap.Logger) *MissionStore {
	return &MissionStore{
		db:    db,
		log:   log,
		cache: make(map[string]*mission.Mission),
	}
}

// Save upserts the mission record and refreshes its updated timestamp.
func (ms *MissionStore) Save(m *mission.Mission) error {
	m.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode mission %s: %w", m.ID, err)
	}

	ms.mu.Lock()
	ms.cache[m.ID] = m.Clone()
	ms.mu.Unlock()

	_, err = ms.db.Exec(`
		INSERT INTO missions (id, state, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		m.ID, string(m.State), data, m.CreatedAt.UnixNano(), m.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save mission %s: %w", m.ID, err)
	}
	return nil
}

// SaveIfActive persists the mission only while the stored record has not
// been paused, completed, or failed by another writer. Returns false when
// such a transition landed first; the caller must stop instead of
// overwriting it. The check and the write are a single conditional UPDATE,
// so a pause racing a phase-boundary save can never be lost.
func (ms *MissionStore) SaveIfActive(m *mission.Mission) (bool, error) {
	m.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(m)
	if err != nil {
		return false, fmt.Errorf("failed to encode mission %s: %w", m.ID, err)
	}

	res, err := ms.db.Exec(`
		UPDATE missions SET state = ?, data = ?, updated_at = ?
		WHERE id = ? AND state NOT IN (?, ?, ?)`,
		string(m.State), data, m.UpdatedAt.UnixNano(), m.ID,
		string(mission.StatePaused), string(mission.StateCompleted), string(mission.StateFailed))
	if err != nil {
		return false, fmt.Errorf("failed to save mission %s: %w", m.ID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Another writer won; drop the cached copy so the next read sees
		// the stored state.
		ms.mu.Lock()
		delete(ms.cache, m.ID)
		ms.mu.Unlock()
		return false, nil
	}

	ms.mu.Lock()
	ms.cache[m.ID] = m.Clone()
	ms.mu.Unlock()
	return true, nil
}

// Get returns a clone of the mission, or nil if it does not exist.
func (ms *MissionStore) Get(id string) (*mission.Mission, error) {
	ms.mu.RLock()
	cached, ok := ms.cache[id]
	ms.mu.RUnlock()
	if ok {
		return cached.Clone(), nil
	}

	var data []byte
	err := ms.db.QueryRow(`SELECT data FROM missions WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load mission %s: %w", id, err)
	}

	var m mission.Mission
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode mission %s: %w", id, err)
	}

	ms.mu.Lock()
	ms.cache[id] = m.Clone()
	ms.mu.Unlock()

	return &m, nil
}

// Delete removes the mission record. Returns false when it did not exist.
func (ms *MissionStore) Delete(id string) (bool, error) {
	ms.mu.Lock()
	delete(ms.cache, id)
	ms.mu.Unlock()

	res, err := ms.db.Exec(`DELETE FROM missions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete mission %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// List returns missions ordered most recently updated first.
func (ms *MissionStore) List(limit, offset int) ([]*mission.Mission, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := ms.db.Query(`
		SELECT data FROM missions
		ORDER BY updated_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list missions: %w", err)
	}
	defer rows.Close()

	var out []*mission.Mission
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var m mission.Mission
		if err := json.Unmarshal(data, &m); err != nil {
			ms.log.Warn("skipping undecodable mission row", zap.Error(err))
			continue
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
