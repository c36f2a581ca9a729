package location

import (
	"context"
	"sync"

	"github.com/example/shuttle-tracking/internal/models"
)

// MemoryStore keeps current locations in a map. Writes resolve by timestamp:
// an older sample never replaces a newer one.
type MemoryStore struct {
	mu   sync.RWMutex
	locs map[int64]models.DriverLocation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{locs: make(map[int64]models.DriverLocation)}
}

func (m *MemoryStore) Set(ctx context.Context, loc models.DriverLocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.locs[loc.DriverID]; ok && cur.Timestamp.After(loc.Timestamp) {
		return nil
	}
	m.locs[loc.DriverID] = loc
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, driverID int64) (*models.DriverLocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loc, ok := m.locs[driverID]
	if !ok {
		return nil, ErrNoLocation
	}
	cp := loc
	return &cp, nil
}
