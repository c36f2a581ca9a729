package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/example/shuttle-tracking/internal/models"
)

// MemoryBookingStore keeps bookings in a map for local runs and tests.
// UpdateStatus performs the CAS under the store mutex.
type MemoryBookingStore struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]*models.Booking
}

func NewMemoryBookingStore() *MemoryBookingStore {
	return &MemoryBookingStore{rows: make(map[int64]*models.Booking)}
}

func (m *MemoryBookingStore) Create(ctx context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	b.ID = m.nextID
	cp := *b
	m.rows[b.ID] = &cp
	return nil
}

func (m *MemoryBookingStore) Get(ctx context.Context, id int64) (*models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryBookingStore) ListByUser(ctx context.Context, userID int64) ([]models.Booking, error) {
	return m.list(func(b *models.Booking) bool { return b.UserID == userID }, 0)
}

func (m *MemoryBookingStore) ListByDriver(ctx context.Context, driverID int64, activeOnly bool) ([]models.Booking, error) {
	return m.list(func(b *models.Booking) bool {
		if b.DriverID == nil || *b.DriverID != driverID {
			return false
		}
		return !activeOnly || !b.Status.Terminal()
	}, 0)
}

func (m *MemoryBookingStore) ListAll(ctx context.Context, limit int) ([]models.Booking, error) {
	return m.list(func(*models.Booking) bool { return true }, limit)
}

func (m *MemoryBookingStore) list(keep func(*models.Booking) bool, limit int) ([]models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Booking, 0)
	for _, b := range m.rows {
		if keep(b) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryBookingStore) UpdateStatus(ctx context.Context, id int64, ch StatusChange) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok {
		return false, ErrNotFound
	}
	if b.Status != ch.From {
		return false, nil
	}
	applyChange(b, ch)
	return true, nil
}

// applyChange mutates b in place; callers hold whatever lock guards b.
func applyChange(b *models.Booking, ch StatusChange) {
	at := ch.At
	b.Status = ch.To
	b.UpdatedAt = &at
	if ch.DriverID != nil {
		b.DriverID = ch.DriverID
	}
	switch ch.To {
	case models.StatusAccepted:
		b.AcceptedAt = &at
	case models.StatusOngoing:
		b.StartedAt = &at
	case models.StatusCompleted:
		b.CompletedAt = &at
	case models.StatusCancelled, models.StatusNoShow:
		b.CancelledAt = &at
		b.CancelReason = ch.Reason
		b.CancelledBy = ch.CancelledBy
	}
}

// MemoryLocationStore keeps campus waypoints in a map.
type MemoryLocationStore struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]*models.Location
}

func NewMemoryLocationStore() *MemoryLocationStore {
	return &MemoryLocationStore{rows: make(map[int64]*models.Location)}
}

func (m *MemoryLocationStore) Get(ctx context.Context, id int64) (*models.Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *MemoryLocationStore) ListActive(ctx context.Context) ([]models.Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Location, 0, len(m.rows))
	for _, l := range m.rows {
		if l.Status == "active" {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryLocationStore) Create(ctx context.Context, l *models.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	l.ID = m.nextID
	if l.Status == "" {
		l.Status = "active"
	}
	cp := *l
	m.rows[l.ID] = &cp
	return nil
}

func (m *MemoryLocationStore) Update(ctx context.Context, l *models.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rows[l.ID]
	if !ok {
		return ErrNotFound
	}
	l.Status = cur.Status
	cp := *l
	m.rows[l.ID] = &cp
	return nil
}

func (m *MemoryLocationStore) Deactivate(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rows[id]
	if !ok {
		return ErrNotFound
	}
	l.Status = "inactive"
	return nil
}

// MemoryDriverDirectory hands out registered driver ids round-robin.
type MemoryDriverDirectory struct {
	mu      sync.Mutex
	drivers []int64
	next    int
}

func NewMemoryDriverDirectory(driverIDs ...int64) *MemoryDriverDirectory {
	return &MemoryDriverDirectory{drivers: driverIDs}
}

func (m *MemoryDriverDirectory) NextAvailable(ctx context.Context) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.drivers) == 0 {
		return 0, false, nil
	}
	id := m.drivers[m.next%len(m.drivers)]
	m.next++
	return id, true, nil
}
