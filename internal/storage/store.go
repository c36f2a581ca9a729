package storage

import (
	"context"
	"errors"
	"time"

	"github.com/example/shuttle-tracking/internal/models"
)

// ErrNotFound is returned for unknown booking or location ids.
var ErrNotFound = errors.New("not found")

// StatusChange captures one applied transition. The store fills the
// lifecycle timestamp matching To and, when set, the new driver assignment.
type StatusChange struct {
	From        models.BookingStatus
	To          models.BookingStatus
	At          time.Time
	DriverID    *int64 // set on assignment (pending -> accepted)
	CancelledBy *int64
	Reason      string
}

// BookingStore defines persistence operations for bookings. UpdateStatus is
// compare-and-swap on the current status: it returns false without modifying
// anything when the row is no longer in ch.From, so concurrent transition
// requests on the same booking resolve to exactly one winner.
type BookingStore interface {
	Create(ctx context.Context, b *models.Booking) error
	Get(ctx context.Context, id int64) (*models.Booking, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Booking, error)
	ListByDriver(ctx context.Context, driverID int64, activeOnly bool) ([]models.Booking, error)
	ListAll(ctx context.Context, limit int) ([]models.Booking, error)
	UpdateStatus(ctx context.Context, id int64, ch StatusChange) (bool, error)
}

// LocationStore defines persistence operations for campus waypoints.
// Delete is a soft status flip; bookings keep referencing inactive rows.
type LocationStore interface {
	Get(ctx context.Context, id int64) (*models.Location, error)
	ListActive(ctx context.Context) ([]models.Location, error)
	Create(ctx context.Context, l *models.Location) error
	Update(ctx context.Context, l *models.Location) error
	Deactivate(ctx context.Context, id int64) error
}

// DriverDirectory answers which driver a new booking can be auto-assigned to.
type DriverDirectory interface {
	NextAvailable(ctx context.Context) (int64, bool, error)
}
