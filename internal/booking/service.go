package booking

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/shuttle-tracking/internal/location"
	"github.com/example/shuttle-tracking/internal/models"
	"github.com/example/shuttle-tracking/internal/observability"
	"github.com/example/shuttle-tracking/internal/storage"
)

// Notifier receives booking-change signals for fan-out to connected clients.
// Implementations must not block the caller for long; delivery is best-effort.
type Notifier interface {
	BookingChanged(b *models.Booking)
	NewBooking(driverID int64, b *models.Booking)
}

// Service owns every booking mutation. All writes funnel through apply, which
// performs the CAS against the store so concurrent actors resolve to exactly
// one winner per transition.
type Service struct {
	Store     storage.BookingStore
	Locations storage.LocationStore
	Drivers   storage.DriverDirectory // optional; enables auto-assignment
	Notify    Notifier
	Logger    *slog.Logger
	Now       func() time.Time
}

func NewService(store storage.BookingStore, locs storage.LocationStore, drivers storage.DriverDirectory, n Notifier, logger *slog.Logger) *Service {
	return &Service{Store: store, Locations: locs, Drivers: drivers, Notify: n, Logger: logger, Now: time.Now}
}

type CreateRequest struct {
	FromLocationID int64  `json:"from_location_id"`
	ToLocationID   int64  `json:"to_location_id"`
	Notes          string `json:"notes"`
	PassengerCount int    `json:"passenger_count"`
}

// Create validates the request, persists a pending booking and then tries to
// auto-assign an available driver through the normal accepted edge. The
// returned booking reflects the post-assignment state.
func (s *Service) Create(ctx context.Context, riderID int64, req CreateRequest) (*models.Booking, error) {
	if req.FromLocationID == req.ToLocationID {
		return nil, models.Invalidf("from and to location must differ")
	}
	if req.PassengerCount < 1 {
		req.PassengerCount = 1
	}
	from, err := s.activeLocation(ctx, req.FromLocationID)
	if err != nil {
		return nil, err
	}
	to, err := s.activeLocation(ctx, req.ToLocationID)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	b := &models.Booking{
		BookingCode:    newBookingCode(now),
		UserID:         riderID,
		FromLocationID: from.ID,
		ToLocationID:   to.ID,
		Status:         models.StatusPending,
		Notes:          req.Notes,
		PassengerCount: req.PassengerCount,
		EstimatedKm:    location.HaversineKm(from.Latitude, from.Longitude, to.Latitude, to.Longitude),
		CreatedAt:      now,
	}
	if err := s.Store.Create(ctx, b); err != nil {
		return nil, err
	}
	observability.BookingsCreated.Inc()
	s.Logger.Info("booking created", "booking_id", b.ID, "code", b.BookingCode, "rider_id", riderID)

	s.autoAssign(ctx, b)
	return b, nil
}

// autoAssign gives a new booking to the first available driver, if any.
// Failure here leaves the booking pending for manual admin assignment.
func (s *Service) autoAssign(ctx context.Context, b *models.Booking) {
	if s.Drivers == nil {
		return
	}
	driverID, ok, err := s.Drivers.NextAvailable(ctx)
	if err != nil {
		s.Logger.Warn("driver directory lookup failed", "error", err)
		return
	}
	if !ok {
		return
	}
	admin := Actor{Role: models.RoleAdmin}
	if err := s.Assign(ctx, admin, b.ID, driverID); err != nil {
		s.Logger.Warn("auto-assign failed", "booking_id", b.ID, "driver_id", driverID, "error", err)
		return
	}
	b.Status = models.StatusAccepted
	b.DriverID = &driverID
}

// Cancel applies the rider (or admin) cancel edge.
func (s *Service) Cancel(ctx context.Context, actor Actor, bookingID int64, reason string) error {
	if reason == "" {
		reason = "Cancelled by user"
	}
	by := actor.UserID
	return s.apply(ctx, actor, bookingID, models.StatusCancelled, change{cancelledBy: &by, reason: reason})
}

// Advance applies a driver progression edge: accepted -> driver_arriving ->
// ongoing -> completed.
func (s *Service) Advance(ctx context.Context, actor Actor, bookingID int64, target models.BookingStatus) error {
	return s.apply(ctx, actor, bookingID, target, change{})
}

// Assign moves a pending booking to accepted with a driver attached.
// Admin-only; also used by auto-assignment at creation.
func (s *Service) Assign(ctx context.Context, actor Actor, bookingID, driverID int64) error {
	if actor.Role != models.RoleAdmin {
		return &TransitionError{To: models.StatusAccepted, Reason: "only admin may assign a driver"}
	}
	err := s.apply(ctx, actor, bookingID, models.StatusAccepted, change{driverID: &driverID})
	if err != nil {
		return err
	}
	if s.Notify != nil {
		if b, gerr := s.Store.Get(ctx, bookingID); gerr == nil {
			s.Notify.NewBooking(driverID, b)
		}
	}
	return nil
}

// Force lets the admin drive any edge in the table for moderation, including
// marking a no_show.
func (s *Service) Force(ctx context.Context, actor Actor, bookingID int64, target models.BookingStatus, reason string) error {
	if actor.Role != models.RoleAdmin {
		return &TransitionError{To: target, Reason: "admin only"}
	}
	by := actor.UserID
	ch := change{reason: reason}
	if target == models.StatusCancelled || target == models.StatusNoShow {
		ch.cancelledBy = &by
	}
	return s.apply(ctx, actor, bookingID, target, ch)
}

type change struct {
	driverID    *int64
	cancelledBy *int64
	reason      string
}

// apply is the single entry point for every transition: authorize, check the
// edge, CAS the store, then notify. A CAS miss means another actor moved the
// booking first; the loser gets a TransitionError built from the fresh state.
func (s *Service) apply(ctx context.Context, actor Actor, bookingID int64, target models.BookingStatus, ch change) error {
	b, err := s.Store.Get(ctx, bookingID)
	if err != nil {
		return err
	}
	if err := authorize(actor, b, target); err != nil {
		return err
	}
	if !CanTransition(b.Status, target) {
		return &TransitionError{From: b.Status, To: target}
	}

	ok, err := s.Store.UpdateStatus(ctx, bookingID, storage.StatusChange{
		From:        b.Status,
		To:          target,
		At:          s.Now(),
		DriverID:    ch.driverID,
		CancelledBy: ch.cancelledBy,
		Reason:      ch.reason,
	})
	if err != nil {
		return err
	}
	if !ok {
		cur, gerr := s.Store.Get(ctx, bookingID)
		te := &TransitionError{From: b.Status, To: target, Reason: "booking changed concurrently"}
		if gerr == nil {
			te.From = cur.Status
		}
		return te
	}

	observability.BookingTransitions.WithLabelValues(string(b.Status), string(target)).Inc()
	s.Logger.Info("booking transition",
		"booking_id", bookingID, "from", string(b.Status), "to", string(target),
		"actor_id", actor.UserID, "actor_role", string(actor.Role))

	if s.Notify != nil {
		if updated, gerr := s.Store.Get(ctx, bookingID); gerr == nil {
			s.Notify.BookingChanged(updated)
		}
	}
	return nil
}

func (s *Service) activeLocation(ctx context.Context, id int64) (*models.Location, error) {
	l, err := s.Locations.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.Status != "active" {
		return nil, models.Invalidf("location %d is not active", id)
	}
	return l, nil
}

// newBookingCode builds codes like SHU20260830A1B2C3.
func newBookingCode(now time.Time) string {
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return fmt.Sprintf("SHU%s%s", now.Format("20060102"), strings.ToUpper(hex.EncodeToString(b)))
}
