package booking

import (
	"errors"
	"fmt"

	"github.com/example/shuttle-tracking/internal/models"
)

// ErrInvalidTransition is the sentinel matched by errors.Is for any rejected
// transition, whether the edge is absent or the actor lacks authority.
var ErrInvalidTransition = errors.New("invalid transition")

// TransitionError carries the current and requested statuses for the
// rejection message the client sees.
type TransitionError struct {
	From   models.BookingStatus
	To     models.BookingStatus
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot move booking from %s to %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("cannot move booking from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// transitions is the booking state flow as code. Terminal statuses have no
// entry: nothing leaves completed, cancelled or no_show.
var transitions = map[models.BookingStatus][]models.BookingStatus{
	models.StatusPending:      {models.StatusAccepted, models.StatusCancelled},
	models.StatusAccepted:     {models.StatusDriverArrive, models.StatusCancelled, models.StatusNoShow},
	models.StatusDriverArrive: {models.StatusOngoing, models.StatusNoShow},
	models.StatusOngoing:      {models.StatusCompleted},
}

// CanTransition reports whether the table has an edge from -> to.
func CanTransition(from, to models.BookingStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Actor is the identity behind a transition request.
type Actor struct {
	UserID int64
	Role   models.Role
}

// authorize checks the actor's authority over booking b for the requested
// target. Admin may drive any edge in the table; riders may only cancel their
// own bookings; drivers may only advance bookings assigned to them.
func authorize(actor Actor, b *models.Booking, target models.BookingStatus) error {
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RolePengguna:
		if b.UserID != actor.UserID {
			return &TransitionError{From: b.Status, To: target, Reason: "not your booking"}
		}
		if target != models.StatusCancelled {
			return &TransitionError{From: b.Status, To: target, Reason: "riders may only cancel"}
		}
		return nil
	case models.RoleDriver:
		if b.DriverID == nil || *b.DriverID != actor.UserID {
			return &TransitionError{From: b.Status, To: target, Reason: "booking not assigned to you"}
		}
		switch target {
		case models.StatusDriverArrive, models.StatusOngoing, models.StatusCompleted:
			return nil
		}
		return &TransitionError{From: b.Status, To: target, Reason: "drivers may only advance the trip"}
	}
	return &TransitionError{From: b.Status, To: target, Reason: "unknown role"}
}
