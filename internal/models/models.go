package models

import "time"

// Role names match the credential roles issued by the auth collaborator.
type Role string

const (
	RolePengguna Role = "pengguna"
	RoleDriver   Role = "driver"
	RoleAdmin    Role = "admin"
)

type BookingStatus string

const (
	StatusPending      BookingStatus = "pending"
	StatusAccepted     BookingStatus = "accepted"
	StatusDriverArrive BookingStatus = "driver_arriving"
	StatusOngoing      BookingStatus = "ongoing"
	StatusCompleted    BookingStatus = "completed"
	StatusCancelled    BookingStatus = "cancelled"
	StatusNoShow       BookingStatus = "no_show"
)

// Terminal reports whether no further transition can leave s.
func (s BookingStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Tracked reports whether a booking in this status keeps its driver in the
// rider's active driver set.
func (s BookingStatus) Tracked() bool {
	switch s {
	case StatusAccepted, StatusDriverArrive, StatusOngoing:
		return true
	}
	return false
}

type Location struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Address     string  `json:"address,omitempty"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Type        string  `json:"type"` // pickup, dropoff, waypoint
	Status      string  `json:"status"`
}

type Booking struct {
	ID             int64         `json:"id"`
	BookingCode    string        `json:"booking_code"`
	UserID         int64         `json:"user_id"`
	DriverID       *int64        `json:"driver_id,omitempty"`
	FromLocationID int64         `json:"from_location_id"`
	ToLocationID   int64         `json:"to_location_id"`
	Status         BookingStatus `json:"status"`
	Notes          string        `json:"notes,omitempty"`
	PassengerCount int           `json:"passenger_count"`
	EstimatedKm    float64       `json:"estimated_distance,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	CancelReason string `json:"cancellation_reason,omitempty"`
	CancelledBy  *int64 `json:"cancelled_by,omitempty"`
}

// GPSSample is a raw position report from a driver client.
type GPSSample struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     float64 `json:"speed"`
	Heading   float64 `json:"heading"`
	Accuracy  float64 `json:"accuracy"`
}

// DriverLocation is the single most recent sample known for a driver,
// stamped with server time. Last write wins; no history kept in the core.
type DriverLocation struct {
	DriverID  int64     `json:"driver_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     float64   `json:"speed"`
	Heading   float64   `json:"heading"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}
