package models

import "time"

// Event types carried on the tracking websocket and the engine event source.
const (
	EventLocationUpdate = "location_update"
	EventBookingUpdate  = "booking_update"
	EventNewBooking     = "new_booking"
)

// PushEvent is a single JSON frame on the tracking channel. Location fields
// are populated only for location_update frames; booking_update and
// new_booking are opaque "re-fetch your list" signals.
type PushEvent struct {
	Type      string    `json:"type"`
	DriverID  int64     `json:"driver_id,omitempty"`
	Latitude  float64   `json:"latitude,omitempty"`
	Longitude float64   `json:"longitude,omitempty"`
	Speed     float64   `json:"speed,omitempty"`
	Heading   float64   `json:"heading,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`

	BookingID   int64  `json:"booking_id,omitempty"`
	BookingCode string `json:"booking_code,omitempty"`
}

// LocationEvent builds a location_update frame from a current-location record.
func LocationEvent(loc DriverLocation) PushEvent {
	return PushEvent{
		Type:      EventLocationUpdate,
		DriverID:  loc.DriverID,
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Speed:     loc.Speed,
		Heading:   loc.Heading,
		Timestamp: loc.Timestamp,
	}
}
