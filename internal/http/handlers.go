package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/example/shuttle-tracking/internal/booking"
	"github.com/example/shuttle-tracking/internal/location"
	"github.com/example/shuttle-tracking/internal/models"
	"github.com/example/shuttle-tracking/internal/storage"
)

func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var req booking.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeDetail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	b, err := s.bookings.Create(r.Context(), id.UserID, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"booking_id":   b.ID,
		"booking_code": b.BookingCode,
		"status":       b.Status,
	})
}

func (s *Server) handleMyBookings(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	list, err := s.bookingStore.ListByUser(r.Context(), id.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	bookingID, ok := pathID(r, "id")
	if !ok {
		s.writeDetail(w, http.StatusBadRequest, "invalid booking id")
		return
	}
	actor := booking.Actor{UserID: id.UserID, Role: id.Role}
	if err := s.bookings.Cancel(r.Context(), actor, bookingID, ""); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Booking cancelled"})
}

func (s *Server) handleDriverBookings(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	list, err := s.bookingStore.ListByDriver(r.Context(), id.UserID, true)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleDriverStatus(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	bookingID, ok := pathID(r, "id")
	if !ok {
		s.writeDetail(w, http.StatusBadRequest, "invalid booking id")
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeDetail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	target := models.BookingStatus(body.Status)
	switch target {
	case models.StatusDriverArrive, models.StatusOngoing, models.StatusCompleted:
	default:
		s.writeDetail(w, http.StatusBadRequest, "invalid status: "+body.Status)
		return
	}
	actor := booking.Actor{UserID: id.UserID, Role: id.Role}
	if err := s.bookings.Advance(r.Context(), actor, bookingID, target); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": target})
}

func (s *Server) handlePublishLocation(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	var sample models.GPSSample
	if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
		s.writeDetail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if _, err := s.publisher.Publish(r.Context(), id.UserID, sample); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleCurrentLocation(w http.ResponseWriter, r *http.Request) {
	driverID, ok := pathID(r, "driver_id")
	if !ok {
		s.writeDetail(w, http.StatusBadRequest, "invalid driver id")
		return
	}
	loc, err := s.publisher.Current(r.Context(), driverID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, loc)
}

func (s *Server) handleAllBookings(w http.ResponseWriter, r *http.Request) {
	list, err := s.bookingStore.ListAll(r.Context(), 100)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleAssignDriver(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	bookingID, ok := pathID(r, "id")
	if !ok {
		s.writeDetail(w, http.StatusBadRequest, "invalid booking id")
		return
	}
	var body struct {
		DriverID int64 `json:"driver_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DriverID == 0 {
		s.writeDetail(w, http.StatusBadRequest, "driver_id is required")
		return
	}
	actor := booking.Actor{UserID: id.UserID, Role: id.Role}
	if err := s.bookings.Assign(r.Context(), actor, bookingID, body.DriverID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": models.StatusAccepted})
}

func (s *Server) handleForceStatus(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	bookingID, ok := pathID(r, "id")
	if !ok {
		s.writeDetail(w, http.StatusBadRequest, "invalid booking id")
		return
	}
	var body struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Status == "" {
		s.writeDetail(w, http.StatusBadRequest, "status is required")
		return
	}
	actor := booking.Actor{UserID: id.UserID, Role: id.Role}
	if err := s.bookings.Force(r.Context(), actor, bookingID, models.BookingStatus(body.Status), body.Reason); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": body.Status})
}

func (s *Server) handleListLocations(w http.ResponseWriter, r *http.Request) {
	list, err := s.locations.ListActive(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateLocation(w http.ResponseWriter, r *http.Request) {
	var l models.Location
	if err := json.NewDecoder(r.Body).Decode(&l); err != nil || l.Name == "" {
		s.writeDetail(w, http.StatusBadRequest, "name is required")
		return
	}
	if l.Type == "" {
		l.Type = "pickup"
	}
	if err := s.locations.Create(r.Context(), &l); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "location_id": l.ID})
}

func (s *Server) handleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	locID, ok := pathID(r, "id")
	if !ok {
		s.writeDetail(w, http.StatusBadRequest, "invalid location id")
		return
	}
	var l models.Location
	if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
		s.writeDetail(w, http.StatusBadRequest, "malformed request body")
		return
	}
	l.ID = locID
	if err := s.locations.Update(r.Context(), &l); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleDeleteLocation(w http.ResponseWriter, r *http.Request) {
	locID, ok := pathID(r, "id")
	if !ok {
		s.writeDetail(w, http.StatusBadRequest, "invalid location id")
		return
	}
	if err := s.locations.Deactivate(r.Context(), locID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleTracking upgrades the connection and parks it in the hub. The read
// loop only detects disconnects; clients never send meaningful frames.
func (s *Server) handleTracking(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	sessionID := s.hub.Add(id.UserID, id.Role, conn)
	defer s.hub.Remove(sessionID)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func pathID(r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return v, err == nil && v > 0
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDetail emits the {"detail": ...} error body clients expect.
func (s *Server) writeDetail(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, map[string]string{"detail": detail})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case models.IsValidation(err), errors.Is(err, booking.ErrInvalidTransition):
		s.writeDetail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		s.writeDetail(w, http.StatusNotFound, "not found")
	case errors.Is(err, location.ErrNoLocation):
		s.writeDetail(w, http.StatusNotFound, "no location data")
	default:
		s.logger.Error("request failed", "error", err)
		s.writeDetail(w, http.StatusInternalServerError, "internal error")
	}
}
