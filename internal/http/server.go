package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/shuttle-tracking/internal/booking"
	"github.com/example/shuttle-tracking/internal/hub"
	"github.com/example/shuttle-tracking/internal/location"
	"github.com/example/shuttle-tracking/internal/models"
	"github.com/example/shuttle-tracking/internal/storage"
)

type Server struct {
	bookings     *booking.Service
	bookingStore storage.BookingStore
	locations    storage.LocationStore
	publisher    *location.Publisher
	hub          *hub.Hub
	logger       *slog.Logger
	jwtSecret    []byte
	mux          *mux.Router
	upgrader     websocket.Upgrader
}

type Deps struct {
	Bookings     *booking.Service
	BookingStore storage.BookingStore
	Locations    storage.LocationStore
	Publisher    *location.Publisher
	Hub          *hub.Hub
	Logger       *slog.Logger
	JWTSecret    []byte
}

func NewServer(d Deps) *Server {
	s := &Server{
		bookings:     d.Bookings,
		bookingStore: d.BookingStore,
		locations:    d.Locations,
		publisher:    d.Publisher,
		hub:          d.Hub,
		logger:       d.Logger,
		jwtSecret:    d.JWTSecret,
		mux:          mux.NewRouter(),
		upgrader:     websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	// rider
	s.mux.HandleFunc("/api/bookings", s.auth(s.handleCreateBooking, models.RolePengguna)).Methods("POST")
	s.mux.HandleFunc("/api/bookings/my", s.auth(s.handleMyBookings, models.RolePengguna)).Methods("GET")
	s.mux.HandleFunc("/api/bookings/{id}/cancel", s.auth(s.handleCancelBooking, models.RolePengguna)).Methods("PUT")

	// driver
	s.mux.HandleFunc("/api/driver/bookings", s.auth(s.handleDriverBookings, models.RoleDriver)).Methods("GET")
	s.mux.HandleFunc("/api/driver/bookings/{id}/status", s.auth(s.handleDriverStatus, models.RoleDriver)).Methods("PUT")
	s.mux.HandleFunc("/api/driver/location", s.auth(s.handlePublishLocation, models.RoleDriver)).Methods("POST")

	// any authenticated role
	s.mux.HandleFunc("/api/driver/current-location/{driver_id}", s.auth(s.handleCurrentLocation,
		models.RolePengguna, models.RoleDriver, models.RoleAdmin)).Methods("GET")

	// admin
	s.mux.HandleFunc("/api/admin/bookings", s.auth(s.handleAllBookings, models.RoleAdmin)).Methods("GET")
	s.mux.HandleFunc("/api/admin/bookings/{id}/assign", s.auth(s.handleAssignDriver, models.RoleAdmin)).Methods("PUT")
	s.mux.HandleFunc("/api/admin/bookings/{id}/status", s.auth(s.handleForceStatus, models.RoleAdmin)).Methods("PUT")
	s.mux.HandleFunc("/api/admin/locations", s.auth(s.handleCreateLocation, models.RoleAdmin)).Methods("POST")
	s.mux.HandleFunc("/api/admin/locations/{id}", s.auth(s.handleUpdateLocation, models.RoleAdmin)).Methods("PUT")
	s.mux.HandleFunc("/api/admin/locations/{id}", s.auth(s.handleDeleteLocation, models.RoleAdmin)).Methods("DELETE")

	// public
	s.mux.HandleFunc("/api/locations", s.handleListLocations).Methods("GET")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())

	// push channel
	s.mux.HandleFunc("/ws/tracking", s.auth(s.handleTracking,
		models.RolePengguna, models.RoleDriver, models.RoleAdmin))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }
