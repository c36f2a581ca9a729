package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/shuttle-tracking/internal/booking"
	"github.com/example/shuttle-tracking/internal/hub"
	"github.com/example/shuttle-tracking/internal/location"
	"github.com/example/shuttle-tracking/internal/logging"
	"github.com/example/shuttle-tracking/internal/models"
	"github.com/example/shuttle-tracking/internal/storage"
)

var testSecret = []byte("test-secret")

type fixture struct {
	srv          *Server
	bookingStore *storage.MemoryBookingStore
	locations    *storage.MemoryLocationStore
}

func newFixture(t *testing.T, driverIDs ...int64) *fixture {
	t.Helper()
	logger := logging.Nop()
	bookingStore := storage.NewMemoryBookingStore()
	locations := storage.NewMemoryLocationStore()
	ctx := context.Background()
	for _, name := range []string{"Gerbang Utama", "Rektorat", "Perpustakaan"} {
		if err := locations.Create(ctx, &models.Location{Name: name, Latitude: -6.36, Longitude: 106.82}); err != nil {
			t.Fatalf("seed location: %v", err)
		}
	}

	h := hub.New(logger)
	currentStore := location.NewMemoryStore()
	publisher := location.NewPublisher(currentStore, h, nil, logger)

	var dir storage.DriverDirectory
	if len(driverIDs) > 0 {
		dir = storage.NewMemoryDriverDirectory(driverIDs...)
	}
	svc := booking.NewService(bookingStore, locations, dir, h, logger)

	srv := NewServer(Deps{
		Bookings:     svc,
		BookingStore: bookingStore,
		Locations:    locations,
		Publisher:    publisher,
		Hub:          h,
		Logger:       logger,
		JWTSecret:    testSecret,
	})
	return &fixture{srv: srv, bookingStore: bookingStore, locations: locations}
}

func signToken(t *testing.T, userID int64, role models.Role) string {
	t.Helper()
	claims := Claims{
		UserID: userID,
		Role:   string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "POST", "/api/bookings", "", booking.CreateRequest{FromLocationID: 1, ToLocationID: 2})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", rec.Code)
	}
	var body map[string]string
	decode(t, rec, &body)
	if body["detail"] == "" {
		t.Fatal("error bodies carry a detail field")
	}

	// Tampered token.
	bad := signToken(t, 10, models.RolePengguna) + "x"
	rec = f.do(t, "GET", "/api/bookings/my", bad, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("want 401 for a bad signature, got %d", rec.Code)
	}
}

func TestRoleEnforcement(t *testing.T) {
	f := newFixture(t)
	driverTok := signToken(t, 7, models.RoleDriver)
	riderTok := signToken(t, 10, models.RolePengguna)

	if rec := f.do(t, "POST", "/api/bookings", driverTok, booking.CreateRequest{FromLocationID: 1, ToLocationID: 2}); rec.Code != http.StatusForbidden {
		t.Fatalf("driver creating a booking: want 403, got %d", rec.Code)
	}
	if rec := f.do(t, "GET", "/api/admin/bookings", riderTok, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("rider on admin route: want 403, got %d", rec.Code)
	}
	if rec := f.do(t, "POST", "/api/driver/location", riderTok, models.GPSSample{Latitude: 1}); rec.Code != http.StatusForbidden {
		t.Fatalf("rider publishing location: want 403, got %d", rec.Code)
	}
}

func TestCreateBookingFlow(t *testing.T) {
	f := newFixture(t, 7)
	riderTok := signToken(t, 10, models.RolePengguna)

	rec := f.do(t, "POST", "/api/bookings", riderTok, booking.CreateRequest{
		FromLocationID: 1, ToLocationID: 2, PassengerCount: 2, Notes: "near the gate",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create: want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Success     bool                 `json:"success"`
		BookingID   int64                `json:"booking_id"`
		BookingCode string               `json:"booking_code"`
		Status      models.BookingStatus `json:"status"`
	}
	decode(t, rec, &created)
	if !created.Success || created.BookingID == 0 || !strings.HasPrefix(created.BookingCode, "SHU") {
		t.Fatalf("unexpected create response: %+v", created)
	}
	if created.Status != models.StatusAccepted {
		t.Fatalf("auto-assign should accept immediately, got %s", created.Status)
	}

	rec = f.do(t, "GET", "/api/bookings/my", riderTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("my bookings: want 200, got %d", rec.Code)
	}
	var list []models.Booking
	decode(t, rec, &list)
	if len(list) != 1 || list[0].ID != created.BookingID {
		t.Fatalf("rider should see the booking: %+v", list)
	}
}

func TestCreateBookingSameFromToRejected(t *testing.T) {
	f := newFixture(t)
	riderTok := signToken(t, 10, models.RolePengguna)

	rec := f.do(t, "POST", "/api/bookings", riderTok, booking.CreateRequest{FromLocationID: 1, ToLocationID: 1})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}
	all, _ := f.bookingStore.ListAll(context.Background(), 0)
	if len(all) != 0 {
		t.Fatalf("nothing should persist, found %d", len(all))
	}
}

func TestDriverStatusEndpointRejectsForeignAndIllegalMoves(t *testing.T) {
	f := newFixture(t, 7)
	riderTok := signToken(t, 10, models.RolePengguna)
	driverTok := signToken(t, 7, models.RoleDriver)
	otherDriverTok := signToken(t, 8, models.RoleDriver)

	rec := f.do(t, "POST", "/api/bookings", riderTok, booking.CreateRequest{FromLocationID: 1, ToLocationID: 2})
	var created struct {
		BookingID int64 `json:"booking_id"`
	}
	decode(t, rec, &created)
	path := fmt.Sprintf("/api/driver/bookings/%d/status", created.BookingID)

	if rec := f.do(t, "PUT", path, otherDriverTok, map[string]string{"status": "driver_arriving"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("unassigned driver: want 400, got %d", rec.Code)
	}
	if rec := f.do(t, "PUT", path, driverTok, map[string]string{"status": "cancelled"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("cancel is not a driver status: want 400, got %d", rec.Code)
	}
	if rec := f.do(t, "PUT", path, driverTok, map[string]string{"status": "completed"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("skipping to completed: want 400, got %d", rec.Code)
	}
	if rec := f.do(t, "PUT", path, driverTok, map[string]string{"status": "driver_arriving"}); rec.Code != http.StatusOK {
		t.Fatalf("legal advance: want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	got, _ := f.bookingStore.Get(context.Background(), created.BookingID)
	if got.Status != models.StatusDriverArrive {
		t.Fatalf("want driver_arriving, got %s", got.Status)
	}
}

func TestCancelEndpoint(t *testing.T) {
	f := newFixture(t)
	riderTok := signToken(t, 10, models.RolePengguna)
	strangerTok := signToken(t, 11, models.RolePengguna)

	rec := f.do(t, "POST", "/api/bookings", riderTok, booking.CreateRequest{FromLocationID: 1, ToLocationID: 2})
	var created struct {
		BookingID int64 `json:"booking_id"`
	}
	decode(t, rec, &created)
	path := fmt.Sprintf("/api/bookings/%d/cancel", created.BookingID)

	if rec := f.do(t, "PUT", path, strangerTok, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("stranger cancel: want 400, got %d", rec.Code)
	}
	if rec := f.do(t, "PUT", path, riderTok, nil); rec.Code != http.StatusOK {
		t.Fatalf("owner cancel: want 200, got %d", rec.Code)
	}
	// Cancelling twice hits the terminal-state wall.
	if rec := f.do(t, "PUT", path, riderTok, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("double cancel: want 400, got %d", rec.Code)
	}
	if rec := f.do(t, "PUT", "/api/bookings/9999/cancel", riderTok, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown booking: want 404, got %d", rec.Code)
	}
}

func TestLocationPublishAndFetch(t *testing.T) {
	f := newFixture(t)
	driverTok := signToken(t, 7, models.RoleDriver)
	riderTok := signToken(t, 10, models.RolePengguna)

	if rec := f.do(t, "GET", "/api/driver/current-location/7", riderTok, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("no data yet: want 404, got %d", rec.Code)
	}

	sample := models.GPSSample{Latitude: -6.361, Longitude: 106.824, Speed: 12, Heading: 45, Accuracy: 3}
	if rec := f.do(t, "POST", "/api/driver/location", driverTok, sample); rec.Code != http.StatusOK {
		t.Fatalf("publish: want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec := f.do(t, "GET", "/api/driver/current-location/7", riderTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("fetch: want 200, got %d", rec.Code)
	}
	var loc models.DriverLocation
	decode(t, rec, &loc)
	if loc.DriverID != 7 || loc.Latitude != -6.361 || loc.Timestamp.IsZero() {
		t.Fatalf("unexpected location: %+v", loc)
	}

	bad := models.GPSSample{Latitude: 91, Longitude: 0}
	if rec := f.do(t, "POST", "/api/driver/location", driverTok, bad); rec.Code != http.StatusBadRequest {
		t.Fatalf("out-of-range sample: want 400, got %d", rec.Code)
	}
}

func TestAdminAssignAndForce(t *testing.T) {
	f := newFixture(t)
	riderTok := signToken(t, 10, models.RolePengguna)
	adminTok := signToken(t, 1, models.RoleAdmin)

	rec := f.do(t, "POST", "/api/bookings", riderTok, booking.CreateRequest{FromLocationID: 1, ToLocationID: 2})
	var created struct {
		BookingID int64                `json:"booking_id"`
		Status    models.BookingStatus `json:"status"`
	}
	decode(t, rec, &created)
	if created.Status != models.StatusPending {
		t.Fatalf("no drivers registered, want pending, got %s", created.Status)
	}

	assign := fmt.Sprintf("/api/admin/bookings/%d/assign", created.BookingID)
	if rec := f.do(t, "PUT", assign, adminTok, map[string]int64{"driver_id": 7}); rec.Code != http.StatusOK {
		t.Fatalf("assign: want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got, _ := f.bookingStore.Get(context.Background(), created.BookingID)
	if got.Status != models.StatusAccepted || got.DriverID == nil || *got.DriverID != 7 {
		t.Fatalf("assignment not persisted: %+v", got)
	}

	force := fmt.Sprintf("/api/admin/bookings/%d/status", created.BookingID)
	if rec := f.do(t, "PUT", force, adminTok, map[string]string{"status": "no_show", "reason": "rider absent"}); rec.Code != http.StatusOK {
		t.Fatalf("force no_show: want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got, _ = f.bookingStore.Get(context.Background(), created.BookingID)
	if got.Status != models.StatusNoShow {
		t.Fatalf("want no_show, got %s", got.Status)
	}
}

func TestAdminLocationCRUD(t *testing.T) {
	f := newFixture(t)
	adminTok := signToken(t, 1, models.RoleAdmin)

	rec := f.do(t, "POST", "/api/admin/locations", adminTok, models.Location{
		Name: "Fakultas Teknik", Latitude: -6.3612, Longitude: 106.8231,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create location: want 200, got %d", rec.Code)
	}
	var created struct {
		LocationID int64 `json:"location_id"`
	}
	decode(t, rec, &created)

	rec = f.do(t, "GET", "/api/locations", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("public list: want 200, got %d", rec.Code)
	}
	var list []models.Location
	decode(t, rec, &list)
	if len(list) != 4 {
		t.Fatalf("want 4 active locations, got %d", len(list))
	}

	del := fmt.Sprintf("/api/admin/locations/%d", created.LocationID)
	if rec := f.do(t, "DELETE", del, adminTok, nil); rec.Code != http.StatusOK {
		t.Fatalf("deactivate: want 200, got %d", rec.Code)
	}
	rec = f.do(t, "GET", "/api/locations", "", nil)
	list = nil
	decode(t, rec, &list)
	if len(list) != 3 {
		t.Fatalf("deactivated location should drop from the list, got %d", len(list))
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "GET", "/healthz", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: got %d %q", rec.Code, rec.Body.String())
	}
}
