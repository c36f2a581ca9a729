package tracking

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/shuttle-tracking/internal/logging"
	"github.com/example/shuttle-tracking/internal/models"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWSSourceDeliversFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("missing bearer header, got %q", got)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(models.PushEvent{Type: models.EventLocationUpdate, DriverID: 7, Latitude: -6.36})
		_ = conn.WriteJSON(models.PushEvent{Type: models.EventBookingUpdate, BookingID: 3})
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	src := NewWSSource(wsURL(srv), "tok", logging.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		src.Run(ctx)
		close(done)
	}()

	var got []models.PushEvent
	for len(got) < 2 {
		select {
		case ev := <-src.Events():
			got = append(got, ev)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d frames", len(got))
		}
	}
	if got[0].Type != models.EventLocationUpdate || got[0].DriverID != 7 {
		t.Fatalf("unexpected first frame: %+v", got[0])
	}
	if got[1].Type != models.EventBookingUpdate || got[1].BookingID != 3 {
		t.Fatalf("unexpected second frame: %+v", got[1])
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
	// Drain buffered frames; the channel must end up closed.
	for range src.Events() {
	}
}

func TestWSSourceReconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var dials int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&dials, 1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if n == 1 {
			// First connection dies immediately; the source must dial again.
			conn.Close()
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(models.PushEvent{Type: models.EventLocationUpdate, DriverID: 7})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	src := NewWSSource(wsURL(srv), "", logging.Nop())
	src.backoff = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go src.Run(ctx)

	select {
	case ev := <-src.Events():
		if ev.DriverID != 7 {
			t.Fatalf("unexpected frame: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame after reconnect")
	}
	if atomic.LoadInt32(&dials) < 2 {
		t.Fatalf("expected a second dial, got %d", dials)
	}
}
