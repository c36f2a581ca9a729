package tracking

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/shuttle-tracking/internal/models"
)

// WSSource is the websocket implementation of EventSource. It dials the
// tracking endpoint, decodes frames onto the event channel and reconnects
// with a fixed backoff on every abnormal close, indefinitely, until its
// context is cancelled.
type WSSource struct {
	url     string
	token   string
	backoff time.Duration
	dialer  *websocket.Dialer
	logger  *slog.Logger
	events  chan models.PushEvent
}

func NewWSSource(url, token string, logger *slog.Logger) *WSSource {
	return &WSSource{
		url:     url,
		token:   token,
		backoff: 3 * time.Second,
		dialer:  websocket.DefaultDialer,
		logger:  logger,
		events:  make(chan models.PushEvent, 64),
	}
}

func (s *WSSource) Events() <-chan models.PushEvent { return s.events }

// Run blocks until ctx is cancelled, then closes the event channel. Missed
// events during a reconnect window are never replayed; the engine's polling
// covers the gap.
func (s *WSSource) Run(ctx context.Context) {
	defer close(s.events)
	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := s.dialer.DialContext(ctx, s.url, s.header())
		if err != nil {
			s.logger.Warn("tracking dial failed", "error", err)
			if !s.sleep(ctx) {
				return
			}
			continue
		}
		s.read(ctx, conn)
		_ = conn.Close()
		if !s.sleep(ctx) {
			return
		}
	}
}

func (s *WSSource) header() http.Header {
	h := http.Header{}
	if s.token != "" {
		h.Set("Authorization", "Bearer "+s.token)
	}
	return h
}

func (s *WSSource) read(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close() // unblocks ReadJSON
		case <-done:
		}
	}()

	for {
		var ev models.PushEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("tracking connection lost", "error", err)
			}
			return
		}
		select {
		case s.events <- ev:
		default:
			// Consumer is behind; dropping matches at-most-once delivery.
		}
	}
}

func (s *WSSource) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(s.backoff):
		return true
	}
}
