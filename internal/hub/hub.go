package hub

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/shuttle-tracking/internal/models"
	"github.com/example/shuttle-tracking/internal/observability"
)

// writeWait bounds a single frame write; a peer that stalls past it errors
// out and is pruned.
const writeWait = 5 * time.Second

// sendQueueSize bounds the per-session backlog. A consumer this far behind
// loses frames, matching at-most-once delivery.
const sendQueueSize = 32

// Conn is the subset of a websocket connection the hub writes to.
// *websocket.Conn from gorilla satisfies it.
type Conn interface {
	WriteJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// session is one connected tracking client. All writes go through a bounded
// queue drained by a single writer goroutine, so per-connection delivery
// order matches enqueue order and a stalled peer never blocks the sender.
type session struct {
	id     string
	userID int64
	role   models.Role
	conn   Conn
	queue  chan models.PushEvent
	done   chan struct{}
	once   sync.Once
}

// enqueue hands a frame to the session's writer without blocking. A full
// queue means the consumer is behind; the frame is dropped.
func (s *session) enqueue(ev models.PushEvent) {
	select {
	case <-s.done:
	case s.queue <- ev:
	default:
		observability.PushDropped.Inc()
	}
}

func (s *session) stop() {
	s.once.Do(func() { close(s.done) })
}

// Hub is the tracking subscription registry. Delivery is best-effort,
// at-most-once per connection; a session whose write fails or stalls is
// pruned and its client recovers via pull-based refresh after reconnecting.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*session
	logger   *slog.Logger
}

func New(logger *slog.Logger) *Hub {
	return &Hub{sessions: make(map[string]*session), logger: logger}
}

// Add registers a connection, starts its writer and returns its opaque
// session id.
func (h *Hub) Add(userID int64, role models.Role, conn Conn) string {
	s := &session{
		id:     uuid.NewString(),
		userID: userID,
		role:   role,
		conn:   conn,
		queue:  make(chan models.PushEvent, sendQueueSize),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
	go h.writeLoop(s)
	observability.TrackingSessions.Inc()
	h.logger.Info("tracking session connected", "session_id", s.id, "user_id", userID, "role", string(role))
	return s.id
}

// writeLoop is the session's only writer. Each frame gets a fresh deadline;
// a write error or timeout prunes the session.
func (h *Hub) writeLoop(s *session) {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.queue:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(ev); err != nil {
				observability.PushDropped.Inc()
				h.logger.Warn("push send failed, pruning session", "session_id", s.id, "error", err)
				h.Remove(s.id)
				return
			}
		}
	}
}

// Remove drops a session on explicit close. Safe to call twice.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	if ok {
		delete(h.sessions, id)
	}
	h.mu.Unlock()
	if ok {
		s.stop()
		observability.TrackingSessions.Dec()
		_ = s.conn.Close()
		h.logger.Info("tracking session closed", "session_id", id, "user_id", s.userID)
	}
}

// Broadcast enqueues ev for every connected session and returns without
// waiting on any write. A slow or dead peer only loses its own frames.
func (h *Hub) Broadcast(ev models.PushEvent) {
	for _, s := range h.snapshot() {
		s.enqueue(ev)
	}
}

// SendToUser targets every session of one user, e.g. the new_booking frame
// for an assigned driver.
func (h *Hub) SendToUser(userID int64, ev models.PushEvent) {
	for _, s := range h.snapshot() {
		if s.userID == userID {
			s.enqueue(ev)
		}
	}
}

func (h *Hub) snapshot() []*session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	return out
}

// Len reports the number of connected sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// LocationChanged implements location.Notifier.
func (h *Hub) LocationChanged(loc models.DriverLocation) {
	h.Broadcast(models.LocationEvent(loc))
}

// BookingChanged implements booking.Notifier. The frame carries no diff: the
// burden of filtering relevance is on the receiving client.
func (h *Hub) BookingChanged(b *models.Booking) {
	h.Broadcast(models.PushEvent{Type: models.EventBookingUpdate, BookingID: b.ID})
}

// NewBooking implements booking.Notifier for targeted driver notification.
func (h *Hub) NewBooking(driverID int64, b *models.Booking) {
	h.SendToUser(driverID, models.PushEvent{
		Type:        models.EventNewBooking,
		BookingID:   b.ID,
		BookingCode: b.BookingCode,
	})
}
