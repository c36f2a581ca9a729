package tracking

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/shuttle-tracking/internal/models"
)

// BookingLister pulls the rider's own booking list.
type BookingLister interface {
	MyBookings(ctx context.Context) ([]models.Booking, error)
}

// LocationFetcher pulls a driver's current location.
type LocationFetcher interface {
	CurrentLocation(ctx context.Context, driverID int64) (*models.DriverLocation, error)
}

// MarkerView is the map surface the engine drives. Implementations are called
// under the engine's critical section and must return promptly.
type MarkerView interface {
	UpsertMarker(loc models.DriverLocation)
	ReleaseMarker(driverID int64)
	Center(driverID int64)
}

// EventSource yields typed push events to a single consumer. The channel
// closes when the source stops for good.
type EventSource interface {
	Events() <-chan models.PushEvent
}

type Config struct {
	// RefreshInterval re-loads the booking list even without push signals.
	RefreshInterval time.Duration
	// PollInterval re-fetches every active driver's location, bounding marker
	// staleness when the push channel is down. Push only shortens latency;
	// polling is the correctness guarantee.
	PollInterval time.Duration
}

func (c *Config) defaults() {
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
}

// Engine keeps a rider's map markers consistent with the set of drivers
// assigned to that rider's non-terminal bookings. One engine per session,
// constructed at login and torn down by cancelling the Run context.
//
// All state mutation goes through the mutex-guarded critical section, so a
// push-driven marker update cannot interleave with a reconcile pass that is
// evicting the same driver.
type Engine struct {
	bookings  BookingLister
	locations LocationFetcher
	view      MarkerView
	source    EventSource // may be nil: engine degrades to pure polling
	logger    *slog.Logger
	cfg       Config

	refreshCh chan struct{}

	// seq orders booking lists by when their load was requested; reconcile
	// discards any list older than the last one applied.
	seq uint64

	mu            sync.Mutex
	appliedSeq    uint64
	active        map[int64]bool
	pendingCenter map[int64]bool
}

func NewEngine(bookings BookingLister, locations LocationFetcher, view MarkerView, source EventSource, logger *slog.Logger, cfg Config) *Engine {
	cfg.defaults()
	return &Engine{
		bookings:      bookings,
		locations:     locations,
		view:          view,
		source:        source,
		logger:        logger,
		cfg:           cfg,
		refreshCh:     make(chan struct{}, 1),
		active:        make(map[int64]bool),
		pendingCenter: make(map[int64]bool),
	}
}

// Run drives the engine until ctx is cancelled. Wake sources: the refresh
// ticker, the backup poll ticker, push events and manual Refresh calls.
func (e *Engine) Run(ctx context.Context) error {
	refresh := time.NewTicker(e.cfg.RefreshInterval)
	defer refresh.Stop()
	poll := time.NewTicker(e.cfg.PollInterval)
	defer poll.Stop()

	var events <-chan models.PushEvent
	if e.source != nil {
		events = e.source.Events()
	}

	e.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-refresh.C:
			e.refresh(ctx)
		case <-e.refreshCh:
			e.refresh(ctx)
		case <-poll.C:
			e.pollActive(ctx)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			e.handleEvent(ctx, ev)
		}
	}
}

// Refresh requests a booking re-load on the next loop pass. Non-blocking;
// collapses with an already-pending request.
func (e *Engine) Refresh() {
	select {
	case e.refreshCh <- struct{}{}:
	default:
	}
}

func (e *Engine) handleEvent(ctx context.Context, ev models.PushEvent) {
	switch ev.Type {
	case models.EventLocationUpdate:
		e.applyLocation(models.DriverLocation{
			DriverID:  ev.DriverID,
			Latitude:  ev.Latitude,
			Longitude: ev.Longitude,
			Speed:     ev.Speed,
			Heading:   ev.Heading,
			Timestamp: ev.Timestamp,
		})
	case models.EventBookingUpdate, models.EventNewBooking:
		// Opaque signal: re-fetch the list and re-derive everything.
		e.refresh(ctx)
	}
}

// refresh loads the booking list off the loop goroutine and reconciles when
// it arrives. A failed load is retried on the next cycle. The sequence
// number is taken when the load is requested, so a slow load started earlier
// can never overwrite the result of a later one.
func (e *Engine) refresh(ctx context.Context) {
	seq := atomic.AddUint64(&e.seq, 1)
	go func() {
		list, err := e.bookings.MyBookings(ctx)
		if err != nil {
			e.logger.Warn("booking refresh failed", "error", err)
			return
		}
		e.reconcileSeq(ctx, seq, list)
	}()
}

// Reconcile derives the active driver set from bookings and brings markers in
// line: evicted drivers lose their marker immediately, surviving and new
// drivers get a location fetch and upsert, and a driver newly entering the
// set is centered once. Calling it twice with the same list is a no-op on the
// marker set beyond the location refresh. A list whose load was requested
// before the last applied one is discarded as stale.
func (e *Engine) Reconcile(ctx context.Context, bookings []models.Booking) {
	e.reconcileSeq(ctx, atomic.AddUint64(&e.seq, 1), bookings)
}

func (e *Engine) reconcileSeq(ctx context.Context, seq uint64, bookings []models.Booking) {
	candidate := make(map[int64]bool)
	for _, b := range bookings {
		if b.DriverID != nil && b.Status.Tracked() {
			candidate[*b.DriverID] = true
		}
	}

	e.mu.Lock()
	if seq <= e.appliedSeq {
		// A fresher list already landed; applying this one would roll back.
		e.mu.Unlock()
		return
	}
	e.appliedSeq = seq
	for id := range e.active {
		if !candidate[id] {
			e.view.ReleaseMarker(id)
			delete(e.pendingCenter, id)
		}
	}
	for id := range candidate {
		if !e.active[id] {
			e.pendingCenter[id] = true
		}
	}
	e.active = candidate
	e.mu.Unlock()

	for id := range candidate {
		go e.fetch(ctx, id)
	}
}

// pollActive is the backup polling pass: re-fetch every active driver without
// re-centering, so marker staleness stays bounded by the poll interval even
// with the push channel disconnected.
func (e *Engine) pollActive(ctx context.Context) {
	for _, id := range e.ActiveDrivers() {
		go e.fetch(ctx, id)
	}
}

func (e *Engine) fetch(ctx context.Context, driverID int64) {
	loc, err := e.locations.CurrentLocation(ctx, driverID)
	if err != nil {
		// Connectivity or no-data: simply retried on the next cycle.
		e.logger.Debug("location fetch failed", "driver_id", driverID, "error", err)
		return
	}
	e.applyLocation(*loc)
}

// applyLocation upserts a marker inside the critical section. A result for a
// driver no longer in the active set is discarded (stale-result guard). The
// first successful upsert after a driver enters the set centers the view.
func (e *Engine) applyLocation(loc models.DriverLocation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active[loc.DriverID] {
		return
	}
	e.view.UpsertMarker(loc)
	if e.pendingCenter[loc.DriverID] {
		e.view.Center(loc.DriverID)
		delete(e.pendingCenter, loc.DriverID)
	}
}

// ActiveDrivers returns the current active driver set, sorted.
func (e *Engine) ActiveDrivers() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]int64, 0, len(e.active))
	for id := range e.active {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
