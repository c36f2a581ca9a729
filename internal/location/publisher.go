package location

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/example/shuttle-tracking/internal/models"
	"github.com/example/shuttle-tracking/internal/observability"
)

// ErrNoLocation is returned when a driver has never published a sample.
var ErrNoLocation = errors.New("no location data")

// CurrentStore holds the single most recent location per driver.
type CurrentStore interface {
	Set(ctx context.Context, loc models.DriverLocation) error
	Get(ctx context.Context, driverID int64) (*models.DriverLocation, error)
}

// Notifier fans an accepted sample out to connected tracking sessions.
type Notifier interface {
	LocationChanged(loc models.DriverLocation)
}

// Feed hands accepted samples to the history pipeline. Best-effort: a lost
// sample is superseded by the next one within a sampling interval.
type Feed interface {
	PublishSample(loc models.DriverLocation) error
}

// Publisher validates raw GPS samples and maintains the current-location
// record. It keeps no history and no retry queue.
type Publisher struct {
	Store  CurrentStore
	Notify Notifier
	Feed   Feed // optional
	Logger *slog.Logger
	Now    func() time.Time

	feedCh chan models.DriverLocation
}

func NewPublisher(store CurrentStore, notify Notifier, feed Feed, logger *slog.Logger) *Publisher {
	p := &Publisher{Store: store, Notify: notify, Feed: feed, Logger: logger, Now: time.Now}
	if feed != nil {
		p.feedCh = make(chan models.DriverLocation, 256)
		go p.feedLoop()
	}
	return p
}

// feedLoop is the single history-feed writer, so samples reach the topic in
// publish order.
func (p *Publisher) feedLoop() {
	for loc := range p.feedCh {
		if err := p.Feed.PublishSample(loc); err != nil {
			p.Logger.Warn("history feed publish failed", "driver_id", loc.DriverID, "error", err)
		}
	}
}

// Publish overwrites the driver's current location with the sample stamped at
// server time, then notifies subscribers and the history feed. Malformed
// samples are discarded with a ValidationError and nothing is emitted.
func (p *Publisher) Publish(ctx context.Context, driverID int64, s models.GPSSample) (*models.DriverLocation, error) {
	if err := validateSample(s); err != nil {
		observability.LocationRejected.Inc()
		return nil, err
	}
	loc := models.DriverLocation{
		DriverID:  driverID,
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		Speed:     s.Speed,
		Heading:   s.Heading,
		Accuracy:  s.Accuracy,
		Timestamp: p.Now().UTC(),
	}
	if err := p.Store.Set(ctx, loc); err != nil {
		return nil, err
	}
	observability.LocationUpdates.Inc()

	if p.Notify != nil {
		// Called inline, in publish order; the hub's enqueue never blocks.
		p.Notify.LocationChanged(loc)
	}
	if p.feedCh != nil {
		select {
		case p.feedCh <- loc:
		default:
			p.Logger.Warn("history feed backlogged, dropping sample", "driver_id", driverID)
		}
	}
	return &loc, nil
}

// Current returns the latest known location for a driver or ErrNoLocation.
func (p *Publisher) Current(ctx context.Context, driverID int64) (*models.DriverLocation, error) {
	return p.Store.Get(ctx, driverID)
}

func validateSample(s models.GPSSample) error {
	switch {
	case math.IsNaN(s.Latitude) || s.Latitude < -90 || s.Latitude > 90:
		return models.Invalidf("latitude %v out of range [-90,90]", s.Latitude)
	case math.IsNaN(s.Longitude) || s.Longitude < -180 || s.Longitude > 180:
		return models.Invalidf("longitude %v out of range [-180,180]", s.Longitude)
	case s.Speed < 0:
		return models.Invalidf("speed must be non-negative")
	case s.Accuracy < 0:
		return models.Invalidf("accuracy must be non-negative")
	case s.Heading < 0 || s.Heading >= 360:
		return models.Invalidf("heading %v out of range [0,360)", s.Heading)
	}
	return nil
}
