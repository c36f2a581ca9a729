package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/shuttle-tracking/internal/booking"
	"github.com/example/shuttle-tracking/internal/config"
	httpapi "github.com/example/shuttle-tracking/internal/http"
	"github.com/example/shuttle-tracking/internal/hub"
	"github.com/example/shuttle-tracking/internal/ingest"
	"github.com/example/shuttle-tracking/internal/location"
	"github.com/example/shuttle-tracking/internal/logging"
	"github.com/example/shuttle-tracking/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	// persistence: postgres when configured, memory otherwise
	var (
		bookingStore storage.BookingStore
		locStore     storage.LocationStore
		drivers      storage.DriverDirectory
	)
	if cfg.PGDSN != "" {
		pg, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		if cfg.RunMigrations {
			runMigrations(pg.DB(), logger)
		}
		bookingStore = pg.Bookings()
		locStore = pg.Locations()
		drivers = pg.Drivers()
	} else {
		bookingStore = storage.NewMemoryBookingStore()
		locStore = storage.NewMemoryLocationStore()
		logger.Warn("PG_DSN not set, using in-memory stores")
	}

	// current driver locations: redis when configured
	var current location.CurrentStore
	if cfg.RedisAddr != "" {
		current = location.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.LocationTTL)
	} else {
		current = location.NewMemoryStore()
		logger.Warn("REDIS_ADDR not set, using in-memory location store")
	}

	// history feed: kafka when configured
	var feed location.Feed
	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		feed = kp
	}

	trackingHub := hub.New(logger)
	publisher := location.NewPublisher(current, trackingHub, feed, logger)
	bookings := booking.NewService(bookingStore, locStore, drivers, trackingHub, logger)

	srv := httpapi.NewServer(httpapi.Deps{
		Bookings:     bookings,
		BookingStore: bookingStore,
		Locations:    locStore,
		Publisher:    publisher,
		Hub:          trackingHub,
		Logger:       logger,
		JWTSecret:    []byte(cfg.JWTSecret),
	})

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("shuttle api listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}

func runMigrations(db *sql.DB, logger interface{ Info(string, ...any) }) {
	files, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		return
	}
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		if _, err := db.Exec(string(b)); err != nil {
			log.Printf("migration %s: %v", f, err)
			continue
		}
		logger.Info("migration applied", "file", f)
	}
}
