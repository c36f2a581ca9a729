// The consumer archives driver GPS samples from Kafka into the
// location_history table. History never lives in the tracking core: the API
// keeps only last-known locations, and this process owns everything older.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/example/shuttle-tracking/internal/models"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total driver location messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	historyInserts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_history_inserts_total",
		Help: "Total samples archived to location_history",
	})
	historyErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_history_errors_total",
		Help: "Total archive failures",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, historyInserts, historyErrors)
}

func main() {
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	brokers := brokersFromEnv()
	topic := getenv("KAFKA_TOPIC", "driver-locations")
	group := getenv("KAFKA_GROUP", "shuttle-history-archiver")

	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		log.Fatal("PG_DSN is required for the history archiver")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("postgres open: %v", err)
	}
	writer := &pgHistoryWriter{db: db}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "postgres not ready", 503)
				return
			}
			w.WriteHeader(200)
			_, _ = w.Write([]byte("ready"))
		})
		log.Printf("metrics/health listening on %s", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: topic, GroupID: group, MinBytes: 10e3, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = db.Close()
	}()

	log.Printf("archiver listening topic=%s brokers=%v group=%s", topic, brokers, group)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("shutting down archiver")
				return
			}
			log.Printf("kafka read error: %v; backing off %s", err, backoff)
			select {
			case <-ctx.Done():
				log.Println("shutting down archiver")
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		msgsConsumed.Inc()

		var loc models.DriverLocation
		if err := json.Unmarshal(m.Value, &loc); err != nil {
			msgsInvalid.Inc()
			log.Printf("invalid message: %v", err)
			continue
		}

		if err := archiveWithRetry(ctx, writer, &loc, 3, 200*time.Millisecond); err != nil {
			historyErrors.Inc()
			log.Printf("archive failed for driver=%d: %v", loc.DriverID, err)
			continue
		}
		historyInserts.Inc()
	}
}

// HistoryWriter is the small persistence surface needed for tests and
// production.
type HistoryWriter interface {
	Insert(ctx context.Context, loc *models.DriverLocation) error
}

type pgHistoryWriter struct{ db *sql.DB }

func (p *pgHistoryWriter) Insert(ctx context.Context, loc *models.DriverLocation) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO location_history(driver_id, latitude, longitude, speed, heading, accuracy, recorded_at)
		VALUES($1,$2,$3,$4,$5,$6,$7)`,
		loc.DriverID, loc.Latitude, loc.Longitude, loc.Speed, loc.Heading, loc.Accuracy, loc.Timestamp)
	return err
}

// archiveWithRetry inserts with retry/backoff; samples are cheap so attempts
// are few and a final failure only costs one history row.
func archiveWithRetry(ctx context.Context, w HistoryWriter, loc *models.DriverLocation, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = w.Insert(ctx, loc); err == nil {
			return nil
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return err
}

func brokersFromEnv() []string {
	env := os.Getenv("KAFKA_BROKERS")
	if env == "" {
		env = os.Getenv("KAFKA_BROKER")
	}
	if env == "" {
		return []string{"localhost:9092"}
	}
	out := []string{}
	for _, b := range strings.Split(env, ",") {
		if s := strings.TrimSpace(b); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
