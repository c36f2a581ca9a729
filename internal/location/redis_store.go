package location

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/shuttle-tracking/internal/models"
)

// RedisStore implements CurrentStore on a Redis hash per driver. Records
// expire so a driver that stops publishing eventually disappears from reads.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(addr, password string, ttl time.Duration) *RedisStore {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisStore{client: c, ttl: ttl}
}

func (r *RedisStore) Set(ctx context.Context, loc models.DriverLocation) error {
	key := currentKey(loc.DriverID)
	err := r.client.HSet(ctx, key, map[string]interface{}{
		"latitude":  strconv.FormatFloat(loc.Latitude, 'f', -1, 64),
		"longitude": strconv.FormatFloat(loc.Longitude, 'f', -1, 64),
		"speed":     strconv.FormatFloat(loc.Speed, 'f', -1, 64),
		"heading":   strconv.FormatFloat(loc.Heading, 'f', -1, 64),
		"accuracy":  strconv.FormatFloat(loc.Accuracy, 'f', -1, 64),
		"timestamp": loc.Timestamp.Format(time.RFC3339Nano),
	}).Err()
	if err != nil {
		return err
	}
	if r.ttl > 0 {
		_ = r.client.Expire(ctx, key, r.ttl).Err()
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, driverID int64) (*models.DriverLocation, error) {
	m, err := r.client.HGetAll(ctx, currentKey(driverID)).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, ErrNoLocation
	}
	loc := &models.DriverLocation{DriverID: driverID}
	loc.Latitude = parseFloat(m["latitude"])
	loc.Longitude = parseFloat(m["longitude"])
	loc.Speed = parseFloat(m["speed"])
	loc.Heading = parseFloat(m["heading"])
	loc.Accuracy = parseFloat(m["accuracy"])
	if ts, perr := time.Parse(time.RFC3339Nano, m["timestamp"]); perr == nil {
		loc.Timestamp = ts
	}
	return loc, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func currentKey(driverID int64) string {
	return "driver:current:" + strconv.FormatInt(driverID, 10)
}
