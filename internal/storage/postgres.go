package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/shuttle-tracking/internal/models"
)

// PostgresStore wraps a shared *sql.DB and exposes typed views implementing
// BookingStore, LocationStore and DriverDirectory.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) DB() *sql.DB { return p.db }

func (p *PostgresStore) Bookings() BookingStore   { return &pgBookings{db: p.db} }
func (p *PostgresStore) Locations() LocationStore { return &pgLocations{db: p.db} }
func (p *PostgresStore) Drivers() DriverDirectory { return &pgDrivers{db: p.db} }

type pgBookings struct{ db *sql.DB }

const bookingCols = `id, booking_code, user_id, driver_id, from_location_id, to_location_id,
	status, notes, passenger_count, estimated_distance,
	created_at, updated_at, accepted_at, started_at, completed_at, cancelled_at,
	cancellation_reason, cancelled_by`

func (p *pgBookings) Create(ctx context.Context, b *models.Booking) error {
	return p.db.QueryRowContext(ctx, `
		INSERT INTO bookings(booking_code, user_id, from_location_id, to_location_id,
			status, notes, passenger_count, estimated_distance, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id`,
		b.BookingCode, b.UserID, b.FromLocationID, b.ToLocationID,
		string(b.Status), b.Notes, b.PassengerCount, b.EstimatedKm, b.CreatedAt,
	).Scan(&b.ID)
}

func (p *pgBookings) Get(ctx context.Context, id int64) (*models.Booking, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+bookingCols+` FROM bookings WHERE id = $1`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

func (p *pgBookings) ListByUser(ctx context.Context, userID int64) ([]models.Booking, error) {
	return p.query(ctx, `SELECT `+bookingCols+` FROM bookings
		WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (p *pgBookings) ListByDriver(ctx context.Context, driverID int64, activeOnly bool) ([]models.Booking, error) {
	q := `SELECT ` + bookingCols + ` FROM bookings WHERE driver_id = $1`
	if activeOnly {
		q += ` AND status NOT IN ('completed','cancelled','no_show')`
	}
	q += ` ORDER BY created_at DESC`
	return p.query(ctx, q, driverID)
}

func (p *pgBookings) ListAll(ctx context.Context, limit int) ([]models.Booking, error) {
	if limit <= 0 {
		limit = 100
	}
	return p.query(ctx, `SELECT `+bookingCols+` FROM bookings
		ORDER BY created_at DESC LIMIT $1`, limit)
}

// UpdateStatus is the CAS write: the WHERE clause pins the current status, so
// a racing transition that already moved the row updates zero rows.
func (p *pgBookings) UpdateStatus(ctx context.Context, id int64, ch StatusChange) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = $1,
		    updated_at = $2,
		    driver_id = COALESCE($3, driver_id),
		    accepted_at  = CASE WHEN $1 = 'accepted'  THEN $2 ELSE accepted_at END,
		    started_at   = CASE WHEN $1 = 'ongoing'   THEN $2 ELSE started_at END,
		    completed_at = CASE WHEN $1 = 'completed' THEN $2 ELSE completed_at END,
		    cancelled_at = CASE WHEN $1 IN ('cancelled','no_show') THEN $2 ELSE cancelled_at END,
		    cancelled_by = CASE WHEN $1 IN ('cancelled','no_show') THEN $4 ELSE cancelled_by END,
		    cancellation_reason = CASE WHEN $1 IN ('cancelled','no_show') THEN $5 ELSE cancellation_reason END
		WHERE id = $6 AND status = $7`,
		string(ch.To), ch.At, ch.DriverID, ch.CancelledBy, nullString(ch.Reason), id, string(ch.From))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (p *pgBookings) query(ctx context.Context, q string, args ...any) ([]models.Booking, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(r rowScanner) (*models.Booking, error) {
	var b models.Booking
	var status string
	var notes, reason sql.NullString
	var driverID, cancelledBy sql.NullInt64
	var updated, accepted, started, completed, cancelled sql.NullTime
	err := r.Scan(&b.ID, &b.BookingCode, &b.UserID, &driverID, &b.FromLocationID, &b.ToLocationID,
		&status, &notes, &b.PassengerCount, &b.EstimatedKm,
		&b.CreatedAt, &updated, &accepted, &started, &completed, &cancelled,
		&reason, &cancelledBy)
	if err != nil {
		return nil, err
	}
	b.Status = models.BookingStatus(status)
	b.Notes = notes.String
	b.CancelReason = reason.String
	if driverID.Valid {
		v := driverID.Int64
		b.DriverID = &v
	}
	if cancelledBy.Valid {
		v := cancelledBy.Int64
		b.CancelledBy = &v
	}
	b.UpdatedAt = nullTime(updated)
	b.AcceptedAt = nullTime(accepted)
	b.StartedAt = nullTime(started)
	b.CompletedAt = nullTime(completed)
	b.CancelledAt = nullTime(cancelled)
	return &b, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type pgLocations struct{ db *sql.DB }

const locationCols = `id, name, description, address, latitude, longitude, type, status`

func (p *pgLocations) Get(ctx context.Context, id int64) (*models.Location, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+locationCols+` FROM locations WHERE id = $1`, id)
	l, err := scanLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return l, err
}

func (p *pgLocations) ListActive(ctx context.Context) ([]models.Location, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+locationCols+` FROM locations
		WHERE status = 'active' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.Location, 0)
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (p *pgLocations) Create(ctx context.Context, l *models.Location) error {
	if l.Status == "" {
		l.Status = "active"
	}
	return p.db.QueryRowContext(ctx, `
		INSERT INTO locations(name, description, address, latitude, longitude, type, status)
		VALUES($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		l.Name, nullString(l.Description), nullString(l.Address),
		l.Latitude, l.Longitude, l.Type, l.Status).Scan(&l.ID)
}

func (p *pgLocations) Update(ctx context.Context, l *models.Location) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE locations SET name=$1, description=$2, address=$3, latitude=$4, longitude=$5, type=$6
		WHERE id = $7`,
		l.Name, nullString(l.Description), nullString(l.Address),
		l.Latitude, l.Longitude, l.Type, l.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (p *pgLocations) Deactivate(ctx context.Context, id int64) error {
	res, err := p.db.ExecContext(ctx, `UPDATE locations SET status = 'inactive' WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanLocation(r rowScanner) (*models.Location, error) {
	var l models.Location
	var desc, addr sql.NullString
	if err := r.Scan(&l.ID, &l.Name, &desc, &addr, &l.Latitude, &l.Longitude, &l.Type, &l.Status); err != nil {
		return nil, err
	}
	l.Description = desc.String
	l.Address = addr.String
	return &l, nil
}

type pgDrivers struct{ db *sql.DB }

func (p *pgDrivers) NextAvailable(ctx context.Context) (int64, bool, error) {
	var id int64
	err := p.db.QueryRowContext(ctx, `SELECT id FROM drivers WHERE available ORDER BY id LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
