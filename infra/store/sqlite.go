package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/evshare/core/model"
)

// SQLiteRepository persists rides to a SQLite database. Rides are stored as
// JSON documents with the columns needed for lookups.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens or creates the database at path and ensures schema.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS rides (
        id TEXT PRIMARY KEY,
        vehicle_id TEXT NOT NULL,
        user_id TEXT NOT NULL,
        state TEXT NOT NULL,
        start_ts INTEGER,
        record TEXT
    );
    CREATE INDEX IF NOT EXISTS rides_vehicle_state ON rides(vehicle_id, state);
    CREATE INDEX IF NOT EXISTS rides_user ON rides(user_id);`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteRepository{db: db}, nil
}

// HasActiveRide reports whether the vehicle has a ride in the active state.
func (s *SQLiteRepository) HasActiveRide(ctx context.Context, vehicleID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM rides WHERE vehicle_id = ? AND state = ?`,
		vehicleID, string(model.RideActive)).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Create inserts the ride.
func (s *SQLiteRepository) Create(ctx context.Context, r *model.Ride) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rides (id, vehicle_id, user_id, state, start_ts, record) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.VehicleID, r.UserID, string(r.State), r.StartTime.Unix(), string(b))
	return err
}

// Update rewrites the ride row.
func (s *SQLiteRepository) Update(ctx context.Context, r *model.Ride) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE rides SET state = ?, record = ? WHERE id = ?`,
		string(r.State), string(b), r.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("ride %s not found", r.ID)
	}
	return nil
}

// Get returns the ride or nil when unknown.
func (s *SQLiteRepository) Get(ctx context.Context, id string) (*model.Ride, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM rides WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r model.Ride
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("unmarshal ride: %w", err)
	}
	return &r, nil
}

// ListByUser returns the user's rides ordered by start time.
func (s *SQLiteRepository) ListByUser(ctx context.Context, userID string) ([]model.Ride, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM rides WHERE user_id = ? ORDER BY start_ts`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.Ride
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r model.Ride
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("unmarshal ride: %w", err)
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteRepository) Close() error { return s.db.Close() }
