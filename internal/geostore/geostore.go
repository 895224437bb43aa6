// Package geostore implements C2, the external geospatial datastore
// adapter: upsert a user's released point, and return the k-nearest users
// within a distance bound. The core treats it as an abstract contract
// (§1); this package supplies a Postgres-backed implementation in the
// teacher's database style (sql.Open("postgres", ...) via lib/pq) plus an
// in-memory implementation for tests, both ranking neighbors with
// internal/noise.HaversineKm so the ordering the spec requires (§8,
// invariant 5) does not depend on the backing store's own distance
// function.
package geostore

import (
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/auroradata-ai/geofence-psi/internal/apierr"
	"github.com/auroradata-ai/geofence-psi/internal/noise"
)

// Point is a user's most recently released coordinate (§3, LocationEntry).
type Point struct {
	UserID      string
	Lat         float64
	Lon         float64
	LastUpdated time.Time
}

// Neighbor is one result row from a nearby-users query.
type Neighbor struct {
	UserID     string
	DistanceKm float64
	Lat        float64
	Lon        float64
}

// Store is the GeoStore contract (C2).
type Store interface {
	UpsertPoint(userID string, lat, lon float64, ts time.Time) error
	QueryNearby(userID string, maxDistanceKm float64, limit int) ([]Neighbor, error)
	UserExists(userID string) (bool, error)
}

// MemStore is an in-memory Store for tests and local development.
type MemStore struct {
	mu     sync.RWMutex
	points map[string]Point
}

// NewMemStore constructs an empty in-memory Store.
func NewMemStore() *MemStore {
	return &MemStore{points: make(map[string]Point)}
}

func (s *MemStore) UpsertPoint(userID string, lat, lon float64, ts time.Time) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return &apierr.ValidationError{Msg: "coordinate out of range"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points[userID] = Point{UserID: userID, Lat: lat, Lon: lon, LastUpdated: ts}
	return nil
}

func (s *MemStore) UserExists(userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.points[userID]
	return ok, nil
}

// QueryNearby returns neighbors of userID within maxDistanceKm, nearest
// first, capped at limit, excluding userID itself (§6, §8 invariant 5).
func (s *MemStore) QueryNearby(userID string, maxDistanceKm float64, limit int) ([]Neighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	origin, ok := s.points[userID]
	if !ok {
		return nil, &apierr.NotFoundError{Resource: "location", ID: userID}
	}

	var out []Neighbor
	for id, p := range s.points {
		if id == userID {
			continue
		}
		d := noise.HaversineKm(origin.Lat, origin.Lon, p.Lat, p.Lon)
		if d <= maxDistanceKm {
			out = append(out, Neighbor{UserID: id, DistanceKm: d, Lat: p.Lat, Lon: p.Lon})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PostgresStore is a Store backed by a plain Postgres table of lat/lon
// columns (PostGIS is not required), using the great-circle formula
// client-side so behavior matches MemStore
// exactly and the noise mechanism's own distance accounting (§8 invariant
// 3) shares one implementation.
type PostgresStore struct {
	db    *sql.DB
	table string
}

// NewPostgresStore opens a connection pool against dsn for the named
// locations table.
func NewPostgresStore(dsn, table string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("geostore: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("geostore: ping database: %w", err)
	}
	return &PostgresStore{db: db, table: table}, nil
}

// SetupSchema idempotently creates the locations table and its index.
func (s *PostgresStore) SetupSchema() error {
	createTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		user_id TEXT PRIMARY KEY,
		lat DOUBLE PRECISION NOT NULL,
		lon DOUBLE PRECISION NOT NULL,
		last_updated TIMESTAMPTZ NOT NULL
	)`, s.table)
	if _, err := s.db.Exec(createTable); err != nil {
		return fmt.Errorf("geostore: create schema: %w", err)
	}

	createIndex := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_lat_lon_idx ON %s (lat, lon)`, s.table, s.table)
	if _, err := s.db.Exec(createIndex); err != nil {
		return fmt.Errorf("geostore: create index: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertPoint(userID string, lat, lon float64, ts time.Time) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return &apierr.ValidationError{Msg: "coordinate out of range"}
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, lat, lon, last_updated)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET lat = EXCLUDED.lat, lon = EXCLUDED.lon, last_updated = EXCLUDED.last_updated`, s.table)

	if _, err := s.db.Exec(query, userID, lat, lon, ts); err != nil {
		return &apierr.UpstreamError{Err: fmt.Errorf("geostore: upsert %s: %w", userID, err)}
	}
	return nil
}

func (s *PostgresStore) UserExists(userID string) (bool, error) {
	query := fmt.Sprintf(`SELECT 1 FROM %s WHERE user_id = $1`, s.table)
	row := s.db.QueryRow(query, userID)

	var dummy int
	if err := row.Scan(&dummy); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, &apierr.UpstreamError{Err: fmt.Errorf("geostore: exists %s: %w", userID, err)}
	}
	return true, nil
}

// QueryNearby fetches every point (a full scan is acceptable at this
// scale; a PostGIS deployment would instead push a bounding-box predicate
// and ST_DWithin into the WHERE clause) and ranks in Go with the same
// haversine formula the noise mechanism uses.
func (s *PostgresStore) QueryNearby(userID string, maxDistanceKm float64, limit int) ([]Neighbor, error) {
	originQuery := fmt.Sprintf(`SELECT lat, lon FROM %s WHERE user_id = $1`, s.table)
	var originLat, originLon float64
	if err := s.db.QueryRow(originQuery, userID).Scan(&originLat, &originLon); err != nil {
		if err == sql.ErrNoRows {
			return nil, &apierr.NotFoundError{Resource: "location", ID: userID}
		}
		return nil, &apierr.UpstreamError{Err: fmt.Errorf("geostore: origin lookup %s: %w", userID, err)}
	}

	rows, err := s.db.Query(fmt.Sprintf(`SELECT user_id, lat, lon FROM %s WHERE user_id != $1`, s.table), userID)
	if err != nil {
		return nil, &apierr.UpstreamError{Err: fmt.Errorf("geostore: query nearby: %w", err)}
	}
	defer rows.Close()

	var out []Neighbor
	for rows.Next() {
		var id string
		var lat, lon float64
		if err := rows.Scan(&id, &lat, &lon); err != nil {
			return nil, &apierr.UpstreamError{Err: fmt.Errorf("geostore: scan row: %w", err)}
		}
		d := noise.HaversineKm(originLat, originLon, lat, lon)
		if d <= maxDistanceKm {
			out = append(out, Neighbor{UserID: id, DistanceKm: d, Lat: lat, Lon: lon})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &apierr.UpstreamError{Err: fmt.Errorf("geostore: iterate rows: %w", err)}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
