// Package history records finished solves in DuckDB.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const schema = `CREATE TABLE IF NOT EXISTS solve_history (
	id VARCHAR PRIMARY KEY,
	session VARCHAR NOT NULL,
	at TIMESTAMP NOT NULL,
	facility_label VARCHAR,
	lon DOUBLE,
	lat DOUBLE,
	travel_direction VARCHAR,
	time_of_day TIMESTAMP,
	breaks VARCHAR,
	status VARCHAR NOT NULL,
	message VARCHAR,
	zones INTEGER,
	elapsed_ms BIGINT
)`

// Entry is one recorded solve.
type Entry struct {
	ID              string    `json:"id" doc:"Entry ID"`
	Session         string    `json:"session" doc:"Session that issued the solve"`
	At              time.Time `json:"at" doc:"When the solve was issued"`
	FacilityLabel   string    `json:"facilityLabel,omitempty" doc:"Facility label"`
	Lon             float64   `json:"lon" doc:"Facility longitude"`
	Lat             float64   `json:"lat" doc:"Facility latitude"`
	TravelDirection string    `json:"travelDirection" doc:"from-facility or to-facility"`
	TimeOfDay       time.Time `json:"timeOfDay" doc:"Time of day sent to the solver"`
	Breaks          []int     `json:"breaks" doc:"Break values in minutes"`
	Status          string    `json:"status" doc:"Resulting widget status"`
	Message         string    `json:"message,omitempty" doc:"Status message"`
	Zones           int       `json:"zones" doc:"Number of zones returned"`
	ElapsedMs       int64     `json:"elapsedMs" doc:"Solve round trip in milliseconds"`
}

// Store reads and writes solve history.
type Store struct {
	db *sql.DB
}

// New creates the table if needed.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create solve_history: %w", err)
	}
	return &Store{db: db}, nil
}

// Record stores e and returns its ID.
func (s *Store) Record(ctx context.Context, e Entry) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO solve_history
		(id, session, at, facility_label, lon, lat, travel_direction, time_of_day, breaks, status, message, zones, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Session, e.At.UTC(), e.FacilityLabel, e.Lon, e.Lat, e.TravelDirection,
		e.TimeOfDay.UTC(), joinBreaks(e.Breaks), e.Status, e.Message, e.Zones, e.ElapsedMs)
	if err != nil {
		return "", fmt.Errorf("record solve: %w", err)
	}
	return e.ID, nil
}

// Recent returns up to limit entries, newest first. An empty session
// returns entries from every session.
func (s *Store) Recent(ctx context.Context, session string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, session, at, facility_label, lon, lat, travel_direction, time_of_day, breaks, status, message, zones, elapsed_ms
		FROM solve_history`
	args := []any{}
	if session != "" {
		q += ` WHERE session = ?`
		args = append(args, session)
	}
	q += ` ORDER BY at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e      Entry
			breaks string
		)
		if err := rows.Scan(&e.ID, &e.Session, &e.At, &e.FacilityLabel, &e.Lon, &e.Lat,
			&e.TravelDirection, &e.TimeOfDay, &breaks, &e.Status, &e.Message, &e.Zones, &e.ElapsedMs); err != nil {
			return nil, err
		}
		e.Breaks = splitBreaks(breaks)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func joinBreaks(breaks []int) string {
	parts := make([]string, len(breaks))
	for i, b := range breaks {
		parts[i] = strconv.Itoa(b)
	}
	return strings.Join(parts, ",")
}

func splitBreaks(s string) []int {
	if s == "" {
		return nil
	}
	var out []int
	for _, p := range strings.Split(s, ",") {
		if v, err := strconv.Atoi(p); err == nil {
			out = append(out, v)
		}
	}
	return out
}
