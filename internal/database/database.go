// Package database is the sqlite-backed durable store for the calendar.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps the sqlite connection pool.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

var (
	// ErrBookingConflict is returned when an admission loses the overlap
	// re-check inside the write transaction.
	ErrBookingConflict = errors.New("booking conflicts with an existing booking")
	// ErrSlotTaken is returned when the one-confirmed-booking-per-slot
	// constraint rejects an insert.
	ErrSlotTaken = errors.New("slot already has a confirmed booking")
)

// NewDB opens the database at path, applies pragmas and creates tables.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL keeps readers unblocked during admission transactions.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	instance := &DB{DB: db, logger: logger}
	if err := instance.createTables(); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		// Singleton policy row
		`CREATE TABLE IF NOT EXISTS calendar_settings (
			id TEXT PRIMARY KEY,
			slot_duration_minutes INTEGER,
			default_start_time TEXT NOT NULL DEFAULT '08:00',
			default_end_time TEXT NOT NULL DEFAULT '17:00',
			timezone TEXT NOT NULL DEFAULT 'UTC',
			min_booking_notice_minutes INTEGER,
			max_advance_booking_days INTEGER,
			allow_cancellation BOOLEAN NOT NULL DEFAULT 1,
			cancellation_notice_minutes INTEGER,
			allow_booking_outside_availability BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Weekly template, one row per weekday (0=Monday)
		`CREATE TABLE IF NOT EXISTS weekly_hours (
			day_of_week INTEGER PRIMARY KEY CHECK (day_of_week BETWEEN 0 AND 6),
			is_enabled BOOLEAN NOT NULL DEFAULT 0,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Per-date exceptions, at most one per date
		`CREATE TABLE IF NOT EXISTS date_overrides (
			id TEXT PRIMARY KEY,
			override_date TEXT UNIQUE NOT NULL,
			is_closed BOOLEAN NOT NULL DEFAULT 0,
			start_time TEXT,
			end_time TEXT,
			notes TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			booking_date TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			slot_id TEXT,
			status TEXT NOT NULL DEFAULT 'confirmed',
			cancelled_at DATETIME,
			notes TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (slot_id) REFERENCES slots(id)
		)`,

		`CREATE TABLE IF NOT EXISTS slots (
			id TEXT PRIMARY KEY,
			slot_date TEXT NOT NULL,
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			is_available BOOLEAN NOT NULL DEFAULT 1,
			created_by TEXT,
			notes TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_date_status ON bookings(booking_date, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_slots_date ON slots(slot_date)`,
		`CREATE INDEX IF NOT EXISTS idx_overrides_date ON date_overrides(override_date)`,

		// A slot carries at most one confirmed booking; the store, not a
		// cached flag, is the ground truth for "booked".
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_slot_confirmed
			ON bookings(slot_id) WHERE slot_id IS NOT NULL AND status = 'confirmed'`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
