package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"zapisnik/internal/models"
	"zapisnik/internal/timeutil"
)

// GetBooking returns a booking by id, nil when absent.
func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, selectBooking+" WHERE id = ?", id)
	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ConfirmedBookingsByDate returns the confirmed bookings occupying a date.
func (db *DB) ConfirmedBookingsByDate(ctx context.Context, date time.Time) ([]models.Booking, error) {
	return db.queryBookings(ctx,
		selectBooking+" WHERE booking_date = ? AND status = ? ORDER BY start_time",
		timeutil.FormatDate(date), string(models.StatusConfirmed),
	)
}

// ListBookings returns bookings matching the conjunctive filter, newest
// first by creation.
func (db *DB) ListBookings(ctx context.Context, f models.BookingFilter) ([]models.Booking, error) {
	query := selectBooking + " WHERE 1=1"
	var args []interface{}
	if f.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	if f.DateFrom != nil {
		query += " AND booking_date >= ?"
		args = append(args, timeutil.FormatDate(*f.DateFrom))
	}
	if f.DateTo != nil {
		query += " AND booking_date <= ?"
		args = append(args, timeutil.FormatDate(*f.DateTo))
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, string(f.Status))
	}
	query += " ORDER BY created_at DESC, id DESC"

	return db.queryBookings(ctx, query, args...)
}

// AdmitBooking inserts b with status confirmed after re-checking the overlap
// invariant inside a write transaction. BEGIN IMMEDIATE takes the sqlite
// write lock up front, so two concurrent admissions for the same date are
// serialized and at most one writer can see a conflict-free ledger.
// Returns ErrBookingConflict when the re-check finds an intersecting
// confirmed booking and ErrSlotTaken when the slot uniqueness index rejects
// the insert.
func (db *DB) AdmitBooking(ctx context.Context, b *models.Booking) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("admit booking conn: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("admit booking begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(ctx, "ROLLBACK")
		}
	}()

	rows, err := conn.QueryContext(ctx,
		"SELECT start_time, end_time FROM bookings WHERE booking_date = ? AND status = ?",
		timeutil.FormatDate(b.Date), string(models.StatusConfirmed),
	)
	if err != nil {
		return fmt.Errorf("admit booking recheck: %w", err)
	}
	for rows.Next() {
		var startStr, endStr string
		if err := rows.Scan(&startStr, &endStr); err != nil {
			rows.Close()
			return fmt.Errorf("admit booking scan: %w", err)
		}
		otherStart, err := timeutil.ParseWallTime(startStr)
		if err != nil {
			rows.Close()
			return fmt.Errorf("admit booking start_time: %w", err)
		}
		otherEnd, err := timeutil.ParseWallTime(endStr)
		if err != nil {
			rows.Close()
			return fmt.Errorf("admit booking end_time: %w", err)
		}
		if timeutil.Overlaps(b.StartTime, b.EndTime, otherStart, otherEnd) {
			rows.Close()
			return ErrBookingConflict
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("admit booking iterate: %w", err)
	}
	rows.Close()

	now := time.Now().UTC()
	b.Status = models.StatusConfirmed
	b.CreatedAt = now
	b.UpdatedAt = now
	_, err = conn.ExecContext(ctx, `
		INSERT INTO bookings (id, user_id, booking_date, start_time, end_time, slot_id, status, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, timeutil.FormatDate(b.Date), b.StartTime.String(), b.EndTime.String(),
		b.SlotID, string(b.Status), b.Notes, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("insert booking: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("admit booking commit: %w", err)
	}
	committed = true
	return nil
}

// MarkCancelled flips a confirmed booking to cancelled. The status guard in
// the WHERE clause makes the transition single-shot: a second attempt
// matches no row and returns false.
func (db *DB) MarkCancelled(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE bookings SET status = ?, cancelled_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(models.StatusCancelled), at, at, id, string(models.StatusConfirmed),
	)
	if err != nil {
		return false, fmt.Errorf("cancel booking: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel booking rows: %w", err)
	}
	return n > 0, nil
}

// ConfirmedBookingForSlot returns the confirmed booking referencing a slot,
// nil when the slot is free.
func (db *DB) ConfirmedBookingForSlot(ctx context.Context, slotID string) (*models.Booking, error) {
	row := db.QueryRowContext(ctx,
		selectBooking+" WHERE slot_id = ? AND status = ?",
		slotID, string(models.StatusConfirmed),
	)
	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

const selectBooking = `
	SELECT id, user_id, booking_date, start_time, end_time, slot_id, status, cancelled_at, notes, created_at, updated_at
	FROM bookings`

func (db *DB) queryBookings(ctx context.Context, query string, args ...interface{}) ([]models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b                models.Booking
		dateStr          string
		startStr, endStr string
		slotID           sql.NullString
		status           string
		cancelledAt      sql.NullTime
		notes            sql.NullString
	)
	err := row.Scan(&b.ID, &b.UserID, &dateStr, &startStr, &endStr, &slotID, &status, &cancelledAt, &notes, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan booking: %w", err)
	}

	if b.Date, err = timeutil.ParseDate(dateStr); err != nil {
		return nil, fmt.Errorf("booking date: %w", err)
	}
	if b.StartTime, err = timeutil.ParseWallTime(startStr); err != nil {
		return nil, fmt.Errorf("booking start_time: %w", err)
	}
	if b.EndTime, err = timeutil.ParseWallTime(endStr); err != nil {
		return nil, fmt.Errorf("booking end_time: %w", err)
	}
	if slotID.Valid {
		b.SlotID = &slotID.String
	}
	b.Status = models.BookingStatus(status)
	if cancelledAt.Valid {
		b.CancelledAt = &cancelledAt.Time
	}
	b.Notes = notes.String
	return &b, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
