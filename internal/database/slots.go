package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"zapisnik/internal/models"
	"zapisnik/internal/timeutil"
)

// CreateSlots inserts a generated batch in one transaction.
func (db *DB) CreateSlots(ctx context.Context, slots []models.Slot) error {
	if len(slots) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create slots: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO slots (id, slot_date, start_time, end_time, is_available, created_by, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare create slots: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range slots {
		s := &slots[i]
		s.CreatedAt = now
		s.UpdatedAt = now
		_, err := stmt.ExecContext(ctx,
			s.ID, timeutil.FormatDate(s.Date), s.StartTime, s.EndTime,
			s.IsAvailable, s.CreatedBy, s.Notes, s.CreatedAt, s.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert slot %s: %w", s.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create slots: %w", err)
	}
	return nil
}

// GetSlot returns a slot by id, nil when absent.
func (db *DB) GetSlot(ctx context.Context, id string) (*models.Slot, error) {
	row := db.QueryRowContext(ctx, selectSlot+" WHERE id = ?", id)
	s, err := scanSlot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ListSlots returns slots in [from, to] ordered by start time.
func (db *DB) ListSlots(ctx context.Context, from, to time.Time) ([]models.Slot, error) {
	rows, err := db.QueryContext(ctx,
		selectSlot+" WHERE slot_date >= ? AND slot_date <= ? ORDER BY start_time",
		timeutil.FormatDate(from), timeutil.FormatDate(to),
	)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	var slots []models.Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, *s)
	}
	return slots, rows.Err()
}

// SetSlotAvailability flips the presentational availability switch; it does
// not affect admission, which consults the bookings table.
func (db *DB) SetSlotAvailability(ctx context.Context, id string, available bool) (bool, error) {
	res, err := db.ExecContext(ctx,
		"UPDATE slots SET is_available = ?, updated_at = ? WHERE id = ?",
		available, time.Now().UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("update slot availability: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update slot availability rows: %w", err)
	}
	return n > 0, nil
}

const selectSlot = `
	SELECT id, slot_date, start_time, end_time, is_available, created_by, notes, created_at, updated_at
	FROM slots`

func scanSlot(row rowScanner) (*models.Slot, error) {
	var (
		s         models.Slot
		dateStr   string
		createdBy sql.NullString
		notes     sql.NullString
	)
	err := row.Scan(&s.ID, &dateStr, &s.StartTime, &s.EndTime, &s.IsAvailable, &createdBy, &notes, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan slot: %w", err)
	}

	if s.Date, err = timeutil.ParseDate(dateStr); err != nil {
		return nil, fmt.Errorf("slot date: %w", err)
	}
	s.CreatedBy = createdBy.String
	s.Notes = notes.String
	return &s, nil
}
