package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"zapisnik/internal/models"
	"zapisnik/internal/timeutil"
)

// GetSettings returns the singleton policy row, or nil when it has never
// been written.
func (db *DB) GetSettings(ctx context.Context) (*models.CalendarSettings, error) {
	var (
		s                    models.CalendarSettings
		startStr, endStr     string
		slotDuration         sql.NullInt64
		minNotice, maxAdv    sql.NullInt64
		cancelNotice         sql.NullInt64
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, slot_duration_minutes, default_start_time, default_end_time,
		       timezone, min_booking_notice_minutes, max_advance_booking_days,
		       allow_cancellation, cancellation_notice_minutes,
		       allow_booking_outside_availability, created_at, updated_at
		FROM calendar_settings LIMIT 1`,
	).Scan(
		&s.ID, &slotDuration, &startStr, &endStr,
		&s.Timezone, &minNotice, &maxAdv,
		&s.AllowCancellation, &cancelNotice,
		&s.AllowBookingOutsideAvailability, &s.CreatedAt, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}

	if s.DefaultStartTime, err = timeutil.ParseWallTime(startStr); err != nil {
		return nil, fmt.Errorf("settings default_start_time: %w", err)
	}
	if s.DefaultEndTime, err = timeutil.ParseWallTime(endStr); err != nil {
		return nil, fmt.Errorf("settings default_end_time: %w", err)
	}
	s.SlotDurationMinutes = nullableInt(slotDuration)
	s.MinBookingNoticeMinutes = nullableInt(minNotice)
	s.MaxAdvanceBookingDays = nullableInt(maxAdv)
	s.CancellationNoticeMinutes = nullableInt(cancelNotice)
	return &s, nil
}

// UpsertSettings creates the singleton on first write and updates it in
// place afterwards. The full row is always written.
func (db *DB) UpsertSettings(ctx context.Context, s *models.CalendarSettings) error {
	now := time.Now().UTC()
	existing, err := db.GetSettings(ctx)
	if err != nil {
		return err
	}

	if existing == nil {
		s.ID = uuid.NewString()
		s.CreatedAt = now
		s.UpdatedAt = now
		_, err = db.ExecContext(ctx, `
			INSERT INTO calendar_settings (
				id, slot_duration_minutes, default_start_time, default_end_time,
				timezone, min_booking_notice_minutes, max_advance_booking_days,
				allow_cancellation, cancellation_notice_minutes,
				allow_booking_outside_availability, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ID, s.SlotDurationMinutes, s.DefaultStartTime.String(), s.DefaultEndTime.String(),
			s.Timezone, s.MinBookingNoticeMinutes, s.MaxAdvanceBookingDays,
			s.AllowCancellation, s.CancellationNoticeMinutes,
			s.AllowBookingOutsideAvailability, s.CreatedAt, s.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert settings: %w", err)
		}
		return nil
	}

	s.ID = existing.ID
	s.CreatedAt = existing.CreatedAt
	s.UpdatedAt = now
	_, err = db.ExecContext(ctx, `
		UPDATE calendar_settings SET
			slot_duration_minutes = ?, default_start_time = ?, default_end_time = ?,
			timezone = ?, min_booking_notice_minutes = ?, max_advance_booking_days = ?,
			allow_cancellation = ?, cancellation_notice_minutes = ?,
			allow_booking_outside_availability = ?, updated_at = ?
		WHERE id = ?`,
		s.SlotDurationMinutes, s.DefaultStartTime.String(), s.DefaultEndTime.String(),
		s.Timezone, s.MinBookingNoticeMinutes, s.MaxAdvanceBookingDays,
		s.AllowCancellation, s.CancellationNoticeMinutes,
		s.AllowBookingOutsideAvailability, s.UpdatedAt, s.ID,
	)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	return nil
}

func nullableInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
