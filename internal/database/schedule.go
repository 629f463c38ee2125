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

// GetWeeklyHours returns the seven-row weekly template ordered by weekday.
// Days never written yet are filled in with the stock Mon-Fri 08:00-17:00
// defaults so callers always see the complete set.
func (db *DB) GetWeeklyHours(ctx context.Context) ([]models.WeekdayHours, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT day_of_week, is_enabled, start_time, end_time, updated_at
		FROM weekly_hours ORDER BY day_of_week`)
	if err != nil {
		return nil, fmt.Errorf("get weekly hours: %w", err)
	}
	defer rows.Close()

	stored := make(map[int]models.WeekdayHours, 7)
	for rows.Next() {
		var (
			h                models.WeekdayHours
			startStr, endStr string
		)
		if err := rows.Scan(&h.DayOfWeek, &h.IsEnabled, &startStr, &endStr, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan weekly hours: %w", err)
		}
		if h.StartTime, err = timeutil.ParseWallTime(startStr); err != nil {
			return nil, fmt.Errorf("weekly hours day %d start_time: %w", h.DayOfWeek, err)
		}
		if h.EndTime, err = timeutil.ParseWallTime(endStr); err != nil {
			return nil, fmt.Errorf("weekly hours day %d end_time: %w", h.DayOfWeek, err)
		}
		stored[h.DayOfWeek] = h
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate weekly hours: %w", err)
	}

	template := make([]models.WeekdayHours, 7)
	for d := 0; d < 7; d++ {
		if h, ok := stored[d]; ok {
			template[d] = h
			continue
		}
		template[d] = models.WeekdayHours{
			DayOfWeek: d,
			IsEnabled: d < 5,
			StartTime: timeutil.WallTime{Hour: 8},
			EndTime:   timeutil.WallTime{Hour: 17},
		}
	}
	return template, nil
}

// ReplaceWeeklyHours writes the full seven-day set atomically.
func (db *DB) ReplaceWeeklyHours(ctx context.Context, template []models.WeekdayHours) error {
	if len(template) != 7 {
		return fmt.Errorf("weekly template must have exactly 7 entries, got %d", len(template))
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace weekly hours: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, h := range template {
		if h.DayOfWeek < 0 || h.DayOfWeek > 6 {
			return fmt.Errorf("day_of_week out of range: %d", h.DayOfWeek)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO weekly_hours (day_of_week, is_enabled, start_time, end_time, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(day_of_week) DO UPDATE SET
				is_enabled = excluded.is_enabled,
				start_time = excluded.start_time,
				end_time = excluded.end_time,
				updated_at = excluded.updated_at`,
			h.DayOfWeek, h.IsEnabled, h.StartTime.String(), h.EndTime.String(), now,
		)
		if err != nil {
			return fmt.Errorf("upsert weekly hours day %d: %w", h.DayOfWeek, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit weekly hours: %w", err)
	}
	return nil
}

// ListOverrides returns overrides ordered by date, optionally bounded.
func (db *DB) ListOverrides(ctx context.Context, from, to *time.Time) ([]models.DateOverride, error) {
	query := `
		SELECT id, override_date, is_closed, start_time, end_time, notes, created_at, updated_at
		FROM date_overrides WHERE 1=1`
	var args []interface{}
	if from != nil {
		query += " AND override_date >= ?"
		args = append(args, timeutil.FormatDate(*from))
	}
	if to != nil {
		query += " AND override_date <= ?"
		args = append(args, timeutil.FormatDate(*to))
	}
	query += " ORDER BY override_date"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	defer rows.Close()

	var overrides []models.DateOverride
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, *o)
	}
	return overrides, rows.Err()
}

// GetOverrideByDate returns the override for an exact date, nil when absent.
func (db *DB) GetOverrideByDate(ctx context.Context, date time.Time) (*models.DateOverride, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, override_date, is_closed, start_time, end_time, notes, created_at, updated_at
		FROM date_overrides WHERE override_date = ?`,
		timeutil.FormatDate(date),
	)
	o, err := scanOverride(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// UpsertOverride writes the override for its date, superseding any previous
// write to the same date.
func (db *DB) UpsertOverride(ctx context.Context, o *models.DateOverride) error {
	now := time.Now().UTC()
	if o.ID == "" {
		o.ID = uuid.NewString()
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	var startStr, endStr interface{}
	if o.StartTime != nil {
		startStr = o.StartTime.String()
	}
	if o.EndTime != nil {
		endStr = o.EndTime.String()
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO date_overrides (id, override_date, is_closed, start_time, end_time, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(override_date) DO UPDATE SET
			is_closed = excluded.is_closed,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			notes = excluded.notes,
			updated_at = excluded.updated_at`,
		o.ID, timeutil.FormatDate(o.Date), o.IsClosed, startStr, endStr, o.Notes, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert override: %w", err)
	}
	return nil
}

// DeleteOverride removes the override for a date; false when none existed.
func (db *DB) DeleteOverride(ctx context.Context, date time.Time) (bool, error) {
	res, err := db.ExecContext(ctx,
		"DELETE FROM date_overrides WHERE override_date = ?",
		timeutil.FormatDate(date),
	)
	if err != nil {
		return false, fmt.Errorf("delete override: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete override rows: %w", err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOverride(row rowScanner) (*models.DateOverride, error) {
	var (
		o                models.DateOverride
		dateStr          string
		startStr, endStr sql.NullString
		notes            sql.NullString
	)
	err := row.Scan(&o.ID, &dateStr, &o.IsClosed, &startStr, &endStr, &notes, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan override: %w", err)
	}

	if o.Date, err = timeutil.ParseDate(dateStr); err != nil {
		return nil, fmt.Errorf("override date: %w", err)
	}
	if startStr.Valid {
		wt, err := timeutil.ParseWallTime(startStr.String)
		if err != nil {
			return nil, fmt.Errorf("override start_time: %w", err)
		}
		o.StartTime = &wt
	}
	if endStr.Valid {
		wt, err := timeutil.ParseWallTime(endStr.String)
		if err != nil {
			return nil, fmt.Errorf("override end_time: %w", err)
		}
		o.EndTime = &wt
	}
	o.Notes = notes.String
	return &o, nil
}
