// Package slots implements the fixed-slot booking mode: pre-materialized
// bookable units generated over a date range.
package slots

import (
	"time"

	"github.com/google/uuid"

	"zapisnik/internal/models"
	"zapisnik/internal/timeutil"
)

// GenerateParams describe a slot batch.
type GenerateParams struct {
	DateFrom   time.Time
	DateTo     time.Time
	DailyStart timeutil.WallTime
	DailyEnd   timeutil.WallTime
	// SlotDuration tiles each day window into consecutive slots of this
	// length, dropping a trailing remainder shorter than the duration.
	// Nil emits one slot spanning the whole window per day.
	SlotDuration    *time.Duration
	ExcludeWeekends bool
	CreatedBy       string
}

// Generate materializes slots for every date in [DateFrom, DateTo]. New
// slots start out available. Days are independent; an inverted range yields
// nothing.
func Generate(params GenerateParams, loc *time.Location) []models.Slot {
	from := timeutil.DateOnly(params.DateFrom)
	to := timeutil.DateOnly(params.DateTo)

	var result []models.Slot
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if params.ExcludeWeekends && timeutil.WeekdayIndex(d) >= 5 {
			continue
		}
		result = append(result, generateDay(d, params, loc)...)
	}
	return result
}

func generateDay(day time.Time, params GenerateParams, loc *time.Location) []models.Slot {
	dayStart := params.DailyStart.OnDate(day, loc)
	dayEnd := params.DailyEnd.OnDate(day, loc)
	if !dayStart.Before(dayEnd) {
		return nil
	}

	newSlot := func(start, end time.Time) models.Slot {
		return models.Slot{
			ID:          uuid.NewString(),
			Date:        day,
			StartTime:   start,
			EndTime:     end,
			IsAvailable: true,
			CreatedBy:   params.CreatedBy,
		}
	}

	if params.SlotDuration == nil {
		return []models.Slot{newSlot(dayStart, dayEnd)}
	}

	duration := *params.SlotDuration
	if duration <= 0 {
		return nil
	}

	var result []models.Slot
	for cursor := dayStart; !cursor.Add(duration).After(dayEnd); cursor = cursor.Add(duration) {
		result = append(result, newSlot(cursor, cursor.Add(duration)))
	}
	return result
}
