// Package availability merges the weekly template with date overrides into
// the effective open/closed state of calendar dates.
package availability

import (
	"time"

	"zapisnik/internal/models"
	"zapisnik/internal/timeutil"
)

// ResolveDay computes the effective availability of a single date.
// An override for the exact date wins over the template entry for that
// weekday; with neither, the date is closed.
func ResolveDay(date time.Time, template []models.WeekdayHours, overrides []models.DateOverride) models.DayAvailability {
	date = timeutil.DateOnly(date)

	for i := range overrides {
		if !timeutil.DateOnly(overrides[i].Date).Equal(date) {
			continue
		}
		return fromOverride(date, &overrides[i])
	}

	dow := timeutil.WeekdayIndex(date)
	for i := range template {
		if template[i].DayOfWeek != dow {
			continue
		}
		return fromTemplate(date, &template[i])
	}

	return models.DayAvailability{Date: date, Source: models.SourceNone}
}

// ResolveRange resolves each date in [from, to] inclusive, ascending.
// An inverted range yields an empty result; range caps are the caller's
// concern.
func ResolveRange(from, to time.Time, template []models.WeekdayHours, overrides []models.DateOverride) []models.DayAvailability {
	from = timeutil.DateOnly(from)
	to = timeutil.DateOnly(to)

	var days []models.DayAvailability
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, ResolveDay(d, template, overrides))
	}
	return days
}

func fromOverride(date time.Time, o *models.DateOverride) models.DayAvailability {
	day := models.DayAvailability{
		Date:   date,
		Source: models.SourceOverride,
		Notes:  o.Notes,
	}
	if o.IsClosed {
		return day
	}
	day.Available = true
	day.StartTime = o.StartTime
	day.EndTime = o.EndTime
	return day
}

func fromTemplate(date time.Time, h *models.WeekdayHours) models.DayAvailability {
	day := models.DayAvailability{
		Date:   date,
		Source: models.SourceTemplate,
	}
	if !h.IsEnabled {
		return day
	}
	start, end := h.StartTime, h.EndTime
	day.Available = true
	day.StartTime = &start
	day.EndTime = &end
	return day
}
