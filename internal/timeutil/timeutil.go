// Package timeutil handles wall-clock "HH:MM" values and their combination
// with calendar dates into absolute instants.
package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// WallTime is a time of day with minute precision, no date and no zone.
type WallTime struct {
	Hour   int
	Minute int
}

// ParseWallTime parses "HH:MM". Values coming back from the store may carry
// seconds or a zone suffix ("08:00:00", "08:00:00+00"); everything past the
// minutes is ignored.
func ParseWallTime(s string) (WallTime, error) {
	if len(s) > 5 {
		s = s[:5]
	}
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return WallTime{}, fmt.Errorf("invalid time format: %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return WallTime{}, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return WallTime{}, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return WallTime{}, fmt.Errorf("time out of range: %q", s)
	}
	return WallTime{Hour: hour, Minute: minute}, nil
}

// MustWallTime is ParseWallTime for constants; panics on bad input.
func MustWallTime(s string) WallTime {
	wt, err := ParseWallTime(s)
	if err != nil {
		panic(err)
	}
	return wt
}

// String formats as "HH:MM".
func (w WallTime) String() string {
	return fmt.Sprintf("%02d:%02d", w.Hour, w.Minute)
}

// MarshalJSON encodes as the "HH:MM" string form.
func (w WallTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + w.String() + `"`), nil
}

// UnmarshalJSON accepts the "HH:MM" string form.
func (w *WallTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := ParseWallTime(s)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// Minutes returns minutes since midnight.
func (w WallTime) Minutes() int {
	return w.Hour*60 + w.Minute
}

// Before reports whether w is earlier than other.
func (w WallTime) Before(other WallTime) bool {
	return w.Minutes() < other.Minutes()
}

// After reports whether w is later than other.
func (w WallTime) After(other WallTime) bool {
	return w.Minutes() > other.Minutes()
}

// Equal reports whether w and other are the same minute.
func (w WallTime) Equal(other WallTime) bool {
	return w.Minutes() == other.Minutes()
}

// Add returns w shifted by d, truncated to minutes. The result may run past
// midnight; callers tiling a day window must bound it themselves.
func (w WallTime) Add(d time.Duration) WallTime {
	total := w.Minutes() + int(d.Minutes())
	return WallTime{Hour: total / 60, Minute: total % 60}
}

// OnDate combines w with the calendar date of day in loc.
func (w WallTime) OnDate(day time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(day.Year(), day.Month(), day.Day(), w.Hour, w.Minute, 0, 0, loc)
}

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd WallTime) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// DateOnly truncates t to midnight UTC. Dates are stored zone-free; the
// configured calendar zone only matters when a wall time is attached.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// WeekdayIndex maps t's weekday to the Monday=0 … Sunday=6 convention.
func WeekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// ParseDate parses "YYYY-MM-DD".
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format %q; expected YYYY-MM-DD", s)
	}
	return d, nil
}

// FormatDate formats t as "YYYY-MM-DD".
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// LoadLocation resolves an IANA zone name, falling back to UTC for an empty
// or unknown name.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
