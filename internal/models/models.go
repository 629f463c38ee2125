// Package models holds the calendar domain records shared across the service.
package models

import (
	"time"

	"zapisnik/internal/timeutil"
)

// BookingStatus is the lifecycle state of a booking. The only transition is
// confirmed -> cancelled, and it is terminal.
type BookingStatus string

const (
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
)

// Valid reports whether s is a known status value.
func (s BookingStatus) Valid() bool {
	return s == StatusConfirmed || s == StatusCancelled
}

// WeekdayHours is one row of the weekly availability template.
// Exactly seven rows exist, day_of_week 0 (Monday) through 6 (Sunday),
// and the set is always replaced as a whole.
type WeekdayHours struct {
	DayOfWeek int               `json:"day_of_week"`
	IsEnabled bool              `json:"is_enabled"`
	StartTime timeutil.WallTime `json:"start_time"`
	EndTime   timeutil.WallTime `json:"end_time"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// DateOverride replaces the weekly template for a single date.
// At most one override exists per date; writes upsert.
type DateOverride struct {
	ID        string             `json:"id"`
	Date      time.Time          `json:"date"`
	IsClosed  bool               `json:"is_closed"`
	StartTime *timeutil.WallTime `json:"start_time,omitempty"`
	EndTime   *timeutil.WallTime `json:"end_time,omitempty"`
	Notes     string             `json:"notes,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Validate checks the open-override construction rule: an open override must
// carry a well-ordered window.
func (o *DateOverride) Validate() error {
	if o.IsClosed {
		return nil
	}
	if o.StartTime == nil || o.EndTime == nil {
		return NewRejection(ReasonMalformedInterval, "open override requires start_time and end_time")
	}
	if !o.StartTime.Before(*o.EndTime) {
		return NewRejection(ReasonMalformedInterval, "start_time must be before end_time")
	}
	return nil
}

// CalendarSettings is the singleton booking policy. Nil limits mean the
// corresponding constraint is not enforced.
type CalendarSettings struct {
	ID                              string            `json:"id"`
	SlotDurationMinutes             *int              `json:"slot_duration_minutes,omitempty"`
	DefaultStartTime                timeutil.WallTime `json:"default_start_time"`
	DefaultEndTime                  timeutil.WallTime `json:"default_end_time"`
	Timezone                        string            `json:"timezone"`
	MinBookingNoticeMinutes         *int              `json:"min_booking_notice_minutes,omitempty"`
	MaxAdvanceBookingDays           *int              `json:"max_advance_booking_days,omitempty"`
	AllowCancellation               bool              `json:"allow_cancellation"`
	CancellationNoticeMinutes       *int              `json:"cancellation_notice_minutes,omitempty"`
	AllowBookingOutsideAvailability bool              `json:"allow_booking_outside_availability"`
	CreatedAt                       time.Time         `json:"created_at"`
	UpdatedAt                       time.Time         `json:"updated_at"`
}

// DefaultSettings returns the policy used before an administrator writes one.
func DefaultSettings() *CalendarSettings {
	return &CalendarSettings{
		DefaultStartTime:  timeutil.WallTime{Hour: 8},
		DefaultEndTime:    timeutil.WallTime{Hour: 17},
		Timezone:          "UTC",
		AllowCancellation: true,
	}
}

// MinNotice converts the minutes field to a duration, nil when unset.
func (s *CalendarSettings) MinNotice() *time.Duration {
	return minutesToDuration(s.MinBookingNoticeMinutes)
}

// MaxAdvance converts the days field to a duration, nil when unset.
func (s *CalendarSettings) MaxAdvance() *time.Duration {
	if s.MaxAdvanceBookingDays == nil {
		return nil
	}
	d := time.Duration(*s.MaxAdvanceBookingDays) * 24 * time.Hour
	return &d
}

// CancellationNotice converts the minutes field to a duration, nil when unset.
func (s *CalendarSettings) CancellationNotice() *time.Duration {
	return minutesToDuration(s.CancellationNoticeMinutes)
}

// Location resolves the configured calendar zone, UTC on failure.
func (s *CalendarSettings) Location() *time.Location {
	return timeutil.LoadLocation(s.Timezone)
}

func minutesToDuration(minutes *int) *time.Duration {
	if minutes == nil {
		return nil
	}
	d := time.Duration(*minutes) * time.Minute
	return &d
}

// Booking is a confirmed or cancelled reservation of a time range on a date.
// SlotID is set only for bookings made through the fixed-slot mode.
type Booking struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Date        time.Time         `json:"date"`
	StartTime   timeutil.WallTime `json:"start_time"`
	EndTime     timeutil.WallTime `json:"end_time"`
	SlotID      *string           `json:"slot_id,omitempty"`
	Status      BookingStatus     `json:"status"`
	CancelledAt *time.Time        `json:"cancelled_at,omitempty"`
	Notes       string            `json:"notes,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// OverlapsWith reports whether the bookings occupy intersecting time on the
// same date. Half-open [start, end) semantics: back-to-back bookings do not
// overlap.
func (b *Booking) OverlapsWith(other *Booking) bool {
	if !timeutil.DateOnly(b.Date).Equal(timeutil.DateOnly(other.Date)) {
		return false
	}
	return timeutil.Overlaps(b.StartTime, b.EndTime, other.StartTime, other.EndTime)
}

// StartsAt combines the booking date and start time under loc.
func (b *Booking) StartsAt(loc *time.Location) time.Time {
	return b.StartTime.OnDate(b.Date, loc)
}

// Slot is a pre-materialized bookable unit in the fixed-slot mode. Whether a
// slot is taken is derived from the presence of a confirmed booking
// referencing it; IsAvailable is an administrative on/off switch, not a
// booking record.
type Slot struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	IsAvailable bool      `json:"is_available"`
	CreatedBy   string    `json:"created_by,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BookingFilter narrows booking listings. Zero-valued fields are ignored;
// set fields combine conjunctively.
type BookingFilter struct {
	UserID   string
	DateFrom *time.Time
	DateTo   *time.Time
	Status   BookingStatus
}

// DayAvailability is the resolved open/closed state of a single date.
type DayAvailability struct {
	Date      time.Time          `json:"date"`
	Available bool               `json:"is_available"`
	StartTime *timeutil.WallTime `json:"start_time,omitempty"`
	EndTime   *timeutil.WallTime `json:"end_time,omitempty"`
	Source    AvailabilitySource `json:"source"`
	Notes     string             `json:"notes,omitempty"`
}

// AvailabilitySource names which layer produced a day's availability.
type AvailabilitySource string

const (
	SourceOverride AvailabilitySource = "override"
	SourceTemplate AvailabilitySource = "template"
	SourceNone     AvailabilitySource = "none"
)
