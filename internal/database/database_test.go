package database

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"zapisnik/internal/models"
	"zapisnik/internal/timeutil"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testDate() time.Time {
	return time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
}

func newBooking(userID, start, end string) *models.Booking {
	return &models.Booking{
		ID:        uuid.NewString(),
		UserID:    userID,
		Date:      testDate(),
		StartTime: timeutil.MustWallTime(start),
		EndTime:   timeutil.MustWallTime(end),
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	got, err := db.GetSettings(ctx)
	assert.NoError(t, err)
	assert.Nil(t, got, "no settings before first write")

	notice := 60
	settings := models.DefaultSettings()
	settings.MinBookingNoticeMinutes = &notice
	settings.Timezone = "Europe/Moscow"
	assert.NoError(t, db.UpsertSettings(ctx, settings))

	got, err = db.GetSettings(ctx)
	assert.NoError(t, err)
	if assert.NotNil(t, got) {
		assert.Equal(t, "Europe/Moscow", got.Timezone)
		assert.Equal(t, 60, *got.MinBookingNoticeMinutes)
		assert.Equal(t, "08:00", got.DefaultStartTime.String())
	}

	// Second write updates the singleton in place.
	got.Timezone = "UTC"
	got.MinBookingNoticeMinutes = nil
	assert.NoError(t, db.UpsertSettings(ctx, got))

	again, err := db.GetSettings(ctx)
	assert.NoError(t, err)
	if assert.NotNil(t, again) {
		assert.Equal(t, got.ID, again.ID)
		assert.Equal(t, "UTC", again.Timezone)
		assert.Nil(t, again.MinBookingNoticeMinutes)
	}
}

func TestWeeklyHours(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	hours, err := db.GetWeeklyHours(ctx)
	assert.NoError(t, err)
	assert.Len(t, hours, 7, "missing days are filled")
	assert.True(t, hours[0].IsEnabled, "Monday defaults enabled")
	assert.False(t, hours[5].IsEnabled, "Saturday defaults disabled")

	template := make([]models.WeekdayHours, 7)
	for i := range template {
		template[i] = models.WeekdayHours{
			DayOfWeek: i,
			IsEnabled: true,
			StartTime: timeutil.MustWallTime("10:00"),
			EndTime:   timeutil.MustWallTime("14:00"),
		}
	}
	assert.NoError(t, db.ReplaceWeeklyHours(ctx, template))

	hours, err = db.GetWeeklyHours(ctx)
	assert.NoError(t, err)
	assert.Len(t, hours, 7)
	for _, h := range hours {
		assert.True(t, h.IsEnabled)
		assert.Equal(t, "10:00", h.StartTime.String())
	}

	err = db.ReplaceWeeklyHours(ctx, template[:6])
	assert.Error(t, err, "partial template is refused")
}

func TestOverrides(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := testDate()

	got, err := db.GetOverrideByDate(ctx, date)
	assert.NoError(t, err)
	assert.Nil(t, got)

	start := timeutil.MustWallTime("10:00")
	end := timeutil.MustWallTime("14:00")
	override := &models.DateOverride{
		ID:        uuid.NewString(),
		Date:      date,
		StartTime: &start,
		EndTime:   &end,
		Notes:     "short day",
	}
	assert.NoError(t, db.UpsertOverride(ctx, override))

	got, err = db.GetOverrideByDate(ctx, date)
	assert.NoError(t, err)
	if assert.NotNil(t, got) {
		assert.False(t, got.IsClosed)
		assert.Equal(t, "10:00", got.StartTime.String())
		assert.Equal(t, "short day", got.Notes)
	}

	// Upsert for the same date replaces, does not duplicate.
	closed := &models.DateOverride{ID: uuid.NewString(), Date: date, IsClosed: true}
	assert.NoError(t, db.UpsertOverride(ctx, closed))

	list, err := db.ListOverrides(ctx, nil, nil)
	assert.NoError(t, err)
	assert.Len(t, list, 1)
	assert.True(t, list[0].IsClosed)

	removed, err := db.DeleteOverride(ctx, date)
	assert.NoError(t, err)
	assert.True(t, removed)

	removed, err = db.DeleteOverride(ctx, date)
	assert.NoError(t, err)
	assert.False(t, removed, "second delete finds nothing")
}

func TestAdmitBooking_OverlapRecheck(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	assert.NoError(t, db.AdmitBooking(ctx, newBooking("user-1", "09:00", "10:00")))

	err := db.AdmitBooking(ctx, newBooking("user-2", "09:30", "10:30"))
	assert.ErrorIs(t, err, ErrBookingConflict)

	// Half-open intervals: back-to-back is not a conflict.
	assert.NoError(t, db.AdmitBooking(ctx, newBooking("user-2", "10:00", "11:00")))

	// A cancelled booking frees its window.
	blocked := newBooking("user-3", "11:00", "12:00")
	assert.NoError(t, db.AdmitBooking(ctx, blocked))
	ok, err := db.MarkCancelled(ctx, blocked.ID, time.Now().UTC())
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, db.AdmitBooking(ctx, newBooking("user-4", "11:00", "12:00")))
}

func TestAdmitBooking_ConcurrentOverlap(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	const n = 4
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = db.AdmitBooking(ctx, newBooking("user-1", "09:00", "10:00"))
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, err := range errs {
		if err == nil {
			admitted++
		} else {
			assert.ErrorIs(t, err, ErrBookingConflict)
		}
	}
	assert.Equal(t, 1, admitted, "exactly one concurrent admission wins")
}

func TestAdmitBooking_SlotUniqueness(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	slotID := uuid.NewString()

	first := newBooking("user-1", "09:00", "10:00")
	first.SlotID = &slotID
	assert.NoError(t, db.AdmitBooking(ctx, first))

	// Different window, same slot: the partial unique index refuses it.
	second := newBooking("user-2", "13:00", "14:00")
	second.SlotID = &slotID
	err := db.AdmitBooking(ctx, second)
	assert.ErrorIs(t, err, ErrSlotTaken)

	// Cancelling the holder releases the slot.
	ok, err := db.MarkCancelled(ctx, first.ID, time.Now().UTC())
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, db.AdmitBooking(ctx, second))

	got, err := db.ConfirmedBookingForSlot(ctx, slotID)
	assert.NoError(t, err)
	if assert.NotNil(t, got) {
		assert.Equal(t, second.ID, got.ID)
	}
}

func TestMarkCancelled_SingleShot(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	b := newBooking("user-1", "09:00", "10:00")
	assert.NoError(t, db.AdmitBooking(ctx, b))

	ok, err := db.MarkCancelled(ctx, b.ID, time.Now().UTC())
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.MarkCancelled(ctx, b.ID, time.Now().UTC())
	assert.NoError(t, err)
	assert.False(t, ok, "terminal state cannot transition twice")

	got, err := db.GetBooking(ctx, b.ID)
	assert.NoError(t, err)
	if assert.NotNil(t, got) {
		assert.Equal(t, models.StatusCancelled, got.Status)
		assert.NotNil(t, got.CancelledAt)
	}
}

func TestListBookings_Filters(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := newBooking("user-1", "09:00", "10:00")
	assert.NoError(t, db.AdmitBooking(ctx, first))

	second := newBooking("user-2", "10:00", "11:00")
	second.Date = testDate().AddDate(0, 0, 1)
	assert.NoError(t, db.AdmitBooking(ctx, second))

	_, err := db.MarkCancelled(ctx, first.ID, time.Now().UTC())
	assert.NoError(t, err)

	all, err := db.ListBookings(ctx, models.BookingFilter{})
	assert.NoError(t, err)
	assert.Len(t, all, 2)

	byUser, err := db.ListBookings(ctx, models.BookingFilter{UserID: "user-2"})
	assert.NoError(t, err)
	if assert.Len(t, byUser, 1) {
		assert.Equal(t, second.ID, byUser[0].ID)
	}

	cancelled, err := db.ListBookings(ctx, models.BookingFilter{Status: models.StatusCancelled})
	assert.NoError(t, err)
	if assert.Len(t, cancelled, 1) {
		assert.Equal(t, first.ID, cancelled[0].ID)
	}

	from := testDate().AddDate(0, 0, 1)
	byDate, err := db.ListBookings(ctx, models.BookingFilter{DateFrom: &from})
	assert.NoError(t, err)
	if assert.Len(t, byDate, 1) {
		assert.Equal(t, second.ID, byDate[0].ID)
	}

	none, err := db.ListBookings(ctx, models.BookingFilter{UserID: "user-2", Status: models.StatusCancelled})
	assert.NoError(t, err)
	assert.Empty(t, none)
}

func TestSlots(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	day := testDate()

	batch := []models.Slot{
		{
			ID:          uuid.NewString(),
			Date:        day,
			StartTime:   day.Add(9 * time.Hour),
			EndTime:     day.Add(10 * time.Hour),
			IsAvailable: true,
			CreatedBy:   "admin-1",
		},
		{
			ID:          uuid.NewString(),
			Date:        day,
			StartTime:   day.Add(10 * time.Hour),
			EndTime:     day.Add(11 * time.Hour),
			IsAvailable: true,
			CreatedBy:   "admin-1",
		},
	}
	assert.NoError(t, db.CreateSlots(ctx, batch))

	got, err := db.GetSlot(ctx, batch[0].ID)
	assert.NoError(t, err)
	if assert.NotNil(t, got) {
		assert.True(t, got.IsAvailable)
		assert.Equal(t, "admin-1", got.CreatedBy)
	}

	missing, err := db.GetSlot(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, missing)

	list, err := db.ListSlots(ctx, day, day)
	assert.NoError(t, err)
	assert.Len(t, list, 2)

	ok, err := db.SetSlotAvailability(ctx, batch[0].ID, false)
	assert.NoError(t, err)
	assert.True(t, ok)

	got, err = db.GetSlot(ctx, batch[0].ID)
	assert.NoError(t, err)
	if assert.NotNil(t, got) {
		assert.False(t, got.IsAvailable)
	}
}
