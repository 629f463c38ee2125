package booking

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"zapisnik/internal/database"
	"zapisnik/internal/models"
	"zapisnik/internal/timeutil"
)

// fakeStore is an in-memory Store whose AdmitBooking reproduces the real
// store's serialized recheck-then-insert admission.
type fakeStore struct {
	mu        sync.Mutex
	settings  *models.CalendarSettings
	template  []models.WeekdayHours
	overrides map[string]models.DateOverride
	bookings  map[string]*models.Booking
	order     []string
}

func newFakeStore() *fakeStore {
	template := make([]models.WeekdayHours, 7)
	for d := 0; d < 7; d++ {
		template[d] = models.WeekdayHours{
			DayOfWeek: d,
			IsEnabled: d < 5,
			StartTime: timeutil.MustWallTime("08:00"),
			EndTime:   timeutil.MustWallTime("17:00"),
		}
	}
	return &fakeStore{
		template:  template,
		overrides: make(map[string]models.DateOverride),
		bookings:  make(map[string]*models.Booking),
	}
}

func (f *fakeStore) GetSettings(ctx context.Context) (*models.CalendarSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings, nil
}

func (f *fakeStore) GetWeeklyHours(ctx context.Context) ([]models.WeekdayHours, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.WeekdayHours(nil), f.template...), nil
}

func (f *fakeStore) GetOverrideByDate(ctx context.Context, date time.Time) (*models.DateOverride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.overrides[timeutil.FormatDate(date)]; ok {
		return &o, nil
	}
	return nil, nil
}

func (f *fakeStore) ListOverrides(ctx context.Context, from, to *time.Time) ([]models.DateOverride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.DateOverride
	for _, o := range f.overrides {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeStore) ConfirmedBookingsByDate(ctx context.Context, date time.Time) ([]models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.confirmedByDateLocked(date), nil
}

func (f *fakeStore) confirmedByDateLocked(date time.Time) []models.Booking {
	var out []models.Booking
	for _, id := range f.order {
		b := f.bookings[id]
		if b.Status == models.StatusConfirmed && timeutil.DateOnly(b.Date).Equal(timeutil.DateOnly(date)) {
			out = append(out, *b)
		}
	}
	return out
}

func (f *fakeStore) AdmitBooking(ctx context.Context, b *models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.confirmedByDateLocked(b.Date) {
		if b.OverlapsWith(&existing) {
			return database.ErrBookingConflict
		}
	}
	if b.SlotID != nil {
		for _, other := range f.bookings {
			if other.Status == models.StatusConfirmed && other.SlotID != nil && *other.SlotID == *b.SlotID {
				return database.ErrSlotTaken
			}
		}
	}
	b.Status = models.StatusConfirmed
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	stored := *b
	f.bookings[b.ID] = &stored
	f.order = append(f.order, b.ID)
	return nil
}

func (f *fakeStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.bookings[id]; ok {
		copied := *b
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeStore) MarkCancelled(ctx context.Context, id string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok || b.Status != models.StatusConfirmed {
		return false, nil
	}
	b.Status = models.StatusCancelled
	b.CancelledAt = &at
	return true, nil
}

func (f *fakeStore) ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Booking
	for i := len(f.order) - 1; i >= 0; i-- {
		b := f.bookings[f.order[i]]
		if filter.UserID != "" && b.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if filter.DateFrom != nil && b.Date.Before(timeutil.DateOnly(*filter.DateFrom)) {
			continue
		}
		if filter.DateTo != nil && b.Date.After(timeutil.DateOnly(*filter.DateTo)) {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

var (
	monday   = time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC) // a Monday
	saturday = monday.AddDate(0, 0, 5)
	testNow  = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
)

func newTestService(store *fakeStore) *Service {
	logger := zerolog.New(io.Discard)
	return NewService(store, nil, &logger).WithClock(func() time.Time { return testNow })
}

func request(date time.Time, start, end string) CreateRequest {
	return CreateRequest{
		UserID:    "user-1",
		Date:      date,
		StartTime: timeutil.MustWallTime(start),
		EndTime:   timeutil.MustWallTime(end),
	}
}

func assertRejected(t *testing.T, err error, reason models.RejectReason) {
	t.Helper()
	rej := models.AsRejection(err)
	if assert.NotNil(t, rej, "expected rejection, got %v", err) {
		assert.Equal(t, reason, rej.Reason)
	}
}

func TestCreateBooking_Scenario(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	t.Run("malformed interval", func(t *testing.T) {
		_, err := svc.CreateBooking(ctx, request(monday, "10:00", "09:00"))
		assertRejected(t, err, models.ReasonMalformedInterval)

		_, err = svc.CreateBooking(ctx, request(monday, "10:00", "10:00"))
		assertRejected(t, err, models.ReasonMalformedInterval)
	})

	t.Run("saturday is outside availability", func(t *testing.T) {
		_, err := svc.CreateBooking(ctx, request(saturday, "09:00", "09:30"))
		assertRejected(t, err, models.ReasonOutsideAvailability)
	})

	t.Run("before opening hours", func(t *testing.T) {
		_, err := svc.CreateBooking(ctx, request(monday, "07:00", "08:30"))
		assertRejected(t, err, models.ReasonOutsideAvailability)
	})

	t.Run("monday morning admitted", func(t *testing.T) {
		b, err := svc.CreateBooking(ctx, request(monday, "09:00", "09:30"))
		assert.NoError(t, err)
		if assert.NotNil(t, b) {
			assert.Equal(t, models.StatusConfirmed, b.Status)
			assert.NotEmpty(t, b.ID)
		}
	})

	t.Run("overlapping request rejected", func(t *testing.T) {
		_, err := svc.CreateBooking(ctx, request(monday, "09:15", "09:45"))
		assertRejected(t, err, models.ReasonOverlap)
	})

	t.Run("back to back admitted", func(t *testing.T) {
		_, err := svc.CreateBooking(ctx, request(monday, "09:30", "10:00"))
		assert.NoError(t, err)
	})
}

func TestCreateBooking_ClosedOverrideBeatsTemplate(t *testing.T) {
	store := newFakeStore()
	store.overrides[timeutil.FormatDate(monday)] = models.DateOverride{
		Date: monday, IsClosed: true,
	}
	svc := newTestService(store)

	_, err := svc.CreateBooking(context.Background(), request(monday, "09:00", "09:30"))
	assertRejected(t, err, models.ReasonOutsideAvailability)
}

func TestCreateBooking_OpenOverrideWindow(t *testing.T) {
	store := newFakeStore()
	start := timeutil.MustWallTime("10:00")
	end := timeutil.MustWallTime("14:00")
	store.overrides[timeutil.FormatDate(saturday)] = models.DateOverride{
		Date: saturday, StartTime: &start, EndTime: &end,
	}
	svc := newTestService(store)
	ctx := context.Background()

	// inside the override window on an otherwise closed day
	_, err := svc.CreateBooking(ctx, request(saturday, "10:00", "11:00"))
	assert.NoError(t, err)

	// template window no longer applies
	_, err = svc.CreateBooking(ctx, request(saturday, "08:30", "09:30"))
	assertRejected(t, err, models.ReasonOutsideAvailability)
}

func TestCreateBooking_PolicyBypassesAvailability(t *testing.T) {
	store := newFakeStore()
	store.settings = models.DefaultSettings()
	store.settings.AllowBookingOutsideAvailability = true
	svc := newTestService(store)

	_, err := svc.CreateBooking(context.Background(), request(saturday, "20:00", "21:00"))
	assert.NoError(t, err)
}

func TestCreateBooking_NoticeBoundary(t *testing.T) {
	store := newFakeStore()
	notice := 60
	store.settings = models.DefaultSettings()
	store.settings.MinBookingNoticeMinutes = &notice
	svc := newTestService(store)
	ctx := context.Background()

	// testNow is 2026-03-10 12:00 UTC, a Tuesday with the template open.
	today := timeutil.DateOnly(testNow)

	t.Run("exactly at the boundary admits", func(t *testing.T) {
		_, err := svc.CreateBooking(ctx, request(today, "13:00", "13:30"))
		assert.NoError(t, err)
	})

	t.Run("one minute short rejects", func(t *testing.T) {
		_, err := svc.CreateBooking(ctx, request(today, "12:59", "13:00"))
		assertRejected(t, err, models.ReasonNotice)
	})
}

func TestCreateBooking_AdvanceLimit(t *testing.T) {
	store := newFakeStore()
	advance := 7
	store.settings = models.DefaultSettings()
	store.settings.MaxAdvanceBookingDays = &advance
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.CreateBooking(ctx, request(monday, "09:00", "09:30"))
	assert.NoError(t, err) // monday is 6 days past testNow

	_, err = svc.CreateBooking(ctx, request(monday.AddDate(0, 0, 7), "09:00", "09:30"))
	assertRejected(t, err, models.ReasonAdvance)
}

func TestCreateBooking_ConcurrentDisjointAllAdmitted(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := timeutil.WallTime{Hour: 8 + i}
			end := timeutil.WallTime{Hour: 9 + i}
			_, errs[i] = svc.CreateBooking(ctx, CreateRequest{
				UserID: "user-1", Date: monday, StartTime: start, EndTime: end,
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "request %d", i)
	}
	confirmed, _ := store.ConfirmedBookingsByDate(ctx, monday)
	assert.Len(t, confirmed, n)
}

func TestCreateBooking_ConcurrentOverlapAdmitsExactlyOne(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	const n = 4
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CreateBooking(ctx, request(monday, "09:00", "10:00"))
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, err := range errs {
		if err == nil {
			admitted++
			continue
		}
		rej := models.AsRejection(err)
		if assert.NotNil(t, rej) {
			// Losers that raced past the read-phase check surface a
			// conflict; the rest see the overlap directly.
			assert.Contains(t, []models.RejectReason{models.ReasonOverlap, models.ReasonConflict}, rej.Reason)
		}
	}
	assert.Equal(t, 1, admitted)

	confirmed, _ := store.ConfirmedBookingsByDate(ctx, monday)
	assert.Len(t, confirmed, 1)
}

func TestCancelBooking(t *testing.T) {
	ctx := context.Background()

	setup := func(settings *models.CalendarSettings) (*Service, *models.Booking) {
		store := newFakeStore()
		store.settings = settings
		svc := newTestService(store)
		b, err := svc.CreateBooking(ctx, request(monday, "09:00", "09:30"))
		if err != nil {
			t.Fatalf("setup booking: %v", err)
		}
		return svc, b
	}

	t.Run("owner cancels", func(t *testing.T) {
		svc, b := setup(nil)
		assert.NoError(t, svc.CancelBooking(ctx, b.ID, "user-1", false))
	})

	t.Run("second cancellation is rejected", func(t *testing.T) {
		svc, b := setup(nil)
		assert.NoError(t, svc.CancelBooking(ctx, b.ID, "user-1", false))

		err := svc.CancelBooking(ctx, b.ID, "user-1", false)
		assertRejected(t, err, models.ReasonNotFound)
	})

	t.Run("unknown id", func(t *testing.T) {
		svc, _ := setup(nil)
		err := svc.CancelBooking(ctx, "missing", "user-1", false)
		assertRejected(t, err, models.ReasonNotFound)
	})

	t.Run("non-owner forbidden", func(t *testing.T) {
		svc, b := setup(nil)
		err := svc.CancelBooking(ctx, b.ID, "user-2", false)
		assertRejected(t, err, models.ReasonForbidden)
	})

	t.Run("admin cancels any booking", func(t *testing.T) {
		svc, b := setup(nil)
		assert.NoError(t, svc.CancelBooking(ctx, b.ID, "admin", true))
	})

	t.Run("cancellation disabled binds admins too", func(t *testing.T) {
		settings := models.DefaultSettings()
		settings.AllowCancellation = false
		svc, b := setup(settings)

		err := svc.CancelBooking(ctx, b.ID, "admin", true)
		assertRejected(t, err, models.ReasonCancellationDisabled)
	})

	t.Run("cancellation notice blocks owner but not admin", func(t *testing.T) {
		notice := 14 * 24 * 60 // monday is only 6 days out from testNow
		settings := models.DefaultSettings()
		settings.CancellationNoticeMinutes = &notice
		svc, b := setup(settings)

		err := svc.CancelBooking(ctx, b.ID, "user-1", false)
		assertRejected(t, err, models.ReasonCancellationNotice)

		assert.NoError(t, svc.CancelBooking(ctx, b.ID, "admin", true))
	})
}

func TestListBookings(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	first, err := svc.CreateBooking(ctx, request(monday, "09:00", "09:30"))
	assert.NoError(t, err)
	_, err = svc.CreateBooking(ctx, CreateRequest{
		UserID: "user-2", Date: monday.AddDate(0, 0, 1),
		StartTime: timeutil.MustWallTime("10:00"), EndTime: timeutil.MustWallTime("11:00"),
	})
	assert.NoError(t, err)
	assert.NoError(t, svc.CancelBooking(ctx, first.ID, "user-1", false))

	t.Run("unfiltered returns everything newest first", func(t *testing.T) {
		got, err := svc.ListBookings(ctx, models.BookingFilter{})
		assert.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("filter by owner", func(t *testing.T) {
		got, err := svc.ListBookings(ctx, models.BookingFilter{UserID: "user-2"})
		assert.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("filter by status", func(t *testing.T) {
		got, err := svc.ListBookings(ctx, models.BookingFilter{Status: models.StatusCancelled})
		assert.NoError(t, err)
		if assert.Len(t, got, 1) {
			assert.Equal(t, first.ID, got[0].ID)
			assert.NotNil(t, got[0].CancelledAt)
		}
	})

	t.Run("conjunctive filters", func(t *testing.T) {
		got, err := svc.ListBookings(ctx, models.BookingFilter{
			UserID: "user-1", Status: models.StatusConfirmed,
		})
		assert.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestAvailability(t *testing.T) {
	store := newFakeStore()
	store.overrides[timeutil.FormatDate(monday)] = models.DateOverride{
		Date: monday, IsClosed: true,
	}
	svc := newTestService(store)

	days, err := svc.Availability(context.Background(), monday, monday.AddDate(0, 0, 6))
	assert.NoError(t, err)
	if assert.Len(t, days, 7) {
		assert.False(t, days[0].Available) // closed by override
		assert.Equal(t, models.SourceOverride, days[0].Source)
		assert.True(t, days[1].Available)
		assert.False(t, days[5].Available) // saturday
		assert.False(t, days[6].Available) // sunday
	}
}
