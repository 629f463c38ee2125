// Package booking is the ledger of confirmed and cancelled bookings. It owns
// admission — the validation chain ending in an atomic overlap-checked
// insert — and the terminal confirmed-to-cancelled transition.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"zapisnik/internal/availability"
	"zapisnik/internal/database"
	"zapisnik/internal/events"
	"zapisnik/internal/metrics"
	"zapisnik/internal/models"
	"zapisnik/internal/policy"
	"zapisnik/internal/timeutil"
)

// Store is the durable-store surface the ledger needs.
type Store interface {
	GetSettings(ctx context.Context) (*models.CalendarSettings, error)
	GetWeeklyHours(ctx context.Context) ([]models.WeekdayHours, error)
	GetOverrideByDate(ctx context.Context, date time.Time) (*models.DateOverride, error)
	ListOverrides(ctx context.Context, from, to *time.Time) ([]models.DateOverride, error)
	ConfirmedBookingsByDate(ctx context.Context, date time.Time) ([]models.Booking, error)
	AdmitBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	MarkCancelled(ctx context.Context, id string, at time.Time) (bool, error)
	ListBookings(ctx context.Context, f models.BookingFilter) ([]models.Booking, error)
}

// EventPublisher notifies subscribers of ledger transitions.
type EventPublisher interface {
	Publish(eventType string, payload interface{})
}

// Service implements the booking ledger over a Store.
type Service struct {
	store  Store
	bus    EventPublisher
	logger *zerolog.Logger
	now    func() time.Time
}

// NewService creates the ledger service. bus may be nil when no subscribers
// exist (tests).
func NewService(store Store, bus EventPublisher, logger *zerolog.Logger) *Service {
	return &Service{
		store:  store,
		bus:    bus,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the clock; tests use it to pin "now".
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateRequest is a booking admission request.
type CreateRequest struct {
	UserID    string
	Date      time.Time
	StartTime timeutil.WallTime
	EndTime   timeutil.WallTime
	Notes     string
	// SlotID links the booking to a pre-generated slot; set only by the
	// fixed-slot service.
	SlotID *string
	// SkipAvailability bypasses the availability window check regardless of
	// policy; set only by the fixed-slot service, whose slots were already
	// materialized by an administrator.
	SkipAvailability bool
}

// CreateBooking validates req and, if every gate passes, commits it as a
// confirmed booking. Refusals come back as *models.Rejection; anything else
// is a store failure.
//
// Validation order: interval shape, notice, advance, availability, overlap.
// The first failure wins.
func (s *Service) CreateBooking(ctx context.Context, req CreateRequest) (*models.Booking, error) {
	if !req.StartTime.Before(req.EndTime) {
		return nil, s.reject(models.NewRejection(models.ReasonMalformedInterval,
			"start_time must be before end_time"))
	}

	settings, err := s.settings(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	start := req.StartTime.OnDate(req.Date, settings.Location())

	if rej := policy.CheckNotice(now, start, settings.MinNotice()); rej != nil {
		return nil, s.reject(rej)
	}
	if rej := policy.CheckAdvance(now, start, settings.MaxAdvance()); rej != nil {
		return nil, s.reject(rej)
	}

	if !req.SkipAvailability && !settings.AllowBookingOutsideAvailability {
		if rej, err := s.checkAvailability(ctx, req); err != nil {
			return nil, err
		} else if rej != nil {
			return nil, s.reject(rej)
		}
	}

	existing, err := s.store.ConfirmedBookingsByDate(ctx, req.Date)
	if err != nil {
		return nil, models.NewStoreError("load bookings", err)
	}
	candidate := &models.Booking{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Date:      timeutil.DateOnly(req.Date),
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		SlotID:    req.SlotID,
		Notes:     req.Notes,
	}
	for i := range existing {
		if candidate.OverlapsWith(&existing[i]) {
			return nil, s.reject(models.NewRejection(models.ReasonOverlap,
				"time overlaps with an existing booking"))
		}
	}

	// The store re-checks overlap inside its write transaction; losing that
	// race after the read-phase check passed is a concurrency conflict, not
	// a plain overlap.
	if err := s.store.AdmitBooking(ctx, candidate); err != nil {
		switch {
		case errors.Is(err, database.ErrBookingConflict), errors.Is(err, database.ErrSlotTaken):
			return nil, s.reject(models.NewRejection(models.ReasonConflict,
				"booking lost a concurrent admission race"))
		default:
			return nil, models.NewStoreError("admit booking", err)
		}
	}

	metrics.IncBookingCreated()
	s.logger.Info().
		Str("booking_id", candidate.ID).
		Str("user_id", candidate.UserID).
		Str("date", timeutil.FormatDate(candidate.Date)).
		Str("window", fmt.Sprintf("%s-%s", candidate.StartTime, candidate.EndTime)).
		Msg("booking admitted")
	if s.bus != nil {
		s.bus.Publish(events.TypeBookingCreated, candidate)
	}
	return candidate, nil
}

// CancelBooking transitions a confirmed booking to cancelled. Non-admin
// requesters must own the booking and satisfy the cancellation notice;
// the global allow_cancellation gate binds everyone, admins included.
func (s *Service) CancelBooking(ctx context.Context, id, requester string, isAdmin bool) error {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return models.NewStoreError("get booking", err)
	}
	if b == nil || b.Status != models.StatusConfirmed {
		return s.reject(models.NewRejection(models.ReasonNotFound,
			"no confirmed booking with this id"))
	}

	if !isAdmin && b.UserID != requester {
		return s.reject(models.NewRejection(models.ReasonForbidden,
			"booking belongs to another user"))
	}

	settings, err := s.settings(ctx)
	if err != nil {
		return err
	}
	if !settings.AllowCancellation {
		return s.reject(models.NewRejection(models.ReasonCancellationDisabled,
			"cancellation is disabled by policy"))
	}
	if !isAdmin {
		start := b.StartsAt(settings.Location())
		if rej := policy.CheckCancellationWindow(s.now(), start, settings.CancellationNotice()); rej != nil {
			return s.reject(rej)
		}
	}

	ok, err := s.store.MarkCancelled(ctx, id, s.now().UTC())
	if err != nil {
		return models.NewStoreError("cancel booking", err)
	}
	if !ok {
		// Someone else completed the transition between our read and write.
		return s.reject(models.NewRejection(models.ReasonNotFound,
			"booking is no longer confirmed"))
	}

	metrics.IncBookingCancelled()
	s.logger.Info().Str("booking_id", id).Str("requester", requester).Bool("admin", isAdmin).Msg("booking cancelled")
	if s.bus != nil {
		b.Status = models.StatusCancelled
		s.bus.Publish(events.TypeBookingCancelled, b)
	}
	return nil
}

// ListBookings returns bookings matching the filter, newest first.
func (s *Service) ListBookings(ctx context.Context, f models.BookingFilter) ([]models.Booking, error) {
	bookings, err := s.store.ListBookings(ctx, f)
	if err != nil {
		return nil, models.NewStoreError("list bookings", err)
	}
	return bookings, nil
}

// Availability resolves the effective open/closed state for each date in
// [from, to].
func (s *Service) Availability(ctx context.Context, from, to time.Time) ([]models.DayAvailability, error) {
	template, err := s.store.GetWeeklyHours(ctx)
	if err != nil {
		return nil, models.NewStoreError("get weekly hours", err)
	}
	overrides, err := s.store.ListOverrides(ctx, &from, &to)
	if err != nil {
		return nil, models.NewStoreError("list overrides", err)
	}
	return availability.ResolveRange(from, to, template, overrides), nil
}

func (s *Service) checkAvailability(ctx context.Context, req CreateRequest) (*models.Rejection, error) {
	template, err := s.store.GetWeeklyHours(ctx)
	if err != nil {
		return nil, models.NewStoreError("get weekly hours", err)
	}
	override, err := s.store.GetOverrideByDate(ctx, req.Date)
	if err != nil {
		return nil, models.NewStoreError("get override", err)
	}
	var overrides []models.DateOverride
	if override != nil {
		overrides = []models.DateOverride{*override}
	}

	day := availability.ResolveDay(req.Date, template, overrides)
	if !day.Available {
		return models.NewRejection(models.ReasonOutsideAvailability,
			"no availability on this date"), nil
	}
	if day.StartTime != nil && day.EndTime != nil {
		if rej := policy.CheckWithinAvailability(req.StartTime, req.EndTime, *day.StartTime, *day.EndTime); rej != nil {
			return rej, nil
		}
	}
	return nil, nil
}

func (s *Service) settings(ctx context.Context) (*models.CalendarSettings, error) {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, models.NewStoreError("get settings", err)
	}
	if settings == nil {
		settings = models.DefaultSettings()
	}
	return settings, nil
}

func (s *Service) reject(rej *models.Rejection) error {
	metrics.IncBookingRejected(string(rej.Reason))
	s.logger.Debug().Str("reason", string(rej.Reason)).Str("detail", rej.Detail).Msg("request rejected")
	return rej
}
