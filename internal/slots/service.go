package slots

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"zapisnik/internal/database"
	"zapisnik/internal/events"
	"zapisnik/internal/metrics"
	"zapisnik/internal/models"
	"zapisnik/internal/policy"
	"zapisnik/internal/timeutil"
)

// Store is the durable-store surface the slot service needs.
type Store interface {
	GetSettings(ctx context.Context) (*models.CalendarSettings, error)
	CreateSlots(ctx context.Context, slots []models.Slot) error
	GetSlot(ctx context.Context, id string) (*models.Slot, error)
	ListSlots(ctx context.Context, from, to time.Time) ([]models.Slot, error)
	ConfirmedBookingForSlot(ctx context.Context, slotID string) (*models.Booking, error)
	AdmitBooking(ctx context.Context, b *models.Booking) error
}

// EventPublisher notifies subscribers of slot transitions.
type EventPublisher interface {
	Publish(eventType string, payload interface{})
}

// Service manages slot generation and fixed-slot booking.
type Service struct {
	store  Store
	bus    EventPublisher
	logger *zerolog.Logger
	now    func() time.Time
}

// NewService creates the slot service.
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

// GenerateSlots materializes and persists a slot batch. When the params omit
// a duration, the policy's slot_duration_minutes applies; when that is also
// unset, each day gets a single whole-window slot.
func (s *Service) GenerateSlots(ctx context.Context, params GenerateParams) ([]models.Slot, error) {
	settings, err := s.settings(ctx)
	if err != nil {
		return nil, err
	}

	if params.SlotDuration == nil && settings.SlotDurationMinutes != nil {
		d := time.Duration(*settings.SlotDurationMinutes) * time.Minute
		params.SlotDuration = &d
	}

	generated := Generate(params, settings.Location())
	if err := s.store.CreateSlots(ctx, generated); err != nil {
		return nil, models.NewStoreError("create slots", err)
	}

	metrics.AddSlotsGenerated(len(generated))
	s.logger.Info().
		Int("count", len(generated)).
		Str("from", timeutil.FormatDate(params.DateFrom)).
		Str("to", timeutil.FormatDate(params.DateTo)).
		Msg("slots generated")
	if s.bus != nil && len(generated) > 0 {
		s.bus.Publish(events.TypeSlotsGenerated, generated)
	}
	return generated, nil
}

// SlotView is a slot with its derived booked state.
type SlotView struct {
	models.Slot
	Booked bool `json:"booked"`
}

// ListSlots returns slots in [from, to] with the booked state recomputed
// from the ledger, never from the stored flag.
func (s *Service) ListSlots(ctx context.Context, from, to time.Time) ([]SlotView, error) {
	slotList, err := s.store.ListSlots(ctx, from, to)
	if err != nil {
		return nil, models.NewStoreError("list slots", err)
	}

	views := make([]SlotView, 0, len(slotList))
	for _, slot := range slotList {
		b, err := s.store.ConfirmedBookingForSlot(ctx, slot.ID)
		if err != nil {
			return nil, models.NewStoreError("check slot booking", err)
		}
		views = append(views, SlotView{Slot: slot, Booked: b != nil})
	}
	return views, nil
}

// BookSlot books a whole slot for owner. The slot must exist, be switched
// on, and carry no confirmed booking; notice and advance policy apply
// against the slot's own start time. The admission insert is guarded by the
// store's one-confirmed-booking-per-slot constraint, so two concurrent
// attempts cannot both win.
func (s *Service) BookSlot(ctx context.Context, slotID, owner, notes string) (*models.Booking, error) {
	slot, err := s.store.GetSlot(ctx, slotID)
	if err != nil {
		return nil, models.NewStoreError("get slot", err)
	}
	if slot == nil {
		return nil, s.reject(models.NewRejection(models.ReasonNotFound, "slot does not exist"))
	}
	if !slot.IsAvailable {
		return nil, s.reject(models.NewRejection(models.ReasonOutsideAvailability,
			"slot is switched off"))
	}

	existing, err := s.store.ConfirmedBookingForSlot(ctx, slotID)
	if err != nil {
		return nil, models.NewStoreError("check slot booking", err)
	}
	if existing != nil {
		return nil, s.reject(models.NewRejection(models.ReasonOverlap, "slot is already booked"))
	}

	settings, err := s.settings(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if rej := policy.CheckNotice(now, slot.StartTime, settings.MinNotice()); rej != nil {
		return nil, s.reject(rej)
	}
	if rej := policy.CheckAdvance(now, slot.StartTime, settings.MaxAdvance()); rej != nil {
		return nil, s.reject(rej)
	}

	loc := settings.Location()
	booking := &models.Booking{
		ID:        uuid.NewString(),
		UserID:    owner,
		Date:      timeutil.DateOnly(slot.Date),
		StartTime: wallClock(slot.StartTime.In(loc)),
		EndTime:   wallClock(slot.EndTime.In(loc)),
		SlotID:    &slot.ID,
		Notes:     notes,
	}
	if err := s.store.AdmitBooking(ctx, booking); err != nil {
		switch {
		case errors.Is(err, database.ErrSlotTaken), errors.Is(err, database.ErrBookingConflict):
			return nil, s.reject(models.NewRejection(models.ReasonConflict,
				"slot was booked concurrently"))
		default:
			return nil, models.NewStoreError("admit slot booking", err)
		}
	}

	metrics.IncBookingCreated()
	s.logger.Info().Str("slot_id", slotID).Str("booking_id", booking.ID).Str("user_id", owner).Msg("slot booked")
	if s.bus != nil {
		s.bus.Publish(events.TypeBookingCreated, booking)
	}
	return booking, nil
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
	s.logger.Debug().Str("reason", string(rej.Reason)).Str("detail", rej.Detail).Msg("slot request rejected")
	return rej
}

func wallClock(t time.Time) timeutil.WallTime {
	return timeutil.WallTime{Hour: t.Hour(), Minute: t.Minute()}
}
