// Package api is the HTTP boundary of the calendar service. Identity comes
// from the X-User-ID / X-User-Admin headers set by the fronting auth proxy;
// this layer never authenticates, only discriminates.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"zapisnik/internal/booking"
	"zapisnik/internal/cache"
	"zapisnik/internal/models"
	"zapisnik/internal/slots"
)

const (
	headerUserID = "X-User-ID"
	headerAdmin  = "X-User-Admin"
)

// BookingService is the time-range booking surface the handlers call.
type BookingService interface {
	CreateBooking(ctx context.Context, req booking.CreateRequest) (*models.Booking, error)
	CancelBooking(ctx context.Context, id, requester string, isAdmin bool) error
	ListBookings(ctx context.Context, f models.BookingFilter) ([]models.Booking, error)
	Availability(ctx context.Context, from, to time.Time) ([]models.DayAvailability, error)
}

// SlotService is the fixed-slot surface.
type SlotService interface {
	GenerateSlots(ctx context.Context, params slots.GenerateParams) ([]models.Slot, error)
	ListSlots(ctx context.Context, from, to time.Time) ([]slots.SlotView, error)
	BookSlot(ctx context.Context, slotID, owner, notes string) (*models.Booking, error)
}

// ScheduleStore is the admin-side schedule configuration surface.
type ScheduleStore interface {
	GetSettings(ctx context.Context) (*models.CalendarSettings, error)
	UpsertSettings(ctx context.Context, s *models.CalendarSettings) error
	GetWeeklyHours(ctx context.Context) ([]models.WeekdayHours, error)
	ReplaceWeeklyHours(ctx context.Context, template []models.WeekdayHours) error
	ListOverrides(ctx context.Context, from, to *time.Time) ([]models.DateOverride, error)
	UpsertOverride(ctx context.Context, o *models.DateOverride) error
	DeleteOverride(ctx context.Context, date time.Time) (bool, error)
}

// Options tunes the HTTP server.
type Options struct {
	Port          int
	MaxRangeDays  int
	RatePerSecond float64
	RateBurst     int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// HTTPServer serves the calendar API.
type HTTPServer struct {
	server   *http.Server
	log      zerolog.Logger
	bookings BookingService
	slots    SlotService
	schedule ScheduleStore
	cache    *cache.AvailabilityCache

	maxRangeDays int

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
	ratePer   rate.Limit
	rateBurst int
}

// NewHTTPServer wires the handlers. availCache may be nil when Redis is off.
func NewHTTPServer(
	bookings BookingService,
	slotSvc SlotService,
	schedule ScheduleStore,
	availCache *cache.AvailabilityCache,
	opts Options,
	logger zerolog.Logger,
) *HTTPServer {
	if opts.MaxRangeDays <= 0 {
		opts.MaxRangeDays = 90
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 20
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 40
	}

	s := &HTTPServer{
		log:          logger,
		bookings:     bookings,
		slots:        slotSvc,
		schedule:     schedule,
		cache:        availCache,
		maxRangeDays: opts.MaxRangeDays,
		limiters:     make(map[string]*rate.Limiter),
		ratePer:      rate.Limit(opts.RatePerSecond),
		rateBurst:    opts.RateBurst,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/calendar/settings", s.handleSettings)
	mux.HandleFunc("/calendar/availability", s.handleWeeklyAvailability)
	mux.HandleFunc("/calendar/availability/overrides", s.handleOverrides)
	mux.HandleFunc("/calendar/availability/overrides/", s.handleOverrideByDate)
	mux.HandleFunc("/calendar/availability/public", s.handlePublicAvailability)
	mux.HandleFunc("/calendar/bookings", s.handleBookings)
	mux.HandleFunc("/calendar/bookings/", s.handleBookingByPath)
	mux.HandleFunc("/calendar/slots", s.handleListSlots)
	mux.HandleFunc("/calendar/slots/generate", s.handleGenerateSlots)
	mux.HandleFunc("/calendar/slots/", s.handleSlotByPath)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      s.rateLimit(mux),
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s
}

// Start blocks serving until the listener closes.
func (s *HTTPServer) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.clientLimiter(r).Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientLimiter keys limiters by user identity, falling back to the remote
// host for unauthenticated traffic.
func (s *HTTPServer) clientLimiter(r *http.Request) *rate.Limiter {
	key := r.Header.Get(headerUserID)
	if key == "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			key = host
		} else {
			key = r.RemoteAddr
		}
	}

	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	lim, ok := s.limiters[key]
	if !ok {
		lim = rate.NewLimiter(s.ratePer, s.rateBurst)
		s.limiters[key] = lim
	}
	return lim
}

// identity extracts the caller from the proxy headers. ok is false when no
// user is present; the response is already written in that case.
func (s *HTTPServer) identity(w http.ResponseWriter, r *http.Request) (userID string, isAdmin bool, ok bool) {
	userID = r.Header.Get(headerUserID)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing "+headerUserID+" header")
		return "", false, false
	}
	return userID, r.Header.Get(headerAdmin) == "true", true
}

// requireAdmin is identity plus the admin gate.
func (s *HTTPServer) requireAdmin(w http.ResponseWriter, r *http.Request) (userID string, ok bool) {
	userID, isAdmin, ok := s.identity(w, r)
	if !ok {
		return "", false
	}
	if !isAdmin {
		writeError(w, http.StatusForbidden, "admin access required")
		return "", false
	}
	return userID, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeServiceError maps domain errors to responses: rejections carry their
// reason code, store failures map to 503, anything else is a 500.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	if rej := models.AsRejection(err); rej != nil {
		writeJSON(w, statusForReason(rej.Reason), map[string]string{
			"error":  rej.Error(),
			"reason": string(rej.Reason),
		})
		return
	}
	var storeErr *models.StoreError
	if errors.As(err, &storeErr) {
		s.log.Error().Err(err).Msg("store failure")
		writeError(w, http.StatusServiceUnavailable, "storage temporarily unavailable")
		return
	}
	s.log.Error().Err(err).Msg("unhandled error")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func statusForReason(reason models.RejectReason) int {
	switch reason {
	case models.ReasonMalformedInterval:
		return http.StatusBadRequest
	case models.ReasonNotFound:
		return http.StatusNotFound
	case models.ReasonForbidden:
		return http.StatusForbidden
	case models.ReasonOverlap, models.ReasonConflict:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
