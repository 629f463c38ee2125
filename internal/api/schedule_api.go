package api

import (
	"net/http"
	"strings"
	"time"

	"zapisnik/internal/metrics"
	"zapisnik/internal/models"
	"zapisnik/internal/timeutil"
)

// SettingsRequest is the body for POST/PUT /calendar/settings. Every field is
// optional; absent fields keep their current value.
type SettingsRequest struct {
	SlotDurationMinutes             *int               `json:"slot_duration_minutes"`
	DefaultStartTime                *timeutil.WallTime `json:"default_start_time"`
	DefaultEndTime                  *timeutil.WallTime `json:"default_end_time"`
	Timezone                        *string            `json:"timezone"`
	MinBookingNoticeMinutes         *int               `json:"min_booking_notice_minutes"`
	MaxAdvanceBookingDays           *int               `json:"max_advance_booking_days"`
	AllowCancellation               *bool              `json:"allow_cancellation"`
	CancellationNoticeMinutes       *int               `json:"cancellation_notice_minutes"`
	AllowBookingOutsideAvailability *bool              `json:"allow_booking_outside_availability"`
}

// handleSettings serves the singleton booking policy.
// GET/POST/PUT /calendar/settings
func (s *HTTPServer) handleSettings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("settings")

	switch r.Method {
	case http.MethodGet:
		if _, ok := s.requireAdmin(w, r); !ok {
			return
		}
		settings, err := s.schedule.GetSettings(r.Context())
		if err != nil {
			s.writeServiceError(w, models.NewStoreError("get settings", err))
			return
		}
		if settings == nil {
			settings = models.DefaultSettings()
		}
		writeJSON(w, http.StatusOK, settings)

	case http.MethodPost, http.MethodPut:
		if _, ok := s.requireAdmin(w, r); !ok {
			return
		}
		var req SettingsRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		current, err := s.schedule.GetSettings(r.Context())
		if err != nil {
			s.writeServiceError(w, models.NewStoreError("get settings", err))
			return
		}
		if current == nil {
			current = models.DefaultSettings()
		}
		applySettings(current, &req)

		if !current.DefaultStartTime.Before(current.DefaultEndTime) {
			writeError(w, http.StatusBadRequest, "default_start_time must be before default_end_time")
			return
		}
		if _, err := time.LoadLocation(current.Timezone); err != nil {
			writeError(w, http.StatusBadRequest, "unknown timezone")
			return
		}

		if err := s.schedule.UpsertSettings(r.Context(), current); err != nil {
			s.writeServiceError(w, models.NewStoreError("upsert settings", err))
			return
		}
		s.cache.Invalidate(r.Context())
		s.log.Info().Str("timezone", current.Timezone).Msg("calendar settings updated")
		writeJSON(w, http.StatusOK, current)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func applySettings(dst *models.CalendarSettings, req *SettingsRequest) {
	if req.SlotDurationMinutes != nil {
		dst.SlotDurationMinutes = req.SlotDurationMinutes
	}
	if req.DefaultStartTime != nil {
		dst.DefaultStartTime = *req.DefaultStartTime
	}
	if req.DefaultEndTime != nil {
		dst.DefaultEndTime = *req.DefaultEndTime
	}
	if req.Timezone != nil {
		dst.Timezone = *req.Timezone
	}
	if req.MinBookingNoticeMinutes != nil {
		dst.MinBookingNoticeMinutes = req.MinBookingNoticeMinutes
	}
	if req.MaxAdvanceBookingDays != nil {
		dst.MaxAdvanceBookingDays = req.MaxAdvanceBookingDays
	}
	if req.AllowCancellation != nil {
		dst.AllowCancellation = *req.AllowCancellation
	}
	if req.CancellationNoticeMinutes != nil {
		dst.CancellationNoticeMinutes = req.CancellationNoticeMinutes
	}
	if req.AllowBookingOutsideAvailability != nil {
		dst.AllowBookingOutsideAvailability = *req.AllowBookingOutsideAvailability
	}
}

// WeekdayHoursRequest is one entry of the weekly template body.
type WeekdayHoursRequest struct {
	DayOfWeek int               `json:"day_of_week"`
	IsEnabled bool              `json:"is_enabled"`
	StartTime timeutil.WallTime `json:"start_time"`
	EndTime   timeutil.WallTime `json:"end_time"`
}

// handleWeeklyAvailability serves the 7-day template. The template is always
// read and replaced as a whole.
// GET/PUT /calendar/availability
func (s *HTTPServer) handleWeeklyAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("weekly_availability")

	switch r.Method {
	case http.MethodGet:
		if _, ok := s.requireAdmin(w, r); !ok {
			return
		}
		hours, err := s.schedule.GetWeeklyHours(r.Context())
		if err != nil {
			s.writeServiceError(w, models.NewStoreError("get weekly hours", err))
			return
		}
		writeJSON(w, http.StatusOK, hours)

	case http.MethodPut:
		if _, ok := s.requireAdmin(w, r); !ok {
			return
		}
		var req []WeekdayHoursRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if len(req) != 7 {
			writeError(w, http.StatusBadRequest, "weekly template requires exactly 7 entries")
			return
		}

		template := make([]models.WeekdayHours, 0, len(req))
		seen := make(map[int]bool)
		for _, entry := range req {
			if entry.DayOfWeek < 0 || entry.DayOfWeek > 6 || seen[entry.DayOfWeek] {
				writeError(w, http.StatusBadRequest, "day_of_week values must cover 0..6 exactly once")
				return
			}
			seen[entry.DayOfWeek] = true
			if entry.IsEnabled && !entry.StartTime.Before(entry.EndTime) {
				writeError(w, http.StatusBadRequest, "start_time must be before end_time on enabled days")
				return
			}
			template = append(template, models.WeekdayHours{
				DayOfWeek: entry.DayOfWeek,
				IsEnabled: entry.IsEnabled,
				StartTime: entry.StartTime,
				EndTime:   entry.EndTime,
			})
		}

		if err := s.schedule.ReplaceWeeklyHours(r.Context(), template); err != nil {
			s.writeServiceError(w, models.NewStoreError("replace weekly hours", err))
			return
		}
		s.cache.Invalidate(r.Context())
		s.log.Info().Msg("weekly availability replaced")
		writeJSON(w, http.StatusOK, template)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// OverrideRequest is the body for POST /calendar/availability/overrides.
type OverrideRequest struct {
	Date      string             `json:"date"`
	IsClosed  bool               `json:"is_closed"`
	StartTime *timeutil.WallTime `json:"start_time"`
	EndTime   *timeutil.WallTime `json:"end_time"`
	Notes     string             `json:"notes"`
}

// handleOverrides lists and upserts date overrides.
// GET/POST /calendar/availability/overrides
func (s *HTTPServer) handleOverrides(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("overrides")

	switch r.Method {
	case http.MethodGet:
		if _, ok := s.requireAdmin(w, r); !ok {
			return
		}
		from, to, ok := s.optionalDateRange(w, r)
		if !ok {
			return
		}
		overrides, err := s.schedule.ListOverrides(r.Context(), from, to)
		if err != nil {
			s.writeServiceError(w, models.NewStoreError("list overrides", err))
			return
		}
		writeJSON(w, http.StatusOK, overrides)

	case http.MethodPost:
		if _, ok := s.requireAdmin(w, r); !ok {
			return
		}
		var req OverrideRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		date, err := timeutil.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
			return
		}

		override := &models.DateOverride{
			Date:      date,
			IsClosed:  req.IsClosed,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
			Notes:     req.Notes,
		}
		if err := override.Validate(); err != nil {
			s.writeServiceError(w, err)
			return
		}

		if err := s.schedule.UpsertOverride(r.Context(), override); err != nil {
			s.writeServiceError(w, models.NewStoreError("upsert override", err))
			return
		}
		s.cache.Invalidate(r.Context())
		s.log.Info().Str("date", req.Date).Bool("closed", req.IsClosed).Msg("date override saved")
		writeJSON(w, http.StatusOK, override)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleOverrideByDate removes one override.
// DELETE /calendar/availability/overrides/{date}
func (s *HTTPServer) handleOverrideByDate(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("override_delete")

	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	dateStr := strings.TrimPrefix(r.URL.Path, "/calendar/availability/overrides/")
	date, err := timeutil.ParseDate(dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	removed, err := s.schedule.DeleteOverride(r.Context(), date)
	if err != nil {
		s.writeServiceError(w, models.NewStoreError("delete override", err))
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "no override for that date")
		return
	}
	s.cache.Invalidate(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"deleted": dateStr})
}

// optionalDateRange parses optional date_from/date_to query params.
func (s *HTTPServer) optionalDateRange(w http.ResponseWriter, r *http.Request) (from, to *time.Time, ok bool) {
	if v := r.URL.Query().Get("date_from"); v != "" {
		d, err := timeutil.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date_from format; expected YYYY-MM-DD")
			return nil, nil, false
		}
		from = &d
	}
	if v := r.URL.Query().Get("date_to"); v != "" {
		d, err := timeutil.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date_to format; expected YYYY-MM-DD")
			return nil, nil, false
		}
		to = &d
	}
	return from, to, true
}
