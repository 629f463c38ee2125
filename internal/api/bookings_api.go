package api

import (
	"net/http"
	"strings"
	"time"

	"zapisnik/internal/booking"
	"zapisnik/internal/export"
	"zapisnik/internal/metrics"
	"zapisnik/internal/models"
	"zapisnik/internal/timeutil"
)

// BookingRequest is the body for POST /calendar/bookings.
type BookingRequest struct {
	Date      string `json:"date"`       // YYYY-MM-DD
	StartTime string `json:"start_time"` // HH:MM
	EndTime   string `json:"end_time"`   // HH:MM
	Notes     string `json:"notes,omitempty"`
}

// handleBookings creates bookings and serves the admin listing.
// POST /calendar/bookings, GET /calendar/bookings (admin)
func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings")

	switch r.Method {
	case http.MethodPost:
		s.createBooking(w, r)
	case http.MethodGet:
		if _, ok := s.requireAdmin(w, r); !ok {
			return
		}
		filter, ok := s.bookingFilter(w, r, "")
		if !ok {
			return
		}
		bookings, err := s.bookings.ListBookings(r.Context(), filter)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) createBooking(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}

	var req BookingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Date == "" || req.StartTime == "" || req.EndTime == "" {
		writeError(w, http.StatusBadRequest, "date, start_time and end_time are required")
		return
	}

	date, err := timeutil.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}
	start, err := timeutil.ParseWallTime(req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_time format; expected HH:MM")
		return
	}
	end, err := timeutil.ParseWallTime(req.EndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_time format; expected HH:MM")
		return
	}

	created, err := s.bookings.CreateBooking(r.Context(), booking.CreateRequest{
		UserID:    userID,
		Date:      date,
		StartTime: start,
		EndTime:   end,
		Notes:     req.Notes,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleBookingByPath routes the sub-paths under /calendar/bookings/:
// GET /calendar/bookings/mine, GET /calendar/bookings/export (admin),
// DELETE /calendar/bookings/{id}.
func (s *HTTPServer) handleBookingByPath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/calendar/bookings/")
	switch {
	case rest == "mine":
		s.listMyBookings(w, r)
	case rest == "export":
		s.exportBookings(w, r)
	case rest != "" && !strings.Contains(rest, "/"):
		s.cancelBooking(w, r, rest)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) listMyBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings_mine")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}
	filter, ok := s.bookingFilter(w, r, userID)
	if !ok {
		return
	}
	bookings, err := s.bookings.ListBookings(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) cancelBooking(w http.ResponseWriter, r *http.Request, id string) {
	metrics.IncHTTP("booking_cancel")
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID, isAdmin, ok := s.identity(w, r)
	if !ok {
		return
	}
	if err := s.bookings.CancelBooking(r.Context(), id, userID, isAdmin); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": id})
}

func (s *HTTPServer) exportBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings_export")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	filter, ok := s.bookingFilter(w, r, "")
	if !ok {
		return
	}
	bookings, err := s.bookings.ListBookings(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	filename := "bookings-" + time.Now().Format("2006-01-02") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := export.WriteBookings(w, bookings); err != nil {
		s.log.Error().Err(err).Msg("bookings export failed")
	}
}

// bookingFilter builds a listing filter from query params. userID, when not
// empty, pins the filter to that user regardless of the query.
func (s *HTTPServer) bookingFilter(w http.ResponseWriter, r *http.Request, userID string) (models.BookingFilter, bool) {
	filter := models.BookingFilter{UserID: userID}
	if userID == "" {
		filter.UserID = r.URL.Query().Get("user_id")
	}

	if v := r.URL.Query().Get("status"); v != "" {
		status := models.BookingStatus(v)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status; expected confirmed or cancelled")
			return models.BookingFilter{}, false
		}
		filter.Status = status
	}

	from, to, ok := s.optionalDateRange(w, r)
	if !ok {
		return models.BookingFilter{}, false
	}
	filter.DateFrom = from
	filter.DateTo = to
	return filter, true
}
