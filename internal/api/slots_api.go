package api

import (
	"net/http"
	"strings"
	"time"

	"zapisnik/internal/metrics"
	"zapisnik/internal/slots"
	"zapisnik/internal/timeutil"
)

// GenerateSlotsRequest is the body for POST /calendar/slots/generate.
type GenerateSlotsRequest struct {
	DateFrom            string `json:"date_from"`   // YYYY-MM-DD
	DateTo              string `json:"date_to"`     // YYYY-MM-DD
	DailyStart          string `json:"daily_start"` // HH:MM
	DailyEnd            string `json:"daily_end"`   // HH:MM
	SlotDurationMinutes *int   `json:"slot_duration_minutes,omitempty"`
	ExcludeWeekends     bool   `json:"exclude_weekends"`
}

// BookSlotRequest is the body for POST /calendar/slots/{id}/book.
type BookSlotRequest struct {
	Notes string `json:"notes,omitempty"`
}

// handleGenerateSlots materializes a batch of bookable slots.
// POST /calendar/slots/generate (admin)
func (s *HTTPServer) handleGenerateSlots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("slots_generate")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	adminID, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}

	var req GenerateSlotsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DateFrom == "" || req.DateTo == "" || req.DailyStart == "" || req.DailyEnd == "" {
		writeError(w, http.StatusBadRequest, "date_from, date_to, daily_start and daily_end are required")
		return
	}

	from, err := timeutil.ParseDate(req.DateFrom)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date_from format; expected YYYY-MM-DD")
		return
	}
	to, err := timeutil.ParseDate(req.DateTo)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date_to format; expected YYYY-MM-DD")
		return
	}
	dailyStart, err := timeutil.ParseWallTime(req.DailyStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid daily_start format; expected HH:MM")
		return
	}
	dailyEnd, err := timeutil.ParseWallTime(req.DailyEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid daily_end format; expected HH:MM")
		return
	}
	if !dailyStart.Before(dailyEnd) {
		writeError(w, http.StatusBadRequest, "daily_start must be before daily_end")
		return
	}

	params := slots.GenerateParams{
		DateFrom:        from,
		DateTo:          to,
		DailyStart:      dailyStart,
		DailyEnd:        dailyEnd,
		ExcludeWeekends: req.ExcludeWeekends,
		CreatedBy:       adminID,
	}
	if req.SlotDurationMinutes != nil {
		if *req.SlotDurationMinutes <= 0 {
			writeError(w, http.StatusBadRequest, "slot_duration_minutes must be positive")
			return
		}
		d := time.Duration(*req.SlotDurationMinutes) * time.Minute
		params.SlotDuration = &d
	}

	generated, err := s.slots.GenerateSlots(r.Context(), params)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"count": len(generated),
		"slots": generated,
	})
}

// handleListSlots returns slots with their derived booked state.
// GET /calendar/slots?date_from=YYYY-MM-DD&date_to=YYYY-MM-DD
func (s *HTTPServer) handleListSlots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("slots")

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if _, _, ok := s.identity(w, r); !ok {
		return
	}

	fromStr := r.URL.Query().Get("date_from")
	toStr := r.URL.Query().Get("date_to")
	if fromStr == "" || toStr == "" {
		writeError(w, http.StatusBadRequest, "date_from and date_to are required")
		return
	}
	from, err := timeutil.ParseDate(fromStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date_from format; expected YYYY-MM-DD")
		return
	}
	to, err := timeutil.ParseDate(toStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date_to format; expected YYYY-MM-DD")
		return
	}

	views, err := s.slots.ListSlots(r.Context(), from, to)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": views})
}

// handleSlotByPath books a slot.
// POST /calendar/slots/{id}/book
func (s *HTTPServer) handleSlotByPath(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("slot_book")

	rest := strings.TrimPrefix(r.URL.Path, "/calendar/slots/")
	slotID, action, found := strings.Cut(rest, "/")
	if !found || action != "book" || slotID == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}

	var req BookSlotRequest
	if r.ContentLength > 0 && !decodeJSON(w, r, &req) {
		return
	}

	created, err := s.slots.BookSlot(r.Context(), slotID, userID, req.Notes)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}
