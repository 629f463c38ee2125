package api

import (
	"net/http"

	"zapisnik/internal/metrics"
	"zapisnik/internal/timeutil"
)

// PublicAvailabilityResponse is the response for the public availability view.
type PublicAvailabilityResponse struct {
	Days   []dayAvailabilityView `json:"days"`
	Period struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"period"`
}

type dayAvailabilityView struct {
	Date      string `json:"date"`
	Available bool   `json:"available"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
	Source    string `json:"source"`
}

// handlePublicAvailability resolves the open window for each date in the
// requested range, serving from the cache when warm.
// GET /calendar/availability/public?date_from=YYYY-MM-DD&date_to=YYYY-MM-DD
func (s *HTTPServer) handlePublicAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("public_availability")

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
	if from.After(to) {
		writeError(w, http.StatusBadRequest, "date_from must be before or equal to date_to")
		return
	}
	if days := int(to.Sub(from).Hours() / 24); days > s.maxRangeDays {
		writeError(w, http.StatusBadRequest, "date range exceeds maximum of 90 days")
		return
	}

	days, cached := s.cache.GetRange(r.Context(), from, to)
	if !cached {
		days, err = s.bookings.Availability(r.Context(), from, to)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.cache.PutRange(r.Context(), from, to, days)
	}

	resp := PublicAvailabilityResponse{Days: make([]dayAvailabilityView, 0, len(days))}
	resp.Period.Start = fromStr
	resp.Period.End = toStr
	for _, day := range days {
		view := dayAvailabilityView{
			Date:      timeutil.FormatDate(day.Date),
			Available: day.Available,
			Source:    string(day.Source),
		}
		if day.StartTime != nil {
			view.StartTime = day.StartTime.String()
		}
		if day.EndTime != nil {
			view.EndTime = day.EndTime.String()
		}
		resp.Days = append(resp.Days, view)
	}
	writeJSON(w, http.StatusOK, resp)
}
