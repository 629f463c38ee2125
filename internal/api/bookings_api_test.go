package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"zapisnik/internal/models"
	"zapisnik/internal/timeutil"
)

func TestCreateBookingEndpoint(t *testing.T) {
	validBody := `{"date": "2026-03-16", "start_time": "09:00", "end_time": "09:30", "notes": "checkup"}`

	t.Run("requires identity", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(http.MethodPost, "/calendar/bookings", strings.NewReader(validBody), nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("created", func(t *testing.T) {
		env := newTestEnv(t)
		env.bookings.created = &models.Booking{
			ID:        "b-1",
			UserID:    "user-1",
			Date:      time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
			StartTime: timeutil.MustWallTime("09:00"),
			EndTime:   timeutil.MustWallTime("09:30"),
			Status:    models.StatusConfirmed,
		}

		w := env.do(http.MethodPost, "/calendar/bookings", strings.NewReader(validBody), asUser("user-1"))
		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d: %s", w.Code, w.Body.String())
		}
		if env.bookings.lastCreate.UserID != "user-1" {
			t.Errorf("user_id = %q", env.bookings.lastCreate.UserID)
		}
		if env.bookings.lastCreate.StartTime.String() != "09:00" {
			t.Errorf("start = %q", env.bookings.lastCreate.StartTime)
		}
		if env.bookings.lastCreate.SlotID != nil || env.bookings.lastCreate.SkipAvailability {
			t.Error("time-range requests must not set slot fields")
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(http.MethodPost, "/calendar/bookings",
			strings.NewReader(`{"date": "2026-03-16"}`), asUser("user-1"))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("bad wall time", func(t *testing.T) {
		env := newTestEnv(t)
		body := `{"date": "2026-03-16", "start_time": "9am", "end_time": "09:30"}`
		w := env.do(http.MethodPost, "/calendar/bookings", strings.NewReader(body), asUser("user-1"))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("rejection mapping", func(t *testing.T) {
		cases := []struct {
			reason models.RejectReason
			status int
		}{
			{models.ReasonMalformedInterval, http.StatusBadRequest},
			{models.ReasonNotice, http.StatusUnprocessableEntity},
			{models.ReasonAdvance, http.StatusUnprocessableEntity},
			{models.ReasonOutsideAvailability, http.StatusUnprocessableEntity},
			{models.ReasonOverlap, http.StatusConflict},
			{models.ReasonConflict, http.StatusConflict},
		}
		for _, tc := range cases {
			env := newTestEnv(t)
			env.bookings.createErr = models.NewRejection(tc.reason, "refused")
			w := env.do(http.MethodPost, "/calendar/bookings", strings.NewReader(validBody), asUser("user-1"))
			if w.Code != tc.status {
				t.Errorf("%s: status = %d, want %d", tc.reason, w.Code, tc.status)
			}
			var resp errorResponse
			_ = json.Unmarshal(w.Body.Bytes(), &resp)
			if resp.Reason != string(tc.reason) {
				t.Errorf("%s: reason = %q", tc.reason, resp.Reason)
			}
		}
	})

	t.Run("store failure maps to 503", func(t *testing.T) {
		env := newTestEnv(t)
		env.bookings.createErr = models.NewStoreError("admit booking", errTest)
		w := env.do(http.MethodPost, "/calendar/bookings", strings.NewReader(validBody), asUser("user-1"))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
		}
	})
}

var errTest = &testError{}

type testError struct{}

func (*testError) Error() string { return "boom" }

func TestListMyBookings(t *testing.T) {
	env := newTestEnv(t)
	env.bookings.listed = []models.Booking{{ID: "b-1", UserID: "user-1"}}

	w := env.do(http.MethodGet,
		"/calendar/bookings/mine?status=confirmed&user_id=someone-else", nil, asUser("user-1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	// The filter is pinned to the caller; the query's user_id is ignored.
	if env.bookings.lastFilter.UserID != "user-1" {
		t.Errorf("filter user = %q, want user-1", env.bookings.lastFilter.UserID)
	}
	if env.bookings.lastFilter.Status != models.StatusConfirmed {
		t.Errorf("filter status = %q", env.bookings.lastFilter.Status)
	}
}

func TestAdminBookingList(t *testing.T) {
	env := newTestEnv(t)

	t.Run("requires admin", func(t *testing.T) {
		w := env.do(http.MethodGet, "/calendar/bookings", nil, asUser("user-1"))
		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
		}
	})

	t.Run("filters pass through", func(t *testing.T) {
		w := env.do(http.MethodGet,
			"/calendar/bookings?user_id=user-2&status=cancelled&date_from=2026-03-01", nil, asAdmin("admin-1"))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", w.Code, w.Body.String())
		}
		f := env.bookings.lastFilter
		if f.UserID != "user-2" || f.Status != models.StatusCancelled || f.DateFrom == nil {
			t.Errorf("filter = %+v", f)
		}
	})

	t.Run("unknown status", func(t *testing.T) {
		w := env.do(http.MethodGet, "/calendar/bookings?status=pending", nil, asAdmin("admin-1"))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

func TestCancelBookingEndpoint(t *testing.T) {
	t.Run("owner cancel", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(http.MethodDelete, "/calendar/bookings/b-1", nil, asUser("user-1"))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", w.Code, w.Body.String())
		}
		if env.bookings.lastCancel.id != "b-1" || env.bookings.lastCancel.requester != "user-1" {
			t.Errorf("cancel call = %+v", env.bookings.lastCancel)
		}
		if env.bookings.lastCancel.isAdmin {
			t.Error("plain user must not carry the admin flag")
		}
	})

	t.Run("admin flag forwarded", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(http.MethodDelete, "/calendar/bookings/b-1", nil, asAdmin("admin-1"))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if !env.bookings.lastCancel.isAdmin {
			t.Error("admin flag not forwarded")
		}
	})

	t.Run("forbidden for foreign booking", func(t *testing.T) {
		env := newTestEnv(t)
		env.bookings.cancelErr = models.NewRejection(models.ReasonForbidden, "not the owner")
		w := env.do(http.MethodDelete, "/calendar/bookings/b-1", nil, asUser("user-2"))
		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
		}
	})

	t.Run("cancelled booking is gone", func(t *testing.T) {
		env := newTestEnv(t)
		env.bookings.cancelErr = models.NewRejection(models.ReasonNotFound, "no confirmed booking")
		w := env.do(http.MethodDelete, "/calendar/bookings/b-1", nil, asUser("user-1"))
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

func TestExportBookings(t *testing.T) {
	env := newTestEnv(t)
	env.bookings.listed = []models.Booking{{
		ID:        "b-1",
		UserID:    "user-1",
		Date:      time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
		StartTime: timeutil.MustWallTime("09:00"),
		EndTime:   timeutil.MustWallTime("09:30"),
		Status:    models.StatusConfirmed,
	}}

	t.Run("requires admin", func(t *testing.T) {
		w := env.do(http.MethodGet, "/calendar/bookings/export", nil, asUser("user-1"))
		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
		}
	})

	t.Run("serves workbook", func(t *testing.T) {
		w := env.do(http.MethodGet, "/calendar/bookings/export", nil, asAdmin("admin-1"))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		ct := w.Header().Get("Content-Type")
		if ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
			t.Errorf("content type = %q", ct)
		}
		if w.Body.Len() == 0 {
			t.Error("empty workbook body")
		}
	})
}
