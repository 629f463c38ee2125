// Package sheets mirrors the booking ledger into a Google Spreadsheet for
// the administrators who live in Sheets rather than in the API.
package sheets

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"zapisnik/internal/events"
	"zapisnik/internal/models"
)

var headerRow = []interface{}{
	"ID", "User", "Date", "Start", "End", "Status", "Slot", "Notes", "Created",
}

// SheetsService pushes booking rows to a single sheet. It keeps a cache of
// booking ID to row number so updates rewrite rows in place instead of
// re-reading the sheet on every change.
type SheetsService struct {
	srv           *sheets.Service
	spreadsheetID string
	sheetName     string
	logger        *zerolog.Logger

	cacheMu  sync.RWMutex
	rowCache map[string]int
}

// New authorizes against the Sheets API with a service account key file.
func New(ctx context.Context, credentialsFile, spreadsheetID, sheetName string, logger *zerolog.Logger) (*SheetsService, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read sheets credentials: %w", err)
	}
	conf, err := google.JWTConfigFromJSON(data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse sheets credentials: %w", err)
	}
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	if sheetName == "" {
		sheetName = "Bookings"
	}
	return &SheetsService{
		srv:           srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger,
		rowCache:      make(map[string]int),
	}, nil
}

// Attach subscribes the service to booking lifecycle events on bus. Handlers
// run on the publisher's goroutine; sync failures are logged, never returned
// to the booking path.
func (s *SheetsService) Attach(bus *events.EventBus) {
	handler := func(event events.Event) {
		b, ok := event.Payload.(*models.Booking)
		if !ok {
			return
		}
		if err := s.SyncBooking(context.Background(), b); err != nil {
			s.logger.Warn().Err(err).Str("booking_id", b.ID).Msg("sheets sync failed")
		}
	}
	bus.Subscribe(events.TypeBookingCreated, handler)
	bus.Subscribe(events.TypeBookingCancelled, handler)
}

// SyncBooking writes the booking's row, updating in place when the row is
// known and appending otherwise.
func (s *SheetsService) SyncBooking(ctx context.Context, b *models.Booking) error {
	values := &sheets.ValueRange{Values: [][]interface{}{bookingRowValues(b)}}

	if row, ok := s.getCachedRow(b.ID); ok {
		rangeRef := fmt.Sprintf("%s!A%d", s.sheetName, row)
		_, err := s.srv.Spreadsheets.Values.Update(s.spreadsheetID, rangeRef, values).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("update row %d: %w", row, err)
		}
		return nil
	}

	resp, err := s.srv.Spreadsheets.Values.Append(s.spreadsheetID, s.sheetName+"!A1", values).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	if resp.Updates != nil {
		if row, ok := rowFromRange(resp.Updates.UpdatedRange); ok {
			s.setCachedRow(b.ID, row)
		}
	}
	return nil
}

// SyncAll rewrites the sheet from scratch: header plus one row per confirmed
// booking. Used for periodic reconciliation.
func (s *SheetsService) SyncAll(ctx context.Context, bookings []models.Booking) error {
	rows := [][]interface{}{headerRow}
	active := s.filterActiveBookings(bookings)
	for i := range active {
		rows = append(rows, bookingRowValues(&active[i]))
	}

	clearRange := s.sheetName + "!A1:Z"
	if _, err := s.srv.Spreadsheets.Values.Clear(s.spreadsheetID, clearRange, &sheets.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear sheet: %w", err)
	}
	_, err := s.srv.Spreadsheets.Values.Update(s.spreadsheetID, s.sheetName+"!A1",
		&sheets.ValueRange{Values: rows}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("rewrite sheet: %w", err)
	}

	s.ClearCache()
	for i := range active {
		s.setCachedRow(active[i].ID, i+2)
	}
	return nil
}

func (s *SheetsService) filterActiveBookings(bookings []models.Booking) []models.Booking {
	active := make([]models.Booking, 0, len(bookings))
	for _, b := range bookings {
		if b.Status != models.StatusCancelled {
			active = append(active, b)
		}
	}
	return active
}

func bookingRowValues(b *models.Booking) []interface{} {
	slotID := ""
	if b.SlotID != nil {
		slotID = *b.SlotID
	}
	return []interface{}{
		b.ID,
		b.UserID,
		b.Date.Format("2006-01-02"),
		b.StartTime.String(),
		b.EndTime.String(),
		string(b.Status),
		slotID,
		b.Notes,
		b.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

// rowFromRange extracts the first row number from an A1 range like
// "Bookings!A5:I5".
func rowFromRange(a1 string) (int, bool) {
	_, cells, found := strings.Cut(a1, "!")
	if !found {
		return 0, false
	}
	start, _, _ := strings.Cut(cells, ":")
	digits := strings.TrimLeft(start, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	row, err := strconv.Atoi(digits)
	if err != nil || row < 1 {
		return 0, false
	}
	return row, true
}

func (s *SheetsService) getCachedRow(bookingID string) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[bookingID]
	return row, ok
}

func (s *SheetsService) setCachedRow(bookingID string, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[bookingID] = row
}

func (s *SheetsService) deleteCachedRow(bookingID string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	delete(s.rowCache, bookingID)
}

// ClearCache drops the booking-to-row mapping.
func (s *SheetsService) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[string]int)
}
