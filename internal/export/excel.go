// Package export renders booking listings as Excel workbooks for the admin
// endpoints.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"zapisnik/internal/models"
)

const sheetName = "Bookings"

var headerColumns = []string{
	"ID", "User", "Date", "Start", "End", "Status", "Slot ID", "Notes", "Created", "Cancelled",
}

// WriteBookings renders bookings as an xlsx workbook into w.
func WriteBookings(w io.Writer, bookings []models.Booking) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", sheetName)
	if err := writeHeader(f); err != nil {
		return err
	}

	for i, b := range bookings {
		if err := writeRow(f, i+2, &b); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeHeader(f *excelize.File) error {
	for i, col := range headerColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, col); err != nil {
			return err
		}
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, 1)
		endCell, _ := excelize.CoordinatesToCellName(len(headerColumns), 1)
		_ = f.SetCellStyle(sheetName, startCell, endCell, style)
	}
	return nil
}

func writeRow(f *excelize.File, row int, b *models.Booking) error {
	slotID := ""
	if b.SlotID != nil {
		slotID = *b.SlotID
	}
	cancelled := ""
	if b.CancelledAt != nil {
		cancelled = b.CancelledAt.Format("2006-01-02 15:04")
	}
	values := []interface{}{
		b.ID,
		b.UserID,
		b.Date.Format("2006-01-02"),
		b.StartTime.String(),
		b.EndTime.String(),
		string(b.Status),
		slotID,
		b.Notes,
		b.CreatedAt.Format("2006-01-02 15:04"),
		cancelled,
	}
	for i, val := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, val); err != nil {
			return err
		}
	}
	return nil
}
