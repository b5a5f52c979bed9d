// Package export renders an employee's leaves as an iCalendar feed or an
// Excel workbook.
package export

import (
	"fmt"
	"io"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/warp/leave-engine/leave"
	"github.com/xuri/excelize/v2"
)

const productID = "-//warp//leave-engine//EN"

// SheetName is the worksheet WriteXLSX fills.
const SheetName = "Leaves"

// WriteICS writes one VEVENT per record. Requested leaves are TENTATIVE,
// approved ones CONFIRMED and closed ones CANCELLED.
func WriteICS(w io.Writer, calendarName string, records []leave.Record, stamp time.Time) error {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName(calendarName)

	for _, r := range records {
		ev := cal.AddEvent(r.ID + "@leave-engine")
		ev.SetDtStampTime(stamp)
		ev.SetCreatedTime(r.CreatedAt)
		ev.SetStartAt(r.Start)
		ev.SetEndAt(r.End)
		ev.SetSummary(summary(r))
		ev.SetDescription(fmt.Sprintf("%s days (%s hours), %s", r.TotalDays, r.TotalHours, r.Status()))
		ev.SetStatus(icsStatus(r.Status()))
	}

	_, err := io.WriteString(w, cal.Serialize())
	return err
}

func summary(r leave.Record) string {
	if r.Kind.IsSpecial() {
		return fmt.Sprintf("%s (%s)", r.Label, r.Kind.SpecialType())
	}
	return r.Label
}

func icsStatus(s leave.Status) ics.ObjectStatus {
	switch s {
	case leave.StatusApproved:
		return ics.ObjectStatusConfirmed
	case leave.StatusClosed:
		return ics.ObjectStatusCancelled
	default:
		return ics.ObjectStatusTentative
	}
}

var xlsxHeader = []string{"ID", "Label", "Kind", "Start", "End", "Days", "Hours", "Status", "Approver"}

var xlsxWidths = []struct {
	from, to string
	width    float64
}{
	{"A", "A", 38},
	{"B", "C", 22},
	{"D", "E", 18},
}

// WriteXLSX writes the records as rows of a single worksheet. Times are
// rendered in loc.
func WriteXLSX(w io.Writer, records []leave.Record, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	if err := setRow(f, 1, xlsxHeader); err != nil {
		return err
	}
	last, err := excelize.ColumnNumberToName(len(xlsxHeader))
	if err != nil {
		return fmt.Errorf("header range: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", last+"1", headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	for _, cw := range xlsxWidths {
		if err := f.SetColWidth(SheetName, cw.from, cw.to, cw.width); err != nil {
			return fmt.Errorf("column width %s: %w", cw.from, err)
		}
	}

	for i, r := range records {
		values := []any{
			r.ID,
			r.Label,
			r.Kind.String(),
			r.Start.In(loc).Format("2006-01-02 15:04"),
			r.End.In(loc).Format("2006-01-02 15:04"),
			r.TotalDays.InexactFloat64(),
			r.TotalHours.InexactFloat64(),
			string(r.Status()),
			r.ApproverID(),
		}
		if err := setRow(f, i+2, values); err != nil {
			return fmt.Errorf("leave %s: %w", r.ID, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// setRow writes values left to right starting at column A of the 1-based row.
func setRow[T any](f *excelize.File, row int, values []T) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("row %d: %w", row, err)
	}
	if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}
