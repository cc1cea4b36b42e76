// Package export renders archive records as spreadsheets and printable
// reports.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/airmonitor/airmonitor/internal/archive"
)

const (
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypePDF  = "application/pdf"

	summarySheet = "station"
	maxSheetName = 31
	invalidChars = `[]:*?/\`
	headerCell   = "A1"
)

// WriteXLSX writes rec as a workbook: a station sheet followed by one
// sheet per sensor with its readings in saved order. Gaps are left blank.
func WriteXLSX(w io.Writer, rec *archive.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	rows := [][]any{
		{"Station ID", rec.StationID},
		{"Station", rec.StationName},
		{"City", rec.CityName},
		{"Address", rec.Address},
		{"Latitude", rec.Latitude},
		{"Longitude", rec.Longitude},
		{"Saved", rec.SaveDate},
		{"Sensors", len(rec.Sensors)},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}

	used := map[string]bool{summarySheet: true}
	for _, s := range rec.Sensors {
		name := sheetName(s, used)
		used[name] = true

		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("add sheet %q: %w", name, err)
		}
		header := []any{"Date", s.ParamName}
		if err := f.SetSheetRow(name, headerCell, &header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		for i, m := range s.Measurements {
			cell, err := excelize.CoordinatesToCellName(1, i+2)
			if err != nil {
				return err
			}
			row := []any{m.Date, ""}
			if m.Value != nil {
				row[1] = *m.Value
			}
			if err := f.SetSheetRow(name, cell, &row); err != nil {
				return fmt.Errorf("write readings: %w", err)
			}
		}
	}

	f.SetActiveSheet(0)
	return f.Write(w)
}

// sheetName builds a unique, Excel-safe sheet title for a sensor.
func sheetName(s archive.SensorRecord, used map[string]bool) string {
	base := fmt.Sprintf("%d %s", s.SensorID, s.ParamName)
	base = strings.Map(func(r rune) rune {
		if strings.ContainsRune(invalidChars, r) {
			return '_'
		}
		return r
	}, base)
	base = truncateRunes(strings.TrimSpace(base), maxSheetName)

	name := base
	for i := 2; used[name]; i++ {
		suffix := fmt.Sprintf(" (%d)", i)
		name = truncateRunes(base, maxSheetName-len(suffix)) + suffix
	}
	return name
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
