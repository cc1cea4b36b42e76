package export

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"

	"github.com/airmonitor/airmonitor/internal/archive"
)

// WritePDF writes rec as a printable A4 report with one table per sensor.
func WritePDF(w io.Writer, rec *archive.Record) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, tr(rec.StationName))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 10)
	lines := []string{
		fmt.Sprintf("Station ID: %d", rec.StationID),
		"City: " + rec.CityName,
		"Address: " + rec.Address,
		fmt.Sprintf("Location: %.6f, %.6f", rec.Latitude, rec.Longitude),
		"Saved: " + rec.SaveDate,
	}
	for _, l := range lines {
		pdf.Cell(0, 6, tr(l))
		pdf.Ln(5)
	}

	for _, s := range rec.Sensors {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.Cell(0, 6, tr(fmt.Sprintf("Sensor %d: %s", s.SensorID, s.ParamName)))
		pdf.Ln(7)

		pdf.CellFormat(60, 6, "Date", "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, "Value", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)

		pdf.SetFont("Helvetica", "", 10)
		if len(s.Measurements) == 0 {
			pdf.CellFormat(100, 6, "no data", "1", 0, "C", false, 0, "")
			pdf.Ln(-1)
			continue
		}
		for _, m := range s.Measurements {
			value := "-"
			if m.Value != nil {
				value = fmt.Sprintf("%.2f", *m.Value)
			}
			pdf.CellFormat(60, 6, tr(m.Date), "1", 0, "C", false, 0, "")
			pdf.CellFormat(40, 6, value, "1", 0, "R", false, 0, "")
			pdf.Ln(-1)
		}
	}

	return pdf.Output(w)
}
