package export

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/airmonitor/airmonitor/internal/archive"
)

// Format is an export file format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ParseFormat accepts a format name or a file name carrying the format's
// extension.
func ParseFormat(s string) (Format, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if ext := filepath.Ext(name); ext != "" {
		name = strings.TrimPrefix(ext, ".")
	}
	switch Format(name) {
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (want xlsx or pdf)", s)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatPDF {
		return ContentTypePDF
	}
	return ContentTypeXLSX
}

// FileName returns the download name for rec in this format.
func (f Format) FileName(rec *archive.Record) string {
	name, err := archive.FileName(rec.StationID, rec.SaveDate)
	if err != nil {
		name = fmt.Sprintf("station_%d", rec.StationID)
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + "." + string(f)
}

// Write renders rec in this format.
func (f Format) Write(w io.Writer, rec *archive.Record) error {
	switch f {
	case FormatXLSX:
		return WriteXLSX(w, rec)
	case FormatPDF:
		return WritePDF(w, rec)
	default:
		return fmt.Errorf("unsupported export format %q", string(f))
	}
}
