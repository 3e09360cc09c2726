package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"dbchat-backend/internal/resultset"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var (
	ErrNoTable           = errors.New("no table to export")
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

// ParseFormat maps a query value to a Format, defaulting to CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, s)
}

// FileName returns query_result_<unix>.<ext>.
func FileName(f Format, at time.Time) string {
	return fmt.Sprintf("query_result_%d.%s", at.Unix(), f)
}

// ContentType returns the MIME type served for f.
func ContentType(f Format) string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// WriteCSV writes the header followed by every row.
func WriteCSV(w io.Writer, t *resultset.Table) error {
	if t == nil {
		return ErrNoTable
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	return nil
}

// Write dispatches to the writer for f.
func Write(w io.Writer, f Format, t *resultset.Table) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, t)
	case FormatXLSX:
		return WriteXLSX(w, t)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
}
