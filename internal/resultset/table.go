package resultset

import (
	"strings"
)

// Table is a header plus rows recovered from a pipe-delimited text block.
// Every row has exactly len(Header) cells.
type Table struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// minLines is the smallest block that can carry a header and at least one row
// after the leading summary line.
const minLines = 3

// Parse extracts a pipe-delimited table from free-form agent output.
//
// The first line is treated as a summary and skipped unless it starts with a
// pipe. Separator lines (cells made only of '-' and ':') are dropped, and
// rows whose cell count differs from the header are discarded. Parse returns
// nil when no table with at least one row can be recovered; it never fails.
func Parse(raw string) *Table {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	if len(lines) < minLines {
		return nil
	}

	start := 0
	if !strings.HasPrefix(strings.TrimSpace(lines[0]), "|") {
		start = 1
	}

	var header []string
	var rows [][]string
	for _, line := range lines[start:] {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" || !strings.Contains(line, "|") {
			continue
		}
		cells := splitRow(line)
		if isSeparator(cells) {
			continue
		}
		if header == nil {
			header = cells
			continue
		}
		if len(cells) != len(header) {
			continue
		}
		rows = append(rows, cells)
	}

	if len(header) == 0 || len(rows) == 0 {
		return nil
	}
	return &Table{Header: header, Rows: rows}
}

// FromRows builds a Table from already-structured data, bypassing text
// parsing. Rows that do not match the header width are dropped, like Parse.
func FromRows(header []string, rows [][]string) *Table {
	if len(header) == 0 {
		return nil
	}
	t := &Table{Header: append([]string(nil), header...)}
	for _, row := range rows {
		if len(row) != len(header) {
			continue
		}
		t.Rows = append(t.Rows, append([]string(nil), row...))
	}
	if len(t.Rows) == 0 {
		return nil
	}
	return t
}

// splitRow splits on '|', discarding the empty segments produced by outer
// pipes. Interior empty cells are kept.
func splitRow(line string) []string {
	parts := strings.Split(line, "|")
	if strings.HasPrefix(line, "|") {
		parts = parts[1:]
	}
	if strings.HasSuffix(line, "|") && len(parts) > 0 {
		parts = parts[:len(parts)-1]
	}
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells
}

func isSeparator(cells []string) bool {
	for _, c := range cells {
		if strings.Trim(c, "-:") != "" {
			return false
		}
	}
	return true
}
