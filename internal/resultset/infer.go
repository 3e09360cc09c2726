package resultset

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Kind classifies a column for charting.
type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindCategorical Kind = "categorical"
)

// TypedColumn is one column of a Table with its inferred kind.
// Values holds the trimmed cells in row order. For numeric columns Numbers is
// aligned with Values and empty cells are NaN.
type TypedColumn struct {
	Name    string    `json:"name"`
	Index   int       `json:"index"`
	Kind    Kind      `json:"kind"`
	Values  []string  `json:"-"`
	Numbers []float64 `json:"-"`
}

// Numeric reports whether the column was inferred as numeric.
func (c TypedColumn) Numeric() bool { return c.Kind == KindNumeric }

var decimalPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// IsDecimal reports whether s, after trimming, is a plain decimal number.
// Hex floats, Inf, NaN and digit separators are rejected.
func IsDecimal(s string) bool {
	return decimalPattern.MatchString(strings.TrimSpace(s))
}

// Infer classifies every column of t. A column is numeric when every
// non-empty cell is a decimal number and at least one cell is non-empty;
// otherwise it is categorical. Infer is total and deterministic.
func Infer(t *Table) []TypedColumn {
	if t == nil {
		return nil
	}
	cols := make([]TypedColumn, len(t.Header))
	for i, name := range t.Header {
		values := make([]string, len(t.Rows))
		nonEmpty := 0
		numeric := true
		for r, row := range t.Rows {
			v := strings.TrimSpace(row[i])
			values[r] = v
			if v == "" {
				continue
			}
			nonEmpty++
			if numeric && !IsDecimal(v) {
				numeric = false
			}
		}

		col := TypedColumn{Name: name, Index: i, Kind: KindCategorical, Values: values}
		if numeric && nonEmpty > 0 {
			col.Kind = KindNumeric
			col.Numbers = make([]float64, len(values))
			for r, v := range values {
				if v == "" {
					col.Numbers[r] = math.NaN()
					continue
				}
				f, err := strconv.ParseFloat(v, 64)
				if err != nil {
					// out-of-range literals still match the grammar
					f = math.NaN()
				}
				col.Numbers[r] = f
			}
		}
		cols[i] = col
	}
	return cols
}

// Split partitions columns by kind, preserving declaration order.
func Split(cols []TypedColumn) (categorical, numeric []TypedColumn) {
	for _, c := range cols {
		if c.Numeric() {
			numeric = append(numeric, c)
		} else {
			categorical = append(categorical, c)
		}
	}
	return categorical, numeric
}
