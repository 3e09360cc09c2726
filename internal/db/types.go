package db

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DatabaseType represents supported database engines
type DatabaseType string

const (
	DatabaseTypePostgreSQL DatabaseType = "postgresql"
	DatabaseTypeMySQL      DatabaseType = "mysql"
	DatabaseTypeSQLite     DatabaseType = "sqlite"
)

// DefaultPort returns the well-known port for server engines.
func (t DatabaseType) DefaultPort() int {
	switch t {
	case DatabaseTypeMySQL:
		return 3306
	case DatabaseTypePostgreSQL:
		return 5432
	}
	return 0
}

// ValueType represents the type of a database value
type ValueType string

const (
	ValueTypeNull      ValueType = "null"
	ValueTypeInteger   ValueType = "integer"
	ValueTypeFloat     ValueType = "float"
	ValueTypeText      ValueType = "text"
	ValueTypeBoolean   ValueType = "boolean"
	ValueTypeBinary    ValueType = "binary"
	ValueTypeTimestamp ValueType = "timestamp"
)

// Value represents a unified database value
type Value struct {
	Type  ValueType
	Data  interface{}
	Valid bool
}

func NewNullValue() Value {
	return Value{Type: ValueTypeNull}
}

func NewIntegerValue(v int64) Value {
	return Value{Type: ValueTypeInteger, Data: v, Valid: true}
}

func NewFloatValue(v float64) Value {
	return Value{Type: ValueTypeFloat, Data: v, Valid: true}
}

func NewTextValue(v string) Value {
	return Value{Type: ValueTypeText, Data: v, Valid: true}
}

func NewBooleanValue(v bool) Value {
	return Value{Type: ValueTypeBoolean, Data: v, Valid: true}
}

func NewBinaryValue(v []byte) Value {
	return Value{Type: ValueTypeBinary, Data: v, Valid: true}
}

func NewTimestampValue(t time.Time) Value {
	return Value{Type: ValueTypeTimestamp, Data: t, Valid: true}
}

// IsNull returns true if value is null
func (v Value) IsNull() bool {
	return v.Type == ValueTypeNull || !v.Valid
}

// String renders the value as a table cell. NULL renders as the empty string.
func (v Value) String() string {
	if v.IsNull() {
		return ""
	}
	switch d := v.Data.(type) {
	case int64:
		return strconv.FormatInt(d, 10)
	case float64:
		return strconv.FormatFloat(d, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(d)
	case string:
		return d
	case []byte:
		return string(d)
	case time.Time:
		if d.Hour() == 0 && d.Minute() == 0 && d.Second() == 0 && d.Nanosecond() == 0 {
			return d.Format("2006-01-02")
		}
		return d.Format("2006-01-02 15:04:05")
	}
	return fmt.Sprintf("%v", v.Data)
}

// ResultSet represents a query result set
type ResultSet struct {
	Rows     []Row
	Columns  []Column
	RowCount int
}

// Row represents a database row
type Row struct {
	Values []Value
}

// Column represents a database column
type Column struct {
	Name     string
	Type     ValueType
	Nullable bool
}

// ColumnNames returns the column names in select order.
func (rs *ResultSet) ColumnNames() []string {
	names := make([]string, len(rs.Columns))
	for i, c := range rs.Columns {
		names[i] = c.Name
	}
	return names
}

// StringRows renders every value with Value.String.
func (rs *ResultSet) StringRows() [][]string {
	out := make([][]string, len(rs.Rows))
	for i, row := range rs.Rows {
		cells := make([]string, len(row.Values))
		for j, v := range row.Values {
			cells[j] = v.String()
		}
		out[i] = cells
	}
	return out
}

// ConvertSQLRowToResultSet converts sql.Rows to ResultSet
func ConvertSQLRowToResultSet(rows *sql.Rows) (*ResultSet, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	result := &ResultSet{
		Columns: make([]Column, len(columns)),
	}
	for i, col := range columns {
		nullable, ok := columnTypes[i].Nullable()
		result.Columns[i] = Column{
			Name:     col,
			Type:     mapSQLTypeToValueType(columnTypes[i].DatabaseTypeName()),
			Nullable: nullable || !ok,
		}
	}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := Row{Values: make([]Value, len(columns))}
		for i, val := range values {
			row.Values[i] = convertSQLValueToValue(val, result.Columns[i].Type)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

// mapSQLTypeToValueType maps driver type names to ValueType
func mapSQLTypeToValueType(sqlType string) ValueType {
	t := strings.ToLower(sqlType)
	switch {
	case strings.Contains(t, "bool"):
		return ValueTypeBoolean
	case strings.Contains(t, "int"), strings.Contains(t, "serial"):
		return ValueTypeInteger
	case strings.Contains(t, "float"), strings.Contains(t, "double"), strings.Contains(t, "real"),
		strings.Contains(t, "decimal"), strings.Contains(t, "numeric"):
		return ValueTypeFloat
	case strings.Contains(t, "date"), strings.Contains(t, "time"):
		return ValueTypeTimestamp
	case strings.Contains(t, "blob"), strings.Contains(t, "binary"), t == "bytea":
		return ValueTypeBinary
	default:
		return ValueTypeText
	}
}

// convertSQLValueToValue converts a scanned driver value. MySQL's text
// protocol returns []byte for every column, so bytes are decoded by the
// declared column type.
func convertSQLValueToValue(val interface{}, expectedType ValueType) Value {
	if val == nil {
		return NewNullValue()
	}

	switch v := val.(type) {
	case int64:
		if expectedType == ValueTypeBoolean {
			return NewBooleanValue(v != 0)
		}
		return NewIntegerValue(v)
	case float64:
		return NewFloatValue(v)
	case string:
		return NewTextValue(v)
	case bool:
		return NewBooleanValue(v)
	case []byte:
		switch expectedType {
		case ValueTypeBinary:
			return NewBinaryValue(v)
		case ValueTypeInteger:
			if n, err := strconv.ParseInt(string(v), 10, 64); err == nil {
				return NewIntegerValue(n)
			}
		case ValueTypeFloat:
			if f, err := strconv.ParseFloat(string(v), 64); err == nil {
				return NewFloatValue(f)
			}
		}
		return NewTextValue(string(v))
	case time.Time:
		if v.IsZero() {
			return NewNullValue()
		}
		return NewTimestampValue(v)
	default:
		return NewTextValue(fmt.Sprintf("%v", v))
	}
}
