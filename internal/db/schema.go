package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownTable = errors.New("unknown table")

// ColumnInfo describes one column of a table
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// dialect holds the per-engine SQL used for introspection
type dialect struct {
	listTables  string
	listColumns string
	quoteChar   string
	dollarArgs  bool
}

func dialectFor(t DatabaseType) dialect {
	switch t {
	case DatabaseTypeMySQL:
		return dialect{
			listTables: `SELECT table_name FROM information_schema.tables
				WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' ORDER BY table_name`,
			listColumns: `SELECT column_name, data_type FROM information_schema.columns
				WHERE table_schema = DATABASE() AND table_name = ? ORDER BY ordinal_position`,
			quoteChar: "`",
		}
	case DatabaseTypePostgreSQL:
		return dialect{
			listTables: `SELECT table_name FROM information_schema.tables
				WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name`,
			listColumns: `SELECT column_name, data_type FROM information_schema.columns
				WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position`,
			quoteChar:  `"`,
			dollarArgs: true,
		}
	}
	return dialect{
		listTables:  `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`,
		listColumns: `SELECT name, type FROM pragma_table_info(?) ORDER BY cid`,
		quoteChar:   `"`,
	}
}

// quote quotes an identifier, doubling embedded quote characters
func (d dialect) quote(ident string) string {
	return d.quoteChar + strings.ReplaceAll(ident, d.quoteChar, d.quoteChar+d.quoteChar) + d.quoteChar
}

// placeholders generates count parameter placeholders numbered from start
func (d dialect) placeholders(count, start int) []string {
	out := make([]string, count)
	for i := range out {
		if d.dollarArgs {
			out[i] = fmt.Sprintf("$%d", start+i)
		} else {
			out[i] = "?"
		}
	}
	return out
}

// ListTables returns the user tables of the connected schema
func (db *Database) ListTables(ctx context.Context) ([]string, error) {
	tables, err := db.queryStrings(ctx, db.dialect.listTables)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return tables, nil
}

// Columns returns the columns of table in declaration order
func (db *Database) Columns(ctx context.Context, table string) ([]ColumnInfo, error) {
	if _, err := db.resolveTable(ctx, table); err != nil {
		return nil, err
	}

	rows, err := db.db.QueryContext(ctx, db.dialect.listColumns, table)
	if err != nil {
		return nil, fmt.Errorf("failed to describe %s: %w", table, err)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var c ColumnInfo
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// CountRows returns SELECT COUNT(*) for table
func (db *Database) CountRows(ctx context.Context, table string) (int64, error) {
	quoted, err := db.resolveTable(ctx, table)
	if err != nil {
		return 0, err
	}
	return db.QueryInt(ctx, "SELECT COUNT(*) FROM "+quoted)
}

// SampleRows returns the first n rows of table
func (db *Database) SampleRows(ctx context.Context, table string, n int) (*ResultSet, error) {
	quoted, err := db.resolveTable(ctx, table)
	if err != nil {
		return nil, err
	}
	return db.Query(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoted, n))
}

// resolveTable checks table against ListTables and returns it quoted.
func (db *Database) resolveTable(ctx context.Context, table string) (string, error) {
	tables, err := db.ListTables(ctx)
	if err != nil {
		return "", err
	}
	for _, t := range tables {
		if t == table {
			return db.dialect.quote(t), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownTable, table)
}
