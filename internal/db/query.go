package db

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNoRows is returned by QueryInt when the query yields nothing
var ErrNoRows = errors.New("no rows found")

// Execute executes a non-query SQL statement
func (db *Database) Execute(ctx context.Context, query string, args ...interface{}) (*Result, error) {
	result, err := db.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return newResult(result), nil
}

// Query executes a query and returns result set
func (db *Database) Query(ctx context.Context, query string, args ...interface{}) (*ResultSet, error) {
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return ConvertSQLRowToResultSet(rows)
}

// QueryInt scans a single integer such as COUNT(*)
func (db *Database) QueryInt(ctx context.Context, query string, args ...interface{}) (int64, error) {
	var n sql.NullInt64
	if err := db.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNoRows
		}
		return 0, err
	}
	return n.Int64, nil
}

// queryStrings returns the first column of every row
func (db *Database) queryStrings(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
