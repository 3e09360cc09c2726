package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Transaction represents a database transaction
type Transaction struct {
	tx *sql.Tx
	db *Database
}

// Result represents the result of an Execute operation
type Result struct {
	RowsAffected int64
	LastInsertID int64
}

func newResult(r sql.Result) *Result {
	rowsAffected, _ := r.RowsAffected()
	lastInsertID, _ := r.LastInsertId()
	return &Result{RowsAffected: rowsAffected, LastInsertID: lastInsertID}
}

// BeginTx starts a new transaction with the given options
func (db *Database) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Transaction, error) {
	tx, err := db.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Transaction{tx: tx, db: db}, nil
}

// WithTx runs fn in a transaction, committing on success and rolling back
// on error.
func (db *Database) WithTx(ctx context.Context, fn func(*Transaction) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Execute executes a non-query SQL statement
func (tx *Transaction) Execute(ctx context.Context, query string, args ...interface{}) (*Result, error) {
	result, err := tx.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return newResult(result), nil
}

// BatchInsert inserts rows with a single multi-row statement. verb is the
// statement prefix, e.g. "INSERT" or "INSERT OR REPLACE".
func (tx *Transaction) BatchInsert(ctx context.Context, verb, table string, columns []string, data [][]interface{}) (*Result, error) {
	if len(data) == 0 {
		return &Result{}, nil
	}

	valueStrings := make([]string, 0, len(data))
	valueArgs := make([]interface{}, 0, len(columns)*len(data))
	for i, row := range data {
		valueStrings = append(valueStrings, "("+strings.Join(tx.db.dialect.placeholders(len(row), i*len(row)+1), ", ")+")")
		valueArgs = append(valueArgs, row...)
	}

	stmt := fmt.Sprintf("%s INTO %s (%s) VALUES %s",
		verb,
		tx.db.dialect.quote(table),
		strings.Join(columns, ", "),
		strings.Join(valueStrings, ", "))

	return tx.Execute(ctx, stmt, valueArgs...)
}

// Commit commits the transaction
func (tx *Transaction) Commit() error {
	return tx.tx.Commit()
}

// Rollback rolls back the transaction
func (tx *Transaction) Rollback() error {
	return tx.tx.Rollback()
}
