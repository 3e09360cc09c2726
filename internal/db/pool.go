package db

import (
	"context"
	"database/sql"
	"time"
)

// configurePool applies pool limits, adjusted for the engine
func configurePool(sqlDB *sql.DB, engine DatabaseType, opts Options) {
	maxOpenConns := opts.MaxOpenConns
	maxIdleConns := opts.MaxIdleConns

	switch engine {
	case DatabaseTypeSQLite:
		// SQLite doesn't benefit from connection pooling
		maxOpenConns = 1
		maxIdleConns = 1
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
}

// Ping tests the connection health
func (db *Database) Ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return db.db.PingContext(ctx)
}
