package db

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL pgx/v5 driver
	_ "github.com/mattn/go-sqlite3"    // SQLite
)

// Options holds connection and pool settings
type Options struct {
	ConnectTimeout  time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultOptions returns the settings used when none are configured
func DefaultOptions() Options {
	return Options{
		ConnectTimeout:  10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// Database is an open connection to the session's database
type Database struct {
	db      *sql.DB
	dbType  DatabaseType
	source  Source
	dialect dialect
}

// connectionParams resolves a Source to a database/sql driver name and DSN.
func connectionParams(src Source) (driverName, dsn string, err error) {
	switch src.Kind {
	case SourceSample, SourceUpload:
		return "sqlite3", sqliteDSN(src.Path, "rw"), nil
	case SourceServer:
		switch src.Engine {
		case DatabaseTypeMySQL:
			return "mysql", buildMySQLDSN(src), nil
		case DatabaseTypePostgreSQL:
			return "pgx", buildPostgreSQLDSN(src), nil
		}
		return "", "", fmt.Errorf("%w: engine %q", ErrUnsupportedSource, src.Engine)
	case SourceURL:
		return "pgx", NormalizePostgresURL(src.URL), nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrUnsupportedSource, src.Kind)
}

// Open validates src, connects and pings the database
func Open(ctx context.Context, src Source, opts Options) (*Database, error) {
	if err := Validate(src); err != nil {
		return nil, err
	}

	driverName, dsn, err := connectionParams(src)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	engine := src.ResolvedEngine()
	configurePool(sqlDB, engine, opts)

	database := &Database{
		db:      sqlDB,
		dbType:  engine,
		source:  src,
		dialect: dialectFor(engine),
	}
	if err := database.Ping(ctx, opts.ConnectTimeout); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return database, nil
}

func sqliteDSN(path, mode string) string {
	return fmt.Sprintf("file:%s?mode=%s", path, mode)
}

// buildPostgreSQLDSN builds a pgx keyword/value connection string
func buildPostgreSQLDSN(src Source) string {
	port := src.Port
	if port == 0 {
		port = DatabaseTypePostgreSQL.DefaultPort()
	}

	parts := []string{
		"host=" + pgQuote(src.Host),
		"port=" + strconv.Itoa(port),
		"user=" + pgQuote(src.Username),
		"password=" + pgQuote(src.Password),
		"dbname=" + pgQuote(src.Database),
		"sslmode=prefer",
	}
	return strings.Join(parts, " ")
}

// pgQuote quotes a keyword/value DSN value.
func pgQuote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// buildMySQLDSN builds a go-sql-driver DSN
func buildMySQLDSN(src Source) string {
	port := src.Port
	if port == 0 {
		port = DatabaseTypeMySQL.DefaultPort()
	}

	cfg := mysql.NewConfig()
	cfg.User = src.Username
	cfg.Passwd = src.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(src.Host, strconv.Itoa(port))
	cfg.DBName = src.Database
	cfg.ParseTime = true
	cfg.Loc = time.Local
	return cfg.FormatDSN()
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.db.Close()
}

// Type returns the database engine
func (db *Database) Type() DatabaseType {
	return db.dbType
}

// Source returns the source the connection was opened from
func (db *Database) Source() Source {
	return db.source
}
