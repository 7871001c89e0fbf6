package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx database/sql driver
	_ "modernc.org/sqlite"             // register pure-Go SQLite driver
)

const (
	MaxOpenConns    = 10
	MaxConnLifetime = 10 * time.Minute
	MaxConnIdleTime = 5 * time.Minute
)

// Driver is the database/sql driver name backing the store.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "pgx"
)

// DriverFor picks the driver from the DSN. Postgres URLs go through pgx;
// everything else (a file path, "file:..." or ":memory:") is the embedded
// SQLite store, the default local-first deployment.
func DriverFor(dsn string) Driver {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

// Open connects to the backing store and verifies the connection.
//
// The SQLite path is limited to a single connection: every mutation is then
// serialized through the store itself, which is the single-writer discipline
// the capture guarantee relies on (and it keeps ":memory:" databases shared
// across the pool).
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	driver := DriverFor(dsn)

	db, err := sql.Open(string(driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", driver, err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(MaxOpenConns)
		db.SetConnMaxLifetime(MaxConnLifetime)
		db.SetConnMaxIdleTime(MaxConnIdleTime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s store: %w", driver, err)
	}

	return db, nil
}
