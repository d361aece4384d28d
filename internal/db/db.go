package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

type PoolConfig struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
}

// Open connects to the configured driver. For sqlite, target is a file path; otherwise a DSN.
func Open(driver, target string, pool PoolConfig) (*sql.DB, error) {
	switch driver {
	case DriverSQLite:
		return OpenSQLite(target, pool.MaxOpen, pool.MaxIdle, pool.MaxLifetime)
	case DriverPostgres:
		return openPool("pgx", target, pool)
	case DriverMySQL:
		dsn, err := mysqlDSN(target)
		if err != nil {
			return nil, err
		}
		return openPool("mysql", dsn, pool)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
}

func OpenSQLite(path string, maxOpen, maxIdle int, maxLifetime time.Duration) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	return openPool("sqlite", dsn, PoolConfig{MaxOpen: maxOpen, MaxIdle: maxIdle, MaxLifetime: maxLifetime})
}

func openPool(driverName, dsn string, pool PoolConfig) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(pool.MaxOpen)
	db.SetMaxIdleConns(pool.MaxIdle)
	db.SetConnMaxLifetime(pool.MaxLifetime)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// mysqlDSN forces UTC time parsing, and found-rows semantics so RowsAffected
// reports matched rows even when an UPDATE leaves values unchanged.
func mysqlDSN(dsn string) (string, error) {
	c, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	c.ParseTime = true
	c.Loc = time.UTC
	c.ClientFoundRows = true
	return c.FormatDSN(), nil
}
