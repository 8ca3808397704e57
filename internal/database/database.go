package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB is the durable alert store. Every call goes straight to the database,
// nothing is buffered or cached.
type DB struct {
	db     *sqlx.DB
	driver string
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id INTEGER NOT NULL,
		currency TEXT NOT NULL,
		threshold REAL NOT NULL,
		threshold_type TEXT NOT NULL,
		delivered INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT 0,
		delivered_at INTEGER
	);`,
	`CREATE TABLE IF NOT EXISTS metrics (
		metric_name TEXT NOT NULL,
		label_key TEXT NOT NULL DEFAULT '',
		label_value TEXT NOT NULL DEFAULT '',
		metric_value REAL NOT NULL,
		PRIMARY KEY (metric_name, label_key, label_value)
	);`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS alerts (
		id BIGSERIAL PRIMARY KEY,
		chat_id BIGINT NOT NULL,
		currency TEXT NOT NULL,
		threshold DOUBLE PRECISION NOT NULL,
		threshold_type TEXT NOT NULL,
		delivered BOOLEAN NOT NULL DEFAULT FALSE,
		created_at BIGINT NOT NULL DEFAULT 0,
		delivered_at BIGINT
	);`,
	`CREATE TABLE IF NOT EXISTS metrics (
		metric_name TEXT NOT NULL,
		label_key TEXT NOT NULL DEFAULT '',
		label_value TEXT NOT NULL DEFAULT '',
		metric_value DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (metric_name, label_key, label_value)
	);`,
}

// columns added after the first release; tables created by older versions
// only have id, chat_id, currency, threshold, threshold_type and delivered.
var addedColumns = []struct {
	name     string
	sqlite   string
	postgres string
}{
	{"created_at", "INTEGER NOT NULL DEFAULT 0", "BIGINT NOT NULL DEFAULT 0"},
	{"delivered_at", "INTEGER", "BIGINT"},
}

// Open connects to driver ("sqlite" or "postgres") and creates the schema.
func Open(driver, dsn string) (*DB, error) {
	var schema []string
	switch driver {
	case DriverSQLite:
		schema = sqliteSchema
	case DriverPostgres:
		schema = postgresSchema
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		// sqlite allows one writer; a single connection serializes access
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(5 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d := &DB{db: conn, driver: driver}
	for _, stmt := range schema {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	if err := d.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	log.WithField("driver", driver).Info("Database initialized successfully.")
	return d, nil
}

func (d *DB) migrate(ctx context.Context) error {
	if d.driver == DriverPostgres {
		for _, c := range addedColumns {
			stmt := fmt.Sprintf("ALTER TABLE alerts ADD COLUMN IF NOT EXISTS %s %s;", c.name, c.postgres)
			if _, err := d.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to add column %s: %w", c.name, err)
			}
		}
		return nil
	}

	var columns []struct {
		CID        int     `db:"cid"`
		Name       string  `db:"name"`
		Type       string  `db:"type"`
		NotNull    bool    `db:"notnull"`
		Default    *string `db:"dflt_value"`
		PrimaryKey int     `db:"pk"`
	}
	if err := d.db.SelectContext(ctx, &columns, "PRAGMA table_info(alerts);"); err != nil {
		return fmt.Errorf("failed to inspect alerts table: %w", err)
	}

	existing := make(map[string]bool, len(columns))
	for _, c := range columns {
		existing[c.Name] = true
	}
	for _, c := range addedColumns {
		if existing[c.name] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE alerts ADD COLUMN %s %s;", c.name, c.sqlite)
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to add column %s: %w", c.name, err)
		}
		log.Infof("Added column %s to alerts table", c.name)
	}
	return nil
}

func (d *DB) Driver() string {
	return d.driver
}

func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}
