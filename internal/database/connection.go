package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/anri-helpdesk/helpdesk/internal/config"
)

// DB is an open connection together with the dialect and table names it
// was configured with.
type DB struct {
	*sqlx.DB
	Dialect Dialect
	Tables  Tables
}

// New wraps an existing *sql.DB. Tests use it with sqlmock.
func New(db *sql.DB, dialect Dialect, prefix string) *DB {
	return &DB{
		DB:      sqlx.NewDb(db, string(dialect)),
		Dialect: dialect,
		Tables:  Tables{Prefix: prefix},
	}
}

// Open connects, pings and optionally migrates the configured database.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*DB, error) {
	dialect, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := BuildDSN(dialect, cfg)
	if err != nil {
		return nil, err
	}

	d, err := sqlx.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("couldn't open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		d.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		d.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		d.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := d.PingContext(pingCtx); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{DB: d, Dialect: dialect, Tables: Tables{Prefix: cfg.TablePrefix}}

	if cfg.AutoMigrate {
		log.InfoContext(ctx, "applying migrations", "driver", dialect)
		n, err := db.Migrate(ctx)
		if err != nil {
			d.Close()
			return nil, err
		}
		log.InfoContext(ctx, "applied migrations", "count", n)
	}

	return db, nil
}

// BuildDSN returns cfg.DSN when set, otherwise a DSN assembled from the parts.
func BuildDSN(dialect Dialect, cfg config.DatabaseConfig) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}

	switch dialect {
	case MySQL:
		mc := mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
		mc.DBName = cfg.Name
		mc.ParseTime = true
		mc.Loc = time.Local
		mc.Params = map[string]string{"charset": "utf8mb4"}
		return mc.FormatDSN(), nil
	case Postgres:
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode), nil
	case SQLite:
		if cfg.Name == "" {
			return "", fmt.Errorf("database.name must hold the sqlite file path")
		}
		return "file:" + cfg.Name + "?_foreign_keys=on&_busy_timeout=5000", nil
	}
	return "", fmt.Errorf("unsupported dialect %q", dialect)
}

// Execute runs a PostgreSQL-style statement on any sqlx executor.
func (db *DB) Execute(ctx context.Context, ex sqlx.ExecerContext, query string, args ...any) (sql.Result, error) {
	q, a := db.Dialect.Prepare(query, args...)
	return ex.ExecContext(ctx, q, a...)
}

// InsertID runs an INSERT and returns the generated id. On PostgreSQL the
// query gets a RETURNING clause; elsewhere LastInsertId is used.
func (db *DB) InsertID(ctx context.Context, ex sqlx.ExtContext, query, idColumn string, args ...any) (int64, error) {
	if db.Dialect.SupportsReturning() {
		var id int64
		q, a := db.Dialect.Prepare(query+" RETURNING "+idColumn, args...)
		if err := ex.QueryRowxContext(ctx, q, a...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}

	q, a := db.Dialect.Prepare(query, args...)
	res, err := ex.ExecContext(ctx, q, a...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// WithTx runs fn in a transaction, committing when fn returns nil.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
