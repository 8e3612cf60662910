package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os/user"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"  // registers the "postgres" database/sql driver
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

const defaultMaxConns = 5

// Supported driver names for Open.
const (
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Options selects and authenticates a database connection.
type Options struct {
	Driver   string
	URL      string
	User     string
	Password string
}

// Open connects to the database named by opts and returns a Gateway.
// An empty driver defaults to pgx.
func Open(ctx context.Context, opts Options) (Gateway, error) {
	switch opts.Driver {
	case "", DriverPgx:
		pool, err := NewPool(ctx, opts.URL, opts.User, opts.Password)
		if err != nil {
			return nil, err
		}

		return NewPoolGateway(pool), nil
	case DriverPostgres:
		dsn, err := withCredentials(opts.URL, opts.User, opts.Password)
		if err != nil {
			return nil, err
		}

		db, err := openSQL(ctx, DriverPostgres, dsn)
		if err != nil {
			return nil, err
		}

		db.SetMaxOpenConns(defaultMaxConns)

		return NewSQLGateway(db, Postgres), nil
	case DriverSQLite:
		db, err := openSQL(ctx, DriverSQLite, strings.TrimPrefix(opts.URL, "sqlite://"))
		if err != nil {
			return nil, err
		}

		// A single connection keeps ":memory:" databases shared and serialises writers.
		db.SetMaxOpenConns(1)

		return NewSQLGateway(db, SQLite, WithUser(sqliteUser(opts.User))), nil
	default:
		return nil, fmt.Errorf("%w: %q (use pgx, postgres or sqlite)", ErrUnknownDriver, opts.Driver)
	}
}

// NewPool creates a pgx connection pool for the given database URL.
// It parses the connection string, applies the user and password overrides when
// set, sets a conservative max connection limit, and pings the database to
// verify connectivity.
func NewPool(ctx context.Context, databaseURL, username, password string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDatabaseURL, err)
	}

	if username != "" {
		poolCfg.ConnConfig.User = username
	}

	if password != "" {
		poolCfg.ConnConfig.Password = password
	}

	poolCfg.MaxConns = defaultMaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return pool, nil
}

func openSQL(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty connection string", ErrInvalidDatabaseURL)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDatabaseURL, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()

		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return db, nil
}

// withCredentials applies user and password overrides to a URL or key=value DSN.
func withCredentials(dsn, username, password string) (string, error) {
	if username == "" && password == "" {
		return dsn, nil
	}

	if !strings.Contains(dsn, "://") {
		var b strings.Builder
		b.WriteString(dsn)

		if username != "" {
			fmt.Fprintf(&b, " user='%s'", strings.ReplaceAll(username, "'", `\'`))
		}

		if password != "" {
			fmt.Fprintf(&b, " password='%s'", strings.ReplaceAll(password, "'", `\'`))
		}

		return strings.TrimSpace(b.String()), nil
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidDatabaseURL, err)
	}

	name := username
	if name == "" && u.User != nil {
		name = u.User.Username()
	}

	if password != "" {
		u.User = url.UserPassword(name, password)
	} else if existing, ok := u.User.Password(); ok {
		u.User = url.UserPassword(name, existing)
	} else {
		u.User = url.User(name)
	}

	return u.String(), nil
}

// sqliteUser returns the configured user, falling back to the OS account since
// SQLite has no database principals.
func sqliteUser(configured string) string {
	if configured != "" {
		return configured
	}

	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}

	return "dbdeploy"
}
