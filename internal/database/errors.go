package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrInvalidDatabaseURL indicates the provided database URL could not be parsed.
var ErrInvalidDatabaseURL = errors.New("invalid database URL")

// ErrConnectionFailed indicates a connection to the database could not be established.
var ErrConnectionFailed = errors.New("database connection failed")

// ErrUnknownDriver indicates a driver name that Open does not support.
var ErrUnknownDriver = errors.New("unknown database driver")

// SQLState returns the five-character SQLSTATE code carried by a PostgreSQL
// error from either pgx or lib/pq, or "" when err carries none.
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}

	return ""
}
