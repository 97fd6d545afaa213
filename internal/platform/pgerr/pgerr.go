package pgerr

import (
	"context"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/teknokomo/universo-platformo-backend/internal/platform/apierr"
)

// Postgres SQLSTATE codes the engine distinguishes at read/write boundaries.
const (
	sqlstateLockNotAvailable   = "55P03"
	sqlstateTooManyConnections = "53300"
	sqlstateQueryCanceled      = "57014"
	sqlstateUniqueViolation    = "23505"
	sqlstateUndefinedTable     = "42P01"
)

// IsLockTimeout reports whether err is a lock_timeout / lock-not-available
// failure raised while a DDL statement waited on a conflicting schema lock.
func IsLockTimeout(err error) bool {
	var pg *pgconn.PgError
	if errors.As(err, &pg) {
		return pg.Code == sqlstateLockNotAvailable || pg.Code == sqlstateQueryCanceled
	}
	return false
}

// IsPoolExhausted reports whether err indicates the connection pool could not
// hand out a connection in time. With pgx under database/sql this surfaces as
// a deadline on acquire or as SQLSTATE 53300 from the server side.
func IsPoolExhausted(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pg *pgconn.PgError
	if errors.As(err, &pg) {
		return pg.Code == sqlstateTooManyConnections
	}
	return false
}

// IsUniqueViolation reports whether err is a unique-constraint violation.
func IsUniqueViolation(err error) bool {
	var pg *pgconn.PgError
	if errors.As(err, &pg) {
		return pg.Code == sqlstateUniqueViolation
	}
	return false
}

// IsUndefinedTable reports whether err means the referenced table does not
// exist yet, which the seed existence probes treat as "no rows".
func IsUndefinedTable(err error) bool {
	var pg *pgconn.PgError
	if errors.As(err, &pg) {
		return pg.Code == sqlstateUndefinedTable
	}
	return false
}

// Classify maps a database error onto the stable API error taxonomy. Errors
// that already carry an apierr code pass through untouched; everything else
// stays a plain error for the caller to wrap.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return err
	}
	switch {
	case IsPoolExhausted(err):
		return apierr.New(http.StatusServiceUnavailable, apierr.CodePoolExhausted, err)
	case IsLockTimeout(err):
		return apierr.New(http.StatusConflict, apierr.CodeSchemaLockTimeout, err)
	default:
		return err
	}
}
