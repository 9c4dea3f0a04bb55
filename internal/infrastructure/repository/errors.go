package repository

import (
	stderrors "errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/errors"
)

// IsForeignKeyViolation checks if the error is a foreign key constraint violation
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == "23503"
}

// IsCheckViolation checks if the error is a check constraint violation
func IsCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == "23514"
}

// IsConnectionError checks if the error is related to database connectivity
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var connErr *pgconn.ConnectError
	return stderrors.As(err, &connErr) ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset") ||
		strings.Contains(err.Error(), "no connection to the server")
}

// wrapError maps driver errors onto application errors. Anything unrecognised
// becomes an internal error carrying the operation name.
func wrapError(err error, operation string) error {
	if err == nil {
		return nil
	}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}
	switch {
	case stderrors.Is(err, pgx.ErrNoRows):
		return errors.NewNotFoundError("session")
	case IsForeignKeyViolation(err), IsCheckViolation(err):
		return errors.NewValidationError("INVALID_SNAPSHOT", operation+": "+err.Error())
	default:
		return errors.NewInternalError(operation + " failed").WithCause(err)
	}
}
