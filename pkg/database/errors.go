package database

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the ledger cares about
const (
	codeUniqueViolation      = "23505"
	codeProgramLimitExceeded = "54000"
	codeStatementTooComplex  = "54001"
	codeTooManyColumns       = "54011"
	codeTooManyArguments     = "54023"
	codeProtocolViolation    = "08P01"
)

// IsUniqueViolation reports whether err is a unique constraint violation
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

// IsPayloadTooLarge reports whether the server refused a statement or
// message because of its size (class 54 or an oversized protocol message).
func IsPayloadTooLarge(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeProgramLimitExceeded, codeStatementTooComplex, codeTooManyColumns, codeTooManyArguments:
			return true
		case codeProtocolViolation:
			return strings.Contains(strings.ToLower(pgErr.Message), "too large") ||
				strings.Contains(strings.ToLower(pgErr.Message), "invalid message length")
		}
	}
	// pgx rejects >65535 bind parameters client side
	return err != nil && strings.Contains(err.Error(), "extended protocol limited to")
}
