package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/petition-hub/petition-hub/internal/domain/unitofwork"
)

const (
	codeUniqueViolation        = "23505"
	codeInFailedSQLTransaction = "25P02"
	codeFeatureNotSupported    = "0A000"
)

func pgCode(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.Message
	}
	return "", ""
}

func isUniqueViolation(err error) bool {
	code, _ := pgCode(err)
	return code == codeUniqueViolation
}

// isTransactionAborted matches errors after which the connection must be cleaned before
// the block is retried: a transaction already poisoned by an earlier failure, or a
// prepared statement invalidated by a schema change.
func isTransactionAborted(err error) bool {
	code, msg := pgCode(err)
	switch code {
	case codeInFailedSQLTransaction:
		return true
	case codeFeatureNotSupported:
		return strings.Contains(msg, "cached plan")
	}
	return false
}

// translate maps driver errors onto domain sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, unitofwork.ErrTransactionAborted) {
		return err
	}
	if isTransactionAborted(err) {
		return fmt.Errorf("%w: %v", unitofwork.ErrTransactionAborted, err)
	}
	return err
}
