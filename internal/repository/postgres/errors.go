package postgres

import (
	"errors"
	"fmt"

	"go-screening-backend/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// insertError turns constraint failures on INSERT into domain errors. A
// duplicate key means another writer got there first; a dangling foreign key
// means the parent row (usually the job) does not exist.
func insertError(err error, what string) error {
	var pgErr *pgconn.PgError
	if err == nil || !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return fmt.Errorf("%s: %w", what, domain.ErrConcurrentUpdate)
	case codeForeignKeyViolation:
		return fmt.Errorf("%s references %s: %w", what, pgErr.TableName, domain.ErrNotFound)
	}
	return err
}
