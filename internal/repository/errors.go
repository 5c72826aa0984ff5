package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	governor_errors "github.com/customeros/mailgovernor/internal/errors"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	ErrConflict      = errors.New("concurrent modification")
)

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// ServiceError lifts a repository error into the service taxonomy. Anything
// that is not a known sentinel is a storage failure.
func ServiceError(op, entity, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return governor_errors.NewNotFoundError(entity, id)
	case errors.Is(err, ErrAlreadyExists):
		return governor_errors.NewConflictError("%s %s already exists", entity, id)
	case errors.Is(err, ErrConflict):
		return governor_errors.NewConflictError("%s %s was modified concurrently", entity, id)
	}
	return governor_errors.NewPersistenceError(op, err)
}
