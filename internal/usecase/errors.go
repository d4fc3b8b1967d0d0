package usecase

import (
	"errors"

	"storefront-backend/internal/domain"
)

type ErrNotFound string

func (e ErrNotFound) Error() string { return string(e) + " not found" }

type ErrConflict string

func (e ErrConflict) Error() string { return string(e) }

type ErrBadRequest string

func (e ErrBadRequest) Error() string { return string(e) }

type ErrForbidden string

func (e ErrForbidden) Error() string { return string(e) }

// notFound maps a repository miss onto ErrNotFound(what) and passes every
// other error through.
func notFound(err error, what string) error {
	if errors.Is(err, domain.ErrRecordNotFound) {
		return ErrNotFound(what)
	}
	return err
}
