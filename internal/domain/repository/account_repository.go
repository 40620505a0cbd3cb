package repository

import (
	"errors"

	"account-service/internal/domain/entity"
)

var (
	// ErrNotFound is returned when no account matches the lookup.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicateEmail is returned when the accounts.email unique
	// constraint rejects a create or update.
	ErrDuplicateEmail = errors.New("email already registered")
)

// AccountRepository defines the interface for account persistence.
// GetByEmail never loads the password hash; GetByEmailWithHash is the
// one sanctioned path where the hash leaves storage (login).
type AccountRepository interface {
	Create(a *entity.Account) error
	GetByID(id string) (*entity.Account, error)
	GetByEmail(email string) (*entity.Account, error)
	GetByEmailWithHash(email string) (*entity.Account, error)
	Update(a *entity.Account) error
}
