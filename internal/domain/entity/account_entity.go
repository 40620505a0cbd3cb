package entity

import (
	"time"
)

// Account is the aggregate root for the account domain.
// PasswordHash holds a bcrypt hash. It is only loaded on the explicit
// login lookup path and must never reach a response body.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Phone        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
