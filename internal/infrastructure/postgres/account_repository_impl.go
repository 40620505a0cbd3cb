package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"account-service/internal/domain/entity"
	"account-service/internal/domain/repository"
)

const uniqueViolation = "23505"

type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

func isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (r *AccountRepository) Create(a *entity.Account) error {
	ctx := context.Background()
	row := r.pool.QueryRow(ctx, `
		INSERT INTO accounts (email, password_hash, first_name, last_name, phone)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, a.Email, a.PasswordHash, a.FirstName, a.LastName, a.Phone)

	if err := row.Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if isDuplicate(err) {
			return repository.ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (r *AccountRepository) GetByID(id string) (*entity.Account, error) {
	ctx := context.Background()
	a := &entity.Account{}

	row := r.pool.QueryRow(ctx, `
		SELECT id, email, first_name, last_name, phone, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`, id)

	if err := row.Scan(&a.ID, &a.Email, &a.FirstName, &a.LastName, &a.Phone,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return a, nil
}

func (r *AccountRepository) GetByEmail(email string) (*entity.Account, error) {
	ctx := context.Background()
	a := &entity.Account{}

	row := r.pool.QueryRow(ctx, `
		SELECT id, email, first_name, last_name, phone, created_at, updated_at
		FROM accounts
		WHERE email = $1
	`, email)

	if err := row.Scan(&a.ID, &a.Email, &a.FirstName, &a.LastName, &a.Phone,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return a, nil
}

// GetByEmailWithHash selects password_hash as well; only the login flow
// may call this.
func (r *AccountRepository) GetByEmailWithHash(email string) (*entity.Account, error) {
	ctx := context.Background()
	a := &entity.Account{}

	row := r.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, first_name, last_name, phone, created_at, updated_at
		FROM accounts
		WHERE email = $1
	`, email)

	if err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.FirstName, &a.LastName,
		&a.Phone, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return a, nil
}

// Update writes the whitelisted profile columns only. password_hash is
// deliberately absent from the SET list.
func (r *AccountRepository) Update(a *entity.Account) error {
	ctx := context.Background()
	a.UpdatedAt = time.Now()

	res, err := r.pool.Exec(ctx, `
		UPDATE accounts
		SET email = $1, first_name = $2, last_name = $3, phone = $4, updated_at = $5
		WHERE id = $6
	`, a.Email, a.FirstName, a.LastName, a.Phone, a.UpdatedAt, a.ID)
	if err != nil {
		if isDuplicate(err) {
			return repository.ErrDuplicateEmail
		}
		return err
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ repository.AccountRepository = (*AccountRepository)(nil)
