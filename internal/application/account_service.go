package application

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"account-service/internal/domain/entity"
	repo "account-service/internal/domain/repository"
	"account-service/pkg/helpers"
)

var (
	// ErrInvalidCredentials covers both unknown email and wrong
	// password; callers must not be able to tell which it was.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrDuplicateEmail     = repo.ErrDuplicateEmail
	ErrAccountNotFound    = errors.New("account not found")
)

const profileCacheTTL = 15 * time.Minute

type Service struct {
	Repo            repo.AccountRepository
	JWT             *helpers.JWTManager
	Redis           *redis.Client
	Logger          *logrus.Logger
	ES              *elasticsearch.Client
	ESAccountsIndex string
}

func NewService(repo repo.AccountRepository, jwt *helpers.JWTManager, rdb *redis.Client, logger *logrus.Logger, es *elasticsearch.Client, esAccountsIndex string) *Service {
	return &Service{
		Repo:            repo,
		JWT:             jwt,
		Redis:           rdb,
		Logger:          logger,
		ES:              es,
		ESAccountsIndex: esAccountsIndex,
	}
}

// AccountView is the external projection of an Account. There is no
// password field here, so the hash cannot serialize by accident.
type AccountView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AuthResult pairs the bearer token with the account view returned by
// register and login.
type AuthResult struct {
	Token       string
	TokenExpiry time.Time
	Account     AccountView
}

func viewOf(a *entity.Account) AccountView {
	return AccountView{
		ID:        a.ID,
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Phone:     a.Phone,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func profileKey(accountID string) string {
	return "account:profile:" + accountID
}

type RegisterInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	FirstName       string
	LastName        string
	Phone           string
}

// Register creates an account and issues its first token. The
// duplicate pre-check is a fast path; the unique constraint on
// accounts.email is what actually guarantees uniqueness under
// concurrent registrations.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	if in.Password != in.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}

	email := normalizeEmail(in.Email)
	existing, err := s.Repo.GetByEmail(email)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateEmail
	}

	hash, err := helpers.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	a := &entity.Account{
		Email:        email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Phone:        in.Phone,
	}
	if err := s.Repo.Create(a); err != nil {
		return nil, err
	}

	token, exp, err := s.JWT.GenerateToken(a.ID)
	if err != nil {
		if s.Logger != nil {
			s.Logger.WithError(err).WithField("account_id", a.ID).Error("generate token failed")
		}
		return nil, err
	}

	_ = s.indexAccount(ctx, a)

	return &AuthResult{Token: token, TokenExpiry: exp, Account: viewOf(a)}, nil
}

// Login validates credentials and issues a token. Unknown email and
// wrong password take the same exit.
func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	a, err := s.Repo.GetByEmailWithHash(normalizeEmail(email))
	if err != nil {
		// Only an absent account collapses into the uniform
		// credentials failure; a storage fault stays a server fault.
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !helpers.CompareHashAndPassword(a.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.JWT.GenerateToken(a.ID)
	if err != nil {
		if s.Logger != nil {
			s.Logger.WithError(err).WithField("account_id", a.ID).Error("generate token failed")
		}
		return nil, err
	}
	return &AuthResult{Token: token, TokenExpiry: exp, Account: viewOf(a)}, nil
}

// GetProfile resolves the subject id to an account view, serving from
// the redis cache when possible.
func (s *Service) GetProfile(ctx context.Context, accountID string) (*AccountView, error) {
	if s.Redis != nil {
		var cached AccountView
		if ok, err := helpers.RedisGetJSON(ctx, s.Redis, profileKey(accountID), &cached); err == nil && ok {
			return &cached, nil
		}
	}

	a, err := s.Repo.GetByID(accountID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	v := viewOf(a)

	if s.Redis != nil {
		if err := helpers.RedisSetJSON(ctx, s.Redis, profileKey(accountID), v, profileCacheTTL); err != nil && s.Logger != nil {
			s.Logger.WithError(err).WithField("account_id", accountID).Warn("profile cache set failed")
		}
	}
	return &v, nil
}

type UpdateProfileInput struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// UpdateProfile applies the whitelisted fields and refreshes the cache.
// The password hash is not among the updatable fields and the
// repository never writes that column on update.
func (s *Service) UpdateProfile(ctx context.Context, accountID string, in UpdateProfileInput) (*AccountView, error) {
	a, err := s.Repo.GetByID(accountID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	if in.FirstName != "" {
		a.FirstName = in.FirstName
	}
	if in.LastName != "" {
		a.LastName = in.LastName
	}
	if in.Email != "" {
		a.Email = normalizeEmail(in.Email)
	}
	if in.Phone != "" {
		a.Phone = in.Phone
	}
	if err := s.Repo.Update(a); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	v := viewOf(a)

	if s.Redis != nil {
		if err := helpers.RedisSetJSON(ctx, s.Redis, profileKey(accountID), v, profileCacheTTL); err != nil && s.Logger != nil {
			s.Logger.WithError(err).WithField("account_id", accountID).Warn("profile cache set failed")
		}
	}

	_ = s.indexAccount(ctx, a)
	return &v, nil
}

func (s *Service) indexAccount(ctx context.Context, a *entity.Account) error {
	if s.ES == nil || s.ESAccountsIndex == "" {
		return nil
	}
	doc := map[string]any{
		"id":         a.ID,
		"email":      a.Email,
		"first_name": a.FirstName,
		"last_name":  a.LastName,
		"created_at": a.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": a.UpdatedAt.Format(time.RFC3339Nano),
	}
	b, _ := json.Marshal(doc)
	req := esapi.IndexRequest{Index: s.ESAccountsIndex, DocumentID: a.ID, Body: strings.NewReader(string(b)), Refresh: "false"}
	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := req.Do(c, s.ES)
	if err != nil {
		if s.Logger != nil {
			s.Logger.WithError(err).WithField("account_id", a.ID).Warn("es index failed")
		}
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() && s.Logger != nil {
		s.Logger.WithField("status", res.Status()).WithField("account_id", a.ID).Warn("es index response error")
	}
	return nil
}

// SearchAccounts performs a simple multi_match search on email and names.
func (s *Service) SearchAccounts(ctx context.Context, q string, size int) ([]map[string]any, error) {
	if s.ES == nil || s.ESAccountsIndex == "" {
		return []map[string]any{}, nil
	}
	if size <= 0 || size > 50 {
		size = 10
	}
	query := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": []string{"email^2", "first_name", "last_name"},
			},
		},
		"size": size,
	}
	b, _ := json.Marshal(query)

	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := s.ES.Search(s.ES.Search.WithContext(c), s.ES.Search.WithIndex(s.ESAccountsIndex), s.ES.Search.WithBody(strings.NewReader(string(b))))
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string         `json:"_id"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}
