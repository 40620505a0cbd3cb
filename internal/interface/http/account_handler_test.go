package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accountapp "account-service/internal/application"
	"account-service/internal/domain/entity"
	"account-service/internal/domain/repository"
	"account-service/internal/interface/middleware"
	"account-service/pkg/helpers"
	"account-service/pkg/validation"
)

type memAccountRepo struct {
	mu          sync.Mutex
	byID        map[string]*entity.Account
	nextID      int
	failReadErr error
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{byID: map[string]*entity.Account{}}
}

func (f *memAccountRepo) findEmailLocked(email string) *entity.Account {
	for _, a := range f.byID {
		if a.Email == email {
			return a
		}
	}
	return nil
}

func (f *memAccountRepo) Create(a *entity.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findEmailLocked(a.Email) != nil {
		return repository.ErrDuplicateEmail
	}
	f.nextID++
	a.ID = fmt.Sprintf("acc-%d", f.nextID)
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	f.byID[a.ID] = &cp
	return nil
}

func (f *memAccountRepo) GetByID(id string) (*entity.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	cp.PasswordHash = ""
	return &cp, nil
}

func (f *memAccountRepo) GetByEmail(email string) (*entity.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.findEmailLocked(email)
	if a == nil {
		return nil, repository.ErrNotFound
	}
	cp := *a
	cp.PasswordHash = ""
	return &cp, nil
}

func (f *memAccountRepo) GetByEmailWithHash(email string) (*entity.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReadErr != nil {
		return nil, f.failReadErr
	}
	a := f.findEmailLocked(email)
	if a == nil {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *memAccountRepo) Update(a *entity.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.byID[a.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if other := f.findEmailLocked(a.Email); other != nil && other.ID != a.ID {
		return repository.ErrDuplicateEmail
	}
	stored.Email = a.Email
	stored.FirstName = a.FirstName
	stored.LastName = a.LastName
	stored.Phone = a.Phone
	stored.UpdatedAt = time.Now()
	return nil
}

func (f *memAccountRepo) storedHash(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.byID[id]; ok {
		return a.PasswordHash
	}
	return ""
}

var _ repository.AccountRepository = (*memAccountRepo)(nil)

var initValidatorOnce sync.Once

func newTestRouter(t *testing.T) (*gin.Engine, *memAccountRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	initValidatorOnce.Do(validation.Init)

	repo := newMemAccountRepo()
	jwt, err := helpers.NewJWTManager("handler-test-secret", time.Hour)
	require.NoError(t, err)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	svc := accountapp.NewService(repo, jwt, nil, logger, nil, "")
	h := NewAccountHandler(svc, logger)

	r := gin.New()
	api := r.Group("/api")
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	auth := api.Group("/auth")
	auth.Use(middleware.Auth(jwt))
	auth.GET("/me", h.GetMe)
	auth.PATCH("/me", h.UpdateMe)
	return r, repo
}

func doJSON(r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}

func registerBody() map[string]any {
	return map[string]any{
		"email":            "a@b.com",
		"password":         "secret123",
		"confirm_password": "secret123",
		"first_name":       "A",
		"last_name":        "B",
	}
}

func TestRegisterLoginProfileFlow(t *testing.T) {
	r, _ := newTestRouter(t)

	// Register
	w := doJSON(r, http.MethodPost, "/api/auth/register", "", registerBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	env := decodeEnvelope(t, w)
	data := env["data"].(map[string]any)
	token, _ := data["token"].(string)
	require.NotEmpty(t, token)
	account := data["account"].(map[string]any)
	assert.Equal(t, "a@b.com", account["email"])
	assert.Equal(t, "A", account["first_name"])

	// No hash in any response body.
	assert.NotContains(t, strings.ToLower(w.Body.String()), "password")

	// Fetch profile with the issued token.
	w = doJSON(r, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	me := decodeEnvelope(t, w)["data"].(map[string]any)
	assert.Equal(t, account["id"], me["id"])
	assert.Equal(t, "a@b.com", me["email"])

	// Update first name only.
	w = doJSON(r, http.MethodPatch, "/api/auth/me", token, map[string]any{"first_name": "C"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decodeEnvelope(t, w)["data"].(map[string]any)
	assert.Equal(t, "C", updated["first_name"])
	assert.Equal(t, "B", updated["last_name"])
}

func TestRegister_PasswordMismatch(t *testing.T) {
	r, _ := newTestRouter(t)
	body := registerBody()
	body["confirm_password"] = "different"
	w := doJSON(r, http.MethodPost, "/api/auth/register", "", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "passwords do not match", decodeEnvelope(t, w)["message"])
}

func TestRegister_DuplicateEmailNormalized(t *testing.T) {
	r, _ := newTestRouter(t)

	body := registerBody()
	body["email"] = "Foo@Bar.com"
	w := doJSON(r, http.MethodPost, "/api/auth/register", "", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body["email"] = "foo@bar.com"
	w = doJSON(r, http.MethodPost, "/api/auth/register", "", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "email already registered", decodeEnvelope(t, w)["message"])
}

func TestRegister_ValidationDetails(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(r, http.MethodPost, "/api/auth/register", "", map[string]any{
		"email":    "not-an-email",
		"password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, "invalid payload", env["message"])
	details := env["error"].(map[string]any)
	assert.Contains(t, details, "email")
	assert.Contains(t, details, "password")
	assert.Contains(t, details, "first_name")
}

func TestLogin_FailurePayloadsAreIdentical(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/auth/register", "", registerBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	wrongPwd := doJSON(r, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "a@b.com", "password": "wrong-password",
	})
	unknown := doJSON(r, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "nobody@b.com", "password": "secret123",
	})

	assert.Equal(t, http.StatusUnauthorized, wrongPwd.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)

	// Identical modulo the per-request envelope fields.
	a := decodeEnvelope(t, wrongPwd)
	b := decodeEnvelope(t, unknown)
	for _, m := range []map[string]any{a, b} {
		delete(m, "timestamp")
		delete(m, "request_id")
	}
	assert.Equal(t, a, b)
}

func TestUpdate_PasswordHashFieldIsIgnored(t *testing.T) {
	r, repo := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/auth/register", "", registerBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := decodeEnvelope(t, w)["data"].(map[string]any)
	token := data["token"].(string)
	id := data["account"].(map[string]any)["id"].(string)

	before := repo.storedHash(id)
	require.NotEmpty(t, before)

	w = doJSON(r, http.MethodPatch, "/api/auth/me", token, map[string]any{
		"first_name":    "C",
		"password_hash": "attacker-controlled",
		"password":      "attacker-controlled",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, before, repo.storedHash(id))

	// Original password still logs in.
	w = doJSON(r, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "a@b.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestLogin_StorageFaultIsServerError(t *testing.T) {
	r, repo := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/auth/register", "", registerBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	repo.failReadErr = errors.New("connection refused")

	w = doJSON(r, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "a@b.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, "server error", env["message"])
	// The generic fault must not leak storage internals.
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestMe_RequiresToken(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(r, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
