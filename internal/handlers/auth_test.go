package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/authkeep/authserver/internal/logging"
	"github.com/authkeep/authserver/internal/password"
	"github.com/authkeep/authserver/internal/services"
	"github.com/authkeep/authserver/internal/store"
	"github.com/authkeep/authserver/internal/token"
	"github.com/authkeep/authserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type unsignableIssuer struct {
	services.TokenIssuer
}

func (unsignableIssuer) Issue(string) (string, error) {
	return "", errors.New("key unavailable")
}

type downRepo struct {
	services.AccountRepository
}

func (downRepo) Create(context.Context, types.Account) (types.Account, error) {
	return types.Account{}, errors.New("pq: password authentication failed for user \"authserver\"")
}

func (downRepo) Ping(context.Context) error {
	return errors.New("connection refused")
}

func newRouter(t *testing.T, repo services.AccountRepository, issuer services.TokenIssuer) *chi.Mux {
	t.Helper()

	if issuer == nil {
		tokens, err := token.NewIssuer("test-secret")
		require.NoError(t, err)
		issuer = tokens
	}
	accounts := services.NewAccountService(
		repo,
		password.NewBounded(password.NewBcryptHasher(bcrypt.MinCost), 2),
		issuer,
		services.WithLogger(logging.Discard()),
	)

	r := chi.NewRouter()
	r.NotFound(NotFound)
	r.Get("/healthz", Healthz(accounts))
	AuthRouter(r, accounts, logging.Discard())
	return r
}

func serve(r http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var decoded map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	return rec, decoded
}

func TestRegisterReturnsWarningWhenTokenUnavailable(t *testing.T) {
	repo := store.NewMemoryAccountRepository()
	r := newRouter(t, repo, unsignableIssuer{})

	rec, body := serve(r, http.MethodPost, "/register", `{"username":"alice","email":"a@x.com","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, body, "token")
	assert.Equal(t, services.WarningTokenUnavailable, body["warning"])
	assert.Equal(t, "alice", body["user"].(map[string]any)["username"])

	_, err := repo.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
}

func TestRegisterInternalErrorHidesDriverText(t *testing.T) {
	r := newRouter(t, downRepo{}, nil)

	rec, body := serve(r, http.MethodPost, "/register", `{"username":"alice","email":"a@x.com","password":"secret1"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "create account", body["error"])
	assert.NotEmpty(t, body["message"])
	assert.NotContains(t, rec.Body.String(), "pq:")
	assert.NotContains(t, rec.Body.String(), "authserver")
}

func TestHealthzReportsStoreOutage(t *testing.T) {
	r := newRouter(t, downRepo{}, nil)

	rec, body := serve(r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unavailable", body["status"])
}

func TestNotFound(t *testing.T) {
	r := newRouter(t, store.NewMemoryAccountRepository(), nil)

	rec, body := serve(r, http.MethodGet, "/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "route not found", body["message"])
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer  abc ", "abc", true},
		{"", "", false},
		{"Basic abc", "", false},
		{"Bearer ", "", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", tt.header)
		got, err := bearerToken(req)
		if !tt.ok {
			assert.Error(t, err, "header %q", tt.header)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
