package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/authkeep/authserver/internal/metrics"
	"github.com/authkeep/authserver/internal/password"
	"github.com/authkeep/authserver/internal/store"
	"github.com/authkeep/authserver/types"
)

// WarningTokenUnavailable is attached to a registration whose account was
// stored but whose token could not be issued.
const WarningTokenUnavailable = "account created but a token could not be issued; please log in"

const eventPublishTimeout = 5 * time.Second

// AccountRepository defines persistence operations for accounts.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (types.Account, error)
	GetByUsername(ctx context.Context, username string) (types.Account, error)
	GetByUsernameOrEmail(ctx context.Context, username, email string) (types.Account, error)
	Create(ctx context.Context, account types.Account) (types.Account, error)
	Ping(ctx context.Context) error
}

// PasswordHasher derives and verifies password hashes.
type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, password, hash string) (bool, error)
	DummyHash() (string, error)
}

// TokenIssuer mints and validates bearer tokens.
type TokenIssuer interface {
	Issue(accountID string) (string, error)
	Validate(token string) (string, error)
}

// EventPublisher announces newly registered accounts.
type EventPublisher interface {
	PublishAccountRegistered(ctx context.Context, account types.Account) (string, error)
}

// Recorder counts flow outcomes.
type Recorder interface {
	Registration(result string)
	Login(result string)
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

type LoginInput struct {
	Username string
	Password string
}

// RegisterResult is the outcome of a successful registration. Token is
// empty, and Warning set, when the account was stored but no token could be
// issued.
type RegisterResult struct {
	Account types.Account
	Token   string
	Warning string
}

type LoginResult struct {
	Account types.Account
	Token   string
}

// AccountService encapsulates the registration and login use-cases.
type AccountService struct {
	repo    AccountRepository
	hasher  PasswordHasher
	tokens  TokenIssuer
	events  EventPublisher
	metrics Recorder
	logger  *slog.Logger
}

type AccountServiceOption func(*AccountService)

// WithEvents publishes registration events through p.
func WithEvents(p EventPublisher) AccountServiceOption {
	return func(s *AccountService) {
		s.events = p
	}
}

// WithRecorder reports flow outcomes to r.
func WithRecorder(r Recorder) AccountServiceOption {
	return func(s *AccountService) {
		s.metrics = r
	}
}

func WithLogger(l *slog.Logger) AccountServiceOption {
	return func(s *AccountService) {
		s.logger = l
	}
}

func NewAccountService(repo AccountRepository, hasher PasswordHasher, tokens TokenIssuer, opts ...AccountServiceOption) *AccountService {
	s := &AccountService{
		repo:   repo,
		hasher: hasher,
		tokens: tokens,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account and issues a token for it. Uniqueness is
// decided by the repository's atomic insert; a collision is returned as a
// *store.DuplicateKeyError naming the field.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	if err := requireFields(
		[2]string{"username", username},
		[2]string{"email", email},
		[2]string{"password", in.Password},
	); err != nil {
		s.recordRegistration(metrics.ResultInvalid)
		return RegisterResult{}, err
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooLong) {
			s.recordRegistration(metrics.ResultInvalid)
			return RegisterResult{}, &ValidationError{
				Fields: []string{"password"},
				Reason: fmt.Sprintf("password must be at most %d bytes", password.BcryptMaxPasswordBytes),
			}
		}
		s.recordRegistration(metrics.ResultError)
		return RegisterResult{}, internalError("hash password", err)
	}

	account, err := s.repo.Create(ctx, types.Account{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			s.recordRegistration(metrics.ResultDuplicate)
			return RegisterResult{}, err
		}
		s.recordRegistration(metrics.ResultError)
		return RegisterResult{}, internalError("create account", err)
	}

	s.logger.InfoContext(ctx, "account registered", slog.String("account_id", account.ID))
	s.publishRegistered(ctx, account)

	// The account is durable at this point; a signing failure must not undo it.
	token, err := s.tokens.Issue(account.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "token issuance failed after registration",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()))
		s.recordRegistration(metrics.ResultPartial)
		return RegisterResult{Account: account, Warning: WarningTokenUnavailable}, nil
	}

	s.recordRegistration(metrics.ResultSuccess)
	return RegisterResult{Account: account, Token: token}, nil
}

// Login verifies credentials and issues a token. Unknown usernames and
// wrong passwords both yield ErrInvalidCredentials and cost one hash
// verification each.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	username := strings.TrimSpace(in.Username)
	if err := requireFields(
		[2]string{"username", username},
		[2]string{"password", in.Password},
	); err != nil {
		s.recordLogin(metrics.ResultInvalid)
		return LoginResult{}, err
	}

	account, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.recordLogin(metrics.ResultError)
			return LoginResult{}, internalError("find account", err)
		}
		s.burnVerification(ctx, in.Password)
		s.recordLogin(metrics.ResultInvalidCredentials)
		return LoginResult{}, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(ctx, in.Password, account.PasswordHash)
	if err != nil {
		s.recordLogin(metrics.ResultError)
		return LoginResult{}, internalError("verify password", err)
	}
	if !ok {
		s.recordLogin(metrics.ResultInvalidCredentials)
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(account.ID)
	if err != nil {
		s.recordLogin(metrics.ResultError)
		return LoginResult{}, internalError("issue token", err)
	}

	s.recordLogin(metrics.ResultSuccess)
	return LoginResult{Account: account, Token: token}, nil
}

// Me resolves a bearer token to the account it was issued for.
func (s *AccountService) Me(ctx context.Context, token string) (types.Account, error) {
	accountID, err := s.tokens.Validate(token)
	if err != nil {
		return types.Account{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Account{}, ErrUnauthorized
		}
		return types.Account{}, internalError("find account", err)
	}
	return account, nil
}

// Ping reports whether the account store is reachable.
func (s *AccountService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// burnVerification spends the same effort as a real verification so that
// response times do not reveal whether a username exists.
func (s *AccountService) burnVerification(ctx context.Context, plaintext string) {
	dummy, err := s.hasher.DummyHash()
	if err != nil {
		return
	}
	_, _ = s.hasher.Verify(ctx, plaintext, dummy)
}

func (s *AccountService) publishRegistered(ctx context.Context, account types.Account) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()

	if _, err := s.events.PublishAccountRegistered(ctx, account); err != nil {
		s.logger.WarnContext(ctx, "publish account registered event failed",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()))
	}
}

func (s *AccountService) recordRegistration(result string) {
	if s.metrics != nil {
		s.metrics.Registration(result)
	}
}

func (s *AccountService) recordLogin(result string) {
	if s.metrics != nil {
		s.metrics.Login(result)
	}
}
