package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/authkeep/authserver/config"
	"github.com/authkeep/authserver/internal/db"
	"github.com/authkeep/authserver/internal/handlers"
	"github.com/authkeep/authserver/internal/metrics"
	"github.com/authkeep/authserver/internal/mq"
	"github.com/authkeep/authserver/internal/password"
	"github.com/authkeep/authserver/internal/services"
	"github.com/authkeep/authserver/internal/store"
	"github.com/authkeep/authserver/internal/token"
	"github.com/authkeep/authserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	logger     *slog.Logger
	closers    []io.Closer
	stopEvents context.CancelFunc
}

// New wires the account store, password hasher, token issuer and event
// backend selected by cfg behind a chi router.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{logger: logger}

	issuer, err := token.NewIssuer(cfg.JWTSecret)
	if err != nil {
		return nil, err
	}

	repo, err := s.openAccountRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	hasher := password.NewBounded(
		newHasher(cfg.Password),
		cfg.Password.MaxConcurrent,
		password.WithObserver(m.ObservePasswordHash),
	)

	opts := []services.AccountServiceOption{
		services.WithLogger(logger),
		services.WithRecorder(m),
	}
	broker, err := mq.NewFromConfig(ctx, cfg.MQ)
	if err != nil {
		s.closeAll()
		return nil, fmt.Errorf("init message backend: %w", err)
	}
	if broker != nil {
		s.closers = append(s.closers, broker)
		opts = append(opts, services.WithEvents(broker))
		if cfg.MQ.Backend == config.MQBackendMemory {
			s.logLocalEvents(broker)
		}
	}

	accounts := services.NewAccountService(repo, hasher, issuer, opts...)

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(logger),
		middleware.Recoverer,
		middleware.Timeout(timeout),
	)
	if withCORS := corsHandler(cfg.CORS); withCORS != nil {
		router.Use(withCORS)
	}
	router.NotFound(handlers.NotFound)
	router.MethodNotAllowed(handlers.MethodNotAllowed)
	router.Get("/healthz", handlers.Healthz(accounts))
	router.Method(http.MethodGet, "/metrics", m.Handler())
	handlers.AuthRouter(router, accounts, logger)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.logger.Info("http server listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then releases the store and broker.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.stopEvents != nil {
		s.stopEvents()
	}
	s.closeAll()
	return err
}

func (s *Server) closeAll() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			s.logger.Warn("close dependency", slog.String("error", err.Error()))
		}
	}
	s.closers = nil
}

// logLocalEvents drains the in-memory broker so registrations are visible
// in the server log during local development.
func (s *Server) logLocalEvents(broker *mq.MQ) {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopEvents = cancel
	go func() {
		_ = broker.ConsumeAccountRegistered(ctx, func(ctx context.Context, event types.AccountRegistered) error {
			s.logger.InfoContext(ctx, "account registered event",
				slog.String("account_id", event.ID),
				slog.String("username", event.Username))
			return nil
		})
	}()
}

func (s *Server) openAccountRepository(ctx context.Context, cfg config.Config) (services.AccountRepository, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		s.logger.Warn("using in-memory account store; accounts are lost on restart")
		return store.NewMemoryAccountRepository(), nil
	case config.StoreDriverSQLite:
		repo, err := store.OpenSQLiteAccountRepository(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, repo)
		return repo, nil
	case config.StoreDriverPostgres, "":
		conn, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, conn)
		return store.NewAccountRepository(conn), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func newHasher(cfg config.PasswordConfig) password.Hasher {
	if cfg.Algorithm == config.PasswordAlgorithmArgon2id {
		return password.NewArgon2idHasher()
	}
	return password.NewBcryptHasher(cfg.BcryptCost)
}
