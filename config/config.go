package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverMemory   = "memory"

	PasswordAlgorithmBcrypt   = "bcrypt"
	PasswordAlgorithmArgon2id = "argon2id"

	MQBackendNone     = ""
	MQBackendRabbitMQ = "rabbitmq"
	MQBackendPubSub   = "pubsub"
	MQBackendMemory   = "memory"
)

// ErrMissingJWTSecret is returned when no signing secret is configured.
var ErrMissingJWTSecret = errors.New("JWT_SECRET is required")

type Config struct {
	Env            string         `env:"ENV" envDefault:"production"`
	ServerPort     int            `env:"SERVER_PORT" envDefault:"8080"`
	JWTSecret      string         `env:"JWT_SECRET"`
	RequestTimeout time.Duration  `env:"REQUEST_TIMEOUT" envDefault:"60s"`
	LogFormat      string         `env:"LOG_FORMAT" envDefault:"json"`
	LogLevel       string         `env:"LOG_LEVEL" envDefault:"info"`
	StoreDriver    string         `env:"STORE_DRIVER" envDefault:"postgres"`
	SQLitePath     string         `env:"SQLITE_PATH" envDefault:"authserver.db"`
	Database       DatabaseConfig `envPrefix:"DB_"`
	Password       PasswordConfig `envPrefix:"PASSWORD_"`
	CORS           CORSConfig     `envPrefix:"CORS_"`
	MQ             MQConfig
}

type DatabaseConfig struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"authserver"`
	Password string `env:"PASSWORD" envDefault:"password"`
	DBName   string `env:"NAME" envDefault:"authserver_db"`
	UseSSL   bool   `env:"USE_SSL" envDefault:"false"`

	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
}

type PasswordConfig struct {
	Algorithm     string `env:"ALGORITHM" envDefault:"bcrypt"`
	BcryptCost    int    `env:"BCRYPT_COST" envDefault:"10"`
	MaxConcurrent int    `env:"MAX_CONCURRENT"`
}

// CORSConfig controls which browser origins may call the API. An empty
// origin list disables CORS handling.
type CORSConfig struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	MaxAge         int      `env:"MAX_AGE" envDefault:"300"`
}

type MQConfig struct {
	Backend  string         `env:"MQ_BACKEND"`
	RabbitMQ RabbitMQConfig `envPrefix:"RABBITMQ_"`
	PubSub   PubSubConfig   `envPrefix:"PUBSUB_"`
}

type RabbitMQConfig struct {
	URL             string `env:"URL"`
	QueueDurable    bool   `env:"QUEUE_DURABLE" envDefault:"true"`
	QueueAutoDelete bool   `env:"QUEUE_AUTO_DELETE" envDefault:"false"`
	PrefetchCount   int    `env:"PREFETCH_COUNT" envDefault:"10"`
}

type PubSubConfig struct {
	ProjectID          string `env:"PROJECT_ID"`
	CredentialsFile    string `env:"CREDENTIALS_FILE"`
	SubscriptionSuffix string `env:"SUBSCRIPTION_SUFFIX" envDefault:"-sub"`
}

// LoadConfig reads configuration from the environment and validates it for
// running the server.
func LoadConfig() (Config, error) {
	cfg, err := Parse()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse reads configuration from the environment without validating it. In
// the dev environment a local .env file is loaded first.
func Parse() (Config, error) {
	if os.Getenv("ENV") == "dev" {
		_ = godotenv.Load()
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.JWTSecret = strings.TrimSpace(cfg.JWTSecret)
	cfg.CORS.AllowedOrigins = trimList(cfg.CORS.AllowedOrigins)
	if cfg.Password.MaxConcurrent <= 0 {
		cfg.Password.MaxConcurrent = runtime.NumCPU()
	}
	return cfg, nil
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if c.ServerPort < 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid SERVER_PORT %d", c.ServerPort)
	}

	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	case StoreDriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return errors.New("SQLITE_PATH is required for the sqlite store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.Password.Algorithm {
	case PasswordAlgorithmBcrypt, PasswordAlgorithmArgon2id:
	default:
		return fmt.Errorf("unknown PASSWORD_ALGORITHM %q", c.Password.Algorithm)
	}

	return c.MQ.Validate()
}

// Validate checks that the selected message backend is fully configured.
func (c MQConfig) Validate() error {
	switch c.Backend {
	case MQBackendNone, MQBackendMemory:
	case MQBackendRabbitMQ:
		if strings.TrimSpace(c.RabbitMQ.URL) == "" {
			return errors.New("RABBITMQ_URL is required for the rabbitmq backend")
		}
	case MQBackendPubSub:
		if strings.TrimSpace(c.PubSub.ProjectID) == "" {
			return errors.New("PUBSUB_PROJECT_ID is required for the pubsub backend")
		}
	default:
		return fmt.Errorf("unknown MQ_BACKEND %q", c.Backend)
	}
	return nil
}

func trimList(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
