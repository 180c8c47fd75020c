package db

import (
	"io/fs"
	"net/url"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/authkeep/authserver/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresURL(t *testing.T) {
	raw := PostgresURL(config.DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "auth",
		Password: "p@ss word",
		DBName:   "accounts",
		UseSSL:   true,
	})

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "db.internal:5433", u.Host)
	assert.Equal(t, "/accounts", u.Path)
	assert.Equal(t, "auth", u.User.Username())
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss word", pw)
	assert.Equal(t, "require", u.Query().Get("sslmode"))
}

func TestPostgresURLDisablesSSLByDefault(t *testing.T) {
	u, err := url.Parse(PostgresURL(config.DatabaseConfig{Host: "localhost", Port: 5432}))
	require.NoError(t, err)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"migrations/000001_create_accounts.up.sql",
		"migrations/000001_create_accounts.down.sql",
	}, names)

	up, err := fs.ReadFile(migrationsFS, "migrations/000001_create_accounts.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), "CONSTRAINT accounts_username_key UNIQUE (username)")
	assert.Contains(t, string(up), "CONSTRAINT accounts_email_key UNIQUE (email)")
}

func TestConfigurePool(t *testing.T) {
	conn, _, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	configurePool(conn, config.DatabaseConfig{
		MaxOpenConns:    7,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	})
	assert.Equal(t, 7, conn.Stats().MaxOpenConnections)
}
