// Package dbtest opens a migrated Postgres database for integration tests.
package dbtest

import (
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/curaious/projecthub/internal/migrations"
)

// EnvDatabaseURL names the variable holding the test database DSN.
const EnvDatabaseURL = "PROJECTHUB_TEST_DATABASE_URL"

// Open connects to the test database and applies all migrations. The test is skipped when
// EnvDatabaseURL is unset.
func Open(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := os.Getenv(EnvDatabaseURL)
	if dsn == "" {
		t.Skipf("%s not set", EnvDatabaseURL)
	}

	conn, err := sqlx.Open("postgres", dsn)
	require.NoError(t, err)
	require.NoError(t, conn.Ping())
	t.Cleanup(func() { _ = conn.Close() })

	migrator, err := migrations.NewMigrator(conn)
	require.NoError(t, err)
	require.NoError(t, migrator.Up(0))

	return conn
}
