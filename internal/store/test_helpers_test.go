package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

// openTestDB connects to AUTOREPLY_TEST_DATABASE_URL and resets its
// schema. Tests calling it skip when the variable is unset.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	connStr := os.Getenv("AUTOREPLY_TEST_DATABASE_URL")
	if connStr == "" {
		t.Skip("set AUTOREPLY_TEST_DATABASE_URL to a dedicated test database")
	}

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	resetSchema(t, connStr)
	return db
}

func resetSchema(t *testing.T, connStr string) {
	t.Helper()

	dir, err := filepath.Abs(filepath.Join("..", "..", "migrations"))
	require.NoError(t, err)

	m, err := migrate.New("file://"+dir, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = m.Close() })

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("schema reset (down): %v", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("schema reset (up): %v", err)
	}
}

func createTestOrganization(t *testing.T, db *sql.DB, slug string) string {
	t.Helper()

	org, err := NewOrgStore(db).Create(context.Background(), "Org "+slug, slug)
	require.NoError(t, err)
	return org.ID
}
