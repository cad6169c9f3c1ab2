// Package dbtest provides a migrated throwaway SQLite database for tests.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"booknet-backend/internal/platform/db"
)

// Open returns a migrated SQLite database living in t.TempDir().
func Open(t testing.TB) *sql.DB {
	t.Helper()
	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "booknet.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.Migrate(context.Background(), conn, db.SQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

// CreateUser inserts a user row directly and returns its id.
func CreateUser(t testing.TB, conn *sql.DB, firstName, lastName string) int64 {
	t.Helper()
	email := fmt.Sprintf("%s.%s.%d@example.com", firstName, lastName, time.Now().UnixNano())
	res, err := conn.Exec(
		`INSERT INTO users (email, first_name, last_name, password_hash, enabled, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		email, firstName, lastName, "x", true, time.Now().UTC(),
	)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("user id: %v", err)
	}
	return id
}
