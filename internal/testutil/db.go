// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"

	"audio-eval/internal/db"
	"audio-eval/internal/migrations"
)

// NewDB returns a migrated sqlite database in a temp dir, closed on cleanup.
func NewDB(t testing.TB) *sqlx.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "api.db")
	if err := migrations.Run(path); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	dbx, err := db.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = dbx.Close() })
	return dbx
}
