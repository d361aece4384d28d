package db

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"fitportal/internal/models"
	"fitportal/internal/store"
)

func TestApplyMigrationsAddsDeliveryColumnsForLegacySchema(t *testing.T) {
	sqdb, err := OpenSQLite(filepath.Join(t.TempDir(), "legacy.db"), 1, 1, time.Minute)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqdb.Close() })

	legacySchema := `
CREATE TABLE contact_submissions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  first_name TEXT NOT NULL DEFAULT '',
  last_name TEXT NOT NULL DEFAULT '',
  email TEXT NOT NULL,
  phone TEXT,
  message TEXT NOT NULL,
  services TEXT NOT NULL DEFAULT 'Not specified',
  source_ip TEXT,
  created_at DATETIME NOT NULL
);
`
	if _, err := sqdb.Exec(legacySchema); err != nil {
		t.Fatalf("create legacy schema: %v", err)
	}
	now := time.Now().UTC()
	if _, err := sqdb.Exec(
		`INSERT INTO contact_submissions(name,email,message,created_at) VALUES(?,?,?,?)`,
		"Legacy Lead", "legacy@example.com", "hello", now,
	); err != nil {
		t.Fatalf("insert legacy submission: %v", err)
	}

	dir := MigrationsDir(filepath.Join("..", "..", "migrations"), DriverSQLite)
	if err := ApplyMigrations(sqdb, dir); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	// Re-running must be a no-op.
	if err := ApplyMigrations(sqdb, dir); err != nil {
		t.Fatalf("re-apply migrations: %v", err)
	}

	for _, col := range []string{"delivery_status", "emails_sent", "emails_failed", "delivery_attempts", "last_delivery_error", "delivered_at"} {
		if !hasColumn(t, sqdb, "contact_submissions", col) {
			t.Fatalf("expected contact_submissions.%s to exist after migration", col)
		}
	}
	if !hasColumn(t, sqdb, "users", "role") {
		t.Fatalf("expected users table to be created")
	}

	st := store.New(sqdb, DriverSQLite)
	subs, err := st.ListSubmissions(context.Background(), models.SubmissionQuery{Since: now.Add(-time.Hour), Limit: 10})
	if err != nil {
		t.Fatalf("ListSubmissions should work after migration, got: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("expected 1 legacy submission, got %d", len(subs))
	}
	if subs[0].Delivery.Status != models.DeliveryPending {
		t.Fatalf("expected default delivery_status pending, got %q", subs[0].Delivery.Status)
	}
}

func TestSplitStatements(t *testing.T) {
	src := "-- comment\nCREATE TABLE a (\n  id INTEGER\n);\n\nCREATE INDEX i ON a(id);\n"
	got := splitStatements(src)
	if len(got) != 2 {
		t.Fatalf("expected 2 statements, got %d: %#v", len(got), got)
	}
	if got[1] != "CREATE INDEX i ON a(id)" {
		t.Fatalf("unexpected second statement: %q", got[1])
	}
}

func hasColumn(t *testing.T, sqdb *sql.DB, tableName, colName string) bool {
	t.Helper()
	rows, err := sqdb.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		t.Fatalf("table_info %s: %v", tableName, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notNull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			t.Fatalf("scan table_info %s: %v", tableName, err)
		}
		if name == colName {
			return true
		}
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("iterate table_info %s: %v", tableName, err)
	}
	return false
}
