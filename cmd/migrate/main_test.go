package main

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const legacySchema = `
CREATE TABLE config (id INTEGER PRIMARY KEY AUTOINCREMENT, key TEXT UNIQUE NOT NULL, value TEXT NOT NULL, updated_at DATETIME DEFAULT CURRENT_TIMESTAMP);
CREATE TABLE stats (id INTEGER PRIMARY KEY AUTOINCREMENT, date TEXT NOT NULL, period_type TEXT NOT NULL, count INTEGER NOT NULL DEFAULT 0, created_at DATETIME DEFAULT CURRENT_TIMESTAMP, updated_at DATETIME DEFAULT CURRENT_TIMESTAMP, UNIQUE(date, period_type));
CREATE TABLE query_logs (id INTEGER PRIMARY KEY AUTOINCREMENT, tracking_number TEXT NOT NULL, status TEXT NOT NULL, response_time INTEGER, error_message TEXT, ip_address TEXT, user_agent TEXT, created_at DATETIME DEFAULT CURRENT_TIMESTAMP);
INSERT INTO config (key, value, updated_at) VALUES ('site', '{"title":"It''s tracking"}', '2024-01-02 03:04:05');
INSERT INTO stats (date, period_type, count, created_at, updated_at) VALUES ('2024-01-02', 'daily', 7, '2024-01-02 00:00:00', '2024-01-02 10:00:00');
INSERT INTO query_logs (tracking_number, status, response_time, error_message, ip_address, user_agent, created_at) VALUES ('ABC123', 'failed', 120, 'HTTP 500', NULL, 'curl', '2024-01-02 10:00:00');
`

func newTestMigrator(t *testing.T) *migrator {
	t.Helper()
	dir := t.TempDir()
	return &migrator{
		dbPath:  filepath.Join(dir, "data", "cbel-tracking.db"),
		outPath: filepath.Join(dir, "scripts", "d1-migration.sql"),
		now:     func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func execute(t *testing.T, m *migrator) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(m)
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	return out.String()
}

func TestMigrate_NoLegacyDatabase(t *testing.T) {
	m := newTestMigrator(t)

	out := execute(t, m)
	assert.Contains(t, out, "Legacy database not found")
	assert.Contains(t, out, "Next steps:")

	script, err := os.ReadFile(m.outPath)
	require.NoError(t, err)
	text := string(script)

	assert.Contains(t, text, "-- generated: 2024-05-01T12:00:00Z")
	assert.Contains(t, text, "CREATE TABLE IF NOT EXISTS stats")
	assert.Contains(t, text, "CREATE TABLE IF NOT EXISTS query_logs")
	assert.Contains(t, text, "INSERT OR REPLACE INTO config (key, value, updated_at) VALUES ('site'")
}

func TestMigrate_ExportsLegacyRows(t *testing.T) {
	m := newTestMigrator(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(m.dbPath), 0o755))

	db, err := sql.Open("sqlite", "file:"+m.dbPath)
	require.NoError(t, err)
	_, err = db.Exec(legacySchema)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	out := execute(t, m)
	assert.Contains(t, out, "(3 rows exported)")

	script, err := os.ReadFile(m.outPath)
	require.NoError(t, err)
	text := string(script)

	assert.Contains(t, text, `INSERT OR REPLACE INTO config (key, value, updated_at) VALUES ('site', '{"title":"It''s tracking"}', `)
	assert.Contains(t, text, "INSERT OR REPLACE INTO stats (date, period_type, count, created_at, updated_at) VALUES ('2024-01-02', 'daily', 7, ")
	assert.Contains(t, text, "VALUES ('ABC123', 'failed', 120, 'HTTP 500', NULL, 'curl', ")

	// legacy rows replace the default config instead of adding to it
	assert.Equal(t, 1, strings.Count(text, "INSERT OR REPLACE INTO config"))
}

func TestMigrate_ErrorsDoNotFail(t *testing.T) {
	m := newTestMigrator(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(m.dbPath), 0o755))
	require.NoError(t, os.WriteFile(m.dbPath, []byte("not a database"), 0o644))

	out := execute(t, m)
	assert.Contains(t, out, "Migration failed")
}

func TestSQLLiteral(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "NULL"},
		{int64(42), "42"},
		{1.5, "1.5"},
		{true, "1"},
		{"O'Brien", "'O''Brien'"},
		{[]byte("raw"), "'raw'"},
		{time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), "'2024-01-02 03:04:05'"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, sqlLiteral(tt.in))
	}
}
