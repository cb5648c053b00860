// Command migrate generates a SQL script that initializes the tracking
// schema on a fresh database and, when the legacy SQLite database exists,
// carries its rows over.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/Sternrassler/tracking-proxy/pkg/store"
)

const (
	legacyDBPath = "data/cbel-tracking.db"
	outputPath   = "scripts/d1-migration.sql"
)

// exportTables lists the legacy tables and the columns carried over.
var exportTables = []struct {
	name    string
	columns []string
}{
	{"config", []string{"key", "value", "updated_at"}},
	{"stats", []string{"date", "period_type", "count", "created_at", "updated_at"}},
	{"query_logs", []string{"tracking_number", "status", "response_time", "error_message", "ip_address", "user_agent", "created_at"}},
}

// migrator writes the migration script. Paths are relative to the working
// directory.
type migrator struct {
	dbPath  string
	outPath string
	now     func() time.Time
}

func main() {
	m := &migrator{dbPath: legacyDBPath, outPath: outputPath, now: time.Now}
	if err := newRootCmd(m).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}

func newRootCmd(m *migrator) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Generate the D1 migration script",
		Long: `Writes ` + outputPath + ` with the idempotent schema. When the legacy
database ` + legacyDBPath + ` exists its rows are exported as
INSERT OR REPLACE statements after the schema.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		// failures are reported but never change the exit code
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if err := m.run(cmd.Context(), out); err != nil {
				fmt.Fprintf(out, "Migration failed: %v\n", err)
			}
			return nil
		},
	}
}

func (m *migrator) run(ctx context.Context, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var script strings.Builder
	fmt.Fprintf(&script, "-- tracking-proxy D1 migration\n-- generated: %s\n\n", m.now().UTC().Format(time.RFC3339))
	script.WriteString(store.Schema)
	script.WriteString("\n")

	exported := 0
	if _, err := os.Stat(m.dbPath); err != nil {
		fmt.Fprintf(out, "Legacy database not found at %s, writing schema and default config only\n", m.dbPath)
		fmt.Fprintf(&script, "INSERT OR REPLACE INTO config (key, value, updated_at) VALUES (%s, %s, CURRENT_TIMESTAMP);\n",
			quote(store.SiteConfigKey), quote(store.DefaultSiteConfig))
	} else {
		fmt.Fprintf(out, "Exporting legacy database %s\n", m.dbPath)
		n, err := exportLegacy(ctx, m.dbPath, &script)
		if err != nil {
			return err
		}
		exported = n
	}

	script.WriteString("\n-- apply with: wrangler d1 execute <database> --file=" + outputPath + "\n")

	if err := os.MkdirAll(filepath.Dir(m.outPath), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(m.outPath, []byte(script.String()), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", m.outPath, err)
	}

	fmt.Fprintf(out, "Wrote %s (%d rows exported)\n\n", m.outPath, exported)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "1. Log in to Cloudflare: wrangler login")
	fmt.Fprintf(out, "2. Apply the script: wrangler d1 execute <database> --file=%s\n", outputPath)
	fmt.Fprintln(out, `3. Verify: wrangler d1 execute <database> --command="SELECT * FROM config"`)
	return nil
}

// exportLegacy appends one INSERT OR REPLACE statement per legacy row.
func exportLegacy(ctx context.Context, path string, w io.StringWriter) (int, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return 0, fmt.Errorf("open legacy database: %w", err)
	}
	defer db.Close()

	total := 0
	for _, table := range exportTables {
		query := fmt.Sprintf("SELECT %s FROM %s ORDER BY id", strings.Join(table.columns, ", "), table.name)
		rows, err := db.QueryContext(ctx, query)
		if err != nil {
			return total, fmt.Errorf("read %s: %w", table.name, err)
		}

		w.WriteString(fmt.Sprintf("\n-- %s\n", table.name))
		values := make([]any, len(table.columns))
		ptrs := make([]any, len(values))
		for i := range values {
			ptrs[i] = &values[i]
		}
		for rows.Next() {
			if err := rows.Scan(ptrs...); err != nil {
				rows.Close()
				return total, fmt.Errorf("scan %s: %w", table.name, err)
			}
			literals := make([]string, len(values))
			for i, v := range values {
				literals[i] = sqlLiteral(v)
			}
			w.WriteString(fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s);\n",
				table.name, strings.Join(table.columns, ", "), strings.Join(literals, ", ")))
			total++
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return total, fmt.Errorf("iterate %s: %w", table.name, err)
		}
	}
	return total, nil
}

func sqlLiteral(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "1"
		}
		return "0"
	case []byte:
		return quote(string(val))
	case string:
		return quote(val)
	case time.Time:
		return quote(val.UTC().Format("2006-01-02 15:04:05"))
	default:
		return quote(fmt.Sprint(val))
	}
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
