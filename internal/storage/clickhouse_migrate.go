package storage

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/moment-tracker/internal/logging"
)

// RunClickHouseMigrations applies the embedded ClickHouse schema. Every
// statement is idempotent, so running it on each start is safe.
func RunClickHouseMigrations(ctx context.Context, db *ClickHouseDB) error {
	logger := logging.FromContext(ctx).WithField("component", "clickhouse_migrate")

	files, err := fs.Glob(migrationFiles, "migrations/clickhouse/*.sql")
	if err != nil {
		return fmt.Errorf("failed to list clickhouse migrations: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := fs.ReadFile(migrationFiles, file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		for i, stmt := range splitSQLStatements(string(content)) {
			logger.Debugf("executing %s statement %d: %s", file, i+1, truncate(stmt, 80))
			if err := db.Conn().Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to execute statement in %s: %w", file, err)
			}
		}
		logger.WithField("file", file).Info("applied clickhouse migration")
	}
	return nil
}

// splitSQLStatements splits SQL content into individual statements, dropping
// comment lines and trailing semicolons
func splitSQLStatements(content string) []string {
	var statements []string
	var current strings.Builder

	flush := func() {
		stmt := strings.TrimSuffix(strings.TrimSpace(current.String()), ";")
		if stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}
	flush()
	return statements
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
