package db

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Migrate applies every not yet recorded *.sql file in dir in lexical order.
// Only the part above a "-- +migrate Down" marker is executed.
func Migrate(ctx context.Context, database *sqlx.DB, dir string, log *zap.Logger) ([]string, error) {
	if _, err := database.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (filename text primary key, applied_at timestamptz default now())`); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations: %w", err)
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	sort.Strings(files)

	var applied []string
	for _, file := range files {
		filename := filepath.Base(file)
		var exists bool
		if err := database.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, filename); err != nil {
			return applied, fmt.Errorf("read migration state: %w", err)
		}
		if exists {
			continue
		}
		content, err := os.ReadFile(file)
		if err != nil {
			return applied, err
		}
		err = WithTx(ctx, database, func(tx *sqlx.Tx) error {
			for _, stmt := range upStatements(string(content)) {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, filename)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("apply %s: %w", filename, err)
		}
		log.Info("migration applied", zap.String("file", filename))
		applied = append(applied, filename)
	}
	return applied, nil
}

func upStatements(content string) []string {
	up, _, _ := strings.Cut(content, "-- +migrate Down")
	var statements []string
	for _, stmt := range splitSQL(up) {
		if strings.TrimSpace(stmt) != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}

func splitSQL(sqlText string) []string {
	var statements []string
	var current strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(sqlText))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		current.WriteString(line)
		current.WriteRune('\n')
		if strings.HasSuffix(strings.TrimSpace(line), ";") {
			statements = append(statements, current.String())
			current.Reset()
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		statements = append(statements, current.String())
	}
	return statements
}
