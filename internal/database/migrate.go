// internal/database/migrate.go
//
// Embedded schema bootstrap.
//
// Context
// -------
// schema.sql holds idempotent CREATE TABLE IF NOT EXISTS statements for the
// whole pipeline.  `cmd/web -migrate` runs them once at boot.  Statements are
// separated by a line holding only ";" so the splitter never has to parse
// SQL string literals.
package database

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

//go:embed schema.sql
var schema string

// Statements returns the non-empty schema statements in file order.
func Statements() []string {
	parts := strings.Split(schema, "\n;\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Migrate executes every schema statement in order.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range Statements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
