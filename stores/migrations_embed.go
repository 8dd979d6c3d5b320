package stores

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/oarkflow/squealx"
)

//go:embed sql_migrations.sql
var migrationsSQL string

// Migrate applies the embedded schema. Statements are idempotent, so running
// it on every startup is safe.
func Migrate(db *squealx.DB) error {
	if _, err := db.ExecContext(context.Background(), migrationsSQL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
