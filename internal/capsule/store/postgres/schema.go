package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schema string

// Tables lists every table Migrate creates, in dependency order.
var Tables = []string{"capsule_outbox", "capsules", "capsule_registry"}

// Migrate applies the ledger schema. It is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply capsule schema: %w", err)
	}
	return nil
}
