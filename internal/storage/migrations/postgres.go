package migrations

import (
	"context"
	"fmt"
	"log/slog"

	"kol-scoreboard/internal/storage/postgres"
)

// RunPostgresMigrations applies the embedded postgres schema.
// Each file is idempotent and runs as one multi-statement Exec, so
// plpgsql bodies with semicolons are safe.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := load(PostgresFS, "postgres")
	if err != nil {
		return err
	}

	for _, m := range files {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
		slog.Debug("applied migration", "backend", "postgres", "file", m.name)
	}
	return nil
}
