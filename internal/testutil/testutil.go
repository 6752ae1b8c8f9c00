// Package testutil builds throwaway sqlite databases with the production migrations applied.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/Ramsey-B/trellis/db"
	"github.com/Ramsey-B/trellis/pkg/database"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func Logger() ectologger.Logger {
	return zapadapter.NewZapEctoLogger(zap.NewNop(), nil)
}

// NewDB opens a migrated sqlite database in t's temp dir.
func NewDB(t testing.TB) database.DB {
	t.Helper()

	logger := Logger()
	conn, err := database.Open(context.Background(), database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "trellis.db"),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		Source:    db.Migrations,
		Directory: db.MigrationsDirectory,
	})
	require.NoError(t, migrations.Migrate(conn))

	return conn
}

func exec(t testing.TB, conn database.DB, table string, cols []string, values ...any) {
	t.Helper()

	ib := conn.Flavor().NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(cols...)
	ib.Values(values...)
	query, args := ib.Build()

	_, err := conn.ExecContext(context.Background(), query, args...)
	require.NoError(t, err)
}

// SeedHuman inserts a human owner record and returns its id.
func SeedHuman(t testing.TB, conn database.DB, sandboxed bool) string {
	t.Helper()

	id := uuid.NewString()
	exec(t, conn, "humans", []string{"id", "display_name", "is_sandboxed", "created_at"},
		id, "human "+id[:8], sandboxed, database.Now())
	return id
}

// SeedOrganization inserts an organization owned by ownerHumanID plus its extra managers.
func SeedOrganization(t testing.TB, conn database.DB, ownerHumanID string, managerHumanIDs ...string) string {
	t.Helper()

	id := uuid.NewString()
	exec(t, conn, "organizations", []string{"id", "name", "owner_human_id", "created_at"},
		id, "org "+id[:8], ownerHumanID, database.Now())
	for _, humanID := range managerHumanIDs {
		exec(t, conn, "organization_managers", []string{"organization_id", "human_id", "role", "created_at"},
			id, humanID, "manager", database.Now())
	}
	return id
}

// SeedActor inserts an actor row directly, bypassing the directory, and returns its id.
func SeedActor(t testing.TB, conn database.DB, kind models.ActorKind, sandboxed bool) string {
	t.Helper()

	id := uuid.NewString()
	now := database.Now()
	exec(t, conn, "actors", []string{"id", "kind", "owner_ref", "is_sandboxed", "is_active", "created_at", "updated_at"},
		id, string(kind), uuid.NewString(), sandboxed, true, now, now)
	return id
}

// Count returns the number of rows in table matching the equality filters.
func Count(t testing.TB, conn database.DB, table string, where map[string]any) int {
	t.Helper()

	sb := conn.Flavor().NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(table)
	for col, value := range where {
		sb.Where(sb.Equal(col, value))
	}
	query, args := sb.Build()

	var n int
	require.NoError(t, conn.GetContext(context.Background(), &n, query, args...))
	return n
}
