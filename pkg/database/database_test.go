package database_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Ramsey-B/trellis/internal/testutil"
	"github.com/Ramsey-B/trellis/pkg/database"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertHuman(ctx context.Context, db database.DB, id string) error {
	ib := database.NewInsertBuilder(db.Flavor()).
		InsertInto("humans").
		Cols("id", "display_name", "is_sandboxed", "created_at").
		Values(id, "name", false, database.Now())
	query, args := ib.Build()

	_, err := database.Executor(ctx, db).ExecContext(ctx, query, args...)
	return err
}

func TestRunInTx_Commit(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	err := database.RunInTx(ctx, db, func(ctx context.Context) error {
		assert.True(t, database.InTx(ctx))
		return insertHuman(ctx, db, "h1")
	})
	require.NoError(t, err)
	assert.False(t, database.InTx(ctx))
	assert.Equal(t, 1, testutil.Count(t, db, "humans", map[string]any{"id": "h1"}))
}

func TestRunInTx_RollbackOnError(t *testing.T) {
	db := testutil.NewDB(t)
	boom := errors.New("boom")

	err := database.RunInTx(context.Background(), db, func(ctx context.Context) error {
		require.NoError(t, insertHuman(ctx, db, "h1"))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, testutil.Count(t, db, "humans", nil))
}

func TestRunInTx_JoinsOuterTransaction(t *testing.T) {
	db := testutil.NewDB(t)
	boom := errors.New("boom")

	err := database.RunInTx(context.Background(), db, func(ctx context.Context) error {
		inner := database.RunInTx(ctx, db, func(ctx context.Context) error {
			return insertHuman(ctx, db, "h1")
		})
		require.NoError(t, inner)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	// the inner call did not commit on its own
	assert.Equal(t, 0, testutil.Count(t, db, "humans", nil))
}

func TestIsUniqueViolation(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	require.NoError(t, insertHuman(ctx, db, "h1"))
	err := insertHuman(ctx, db, "h1")
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err))

	assert.False(t, database.IsUniqueViolation(nil))
	assert.False(t, database.IsUniqueViolation(errors.New("connection refused")))
	assert.True(t, database.IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, database.IsUniqueViolation(&pq.Error{Code: "23503"}))
}

func TestInsertBuilder_OnConflictDoNothing(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	require.NoError(t, insertHuman(ctx, db, "h1"))

	ib := database.NewInsertBuilder(db.Flavor()).
		InsertInto("humans").
		Cols("id", "display_name", "is_sandboxed", "created_at").
		Values("h1", "other", true, database.Now()).
		OnConflictDoNothing("id")
	query, args := ib.Build()

	res, err := db.ExecContext(ctx, query, args...)
	require.NoError(t, err)
	assert.Equal(t, int64(0), database.RowsAffected(res))
}

func TestInsertBuilder_OnConflictUpdate(t *testing.T) {
	ib := database.NewInsertBuilder(sqlbuilder.PostgreSQL).
		InsertInto("actors").
		Cols("id", "is_active").
		Values("a1", true).
		OnConflictUpdate([]string{"id"}, "is_active")
	query, args := ib.Build()

	assert.Contains(t, query, "INSERT INTO actors (id, is_active) VALUES ($1, $2)")
	assert.Contains(t, query, "ON CONFLICT (id) DO UPDATE SET is_active = EXCLUDED.is_active")
	assert.Equal(t, []any{"a1", true}, args)
}

func TestJSONB(t *testing.T) {
	t.Run("scan", func(t *testing.T) {
		var fromString database.JSONB[map[string]any]
		require.NoError(t, fromString.Scan(`{"a":1}`))
		assert.Equal(t, float64(1), fromString.Data["a"])

		var fromBytes database.JSONB[map[string]any]
		require.NoError(t, fromBytes.Scan([]byte(`{"b":"x"}`)))
		assert.Equal(t, "x", fromBytes.GetValue()["b"])

		require.NoError(t, fromBytes.Scan(nil))
		assert.Nil(t, fromBytes.Data)

		assert.Error(t, fromBytes.Scan(42))
	})

	t.Run("json is the raw data", func(t *testing.T) {
		out, err := json.Marshal(database.NewJSONB(map[string]any{"k": "v"}))
		require.NoError(t, err)
		assert.JSONEq(t, `{"k":"v"}`, string(out))

		var back database.JSONB[map[string]any]
		require.NoError(t, json.Unmarshal(out, &back))
		assert.Equal(t, "v", back.Data["k"])
	})

	t.Run("value", func(t *testing.T) {
		v, err := database.NewJSONB([]string{"x"}).Value()
		require.NoError(t, err)
		assert.Equal(t, `["x"]`, v)
	})
}

func TestTimestamp(t *testing.T) {
	loc := time.FixedZone("plus2", 2*60*60)
	in := time.Date(2024, 5, 1, 12, 0, 0, 123456789, loc)

	got := database.Timestamp(in)
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, 123456000, got.Nanosecond())
	assert.True(t, got.Equal(in.Truncate(time.Microsecond)))
}
