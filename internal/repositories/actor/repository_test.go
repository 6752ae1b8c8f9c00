package actor_test

import (
	"context"
	"sync"
	"testing"

	"github.com/Ramsey-B/trellis/internal/repositories/actor"
	"github.com/Ramsey-B/trellis/internal/testutil"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActorRepository_EnsureForOwnerIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	repo := actor.NewRepository(db, testutil.Logger())
	ctx := context.Background()

	first, created, err := repo.EnsureForOwner(ctx, models.ActorKindHuman, "human-1", false)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.ActorKindHuman, first.Kind)
	assert.True(t, first.IsActive)

	second, created, err := repo.EnsureForOwner(ctx, models.ActorKindHuman, "human-1", true)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.False(t, second.IsSandboxed, "an existing actor keeps its sandbox flag")

	// same owner ref under the other kind is a different actor
	org, created, err := repo.EnsureForOwner(ctx, models.ActorKindOrganization, "human-1", false)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, org.ID)

	assert.Equal(t, 2, testutil.Count(t, db, "actors", nil))
}

func TestActorRepository_EnsureForOwnerConcurrent(t *testing.T) {
	db := testutil.NewDB(t)
	repo := actor.NewRepository(db, testutil.Logger())
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, _, err := repo.EnsureForOwner(ctx, models.ActorKindOrganization, "org-1", false)
			if assert.NoError(t, err) {
				ids[i] = a.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, testutil.Count(t, db, "actors", map[string]any{"owner_ref": "org-1"}))
}

func TestActorRepository_ListAndUpdate(t *testing.T) {
	db := testutil.NewDB(t)
	repo := actor.NewRepository(db, testutil.Logger())
	ctx := context.Background()

	a := testutil.SeedActor(t, db, models.ActorKindHuman, false)
	b := testutil.SeedActor(t, db, models.ActorKindOrganization, false)

	actors, err := repo.ListByIDs(ctx, []string{a, "missing", b})
	require.NoError(t, err)
	assert.Len(t, actors, 2)

	empty, err := repo.ListByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	ok, err := repo.SetActive(ctx, a, false)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.SetSandboxed(ctx, b, true)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetByID(ctx, a)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	got, err = repo.GetByID(ctx, b)
	require.NoError(t, err)
	assert.True(t, got.IsSandboxed)

	ok, err = repo.SetActive(ctx, "missing", false)
	require.NoError(t, err)
	assert.False(t, ok)

	missing, err := repo.GetByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
