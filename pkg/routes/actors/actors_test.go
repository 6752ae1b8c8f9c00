package actors_test

import (
	"net/http"
	"testing"

	"github.com/Ramsey-B/trellis/internal/app"
	"github.com/Ramsey-B/trellis/internal/testutil"
	"github.com/Ramsey-B/trellis/internal/testutil/apitest"
	"github.com/Ramsey-B/trellis/pkg/middleware"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	h := apitest.New(t, app.Options{})
	humanID := testutil.SeedHuman(t, h.DB, false)

	rec := h.Do(http.MethodPost, "/actors/resolve", models.ResolveActorRequest{OwnerKind: models.ActorKindHuman, OwnerID: humanID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := apitest.Decode[models.ResolveActorResponse](t, rec)
	assert.NotEmpty(t, first.ActorID)

	rec = h.Do(http.MethodPost, "/actors/resolve", models.ResolveActorRequest{OwnerKind: models.ActorKindHuman, OwnerID: humanID})
	require.Equal(t, http.StatusOK, rec.Code)
	second := apitest.Decode[models.ResolveActorResponse](t, rec)
	assert.Equal(t, first.ActorID, second.ActorID)
}

func TestResolve_Organization(t *testing.T) {
	h := apitest.New(t, app.Options{})
	ownerID := testutil.SeedHuman(t, h.DB, false)
	orgID := testutil.SeedOrganization(t, h.DB, ownerID)

	rec := h.Do(http.MethodPost, "/actors/resolve", map[string]any{"ownerKind": "organization", "ownerId": orgID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resolved := apitest.Decode[models.ResolveActorResponse](t, rec)
	rec = h.Do(http.MethodGet, "/actors/"+resolved.ActorID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := apitest.Decode[models.Actor](t, rec)
	assert.Equal(t, models.ActorKindOrganization, got.Kind)
	assert.Equal(t, orgID, got.OwnerRef)
}

func TestResolve_Errors(t *testing.T) {
	h := apitest.New(t, app.Options{})

	rec := h.Do(http.MethodPost, "/actors/resolve", map[string]any{"ownerKind": "robot", "ownerId": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.Do(http.MethodPost, "/actors/resolve", map[string]any{"ownerKind": "human"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.Do(http.MethodPost, "/actors/resolve", map[string]any{"ownerKind": "human", "ownerId": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := apitest.Decode[middleware.ErrorResponse](t, rec)
	assert.NotEmpty(t, body.RequestID)
}

func TestGet_Missing(t *testing.T) {
	h := apitest.New(t, app.Options{})

	rec := h.Do(http.MethodGet, "/actors/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBatch_KeepsRequestOrder(t *testing.T) {
	h := apitest.New(t, app.Options{})
	a := testutil.SeedActor(t, h.DB, models.ActorKindHuman, false)
	b := testutil.SeedActor(t, h.DB, models.ActorKindHuman, false)

	rec := h.Do(http.MethodPost, "/actors/batch", models.BatchActorsRequest{IDs: []string{b, "missing", a}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := apitest.Decode[[]models.Actor](t, rec)
	require.Len(t, got, 2)
	assert.Equal(t, b, got[0].ID)
	assert.Equal(t, a, got[1].ID)
}

func TestDeactivateAndSandbox(t *testing.T) {
	h := apitest.New(t, app.Options{})
	id := testutil.SeedActor(t, h.DB, models.ActorKindHuman, false)

	rec := h.Do(http.MethodPost, "/actors/"+id+"/deactivate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.Do(http.MethodPost, "/actors/"+id+"/sandbox", models.SetSandboxedRequest{Sandboxed: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.Do(http.MethodGet, "/actors/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := apitest.Decode[models.Actor](t, rec)
	assert.False(t, got.IsActive)
	assert.True(t, got.IsSandboxed)

	rec = h.Do(http.MethodPost, "/actors/missing/deactivate", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
