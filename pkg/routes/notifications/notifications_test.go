package notifications_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/Ramsey-B/trellis/internal/app"
	"github.com/Ramsey-B/trellis/internal/testutil"
	"github.com/Ramsey-B/trellis/internal/testutil/apitest"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/routes/notifications"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notify(recipient, source string) models.NotifyRequest {
	return models.NotifyRequest{
		RecipientActorID: recipient,
		SourceActorID:    source,
		Kind:             "comment",
		ObjectType:       "post",
		ObjectID:         "p1",
		LinkPath:         "/posts/p1",
		Context:          map[string]any{"excerpt": "hello"},
	}
}

func TestNotifyAndList(t *testing.T) {
	h := apitest.New(t, app.Options{})
	recipient := testutil.SeedActor(t, h.DB, models.ActorKindHuman, false)
	source := testutil.SeedActor(t, h.DB, models.ActorKindHuman, false)

	rec := h.Do(http.MethodPost, "/notifications", notify(recipient, source))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, apitest.Decode[models.OKResponse](t, rec).OK)

	rec = h.Do(http.MethodGet, "/notifications?actorId="+recipient, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list := apitest.Decode[[]models.Notification](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, source, list[0].ActorID)
	assert.Equal(t, "hello", list[0].Context.Data["excerpt"])
	assert.False(t, list[0].IsRead)

	rec = h.Do(http.MethodGet, "/notifications/unread-count?actorId="+recipient, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, apitest.Decode[notifications.UnreadCountResponse](t, rec).Count)

	// another actor cannot mark it read
	rec = h.Do(http.MethodPost, "/notifications/mark-read", models.MarkNotificationReadRequest{ID: list[0].ID, ActorID: source})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, apitest.Decode[models.OKResponse](t, rec).OK)

	rec = h.Do(http.MethodPost, "/notifications/mark-read", models.MarkNotificationReadRequest{ID: list[0].ID, ActorID: recipient})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, apitest.Decode[models.OKResponse](t, rec).OK)

	rec = h.Do(http.MethodGet, "/notifications/unread-count?actorId="+recipient, nil)
	assert.Equal(t, 0, apitest.Decode[notifications.UnreadCountResponse](t, rec).Count)
}

func TestNotify_BlockedLooksLikeSuccess(t *testing.T) {
	h := apitest.New(t, app.Options{})
	recipient := testutil.SeedActor(t, h.DB, models.ActorKindHuman, false)
	source := testutil.SeedActor(t, h.DB, models.ActorKindHuman, false)

	require.Equal(t, http.StatusOK, h.Do(http.MethodPost, "/blocks", models.BlockRequest{BlockerActorID: source, BlockedActorID: recipient}).Code)

	rec := h.Do(http.MethodPost, "/notifications", notify(recipient, source))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, apitest.Decode[models.OKResponse](t, rec).OK)
	assert.Equal(t, 0, testutil.Count(t, h.DB, "notifications", nil))
}

func TestMarkAll(t *testing.T) {
	h := apitest.New(t, app.Options{})
	recipient := testutil.SeedActor(t, h.DB, models.ActorKindHuman, false)
	source := testutil.SeedActor(t, h.DB, models.ActorKindHuman, false)

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, h.Do(http.MethodPost, "/notifications", notify(recipient, source)).Code)
	}

	rec := h.Do(http.MethodPost, "/notifications/mark-all-seen", models.ActorScopedRequest{ActorID: recipient})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	seen := apitest.Decode[notifications.MarkAllResponse](t, rec)
	assert.True(t, seen.OK)
	assert.Equal(t, int64(3), seen.Updated)

	rec = h.Do(http.MethodPost, "/notifications/mark-all-read", models.ActorScopedRequest{ActorID: recipient})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(3), apitest.Decode[notifications.MarkAllResponse](t, rec).Updated)

	assert.Equal(t, 3, testutil.Count(t, h.DB, "notifications", map[string]any{"is_seen": true, "is_read": true}))
}

func TestList_Paging(t *testing.T) {
	h := apitest.New(t, app.Options{})
	recipient := testutil.SeedActor(t, h.DB, models.ActorKindHuman, false)
	source := testutil.SeedActor(t, h.DB, models.ActorKindHuman, false)

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, h.Do(http.MethodPost, "/notifications", notify(recipient, source)).Code)
		time.Sleep(2 * time.Millisecond)
	}

	rec := h.Do(http.MethodGet, "/notifications?actorId="+recipient+"&limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := apitest.Decode[[]models.Notification](t, rec)
	require.Len(t, page, 2)

	before := url.QueryEscape(page[1].CreatedAt.Format(time.RFC3339Nano))
	rec = h.Do(http.MethodGet, "/notifications?actorId="+recipient+"&before="+before+"&beforeId="+page[1].ID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rest := apitest.Decode[[]models.Notification](t, rec)
	require.Len(t, rest, 1)
	assert.NotEqual(t, page[0].ID, rest[0].ID)
	assert.NotEqual(t, page[1].ID, rest[0].ID)

	assert.Equal(t, http.StatusBadRequest, h.Do(http.MethodGet, "/notifications?actorId="+recipient+"&beforeId="+page[1].ID, nil).Code)

	assert.Equal(t, http.StatusBadRequest, h.Do(http.MethodGet, "/notifications?actorId="+recipient+"&before=yesterday", nil).Code)
	assert.Equal(t, http.StatusBadRequest, h.Do(http.MethodGet, "/notifications", nil).Code)
}

func TestNotifyOrganization_SkipsManagerWhoBlockedSource(t *testing.T) {
	h := apitest.New(t, app.Options{})
	ctx := context.Background()

	m1 := testutil.SeedHuman(t, h.DB, false)
	m2 := testutil.SeedHuman(t, h.DB, false)
	m3 := testutil.SeedHuman(t, h.DB, false)
	orgID := testutil.SeedOrganization(t, h.DB, m1, m2, m3)
	source := testutil.SeedActor(t, h.DB, models.ActorKindHuman, false)

	m2Actor, err := h.Services.Directory.ResolveForHuman(ctx, m2)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, h.Do(http.MethodPost, "/blocks", models.BlockRequest{BlockerActorID: m2Actor.ID, BlockedActorID: source}).Code)

	rec := h.Do(http.MethodPost, "/organizations/"+orgID+"/notifications", models.NotifyOrganizationRequest{
		SourceActorID: source,
		Kind:          "review",
		ObjectType:    "organization",
		ObjectID:      orgID,
		LinkPath:      "/organizations/" + orgID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, 2, testutil.Count(t, h.DB, "notifications", nil))
	assert.Equal(t, 0, testutil.Count(t, h.DB, "notifications", map[string]any{"recipient_actor_id": m2Actor.ID}))

	rec = h.Do(http.MethodPost, "/organizations/missing/notifications", models.NotifyOrganizationRequest{SourceActorID: source, Kind: "review"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
