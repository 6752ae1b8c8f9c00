package notification_test

import (
	"context"
	"testing"
	"time"

	"github.com/Ramsey-B/trellis/internal/repositories/notification"
	"github.com/Ramsey-B/trellis/internal/testutil"
	"github.com/Ramsey-B/trellis/pkg/database"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, repo *notification.Repository, recipient, source string, createdAt time.Time, read bool) string {
	t.Helper()

	id := uuid.NewString()
	require.NoError(t, repo.Create(context.Background(), models.Notification{
		ID:               id,
		RecipientActorID: recipient,
		ActorID:          source,
		Kind:             "comment",
		ObjectType:       "post",
		ObjectID:         "post-1",
		LinkPath:         "/posts/post-1",
		Context:          database.NewJSONB(map[string]any{"preview": "hi"}),
		IsRead:           read,
		IsSeen:           read,
		CreatedAt:        database.Timestamp(createdAt),
	}))
	return id
}

func TestNotificationRepository_ListForRecipient(t *testing.T) {
	db := testutil.NewDB(t)
	repo := notification.NewRepository(db, testutil.Logger())
	ctx := context.Background()

	me := testutil.SeedActor(t, db, models.ActorKindHuman, false)
	src := testutil.SeedActor(t, db, models.ActorKindOrganization, false)

	base := time.Now().UTC().Add(-time.Hour)
	oldest := seed(t, repo, me, src, base, false)
	middle := seed(t, repo, me, src, base.Add(time.Minute), false)
	newest := seed(t, repo, me, src, base.Add(2*time.Minute), false)

	page, err := repo.ListForRecipient(ctx, me, 2, nil)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, newest, page[0].ID)
	assert.Equal(t, middle, page[1].ID)
	assert.Equal(t, "hi", page[0].Context.GetValue()["preview"])

	cursor := models.CursorOf(page[1])
	rest, err := repo.ListForRecipient(ctx, me, 2, &cursor)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, oldest, rest[0].ID)

	// without an id the cursor is a plain created_at bound
	rest, err = repo.ListForRecipient(ctx, me, 2, &models.NotificationCursor{CreatedAt: page[1].CreatedAt})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, oldest, rest[0].ID)
}

func TestNotificationRepository_ListForRecipientSharedTimestamp(t *testing.T) {
	db := testutil.NewDB(t)
	repo := notification.NewRepository(db, testutil.Logger())
	ctx := context.Background()

	me := testutil.SeedActor(t, db, models.ActorKindHuman, false)
	src := testutil.SeedActor(t, db, models.ActorKindHuman, false)

	at := time.Now().UTC().Add(-time.Hour)
	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		seen[seed(t, repo, me, src, at, false)] = false
	}

	var cursor *models.NotificationCursor
	for page := 0; page < 3; page++ {
		rows, err := repo.ListForRecipient(ctx, me, 1, cursor)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.False(t, seen[rows[0].ID], "notification %s returned twice", rows[0].ID)
		seen[rows[0].ID] = true
		next := models.CursorOf(rows[0])
		cursor = &next
	}

	rows, err := repo.ListForRecipient(ctx, me, 1, cursor)
	require.NoError(t, err)
	assert.Empty(t, rows)
	for id, ok := range seen {
		assert.True(t, ok, "notification %s skipped", id)
	}
}

func TestNotificationRepository_MarkingIsRecipientScoped(t *testing.T) {
	db := testutil.NewDB(t)
	repo := notification.NewRepository(db, testutil.Logger())
	ctx := context.Background()

	me := testutil.SeedActor(t, db, models.ActorKindHuman, false)
	other := testutil.SeedActor(t, db, models.ActorKindHuman, false)
	src := testutil.SeedActor(t, db, models.ActorKindHuman, false)

	mine := seed(t, repo, me, src, time.Now(), false)
	seed(t, repo, me, other, time.Now(), false)
	theirs := seed(t, repo, other, src, time.Now(), false)

	n, err := repo.MarkRead(ctx, theirs, me)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = repo.MarkRead(ctx, mine, me)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	counts, err := repo.CountUnreadBySource(ctx, me)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{other: 1}, counts)

	n, err = repo.MarkAllSeen(ctx, me)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.MarkAllRead(ctx, me)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.Equal(t, 1, testutil.Count(t, db, "notifications", map[string]any{"recipient_actor_id": other, "is_read": false}))
}

func TestNotificationRepository_DeleteReadBefore(t *testing.T) {
	db := testutil.NewDB(t)
	repo := notification.NewRepository(db, testutil.Logger())
	ctx := context.Background()

	me := testutil.SeedActor(t, db, models.ActorKindHuman, false)
	src := testutil.SeedActor(t, db, models.ActorKindHuman, false)

	old := time.Now().Add(-48 * time.Hour)
	seed(t, repo, me, src, old, true)
	seed(t, repo, me, src, old, false)
	seed(t, repo, me, src, time.Now(), true)

	n, err := repo.DeleteReadBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 2, testutil.Count(t, db, "notifications", nil))
}
