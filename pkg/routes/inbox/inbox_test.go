package inbox_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/Ramsey-B/trellis/internal/app"
	"github.com/Ramsey-B/trellis/internal/testutil"
	"github.com/Ramsey-B/trellis/internal/testutil/apitest"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	h              *apitest.Harness
	sender         string
	reader         string
	conversationID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	h := apitest.New(t, app.Options{})
	sender := testutil.SeedActor(t, h.DB, models.ActorKindHuman, false)
	reader := testutil.SeedActor(t, h.DB, models.ActorKindHuman, false)

	conv, err := h.Services.Inbox.GetOrCreateOneToOne(context.Background(), sender, reader)
	require.NoError(t, err)

	return &fixture{h: h, sender: sender, reader: reader, conversationID: conv.ID}
}

func (f *fixture) send(t *testing.T) {
	t.Helper()

	rec := f.h.Do(http.MethodPost, "/inbox/messages", models.RecordMessageRequest{
		ConversationID: f.conversationID,
		SenderActorID:  f.sender,
		MessageID:      uuid.NewString(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (f *fixture) entry(t *testing.T) map[string]any {
	t.Helper()

	return map[string]any{"conversationId": f.conversationID, "actorId": f.reader}
}

func (f *fixture) visible(t *testing.T) []models.InboxEntry {
	t.Helper()

	rec := f.h.Do(http.MethodGet, "/inbox?actorId="+f.reader, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return apitest.Decode[[]models.InboxEntry](t, rec)
}

func (f *fixture) post(t *testing.T, path string, body any) {
	t.Helper()

	rec := f.h.Do(http.MethodPost, path, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, apitest.Decode[models.OKResponse](t, rec).OK)
}

func TestMessagesAndRead(t *testing.T) {
	f := newFixture(t)

	f.send(t)
	f.send(t)

	entries := f.visible(t)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].UnreadCount)
	assert.NotNil(t, entries[0].LastMessageAt)

	lastID := uuid.NewString()
	f.post(t, "/inbox/read", models.MarkInboxReadRequest{ConversationID: f.conversationID, ActorID: f.reader, LastMessageID: &lastID})

	entries = f.visible(t)
	require.Len(t, entries, 1)
	assert.Equal(t, 0, entries[0].UnreadCount)
}

func TestArchiveBeatsNewMessage(t *testing.T) {
	f := newFixture(t)

	f.post(t, "/inbox/flags", models.InboxFlagsRequest{
		ConversationID: f.conversationID,
		ActorID:        f.reader,
		Patch:          map[string]any{"archived": true},
	})
	assert.Empty(t, f.visible(t))

	f.send(t)
	assert.Empty(t, f.visible(t))

	f.post(t, "/inbox/unarchive", f.entry(t))
	assert.Len(t, f.visible(t), 1)

	f.post(t, "/inbox/archive", f.entry(t))
	assert.Empty(t, f.visible(t))
}

func TestHideUntilNew(t *testing.T) {
	f := newFixture(t)
	f.send(t)

	f.post(t, "/inbox/hide", f.entry(t))
	assert.Empty(t, f.visible(t))

	f.send(t)
	entries := f.visible(t)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].UnreadCount)
}

func TestToggles(t *testing.T) {
	f := newFixture(t)

	f.post(t, "/inbox/pin", f.entry(t))
	f.post(t, "/inbox/mute", map[string]any{"conversationId": f.conversationID, "actorId": f.reader, "value": true})
	f.post(t, "/inbox/clear-history", f.entry(t))

	entries := f.visible(t)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Pinned)
	assert.True(t, entries[0].Muted)
	require.NotNil(t, entries[0].HistoryCutoffAt)
	assert.WithinDuration(t, time.Now(), *entries[0].HistoryCutoffAt, time.Minute)

	f.post(t, "/inbox/pin", map[string]any{"conversationId": f.conversationID, "actorId": f.reader, "value": false})
	entries = f.visible(t)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Pinned)
}

func TestFlags_UnknownKeysDroppedAndBadTypesRejected(t *testing.T) {
	f := newFixture(t)

	f.post(t, "/inbox/flags", models.InboxFlagsRequest{
		ConversationID: f.conversationID,
		ActorID:        f.reader,
		Patch:          map[string]any{"unread_count": 99, "pinned": true},
	})
	entries := f.visible(t)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Pinned)
	assert.Equal(t, 0, entries[0].UnreadCount)

	rec := f.h.Do(http.MethodPost, "/inbox/flags", models.InboxFlagsRequest{
		ConversationID: f.conversationID,
		ActorID:        f.reader,
		Patch:          map[string]any{"archived": "yes"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordMessage_Rejections(t *testing.T) {
	f := newFixture(t)
	outsider := testutil.SeedActor(t, f.h.DB, models.ActorKindHuman, false)

	rec := f.h.Do(http.MethodPost, "/inbox/messages", models.RecordMessageRequest{
		ConversationID: f.conversationID,
		SenderActorID:  outsider,
		MessageID:      uuid.NewString(),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.h.Do(http.MethodPost, "/inbox/messages", models.RecordMessageRequest{
		ConversationID: "missing",
		SenderActorID:  f.sender,
		MessageID:      uuid.NewString(),
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, http.StatusBadRequest, f.h.Do(http.MethodGet, "/inbox", nil).Code)
}
