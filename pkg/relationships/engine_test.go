package relationships_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Ramsey-B/trellis/internal/repositories/actor"
	"github.com/Ramsey-B/trellis/internal/repositories/block"
	"github.com/Ramsey-B/trellis/internal/repositories/follow"
	"github.com/Ramsey-B/trellis/internal/repositories/followrequest"
	"github.com/Ramsey-B/trellis/internal/repositories/owner"
	"github.com/Ramsey-B/trellis/internal/testutil"
	"github.com/Ramsey-B/trellis/pkg/actors"
	"github.com/Ramsey-B/trellis/pkg/blocks"
	"github.com/Ramsey-B/trellis/pkg/database"
	"github.com/Ramsey-B/trellis/pkg/engine"
	"github.com/Ramsey-B/trellis/pkg/events"
	"github.com/Ramsey-B/trellis/pkg/graph"
	"github.com/Ramsey-B/trellis/pkg/kafka"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/relationships"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delivered struct {
	recipient string
	event     models.NotificationEvent
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []delivered
}

func (n *recordingNotifier) Notify(_ context.Context, recipientActorID string, event models.NotificationEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, delivered{recipientActorID, event})
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type countingLimiter struct {
	budget   int
	calls    int
	released int
	err      error
	onAllow  func()
}

func (l *countingLimiter) Allow(_ context.Context, _ string) (bool, error) {
	l.calls++
	if l.onAllow != nil {
		l.onAllow()
	}
	if l.err != nil {
		return false, l.err
	}
	return l.calls-l.released <= l.budget, nil
}

func (l *countingLimiter) Release(_ context.Context, _ string) error {
	l.released++
	return nil
}

type fakeGraph struct {
	mu          sync.Mutex
	activated   [][2]string
	removed     []models.FollowEdge
	suggestions []graph.Suggestion
}

func (g *fakeGraph) FollowActivated(_ context.Context, follower, followed string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.activated = append(g.activated, [2]string{follower, followed})
	return nil
}

func (g *fakeGraph) FollowsRemoved(_ context.Context, edges []models.FollowEdge) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removed = append(g.removed, edges...)
	return nil
}

func (g *fakeGraph) Suggestions(_ context.Context, _ string, _ int) ([]graph.Suggestion, error) {
	return g.suggestions, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) PublishEvent(_ context.Context, event *kafka.RelationshipEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event.EventType)
	return nil
}

type harness struct {
	db        database.DB
	engine    *relationships.Engine
	notifier  *recordingNotifier
	graph     *fakeGraph
	publisher *recordingPublisher
}

func newHarness(t *testing.T, limiter relationships.RequestLimiter) *harness {
	t.Helper()

	db := testutil.NewDB(t)
	logger := testutil.Logger()
	blockRepo := block.NewRepository(db, logger)

	h := &harness{
		db:        db,
		notifier:  &recordingNotifier{},
		graph:     &fakeGraph{},
		publisher: &recordingPublisher{},
	}
	h.engine = relationships.NewEngine(relationships.Dependencies{
		DB:        db,
		Actors:    actors.NewDirectory(owner.NewRepository(db, logger), actor.NewRepository(db, logger), logger),
		Blocks:    blocks.NewRegistry(blockRepo, logger),
		BlockRepo: blockRepo,
		Follows:   follow.NewRepository(db, logger),
		Requests:  followrequest.NewRepository(db, logger),
		Notifier:  h.notifier,
		Limiter:   limiter,
		Emitter:   events.NewEmitter(h.publisher, logger),
		Graph:     h.graph,
	}, logger)
	return h
}

func (h *harness) actors(t *testing.T, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = testutil.SeedActor(t, h.db, models.ActorKindHuman, false)
	}
	return ids
}

func TestSendFollowRequest_Idempotent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	ids := h.actors(t, 2)
	u1, u2 := ids[0], ids[1]

	for i := 0; i < 2; i++ {
		status, err := h.engine.SendFollowRequest(ctx, u1, u2)
		require.NoError(t, err)
		assert.Equal(t, models.FollowStatusPending, status)
	}

	assert.Equal(t, 1, testutil.Count(t, h.db, "follow_requests", map[string]any{"requester_actor_id": u1}))
	require.Equal(t, 1, h.notifier.count())
	assert.Equal(t, u2, h.notifier.sent[0].recipient)
	assert.Equal(t, models.NotificationKindFollowRequest, h.notifier.sent[0].event.Kind)
	assert.Equal(t, u1, h.notifier.sent[0].event.SourceActorID)
	assert.Equal(t, []string{events.FollowRequested}, h.publisher.events)
}

func TestSendFollowRequest_Rejections(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	ids := h.actors(t, 2)

	_, err := h.engine.SendFollowRequest(ctx, ids[0], ids[0])
	assert.ErrorIs(t, err, engine.ErrInvalidOperation)

	_, err = h.engine.SendFollowRequest(ctx, ids[0], "missing")
	assert.ErrorIs(t, err, engine.ErrNotFound)

	require.NoError(t, h.engine.Block(ctx, ids[1], ids[0]))
	_, err = h.engine.SendFollowRequest(ctx, ids[0], ids[1])
	assert.ErrorIs(t, err, engine.ErrBlocked)

	assert.Equal(t, 0, testutil.Count(t, h.db, "follow_requests", nil))
	assert.Equal(t, 0, h.notifier.count())
}

func TestSendFollowRequest_AcceptedIsUnchanged(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	ids := h.actors(t, 2)

	_, err := h.engine.SendFollowRequest(ctx, ids[0], ids[1])
	require.NoError(t, err)
	ok, err := h.engine.AcceptFollowRequest(ctx, ids[0], ids[1])
	require.NoError(t, err)
	require.True(t, ok)

	status, err := h.engine.SendFollowRequest(ctx, ids[0], ids[1])
	require.NoError(t, err)
	assert.Equal(t, models.FollowStatusAccepted, status)
}

func TestSendFollowRequest_DeclinedCanBeResent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	ids := h.actors(t, 2)

	_, err := h.engine.SendFollowRequest(ctx, ids[0], ids[1])
	require.NoError(t, err)
	declined, err := h.engine.DeclineFollowRequest(ctx, ids[0], ids[1])
	require.NoError(t, err)
	require.True(t, declined)

	status, err := h.engine.FollowStatus(ctx, ids[0], ids[1])
	require.NoError(t, err)
	assert.Equal(t, models.FollowStatusDeclined, status)

	status, err = h.engine.SendFollowRequest(ctx, ids[0], ids[1])
	require.NoError(t, err)
	assert.Equal(t, models.FollowStatusPending, status)
	assert.Equal(t, 1, testutil.Count(t, h.db, "follow_requests", nil))
	assert.Equal(t, 2, h.notifier.count())
}

func TestAcceptFollowRequest_ConcurrentAcceptsCreateOneEdge(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	ids := h.actors(t, 2)
	u1, u2 := ids[0], ids[1]

	_, err := h.engine.SendFollowRequest(ctx, u1, u2)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		results = make([]bool, 2)
		errs    = make([]error, 2)
	)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.engine.AcceptFollowRequest(ctx, u1, u2)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.ElementsMatch(t, []bool{true, false}, results)
	assert.Equal(t, 1, testutil.Count(t, h.db, "follow_edges", map[string]any{"follower_actor_id": u1, "followed_actor_id": u2}))

	// one follow_request notification to u2, one follow_accepted back to u1
	require.Equal(t, 2, h.notifier.count())
	assert.Equal(t, u1, h.notifier.sent[1].recipient)
	assert.Equal(t, models.NotificationKindFollowAccepted, h.notifier.sent[1].event.Kind)
	assert.Equal(t, [][2]string{{u1, u2}}, h.graph.activated)

	followers, err := h.engine.Followers(ctx, u2)
	require.NoError(t, err)
	require.Len(t, followers, 1)
	assert.Equal(t, u1, followers[0].FollowerActorID)

	following, err := h.engine.Following(ctx, u1)
	require.NoError(t, err)
	assert.Len(t, following, 1)
}

func TestAcceptFollowRequest_StaleStates(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	ids := h.actors(t, 2)

	ok, err := h.engine.AcceptFollowRequest(ctx, ids[0], ids[1])
	require.NoError(t, err)
	assert.False(t, ok, "no request")

	_, err = h.engine.SendFollowRequest(ctx, ids[0], ids[1])
	require.NoError(t, err)
	_, err = h.engine.DeclineFollowRequest(ctx, ids[0], ids[1])
	require.NoError(t, err)

	ok, err = h.engine.AcceptFollowRequest(ctx, ids[0], ids[1])
	require.NoError(t, err)
	assert.False(t, ok, "declined")

	ok, err = h.engine.DeclineFollowRequest(ctx, ids[0], ids[1])
	require.NoError(t, err)
	assert.False(t, ok, "double decline")

	assert.Equal(t, 0, testutil.Count(t, h.db, "follow_edges", nil))
}

func TestAcceptAfterBlockFails(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	ids := h.actors(t, 2)
	u1, u2 := ids[0], ids[1]

	status, err := h.engine.SendFollowRequest(ctx, u1, u2)
	require.NoError(t, err)
	require.Equal(t, models.FollowStatusPending, status)

	require.NoError(t, h.engine.Block(ctx, u2, u1))

	ok, err := h.engine.AcceptFollowRequest(ctx, u1, u2)
	assert.ErrorIs(t, err, engine.ErrBlocked)
	assert.False(t, ok)
	assert.Equal(t, 0, testutil.Count(t, h.db, "follow_edges", nil))

	// the pending row survives the block and becomes acceptable again once lifted
	status, err = h.engine.FollowStatus(ctx, u1, u2)
	require.NoError(t, err)
	assert.Equal(t, models.FollowStatusPending, status)

	removed, err := h.engine.Unblock(ctx, u2, u1)
	require.NoError(t, err)
	require.True(t, removed)

	ok, err = h.engine.AcceptFollowRequest(ctx, u1, u2)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCancelFollowRequest(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	ids := h.actors(t, 2)

	_, err := h.engine.SendFollowRequest(ctx, ids[0], ids[1])
	require.NoError(t, err)

	ok, err := h.engine.CancelFollowRequest(ctx, ids[0], ids[1])
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.engine.CancelFollowRequest(ctx, ids[0], ids[1])
	require.NoError(t, err)
	assert.False(t, ok)

	status, err := h.engine.FollowStatus(ctx, ids[0], ids[1])
	require.NoError(t, err)
	assert.Equal(t, models.FollowStatusNone, status)
}

func TestUnfollow(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	ids := h.actors(t, 2)

	_, err := h.engine.SendFollowRequest(ctx, ids[0], ids[1])
	require.NoError(t, err)
	_, err = h.engine.AcceptFollowRequest(ctx, ids[0], ids[1])
	require.NoError(t, err)

	removed, err := h.engine.Unfollow(ctx, ids[0], ids[1])
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = h.engine.Unfollow(ctx, ids[0], ids[1])
	require.NoError(t, err)
	assert.False(t, removed)

	following, err := h.engine.Following(ctx, ids[0])
	require.NoError(t, err)
	assert.Empty(t, following)

	status, err := h.engine.SendFollowRequest(ctx, ids[0], ids[1])
	require.NoError(t, err)
	assert.Equal(t, models.FollowStatusPending, status)
	assert.Len(t, h.graph.removed, 1)
}

func TestBlockSeversFollowsBothWays(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	ids := h.actors(t, 2)
	a, b := ids[0], ids[1]

	for _, pair := range [][2]string{{a, b}, {b, a}} {
		_, err := h.engine.SendFollowRequest(ctx, pair[0], pair[1])
		require.NoError(t, err)
		_, err = h.engine.AcceptFollowRequest(ctx, pair[0], pair[1])
		require.NoError(t, err)
	}

	require.NoError(t, h.engine.Block(ctx, a, b))
	require.NoError(t, h.engine.Block(ctx, a, b), "idempotent")

	assert.Equal(t, 1, testutil.Count(t, h.db, "block_edges", nil))
	assert.Equal(t, 0, testutil.Count(t, h.db, "follow_edges", map[string]any{"is_active": true}))
	assert.Equal(t, 0, testutil.Count(t, h.db, "follow_requests", nil))
	assert.Len(t, h.graph.removed, 2)

	assert.ErrorIs(t, h.engine.Block(ctx, a, a), engine.ErrInvalidOperation)
	assert.ErrorIs(t, h.engine.Block(ctx, a, "missing"), engine.ErrNotFound)

	// b cannot lift a's block
	removed, err := h.engine.Unblock(ctx, b, a)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, 1, testutil.Count(t, h.db, "block_edges", nil))
}

func TestIncomingRequestsHideBlocked(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	ids := h.actors(t, 3)
	target, friend, foe := ids[0], ids[1], ids[2]

	for _, requester := range []string{friend, foe} {
		_, err := h.engine.SendFollowRequest(ctx, requester, target)
		require.NoError(t, err)
	}
	require.NoError(t, h.engine.Block(ctx, target, foe))

	incoming, err := h.engine.IncomingRequests(ctx, target)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, friend, incoming[0].RequesterActorID)
}

func TestSendFollowRequest_RateLimited(t *testing.T) {
	limiter := &countingLimiter{budget: 1}
	h := newHarness(t, limiter)
	ctx := context.Background()
	ids := h.actors(t, 3)

	_, err := h.engine.SendFollowRequest(ctx, ids[0], ids[1])
	require.NoError(t, err)

	// repeating an open request does not spend budget
	_, err = h.engine.SendFollowRequest(ctx, ids[0], ids[1])
	require.NoError(t, err)
	assert.Equal(t, 1, limiter.calls)

	_, err = h.engine.SendFollowRequest(ctx, ids[0], ids[2])
	assert.ErrorIs(t, err, engine.ErrRateLimited)
	assert.Equal(t, 1, testutil.Count(t, h.db, "follow_requests", nil))
}

func TestSendFollowRequest_LostRaceReleasesBudget(t *testing.T) {
	limiter := &countingLimiter{budget: 1}
	h := newHarness(t, limiter)
	ctx := context.Background()
	ids := h.actors(t, 3)

	// another call opens the same request between the lookup and the insert
	requests := followrequest.NewRepository(h.db, testutil.Logger())
	limiter.onAllow = func() {
		_, err := requests.InsertPending(ctx, ids[0], ids[1])
		require.NoError(t, err)
	}

	status, err := h.engine.SendFollowRequest(ctx, ids[0], ids[1])
	require.NoError(t, err)
	assert.Equal(t, models.FollowStatusPending, status)
	assert.Equal(t, 1, limiter.released)
	assert.Zero(t, h.notifier.count())

	limiter.onAllow = nil
	status, err = h.engine.SendFollowRequest(ctx, ids[0], ids[2])
	require.NoError(t, err, "the lost race did not spend the only slot")
	assert.Equal(t, models.FollowStatusPending, status)
	assert.Equal(t, 1, limiter.released)
}

func TestSendFollowRequest_InactiveActor(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	ids := h.actors(t, 2)

	dir := actors.NewDirectory(owner.NewRepository(h.db, testutil.Logger()), actor.NewRepository(h.db, testutil.Logger()), testutil.Logger())
	require.NoError(t, dir.Deactivate(ctx, ids[1]))

	_, err := h.engine.SendFollowRequest(ctx, ids[0], ids[1])
	assert.ErrorIs(t, err, engine.ErrInvalidOperation)
	assert.Zero(t, testutil.Count(t, h.db, "follow_requests", nil))

	// blocking an inactive actor is still allowed
	require.NoError(t, h.engine.Block(ctx, ids[0], ids[1]))
}

func TestSendFollowRequest_LimiterFailureFailsOpen(t *testing.T) {
	h := newHarness(t, &countingLimiter{err: errors.New("redis down")})
	ids := h.actors(t, 2)

	status, err := h.engine.SendFollowRequest(context.Background(), ids[0], ids[1])
	require.NoError(t, err)
	assert.Equal(t, models.FollowStatusPending, status)
}

func TestSuggestionsFilterBlocked(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	ids := h.actors(t, 3)

	h.graph.suggestions = []graph.Suggestion{{ActorID: ids[1], MutualCount: 2}, {ActorID: ids[2], MutualCount: 1}}
	require.NoError(t, h.engine.Block(ctx, ids[2], ids[0]))

	got, err := h.engine.Suggestions(ctx, ids[0], 5)
	require.NoError(t, err)
	assert.Equal(t, []graph.Suggestion{{ActorID: ids[1], MutualCount: 2}}, got)
	assert.True(t, h.engine.SuggestionsEnabled())
}
