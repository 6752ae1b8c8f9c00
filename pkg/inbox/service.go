// Package inbox derives each actor's thread list and owns the per-entry visibility flags.
package inbox

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/trellis/internal/repositories/conversation"
	"github.com/Ramsey-B/trellis/pkg/database"
	"github.com/Ramsey-B/trellis/pkg/engine"
	"github.com/Ramsey-B/trellis/pkg/events"
	"github.com/Ramsey-B/trellis/pkg/metrics"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/tracing"
	"github.com/google/uuid"
)

type ActorDirectory interface {
	RequireActive(ctx context.Context, actorIDs ...string) error
}

type BlockChecker interface {
	IsBlocked(ctx context.Context, a, b string) (bool, error)
}

type Service struct {
	logger  ectologger.Logger
	db      database.DB
	actors  ActorDirectory
	blocks  BlockChecker
	repo    conversation.ConversationRepository
	emitter *events.Emitter
}

// NewService creates a new inbox service. emitter may be nil.
func NewService(db database.DB, actors ActorDirectory, blocks BlockChecker, repo conversation.ConversationRepository, emitter *events.Emitter, logger ectologger.Logger) *Service {
	return &Service{
		logger:  logger,
		db:      db,
		actors:  actors,
		blocks:  blocks,
		repo:    repo,
		emitter: emitter,
	}
}

// PairKey canonicalizes a direct pair so (a, b) and (b, a) share one conversation.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

// ListVisible returns the actor's visible entries, most recent activity first.
// Entries that never saw a message sort last.
func (s *Service) ListVisible(ctx context.Context, actorID string) ([]models.InboxEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "inbox.ListVisible")
	defer span.End()

	entries, err := s.repo.ListEntries(ctx, actorID)
	if err != nil {
		return nil, err
	}

	visible := make([]models.InboxEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Visible() {
			visible = append(visible, entry)
		}
	}

	sort.SliceStable(visible, func(i, j int) bool {
		a, b := visible[i].LastMessageAt, visible[j].LastMessageAt
		switch {
		case a == nil && b == nil:
			return visible[i].ConversationID < visible[j].ConversationID
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Equal(*b):
			return visible[i].ConversationID < visible[j].ConversationID
		default:
			return a.After(*b)
		}
	})

	return visible, nil
}

// MarkRead zeroes the actor's unread count. Returns false when the actor has no entry.
func (s *Service) MarkRead(ctx context.Context, conversationID, actorID string, lastSeenMessageID *string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "inbox.MarkRead")
	defer span.End()

	updated, err := s.repo.MarkRead(ctx, conversationID, actorID, lastSeenMessageID)
	if err != nil {
		return false, err
	}
	if updated {
		metrics.RecordInboxMutation("mark_read")
	}
	return updated, nil
}

// SetFlags applies a whitelisted patch. Unknown keys are dropped; returns false when nothing
// was applied.
func (s *Service) SetFlags(ctx context.Context, conversationID, actorID string, patch map[string]any) (bool, error) {
	flags, err := ParseFlagPatch(patch)
	if err != nil {
		return false, err
	}
	return s.applyFlags(ctx, conversationID, actorID, flags, "set_flags")
}

func (s *Service) applyFlags(ctx context.Context, conversationID, actorID string, flags models.InboxFlags, operation string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "inbox."+operation)
	defer span.End()

	updated, err := s.repo.UpdateFlags(ctx, conversationID, actorID, flags)
	if err != nil {
		return false, err
	}
	if updated {
		metrics.RecordInboxMutation(operation)
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"conversation_id": conversationID,
			"actor_id":        actorID,
			"operation":       operation,
		}).Debug("updated inbox flags")
	}
	return updated, nil
}

// Archive hides the entry until it is explicitly unarchived.
func (s *Service) Archive(ctx context.Context, conversationID, actorID string) (bool, error) {
	return s.applyFlags(ctx, conversationID, actorID, models.InboxFlags{
		Archived:         boolPtr(true),
		ArchivedUntilNew: boolPtr(false),
	}, "archive")
}

// HideUntilNew hides the entry until the next incoming message.
func (s *Service) HideUntilNew(ctx context.Context, conversationID, actorID string) (bool, error) {
	return s.applyFlags(ctx, conversationID, actorID, models.InboxFlags{
		Archived:         boolPtr(false),
		ArchivedUntilNew: boolPtr(true),
	}, "hide_until_new")
}

func (s *Service) Unarchive(ctx context.Context, conversationID, actorID string) (bool, error) {
	return s.applyFlags(ctx, conversationID, actorID, models.InboxFlags{
		Archived:         boolPtr(false),
		ArchivedUntilNew: boolPtr(false),
	}, "unarchive")
}

func (s *Service) SetMuted(ctx context.Context, conversationID, actorID string, muted bool) (bool, error) {
	return s.applyFlags(ctx, conversationID, actorID, models.InboxFlags{Muted: &muted}, "set_muted")
}

func (s *Service) SetPinned(ctx context.Context, conversationID, actorID string, pinned bool) (bool, error) {
	return s.applyFlags(ctx, conversationID, actorID, models.InboxFlags{Pinned: &pinned}, "set_pinned")
}

// ClearHistoryFromNow sets the cutoff to now. Messages and membership are untouched.
func (s *Service) ClearHistoryFromNow(ctx context.Context, conversationID, actorID string) (bool, error) {
	now := database.Now()
	return s.applyFlags(ctx, conversationID, actorID, models.InboxFlags{
		HistoryCutoffAt:  &now,
		SetHistoryCutoff: true,
	}, "clear_history")
}

// GetOrCreateOneToOne returns the single direct conversation between a and b, creating it
// with an entry for each side on first use.
func (s *Service) GetOrCreateOneToOne(ctx context.Context, actorA, actorB string) (*models.Conversation, error) {
	ctx, span := tracing.StartSpan(ctx, "inbox.GetOrCreateOneToOne")
	defer span.End()

	if actorA == actorB {
		return nil, engine.InvalidOperation("a direct conversation needs two different actors")
	}
	if err := s.actors.RequireActive(ctx, actorA, actorB); err != nil {
		return nil, err
	}
	if err := s.ensureNotBlocked(ctx, actorA, actorB); err != nil {
		return nil, err
	}

	key := PairKey(actorA, actorB)
	existing, err := s.repo.GetByPairKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	members := []string{actorA, actorB}
	slices.Sort(members)

	conv := models.Conversation{
		ID:        uuid.NewString(),
		Kind:      models.ConversationKindDirect,
		PairKey:   &key,
		CreatedAt: database.Now(),
	}

	err = database.RunInTx(ctx, s.db, func(ctx context.Context) error {
		return s.repo.Create(ctx, conv, members)
	})
	if errors.Is(err, conversation.ErrPairExists) {
		metrics.ConversationConflictsTotal.Inc()
		s.logger.WithContext(ctx).WithField("pair_key", key).Info("lost direct conversation race, reusing winner")

		winner, err := s.repo.GetByPairKey(ctx, key)
		if err != nil {
			return nil, err
		}
		if winner == nil {
			return nil, engine.Storage(conversation.ErrPairExists, "find conflicting conversation")
		}
		return winner, nil
	}
	if err != nil {
		return nil, err
	}

	s.emitter.Emit(ctx, events.ConversationCreated, actorA, actorB, map[string]any{
		"conversation_id": conv.ID,
		"kind":            conv.Kind,
	})
	return &conv, nil
}

// CreateGroup creates a conversation with an entry for the creator and every distinct member.
func (s *Service) CreateGroup(ctx context.Context, creatorActorID string, memberActorIDs []string) (*models.Conversation, error) {
	ctx, span := tracing.StartSpan(ctx, "inbox.CreateGroup")
	defer span.End()

	members := []string{creatorActorID}
	seen := map[string]struct{}{creatorActorID: {}}
	for _, id := range memberActorIDs {
		if _, ok := seen[id]; ok || strings.TrimSpace(id) == "" {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}
	if len(members) < 2 {
		return nil, engine.InvalidOperation("a group needs at least one member besides its creator")
	}

	if err := s.actors.RequireActive(ctx, members...); err != nil {
		return nil, err
	}
	for _, id := range members[1:] {
		if err := s.ensureNotBlocked(ctx, creatorActorID, id); err != nil {
			return nil, err
		}
	}

	conv := models.Conversation{
		ID:        uuid.NewString(),
		Kind:      models.ConversationKindGroup,
		CreatedAt: database.Now(),
	}
	err := database.RunInTx(ctx, s.db, func(ctx context.Context) error {
		return s.repo.Create(ctx, conv, members)
	})
	if err != nil {
		return nil, err
	}

	s.emitter.Emit(ctx, events.ConversationCreated, creatorActorID, "", map[string]any{
		"conversation_id": conv.ID,
		"kind":            conv.Kind,
		"members":         members,
	})
	return &conv, nil
}

// RecordMessage applies a sent message to every member's entry: unread goes up for everyone
// but the sender and last activity moves forward. A hidden-until-new entry reappears.
func (s *Service) RecordMessage(ctx context.Context, conversationID, senderActorID, messageID string, sentAt time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "inbox.RecordMessage")
	defer span.End()

	conv, err := s.repo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return engine.NotFound("conversation %s", conversationID)
	}

	members, err := s.repo.ListMemberIDs(ctx, conversationID)
	if err != nil {
		return err
	}
	if !slices.Contains(members, senderActorID) {
		return engine.InvalidOperation("actor %s is not a member of conversation %s", senderActorID, conversationID)
	}

	if conv.Kind == models.ConversationKindDirect {
		for _, other := range members {
			if other == senderActorID {
				continue
			}
			if err := s.ensureNotBlocked(ctx, senderActorID, other); err != nil {
				return err
			}
		}
	}

	if sentAt.IsZero() {
		sentAt = time.Now()
	}

	touched, err := s.repo.RecordMessage(ctx, conversationID, senderActorID, sentAt)
	if err != nil {
		return err
	}
	metrics.RecordInboxMutation("record_message")

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"conversation_id": conversationID,
		"sender_actor_id": senderActorID,
		"message_id":      messageID,
		"entries":         touched,
	}).Debug("recorded message")
	return nil
}

func (s *Service) ensureNotBlocked(ctx context.Context, a, b string) error {
	blocked, err := s.blocks.IsBlocked(ctx, a, b)
	if err != nil {
		return err
	}
	if blocked {
		return engine.Blocked("a block exists between %s and %s", a, b)
	}
	return nil
}
