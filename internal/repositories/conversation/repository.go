package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/trellis/pkg/database"
	"github.com/Ramsey-B/trellis/pkg/engine"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

// ErrPairExists is returned by Create when another caller created the same direct pair first.
var ErrPairExists = errors.New("conversation for pair already exists")

// ConversationRepository defines the interface for conversations and their inbox entries
type ConversationRepository interface {
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	GetByPairKey(ctx context.Context, pairKey string) (*models.Conversation, error)
	Create(ctx context.Context, conversation models.Conversation, memberActorIDs []string) error
	ListMemberIDs(ctx context.Context, conversationID string) ([]string, error)
	GetEntry(ctx context.Context, conversationID, actorID string) (*models.InboxEntry, error)
	ListEntries(ctx context.Context, actorID string) ([]models.InboxEntry, error)
	UpdateFlags(ctx context.Context, conversationID, actorID string, flags models.InboxFlags) (bool, error)
	MarkRead(ctx context.Context, conversationID, actorID string, lastReadMessageID *string) (bool, error)
	RecordMessage(ctx context.Context, conversationID, senderActorID string, sentAt time.Time) (int64, error)
}

// Repository implements ConversationRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new conversation repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const (
	conversationsTable = "conversations"
	entriesTable       = "inbox_entries"
)

var (
	conversationColumns = []string{"id", "kind", "pair_key", "created_at"}
	entryColumns        = []string{
		"conversation_id", "actor_id", "archived", "archived_until_new", "pinned", "muted",
		"history_cutoff_at", "last_message_at", "last_read_message_id", "unread_count", "created_at", "updated_at",
	}
)

// GetByID gets a conversation by ID. Returns nil when it does not exist.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	ctx, span := tracing.StartSpan(ctx, "ConversationRepository.GetByID")
	defer span.End()

	sb := r.db.Flavor().NewSelectBuilder()
	sb.Select(conversationColumns...)
	sb.From(conversationsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	return r.getConversation(ctx, query, args, map[string]any{"conversation_id": id})
}

// GetByPairKey gets the direct conversation of a canonical pair. Returns nil when there is none.
func (r *Repository) GetByPairKey(ctx context.Context, pairKey string) (*models.Conversation, error) {
	ctx, span := tracing.StartSpan(ctx, "ConversationRepository.GetByPairKey")
	defer span.End()

	sb := r.db.Flavor().NewSelectBuilder()
	sb.Select(conversationColumns...)
	sb.From(conversationsTable)
	sb.Where(sb.Equal("pair_key", pairKey))

	query, args := sb.Build()

	return r.getConversation(ctx, query, args, map[string]any{"pair_key": pairKey})
}

func (r *Repository) getConversation(ctx context.Context, query string, args []any, fields map[string]any) (*models.Conversation, error) {
	var conversation models.Conversation
	if err := database.Executor(ctx, r.db).GetContext(ctx, &conversation, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(fields).Error("failed to get conversation")
		return nil, engine.Storage(err, "get conversation")
	}
	return &conversation, nil
}

// Create inserts the conversation and one inbox entry per member. Run it inside a transaction.
// A pair_key collision is reported as ErrPairExists.
func (r *Repository) Create(ctx context.Context, conversation models.Conversation, memberActorIDs []string) error {
	ctx, span := tracing.StartSpan(ctx, "ConversationRepository.Create")
	defer span.End()

	exec := database.Executor(ctx, r.db)

	ib := r.db.Flavor().NewInsertBuilder()
	ib.InsertInto(conversationsTable)
	ib.Cols(conversationColumns...)
	ib.Values(conversation.ID, string(conversation.Kind), conversation.PairKey, conversation.CreatedAt)

	query, args := ib.Build()

	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		if conversation.PairKey != nil && database.IsUniqueViolation(err) {
			return ErrPairExists
		}
		r.logger.WithContext(ctx).WithError(err).WithField("conversation_id", conversation.ID).Error("failed to create conversation")
		return engine.Storage(err, "create conversation")
	}

	eb := r.db.Flavor().NewInsertBuilder()
	eb.InsertInto(entriesTable)
	eb.Cols("conversation_id", "actor_id", "unread_count", "created_at", "updated_at")
	for _, actorID := range memberActorIDs {
		eb.Values(conversation.ID, actorID, 0, conversation.CreatedAt, conversation.CreatedAt)
	}

	query, args = eb.Build()

	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"conversation_id": conversation.ID,
			"members":         memberActorIDs,
		}).Error("failed to create inbox entries")
		return engine.Storage(err, "create inbox entries")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"conversation_id": conversation.ID,
		"kind":            conversation.Kind,
		"members":         len(memberActorIDs),
	}).Info("created conversation")

	return nil
}

// ListMemberIDs returns the actors holding an inbox entry for the conversation.
func (r *Repository) ListMemberIDs(ctx context.Context, conversationID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "ConversationRepository.ListMemberIDs")
	defer span.End()

	sb := r.db.Flavor().NewSelectBuilder()
	sb.Select("actor_id")
	sb.From(entriesTable)
	sb.Where(sb.Equal("conversation_id", conversationID))
	sb.OrderBy("actor_id")

	query, args := sb.Build()

	ids := []string{}
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &ids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("conversation_id", conversationID).Error("failed to list conversation members")
		return nil, engine.Storage(err, "list conversation members")
	}

	return ids, nil
}

// GetEntry gets one actor's entry. Returns nil when the actor is not a member.
func (r *Repository) GetEntry(ctx context.Context, conversationID, actorID string) (*models.InboxEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "ConversationRepository.GetEntry")
	defer span.End()

	sb := r.db.Flavor().NewSelectBuilder()
	sb.Select(entryColumns...)
	sb.From(entriesTable)
	sb.Where(
		sb.Equal("conversation_id", conversationID),
		sb.Equal("actor_id", actorID),
	)

	query, args := sb.Build()

	var entry models.InboxEntry
	if err := database.Executor(ctx, r.db).GetContext(ctx, &entry, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"conversation_id": conversationID,
			"actor_id":        actorID,
		}).Error("failed to get inbox entry")
		return nil, engine.Storage(err, "get inbox entry")
	}

	return &entry, nil
}

// ListEntries returns every entry of the actor, hidden ones included, unordered.
func (r *Repository) ListEntries(ctx context.Context, actorID string) ([]models.InboxEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "ConversationRepository.ListEntries")
	defer span.End()

	sb := r.db.Flavor().NewSelectBuilder()
	sb.Select(entryColumns...)
	sb.From(entriesTable)
	sb.Where(sb.Equal("actor_id", actorID))

	query, args := sb.Build()

	entries := []models.InboxEntry{}
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("actor_id", actorID).Error("failed to list inbox entries")
		return nil, engine.Storage(err, "list inbox entries")
	}

	return entries, nil
}

// UpdateFlags applies the non-nil flags in one statement. Returns false when the actor has no
// entry or nothing was set.
func (r *Repository) UpdateFlags(ctx context.Context, conversationID, actorID string, flags models.InboxFlags) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "ConversationRepository.UpdateFlags")
	defer span.End()

	if flags.Empty() {
		return false, nil
	}

	ub := r.db.Flavor().NewUpdateBuilder()
	ub.Update(entriesTable)

	assignments := []string{ub.Assign("updated_at", database.Now())}
	if flags.Archived != nil {
		assignments = append(assignments, ub.Assign("archived", *flags.Archived))
	}
	if flags.ArchivedUntilNew != nil {
		assignments = append(assignments, ub.Assign("archived_until_new", *flags.ArchivedUntilNew))
	}
	if flags.Pinned != nil {
		assignments = append(assignments, ub.Assign("pinned", *flags.Pinned))
	}
	if flags.Muted != nil {
		assignments = append(assignments, ub.Assign("muted", *flags.Muted))
	}
	if flags.SetHistoryCutoff {
		var cutoff *time.Time
		if flags.HistoryCutoffAt != nil {
			t := database.Timestamp(*flags.HistoryCutoffAt)
			cutoff = &t
		}
		assignments = append(assignments, ub.Assign("history_cutoff_at", cutoff))
	}
	if flags.ArchivedUntilNew != nil && *flags.ArchivedUntilNew {
		// hide right away; the next message brings it back
		assignments = append(assignments, ub.Assign("unread_count", 0))
	}

	ub.Set(assignments...)
	ub.Where(
		ub.Equal("conversation_id", conversationID),
		ub.Equal("actor_id", actorID),
	)

	query, args := ub.Build()

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"conversation_id": conversationID,
			"actor_id":        actorID,
		}).Error("failed to update inbox flags")
		return false, engine.Storage(err, "update inbox flags")
	}

	return database.RowsAffected(res) > 0, nil
}

// MarkRead zeroes the unread count in a single statement so it can interleave with
// RecordMessage without going negative. lastReadMessageID is kept when nil.
func (r *Repository) MarkRead(ctx context.Context, conversationID, actorID string, lastReadMessageID *string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "ConversationRepository.MarkRead")
	defer span.End()

	ub := r.db.Flavor().NewUpdateBuilder()
	ub.Update(entriesTable)
	ub.Set(
		ub.Assign("unread_count", 0),
		fmt.Sprintf("last_read_message_id = COALESCE(%s, last_read_message_id)", ub.Var(lastReadMessageID)),
		ub.Assign("updated_at", database.Now()),
	)
	ub.Where(
		ub.Equal("conversation_id", conversationID),
		ub.Equal("actor_id", actorID),
	)

	query, args := ub.Build()

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"conversation_id": conversationID,
			"actor_id":        actorID,
		}).Error("failed to mark inbox entry read")
		return false, engine.Storage(err, "mark inbox entry read")
	}

	return database.RowsAffected(res) > 0, nil
}

// RecordMessage bumps unread and lifts a hide-until-new for every member except the sender,
// and moves last_message_at forward for everyone, in one statement. Returns the number of entries touched.
func (r *Repository) RecordMessage(ctx context.Context, conversationID, senderActorID string, sentAt time.Time) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "ConversationRepository.RecordMessage")
	defer span.End()

	sentAt = database.Timestamp(sentAt)

	ub := r.db.Flavor().NewUpdateBuilder()
	ub.Update(entriesTable)
	ub.Set(
		fmt.Sprintf("unread_count = CASE WHEN actor_id = %s THEN unread_count ELSE unread_count + 1 END", ub.Var(senderActorID)),
		fmt.Sprintf("archived_until_new = CASE WHEN actor_id = %s THEN archived_until_new ELSE %s END", ub.Var(senderActorID), ub.Var(false)),
		fmt.Sprintf("last_message_at = CASE WHEN last_message_at IS NULL OR last_message_at < %s THEN %s ELSE last_message_at END",
			ub.Var(sentAt), ub.Var(sentAt)),
		ub.Assign("updated_at", database.Now()),
	)
	ub.Where(ub.Equal("conversation_id", conversationID))

	query, args := ub.Build()

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"conversation_id": conversationID,
			"sender_actor_id": senderActorID,
		}).Error("failed to record message")
		return 0, engine.Storage(err, "record message")
	}

	return database.RowsAffected(res), nil
}
