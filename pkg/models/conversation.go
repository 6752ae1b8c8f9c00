package models

import "time"

type ConversationKind string

const (
	ConversationKindDirect ConversationKind = "direct"
	ConversationKindGroup  ConversationKind = "group"
)

type Conversation struct {
	ID        string           `db:"id" json:"id"`
	Kind      ConversationKind `db:"kind" json:"kind"`
	PairKey   *string          `db:"pair_key" json:"-"`
	CreatedAt time.Time        `db:"created_at" json:"createdAt"`
}

// InboxEntry is one actor's view of one conversation. A row doubles as membership.
type InboxEntry struct {
	ConversationID    string     `db:"conversation_id" json:"conversationId"`
	ActorID           string     `db:"actor_id" json:"actorId"`
	Archived          bool       `db:"archived" json:"archived"`
	ArchivedUntilNew  bool       `db:"archived_until_new" json:"archivedUntilNew"`
	Pinned            bool       `db:"pinned" json:"pinned"`
	Muted             bool       `db:"muted" json:"muted"`
	HistoryCutoffAt   *time.Time `db:"history_cutoff_at" json:"historyCutoffAt"`
	LastMessageAt     *time.Time `db:"last_message_at" json:"lastMessageAt"`
	LastReadMessageID *string    `db:"last_read_message_id" json:"lastReadMessageId,omitempty"`
	UnreadCount       int        `db:"unread_count" json:"unreadCount"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updatedAt"`
}

// Visible reports whether the entry belongs in the actor's thread list. archived hides
// until an explicit unarchive; archivedUntilNew hides only while nothing is unread.
func (e InboxEntry) Visible() bool {
	return !e.Archived && (!e.ArchivedUntilNew || e.UnreadCount > 0)
}

// InboxFlags is a partial update of the mutable visibility flags. Nil fields are left as is.
type InboxFlags struct {
	Archived         *bool
	ArchivedUntilNew *bool
	Pinned           *bool
	Muted            *bool
	// HistoryCutoffAt is applied when SetHistoryCutoff is true; a nil value clears the cutoff.
	HistoryCutoffAt  *time.Time
	SetHistoryCutoff bool
}

func (f InboxFlags) Empty() bool {
	return f.Archived == nil && f.ArchivedUntilNew == nil && f.Pinned == nil && f.Muted == nil && !f.SetHistoryCutoff
}
