package messages

import (
	"context"
	"fmt"
	"time"

	"github.com/alumnihub/chat/structures"
	"github.com/alumnihub/chat/utils/live"
)

// Repository is the durable message log. Every mutating method is a single
// atomic document operation and reports errors.ErrMessageNotFound for a
// missing id. Watch feeds tick after each committed write in the community.
type Repository interface {
	Insert(ctx context.Context, m *structures.ChatMessage) error
	FindByID(ctx context.Context, id string) (*structures.ChatMessage, error)
	FindByClientID(ctx context.Context, communityID, authorID, clientID string) (*structures.ChatMessage, error)
	Find(ctx context.Context, communityID string, q Query) ([]structures.ChatMessage, error)
	CountPinned(ctx context.Context, communityID string) (int, error)

	Edit(ctx context.Context, id string, e Edit) error
	// SoftDelete leaves an already deleted message untouched.
	SoftDelete(ctx context.Context, id, by string, at time.Time) error
	SetPinned(ctx context.Context, id string, pinned bool, by string, at time.Time) error
	AddBookmark(ctx context.Context, id, userID string) error
	RemoveBookmark(ctx context.Context, id, userID string) error
	// PushReaction appends and increments reaction_count. A reaction id that is
	// already present is a no-op; a full list fails with errors.ErrReactionLimit.
	PushReaction(ctx context.Context, id string, r structures.MessageReaction, max int) error
	// PullReaction removes by reaction id and recomputes reaction_count from the list.
	PullReaction(ctx context.Context, id, reactionID string) error
	Report(ctx context.Context, id, userID, reason string) error
	Hide(ctx context.Context, id, by, reason string) error
	IncrementReplies(ctx context.Context, id string) error
	MarkAttachmentReady(ctx context.Context, id, attachmentID, url string, scanned bool) error

	Watch(ctx context.Context, communityID string) (<-chan live.Signal, error)
}

// Query is a filtered, keyset paginated read. Limit 0 means no limit.
type Query struct {
	Filter structures.MessageFilter
	Sort   structures.Sort
	After  *structures.Cursor
	Limit  int
}

// Edit is a resolved sparse update, the store has already merged and validated it.
type Edit struct {
	Content           *string
	RenderedContent   *string
	Tags              *[]string
	Mentions          *[]structures.Mention
	SearchableContent string
	EditedAt          time.Time
}

var errDuplicateClientID = fmt.Errorf("duplicate client id")
