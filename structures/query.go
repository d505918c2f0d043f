package structures

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/alumnihub/chat/errors"
)

// MessageFilter narrows a community's messages. Zero fields do not filter.
type MessageFilter struct {
	AuthorID       string      `json:"author_id,omitempty"`
	Type           MessageType `json:"type,omitempty"`
	Tags           []string    `json:"tags,omitempty"` // any-match
	HasAttachments *bool       `json:"has_attachments,omitempty"`
	ThreadID       string      `json:"thread_id,omitempty"`
	PinnedOnly     bool        `json:"pinned_only,omitempty"`
	BookmarkedBy   string      `json:"bookmarked_by,omitempty"`
	Text           string      `json:"text,omitempty"` // contains-match on searchable_content
	Since          *time.Time  `json:"since,omitempty"`
	Until          *time.Time  `json:"until,omitempty"`
}

type SortField string

const (
	SortByCreatedAt     SortField = "created_at"
	SortByReactionCount SortField = "reaction_count"
)

type SortOrder int

const (
	SortDesc SortOrder = -1
	SortAsc  SortOrder = 1
)

type Sort struct {
	Field SortField `json:"field,omitempty"`
	Order SortOrder `json:"order,omitempty"`
}

// DefaultSort is created_at descending.
var DefaultSort = Sort{Field: SortByCreatedAt, Order: SortDesc}

func (s Sort) Normalize() Sort {
	if s.Field != SortByReactionCount {
		s.Field = SortByCreatedAt
	}
	if s.Order != SortAsc {
		s.Order = SortDesc
	}
	return s
}

type Pagination struct {
	Limit  int    `json:"limit,omitempty"`
	Cursor string `json:"cursor,omitempty"`
}

// MessagePage carries a forward cursor only.
type MessagePage struct {
	Messages   []ChatMessage `json:"messages"`
	NextCursor string        `json:"next_cursor,omitempty"`
	HasMore    bool          `json:"has_more"`
}

// Cursor is the keyset position of the last message of a page.
type Cursor struct {
	Field     SortField `json:"f"`
	Value     int64     `json:"v,omitempty"`
	CreatedAt time.Time `json:"t"`
	ID        string    `json:"id"`
}

func CursorFor(m ChatMessage, s Sort) Cursor {
	c := Cursor{Field: s.Field, CreatedAt: m.CreatedAt, ID: m.ID}
	if s.Field == SortByReactionCount {
		c.Value = int64(m.ReactionCount)
	}
	return c
}

func EncodeCursor(c Cursor) string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeCursor rejects cursors produced for a different sort field.
func DecodeCursor(s string, sort Sort) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.ErrInvalidCursor
	}
	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil || c.ID == "" {
		return nil, errors.ErrInvalidCursor
	}
	if c.Field != sort.Field {
		return nil, errors.ErrInvalidCursor
	}
	return &c, nil
}
