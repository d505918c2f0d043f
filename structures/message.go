package structures

import (
	"strings"
	"time"
)

// ChatMessage structure is a MongoDB object in the schema "chat_messages"
//
// indexes: (community_id, created_at desc), (community_id, reaction_count desc),
// (community_id, author_id), (community_id, tags), (community_id, is_pinned),
// unique partial (community_id, author_id, client_id)
type ChatMessage struct {
	ID          string `bson:"_id" json:"id"`
	CommunityID string `bson:"community_id" json:"community_id"`
	AuthorID    string `bson:"author_id" json:"author_id"`
	ClientID    string `bson:"client_id,omitempty" json:"client_id,omitempty"`

	Type              MessageType `bson:"type" json:"type"`
	Content           string      `bson:"content" json:"content"`
	RenderedContent   string      `bson:"rendered_content,omitempty" json:"rendered_content,omitempty"`
	Tags              []string    `bson:"tags" json:"tags"`
	SearchableContent string      `bson:"searchable_content" json:"searchable_content"`

	Author AuthorSnapshot `bson:"author" json:"author"`

	ThreadID        string `bson:"thread_id,omitempty" json:"thread_id,omitempty"`
	ParentMessageID string `bson:"parent_message_id,omitempty" json:"parent_message_id,omitempty"`
	IsThreadStarter bool   `bson:"is_thread_starter" json:"is_thread_starter"`
	ReplyCount      int    `bson:"reply_count" json:"reply_count"`

	Attachments      []Attachment `bson:"attachments" json:"attachments"`
	Mentions         []Mention    `bson:"mentions" json:"mentions"`
	HasMentions      bool         `bson:"has_mentions" json:"has_mentions"`
	MentionsEveryone bool         `bson:"mentions_everyone" json:"mentions_everyone"`

	Reactions     []MessageReaction `bson:"reactions" json:"reactions"`
	ReactionCount int               `bson:"reaction_count" json:"reaction_count"`

	Status MessageStatus `bson:"status" json:"status"`

	IsEdited bool       `bson:"is_edited" json:"is_edited"`
	EditedAt *time.Time `bson:"edited_at,omitempty" json:"edited_at,omitempty"`

	IsDeleted bool       `bson:"is_deleted" json:"is_deleted"`
	DeletedAt *time.Time `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
	DeletedBy string     `bson:"deleted_by,omitempty" json:"deleted_by,omitempty"`

	IsPinned bool       `bson:"is_pinned" json:"is_pinned"`
	PinnedBy string     `bson:"pinned_by,omitempty" json:"pinned_by,omitempty"`
	PinnedAt *time.Time `bson:"pinned_at,omitempty" json:"pinned_at,omitempty"`

	BookmarkedBy []string `bson:"bookmarked_by" json:"bookmarked_by"`

	IsReported    bool   `bson:"is_reported" json:"is_reported"`
	ReportCount   int    `bson:"report_count" json:"report_count"`
	FlaggedReason string `bson:"flagged_reason,omitempty" json:"flagged_reason,omitempty"`

	IsHidden     bool   `bson:"is_hidden" json:"is_hidden"`
	HiddenBy     string `bson:"hidden_by,omitempty" json:"hidden_by,omitempty"`
	HiddenReason string `bson:"hidden_reason,omitempty" json:"hidden_reason,omitempty"`

	IsAnnouncement   bool `bson:"is_announcement" json:"is_announcement"`
	IsSystemMessage  bool `bson:"is_system_message" json:"is_system_message"`
	IsWelcomeMessage bool `bson:"is_welcome_message" json:"is_welcome_message"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// AuthorSnapshot is captured when the message is sent and never refreshed.
type AuthorSnapshot struct {
	DisplayName string `bson:"display_name" json:"display_name"`
	AvatarURL   string `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`
	RoleLabel   string `bson:"role_label,omitempty" json:"role_label,omitempty"`
	Online      bool   `bson:"online" json:"online"`
}

type MessageType string

const (
	MessageTypeText          MessageType = "text"
	MessageTypeImage         MessageType = "image"
	MessageTypeFile          MessageType = "file"
	MessageTypeCode          MessageType = "code"
	MessageTypeLink          MessageType = "link"
	MessageTypePoll          MessageType = "poll"
	MessageTypeAnnouncement  MessageType = "announcement"
	MessageTypeSystem        MessageType = "system"
	MessageTypeWelcome       MessageType = "welcome"
	MessageTypeEventReminder MessageType = "event-reminder"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile, MessageTypeCode, MessageTypeLink,
		MessageTypePoll, MessageTypeAnnouncement, MessageTypeSystem, MessageTypeWelcome,
		MessageTypeEventReminder:
		return true
	}
	return false
}

type MessageStatus string

const (
	MessageStatusSending   MessageStatus = "sending"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusFailed    MessageStatus = "failed"
	MessageStatusDeleted   MessageStatus = "deleted"
)

// Renderable reports whether a client should show the message by default.
// Deleted and hidden messages stay in storage and in every result set.
func (m ChatMessage) Renderable() bool {
	return !m.IsDeleted && !m.IsHidden
}

func (m ChatMessage) HasAttachments() bool {
	return len(m.Attachments) > 0
}

func (m ChatMessage) IsBookmarkedBy(userID string) bool {
	for _, v := range m.BookmarkedBy {
		if v == userID {
			return true
		}
	}
	return false
}

// MessageDraft is what a client submits to send a message.
type MessageDraft struct {
	ClientID        string         `json:"client_id,omitempty"`
	Type            MessageType    `json:"type"`
	Content         string         `json:"content"`
	RenderedContent string         `json:"rendered_content,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
	Attachments     []Attachment   `json:"attachments,omitempty"`
	Mentions        []Mention      `json:"mentions,omitempty"`
	ParentMessageID string         `json:"parent_message_id,omitempty"`
	Author          AuthorSnapshot `json:"author"`
}

// MessageUpdate is a sparse edit, nil fields are left untouched.
type MessageUpdate struct {
	Content         *string    `json:"content,omitempty"`
	RenderedContent *string    `json:"rendered_content,omitempty"`
	Tags            *[]string  `json:"tags,omitempty"`
	Mentions        *[]Mention `json:"mentions,omitempty"`
}

func (u MessageUpdate) Empty() bool {
	return u.Content == nil && u.RenderedContent == nil && u.Tags == nil && u.Mentions == nil
}

// SearchableContent denormalizes content and tags for contains-matching.
func SearchableContent(content string, tags []string) string {
	parts := make([]string, 0, len(tags)+1)
	if c := strings.TrimSpace(content); c != "" {
		parts = append(parts, c)
	}
	for _, t := range tags {
		parts = append(parts, "#"+t)
	}
	return strings.ToLower(strings.Join(parts, " "))
}
