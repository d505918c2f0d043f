package structures

import "time"

// NotificationEvent is handed to the notification sink. Delivery and read state
// belong to the notification subsystem.
type NotificationEvent struct {
	Type         NotificationEventType `json:"type"`
	TargetUserID string                `json:"target_user_id,omitempty"`
	Audience     MentionType           `json:"audience,omitempty"`
	AudienceRole Role                  `json:"audience_role,omitempty"`
	CommunityID  string                `json:"community_id"`
	MessageID    string                `json:"message_id"`
	ActorID      string                `json:"actor_id"`
	Timestamp    time.Time             `json:"timestamp"`
}

type NotificationEventType string

const (
	NotificationEventTypeMention  NotificationEventType = "mention"
	NotificationEventTypeReaction NotificationEventType = "reaction"
	NotificationEventTypeReply    NotificationEventType = "reply"
)

