package structures

import "time"

// TypingIndicator is an ephemeral record stored in redis under "chat:typing:<community_id>",
// one field per user_id.
type TypingIndicator struct {
	UserID      string    `json:"user_id"`
	CommunityID string    `json:"community_id"`
	DisplayName string    `json:"display_name"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Active is the reader-side expiry check. A record past ExpiresAt is treated as
// not typing even though it may still be stored.
func (t TypingIndicator) Active(now time.Time) bool {
	return now.Before(t.ExpiresAt)
}
