package structures

// RedisChangeEvent is published on a community's change channel after every
// presence or typing write so subscribers know to reload.
type RedisChangeEvent struct {
	Type        RedisChangeEventType `json:"type"`
	CommunityID string               `json:"community_id"`
	UserID      string               `json:"user_id"`
}

type RedisChangeEventType int32

const (
	RedisChangeEventTypePresenceSet RedisChangeEventType = iota
	RedisChangeEventTypePresenceCleared
	RedisChangeEventTypeTypingSet
	RedisChangeEventTypeTypingCleared
)
