package structures

import "time"

// UserPresence is an ephemeral record stored in redis under "chat:presence:<community_id>",
// one field per (user_id, session_id). Nothing expires it; a crashed client leaves
// its last record behind until it is overwritten or cleared.
type UserPresence struct {
	UserID      string         `json:"user_id"`
	CommunityID string         `json:"community_id"`
	SessionID   string         `json:"session_id"`
	Status      PresenceStatus `json:"status"`
	DeviceType  string         `json:"device_type,omitempty"`
	UserAgent   string         `json:"user_agent,omitempty"`
	LastSeen    time.Time      `json:"last_seen"`
	ConnectedAt time.Time      `json:"connected_at"`
}

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceBusy    PresenceStatus = "busy"
	PresenceOffline PresenceStatus = "offline"
)

var presenceRank = map[PresenceStatus]int{
	PresenceOffline: 0,
	PresenceAway:    1,
	PresenceBusy:    2,
	PresenceOnline:  3,
}

func (s PresenceStatus) Valid() bool {
	_, ok := presenceRank[s]
	return ok
}

// Outranks orders statuses for the per-user union: online > busy > away > offline.
func (s PresenceStatus) Outranks(other PresenceStatus) bool {
	return presenceRank[s] > presenceRank[other]
}

// PresenceUpdate is the caller supplied part of a presence write.
type PresenceUpdate struct {
	Status     PresenceStatus `json:"status"`
	DeviceType string         `json:"device_type,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
}

// AggregatedPresence is one user's presence folded across all their sessions.
type AggregatedPresence struct {
	UserID   string         `json:"user_id"`
	Status   PresenceStatus `json:"status"`
	LastSeen time.Time      `json:"last_seen"`
	Sessions int            `json:"sessions"`
	Devices  []string       `json:"devices,omitempty"`
}
