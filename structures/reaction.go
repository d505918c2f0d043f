package structures

import (
	"sort"
	"time"
)

// MessageReaction structure is a MongoDB object in the object `ChatMessage` in the schema "chat_messages"
//
// It has no identity outside its message.
type MessageReaction struct {
	ID        string       `bson:"id" json:"id"`
	Emoji     string       `bson:"emoji" json:"emoji"`
	UserID    string       `bson:"user_id" json:"user_id"`
	UserInfo  ReactionUser `bson:"user_info" json:"user_info"`
	CreatedAt time.Time    `bson:"created_at" json:"created_at"`
}

type ReactionUser struct {
	DisplayName string `bson:"display_name" json:"display_name"`
	PhotoURL    string `bson:"photo_url,omitempty" json:"photo_url,omitempty"`
}

// ReactionGroup is the per-emoji view of a message's reactions.
type ReactionGroup struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// GroupReactions folds a reaction list into per-emoji groups ordered by first use.
// The same user may appear more than once in a group since the store keeps duplicates.
func GroupReactions(reactions []MessageReaction) []ReactionGroup {
	idx := map[string]int{}
	groups := []ReactionGroup{}
	ordered := make([]MessageReaction, len(reactions))
	copy(ordered, reactions)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].CreatedAt.Before(ordered[j].CreatedAt) })

	for _, r := range ordered {
		i, ok := idx[r.Emoji]
		if !ok {
			i = len(groups)
			idx[r.Emoji] = i
			groups = append(groups, ReactionGroup{Emoji: r.Emoji})
		}
		groups[i].Count++
		groups[i].Users = append(groups[i].Users, r.UserID)
	}

	return groups
}
