package structures

// Mention structure is a MongoDB object in the object `ChatMessage` in the schema "chat_messages"
type Mention struct {
	ID          string      `bson:"id" json:"id"`
	Type        MentionType `bson:"type" json:"type"`
	UserID      string      `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Role        Role        `bson:"role,omitempty" json:"role,omitempty"`
	DisplayName string      `bson:"display_name" json:"display_name"`
}

type MentionType string

const (
	MentionTypeUser       MentionType = "user"
	MentionTypeEveryone   MentionType = "everyone"
	MentionTypeModerators MentionType = "moderators"
	MentionTypeRole       MentionType = "role"
)

// MentionFlags derives the has_mentions and mentions_everyone flags.
func MentionFlags(mentions []Mention) (hasMentions bool, everyone bool) {
	for _, m := range mentions {
		hasMentions = true
		if m.Type == MentionTypeEveryone {
			everyone = true
		}
	}
	return hasMentions, everyone
}
