package structures

// Membership structure is a MongoDB object in the schema "community_members"
type Membership struct {
	CommunityID string `bson:"community_id" json:"community_id"` // index-unique(community_id, user_id)
	UserID      string `bson:"user_id" json:"user_id"`
	Role        Role   `bson:"role" json:"role"`
	IsBanned    bool   `bson:"is_banned" json:"is_banned"`
	IsMuted     bool   `bson:"is_muted" json:"is_muted"`
}

// Role denotes a user's standing inside one community.
type Role string

const (
	// Not a member, may read public communities
	RoleGuest Role = "guest"
	// The default role once joined
	RoleMember Role = "member"
	// Trusted member, same chat permissions as member
	RoleContributor Role = "contributor"
	// Can manage chat: delete, pin, hide, edit any message
	RoleModerator Role = "moderator"
	// Manages the community and its moderators
	RoleAdmin Role = "admin"
	// Created the community
	RoleOwner Role = "owner"
)

var roleRank = map[Role]int{
	RoleGuest:       0,
	RoleMember:      1,
	RoleContributor: 2,
	RoleModerator:   3,
	RoleAdmin:       4,
	RoleOwner:       5,
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast compares roles by rank, unknown roles rank as guest.
func (r Role) AtLeast(other Role) bool {
	return roleRank[r] >= roleRank[other]
}

// IsModerator reports moderator authority: moderator, admin or owner.
func (r Role) IsModerator() bool {
	return r.AtLeast(RoleModerator)
}

// Guest returns the membership of a user with no record in the community.
func Guest(communityID, userID string) Membership {
	return Membership{CommunityID: communityID, UserID: userID, Role: RoleGuest}
}

// IsModerator is false for banned users regardless of role.
func (m Membership) IsModerator() bool {
	return !m.IsBanned && m.Role.IsModerator()
}

// CanSend covers sending messages and reacting.
func (m Membership) CanSend() bool {
	return !m.IsBanned && !m.IsMuted && m.Role.AtLeast(RoleMember)
}

// CanParticipate covers bookmarking and reporting, which muted users keep.
func (m Membership) CanParticipate() bool {
	return !m.IsBanned && m.Role.AtLeast(RoleMember)
}
