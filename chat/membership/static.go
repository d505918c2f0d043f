package membership

import (
	"context"
	"sync"

	"github.com/alumnihub/chat/structures"
)

// Static is an in-memory Oracle.
type Static struct {
	mtx     sync.RWMutex
	members map[string]structures.Membership
}

func NewStatic(members ...structures.Membership) *Static {
	s := &Static{members: map[string]structures.Membership{}}
	for _, m := range members {
		s.Set(m)
	}
	return s
}

func key(communityID, userID string) string {
	return communityID + "/" + userID
}

func (s *Static) Set(m structures.Membership) {
	s.mtx.Lock()
	s.members[key(m.CommunityID, m.UserID)] = m
	s.mtx.Unlock()
}

// SetRole is a shorthand for a membership with no ban or mute.
func (s *Static) SetRole(communityID, userID string, role structures.Role) {
	s.Set(structures.Membership{CommunityID: communityID, UserID: userID, Role: role})
}

func (s *Static) Remove(communityID, userID string) {
	s.mtx.Lock()
	delete(s.members, key(communityID, userID))
	s.mtx.Unlock()
}

func (s *Static) RoleOf(ctx context.Context, communityID, userID string) (structures.Membership, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	if m, ok := s.members[key(communityID, userID)]; ok {
		return m, nil
	}
	return structures.Guest(communityID, userID), nil
}
