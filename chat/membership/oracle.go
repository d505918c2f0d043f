// Package membership resolves a user's role and ban/mute state inside a community.
// Every moderator gated mutation asks an Oracle before it writes.
package membership

import (
	"context"

	"github.com/alumnihub/chat/structures"
)

type Oracle interface {
	RoleOf(ctx context.Context, communityID, userID string) (structures.Membership, error)
}

// OracleFunc adapts a function to an Oracle.
type OracleFunc func(ctx context.Context, communityID, userID string) (structures.Membership, error)

func (f OracleFunc) RoleOf(ctx context.Context, communityID, userID string) (structures.Membership, error) {
	return f(ctx, communityID, userID)
}
