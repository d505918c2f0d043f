// Package session is the per-client view of a community chat. A Session keeps
// presence alive, multiplexes the message, typing and presence streams and
// layers locally pending sends over the stored messages.
package session

import (
	"context"

	"github.com/alumnihub/chat/chat/membership"
	"github.com/alumnihub/chat/chat/messages"
	"github.com/alumnihub/chat/chat/presence"
	"github.com/alumnihub/chat/chat/search"
	"github.com/alumnihub/chat/chat/typing"
	"github.com/alumnihub/chat/errors"
	"github.com/alumnihub/chat/structures"
	"github.com/alumnihub/chat/utils/uid"
)

type Deps struct {
	Messages *messages.Store
	Presence *presence.Tracker
	Typing   *typing.Manager
	Search   *search.Adapter
	Oracle   membership.Oracle
}

type Service struct {
	deps Deps
	cfg  Config
}

func NewService(deps Deps, cfg Config) *Service {
	return &Service{deps: deps, cfg: cfg.fill()}
}

type AttachOptions struct {
	CommunityID string
	UserID      string
	SessionID   string
	DisplayName string
	PhotoURL    string
	DeviceType  string
	UserAgent   string

	Filter structures.MessageFilter
	Sort   structures.Sort
}

// Attach marks the user online and opens the three live streams. Guests may
// attach to read; banned users may not.
func (s *Service) Attach(ctx context.Context, opts AttachOptions) (*Session, error) {
	if opts.CommunityID == "" || opts.UserID == "" {
		return nil, errors.ErrMissingIdentifier
	}
	m, err := s.deps.Oracle.RoleOf(ctx, opts.CommunityID, opts.UserID)
	if err != nil {
		return nil, errors.Transient(err)
	}
	if m.IsBanned {
		return nil, errors.ErrBanned
	}
	if opts.SessionID == "" {
		opts.SessionID = uid.NewSessionId()
	}
	opts.Sort = opts.Sort.Normalize()

	sess := newSession(s, opts, m)
	if err := sess.start(ctx); err != nil {
		sess.Close(context.Background())
		return nil, err
	}
	return sess, nil
}

// AttachToken attaches with the identity carried by a session token. Fields
// set in the token win over the ones in opts.
func (s *Service) AttachToken(ctx context.Context, token string, opts AttachOptions) (*Session, error) {
	claims := &structures.JwtChatSession{}
	if err := structures.DecodeJwt(claims, s.cfg.TokenSecret, token); err != nil {
		return nil, err
	}

	opts.UserID = claims.UserID
	opts.CommunityID = claims.CommunityID
	if claims.SessionID != "" {
		opts.SessionID = claims.SessionID
	}
	if claims.DisplayName != "" {
		opts.DisplayName = claims.DisplayName
	}
	if claims.PhotoURL != "" {
		opts.PhotoURL = claims.PhotoURL
	}
	if claims.DeviceType != "" {
		opts.DeviceType = claims.DeviceType
	}
	return s.Attach(ctx, opts)
}

// IssueToken signs a session token for the given identity.
func (s *Service) IssueToken(userID, communityID, displayName, photoURL, deviceType string) (string, error) {
	claims := structures.NewJwtChatSession(userID, communityID, uid.NewSessionId(), s.cfg.TokenTTL)
	claims.DisplayName = displayName
	claims.PhotoURL = photoURL
	claims.DeviceType = deviceType
	return structures.EncodeJwt(claims, s.cfg.TokenSecret)
}
