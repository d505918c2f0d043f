package session

import (
	"context"

	"github.com/alumnihub/chat/chat/search"
	"github.com/alumnihub/chat/errors"
	"github.com/alumnihub/chat/structures"
)

// The calls below act as the session's user on messages of the session's
// community. Authorization happens in the message store; failures come back
// as they are and are never retried.

// inCommunity fails with ErrCommunityMismatch for a message stored under
// another community.
func (s *Session) inCommunity(ctx context.Context, messageID string) error {
	m, err := s.svc.deps.Messages.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if m.CommunityID != s.opts.CommunityID {
		return errors.ErrCommunityMismatch
	}
	return nil
}

func (s *Session) Edit(ctx context.Context, messageID string, upd structures.MessageUpdate) error {
	if err := s.inCommunity(ctx, messageID); err != nil {
		return err
	}
	return s.svc.deps.Messages.EditMessage(ctx, messageID, upd, s.opts.UserID)
}

func (s *Session) Delete(ctx context.Context, messageID string) error {
	if err := s.inCommunity(ctx, messageID); err != nil {
		return err
	}
	return s.svc.deps.Messages.DeleteMessage(ctx, messageID, s.opts.UserID)
}

func (s *Session) Pin(ctx context.Context, messageID string) error {
	if err := s.inCommunity(ctx, messageID); err != nil {
		return err
	}
	return s.svc.deps.Messages.PinMessage(ctx, messageID, s.opts.UserID)
}

func (s *Session) Unpin(ctx context.Context, messageID string) error {
	if err := s.inCommunity(ctx, messageID); err != nil {
		return err
	}
	return s.svc.deps.Messages.UnpinMessage(ctx, messageID, s.opts.UserID)
}

func (s *Session) Bookmark(ctx context.Context, messageID string) error {
	if err := s.inCommunity(ctx, messageID); err != nil {
		return err
	}
	return s.svc.deps.Messages.BookmarkMessage(ctx, messageID, s.opts.UserID)
}

func (s *Session) Unbookmark(ctx context.Context, messageID string) error {
	if err := s.inCommunity(ctx, messageID); err != nil {
		return err
	}
	return s.svc.deps.Messages.UnbookmarkMessage(ctx, messageID, s.opts.UserID)
}

// React adds a reaction and returns its id.
func (s *Session) React(ctx context.Context, messageID, emoji string) (string, error) {
	if err := s.inCommunity(ctx, messageID); err != nil {
		return "", err
	}
	return s.svc.deps.Messages.AddReaction(ctx, messageID, structures.MessageReaction{
		Emoji:  emoji,
		UserID: s.opts.UserID,
		UserInfo: structures.ReactionUser{
			DisplayName: s.opts.DisplayName,
			PhotoURL:    s.opts.PhotoURL,
		},
	})
}

func (s *Session) Unreact(ctx context.Context, messageID, reactionID string) error {
	if err := s.inCommunity(ctx, messageID); err != nil {
		return err
	}
	return s.svc.deps.Messages.RemoveReaction(ctx, messageID, reactionID, s.opts.UserID)
}

func (s *Session) Report(ctx context.Context, messageID, reason string) error {
	if err := s.inCommunity(ctx, messageID); err != nil {
		return err
	}
	return s.svc.deps.Messages.ReportMessage(ctx, messageID, s.opts.UserID, reason)
}

func (s *Session) Hide(ctx context.Context, messageID, reason string) error {
	if err := s.inCommunity(ctx, messageID); err != nil {
		return err
	}
	return s.svc.deps.Messages.HideMessage(ctx, messageID, s.opts.UserID, reason)
}

// LoadOlder pages through history with the session's filter and sort.
func (s *Session) LoadOlder(ctx context.Context, cursor string, limit int) (structures.MessagePage, error) {
	return s.svc.deps.Messages.ListMessages(ctx, s.opts.CommunityID, s.opts.Filter, structures.Pagination{Limit: limit, Cursor: cursor}, s.opts.Sort)
}

// Search is always scoped to the session's community.
func (s *Session) Search(ctx context.Context, p search.Params) (search.Page, error) {
	p.CommunityID = s.opts.CommunityID
	return s.svc.deps.Search.SearchMessages(ctx, p)
}
