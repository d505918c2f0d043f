package messages

import (
	"context"
	"sync"
	"time"

	"github.com/alumnihub/chat/errors"
	"github.com/alumnihub/chat/structures"
	"github.com/alumnihub/chat/utils/live"
)

// MemoryRepository keeps messages in process. Every method copies on the way in
// and out so callers never share state with the repository.
type MemoryRepository struct {
	mtx  sync.RWMutex
	msgs map[string]*structures.ChatMessage
	hub  *live.Hub
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		msgs: map[string]*structures.ChatMessage{},
		hub:  live.NewHub(),
	}
}

func (r *MemoryRepository) Insert(ctx context.Context, m *structures.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return errors.Transient(err)
	}

	r.mtx.Lock()
	if m.ClientID != "" {
		for _, v := range r.msgs {
			if v.CommunityID == m.CommunityID && v.AuthorID == m.AuthorID && v.ClientID == m.ClientID {
				r.mtx.Unlock()
				return errDuplicateClientID
			}
		}
	}
	r.msgs[m.ID] = clone(m)
	r.mtx.Unlock()

	r.hub.Notify(m.CommunityID)
	return nil
}

func (r *MemoryRepository) FindByID(ctx context.Context, id string) (*structures.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Transient(err)
	}

	r.mtx.RLock()
	defer r.mtx.RUnlock()
	m, ok := r.msgs[id]
	if !ok {
		return nil, errors.ErrMessageNotFound
	}
	return clone(m), nil
}

func (r *MemoryRepository) FindByClientID(ctx context.Context, communityID, authorID, clientID string) (*structures.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Transient(err)
	}

	r.mtx.RLock()
	defer r.mtx.RUnlock()
	for _, m := range r.msgs {
		if m.CommunityID == communityID && m.AuthorID == authorID && m.ClientID == clientID {
			return clone(m), nil
		}
	}
	return nil, errors.ErrMessageNotFound
}

func (r *MemoryRepository) Find(ctx context.Context, communityID string, q Query) ([]structures.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Transient(err)
	}
	s := q.Sort.Normalize()

	r.mtx.RLock()
	out := []structures.ChatMessage{}
	for _, m := range r.msgs {
		if m.CommunityID != communityID || !Matches(*m, q.Filter) || !afterCursor(*m, q.After, s) {
			continue
		}
		out = append(out, *clone(m))
	}
	r.mtx.RUnlock()

	SortMessages(out, s)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) CountPinned(ctx context.Context, communityID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, errors.Transient(err)
	}

	r.mtx.RLock()
	defer r.mtx.RUnlock()
	n := 0
	for _, m := range r.msgs {
		if m.CommunityID == communityID && m.IsPinned {
			n++
		}
	}
	return n, nil
}

// update runs fn on the stored message under the write lock and ticks the
// community feed when fn reports a change.
func (r *MemoryRepository) update(ctx context.Context, id string, fn func(m *structures.ChatMessage) (bool, error)) error {
	if err := ctx.Err(); err != nil {
		return errors.Transient(err)
	}

	r.mtx.Lock()
	m, ok := r.msgs[id]
	if !ok {
		r.mtx.Unlock()
		return errors.ErrMessageNotFound
	}
	changed, err := fn(m)
	communityID := m.CommunityID
	r.mtx.Unlock()

	if err != nil {
		return err
	}
	if changed {
		r.hub.Notify(communityID)
	}
	return nil
}

func (r *MemoryRepository) Edit(ctx context.Context, id string, e Edit) error {
	return r.update(ctx, id, func(m *structures.ChatMessage) (bool, error) {
		if e.Content != nil {
			m.Content = *e.Content
		}
		if e.RenderedContent != nil {
			m.RenderedContent = *e.RenderedContent
		}
		if e.Tags != nil {
			m.Tags = append([]string{}, (*e.Tags)...)
		}
		if e.Mentions != nil {
			m.Mentions = append([]structures.Mention{}, (*e.Mentions)...)
			m.HasMentions, m.MentionsEveryone = structures.MentionFlags(m.Mentions)
		}
		m.SearchableContent = e.SearchableContent
		at := e.EditedAt
		m.IsEdited = true
		m.EditedAt = &at
		m.UpdatedAt = at
		return true, nil
	})
}

func (r *MemoryRepository) SoftDelete(ctx context.Context, id, by string, at time.Time) error {
	return r.update(ctx, id, func(m *structures.ChatMessage) (bool, error) {
		if m.IsDeleted {
			return false, nil
		}
		m.IsDeleted = true
		m.DeletedAt = &at
		m.DeletedBy = by
		m.Status = structures.MessageStatusDeleted
		m.UpdatedAt = at
		return true, nil
	})
}

func (r *MemoryRepository) SetPinned(ctx context.Context, id string, pinned bool, by string, at time.Time) error {
	return r.update(ctx, id, func(m *structures.ChatMessage) (bool, error) {
		m.IsPinned = pinned
		if pinned {
			m.PinnedBy = by
			m.PinnedAt = &at
		} else {
			m.PinnedBy = ""
			m.PinnedAt = nil
		}
		m.UpdatedAt = at
		return true, nil
	})
}

func (r *MemoryRepository) AddBookmark(ctx context.Context, id, userID string) error {
	return r.update(ctx, id, func(m *structures.ChatMessage) (bool, error) {
		if m.IsBookmarkedBy(userID) {
			return false, nil
		}
		m.BookmarkedBy = append(m.BookmarkedBy, userID)
		return true, nil
	})
}

func (r *MemoryRepository) RemoveBookmark(ctx context.Context, id, userID string) error {
	return r.update(ctx, id, func(m *structures.ChatMessage) (bool, error) {
		kept := m.BookmarkedBy[:0]
		for _, v := range m.BookmarkedBy {
			if v != userID {
				kept = append(kept, v)
			}
		}
		changed := len(kept) != len(m.BookmarkedBy)
		m.BookmarkedBy = kept
		return changed, nil
	})
}

func (r *MemoryRepository) PushReaction(ctx context.Context, id string, reaction structures.MessageReaction, max int) error {
	return r.update(ctx, id, func(m *structures.ChatMessage) (bool, error) {
		for _, v := range m.Reactions {
			if v.ID == reaction.ID {
				return false, nil
			}
		}
		if max > 0 && len(m.Reactions) >= max {
			return false, errors.ErrReactionLimit
		}
		m.Reactions = append(m.Reactions, reaction)
		m.ReactionCount++
		return true, nil
	})
}

func (r *MemoryRepository) PullReaction(ctx context.Context, id, reactionID string) error {
	return r.update(ctx, id, func(m *structures.ChatMessage) (bool, error) {
		kept := make([]structures.MessageReaction, 0, len(m.Reactions))
		for _, v := range m.Reactions {
			if v.ID != reactionID {
				kept = append(kept, v)
			}
		}
		m.Reactions = kept
		m.ReactionCount = len(kept)
		return true, nil
	})
}

func (r *MemoryRepository) Report(ctx context.Context, id, userID, reason string) error {
	return r.update(ctx, id, func(m *structures.ChatMessage) (bool, error) {
		m.IsReported = true
		m.ReportCount++
		m.FlaggedReason = reason
		return true, nil
	})
}

func (r *MemoryRepository) Hide(ctx context.Context, id, by, reason string) error {
	return r.update(ctx, id, func(m *structures.ChatMessage) (bool, error) {
		m.IsHidden = true
		m.HiddenBy = by
		m.HiddenReason = reason
		return true, nil
	})
}

func (r *MemoryRepository) IncrementReplies(ctx context.Context, id string) error {
	return r.update(ctx, id, func(m *structures.ChatMessage) (bool, error) {
		m.ReplyCount++
		m.IsThreadStarter = true
		if m.ThreadID == "" {
			m.ThreadID = m.ID
		}
		return true, nil
	})
}

func (r *MemoryRepository) MarkAttachmentReady(ctx context.Context, id, attachmentID, url string, scanned bool) error {
	return r.update(ctx, id, func(m *structures.ChatMessage) (bool, error) {
		for i := range m.Attachments {
			a := &m.Attachments[i]
			if a.ID != attachmentID {
				continue
			}
			a.URL = url
			a.IsProcessing = false
			a.IsScanned = scanned
			return true, nil
		}
		return false, errors.ErrAttachmentNotFound
	})
}

func (r *MemoryRepository) Watch(ctx context.Context, communityID string) (<-chan live.Signal, error) {
	return r.hub.Subscribe(ctx, communityID), nil
}

// FailWatchers ends every open feed of the community with err, the way a
// dropped change stream would.
func (r *MemoryRepository) FailWatchers(communityID string, err error) {
	r.hub.Fail(communityID, err)
}

func clone(m *structures.ChatMessage) *structures.ChatMessage {
	c := *m
	c.Tags = append([]string{}, m.Tags...)
	c.Attachments = append([]structures.Attachment{}, m.Attachments...)
	c.Mentions = append([]structures.Mention{}, m.Mentions...)
	c.Reactions = append([]structures.MessageReaction{}, m.Reactions...)
	c.BookmarkedBy = append([]string{}, m.BookmarkedBy...)
	c.EditedAt = cloneTime(m.EditedAt)
	c.DeletedAt = cloneTime(m.DeletedAt)
	c.PinnedAt = cloneTime(m.PinnedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
