package session

import (
	"context"
	"time"

	"github.com/alumnihub/chat/chat/messages"
	"github.com/alumnihub/chat/errors"
	"github.com/alumnihub/chat/structures"
	"github.com/alumnihub/chat/utils/uid"
)

// pending is a locally echoed send. It is shown in message snapshots until the
// stored message with the same client id arrives on the stream, or, when the
// send failed, until it is retried or discarded.
type pending struct {
	draft     structures.MessageDraft
	messageID string
	err       error
	createdAt time.Time
}

func (p *pending) message(s *Session) structures.ChatMessage {
	status := structures.MessageStatusSending
	if p.err != nil {
		status = structures.MessageStatusFailed
	}
	hasMentions, everyone := structures.MentionFlags(p.draft.Mentions)
	return structures.ChatMessage{
		ID:                p.messageID,
		CommunityID:       s.opts.CommunityID,
		AuthorID:          s.opts.UserID,
		ClientID:          p.draft.ClientID,
		Type:              p.draft.Type,
		Content:           p.draft.Content,
		RenderedContent:   p.draft.RenderedContent,
		Tags:              p.draft.Tags,
		SearchableContent: structures.SearchableContent(p.draft.Content, p.draft.Tags),
		Author:            p.draft.Author,
		ParentMessageID:   p.draft.ParentMessageID,
		Attachments:       p.draft.Attachments,
		Mentions:          p.draft.Mentions,
		HasMentions:       hasMentions,
		MentionsEveryone:  everyone,
		Reactions:         []structures.MessageReaction{},
		BookmarkedBy:      []string{},
		Status:            status,
		CreatedAt:         p.createdAt,
		UpdatedAt:         p.createdAt,
	}
}

// Send echoes the draft locally, then writes it. The draft gets a client id
// when it has none so Retry can never store it twice.
func (s *Session) Send(ctx context.Context, draft structures.MessageDraft) (string, error) {
	if draft.ClientID == "" {
		draft.ClientID = uid.NewId()
	}
	if draft.Type == "" {
		draft.Type = structures.MessageTypeText
	}
	// the snapshot is the session's identity, whatever the client sent
	draft.Author = structures.AuthorSnapshot{
		DisplayName: s.opts.DisplayName,
		AvatarURL:   s.opts.PhotoURL,
		RoleLabel:   string(s.member.Role),
		Online:      true,
	}

	s.mtx.Lock()
	if s.closed {
		s.mtx.Unlock()
		return "", errors.ErrSessionClosed
	}
	p := &pending{draft: draft, createdAt: s.svc.cfg.Now().UTC().Truncate(time.Millisecond)}
	s.pending[draft.ClientID] = p
	s.mtx.Unlock()
	s.pushSnapshot()

	return s.deliver(ctx, draft.ClientID, p)
}

// Retry resends a failed pending message under its original client id.
func (s *Session) Retry(ctx context.Context, clientID string) (string, error) {
	s.mtx.Lock()
	p, ok := s.pending[clientID]
	if !ok || p.err == nil {
		s.mtx.Unlock()
		return "", errors.ErrPendingNotFound
	}
	p.err = nil
	s.mtx.Unlock()
	s.pushSnapshot()

	return s.deliver(ctx, clientID, p)
}

// Discard drops a pending message from the overlay. A send that is still in
// flight may still be stored.
func (s *Session) Discard(clientID string) error {
	s.mtx.Lock()
	_, ok := s.pending[clientID]
	delete(s.pending, clientID)
	s.mtx.Unlock()
	if !ok {
		return errors.ErrPendingNotFound
	}
	s.pushSnapshot()
	return nil
}

// Pending lists the overlay entries, failed ones carry status failed.
func (s *Session) Pending() []structures.ChatMessage {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	out := make([]structures.ChatMessage, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, p.message(s))
	}
	messages.SortMessages(out, structures.Sort{Order: structures.SortAsc})
	return out
}

func (s *Session) deliver(ctx context.Context, clientID string, p *pending) (string, error) {
	id, err := s.svc.deps.Messages.SendMessage(ctx, s.opts.CommunityID, p.draft, s.opts.UserID)
	shown := err != nil || s.inView(ctx, id)

	s.mtx.Lock()
	if cur, ok := s.pending[clientID]; ok && cur == p {
		p.err = err
		p.messageID = id
		if err == nil && (s.stored(clientID) || !shown) {
			delete(s.pending, clientID)
		}
	}
	s.mtx.Unlock()
	s.pushSnapshot()

	if err != nil {
		s.log.WithError(err).WithField("client_id", clientID).Warn("session, send failed")
		return "", err
	}
	return id, nil
}

// stored reports whether the last stream snapshot already holds clientID.
// Callers hold s.mtx.
func (s *Session) stored(clientID string) bool {
	for _, m := range s.last {
		if m.ClientID == clientID && m.AuthorID == s.opts.UserID {
			return true
		}
	}
	return false
}

// inView reports whether the stored message matches the session's filter, so
// the message stream will carry it. An entry the stream never carries is
// dropped from the overlay once the send succeeds.
func (s *Session) inView(ctx context.Context, messageID string) bool {
	m, err := s.svc.deps.Messages.GetMessage(ctx, messageID)
	if err != nil {
		return true
	}
	return messages.Matches(*m, s.opts.Filter)
}

// reconcile records a stream snapshot, drops the pending entries it now holds
// and returns the snapshot with the remaining overlay merged in.
func (s *Session) reconcile(list []structures.ChatMessage) []structures.ChatMessage {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.last = list

	for clientID, p := range s.pending {
		if p.err == nil && p.messageID != "" && s.stored(clientID) {
			delete(s.pending, clientID)
		}
	}
	return s.merged()
}

// merged is s.last plus every pending entry not yet stored. Callers hold s.mtx.
func (s *Session) merged() []structures.ChatMessage {
	out := make([]structures.ChatMessage, 0, len(s.last)+len(s.pending))
	out = append(out, s.last...)
	for clientID, p := range s.pending {
		if !s.stored(clientID) {
			out = append(out, p.message(s))
		}
	}
	if len(s.pending) > 0 {
		messages.SortMessages(out, s.opts.Sort)
	}
	return out
}

func (s *Session) pushSnapshot() {
	s.mtx.Lock()
	if s.closed {
		s.mtx.Unlock()
		return
	}
	u := Update{Kind: KindMessages, Messages: s.merged()}
	s.wg.Add(1)
	s.mtx.Unlock()
	defer s.wg.Done()

	select {
	case s.out <- u:
	case <-s.ctx.Done():
	default:
		// the next stream snapshot carries the overlay too
	}
}
