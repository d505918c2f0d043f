// Package messages is the durable message log of a community: sending, editing,
// moderation, reactions, paged reads and full-set live subscriptions.
package messages

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/alumnihub/chat/chat/membership"
	"github.com/alumnihub/chat/chat/notify"
	"github.com/alumnihub/chat/errors"
	"github.com/alumnihub/chat/structures"
	"github.com/alumnihub/chat/utils/live"
	"github.com/alumnihub/chat/utils/uid"
	"github.com/sirupsen/logrus"
)

type Store struct {
	repo   Repository
	oracle membership.Oracle
	sink   notify.Sink
	cfg    Config
}

func New(repo Repository, oracle membership.Oracle, sink notify.Sink, cfg Config) *Store {
	if sink == nil {
		sink = notify.Nop
	}
	return &Store{
		repo:   repo,
		oracle: oracle,
		sink:   sink,
		cfg:    cfg.fill(),
	}
}

func (s *Store) Policy() Policy {
	return s.cfg.Policy
}

func (s *Store) Repository() Repository {
	return s.repo
}

func (s *Store) log(op string, communityID, messageID string) logrus.FieldLogger {
	return s.cfg.Logger.WithFields(logrus.Fields{
		"op":           op,
		"community_id": communityID,
		"message_id":   messageID,
	})
}

func (s *Store) membership(ctx context.Context, communityID, userID string) (structures.Membership, error) {
	if communityID == "" || userID == "" {
		return structures.Membership{}, errors.ErrMissingIdentifier
	}
	m, err := s.oracle.RoleOf(ctx, communityID, userID)
	if err != nil {
		return structures.Membership{}, errors.Transient(err)
	}
	return m, nil
}

func (s *Store) requireModerator(ctx context.Context, communityID, userID string) error {
	m, err := s.membership(ctx, communityID, userID)
	if err != nil {
		return err
	}
	if !m.IsModerator() {
		return errors.ErrNotModerator
	}
	return nil
}

func (s *Store) requireSend(ctx context.Context, communityID, userID string) (structures.Membership, error) {
	m, err := s.membership(ctx, communityID, userID)
	if err != nil {
		return m, err
	}
	if m.IsBanned {
		return m, errors.ErrBanned
	}
	if !m.CanSend() {
		return m, errors.ErrCannotSend
	}
	return m, nil
}

func (s *Store) requireParticipant(ctx context.Context, communityID, userID string) error {
	m, err := s.membership(ctx, communityID, userID)
	if err != nil {
		return err
	}
	if m.IsBanned {
		return errors.ErrBanned
	}
	if !m.CanParticipate() {
		return errors.ErrNotMember
	}
	return nil
}

func (s *Store) validateContent(content string, attachments []structures.Attachment) error {
	if utf8.RuneCountInString(content) > s.cfg.Policy.MaxContentLength {
		return errors.ErrContentTooLong
	}
	if strings.TrimSpace(content) == "" && len(attachments) == 0 {
		return errors.ErrEmptyMessage
	}
	if len(attachments) > s.cfg.Policy.MaxAttachments {
		return errors.ErrTooManyAttachments
	}
	for _, a := range attachments {
		if a.Size > s.cfg.Policy.MaxAttachmentSize {
			return errors.ErrAttachmentTooLarge
		}
	}
	return nil
}

// SendMessage validates the draft, checks the author may send and writes the
// message. A draft carrying a client id that was already stored returns the
// stored message's id instead of writing a duplicate.
func (s *Store) SendMessage(ctx context.Context, communityID string, draft structures.MessageDraft, authorID string) (string, error) {
	if draft.Type == "" {
		draft.Type = structures.MessageTypeText
	}
	if !draft.Type.Valid() {
		return "", errors.ErrInvalidMessageType
	}
	if err := s.validateContent(draft.Content, draft.Attachments); err != nil {
		return "", err
	}
	member, err := s.requireSend(ctx, communityID, authorID)
	if err != nil {
		return "", err
	}

	if draft.ClientID != "" {
		existing, err := s.repo.FindByClientID(ctx, communityID, authorID, draft.ClientID)
		if err == nil {
			return existing.ID, nil
		}
		if !errors.Is(err, errors.ErrMessageNotFound) {
			return "", err
		}
	}

	var parent *structures.ChatMessage
	if draft.ParentMessageID != "" {
		p, err := s.repo.FindByID(ctx, draft.ParentMessageID)
		if errors.Is(err, errors.ErrMessageNotFound) {
			return "", errors.ErrParentNotFound
		}
		if err != nil {
			return "", err
		}
		if p.CommunityID != communityID {
			return "", errors.ErrParentInOtherThread
		}
		parent = p
	}

	// the role label always comes from the membership record
	author := draft.Author
	author.RoleLabel = string(member.Role)

	now := s.cfg.now()
	m := &structures.ChatMessage{
		ID:                uid.NewId(),
		CommunityID:       communityID,
		AuthorID:          authorID,
		ClientID:          draft.ClientID,
		Type:              draft.Type,
		Content:           draft.Content,
		RenderedContent:   draft.RenderedContent,
		Tags:              append([]string{}, draft.Tags...),
		SearchableContent: structures.SearchableContent(draft.Content, draft.Tags),
		Author:            author,
		Attachments:       s.prepareAttachments(draft.Attachments, authorID, now),
		Mentions:          prepareMentions(draft.Mentions),
		Reactions:         []structures.MessageReaction{},
		BookmarkedBy:      []string{},
		Status:            structures.MessageStatusSent,
		IsAnnouncement:    draft.Type == structures.MessageTypeAnnouncement,
		IsSystemMessage:   draft.Type == structures.MessageTypeSystem,
		IsWelcomeMessage:  draft.Type == structures.MessageTypeWelcome,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	m.HasMentions, m.MentionsEveryone = structures.MentionFlags(m.Mentions)
	if parent != nil {
		m.ParentMessageID = parent.ID
		m.ThreadID = parent.ThreadID
		if m.ThreadID == "" {
			m.ThreadID = parent.ID
		}
	}

	if err := s.repo.Insert(ctx, m); err != nil {
		if err == errDuplicateClientID {
			existing, ferr := s.repo.FindByClientID(ctx, communityID, authorID, draft.ClientID)
			if ferr != nil {
				return "", ferr
			}
			return existing.ID, nil
		}
		return "", err
	}

	log := s.log("send", communityID, m.ID)
	if parent != nil {
		if err := s.repo.IncrementReplies(ctx, parent.ID); err != nil {
			log.WithError(err).Warn("messages, failed to update parent reply count")
		}
		if parent.AuthorID != authorID {
			s.emit(ctx, structures.NotificationEvent{
				Type:         structures.NotificationEventTypeReply,
				TargetUserID: parent.AuthorID,
				CommunityID:  communityID,
				MessageID:    m.ID,
				ActorID:      authorID,
				Timestamp:    now,
			})
		}
	}
	s.emitMentions(ctx, m, m.Mentions, now)

	log.Debug("messages, sent")
	return m.ID, nil
}

// prepareAttachments fills ids and upload metadata. An attachment without a
// url is still uploading and stays processing until MarkAttachmentReady.
func (s *Store) prepareAttachments(in []structures.Attachment, authorID string, now time.Time) []structures.Attachment {
	out := make([]structures.Attachment, len(in))
	for i, a := range in {
		if a.ID == "" {
			a.ID = uid.NewId()
		}
		if a.UploadedBy == "" {
			a.UploadedBy = authorID
		}
		if a.UploadedAt.IsZero() {
			a.UploadedAt = now
		}
		a.UploadedAt = a.UploadedAt.UTC().Truncate(time.Millisecond)
		if a.URL == "" {
			a.IsProcessing = true
		}
		out[i] = a
	}
	return out
}

func prepareMentions(in []structures.Mention) []structures.Mention {
	out := make([]structures.Mention, len(in))
	for i, m := range in {
		if m.ID == "" {
			m.ID = uid.NewId()
		}
		out[i] = m
	}
	return out
}

// EditMessage applies a sparse update. The author may edit inside the edit
// window, moderators may edit any message at any time.
func (s *Store) EditMessage(ctx context.Context, messageID string, upd structures.MessageUpdate, editorID string) error {
	m, err := s.repo.FindByID(ctx, messageID)
	if err != nil {
		return err
	}

	member, err := s.membership(ctx, m.CommunityID, editorID)
	if err != nil {
		return err
	}
	now := s.cfg.now()
	switch {
	case member.IsModerator():
	case member.IsBanned:
		return errors.ErrBanned
	case editorID != m.AuthorID:
		return errors.ErrNotAuthor
	case now.Sub(m.CreatedAt) > s.cfg.Policy.EditWindow:
		return errors.ErrEditWindowClosed
	}

	if m.IsDeleted {
		return errors.ErrMessageDeleted
	}
	if upd.Empty() {
		return nil
	}

	content, tags := m.Content, m.Tags
	if upd.Content != nil {
		content = *upd.Content
	}
	if upd.Tags != nil {
		tags = *upd.Tags
	}
	if err := s.validateContent(content, m.Attachments); err != nil {
		return err
	}

	e := Edit{
		Content:           upd.Content,
		RenderedContent:   upd.RenderedContent,
		Tags:              upd.Tags,
		SearchableContent: structures.SearchableContent(content, tags),
		EditedAt:          now,
	}
	var added []structures.Mention
	if upd.Mentions != nil {
		mentions := prepareMentions(*upd.Mentions)
		e.Mentions = &mentions
		added = newMentions(m.Mentions, mentions)
	}

	if err := s.repo.Edit(ctx, messageID, e); err != nil {
		return err
	}
	s.emitMentions(ctx, m, added, now)

	s.log("edit", m.CommunityID, messageID).WithField("user_id", editorID).Debug("messages, edited")
	return nil
}

func mentionKey(m structures.Mention) string {
	return string(m.Type) + "/" + m.UserID + "/" + string(m.Role)
}

func newMentions(before, after []structures.Mention) []structures.Mention {
	seen := map[string]bool{}
	for _, m := range before {
		seen[mentionKey(m)] = true
	}
	out := []structures.Mention{}
	for _, m := range after {
		if !seen[mentionKey(m)] {
			out = append(out, m)
		}
	}
	return out
}

// DeleteMessage soft deletes. Repeat calls succeed and keep the first deletedAt.
func (s *Store) DeleteMessage(ctx context.Context, messageID, deleterID string) error {
	m, err := s.repo.FindByID(ctx, messageID)
	if err != nil {
		return err
	}

	member, err := s.membership(ctx, m.CommunityID, deleterID)
	if err != nil {
		return err
	}
	now := s.cfg.now()
	if !member.IsModerator() && !s.authorMayDelete(m, member, deleterID, now) {
		return errors.ErrNotModerator
	}

	if err := s.repo.SoftDelete(ctx, messageID, deleterID, now); err != nil {
		return err
	}
	s.log("delete", m.CommunityID, messageID).WithField("user_id", deleterID).Debug("messages, deleted")
	return nil
}

func (s *Store) authorMayDelete(m *structures.ChatMessage, member structures.Membership, userID string, now time.Time) bool {
	w := s.cfg.Policy.AuthorDeleteWindow
	return w > 0 && !member.IsBanned && m.AuthorID == userID && now.Sub(m.CreatedAt) <= w
}

func (s *Store) PinMessage(ctx context.Context, messageID, userID string) error {
	m, err := s.repo.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.requireModerator(ctx, m.CommunityID, userID); err != nil {
		return err
	}
	if m.IsPinned {
		return nil
	}

	if max := s.cfg.Policy.MaxPinned; max > 0 {
		n, err := s.repo.CountPinned(ctx, m.CommunityID)
		if err != nil {
			return err
		}
		if n >= max {
			return errors.ErrPinLimit
		}
	}

	return s.repo.SetPinned(ctx, messageID, true, userID, s.cfg.now())
}

func (s *Store) UnpinMessage(ctx context.Context, messageID, userID string) error {
	m, err := s.repo.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.requireModerator(ctx, m.CommunityID, userID); err != nil {
		return err
	}
	return s.repo.SetPinned(ctx, messageID, false, userID, s.cfg.now())
}

func (s *Store) BookmarkMessage(ctx context.Context, messageID, userID string) error {
	m, err := s.repo.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.requireParticipant(ctx, m.CommunityID, userID); err != nil {
		return err
	}
	return s.repo.AddBookmark(ctx, messageID, userID)
}

func (s *Store) UnbookmarkMessage(ctx context.Context, messageID, userID string) error {
	m, err := s.repo.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.requireParticipant(ctx, m.CommunityID, userID); err != nil {
		return err
	}
	return s.repo.RemoveBookmark(ctx, messageID, userID)
}

// AddReaction appends the reaction and returns its id. The same user may react
// with the same emoji more than once; only a repeated reaction id is ignored.
func (s *Store) AddReaction(ctx context.Context, messageID string, reaction structures.MessageReaction) (string, error) {
	if reaction.Emoji == "" || reaction.UserID == "" {
		return "", errors.ErrInvalidReaction
	}
	m, err := s.repo.FindByID(ctx, messageID)
	if err != nil {
		return "", err
	}
	if _, err := s.requireSend(ctx, m.CommunityID, reaction.UserID); err != nil {
		return "", err
	}
	if m.IsDeleted {
		return "", errors.ErrMessageDeleted
	}

	if reaction.ID == "" {
		reaction.ID = uid.NewId()
	}
	now := s.cfg.now()
	reaction.CreatedAt = now

	if err := s.repo.PushReaction(ctx, messageID, reaction, s.cfg.Policy.MaxReactions); err != nil {
		return "", err
	}

	if m.AuthorID != reaction.UserID {
		s.emit(ctx, structures.NotificationEvent{
			Type:         structures.NotificationEventTypeReaction,
			TargetUserID: m.AuthorID,
			CommunityID:  m.CommunityID,
			MessageID:    messageID,
			ActorID:      reaction.UserID,
			Timestamp:    now,
		})
	}
	return reaction.ID, nil
}

// RemoveReaction lets a user take back their own reaction and a moderator
// remove anyone's.
func (s *Store) RemoveReaction(ctx context.Context, messageID, reactionID, userID string) error {
	m, err := s.repo.FindByID(ctx, messageID)
	if err != nil {
		return err
	}

	var found *structures.MessageReaction
	for i := range m.Reactions {
		if m.Reactions[i].ID == reactionID {
			found = &m.Reactions[i]
			break
		}
	}
	if found == nil {
		return errors.ErrReactionNotFound
	}

	member, err := s.membership(ctx, m.CommunityID, userID)
	if err != nil {
		return err
	}
	switch {
	case member.IsModerator():
	case member.IsBanned:
		return errors.ErrBanned
	case found.UserID != userID:
		return errors.ErrNotReactionOwner
	case !member.CanSend():
		return errors.ErrCannotSend
	}

	return s.repo.PullReaction(ctx, messageID, reactionID)
}

// ReportMessage flags the message. Only the latest reason is kept.
func (s *Store) ReportMessage(ctx context.Context, messageID, userID, reason string) error {
	m, err := s.repo.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.requireParticipant(ctx, m.CommunityID, userID); err != nil {
		return err
	}
	if err := s.repo.Report(ctx, messageID, userID, reason); err != nil {
		return err
	}
	s.log("report", m.CommunityID, messageID).WithField("user_id", userID).Info("messages, reported")
	return nil
}

// HideMessage marks the message hidden. Hidden messages are still returned by
// every read, clients decide how to suppress them.
func (s *Store) HideMessage(ctx context.Context, messageID, moderatorID, reason string) error {
	m, err := s.repo.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.requireModerator(ctx, m.CommunityID, moderatorID); err != nil {
		return err
	}
	return s.repo.Hide(ctx, messageID, moderatorID, reason)
}

// MarkAttachmentReady is called by the upload pipeline once the bytes of an
// attachment are stored.
func (s *Store) MarkAttachmentReady(ctx context.Context, messageID, attachmentID, url string, scanned bool) error {
	if url == "" {
		return errors.ErrMissingURL
	}
	return s.repo.MarkAttachmentReady(ctx, messageID, attachmentID, url, scanned)
}

func (s *Store) GetMessage(ctx context.Context, messageID string) (*structures.ChatMessage, error) {
	return s.repo.FindByID(ctx, messageID)
}

// ListMessages reads one page. Deleted and hidden messages are included.
func (s *Store) ListMessages(ctx context.Context, communityID string, filter structures.MessageFilter, pg structures.Pagination, sort structures.Sort) (structures.MessagePage, error) {
	if communityID == "" {
		return structures.MessagePage{}, errors.ErrMissingIdentifier
	}
	sort = sort.Normalize()
	after, err := structures.DecodeCursor(pg.Cursor, sort)
	if err != nil {
		return structures.MessagePage{}, err
	}

	limit := pg.Limit
	if limit <= 0 {
		limit = s.cfg.Policy.DefaultPageSize
	}
	if limit > s.cfg.Policy.MaxPageSize {
		limit = s.cfg.Policy.MaxPageSize
	}

	list, err := s.repo.Find(ctx, communityID, Query{Filter: filter, Sort: sort, After: after, Limit: limit + 1})
	if err != nil {
		return structures.MessagePage{}, err
	}

	page := structures.MessagePage{Messages: list}
	if len(list) > limit {
		page.Messages = list[:limit]
		page.HasMore = true
		page.NextCursor = structures.EncodeCursor(structures.CursorFor(page.Messages[limit-1], sort))
	}
	return page, nil
}

// SubscribeToMessages pushes the full matching set after every change in the
// community. The set is the LiveWindow most recent matches ordered by sort.
func (s *Store) SubscribeToMessages(ctx context.Context, communityID string, filter structures.MessageFilter, sort structures.Sort) *live.Stream[[]structures.ChatMessage] {
	sort = sort.Normalize()
	window := s.cfg.Policy.LiveWindow

	source := func(ctx context.Context) (<-chan live.Signal, error) {
		return s.repo.Watch(ctx, communityID)
	}
	load := func(ctx context.Context) ([]structures.ChatMessage, time.Duration, error) {
		list, err := s.repo.Find(ctx, communityID, Query{Filter: filter, Sort: structures.DefaultSort, Limit: window})
		if err != nil {
			return nil, 0, err
		}
		SortMessages(list, sort)
		return list, 0, nil
	}

	return live.Start(ctx, source, load)
}

func (s *Store) emitMentions(ctx context.Context, m *structures.ChatMessage, mentions []structures.Mention, at time.Time) {
	for _, v := range mentions {
		ev := structures.NotificationEvent{
			Type:        structures.NotificationEventTypeMention,
			CommunityID: m.CommunityID,
			MessageID:   m.ID,
			ActorID:     m.AuthorID,
			Timestamp:   at,
		}
		switch v.Type {
		case structures.MentionTypeUser:
			if v.UserID == "" || v.UserID == m.AuthorID {
				continue
			}
			ev.TargetUserID = v.UserID
		case structures.MentionTypeRole:
			ev.Audience = v.Type
			ev.AudienceRole = v.Role
		default:
			ev.Audience = v.Type
		}
		s.emit(ctx, ev)
	}
}

func (s *Store) emit(ctx context.Context, ev structures.NotificationEvent) {
	if err := s.sink.Emit(ctx, ev); err != nil {
		s.log("notify", ev.CommunityID, ev.MessageID).
			WithError(err).
			WithField("type", ev.Type).
			Warn("messages, failed to emit notification")
	}
}
