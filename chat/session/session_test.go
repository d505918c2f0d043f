package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/alumnihub/chat/chat/membership"
	"github.com/alumnihub/chat/chat/messages"
	"github.com/alumnihub/chat/chat/presence"
	"github.com/alumnihub/chat/chat/search"
	"github.com/alumnihub/chat/chat/typing"
	"github.com/alumnihub/chat/errors"
	"github.com/alumnihub/chat/structures"
	"github.com/alumnihub/chat/svc/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc      *Service
	repo     *messages.MemoryRepository
	oracle   *membership.Static
	presence *presence.Tracker
	typing   *typing.Manager
}

func newFixture(t *testing.T, cfg Config) *fixture {
	mr := miniredis.RunT(t)
	r, err := redis.New(context.Background(), redis.SetupOptions{Addresses: []string{mr.Addr()}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	f := &fixture{
		repo:     messages.NewMemoryRepository(),
		oracle:   membership.NewStatic(),
		presence: presence.New(r, presence.Config{}),
		typing:   typing.New(r, typing.Config{}),
	}
	f.oracle.SetRole("c1", "u1", structures.RoleMember)
	f.oracle.SetRole("c1", "mod", structures.RoleModerator)

	if cfg.TokenSecret == "" {
		cfg.TokenSecret = "test-secret"
	}
	f.svc = NewService(Deps{
		Messages: messages.New(f.repo, f.oracle, nil, messages.Config{}),
		Presence: f.presence,
		Typing:   f.typing,
		Search:   search.New(f.repo, search.Config{}),
		Oracle:   f.oracle,
	}, cfg)
	return f
}

func (f *fixture) attach(t *testing.T, userID string) *Session {
	t.Helper()
	sess, err := f.svc.Attach(context.Background(), AttachOptions{
		CommunityID: "c1",
		UserID:      userID,
		DisplayName: "User " + userID,
		DeviceType:  "web",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close(context.Background()) })
	return sess
}

func waitUpdate(t *testing.T, sess *Session, kind Kind, ok func(Update) bool) Update {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case u, open := <-sess.Updates():
			require.True(t, open, "session closed")
			if u.Kind == kind && ok(u) {
				return u
			}
		case <-deadline:
			t.Fatalf("no %s update", kind)
		}
	}
}

func TestAttachPushesInitialState(t *testing.T) {
	f := newFixture(t, Config{})
	sess := f.attach(t, "u1")
	assert.NotEmpty(t, sess.ID())

	got := map[Kind]Update{}
	deadline := time.After(3 * time.Second)
	for len(got) < 3 {
		select {
		case u, open := <-sess.Updates():
			require.True(t, open, "session closed")
			require.NoError(t, u.Err)
			if _, seen := got[u.Kind]; !seen {
				got[u.Kind] = u
			}
		case <-deadline:
			t.Fatalf("initial updates missing, got %d kinds", len(got))
		}
	}

	assert.Empty(t, got[KindMessages].Messages)
	assert.Empty(t, got[KindTyping].Typing)
	p := got[KindPresence].Presence
	require.Len(t, p, 1)
	assert.Equal(t, "u1", p[0].UserID)
	assert.Equal(t, structures.PresenceOnline, p[0].Status)
	assert.Equal(t, []string{"web"}, p[0].Devices)
}

func TestAttachRejectsBannedUsers(t *testing.T) {
	f := newFixture(t, Config{})
	f.oracle.Set(structures.Membership{CommunityID: "c1", UserID: "bad", Role: structures.RoleMember, IsBanned: true})

	_, err := f.svc.Attach(context.Background(), AttachOptions{CommunityID: "c1", UserID: "bad"})
	assert.ErrorIs(t, err, errors.ErrBanned)

	_, err = f.svc.Attach(context.Background(), AttachOptions{CommunityID: "c1"})
	assert.ErrorIs(t, err, errors.ErrMissingIdentifier)
}

func TestAttachToken(t *testing.T) {
	f := newFixture(t, Config{})
	token, err := f.svc.IssueToken("u1", "c1", "Ada", "", "mobile")
	require.NoError(t, err)

	sess, err := f.svc.AttachToken(context.Background(), token, AttachOptions{CommunityID: "ignored"})
	require.NoError(t, err)
	defer sess.Close(context.Background())
	assert.Equal(t, "u1", sess.UserID())
	assert.Equal(t, "c1", sess.CommunityID())

	_, err = f.svc.AttachToken(context.Background(), token+"x", AttachOptions{})
	assert.ErrorIs(t, err, errors.ErrJwtTokenInvalid)

	other := NewService(f.svc.deps, Config{TokenSecret: "other"})
	_, err = other.AttachToken(context.Background(), token, AttachOptions{})
	assert.ErrorIs(t, err, errors.ErrUnauthorized)
}

func TestSendReconcilesWithStream(t *testing.T) {
	f := newFixture(t, Config{})
	sess := f.attach(t, "u1")
	waitUpdate(t, sess, KindMessages, func(u Update) bool { return true })

	id, err := sess.Send(context.Background(), structures.MessageDraft{Content: "hello"})
	require.NoError(t, err)

	u := waitUpdate(t, sess, KindMessages, func(u Update) bool {
		return len(u.Messages) == 1 && u.Messages[0].Status == structures.MessageStatusSent
	})
	m := u.Messages[0]
	assert.Equal(t, id, m.ID)
	assert.NotEmpty(t, m.ClientID)
	assert.Equal(t, "User u1", m.Author.DisplayName)
	assert.Empty(t, sess.Pending())
}

func TestFailedSendStaysPending(t *testing.T) {
	f := newFixture(t, Config{})
	sess := f.attach(t, "guest")
	waitUpdate(t, sess, KindMessages, func(u Update) bool { return true })

	_, err := sess.Send(context.Background(), structures.MessageDraft{ClientID: "local-1", Content: "let me in"})
	require.ErrorIs(t, err, errors.ErrCannotSend)

	pending := sess.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, structures.MessageStatusFailed, pending[0].Status)
	assert.Equal(t, "local-1", pending[0].ClientID)

	waitUpdate(t, sess, KindMessages, func(u Update) bool {
		return len(u.Messages) == 1 && u.Messages[0].Status == structures.MessageStatusFailed
	})

	f.oracle.SetRole("c1", "guest", structures.RoleMember)
	id, err := sess.Retry(context.Background(), "local-1")
	require.NoError(t, err)

	u := waitUpdate(t, sess, KindMessages, func(u Update) bool {
		return len(u.Messages) == 1 && u.Messages[0].ID == id && u.Messages[0].Status == structures.MessageStatusSent
	})
	assert.Equal(t, "local-1", u.Messages[0].ClientID)
	require.Eventually(t, func() bool { return len(sess.Pending()) == 0 }, time.Second, 10*time.Millisecond)

	_, err = sess.Retry(context.Background(), "local-1")
	assert.ErrorIs(t, err, errors.ErrPendingNotFound)
}

func TestDiscardPending(t *testing.T) {
	f := newFixture(t, Config{})
	sess := f.attach(t, "guest")

	_, err := sess.Send(context.Background(), structures.MessageDraft{ClientID: "x", Content: "nope"})
	require.Error(t, err)
	require.NoError(t, sess.Discard("x"))
	assert.Empty(t, sess.Pending())
	assert.ErrorIs(t, sess.Discard("x"), errors.ErrPendingNotFound)
}

func TestTypingClearsLocally(t *testing.T) {
	f := newFixture(t, Config{LocalTypingClear: 100 * time.Millisecond})
	sess := f.attach(t, "u1")
	ctx := context.Background()

	require.NoError(t, sess.Typing(ctx))
	list, err := f.typing.ListTyping(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "User u1", list[0].DisplayName)

	require.Eventually(t, func() bool {
		list, err := f.typing.ListTyping(ctx, "c1")
		return err == nil && len(list) == 0
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, sess.Typing(ctx))
	require.NoError(t, sess.StopTyping(ctx))
	list, err = f.typing.ListTyping(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestHeartbeatRefreshesPresence(t *testing.T) {
	f := newFixture(t, Config{Heartbeat: 50 * time.Millisecond})
	sess := f.attach(t, "u1")
	ctx := context.Background()

	first, err := f.presence.ListPresence(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, first, 1)

	require.Eventually(t, func() bool {
		list, err := f.presence.ListPresence(ctx, "c1")
		return err == nil && len(list) == 1 && list[0].LastSeen.After(first[0].LastSeen)
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, sess.SetStatus(ctx, structures.PresenceBusy))
	list, err := f.presence.ListPresence(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, structures.PresenceBusy, list[0].Status)
	assert.Equal(t, first[0].ConnectedAt, list[0].ConnectedAt)

	assert.ErrorIs(t, sess.SetStatus(ctx, "asleep"), errors.ErrInvalidPresence)
}

func TestPresenceIsPerSession(t *testing.T) {
	f := newFixture(t, Config{})
	web := f.attach(t, "u1")
	waitUpdate(t, web, KindPresence, func(u Update) bool { return len(u.Presence) == 1 })
	phone, err := f.svc.Attach(context.Background(), AttachOptions{CommunityID: "c1", UserID: "u1", DeviceType: "mobile"})
	require.NoError(t, err)
	require.NoError(t, phone.SetStatus(context.Background(), structures.PresenceAway))

	u := waitUpdate(t, web, KindPresence, func(u Update) bool { return len(u.Presence) == 1 && u.Presence[0].Sessions == 2 })
	assert.Equal(t, structures.PresenceOnline, u.Presence[0].Status)
	assert.Equal(t, []string{"mobile", "web"}, u.Presence[0].Devices)

	require.NoError(t, phone.Close(context.Background()))
	list, err := f.presence.ListPresence(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, web.ID(), list[0].SessionID)
}

func TestCloseCleansUp(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	sess, err := f.svc.Attach(ctx, AttachOptions{CommunityID: "c1", UserID: "u1"})
	require.NoError(t, err)
	require.NoError(t, sess.Typing(ctx))

	require.NoError(t, sess.Close(ctx))
	require.NoError(t, sess.Close(ctx))

	for range sess.Updates() {
	}

	list, err := f.presence.ListPresence(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, list)
	indicators, err := f.typing.ListTyping(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, indicators)

	_, err = sess.Send(ctx, structures.MessageDraft{Content: "late"})
	assert.ErrorIs(t, err, errors.ErrSessionClosed)
	assert.ErrorIs(t, sess.Reconnect(ctx, KindMessages), errors.ErrSessionClosed)
}

func TestModerationFailuresSurface(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	member := f.attach(t, "u1")
	mod := f.attach(t, "mod")

	id, err := member.Send(ctx, structures.MessageDraft{Content: "hi"})
	require.NoError(t, err)

	assert.ErrorIs(t, member.Delete(ctx, id), errors.ErrUnauthorized)
	assert.ErrorIs(t, member.Pin(ctx, id), errors.ErrUnauthorized)
	assert.ErrorIs(t, member.Hide(ctx, id, "x"), errors.ErrUnauthorized)

	require.NoError(t, mod.Pin(ctx, id))
	require.NoError(t, mod.Unpin(ctx, id))
	require.NoError(t, mod.Hide(ctx, id, "off topic"))
	require.NoError(t, mod.Delete(ctx, id))
	m, err := f.repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, m.IsDeleted)
	assert.True(t, m.IsHidden)
}

func TestReactionsBookmarksAndHistory(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	sess := f.attach(t, "u1")

	ids := []string{}
	for i := 0; i < 3; i++ {
		id, err := sess.Send(ctx, structures.MessageDraft{Content: fmt.Sprint("golang ", i)})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	rid, err := sess.React(ctx, ids[0], "👍")
	require.NoError(t, err)
	m, err := f.repo.FindByID(ctx, ids[0])
	require.NoError(t, err)
	require.Len(t, m.Reactions, 1)
	assert.Equal(t, "User u1", m.Reactions[0].UserInfo.DisplayName)
	require.NoError(t, sess.Unreact(ctx, ids[0], rid))

	require.NoError(t, sess.Bookmark(ctx, ids[1]))
	require.NoError(t, sess.Unbookmark(ctx, ids[1]))
	require.NoError(t, sess.Report(ctx, ids[1], "spam"))
	require.NoError(t, sess.Edit(ctx, ids[2], structures.MessageUpdate{Tags: &[]string{"go"}}))

	page, err := sess.LoadOlder(ctx, "", 2)
	require.NoError(t, err)
	require.True(t, page.HasMore)
	more, err := sess.LoadOlder(ctx, page.NextCursor, 2)
	require.NoError(t, err)
	assert.Len(t, append(page.Messages, more.Messages...), 3)

	res, err := sess.Search(ctx, search.Params{CommunityID: "elsewhere", Query: "#go"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, ids[2], res.Hits[0].Message.ID)
}

func TestReconnectAfterStreamError(t *testing.T) {
	f := newFixture(t, Config{})
	sess := f.attach(t, "u1")
	waitUpdate(t, sess, KindMessages, func(u Update) bool { return true })

	boom := fmt.Errorf("watch lost")
	f.repo.FailWatchers("c1", boom)
	u := waitUpdate(t, sess, KindMessages, func(u Update) bool { return u.Err != nil })
	assert.ErrorIs(t, u.Err, boom)

	require.NoError(t, sess.Reconnect(context.Background(), KindMessages))
	waitUpdate(t, sess, KindMessages, func(u Update) bool { return u.Err == nil })

	_, err := sess.Send(context.Background(), structures.MessageDraft{Content: "back"})
	require.NoError(t, err)
	waitUpdate(t, sess, KindMessages, func(u Update) bool {
		return len(u.Messages) == 1 && u.Messages[0].Status == structures.MessageStatusSent
	})

	assert.ErrorIs(t, sess.Reconnect(context.Background(), "nope"), errors.ErrUnknownStream)
}

func TestSendIgnoresClientAuthor(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	sess := f.attach(t, "u1")

	id, err := sess.Send(ctx, structures.MessageDraft{
		Content: "trust me",
		Author:  structures.AuthorSnapshot{DisplayName: "Site Admin", RoleLabel: string(structures.RoleOwner)},
	})
	require.NoError(t, err)

	m, err := f.repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "User u1", m.Author.DisplayName)
	assert.Equal(t, string(structures.RoleMember), m.Author.RoleLabel)
}

func TestSendOutsideFilterLeavesOverlay(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	sess, err := f.svc.Attach(ctx, AttachOptions{
		CommunityID: "c1",
		UserID:      "u1",
		Filter:      structures.MessageFilter{ThreadID: "t-other"},
	})
	require.NoError(t, err)
	defer sess.Close(ctx)

	id, err := sess.Send(ctx, structures.MessageDraft{Content: "top level"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Empty(t, sess.Pending())
}

func TestActionsStayInCommunity(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	f.oracle.SetRole("c2", "u1", structures.RoleMember)
	f.oracle.SetRole("c2", "mod", structures.RoleModerator)
	other, err := f.svc.deps.Messages.SendMessage(ctx, "c2", structures.MessageDraft{Content: "elsewhere"}, "u1")
	require.NoError(t, err)

	sess := f.attach(t, "mod")
	_, err = sess.React(ctx, other, "👍")
	assert.ErrorIs(t, err, errors.ErrCommunityMismatch)
	assert.ErrorIs(t, sess.Report(ctx, other, "spam"), errors.ErrCommunityMismatch)
	assert.ErrorIs(t, sess.Delete(ctx, other), errors.ErrCommunityMismatch)
	assert.ErrorIs(t, sess.Edit(ctx, other, structures.MessageUpdate{}), errors.ErrUnauthorized)
	assert.ErrorIs(t, sess.Pin(ctx, "missing"), errors.ErrNotFound)

	m, err := f.repo.FindByID(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, m.Reactions)
	assert.False(t, m.IsReported)
	assert.False(t, m.IsDeleted)
}

func TestGuestsCannotType(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	sess := f.attach(t, "guest")

	assert.ErrorIs(t, sess.Typing(ctx), errors.ErrCannotSend)
	list, err := f.typing.ListTyping(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, sess.Close(ctx))
	assert.ErrorIs(t, sess.Typing(ctx), errors.ErrSessionClosed)
}

func TestTypingAfterCloseLeavesNoIndicator(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	sess := f.attach(t, "u1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			_ = sess.Typing(ctx)
		}
	}()
	require.NoError(t, sess.Close(ctx))
	<-done

	list, err := f.typing.ListTyping(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, list)
}
