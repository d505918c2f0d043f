package session

import (
	"context"
	"sync"
	"time"

	"github.com/alumnihub/chat/chat/presence"
	"github.com/alumnihub/chat/errors"
	"github.com/alumnihub/chat/structures"
	"github.com/alumnihub/chat/utils/live"
	"github.com/sirupsen/logrus"
)

type Kind string

const (
	KindMessages Kind = "messages"
	KindTyping   Kind = "typing"
	KindPresence Kind = "presence"
)

// Update is one push to the client. Exactly one of the payload fields is set
// for its Kind, or Err when that stream failed and needs Reconnect.
type Update struct {
	Kind     Kind                            `json:"kind"`
	Messages []structures.ChatMessage        `json:"messages,omitempty"`
	Typing   []structures.TypingIndicator    `json:"typing,omitempty"`
	Presence []structures.AggregatedPresence `json:"presence,omitempty"`
	Err      error                           `json:"-"`
}

type Session struct {
	svc    *Service
	opts   AttachOptions
	member structures.Membership
	log    logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	out    chan Update
	wg     sync.WaitGroup

	mtx      sync.Mutex
	closed   bool
	status   structures.PresenceStatus
	stops    map[Kind]func()
	last     []structures.ChatMessage
	pending  map[string]*pending
	typingAt *time.Timer

	closeOnce sync.Once
}

func newSession(svc *Service, opts AttachOptions, member structures.Membership) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		svc:    svc,
		opts:   opts,
		member: member,
		log: svc.cfg.Logger.WithFields(logrus.Fields{
			"community_id": opts.CommunityID,
			"user_id":      opts.UserID,
			"session_id":   opts.SessionID,
		}),
		ctx:     ctx,
		cancel:  cancel,
		out:     make(chan Update, 8),
		status:  structures.PresenceOnline,
		stops:   map[Kind]func(){},
		pending: map[string]*pending{},
	}
}

func (s *Session) start(ctx context.Context) error {
	if err := s.heartbeat(ctx); err != nil {
		return err
	}
	for _, k := range []Kind{KindMessages, KindTyping, KindPresence} {
		if err := s.Reconnect(ctx, k); err != nil {
			return err
		}
	}

	s.wg.Add(1)
	go s.heartbeats()
	return nil
}

func (s *Session) ID() string {
	return s.opts.SessionID
}

func (s *Session) UserID() string {
	return s.opts.UserID
}

func (s *Session) CommunityID() string {
	return s.opts.CommunityID
}

// Updates is closed once the session is closed.
func (s *Session) Updates() <-chan Update {
	return s.out
}

func (s *Session) emit(u Update) {
	select {
	case s.out <- u:
	case <-s.ctx.Done():
	}
}

// Reconnect replaces the stream of kind with a fresh one. It is the recovery
// path after an Update carrying Err.
func (s *Session) Reconnect(ctx context.Context, kind Kind) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.closed {
		return errors.ErrSessionClosed
	}
	if stop := s.stops[kind]; stop != nil {
		stop()
	}

	deps, o := s.svc.deps, s.opts
	switch kind {
	case KindMessages:
		st := deps.Messages.SubscribeToMessages(s.ctx, o.CommunityID, o.Filter, o.Sort)
		s.stops[kind] = st.Unsubscribe
		s.wg.Add(1)
		go forward(s, kind, st, func(v []structures.ChatMessage) Update {
			return Update{Kind: kind, Messages: s.reconcile(v)}
		})
	case KindTyping:
		st := deps.Typing.SubscribeToTypingIndicators(s.ctx, o.CommunityID)
		s.stops[kind] = st.Unsubscribe
		s.wg.Add(1)
		go forward(s, kind, st, func(v []structures.TypingIndicator) Update {
			return Update{Kind: kind, Typing: v}
		})
	case KindPresence:
		st := deps.Presence.SubscribeToPresence(s.ctx, o.CommunityID)
		s.stops[kind] = st.Unsubscribe
		s.wg.Add(1)
		go forward(s, kind, st, func(v []structures.UserPresence) Update {
			return Update{Kind: kind, Presence: presence.Aggregate(v)}
		})
	default:
		return errors.ErrUnknownStream
	}
	return nil
}

func forward[T any](s *Session, kind Kind, st *live.Stream[T], conv func(T) Update) {
	defer s.wg.Done()
	updates, errs := st.Updates(), st.Errors()
	for updates != nil || errs != nil {
		select {
		case v, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			s.emit(conv(v))
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.log.WithError(err).WithField("stream", kind).Warn("session, stream error")
			s.emit(Update{Kind: kind, Err: err})
		}
	}
}

func (s *Session) heartbeat(ctx context.Context) error {
	s.mtx.Lock()
	status := s.status
	s.mtx.Unlock()

	_, err := s.svc.deps.Presence.SetPresence(ctx, s.opts.UserID, s.opts.CommunityID, structures.PresenceUpdate{
		Status:     status,
		DeviceType: s.opts.DeviceType,
		UserAgent:  s.opts.UserAgent,
		SessionID:  s.opts.SessionID,
	})
	return err
}

func (s *Session) heartbeats() {
	defer s.wg.Done()
	t := time.NewTicker(s.svc.cfg.Heartbeat)
	defer t.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
			if err := s.heartbeat(s.ctx); err != nil && s.ctx.Err() == nil {
				s.log.WithError(err).Warn("session, heartbeat failed")
			}
		}
	}
}

// SetStatus changes the status written by this and every later heartbeat.
func (s *Session) SetStatus(ctx context.Context, status structures.PresenceStatus) error {
	if !status.Valid() {
		return errors.ErrInvalidPresence
	}
	s.mtx.Lock()
	s.status = status
	s.mtx.Unlock()
	return s.heartbeat(ctx)
}

// Typing refreshes the indicator and schedules a local clear, pushed back by
// every further call. Users who cannot send cannot type either.
func (s *Session) Typing(ctx context.Context) error {
	s.mtx.Lock()
	closed := s.closed
	s.mtx.Unlock()
	if closed {
		return errors.ErrSessionClosed
	}
	if !s.member.CanSend() {
		return errors.ErrCannotSend
	}
	if _, err := s.svc.deps.Typing.SetTypingIndicator(ctx, s.opts.CommunityID, s.opts.UserID, s.opts.DisplayName, s.opts.PhotoURL); err != nil {
		return err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.closed {
		// Close may have cleared typing before the write above landed
		if err := s.clearTyping(ctx); err != nil {
			s.log.WithError(err).Warn("session, failed to clear typing")
		}
		return errors.ErrSessionClosed
	}
	if s.typingAt != nil {
		s.typingAt.Stop()
	}
	s.typingAt = time.AfterFunc(s.svc.cfg.LocalTypingClear, func() {
		if err := s.clearTyping(context.Background()); err != nil {
			s.log.WithError(err).Warn("session, failed to clear typing")
		}
	})
	return nil
}

func (s *Session) StopTyping(ctx context.Context) error {
	s.mtx.Lock()
	if s.typingAt != nil {
		s.typingAt.Stop()
		s.typingAt = nil
	}
	s.mtx.Unlock()
	return s.clearTyping(ctx)
}

func (s *Session) clearTyping(ctx context.Context) error {
	return s.svc.deps.Typing.ClearTypingIndicator(ctx, s.opts.UserID, s.opts.CommunityID)
}

// Close stops every stream, clears typing and removes this session's presence.
// Updates is closed when Close returns.
func (s *Session) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.mtx.Lock()
		s.closed = true
		stops := s.stops
		s.stops = map[Kind]func(){}
		if s.typingAt != nil {
			s.typingAt.Stop()
			s.typingAt = nil
		}
		s.mtx.Unlock()

		s.cancel()
		for _, stop := range stops {
			stop()
		}
		s.wg.Wait()
		close(s.out)

		if e := s.clearTyping(ctx); e != nil {
			err = e
		}
		if e := s.svc.deps.Presence.ClearPresence(ctx, s.opts.UserID, s.opts.CommunityID, s.opts.SessionID); e != nil && err == nil {
			err = e
		}
		s.log.Debug("session, closed")
	})
	return err
}
