package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/alumnihub/chat/chat/search"
	"github.com/alumnihub/chat/chat/session"
	"github.com/alumnihub/chat/errors"
	"github.com/alumnihub/chat/structures"
	"github.com/alumnihub/chat/utils/uid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type conn struct {
	srv  *Server
	ws   *websocket.Conn
	sess *session.Session
	log  logrus.FieldLogger

	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	send   chan []byte
	done   chan struct{}

	once      sync.Once
	closeCode int
	closeText string
}

func newConn(srv *Server, ws *websocket.Conn, sess *session.Session) *conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &conn{
		srv:  srv,
		ws:   ws,
		sess: sess,
		log: srv.cfg.Logger.WithFields(logrus.Fields{
			"community_id": sess.CommunityID(),
			"user_id":      sess.UserID(),
			"session_id":   sess.ID(),
		}),
		limiter: rate.NewLimiter(rate.Limit(srv.cfg.FrameRate), srv.cfg.FrameBurst),
		ctx:     ctx,
		cancel:  cancel,
		send:    make(chan []byte, srv.cfg.SendBuffer),
		done:    make(chan struct{}),
	}
}

// serve blocks until the client goes away or the connection is closed.
func (c *conn) serve() {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.writePump()
	}()
	go func() {
		defer wg.Done()
		c.pumpUpdates()
	}()

	c.push(Frame{Op: OpHello}, helloData{
		SessionID:   c.sess.ID(),
		UserID:      c.sess.UserID(),
		CommunityID: c.sess.CommunityID(),
	})
	c.readPump()
	c.close(websocket.CloseNormalClosure, "")
	wg.Wait()
}

func (c *conn) close(code int, text string) {
	c.once.Do(func() {
		c.closeCode, c.closeText = code, text
		c.cancel()
		close(c.done)

		ctx, cancel := context.WithTimeout(context.Background(), c.srv.cfg.ShutdownWait)
		defer cancel()
		if err := c.sess.Close(ctx); err != nil {
			c.log.WithError(err).Warn("gateway, session close failed")
		}
	})
}

func (c *conn) readPump() {
	defer c.ws.Close()

	c.ws.SetReadLimit(c.srv.cfg.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.srv.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.srv.cfg.PongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Warn("gateway, websocket read failed")
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil || f.Op == "" {
			c.srv.metrics.framesIn.WithLabelValues("invalid").Inc()
			c.fail(f, errors.ErrInvalidFrame, nil)
			continue
		}
		c.srv.metrics.framesIn.WithLabelValues(opLabel(f.Op)).Inc()

		if !c.limiter.Allow() {
			c.fail(f, errors.ErrRateLimited, nil)
			continue
		}

		data, err := c.dispatch(c.ctx, f)
		if err != nil {
			c.fail(f, err, data)
			continue
		}
		c.push(Frame{Op: OpAck, Ref: f.Ref}, data)
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(c.srv.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.srv.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.WithError(err).Debug("gateway, websocket write failed")
				c.close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.srv.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-c.done:
			msg := websocket.FormatCloseMessage(c.closeCode, c.closeText)
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.srv.cfg.WriteWait))
			return
		}
	}
}

// pumpUpdates forwards session pushes until the session closes its channel.
func (c *conn) pumpUpdates() {
	for u := range c.sess.Updates() {
		if u.Err != nil {
			c.push(Frame{Op: OpStreamError, Error: frameError(u.Err)}, reconnectData{Kind: u.Kind})
			continue
		}
		c.push(Frame{Op: OpUpdate}, u)
	}
}

// fail answers a client op with an error frame. data still reaches the client,
// a failed send carries the client id to retry with.
func (c *conn) fail(f Frame, err error, data interface{}) {
	kind := errorKind(err)
	c.srv.metrics.opErrors.WithLabelValues(opLabel(f.Op), kind).Inc()
	if kind == "internal" || kind == "transient" {
		c.log.WithError(err).WithField("op", f.Op).Warn("gateway, op failed")
	}
	c.push(Frame{Op: OpError, Ref: f.Ref, Error: frameError(err)}, data)
}

// push queues a frame without blocking. A connection whose buffer is full is
// closed; the client reattaches and gets a fresh full state.
func (c *conn) push(f Frame, data interface{}) {
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			c.log.WithError(err).WithField("op", f.Op).Error("gateway, frame encode failed")
			return
		}
		f.Data = raw
	}
	msg, err := json.Marshal(f)
	if err != nil {
		c.log.WithError(err).WithField("op", f.Op).Error("gateway, frame encode failed")
		return
	}

	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- msg:
		c.srv.metrics.framesOut.WithLabelValues(f.Op).Inc()
	default:
		c.srv.metrics.dropped.Inc()
		c.log.Warn("gateway, send buffer full, dropping connection")
		go c.close(websocket.ClosePolicyViolation, "too slow")
	}
}

func (c *conn) dispatch(ctx context.Context, f Frame) (interface{}, error) {
	switch f.Op {
	case OpSend:
		var draft structures.MessageDraft
		if err := decode(f.Data, &draft); err != nil {
			return nil, err
		}
		if draft.ClientID == "" {
			draft.ClientID = uid.NewId()
		}
		id, err := c.sess.Send(ctx, draft)
		return sentData{MessageID: id, ClientID: draft.ClientID}, err

	case OpRetry:
		var d clientRef
		if err := decode(f.Data, &d); err != nil {
			return nil, err
		}
		id, err := c.sess.Retry(ctx, d.ClientID)
		return sentData{MessageID: id, ClientID: d.ClientID}, err

	case OpDiscard:
		var d clientRef
		if err := decode(f.Data, &d); err != nil {
			return nil, err
		}
		return nil, c.sess.Discard(d.ClientID)

	case OpPending:
		return c.sess.Pending(), nil

	case OpEdit:
		var d editData
		if err := decode(f.Data, &d); err != nil {
			return nil, err
		}
		return nil, c.sess.Edit(ctx, d.MessageID, d.Update)

	case OpDelete, OpPin, OpUnpin, OpBookmark, OpUnbookmark:
		var d messageRef
		if err := decode(f.Data, &d); err != nil {
			return nil, err
		}
		return nil, c.messageOp(ctx, f.Op, d.MessageID)

	case OpReact:
		var d reactData
		if err := decode(f.Data, &d); err != nil {
			return nil, err
		}
		id, err := c.sess.React(ctx, d.MessageID, d.Emoji)
		return reactedData{ReactionID: id}, err

	case OpUnreact:
		var d reactData
		if err := decode(f.Data, &d); err != nil {
			return nil, err
		}
		return nil, c.sess.Unreact(ctx, d.MessageID, d.ReactionID)

	case OpReport, OpHide:
		var d reasonData
		if err := decode(f.Data, &d); err != nil {
			return nil, err
		}
		if f.Op == OpHide {
			return nil, c.sess.Hide(ctx, d.MessageID, d.Reason)
		}
		return nil, c.sess.Report(ctx, d.MessageID, d.Reason)

	case OpTyping:
		return nil, c.sess.Typing(ctx)

	case OpStopTyping:
		return nil, c.sess.StopTyping(ctx)

	case OpStatus:
		var d statusData
		if err := decode(f.Data, &d); err != nil {
			return nil, err
		}
		return nil, c.sess.SetStatus(ctx, d.Status)

	case OpLoadOlder:
		var d structures.Pagination
		if err := decode(f.Data, &d); err != nil {
			return nil, err
		}
		return c.sess.LoadOlder(ctx, d.Cursor, d.Limit)

	case OpSearch:
		var p search.Params
		if err := decode(f.Data, &p); err != nil {
			return nil, err
		}
		return c.sess.Search(ctx, p)

	case OpReconnect:
		var d reconnectData
		if err := decode(f.Data, &d); err != nil {
			return nil, err
		}
		return nil, c.sess.Reconnect(ctx, d.Kind)
	}
	return nil, errors.ErrUnknownOp
}

func (c *conn) messageOp(ctx context.Context, op, messageID string) error {
	switch op {
	case OpDelete:
		return c.sess.Delete(ctx, messageID)
	case OpPin:
		return c.sess.Pin(ctx, messageID)
	case OpUnpin:
		return c.sess.Unpin(ctx, messageID)
	case OpBookmark:
		return c.sess.Bookmark(ctx, messageID)
	default:
		return c.sess.Unbookmark(ctx, messageID)
	}
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.ErrInvalidFrame
	}
	return nil
}

var knownOps = map[string]bool{
	OpSend: true, OpRetry: true, OpDiscard: true, OpPending: true, OpEdit: true,
	OpDelete: true, OpPin: true, OpUnpin: true, OpBookmark: true, OpUnbookmark: true,
	OpReact: true, OpUnreact: true, OpReport: true, OpHide: true, OpTyping: true,
	OpStopTyping: true, OpStatus: true, OpLoadOlder: true, OpSearch: true, OpReconnect: true,
}

// opLabel keeps metric cardinality bounded.
func opLabel(op string) string {
	if knownOps[op] {
		return op
	}
	return "unknown"
}
