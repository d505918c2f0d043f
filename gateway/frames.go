package gateway

import (
	"encoding/json"

	"github.com/alumnihub/chat/chat/session"
	"github.com/alumnihub/chat/errors"
	"github.com/alumnihub/chat/structures"
)

// Frame is the single envelope used in both directions. Ref is echoed back on
// the ack or error frame answering a client op.
type Frame struct {
	Op    string          `json:"op"`
	Ref   string          `json:"ref,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *FrameError     `json:"error,omitempty"`
}

type FrameError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Server ops.
const (
	OpHello       = "hello"
	OpAck         = "ack"
	OpError       = "error"
	OpUpdate      = "update"
	OpStreamError = "stream_error"
)

// Client ops.
const (
	OpSend       = "send"
	OpRetry      = "retry"
	OpDiscard    = "discard"
	OpEdit       = "edit"
	OpDelete     = "delete"
	OpPin        = "pin"
	OpUnpin      = "unpin"
	OpBookmark   = "bookmark"
	OpUnbookmark = "unbookmark"
	OpReact      = "react"
	OpUnreact    = "unreact"
	OpReport     = "report"
	OpHide       = "hide"
	OpTyping     = "typing"
	OpStopTyping = "stop_typing"
	OpStatus     = "status"
	OpLoadOlder  = "load_older"
	OpSearch     = "search"
	OpReconnect  = "reconnect"
	OpPending    = "pending"
)

type helloData struct {
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id"`
	CommunityID string `json:"community_id"`
}

type messageRef struct {
	MessageID string `json:"message_id"`
}

type clientRef struct {
	ClientID string `json:"client_id"`
}

type editData struct {
	MessageID string                   `json:"message_id"`
	Update    structures.MessageUpdate `json:"update"`
}

type reactData struct {
	MessageID  string `json:"message_id"`
	Emoji      string `json:"emoji,omitempty"`
	ReactionID string `json:"reaction_id,omitempty"`
}

type reasonData struct {
	MessageID string `json:"message_id"`
	Reason    string `json:"reason"`
}

type statusData struct {
	Status structures.PresenceStatus `json:"status"`
}

type reconnectData struct {
	Kind session.Kind `json:"kind"`
}

type sentData struct {
	MessageID string `json:"message_id,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
}

type reactedData struct {
	ReactionID string `json:"reaction_id"`
}

func errorKind(err error) string {
	if errors.Is(err, errors.ErrRateLimited) {
		return "rate_limited"
	}
	switch errors.Kind(err) {
	case errors.ErrNotFound:
		return "not_found"
	case errors.ErrUnauthorized:
		return "unauthorized"
	case errors.ErrValidationFailed:
		return "validation_failed"
	case errors.ErrTransientStore:
		return "transient"
	}
	return "internal"
}

func frameError(err error) *FrameError {
	return &FrameError{Kind: errorKind(err), Message: err.Error()}
}
