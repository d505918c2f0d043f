package errors

var (
	ErrMessageNotFound    = newKind(ErrNotFound, "message not found")
	ErrAttachmentNotFound = newKind(ErrNotFound, "attachment not found")
	ErrReactionNotFound   = newKind(ErrNotFound, "reaction not found")
	ErrParentNotFound     = newKind(ErrNotFound, "parent message not found")
	ErrPendingNotFound    = newKind(ErrNotFound, "no pending message with that client id")
)

var (
	ErrNotModerator      = newKind(ErrUnauthorized, "moderator authority required")
	ErrEditWindowClosed  = newKind(ErrUnauthorized, "edit window has closed")
	ErrNotAuthor         = newKind(ErrUnauthorized, "only the author may do this")
	ErrCannotSend        = newKind(ErrUnauthorized, "user cannot send in this community")
	ErrBanned            = newKind(ErrUnauthorized, "user is banned from this community")
	ErrCommunityMismatch = newKind(ErrUnauthorized, "message belongs to another community")
	ErrNotMember         = newKind(ErrUnauthorized, "user is not a member of this community")
	ErrNotReactionOwner  = newKind(ErrUnauthorized, "only the reacting user or a moderator may remove a reaction")
)

var (
	ErrEmptyMessage        = newKind(ErrValidationFailed, "message has no content or attachments")
	ErrContentTooLong      = newKind(ErrValidationFailed, "message content is too long")
	ErrTooManyAttachments  = newKind(ErrValidationFailed, "too many attachments")
	ErrAttachmentTooLarge  = newKind(ErrValidationFailed, "attachment is too large")
	ErrReactionLimit       = newKind(ErrValidationFailed, "message has reached the reaction limit")
	ErrPinLimit            = newKind(ErrValidationFailed, "community has reached the pinned message limit")
	ErrInvalidReaction     = newKind(ErrValidationFailed, "reaction needs an id, emoji and user")
	ErrInvalidCursor       = newKind(ErrValidationFailed, "invalid pagination cursor")
	ErrInvalidMessageType  = newKind(ErrValidationFailed, "invalid message type")
	ErrInvalidPresence     = newKind(ErrValidationFailed, "invalid presence status")
	ErrMissingIdentifier   = newKind(ErrValidationFailed, "community and user ids are required")
	ErrParentInOtherThread = newKind(ErrValidationFailed, "parent message belongs to another community")
	ErrMessageDeleted      = newKind(ErrValidationFailed, "message has been deleted")
	ErrMissingURL          = newKind(ErrValidationFailed, "attachment url is required")
	ErrSessionClosed       = newKind(ErrValidationFailed, "session is closed")
	ErrUnknownStream       = newKind(ErrValidationFailed, "unknown stream kind")
)
