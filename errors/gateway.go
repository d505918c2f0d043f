package errors

var (
	ErrInvalidFrame  = newKind(ErrValidationFailed, "invalid frame")
	ErrUnknownOp     = newKind(ErrValidationFailed, "unknown op")
	ErrMissingToken  = newKind(ErrUnauthorized, "missing session token")
	ErrGatewayClosed = newKind(ErrValidationFailed, "gateway is shutting down")
	ErrRateLimited   = newKind(ErrValidationFailed, "too many frames, slow down")
)
