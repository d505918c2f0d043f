package errors

var (
	ErrJwtTokenInvalid = newKind(ErrUnauthorized, "invalid jwt token")
	ErrJwtTokenExpired = newKind(ErrUnauthorized, "jwt token has expired")
)
