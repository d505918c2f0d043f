package uid

import (
	"encoding/base64"

	"github.com/gofrs/uuid"
)

// NewId returns a url-safe id built from the first 12 bytes of a v4 uuid.
func NewId() string {
	id, _ := uuid.NewV4()
	b64 := base64.RawURLEncoding.EncodeToString(id.Bytes()[:12])
	return b64
}

// NewSessionId returns a full v4 uuid string, used for client sessions.
func NewSessionId() string {
	id, _ := uuid.NewV4()
	return id.String()
}
