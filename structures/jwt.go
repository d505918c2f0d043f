package structures

import (
	"time"

	"github.com/alumnihub/chat/errors"
	"github.com/alumnihub/chat/utils"
	"github.com/golang-jwt/jwt"
)

// JwtChatSession authorizes one client session to attach to a community chat.
type JwtChatSession struct {
	UserID      string `json:"user_id"`
	CommunityID string `json:"community_id"`
	SessionID   string `json:"session_id"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url,omitempty"`
	DeviceType  string `json:"device_type,omitempty"`
	jwt.StandardClaims
}

func NewJwtChatSession(userID, communityID, sessionID string, ttl time.Duration) JwtChatSession {
	now := time.Now()
	return JwtChatSession{
		UserID:      userID,
		CommunityID: communityID,
		SessionID:   sessionID,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
			Subject:   userID,
		},
	}
}

func EncodeJwt(claims jwt.Claims, key string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(utils.S2B(key))
}

func DecodeJwt(claims jwt.Claims, key string, token string) error {
	tkn, err := jwt.ParseWithClaims(token, claims, func(tkn *jwt.Token) (interface{}, error) {
		if _, ok := tkn.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.ErrJwtTokenInvalid
		}

		return utils.S2B(key), nil
	})
	if err != nil {
		if ve, ok := err.(*jwt.ValidationError); ok && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return errors.ErrJwtTokenExpired
		}
		return errors.ErrJwtTokenInvalid
	}

	if !tkn.Valid {
		return errors.ErrJwtTokenInvalid
	}

	return nil
}
