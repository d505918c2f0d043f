package session

import (
	"time"

	"github.com/sirupsen/logrus"
)

type Config struct {
	// Heartbeat is how often an attached session rewrites its presence.
	Heartbeat time.Duration
	// LocalTypingClear clears the session's typing indicator this long after
	// the last Typing call. It is shorter than the store side expiry.
	LocalTypingClear time.Duration
	// TokenSecret signs and verifies session tokens.
	TokenSecret string
	TokenTTL    time.Duration

	Logger logrus.FieldLogger
	Now    func() time.Time
}

var DefaultConfig = Config{
	Heartbeat:        30 * time.Second,
	LocalTypingClear: 5 * time.Second,
	TokenTTL:         12 * time.Hour,
	Logger:           logrus.StandardLogger(),
	Now:              time.Now,
}

func (c Config) fill() Config {
	if c.Heartbeat <= 0 {
		c.Heartbeat = DefaultConfig.Heartbeat
	}
	if c.LocalTypingClear <= 0 {
		c.LocalTypingClear = DefaultConfig.LocalTypingClear
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = DefaultConfig.TokenTTL
	}
	if c.Logger == nil {
		c.Logger = DefaultConfig.Logger
	}
	if c.Now == nil {
		c.Now = DefaultConfig.Now
	}
	return c
}
