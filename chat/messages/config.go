package messages

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Policy holds the community limits enforced at the store boundary.
type Policy struct {
	MaxContentLength  int   // runes
	MaxAttachments    int   // per message
	MaxAttachmentSize int64 // bytes
	MaxReactions      int   // per message
	MaxPinned         int   // per community, negative disables the check

	EditWindow time.Duration
	// AuthorDeleteWindow lets authors soft delete their own message within the
	// window. Zero keeps delete moderator only.
	AuthorDeleteWindow time.Duration

	DefaultPageSize int
	MaxPageSize     int
	// LiveWindow caps a live subscription to the most recent messages.
	LiveWindow int
}

var DefaultPolicy = Policy{
	MaxContentLength:  2000,
	MaxAttachments:    10,
	MaxAttachmentSize: 25 << 20,
	MaxReactions:      50,
	MaxPinned:         10,
	EditWindow:        15 * time.Minute,
	DefaultPageSize:   50,
	MaxPageSize:       100,
	LiveWindow:        200,
}

type Config struct {
	Policy Policy
	Logger logrus.FieldLogger
	Now    func() time.Time
}

var DefaultConfig = Config{
	Policy: DefaultPolicy,
	Logger: logrus.StandardLogger(),
	Now:    time.Now,
}

func (c Config) fill() Config {
	if c.Logger == nil {
		c.Logger = DefaultConfig.Logger
	}
	if c.Now == nil {
		c.Now = DefaultConfig.Now
	}

	p, d := &c.Policy, DefaultConfig.Policy
	if p.MaxContentLength <= 0 {
		p.MaxContentLength = d.MaxContentLength
	}
	if p.MaxAttachments <= 0 {
		p.MaxAttachments = d.MaxAttachments
	}
	if p.MaxAttachmentSize <= 0 {
		p.MaxAttachmentSize = d.MaxAttachmentSize
	}
	if p.MaxReactions <= 0 {
		p.MaxReactions = d.MaxReactions
	}
	if p.MaxPinned == 0 {
		p.MaxPinned = d.MaxPinned
	}
	if p.EditWindow <= 0 {
		p.EditWindow = d.EditWindow
	}
	if p.DefaultPageSize <= 0 {
		p.DefaultPageSize = d.DefaultPageSize
	}
	if p.MaxPageSize <= 0 {
		p.MaxPageSize = d.MaxPageSize
	}
	if p.LiveWindow <= 0 {
		p.LiveWindow = d.LiveWindow
	}

	return c
}

// now is millisecond precision so cursor values survive a bson round trip.
func (c Config) now() time.Time {
	return c.Now().UTC().Truncate(time.Millisecond)
}
