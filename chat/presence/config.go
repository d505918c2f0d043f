package presence

import (
	"time"

	"github.com/sirupsen/logrus"
)

type Config struct {
	Logger logrus.FieldLogger
	Now    func() time.Time
}

var DefaultConfig = Config{
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
	return c
}
