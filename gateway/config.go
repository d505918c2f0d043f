package gateway

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type Config struct {
	// Maximum size in bytes of one client frame.
	ReadLimit int64
	// Outgoing frames buffered per connection before it is dropped as too slow.
	SendBuffer   int
	WriteWait    time.Duration
	PongWait     time.Duration
	PingPeriod   time.Duration
	ShutdownWait time.Duration
	// Client frames allowed per second, with bursts up to FrameBurst.
	FrameRate  float64
	FrameBurst int

	CheckOrigin func(r *http.Request) bool
	Registry    *prometheus.Registry
	Logger      logrus.FieldLogger
}

var DefaultConfig = Config{
	ReadLimit:    64 << 10,
	SendBuffer:   64,
	WriteWait:    10 * time.Second,
	PongWait:     60 * time.Second,
	PingPeriod:   54 * time.Second,
	ShutdownWait: 10 * time.Second,
	FrameRate:    20,
	FrameBurst:   40,
	CheckOrigin:  func(r *http.Request) bool { return true },
	Logger:       logrus.StandardLogger(),
}

func (c Config) fill() Config {
	if c.ReadLimit <= 0 {
		c.ReadLimit = DefaultConfig.ReadLimit
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = DefaultConfig.SendBuffer
	}
	if c.WriteWait <= 0 {
		c.WriteWait = DefaultConfig.WriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = DefaultConfig.PongWait
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.ShutdownWait <= 0 {
		c.ShutdownWait = DefaultConfig.ShutdownWait
	}
	if c.FrameRate <= 0 {
		c.FrameRate = DefaultConfig.FrameRate
	}
	if c.FrameBurst <= 0 {
		c.FrameBurst = DefaultConfig.FrameBurst
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = DefaultConfig.CheckOrigin
	}
	if c.Registry == nil {
		c.Registry = prometheus.NewRegistry()
	}
	if c.Logger == nil {
		c.Logger = DefaultConfig.Logger
	}
	return c
}
