package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type config struct {
	HTTPAddr string
	LogLevel logrus.Level

	MongoURI      string
	MongoDatabase string
	MongoDirect   bool

	RedisAddresses []string
	RedisPassword  string
	RedisDatabase  int
	RedisSentinel  bool
	RedisMaster    string

	// An empty RmqURI disables notification delivery.
	RmqURI      string
	NotifyQueue string

	JwtSecret        string
	TokenTTL         time.Duration
	Heartbeat        time.Duration
	// A zero MembershipTTL reads every role from mongo.
	MembershipTTL    time.Duration
	TypingExpiry     time.Duration
	LocalTypingClear time.Duration
}

// loadConfig reads the environment, seeded from the given .env files when
// they exist. Variables already set in the environment win.
func loadConfig(files ...string) (config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	e := &env{}
	cfg := config{
		HTTPAddr:         e.str("CHAT_HTTP_ADDR", ":8080"),
		MongoURI:         e.str("CHAT_MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:    e.str("CHAT_MONGO_DB", "chat"),
		MongoDirect:      e.bool("CHAT_MONGO_DIRECT", false),
		RedisAddresses:   e.list("CHAT_REDIS_ADDRS", "localhost:6379"),
		RedisPassword:    e.str("CHAT_REDIS_PASSWORD", ""),
		RedisDatabase:    e.int("CHAT_REDIS_DB", 0),
		RedisSentinel:    e.bool("CHAT_REDIS_SENTINEL", false),
		RedisMaster:      e.str("CHAT_REDIS_MASTER", ""),
		RmqURI:           e.str("CHAT_RMQ_URI", ""),
		NotifyQueue:      e.str("CHAT_NOTIFY_QUEUE", "chat.notifications"),
		JwtSecret:        e.str("CHAT_JWT_SECRET", ""),
		TokenTTL:         e.duration("CHAT_TOKEN_TTL", 12*time.Hour),
		Heartbeat:        e.duration("CHAT_HEARTBEAT", 30*time.Second),
		MembershipTTL:    e.duration("CHAT_MEMBERSHIP_TTL", 0),
		TypingExpiry:     e.duration("CHAT_TYPING_EXPIRY", 10*time.Second),
		LocalTypingClear: e.duration("CHAT_TYPING_LOCAL_CLEAR", 5*time.Second),
	}

	level, err := logrus.ParseLevel(e.str("CHAT_LOG_LEVEL", "info"))
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("CHAT_LOG_LEVEL: %v", err))
	}
	cfg.LogLevel = level

	if cfg.JwtSecret == "" {
		e.errs = append(e.errs, "CHAT_JWT_SECRET is required")
	}
	if cfg.RedisSentinel && cfg.RedisMaster == "" {
		e.errs = append(e.errs, "CHAT_REDIS_MASTER is required with CHAT_REDIS_SENTINEL")
	}
	if len(e.errs) > 0 {
		return config{}, fmt.Errorf("invalid config: %s", strings.Join(e.errs, "; "))
	}
	return cfg, nil
}

type env struct {
	errs []string
}

func (e *env) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (e *env) list(key, def string) []string {
	out := []string{}
	for _, v := range strings.Split(e.str(key, def), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (e *env) bool(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %v", key, err))
	}
	return b
}

func (e *env) int(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %v", key, err))
	}
	return n
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %v", key, err))
	}
	return d
}
