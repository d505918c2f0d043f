package membership

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alumnihub/chat/errors"
	"github.com/alumnihub/chat/instance"
	"github.com/alumnihub/chat/structures"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RoleChangedChannel carries "<community>/<user>" after every membership write.
const RoleChangedChannel = "chat:role:changed"

// PublishRoleChange tells every CachedOracle listening on r to drop the entry.
func PublishRoleChange(ctx context.Context, r instance.Redis, communityID, userID string) error {
	return r.Publish(ctx, RoleChangedChannel, communityID+"/"+userID)
}

// CachedOracle keeps role lookups in redis for a short ttl. A role change is
// visible after Invalidate, after a PublishRoleChange picked up by Listen, or
// at the latest after the ttl.
type CachedOracle struct {
	next   Oracle
	redis  instance.Redis
	ttl    time.Duration
	logger logrus.FieldLogger
}

func NewCachedOracle(next Oracle, r instance.Redis, ttl time.Duration, logger logrus.FieldLogger) *CachedOracle {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedOracle{next: next, redis: r, ttl: ttl, logger: logger}
}

func cacheKey(communityID, userID string) string {
	return fmt.Sprintf("chat:role:%s:%s", communityID, userID)
}

func (c *CachedOracle) RoleOf(ctx context.Context, communityID, userID string) (structures.Membership, error) {
	k := cacheKey(communityID, userID)

	raw, err := c.redis.Get(ctx, k)
	if err == nil {
		var m structures.Membership
		if err := json.Unmarshal([]byte(raw), &m); err == nil {
			return m, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.WithError(err).Warn("membership cache read failed")
	}

	m, err := c.next.RoleOf(ctx, communityID, userID)
	if err != nil {
		return m, err
	}

	b, _ := json.Marshal(m)
	if err := c.redis.SetEX(ctx, k, string(b), c.ttl); err != nil {
		c.logger.WithError(err).Warn("membership cache write failed")
	}
	return m, nil
}

func (c *CachedOracle) Invalidate(ctx context.Context, communityID, userID string) error {
	return c.redis.Del(ctx, cacheKey(communityID, userID))
}

// Listen drops the entries named on RoleChangedChannel until ctx is done.
func (c *CachedOracle) Listen(ctx context.Context) {
	ch := make(chan string, 64)
	c.redis.Subscribe(ctx, ch, RoleChangedChannel)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ch:
			i := strings.IndexByte(msg, '/')
			if i < 0 {
				continue
			}
			if err := c.Invalidate(ctx, msg[:i], msg[i+1:]); err != nil && ctx.Err() == nil {
				c.logger.WithError(err).WithField("member", msg).Warn("membership cache invalidate failed")
			}
		}
	}
}
