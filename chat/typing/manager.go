// Package typing keeps short lived "is typing" signals per community.
//
// Records carry their own expiry and are never removed by the store itself;
// every read drops records whose ExpiresAt has passed.
package typing

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/alumnihub/chat/errors"
	"github.com/alumnihub/chat/instance"
	"github.com/alumnihub/chat/structures"
	"github.com/alumnihub/chat/utils"
	"github.com/alumnihub/chat/utils/live"
	"github.com/sirupsen/logrus"
)

type Config struct {
	// Expiry is how long an indicator stays active without being refreshed.
	Expiry time.Duration
	Logger logrus.FieldLogger
	Now    func() time.Time
}

var DefaultConfig = Config{
	Expiry: 10 * time.Second,
	Logger: logrus.StandardLogger(),
	Now:    time.Now,
}

func (c Config) fill() Config {
	if c.Expiry <= 0 {
		c.Expiry = DefaultConfig.Expiry
	}
	if c.Logger == nil {
		c.Logger = DefaultConfig.Logger
	}
	if c.Now == nil {
		c.Now = DefaultConfig.Now
	}
	return c
}

type Manager struct {
	redis instance.Redis
	cfg   Config
}

func New(r instance.Redis, cfg Config) *Manager {
	return &Manager{redis: r, cfg: cfg.fill()}
}

func hashKey(communityID string) string {
	return "chat:typing:" + communityID
}

func ChangedChannel(communityID string) string {
	return hashKey(communityID) + ":changed"
}

func (m *Manager) now() time.Time {
	return m.cfg.Now().UTC().Truncate(time.Millisecond)
}

// SetTypingIndicator upserts the user's indicator with a fresh expiry.
func (m *Manager) SetTypingIndicator(ctx context.Context, communityID, userID, displayName, photoURL string) (structures.TypingIndicator, error) {
	if communityID == "" || userID == "" {
		return structures.TypingIndicator{}, errors.ErrMissingIdentifier
	}

	now := m.now()
	ind := structures.TypingIndicator{
		UserID:      userID,
		CommunityID: communityID,
		DisplayName: displayName,
		PhotoURL:    photoURL,
		StartedAt:   now,
		ExpiresAt:   now.Add(m.cfg.Expiry),
	}

	b, _ := json.Marshal(ind)
	if err := m.redis.HSet(ctx, hashKey(communityID), userID, utils.B2S(b)); err != nil {
		return structures.TypingIndicator{}, errors.Transient(err)
	}

	m.publish(ctx, structures.RedisChangeEvent{
		Type:        structures.RedisChangeEventTypeTypingSet,
		CommunityID: communityID,
		UserID:      userID,
	})
	return ind, nil
}

func (m *Manager) ClearTypingIndicator(ctx context.Context, userID, communityID string) error {
	if communityID == "" || userID == "" {
		return errors.ErrMissingIdentifier
	}
	if err := m.redis.HDel(ctx, hashKey(communityID), userID); err != nil {
		return errors.Transient(err)
	}

	m.publish(ctx, structures.RedisChangeEvent{
		Type:        structures.RedisChangeEventTypeTypingCleared,
		CommunityID: communityID,
		UserID:      userID,
	})
	return nil
}

// ListTyping returns the active indicators, oldest first.
func (m *Manager) ListTyping(ctx context.Context, communityID string) ([]structures.TypingIndicator, error) {
	all, err := m.listStored(ctx, communityID)
	if err != nil {
		return nil, err
	}
	return Active(all, m.cfg.Now()), nil
}

func (m *Manager) listStored(ctx context.Context, communityID string) ([]structures.TypingIndicator, error) {
	all, err := m.redis.HGetAll(ctx, hashKey(communityID))
	if err != nil {
		return nil, errors.Transient(err)
	}

	out := make([]structures.TypingIndicator, 0, len(all))
	for f, raw := range all {
		var ind structures.TypingIndicator
		if err := json.Unmarshal(utils.S2B(raw), &ind); err != nil {
			m.cfg.Logger.WithError(err).WithField("community_id", communityID).WithField("user_id", f).Warn("typing, bad record")
			continue
		}
		out = append(out, ind)
	}
	return out, nil
}

// SubscribeToTypingIndicators pushes the active set after every change and
// again whenever the earliest active indicator expires, so an indicator that is
// never cleared still drops out of the stream.
func (m *Manager) SubscribeToTypingIndicators(ctx context.Context, communityID string) *live.Stream[[]structures.TypingIndicator] {
	return live.Start(ctx, live.RedisSource(m.redis, ChangedChannel(communityID)), func(ctx context.Context) ([]structures.TypingIndicator, time.Duration, error) {
		all, err := m.listStored(ctx, communityID)
		if err != nil {
			return nil, 0, err
		}

		now := m.cfg.Now()
		active := Active(all, now)
		var refreshIn time.Duration
		for _, ind := range active {
			if d := ind.ExpiresAt.Sub(now) + time.Millisecond; refreshIn == 0 || d < refreshIn {
				refreshIn = d
			}
		}
		return active, refreshIn, nil
	})
}

func (m *Manager) publish(ctx context.Context, ev structures.RedisChangeEvent) {
	b, _ := json.Marshal(ev)
	if err := m.redis.Publish(ctx, ChangedChannel(ev.CommunityID), utils.B2S(b)); err != nil {
		m.cfg.Logger.WithError(err).WithField("community_id", ev.CommunityID).Warn("typing, failed to publish change")
	}
}

// Active keeps the indicators that have not expired at now, oldest first.
func Active(list []structures.TypingIndicator, now time.Time) []structures.TypingIndicator {
	out := make([]structures.TypingIndicator, 0, len(list))
	for _, v := range list {
		if v.Active(now) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}
