// Package presence tracks which users have a chat view open in a community.
// Each session of a user keeps its own record; Aggregate folds them per user.
package presence

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/alumnihub/chat/errors"
	"github.com/alumnihub/chat/instance"
	"github.com/alumnihub/chat/structures"
	"github.com/alumnihub/chat/svc/redis"
	"github.com/alumnihub/chat/utils"
	"github.com/alumnihub/chat/utils/live"
)

// DefaultSession is used when a write carries no session id.
const DefaultSession = "default"

type Tracker struct {
	redis instance.Redis
	cfg   Config
}

func New(r instance.Redis, cfg Config) *Tracker {
	return &Tracker{redis: r, cfg: cfg.fill()}
}

func hashKey(communityID string) string {
	return "chat:presence:" + communityID
}

// ChangedChannel is the pub/sub channel ticked after every write in the community.
func ChangedChannel(communityID string) string {
	return hashKey(communityID) + ":changed"
}

func field(userID, sessionID string) string {
	return userID + "/" + sessionID
}

// SetPresence overwrites the record of one session. ConnectedAt is carried over
// from the session's previous record.
func (t *Tracker) SetPresence(ctx context.Context, userID, communityID string, upd structures.PresenceUpdate) (structures.UserPresence, error) {
	if communityID == "" || userID == "" {
		return structures.UserPresence{}, errors.ErrMissingIdentifier
	}
	if !upd.Status.Valid() {
		return structures.UserPresence{}, errors.ErrInvalidPresence
	}
	if upd.SessionID == "" {
		upd.SessionID = DefaultSession
	}

	now := t.cfg.Now().UTC().Truncate(time.Millisecond)
	p := structures.UserPresence{
		UserID:      userID,
		CommunityID: communityID,
		SessionID:   upd.SessionID,
		Status:      upd.Status,
		DeviceType:  upd.DeviceType,
		UserAgent:   upd.UserAgent,
		LastSeen:    now,
		ConnectedAt: now,
	}

	k, f := hashKey(communityID), field(userID, upd.SessionID)
	raw, err := t.redis.HGet(ctx, k, f)
	switch {
	case err == nil:
		var prev structures.UserPresence
		if json.Unmarshal(utils.S2B(raw), &prev) == nil && !prev.ConnectedAt.IsZero() {
			p.ConnectedAt = prev.ConnectedAt
		}
	case !errors.Is(err, redis.ErrNil):
		return structures.UserPresence{}, errors.Transient(err)
	}

	b, _ := json.Marshal(p)
	if err := t.redis.HSet(ctx, k, f, utils.B2S(b)); err != nil {
		return structures.UserPresence{}, errors.Transient(err)
	}

	t.publish(ctx, structures.RedisChangeEvent{
		Type:        structures.RedisChangeEventTypePresenceSet,
		CommunityID: communityID,
		UserID:      userID,
	})
	return p, nil
}

// ClearPresence deletes one session's record, or every record of the user when
// sessionID is empty.
func (t *Tracker) ClearPresence(ctx context.Context, userID, communityID, sessionID string) error {
	if communityID == "" || userID == "" {
		return errors.ErrMissingIdentifier
	}
	k := hashKey(communityID)

	fields := []string{field(userID, sessionID)}
	if sessionID == "" {
		keys, err := t.redis.HKeys(ctx, k)
		if err != nil {
			return errors.Transient(err)
		}
		fields = fields[:0]
		for _, v := range keys {
			if strings.HasPrefix(v, userID+"/") {
				fields = append(fields, v)
			}
		}
		if len(fields) == 0 {
			return nil
		}
	}

	if err := t.redis.HDel(ctx, k, fields...); err != nil {
		return errors.Transient(err)
	}

	t.publish(ctx, structures.RedisChangeEvent{
		Type:        structures.RedisChangeEventTypePresenceCleared,
		CommunityID: communityID,
		UserID:      userID,
	})
	return nil
}

// ListPresence returns every stored session record of the community, stale
// ones included, ordered by user and session.
func (t *Tracker) ListPresence(ctx context.Context, communityID string) ([]structures.UserPresence, error) {
	all, err := t.redis.HGetAll(ctx, hashKey(communityID))
	if err != nil {
		return nil, errors.Transient(err)
	}

	out := make([]structures.UserPresence, 0, len(all))
	for f, raw := range all {
		var p structures.UserPresence
		if err := json.Unmarshal(utils.S2B(raw), &p); err != nil {
			t.cfg.Logger.WithError(err).WithField("community_id", communityID).WithField("field", f).Warn("presence, bad record")
			continue
		}
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out, nil
}

// SubscribeToPresence pushes the full record set after every presence write in
// the community.
func (t *Tracker) SubscribeToPresence(ctx context.Context, communityID string) *live.Stream[[]structures.UserPresence] {
	return live.Start(ctx, live.RedisSource(t.redis, ChangedChannel(communityID)), func(ctx context.Context) ([]structures.UserPresence, time.Duration, error) {
		list, err := t.ListPresence(ctx, communityID)
		return list, 0, err
	})
}

func (t *Tracker) publish(ctx context.Context, ev structures.RedisChangeEvent) {
	b, _ := json.Marshal(ev)
	if err := t.redis.Publish(ctx, ChangedChannel(ev.CommunityID), utils.B2S(b)); err != nil {
		t.cfg.Logger.WithError(err).WithField("community_id", ev.CommunityID).Warn("presence, failed to publish change")
	}
}

// Aggregate folds session records into one entry per user: the highest ranked
// status, the latest LastSeen and the set of devices.
func Aggregate(list []structures.UserPresence) []structures.AggregatedPresence {
	idx := map[string]int{}
	out := []structures.AggregatedPresence{}
	devices := []map[string]bool{}

	for _, p := range list {
		i, ok := idx[p.UserID]
		if !ok {
			i = len(out)
			idx[p.UserID] = i
			out = append(out, structures.AggregatedPresence{UserID: p.UserID, Status: p.Status, LastSeen: p.LastSeen})
			devices = append(devices, map[string]bool{})
		}

		a := &out[i]
		a.Sessions++
		if p.Status.Outranks(a.Status) {
			a.Status = p.Status
		}
		if p.LastSeen.After(a.LastSeen) {
			a.LastSeen = p.LastSeen
		}
		if p.DeviceType != "" && !devices[i][p.DeviceType] {
			devices[i][p.DeviceType] = true
			a.Devices = append(a.Devices, p.DeviceType)
		}
	}

	for i := range out {
		sort.Strings(out[i].Devices)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
