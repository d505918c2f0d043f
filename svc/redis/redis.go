package redis

import (
	"context"
	"sync"
	"time"

	"github.com/alumnihub/chat/instance"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// ErrNil is returned by Get when the key does not exist.
var ErrNil = redis.Nil

type RedisInst struct {
	client  *redis.Client
	sub     *redis.PubSub
	subsMtx sync.Mutex
	subs    map[string][]*redisSub
}

type SetupOptions struct {
	Username   string
	Password   string
	MasterName string
	Database   int

	Addresses []string
	Sentinel  bool
}

func New(ctx context.Context, opts SetupOptions) (instance.Redis, error) {
	if len(opts.Addresses) == 0 {
		logrus.Fatal("you must provide at least one redis address")
	}

	var rc *redis.Client
	if opts.Sentinel {
		rc = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:       opts.MasterName,
			SentinelAddrs:    opts.Addresses,
			SentinelUsername: opts.Username,
			SentinelPassword: opts.Password,
			Username:         opts.Username,
			Password:         opts.Password,
			DB:               opts.Database,
		})
	} else {
		rc = redis.NewClient(&redis.Options{
			Addr:     opts.Addresses[0],
			Username: opts.Username,
			Password: opts.Password,
			DB:       opts.Database,
		})
	}

	if err := rc.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	inst := &RedisInst{
		client: rc,
		sub:    rc.Subscribe(context.Background()),
		subs:   map[string][]*redisSub{},
	}
	go inst.fanOut()

	return inst, nil
}

func (r *RedisInst) fanOut() {
	defer func() {
		if err := recover(); err != nil {
			logrus.WithField("err", err).Fatal("panic in subs")
		}
	}()
	for msg := range r.sub.Channel() {
		payload := msg.Payload // dont change we want to copy the memory due to concurrency.
		r.subsMtx.Lock()
		for _, s := range r.subs[msg.Channel] {
			select {
			case s.ch <- payload:
			default:
				logrus.Warn("channel blocked dropping message: ", msg.Channel)
			}
		}
		r.subsMtx.Unlock()
	}
}

type redisSub struct {
	ch chan string
}

// Subscribe to a channel on Redis, ch receives payloads until ctx is done.
func (r *RedisInst) Subscribe(ctx context.Context, ch chan string, subscribeTo ...string) {
	r.subsMtx.Lock()
	defer r.subsMtx.Unlock()
	localSub := &redisSub{ch}
	for _, e := range subscribeTo {
		if _, ok := r.subs[e]; !ok {
			if err := r.sub.Subscribe(ctx, e); err != nil {
				logrus.WithError(err).WithField("channel", e).Error("failed to subscribe")
			}
		}
		r.subs[e] = append(r.subs[e], localSub)
	}

	go func() {
		<-ctx.Done()
		r.subsMtx.Lock()
		defer r.subsMtx.Unlock()
		for _, e := range subscribeTo {
			for i, v := range r.subs[e] {
				if v == localSub {
					if i != len(r.subs[e])-1 {
						r.subs[e][i] = r.subs[e][len(r.subs[e])-1]
					}
					r.subs[e] = r.subs[e][:len(r.subs[e])-1]
					if len(r.subs[e]) == 0 {
						delete(r.subs, e)
						if err := r.sub.Unsubscribe(context.Background(), e); err != nil {
							logrus.WithError(err).Error("failed to unsubscribe")
						}
					}
					break
				}
			}
		}
	}()
}

func (r *RedisInst) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisInst) Publish(ctx context.Context, channel string, content string) error {
	return r.client.Publish(ctx, channel, content).Err()
}

func (r *RedisInst) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}

func (r *RedisInst) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisInst) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

func (r *RedisInst) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, ttl).Result()
}

func (r *RedisInst) SetEX(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.SetEX(ctx, key, value, ttl).Err()
}

func (r *RedisInst) Set(ctx context.Context, key string, value string) error {
	return r.client.Set(ctx, key, value, 0).Err()
}

func (r *RedisInst) HSet(ctx context.Context, key string, field string, value string) error {
	return r.client.HSet(ctx, key, field, value).Err()
}

func (r *RedisInst) HGet(ctx context.Context, key string, field string) (string, error) {
	return r.client.HGet(ctx, key, field).Result()
}

func (r *RedisInst) HDel(ctx context.Context, key string, fields ...string) error {
	return r.client.HDel(ctx, key, fields...).Err()
}

func (r *RedisInst) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return r.client.HGetAll(ctx, key).Result()
}

func (r *RedisInst) HKeys(ctx context.Context, key string) ([]string, error) {
	return r.client.HKeys(ctx, key).Result()
}

// Close stops the fan-out and closes the client.
func (r *RedisInst) Close() error {
	_ = r.sub.Close()
	return r.client.Close()
}

func (r *RedisInst) Pipeline() redis.Pipeliner {
	return r.client.Pipeline()
}

func (r *RedisInst) RawClient() *redis.Client {
	return r.client
}
