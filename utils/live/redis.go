package live

import (
	"context"

	"github.com/alumnihub/chat/instance"
)

// RedisSource ticks on every message published to channel. Payloads are
// ignored, a tick only means "reload".
func RedisSource(r instance.Redis, channel string) Source {
	return func(ctx context.Context) (<-chan Signal, error) {
		payloads := make(chan string, 16)
		r.Subscribe(ctx, payloads, channel)

		out := make(chan Signal, 1)
		go func() {
			defer close(out)
			for {
				select {
				case <-ctx.Done():
					return
				case <-payloads:
					select {
					case out <- Signal{}:
					default:
					}
				}
			}
		}()
		return out, nil
	}
}
