package live

import (
	"context"
	"sync"
)

// Hub fans change ticks out to every subscriber of a key, in process.
type Hub struct {
	mtx  sync.Mutex
	subs map[string][]chan Signal
}

func NewHub() *Hub {
	return &Hub{subs: map[string][]chan Signal{}}
}

// Subscribe returns a feed for key that closes when ctx is done.
func (h *Hub) Subscribe(ctx context.Context, key string) <-chan Signal {
	ch := make(chan Signal, 1)

	h.mtx.Lock()
	h.subs[key] = append(h.subs[key], ch)
	h.mtx.Unlock()

	go func() {
		<-ctx.Done()
		h.mtx.Lock()
		defer h.mtx.Unlock()
		subs := h.subs[key]
		for i, v := range subs {
			if v == ch {
				subs[i] = subs[len(subs)-1]
				subs = subs[:len(subs)-1]
				break
			}
		}
		if len(subs) == 0 {
			delete(h.subs, key)
		} else {
			h.subs[key] = subs
		}
		close(ch)
	}()

	return ch
}

// Source adapts Subscribe for Start.
func (h *Hub) Source(key string) Source {
	return func(ctx context.Context) (<-chan Signal, error) {
		return h.Subscribe(ctx, key), nil
	}
}

// Notify ticks every subscriber of key. A subscriber with a tick already
// pending is skipped since one reload covers both.
func (h *Hub) Notify(key string) {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	for _, ch := range h.subs[key] {
		select {
		case ch <- Signal{}:
		default:
		}
	}
}

// Fail ends every feed of key with err.
func (h *Hub) Fail(key string, err error) {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	for _, ch := range h.subs[key] {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- Signal{Err: err}:
		default:
		}
	}
}

// Subscribers reports how many feeds are open for key.
func (h *Hub) Subscribers(key string) int {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	return len(h.subs[key])
}
