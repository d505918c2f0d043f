package live

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamReloadsOnEveryTick(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var n int32
	s := Start(ctx, hub.Source("c1"), func(ctx context.Context) (int32, time.Duration, error) {
		return atomic.AddInt32(&n, 1), 0, nil
	})

	assert.Equal(t, int32(1), <-s.Updates())

	hub.Notify("c1")
	assert.Equal(t, int32(2), <-s.Updates())

	hub.Notify("other")
	select {
	case v := <-s.Updates():
		t.Fatalf("unexpected update %d", v)
	case <-time.After(50 * time.Millisecond):
	}

	s.Unsubscribe()
	_, ok := <-s.Updates()
	assert.False(t, ok)
	require.Eventually(t, func() bool { return hub.Subscribers("c1") == 0 }, time.Second, 10*time.Millisecond)
}

func TestStreamKeepsOnlyLatest(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var n int32
	s := Start(ctx, hub.Source("c1"), func(ctx context.Context) (int32, time.Duration, error) {
		return atomic.AddInt32(&n, 1), 0, nil
	})

	require.Eventually(t, func() bool { return atomic.LoadInt32(&n) == 1 }, time.Second, time.Millisecond)
	for i := 0; i < 5; i++ {
		hub.Notify("c1")
		current := atomic.LoadInt32(&n)
		require.Eventually(t, func() bool { return atomic.LoadInt32(&n) > current }, time.Second, time.Millisecond)
	}

	var last int32
	require.Eventually(t, func() bool {
		select {
		case last = <-s.Updates():
		default:
		}
		return last == 6
	}, time.Second, time.Millisecond)
	assert.Empty(t, s.Updates())
	s.Unsubscribe()
}

func quiet(ctx context.Context) (<-chan Signal, error) {
	return make(chan Signal), nil
}

func TestStreamRefreshTimer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var n int32
	s := Start(ctx, quiet, func(ctx context.Context) (int32, time.Duration, error) {
		v := atomic.AddInt32(&n, 1)
		if v == 1 {
			return v, 20 * time.Millisecond, nil
		}
		return v, 0, nil
	})
	defer s.Unsubscribe()

	assert.Equal(t, int32(1), <-s.Updates())
	select {
	case v := <-s.Updates():
		assert.Equal(t, int32(2), v)
	case <-time.After(time.Second):
		t.Fatal("refresh timer did not fire")
	}
}

func TestStreamLoadErrorKeepsRunning(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	boom := errors.New("boom")
	var n int32
	s := Start(ctx, hub.Source("c1"), func(ctx context.Context) (int32, time.Duration, error) {
		if atomic.AddInt32(&n, 1) == 1 {
			return 0, 0, boom
		}
		return atomic.LoadInt32(&n), 0, nil
	})
	defer s.Unsubscribe()

	assert.ErrorIs(t, <-s.Errors(), boom)
	hub.Notify("c1")
	assert.Equal(t, int32(2), <-s.Updates())
}

func TestStreamFeedFailureEnds(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := Start(ctx, hub.Source("c1"), func(ctx context.Context) (int, time.Duration, error) {
		return 1, 0, nil
	})

	<-s.Updates()
	revoked := errors.New("permission revoked")
	hub.Fail("c1", revoked)

	assert.ErrorIs(t, <-s.Errors(), revoked)
	<-s.Done()
}

func TestStreamSourceError(t *testing.T) {
	boom := errors.New("boom")
	s := Start(context.Background(), func(ctx context.Context) (<-chan Signal, error) {
		return nil, boom
	}, func(ctx context.Context) (int, time.Duration, error) {
		t.Fatal("loader must not run without a feed")
		return 0, 0, nil
	})

	assert.ErrorIs(t, <-s.Errors(), boom)
	_, ok := <-s.Updates()
	assert.False(t, ok)
	s.Unsubscribe()
}

func TestUnsubscribeClosesFeed(t *testing.T) {
	hub := NewHub()
	s := Start(context.Background(), hub.Source("c1"), func(ctx context.Context) (int, time.Duration, error) {
		return 1, 0, nil
	})
	<-s.Updates()
	assert.Equal(t, 1, hub.Subscribers("c1"))

	s.Unsubscribe()
	require.Eventually(t, func() bool { return hub.Subscribers("c1") == 0 }, time.Second, 10*time.Millisecond)
}
