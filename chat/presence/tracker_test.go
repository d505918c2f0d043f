package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/alumnihub/chat/errors"
	"github.com/alumnihub/chat/structures"
	"github.com/alumnihub/chat/svc/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTracker(t *testing.T, now func() time.Time) *Tracker {
	mr := miniredis.RunT(t)
	r, err := redis.New(context.Background(), redis.SetupOptions{Addresses: []string{mr.Addr()}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return New(r, Config{Now: now})
}

func TestSetPresenceOverwritesSession(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := newTracker(t, func() time.Time { return now })
	ctx := context.Background()

	first, err := tr.SetPresence(ctx, "u1", "c1", structures.PresenceUpdate{Status: structures.PresenceOnline, DeviceType: "web", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, now, first.ConnectedAt)

	now = now.Add(30 * time.Second)
	second, err := tr.SetPresence(ctx, "u1", "c1", structures.PresenceUpdate{Status: structures.PresenceAway, SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, first.ConnectedAt, second.ConnectedAt)
	assert.Equal(t, now, second.LastSeen)

	list, err := tr.ListPresence(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, structures.PresenceAway, list[0].Status)
	assert.Empty(t, list[0].DeviceType, "each write is a full overwrite")
	assert.Equal(t, first.ConnectedAt, list[0].ConnectedAt)
}

func TestSetPresenceValidation(t *testing.T) {
	tr := newTracker(t, nil)
	ctx := context.Background()

	_, err := tr.SetPresence(ctx, "u1", "c1", structures.PresenceUpdate{Status: "invisible"})
	assert.ErrorIs(t, err, errors.ErrInvalidPresence)
	_, err = tr.SetPresence(ctx, "u1", "", structures.PresenceUpdate{Status: structures.PresenceOnline})
	assert.ErrorIs(t, err, errors.ErrMissingIdentifier)

	p, err := tr.SetPresence(ctx, "u1", "c1", structures.PresenceUpdate{Status: structures.PresenceOnline})
	require.NoError(t, err)
	assert.Equal(t, DefaultSession, p.SessionID)
}

func TestClearPresence(t *testing.T) {
	tr := newTracker(t, nil)
	ctx := context.Background()

	for _, s := range []string{"s1", "s2"} {
		_, err := tr.SetPresence(ctx, "u1", "c1", structures.PresenceUpdate{Status: structures.PresenceOnline, SessionID: s})
		require.NoError(t, err)
	}
	_, err := tr.SetPresence(ctx, "u10", "c1", structures.PresenceUpdate{Status: structures.PresenceOnline, SessionID: "s1"})
	require.NoError(t, err)

	require.NoError(t, tr.ClearPresence(ctx, "u1", "c1", "s1"))
	list, err := tr.ListPresence(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "s2", list[0].SessionID)

	require.NoError(t, tr.ClearPresence(ctx, "u1", "c1", ""))
	list, err = tr.ListPresence(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "u10", list[0].UserID)

	assert.NoError(t, tr.ClearPresence(ctx, "u1", "c1", ""))
}

func TestAggregate(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	got := Aggregate([]structures.UserPresence{
		{UserID: "u2", SessionID: "a", Status: structures.PresenceAway, DeviceType: "mobile", LastSeen: t0},
		{UserID: "u1", SessionID: "a", Status: structures.PresenceAway, DeviceType: "web", LastSeen: t0},
		{UserID: "u1", SessionID: "b", Status: structures.PresenceOnline, DeviceType: "mobile", LastSeen: t0.Add(time.Minute)},
		{UserID: "u1", SessionID: "c", Status: structures.PresenceBusy, DeviceType: "web", LastSeen: t0},
	})

	assert.Equal(t, []structures.AggregatedPresence{
		{UserID: "u1", Status: structures.PresenceOnline, LastSeen: t0.Add(time.Minute), Sessions: 3, Devices: []string{"mobile", "web"}},
		{UserID: "u2", Status: structures.PresenceAway, LastSeen: t0, Sessions: 1, Devices: []string{"mobile"}},
	}, got)
}

func TestSubscribeToPresence(t *testing.T) {
	tr := newTracker(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := tr.SetPresence(ctx, "u1", "c1", structures.PresenceUpdate{Status: structures.PresenceOnline})
	require.NoError(t, err)

	s := tr.SubscribeToPresence(ctx, "c1")
	defer s.Unsubscribe()

	select {
	case list := <-s.Updates():
		require.Len(t, list, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial set")
	}

	// the pub/sub subscription registers asynchronously, keep writing until a tick lands
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case <-ticker.C:
			_, err := tr.SetPresence(ctx, "u2", "c1", structures.PresenceUpdate{Status: structures.PresenceBusy})
			require.NoError(t, err)
		case list := <-s.Updates():
			if len(list) == 2 {
				assert.Equal(t, "u2", list[1].UserID)
				return
			}
		case <-deadline:
			t.Fatal("no update after write")
		}
	}
}
