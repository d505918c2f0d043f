package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alumnihub/chat/structures"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRmq struct {
	queue string
	msgs  []amqp.Publishing
	err   error
}

func (f *fakeRmq) Publish(queue string, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.queue = queue
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeRmq) Close() error { return nil }

func (f *fakeRmq) RawClient() *amqp.Connection { return nil }

func (f *fakeRmq) RawChannel() *amqp.Channel { return nil }

func TestRmqSinkPublishesJSON(t *testing.T) {
	f := &fakeRmq{}
	s := NewRmqSink(f, "")

	ev := structures.NotificationEvent{
		Type:         structures.NotificationEventTypeMention,
		TargetUserID: "u2",
		CommunityID:  "c1",
		MessageID:    "m1",
		ActorID:      "u1",
	}
	require.NoError(t, s.Emit(context.Background(), ev))

	require.Len(t, f.msgs, 1)
	assert.Equal(t, DefaultQueue, f.queue)
	assert.Equal(t, "application/json", f.msgs[0].ContentType)
	assert.Equal(t, uint8(amqp.Persistent), f.msgs[0].DeliveryMode)

	var got structures.NotificationEvent
	require.NoError(t, json.Unmarshal(f.msgs[0].Body, &got))
	assert.Equal(t, ev.TargetUserID, got.TargetUserID)
	assert.Equal(t, ev.Type, got.Type)
}

func TestRmqSinkHonorsCancelledContext(t *testing.T) {
	f := &fakeRmq{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewRmqSink(f, "q").Emit(ctx, structures.NotificationEvent{}), context.Canceled)
	assert.Empty(t, f.msgs)
}

func TestMulti(t *testing.T) {
	rec := &Recorder{}
	boom := errors.New("boom")
	m := Multi(NewRmqSink(&fakeRmq{err: boom}, "q"), rec, Nop)

	err := m.Emit(context.Background(), structures.NotificationEvent{MessageID: "m1"})
	assert.ErrorIs(t, err, boom)
	require.Len(t, rec.Events(), 1)
	assert.Equal(t, "m1", rec.Events()[0].MessageID)

	rec.Reset()
	assert.Empty(t, rec.Events())
}
