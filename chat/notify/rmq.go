package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/alumnihub/chat/instance"
	"github.com/alumnihub/chat/structures"
	"github.com/streadway/amqp"
)

const DefaultQueue = "chat.notifications"

// RmqSink publishes each event as a persistent JSON message on a queue.
type RmqSink struct {
	rmq   instance.RabbitMQ
	queue string
}

func NewRmqSink(rmq instance.RabbitMQ, queue string) *RmqSink {
	if queue == "" {
		queue = DefaultQueue
	}
	return &RmqSink{rmq: rmq, queue: queue}
}

func (s *RmqSink) Emit(ctx context.Context, ev structures.NotificationEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	return s.rmq.Publish(s.queue, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Type:         string(ev.Type),
		Body:         body,
	})
}
