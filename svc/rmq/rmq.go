package rmq

import (
	"context"
	"sync"

	"github.com/alumnihub/chat/instance"
	"github.com/streadway/amqp"
)

type RmqInst struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	mtx  sync.Mutex
}

// New dials the broker and declares every queue in opts as durable.
func New(ctx context.Context, opts SetupOptions) (instance.RabbitMQ, error) {
	conn, err := amqp.Dial(opts.URI)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	for _, q := range opts.Queues() {
		if _, err = ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	return &RmqInst{
		conn: conn,
		ch:   ch,
	}, nil
}

// Publish sends to the default exchange routed by queue name. amqp channels are
// not safe for concurrent publishes.
func (r *RmqInst) Publish(queue string, msg amqp.Publishing) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.ch.Publish("", queue, false, false, msg)
}

func (r *RmqInst) Close() error {
	_ = r.ch.Close()
	return r.conn.Close()
}

func (r *RmqInst) RawClient() *amqp.Connection {
	return r.conn
}

func (r *RmqInst) RawChannel() *amqp.Channel {
	return r.ch
}

type SetupOptions struct {
	URI        string
	QueueName  string
	ExtraQueue []string
}

func (o SetupOptions) Queues() []string {
	out := []string{}
	if o.QueueName != "" {
		out = append(out, o.QueueName)
	}
	return append(out, o.ExtraQueue...)
}
