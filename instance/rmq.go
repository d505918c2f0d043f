package instance

import "github.com/streadway/amqp"

type RabbitMQ interface {
	Publish(queue string, msg amqp.Publishing) error
	Close() error
	RawClient() *amqp.Connection
	RawChannel() *amqp.Channel
}
