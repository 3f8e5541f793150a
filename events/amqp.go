package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v2/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
)

// NewAMQPPublisher connects a durable-queue publisher to the broker (the
// CLOUDAMQP_URL style amqp:// URI).
func NewAMQPPublisher(amqpURL string) (message.Publisher, error) {
	config := amqp.NewDurableQueueConfig(amqpURL)
	return amqp.NewPublisher(config, watermill.NewStdLogger(false, false))
}

// NewAMQPSubscriber connects a durable-queue subscriber to the broker.
func NewAMQPSubscriber(amqpURL string) (message.Subscriber, error) {
	config := amqp.NewDurableQueueConfig(amqpURL)
	return amqp.NewSubscriber(config, watermill.NewStdLogger(false, false))
}
