package events

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"BlitzCup/bracket"

	"github.com/ThreeDotsLabs/watermill/message"
)

// WinnerEvent is the inbound decision payload from the tracking worker.
type WinnerEvent struct {
	MatchID string `json:"match_id"`
	Winner  string `json:"winner"`
}

// Advancer is the slice of the progression engine the consumer drives.
type Advancer interface {
	AdvanceWinner(ctx context.Context, matchID, winnerHandle string) error
}

// Consumer reads winner decisions off the durable queue and feeds them to
// the progression engine. Each message is processed to completion (including
// the provisioning retry loop) before it is acked.
type Consumer struct {
	sub    message.Subscriber
	engine Advancer
}

func NewConsumer(sub message.Subscriber, engine Advancer) *Consumer {
	return &Consumer{sub: sub, engine: engine}
}

// Run blocks consuming the winners queue until the context is cancelled or
// the subscription closes.
func (c *Consumer) Run(ctx context.Context) error {
	messages, err := c.sub.Subscribe(ctx, WinnersTopic)
	if err != nil {
		return err
	}

	log.Printf("[consumer] waiting for winner decisions on %q", WinnersTopic)

	for msg := range messages {
		c.handle(ctx, msg)
	}
	return nil
}

func (c *Consumer) handle(ctx context.Context, msg *message.Message) {
	var event WinnerEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		// Malformed payloads can never succeed; drop them.
		log.Printf("[consumer] dropping malformed winner event %s: %v", msg.UUID, err)
		msg.Ack()
		return
	}
	if event.MatchID == "" || event.Winner == "" {
		log.Printf("[consumer] dropping incomplete winner event %s: %+v", msg.UUID, event)
		msg.Ack()
		return
	}

	err := c.engine.AdvanceWinner(ctx, event.MatchID, event.Winner)
	switch {
	case err == nil:
		msg.Ack()
	case errors.Is(err, bracket.ErrInvalidWinner), bracket.IsNotFound(err):
		// Poison messages: redelivery cannot fix an unknown match or a
		// winner who is not an occupant.
		log.Printf("[consumer] dropping unprocessable winner event for match %s: %v", event.MatchID, err)
		msg.Ack()
	default:
		log.Printf("[consumer] winner event for match %s failed, nacking for redelivery: %v", event.MatchID, err)
		msg.Nack()
	}
}
