package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"BlitzCup/bracket"
	"BlitzCup/models"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"gorm.io/gorm"
)

// WinnersTopic carries the inbound winner decisions from the tracking worker.
const WinnersTopic = "winners"

// Publisher pushes match-ready payloads onto the durable outbound queue.
type Publisher struct {
	pub message.Publisher
}

func NewPublisher(pub message.Publisher) *Publisher {
	return &Publisher{pub: pub}
}

// PublishMatchReady serializes the tuple and sends it to the matches queue
func (p *Publisher) PublishMatchReady(ctx context.Context, event bracket.MatchReady) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	return p.pub.Publish(bracket.MatchReadyTopic, msg)
}

// OutboxSweeper republishes outbox rows whose direct publish never landed.
// Delivery stays at-least-once: a row may go out twice, never zero times.
type OutboxSweeper struct {
	DB       *gorm.DB
	Pub      message.Publisher
	Interval time.Duration
	Grace    time.Duration
}

func NewOutboxSweeper(db *gorm.DB, pub message.Publisher) *OutboxSweeper {
	return &OutboxSweeper{
		DB:       db,
		Pub:      pub,
		Interval: 30 * time.Second,
		Grace:    10 * time.Second,
	}
}

// Run sweeps until the context is cancelled
func (s *OutboxSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(); err != nil {
				log.Printf("[outbox] sweep failed: %v", err)
			}
		}
	}
}

// Sweep publishes every stale unpublished row once
func (s *OutboxSweeper) Sweep() error {
	pending, err := models.FindUnpublishedEvents(s.DB, s.Grace, 100)
	if err != nil {
		return err
	}

	for i := range pending {
		row := &pending[i]
		msg := message.NewMessage(watermill.NewUUID(), []byte(row.Payload))
		if err := s.Pub.Publish(row.Topic, msg); err != nil {
			log.Printf("[outbox] republish of event %d failed: %v", row.ID, err)
			continue
		}
		if err := row.MarkPublished(s.DB); err != nil {
			log.Printf("[outbox] could not mark event %d published: %v", row.ID, err)
		} else {
			log.Printf("[outbox] recovered event %d on topic %s", row.ID, row.Topic)
		}
	}
	return nil
}
