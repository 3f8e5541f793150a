package models

import (
	"time"

	"gorm.io/gorm"
)

// OutboxEvent is a pending outbound publication. The row is written in the
// same transaction as the store mutation it announces, so a crash between
// the write and the broker publish leaves a row behind for the sweeper
// instead of a silently dropped event. Receivers are idempotent on match_id,
// so the occasional double publish is harmless.
type OutboxEvent struct {
	ID          uint       `gorm:"primary_key;autoIncrement" json:"id"`
	Topic       string     `gorm:"size:50;not null;index" json:"topic"`
	Payload     string     `gorm:"type:text;not null" json:"payload"`
	CreatedAt   time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	PublishedAt *time.Time `json:"published_at"`
}

func (OutboxEvent) TableName() string {
	return "outbox_events"
}

// Enqueue stores the event; call inside the transaction that mutates the
// match.
func (e *OutboxEvent) Enqueue(db *gorm.DB) error {
	return db.Create(e).Error
}

// MarkPublished stamps the event as delivered to the broker
func (e *OutboxEvent) MarkPublished(db *gorm.DB) error {
	now := time.Now()
	err := db.Model(&OutboxEvent{}).
		Where("id = ?", e.ID).
		Update("published_at", now).Error
	if err != nil {
		return err
	}
	e.PublishedAt = &now
	return nil
}

// FindUnpublishedEvents returns rows the direct publish never confirmed.
// Only rows older than the grace period are returned so the sweeper does not
// race a publish that is still in flight.
func FindUnpublishedEvents(db *gorm.DB, grace time.Duration, limit int) ([]OutboxEvent, error) {
	var events []OutboxEvent
	cutoff := time.Now().Add(-grace)
	err := db.Where("published_at IS NULL AND created_at < ?", cutoff).
		Order("id").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// DeleteAllOutboxEvents clears the outbox (reset)
func DeleteAllOutboxEvents(db *gorm.DB) error {
	return db.Where("id >= ?", 0).Delete(&OutboxEvent{}).Error
}
