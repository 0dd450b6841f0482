package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/testmentor-api/internal/models"
)

// EventPublisher pushes booking events to Redis pub/sub. A nil client turns
// every publish into a no-op so the API runs without Redis.
type EventPublisher struct {
	client  *redis.Client
	channel string
}

// NewEventPublisher constructs the publisher.
func NewEventPublisher(client *redis.Client, channel string) *EventPublisher {
	if channel == "" {
		channel = "bookings.events"
	}
	return &EventPublisher{client: client, channel: channel}
}

// Channels returns the global channel and the per-user channels an event is sent to.
func (p *EventPublisher) Channels(event models.BookingEvent) []string {
	channels := []string{p.channel}
	if event.TeacherID != "" {
		channels = append(channels, p.channel+":user:"+event.TeacherID)
	}
	if event.StudentID != "" {
		channels = append(channels, p.channel+":user:"+event.StudentID)
	}
	return channels
}

// Publish sends event to every channel it concerns.
func (p *EventPublisher) Publish(ctx context.Context, event models.BookingEvent) error {
	if p.client == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal booking event: %w", err)
	}
	pipe := p.client.Pipeline()
	for _, channel := range p.Channels(event) {
		pipe.Publish(ctx, channel, payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish %s: %w", event.Type, err)
	}
	return nil
}
