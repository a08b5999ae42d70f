// Package redis provides Redis-based adapters for authd.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/uninbox/authd/internal/observability/notify"
)

// EventPublisher publishes security events on a Redis Pub/Sub channel so other
// services (mailers, audit consumers) can react without polling.
type EventPublisher struct {
	client  redis.UniversalClient
	channel string
}

var _ notify.Sink = (*EventPublisher)(nil)

// NewEventPublisher creates a publisher for channel.
func NewEventPublisher(client redis.UniversalClient, channel string) (*EventPublisher, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if channel == "" {
		return nil, errors.New("channel is required")
	}
	return &EventPublisher{client: client, channel: channel}, nil
}

// Send publishes ev as JSON.
func (p *EventPublisher) Send(ctx context.Context, ev notify.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe delivers decoded events to fn until ctx is done. Undecodable
// messages are skipped.
func (p *EventPublisher) Subscribe(ctx context.Context, fn func(notify.Event)) error {
	sub := p.client.Subscribe(ctx, p.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev notify.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			fn(ev)
		}
	}
}
