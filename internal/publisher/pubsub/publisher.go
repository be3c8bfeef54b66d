// Package pubsub publishes generation events to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// EventAttribute carries the event name on every message.
const EventAttribute = "event"

// Publisher sends JSON payloads to a single Pub/Sub topic.
type Publisher struct {
	topic *pubsub.Topic
}

// New wraps an existing topic handle.
func New(topic *pubsub.Topic) *Publisher {
	return &Publisher{topic: topic}
}

// Publish marshals payload and waits for the server-assigned message ID.
// The event name is attached as an attribute; the topic is fixed at construction.
func (p *Publisher) Publish(ctx context.Context, event string, payload any) (string, error) {
	if p.topic == nil {
		return "", errors.New("pubsub topic is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s event: %w", event, err)
	}
	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{EventAttribute: event},
	}
	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish %s event: %w", event, err)
	}
	return id, nil
}

// Stop flushes pending messages and releases the topic's goroutines.
func (p *Publisher) Stop() {
	if p.topic != nil {
		p.topic.Stop()
	}
}
