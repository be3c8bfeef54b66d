// Package memory records generation events in process, for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Publisher keeps published events for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
	limit    int
	seq      int
}

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	ID      string
	Topic   string
	Payload any
}

// New returns an empty Publisher that keeps every event.
func New() *Publisher {
	return &Publisher{}
}

// NewWithLimit returns a Publisher that keeps only the newest limit events.
func NewWithLimit(limit int) *Publisher {
	return &Publisher{limit: limit}
}

// Publish records the event and returns a sequential pseudo ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	id := fmt.Sprintf("memory-%d", p.seq)
	p.messages = append(p.messages, PublishedMessage{ID: id, Topic: topic, Payload: payload})
	if p.limit > 0 && len(p.messages) > p.limit {
		p.messages = append(p.messages[:0:0], p.messages[len(p.messages)-p.limit:]...)
	}
	return id, nil
}

// Messages returns a copy of the recorded events, oldest first.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}
