// Package signalmux carries the follower's pub/sub traffic: operator
// signals in, visualization out. A Bus fans each published message out to
// every subscriber of its topic; a Console bridges the bus to a line-based
// serial terminal.
package signalmux

import (
	crand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/waypoints/internal/monitoring"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("signal bus closed")

// SubscriberBuffer is the per-subscriber channel capacity. A subscriber that
// falls this far behind misses messages rather than stalling publishers.
const SubscriberBuffer = 16

// Message is one published payload.
type Message struct {
	Topic    string          `json:"topic"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Received time.Time       `json:"received"`
}

// Decode unmarshals the payload into v. An empty payload is an error.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", m.Topic)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%s: %w", m.Topic, err)
	}
	return nil
}

// Mux is the publish/subscribe surface shared by Bus and its test doubles.
type Mux interface {
	// Subscribe creates a channel receiving every message published on topic
	// from now on. The ID identifies the channel when unsubscribing.
	Subscribe(topic string) (string, <-chan Message)
	// Unsubscribe removes and closes a subscription.
	Unsubscribe(id string)
	// Publish sends payload to every current subscriber of topic.
	Publish(topic string, payload json.RawMessage) error
	// Close closes all subscription channels.
	Close() error
}

type subscription struct {
	topic string
	ch    chan Message
}

// Bus is an in-process topic multiplexer.
type Bus struct {
	mu          sync.Mutex
	subscribers map[string]subscription
	closing     bool
	now         func() time.Time
}

var _ Mux = (*Bus)(nil)

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string]subscription),
		now:         time.Now,
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (b *Bus) Subscribe(topic string) (string, <-chan Message) {
	id := randomID()
	ch := make(chan Message, SubscriberBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closing {
		// already closed: hand back a closed channel so callers don't block
		close(ch)
		return id, ch
	}
	b.subscribers[id] = subscription{topic: topic, ch: ch}
	return id, ch
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subscribers[id]; ok {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}

func (b *Bus) Publish(topic string, payload json.RawMessage) error {
	if len(payload) > 0 && !json.Valid(payload) {
		return fmt.Errorf("%s: payload is not valid JSON", topic)
	}
	msg := Message{Topic: topic, Payload: payload, Received: b.now()}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closing {
		return ErrClosed
	}
	monitoring.RecordSignal(topic)
	for _, sub := range b.subscribers {
		if sub.topic != topic {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			// subscriber is full; skip so as not to block the publisher
		}
	}
	return nil
}

// PublishJSON marshals v and publishes it.
func (b *Bus) PublishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s: %w", topic, err)
	}
	return b.Publish(topic, payload)
}

// Topics lists the topics that currently have subscribers.
func (b *Bus) Topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	seen := make(map[string]struct{})
	for _, sub := range b.subscribers {
		seen[sub.topic] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closing {
		return nil
	}
	b.closing = true
	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}
	return nil
}
