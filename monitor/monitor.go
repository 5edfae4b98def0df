// Package monitor carries the node's event stream: structured events
// published by the server, dispatcher and handlers, consumed by the
// operator dashboard. Publishing never blocks; when nobody consumes fast
// enough, events are dropped.
package monitor

import (
	"sync/atomic"
	"time"
)

// EventType classifies a published event.
type EventType string

const (
	EventInfo        EventType = "INFO"
	EventConnection  EventType = "CONNECTION"
	EventCommand     EventType = "COMMAND"
	EventResponse    EventType = "RESPONSE"
	EventWarning     EventType = "WARNING"
	EventError       EventType = "ERROR"
	EventAccount     EventType = "ACCOUNT"
	EventTransaction EventType = "TRANSACTION"
	EventProxy       EventType = "PROXY"
)

// Event is one entry of the monitor stream.
type Event struct {
	Type      EventType `json:"type"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Connection describes one active client session, as reported by the
// server to the dashboard.
type Connection struct {
	ID          string    `json:"id"`
	IP          string    `json:"ip"`
	Port        int       `json:"port"`
	ConnectedAt time.Time `json:"connected_at"`
	Status      string    `json:"status"`
}

// Publisher fans events into a bounded channel. A nil Publisher is valid
// and discards everything, so components can run unmonitored.
type Publisher struct {
	ch      chan Event
	dropped atomic.Int64
}

// NewPublisher creates a publisher with the given channel capacity.
func NewPublisher(buffer int) *Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Publisher{ch: make(chan Event, buffer)}
}

// Publish posts an event without blocking. If the channel is full the
// event is counted as dropped and discarded.
func (p *Publisher) Publish(t EventType, content string) {
	if p == nil {
		return
	}
	ev := Event{Type: t, Content: content, Timestamp: time.Now()}
	select {
	case p.ch <- ev:
	default:
		p.dropped.Add(1)
	}
}

// Events is the consumer side of the stream.
func (p *Publisher) Events() <-chan Event {
	if p == nil {
		return nil
	}
	return p.ch
}

// Dropped reports how many events were discarded because the channel
// was full.
func (p *Publisher) Dropped() int64 {
	if p == nil {
		return 0
	}
	return p.dropped.Load()
}
