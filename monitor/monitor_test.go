package monitor

import (
	"testing"
)

func TestPublishNeverBlocks(t *testing.T) {
	p := NewPublisher(2)

	for i := 0; i < 5; i++ {
		p.Publish(EventInfo, "event")
	}
	if got := p.Dropped(); got != 3 {
		t.Errorf("dropped = %d, want 3", got)
	}

	// The two buffered events are still deliverable.
	for i := 0; i < 2; i++ {
		select {
		case ev := <-p.Events():
			if ev.Type != EventInfo {
				t.Errorf("event type = %q, want %q", ev.Type, EventInfo)
			}
		default:
			t.Fatalf("event %d missing from buffer", i)
		}
	}
}

func TestNilPublisherIsInert(t *testing.T) {
	var p *Publisher

	p.Publish(EventError, "into the void")
	if p.Events() != nil {
		t.Error("nil publisher returned a channel")
	}
	if p.Dropped() != 0 {
		t.Error("nil publisher counted drops")
	}
}

func TestPublishStampsTimestamp(t *testing.T) {
	p := NewPublisher(1)
	p.Publish(EventCommand, "BC")

	ev := <-p.Events()
	if ev.Timestamp.IsZero() {
		t.Error("event timestamp is zero")
	}
	if ev.Content != "BC" {
		t.Errorf("content = %q, want %q", ev.Content, "BC")
	}
}
