package services

import (
	"log/slog"
	"sync"
	"time"
)

type EventType string

const (
	EventSubmitted EventType = "submitted"
	EventStarted   EventType = "started"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventRetried   EventType = "retried"
)

// Event is one lifecycle transition of a work item. Events are advisory:
// the contractual way to observe outcomes remains polling the distributor.
type Event struct {
	ItemID    string
	Type      EventType
	WorkerID  string
	Attempt   int // failed attempts so far, including this one for failure events
	Error     string
	Timestamp time.Time
}

// EventBus fans lifecycle events out to per-item subscribers. Publishing
// never blocks: a full subscriber channel drops the event, because a slow
// observer must not stall a worker.
type EventBus struct {
	logger *slog.Logger
	mu     sync.RWMutex
	subs   map[string][]chan Event // keyed by item id
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		logger: logger,
		subs:   make(map[string][]chan Event),
	}
}

// Subscribe returns a channel receiving events for one work item, plus an
// unsubscribe function that closes it.
func (b *EventBus) Subscribe(itemID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 16)
	b.subs[itemID] = append(b.subs[itemID], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subscribers := b.subs[itemID]
		for i, sub := range subscribers {
			if sub == ch {
				close(ch)
				b.subs[itemID] = append(subscribers[:i], subscribers[i+1:]...)
				break
			}
		}
		if len(b.subs[itemID]) == 0 {
			delete(b.subs, itemID)
		}
	}

	return ch, unsub
}

// Publish sends e to every subscriber of its item.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subscribers, ok := b.subs[e.ItemID]
	if !ok {
		return
	}

	for _, ch := range subscribers {
		select {
		case ch <- e:
		default:
			b.logger.Warn("event bus channel full, dropping event",
				"item_id", e.ItemID, "event", string(e.Type))
		}
	}
}
