package services

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventBus_PubSub(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	bus := NewEventBus(logger)

	ch, unsub := bus.Subscribe("item-123")
	defer unsub()

	event := Event{
		ItemID:    "item-123",
		Type:      EventCompleted,
		WorkerID:  "worker-0",
		Timestamp: time.Now(),
	}
	bus.Publish(event)

	select {
	case received := <-ch:
		assert.Equal(t, event.ItemID, received.ItemID)
		assert.Equal(t, event.Type, received.Type)
		assert.Equal(t, event.WorkerID, received.WorkerID)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	bus := NewEventBus(logger)

	ch, unsub := bus.Subscribe("item-456")
	unsub()

	bus.Publish(Event{ItemID: "item-456", Type: EventFailed})

	// Unsubscribe closes the channel, so a receive must report closed.
	select {
	case e, ok := <-ch:
		if ok {
			t.Fatalf("received event after unsubscribe: %v", e)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("channel not closed after unsubscribe")
	}
}

func TestEventBus_MultipleSubscribers(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	bus := NewEventBus(logger)

	ch1, unsub1 := bus.Subscribe("item-multi")
	defer unsub1()
	ch2, unsub2 := bus.Subscribe("item-multi")
	defer unsub2()

	bus.Publish(Event{ItemID: "item-multi", Type: EventStarted})

	timeout := time.After(1 * time.Second)
	got1, got2 := false, false
	for i := 0; i < 2; i++ {
		select {
		case <-ch1:
			got1 = true
		case <-ch2:
			got2 = true
		case <-timeout:
			t.Fatal("timeout")
		}
	}
	assert.True(t, got1)
	assert.True(t, got2)
}

func TestEventBus_DropsWhenSubscriberFull(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	bus := NewEventBus(logger)

	ch, unsub := bus.Subscribe("item-flood")
	defer unsub()

	// Overfill the buffer; Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(Event{ItemID: "item-flood", Type: EventRetried, Attempt: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.NotEmpty(t, ch)
}
