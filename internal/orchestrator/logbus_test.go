package orchestrator

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestLogBusPublishAndSubscribe(t *testing.T) {
	bus := NewLogBus(uuid.New(), "proj")
	ch, detach := bus.Subscribe()
	defer detach()

	bus.Publish(BuildLog{Timestamp: time.Now(), Step: 1, Level: LogInfo, Message: "hi"})

	select {
	case data := <-ch:
		var frame logFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		if frame.Message != "hi" || frame.Type != "log" {
			t.Errorf("unexpected frame %+v", frame)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published frame")
	}
}

func TestLogBusShutdownClosesBroadcast(t *testing.T) {
	bus := NewLogBus(uuid.New(), "proj")
	ch, detach := bus.Subscribe()
	defer detach()

	bus.Shutdown()

	select {
	case data := <-ch:
		var frame shutdownFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("unmarshal shutdown frame: %v", err)
		}
		if frame.Type != "shutdown" {
			t.Errorf("expected shutdown frame, got %+v", frame)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for shutdown frame")
	}

	// Publishing after shutdown must not panic and must not deliver.
	bus.Publish(BuildLog{Message: "too late"})
	select {
	case data := <-ch:
		t.Fatalf("expected no further frames after shutdown, got %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLogBusSlowSubscriberDropsRatherThanBlocks(t *testing.T) {
	bus := NewLogBus(uuid.New(), "proj")
	_, detach := bus.Subscribe() // never drained
	defer detach()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBufferSize+50; i++ {
			bus.Publish(BuildLog{Step: i, Message: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestLogBusDetachRemovesSubscriber(t *testing.T) {
	bus := NewLogBus(uuid.New(), "proj")
	_, detach := bus.Subscribe()
	detach()

	if len(bus.subscribers) != 0 {
		t.Errorf("expected 0 subscribers after detach, got %d", len(bus.subscribers))
	}
}
