package signalmux

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func assertEmpty(t *testing.T, ch <-chan Message) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Fatalf("unexpected message %+v", msg)
	default:
	}
}

func TestBus_TopicFiltering(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	_, ready := bus.Subscribe("/path_ready")
	_, reset := bus.Subscribe("/path_reset")

	if err := bus.Publish("/path_ready", nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	msg := receive(t, ready)
	if msg.Topic != "/path_ready" {
		t.Errorf("topic = %q", msg.Topic)
	}
	if msg.Received.IsZero() {
		t.Error("Received not stamped")
	}
	assertEmpty(t, reset)
}

func TestBus_FanOut(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	_, a := bus.Subscribe("/waypoints")
	_, b := bus.Subscribe("/waypoints")

	if err := bus.PublishJSON("/waypoints", map[string]int{"n": 2}); err != nil {
		t.Fatal(err)
	}
	for _, ch := range []<-chan Message{a, b} {
		var got map[string]int
		if err := receive(t, ch).Decode(&got); err != nil {
			t.Fatal(err)
		}
		if got["n"] != 2 {
			t.Errorf("payload = %v", got)
		}
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	id, ch := bus.Subscribe("/x")
	bus.Unsubscribe(id)

	if _, ok := <-ch; ok {
		t.Error("expected closed channel")
	}
	// double unsubscribe is a no-op
	bus.Unsubscribe(id)
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	_, ch := bus.Subscribe("/initialpose")

	done := make(chan struct{})
	go func() {
		for i := 0; i < SubscriberBuffer*2; i++ {
			_ = bus.Publish("/initialpose", json.RawMessage(`{}`))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if len(ch) != SubscriberBuffer {
		t.Errorf("buffered = %d, want %d", len(ch), SubscriberBuffer)
	}
}

func TestBus_InvalidPayload(t *testing.T) {
	bus := NewBus()
	if err := bus.Publish("/initialpose", json.RawMessage(`{nope`)); err == nil {
		t.Error("expected invalid JSON error")
	}
}

func TestBus_Close(t *testing.T) {
	bus := NewBus()
	_, ch := bus.Subscribe("/x")
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
	if _, ok := <-ch; ok {
		t.Error("subscriber channel left open")
	}
	if err := bus.Publish("/x", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after Close = %v, want ErrClosed", err)
	}
	_, late := bus.Subscribe("/x")
	if _, ok := <-late; ok {
		t.Error("Subscribe after Close should return a closed channel")
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestBus_Topics(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	bus.Subscribe("/b")
	bus.Subscribe("/a")
	bus.Subscribe("/b")

	got := bus.Topics()
	if len(got) != 2 || got[0] != "/a" || got[1] != "/b" {
		t.Errorf("Topics() = %v", got)
	}
}

func TestMessage_DecodeEmpty(t *testing.T) {
	var v map[string]any
	if err := (Message{Topic: "/initialpose"}).Decode(&v); err == nil {
		t.Error("expected error decoding empty payload")
	}
}
