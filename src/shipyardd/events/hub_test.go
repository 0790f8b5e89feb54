package events

import (
	"context"
	"testing"
	"time"
)

func recvMessage(t *testing.T, ch <-chan []byte, timeout time.Duration) []byte {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for event")
	}
	return nil
}

func TestHub_PublishOrdering(t *testing.T) {
	hub := NewHub()
	topic := VersionTopic("v1")

	ch, unsubscribe := hub.Subscribe(topic)
	defer unsubscribe()

	_ = hub.Publish(context.Background(), topic, []byte("first"))
	_ = hub.Publish(context.Background(), topic, []byte("second"))
	_ = hub.Publish(context.Background(), VersionTopic("other"), []byte("ignored"))

	if got := string(recvMessage(t, ch, time.Second)); got != "first" {
		t.Fatalf("first event: want=first got=%s", got)
	}
	if got := string(recvMessage(t, ch, time.Second)); got != "second" {
		t.Fatalf("second event: want=second got=%s", got)
	}

	select {
	case msg := <-ch:
		t.Fatalf("unexpected event %q", msg)
	default:
	}
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub()
	topic := VersionTopic("v2")

	ch, unsubscribe := hub.Subscribe(topic)
	if hub.Subscribers(topic) != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.Subscribers(topic))
	}

	unsubscribe()
	unsubscribe()

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	if hub.Subscribers(topic) != 0 {
		t.Fatalf("expected 0 subscribers, got %d", hub.Subscribers(topic))
	}

	// Publishing with no subscribers is a no-op.
	if err := hub.Publish(context.Background(), topic, []byte("x")); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub()
	topic := VersionTopic("v3")

	_, unsubscribe := hub.Subscribe(topic)
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < DefaultSubscriberBuffer*3; i++ {
			_ = hub.Publish(context.Background(), topic, []byte("x"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
}
