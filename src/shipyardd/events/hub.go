package events

import (
	"context"
	"sync"
)

// DefaultSubscriberBuffer is the per-subscriber queue length
const DefaultSubscriberBuffer = 64

type subscriber struct {
	ch chan []byte
}

// Hub is an in-process publisher. Slow subscribers lose messages rather than
// blocking the publisher.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*subscriber]struct{}
	buffer int
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		topics: make(map[string]map[*subscriber]struct{}),
		buffer: DefaultSubscriberBuffer,
	}
}

// Subscribe registers interest in topic. The returned function unsubscribes and
// closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(topic string) (<-chan []byte, func()) {
	sub := &subscriber{ch: make(chan []byte, h.buffer)}

	h.mu.Lock()
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*subscriber]struct{})
	}
	h.topics[topic][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.topics[topic], sub)
			if len(h.topics[topic]) == 0 {
				delete(h.topics, topic)
			}
			h.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Publish delivers data to the current subscribers of topic
func (h *Hub) Publish(_ context.Context, topic string, data []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.topics[topic] {
		select {
		case sub.ch <- data:
		default:
			log.Debug("Dropping event for slow subscriber", "topic", topic)
		}
	}
	return nil
}

// Subscribers returns the number of subscribers on topic
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
