package events

import (
	"sync"
	"sync/atomic"
)

const defaultBufSize = 256

// EventBus is a channel-based pub-sub event bus.
// Subscribers pick a topic, a single flow, or everything.
type EventBus struct {
	mu       sync.RWMutex
	subs     map[string][]chan Event // topic -> subscriber channels
	flowSubs map[string][]chan Event // flow ID -> subscriber channels
	allSubs  []chan Event
	closed   bool
	dropped  atomic.Int64
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subs:     make(map[string][]chan Event),
		flowSubs: make(map[string][]chan Event),
	}
}

// Subscribe creates a subscription to a specific topic.
// bufSize defaults to 256 if <= 0.
func (b *EventBus) Subscribe(topic string, bufSize int) <-chan Event {
	return b.add(func(ch chan Event) { b.subs[topic] = append(b.subs[topic], ch) }, bufSize)
}

// SubscribeFlow receives every event of one flow, on all topics.
func (b *EventBus) SubscribeFlow(flowID string, bufSize int) <-chan Event {
	return b.add(func(ch chan Event) { b.flowSubs[flowID] = append(b.flowSubs[flowID], ch) }, bufSize)
}

// SubscribeAll creates a subscription to ALL topics.
func (b *EventBus) SubscribeAll(bufSize int) <-chan Event {
	return b.add(func(ch chan Event) { b.allSubs = append(b.allSubs, ch) }, bufSize)
}

func (b *EventBus) add(register func(chan Event), bufSize int) <-chan Event {
	if bufSize <= 0 {
		bufSize = defaultBufSize
	}
	ch := make(chan Event, bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}
	register(ch)
	return ch
}

// Publish delivers event to subscribers of its topic, its flow, and to
// SubscribeAll channels. Non-blocking: if a subscriber's channel is full the
// event is dropped for that subscriber and counted.
func (b *EventBus) Publish(event Event) {
	if b == nil || event == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	b.send(b.subs[TopicOf(event)], event)
	if id := event.FlowID(); id != "" {
		b.send(b.flowSubs[id], event)
	}
	b.send(b.allSubs, event)
}

func (b *EventBus) send(channels []chan Event, event Event) {
	for _, ch := range channels {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber
// channel was full.
func (b *EventBus) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes the event bus and all subscriber channels.
// Safe to call multiple times.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, channels := range b.subs {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, channels := range b.flowSubs {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range b.allSubs {
		close(ch)
	}
}
