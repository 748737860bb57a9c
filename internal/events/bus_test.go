package events

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
		return nil
	}
}

// TestPublishSubscribe verifies basic publish/subscribe functionality.
func TestPublishSubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 10)

	bus.Publish(TaskStartedEvent{Flow: "f1", ID: "task-1", Name: "Test Task", AgentID: "writer", Timestamp: time.Now()})

	received := receive(t, ch)
	if received.TaskID() != "task-1" {
		t.Errorf("expected task ID 'task-1', got '%s'", received.TaskID())
	}
	if received.EventType() != EventTypeTaskStarted {
		t.Errorf("expected event type '%s', got '%s'", EventTypeTaskStarted, received.EventType())
	}
}

// TestTopicRouting verifies task events and flow progress use separate topics.
func TestTopicRouting(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	taskCh := bus.Subscribe(TopicTask, 10)
	flowCh := bus.Subscribe(TopicFlow, 10)

	bus.Publish(FlowProgressEvent{Flow: "f1", Total: 2, Successful: 1, Pending: 1})
	bus.Publish(TaskSkippedEvent{Flow: "f1", ID: "b", Reason: errors.New("upstream failed")})

	if ev := receive(t, flowCh); ev.EventType() != EventTypeFlowProgress {
		t.Errorf("flow topic got %s", ev.EventType())
	}
	if ev := receive(t, taskCh); ev.EventType() != EventTypeTaskSkipped {
		t.Errorf("task topic got %s", ev.EventType())
	}

	select {
	case ev := <-taskCh:
		t.Errorf("unexpected extra task event %s", ev.EventType())
	default:
	}
}

// TestSubscribeFlow verifies flow subscribers only see their own flow.
func TestSubscribeFlow(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch := bus.SubscribeFlow("mine", 10)

	bus.Publish(TaskCompletedEvent{Flow: "other", ID: "x"})
	bus.Publish(TaskCompletedEvent{Flow: "mine", ID: "y", Value: 4})
	bus.Publish(FlowProgressEvent{Flow: "mine", Total: 1, Successful: 1})

	first := receive(t, ch)
	if first.TaskID() != "y" {
		t.Errorf("expected task y first, got %q", first.TaskID())
	}
	second := receive(t, ch)
	progress, ok := second.(FlowProgressEvent)
	if !ok || !progress.Done() {
		t.Errorf("expected finished flow progress, got %#v", second)
	}
}

// TestMultipleSubscribers verifies multiple subscribers receive the same event.
func TestMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch1 := bus.Subscribe(TopicTask, 10)
	ch2 := bus.Subscribe(TopicTask, 10)
	all := bus.SubscribeAll(10)

	bus.Publish(TaskCompletedEvent{Flow: "f", ID: "task-2", Value: "success", Duration: 100 * time.Millisecond})

	for i, ch := range []<-chan Event{ch1, ch2, all} {
		if got := receive(t, ch).TaskID(); got != "task-2" {
			t.Errorf("subscriber %d: expected task ID 'task-2', got '%s'", i+1, got)
		}
	}
}

// TestNonBlockingSend verifies that publishing doesn't block when channels are full.
func TestNonBlockingSend(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(TaskRepairEvent{Flow: "f", ID: "t", Attempt: i + 1})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("publisher blocked (expected non-blocking behavior)")
	}

	if ev := receive(t, ch).(TaskRepairEvent); ev.Attempt != 1 {
		t.Errorf("expected the first event to be buffered, got attempt %d", ev.Attempt)
	}
	if got := bus.Dropped(); got != 9 {
		t.Errorf("expected 9 dropped deliveries, got %d", got)
	}
}

// TestCloseSignalsSubscribers verifies that closing the bus closes subscriber channels.
func TestCloseSignalsSubscribers(t *testing.T) {
	bus := NewEventBus()

	ch := bus.Subscribe(TopicTask, 10)
	flowCh := bus.SubscribeFlow("f", 10)
	all := bus.SubscribeAll(10)

	bus.Close()
	bus.Close() // idempotent

	for _, c := range []<-chan Event{ch, flowCh, all} {
		if _, ok := <-c; ok {
			t.Error("expected closed channel")
		}
	}

	// Subscribing and publishing after close are no-ops.
	late := bus.Subscribe(TopicTask, 1)
	if _, ok := <-late; ok {
		t.Error("expected subscription after close to be closed")
	}
	bus.Publish(TaskStartedEvent{ID: "late"})
}

// TestNilBusPublish verifies publishing on a nil bus is safe.
func TestNilBusPublish(t *testing.T) {
	var bus *EventBus
	bus.Publish(TaskStartedEvent{ID: "x"})
}

// TestConcurrentPublish verifies concurrent publishers deliver every event.
func TestConcurrentPublish(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	const publishers, perPublisher = 8, 25
	ch := bus.SubscribeAll(publishers * perPublisher)

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				bus.Publish(TurnCompletedEvent{Flow: "f", ID: "t", Seq: i})
			}
		}()
	}
	wg.Wait()

	if got := len(ch); got != publishers*perPublisher {
		t.Errorf("expected %d buffered events, got %d", publishers*perPublisher, got)
	}
}
