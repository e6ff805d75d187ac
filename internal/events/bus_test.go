package events

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aristath/minions/internal/edit"
)

// TestPublishSubscribe verifies events are routed by their topic.
func TestPublishSubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	tasks := bus.Subscribe(TopicTask, 10)
	runs := bus.Subscribe(TopicRun, 10)

	bus.Publish(AttemptStartedEvent{ID: "task-1", Path: "a.py", Attempt: 0, Timestamp: time.Now()})

	select {
	case received := <-tasks:
		if received.TaskID() != "task-1" {
			t.Errorf("expected task ID 'task-1', got '%s'", received.TaskID())
		}
		if received.EventType() != EventTypeAttemptStarted {
			t.Errorf("expected event type '%s', got '%s'", EventTypeAttemptStarted, received.EventType())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	select {
	case e := <-runs:
		t.Errorf("run subscriber received task event %s", e.EventType())
	default:
	}
}

// TestMultipleSubscribers verifies every subscriber of a topic gets the event.
func TestMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch1 := bus.Subscribe(TopicOutcome, 10)
	ch2 := bus.Subscribe(TopicOutcome, 10)

	bus.Publish(TaskCommittedEvent{
		ID:           "task-2",
		Strategy:     edit.StrategyExact,
		AttemptsUsed: 1,
		Duration:     100 * time.Millisecond,
		Timestamp:    time.Now(),
	})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case received := <-ch:
			committed, ok := received.(TaskCommittedEvent)
			if !ok {
				t.Fatalf("subscriber %d: got %T", i+1, received)
			}
			if committed.Strategy != edit.StrategyExact {
				t.Errorf("subscriber %d: strategy %s", i+1, committed.Strategy)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("subscriber %d: timeout waiting for event", i+1)
		}
	}
}

// TestNonBlockingSend verifies a full subscriber never blocks the publisher
// and that drops are counted.
func TestNonBlockingSend(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(StateChangedEvent{ID: fmt.Sprintf("task-%d", i), State: "generating"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("publisher blocked (expected non-blocking behavior)")
	}

	select {
	case received := <-ch:
		if received.TaskID() != "task-0" {
			t.Errorf("expected first event, got %s", received.TaskID())
		}
	default:
		t.Error("expected one event in buffer")
	}

	if got := bus.Dropped(); got != 9 {
		t.Errorf("dropped = %d, want 9", got)
	}
}

// TestSubscribeAll verifies all-topic subscribers see every topic.
func TestSubscribeAll(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	all := bus.SubscribeAll(10)

	bus.Publish(TaskFailedEvent{ID: "t1", Kind: edit.FailureReview, Reason: "logic changed"})
	bus.Publish(RunProgressEvent{Total: 3, Failed: 1})

	var types []string
	for i := 0; i < 2; i++ {
		select {
		case e := <-all:
			types = append(types, e.EventType())
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("timeout after %d events", i)
		}
	}
	if types[0] != EventTypeTaskFailed || types[1] != EventTypeRunProgress {
		t.Errorf("types = %v", types)
	}
}

// TestCloseSignalsSubscribers verifies Close closes subscriber channels and
// is idempotent.
func TestCloseSignalsSubscribers(t *testing.T) {
	bus := NewEventBus()

	ch := bus.Subscribe(TopicTask, 10)
	all := bus.SubscribeAll(10)

	bus.Close()
	bus.Close()

	for _, c := range []<-chan Event{ch, all} {
		select {
		case _, ok := <-c:
			if ok {
				t.Error("expected closed channel")
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("channel not closed")
		}
	}

	// Publishing after close is a no-op.
	bus.Publish(RunProgressEvent{})

	late := bus.Subscribe(TopicRun, 1)
	if _, ok := <-late; ok {
		t.Error("subscription after close should be closed")
	}
}

// TestConcurrentPublish exercises the bus from many goroutines.
func TestConcurrentPublish(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch := bus.SubscribeAll(1000)

	var wg sync.WaitGroup
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				bus.Publish(AttemptFailedEvent{ID: fmt.Sprintf("w%d", w), Attempt: i})
			}
		}(w)
	}
	wg.Wait()

	if got := len(ch) + int(bus.Dropped()); got != 500 {
		t.Errorf("delivered+dropped = %d, want 500", got)
	}
}

func TestDiscard(t *testing.T) {
	Discard.Publish(RunProgressEvent{Total: 1})
}

type countingPublisher struct{ n int }

func (c *countingPublisher) Publish(Event) { c.n++ }

func TestTee(t *testing.T) {
	a, b := &countingPublisher{}, &countingPublisher{}
	pub := Tee(a, nil, b)

	pub.Publish(TaskQueuedEvent{ID: "t"})
	pub.Publish(RunProgressEvent{Total: 1})

	if a.n != 2 || b.n != 2 {
		t.Errorf("a=%d b=%d, want 2 each", a.n, b.n)
	}
}

// TestOutcomeTopicIgnoresProgress verifies a small outcome subscription is
// not crowded out by per-attempt events.
func TestOutcomeTopicIgnoresProgress(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	outcomes := bus.Subscribe(TopicOutcome, 1)

	for i := 0; i < 100; i++ {
		bus.Publish(StateChangedEvent{ID: "task-1", State: "generating"})
		bus.Publish(AttemptStartedEvent{ID: "task-1", Attempt: i})
	}
	bus.Publish(TaskFailedEvent{ID: "task-1", Path: "a.py", Reason: "review failure: no"})

	select {
	case e := <-outcomes:
		if _, ok := e.(TaskFailedEvent); !ok {
			t.Fatalf("got %s, want task failed", e.EventType())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("outcome event was dropped")
	}
}
