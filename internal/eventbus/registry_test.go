package eventbus

import (
	"testing"
	"time"
)

func TestStream_SubscribeReplaysHistory(t *testing.T) {
	registry := NewRegistry()
	stream := registry.Start("corr-1")

	stream.Accept(Status{State: "running", Message: "starting"})
	stream.Accept(Progress{Processed: 1, Total: 3})

	history, _, unsubscribe := stream.Subscribe()
	defer unsubscribe()

	if len(history) != 2 {
		t.Fatalf("expected 2 history events, got %d", len(history))
	}
	if history[0].EventKind() != KindStatus || history[1].EventKind() != KindProgress {
		t.Errorf("unexpected history order: %+v", history)
	}
}

func TestStream_LiveDelivery(t *testing.T) {
	stream := NewRegistry().Start("corr-2")

	_, live, unsubscribe := stream.Subscribe()
	defer unsubscribe()

	stream.Accept(Status{State: "running"})

	select {
	case ev := <-live:
		if ev.EventKind() != KindStatus {
			t.Errorf("unexpected event kind: %v", ev.EventKind())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for live event")
	}
}

func TestStream_Done_OnCompleted(t *testing.T) {
	stream := NewRegistry().Start("corr-3")
	if stream.Done() {
		t.Fatal("expected Done() false before any event")
	}
	stream.Accept(Completed{Outcome: OutcomeSuccess})
	if !stream.Done() {
		t.Fatal("expected Done() true after Completed event")
	}
}

func TestStream_UnsubscribeStopsDelivery(t *testing.T) {
	stream := NewRegistry().Start("corr-4")
	_, live, unsubscribe := stream.Subscribe()
	unsubscribe()

	stream.Accept(Status{State: "running"})

	select {
	case ev, ok := <-live:
		if ok {
			t.Fatalf("expected no delivery after unsubscribe, got %v", ev)
		}
	case <-time.After(50 * time.Millisecond):
		// no delivery, as expected
	}
}

func TestStream_SlowSubscriberDoesNotBlockAccept(t *testing.T) {
	stream := NewRegistry().Start("corr-5")
	_, _, unsubscribe := stream.Subscribe() // subscriber never drains its channel
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 64; i++ {
			stream.Accept(Progress{Processed: i, Total: 64})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Accept blocked on a slow subscriber")
	}
}

func TestRegistry_GetAndForget(t *testing.T) {
	registry := NewRegistry()
	registry.Start("corr-6")

	if _, ok := registry.Get("corr-6"); !ok {
		t.Fatal("expected stream to be registered")
	}

	registry.Forget("corr-6")

	if _, ok := registry.Get("corr-6"); ok {
		t.Fatal("expected stream to be forgotten")
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	if _, ok := NewRegistry().Get("does-not-exist"); ok {
		t.Fatal("expected unknown correlation id to miss")
	}
}
