package event

import (
	"context"
	"errors"
	"testing"
)

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus()

	var got []Event
	bus.Subscribe(EventJobStage, func(ctx context.Context, e Event) error {
		got = append(got, e)
		return nil
	})

	bus.Publish(context.Background(), Event{
		Type:    EventJobStage,
		Payload: JobEvent{JobID: "j1", Stage: "disarm"},
	})
	bus.Publish(context.Background(), Event{
		Type:    EventJobTerminal,
		Payload: JobEvent{JobID: "j1"},
	})

	if len(got) != 1 {
		t.Fatalf("handler saw %d events, want 1", len(got))
	}
	if got[0].Payload.(JobEvent).Stage != "disarm" {
		t.Fatalf("payload = %+v", got[0].Payload)
	}
	if got[0].Timestamp.IsZero() {
		t.Fatal("publish must stamp events")
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()

	calls := 0
	unsub := bus.Subscribe(EventJobCreated, func(ctx context.Context, e Event) error {
		calls++
		return nil
	})

	bus.Publish(context.Background(), Event{Type: EventJobCreated})
	unsub()
	bus.Publish(context.Background(), Event{Type: EventJobCreated})

	if calls != 1 {
		t.Fatalf("handler called %d times, want 1", calls)
	}
}

func TestDispatchFollowsSubscriptionOrder(t *testing.T) {
	bus := NewBus()

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		bus.Subscribe(EventJobStage, func(ctx context.Context, e Event) error {
			order = append(order, i)
			return nil
		})
	}

	bus.Publish(context.Background(), Event{Type: EventJobStage})

	for i, got := range order {
		if got != i {
			t.Fatalf("dispatch order = %v, want subscription order", order)
		}
	}
	if len(order) != 5 {
		t.Fatalf("dispatched to %d handlers, want 5", len(order))
	}
}

func TestHandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := NewBus()

	second := false
	bus.Subscribe(EventJobTerminal, func(ctx context.Context, e Event) error {
		return errors.New("boom")
	})
	bus.Subscribe(EventJobTerminal, func(ctx context.Context, e Event) error {
		second = true
		return nil
	})

	bus.Publish(context.Background(), Event{Type: EventJobTerminal})
	if !second {
		t.Fatal("second handler should run despite the first failing")
	}
}
