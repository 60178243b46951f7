package eventbus

import (
	"context"
	"testing"
	"time"
)

func TestPublishFiltersByPrefix(t *testing.T) {
	t.Parallel()

	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	votes, unsubVotes := b.Subscribe(4, "vote.")
	defer unsubVotes()

	b.Publish(Event{Type: "delivery.completed"})
	b.Publish(Event{Type: "vote.recorded", Data: 7})

	if got := len(all); got != 2 {
		t.Fatalf("all got %d events, want 2", got)
	}
	if got := len(votes); got != 1 {
		t.Fatalf("votes got %d events, want 1", got)
	}
	e := <-votes
	if e.Type != "vote.recorded" || e.Data != 7 || e.Time.IsZero() {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()

	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	b.Publish(Event{Type: "c"})
	if got := b.Dropped(); got != 2 {
		t.Fatalf("dropped = %d, want 2", got)
	}
}

func TestUnsubscribeClosesAndStopsDelivery(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(2)
	unsub()
	unsub() // idempotent

	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
	b.Publish(Event{Type: "after"})
}

func TestDrain(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(4)
	b.Publish(Event{Type: "x"})
	b.Publish(Event{Type: "y"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var seen []string
	done := make(chan struct{})
	go func() {
		Drain(ctx, ch, func(e Event) { seen = append(seen, e.Type) })
		close(done)
	}()
	// let the drain consume the buffer, then close the channel
	time.Sleep(20 * time.Millisecond)
	unsub()
	<-done
	if len(seen) != 2 || seen[0] != "x" || seen[1] != "y" {
		t.Fatalf("seen = %v", seen)
	}
}
