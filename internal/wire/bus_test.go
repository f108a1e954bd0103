package wire

import (
	"testing"
	"time"

	"github.com/jimihq/jimi/pkg/models"
)

func collect(t *testing.T, s *Subscriber, n int) []models.Event {
	t.Helper()
	out := make([]models.Event, 0, n)
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case e, ok := <-s.C():
			if !ok {
				t.Fatalf("channel closed after %d events, want %d", len(out), n)
			}
			out = append(out, e)
		case <-timeout:
			t.Fatalf("timed out after %d events, want %d", len(out), n)
		}
	}
	return out
}

func TestPublishOrderPerSubscriber(t *testing.T) {
	bus := New()
	defer bus.Close()

	a := bus.Subscribe()
	b := bus.Subscribe()

	for i := 1; i <= 10; i++ {
		bus.Publish(models.Event{Type: models.EventStepBegin, Step: i})
	}

	for _, sub := range []*Subscriber{a, b} {
		events := collect(t, sub, 10)
		for i, e := range events {
			if e.Step != i+1 {
				t.Errorf("event %d: step = %d, want %d", i, e.Step, i+1)
			}
			if i > 0 && events[i].Sequence <= events[i-1].Sequence {
				t.Errorf("sequence not monotonic at %d", i)
			}
		}
	}
}

func TestSubscribeSeesOnlyFutureEvents(t *testing.T) {
	bus := New()
	defer bus.Close()

	bus.Publish(models.Event{Type: models.EventStepBegin, Step: 1})
	sub := bus.Subscribe()
	bus.Publish(models.Event{Type: models.EventStepEnd, Step: 1})

	events := collect(t, sub, 1)
	if events[0].Type != models.EventStepEnd {
		t.Errorf("got %s, want %s", events[0].Type, models.EventStepEnd)
	}
}

func TestSlowSubscriberDropsOldestAndReportsLag(t *testing.T) {
	bus := New()
	defer bus.Close()

	sub := bus.Subscribe()

	// The delivery worker takes at most one event off the queue before
	// blocking on the unread channel, so publishing queue+2 events
	// guarantees at least one drop.
	total := DefaultQueueSize + 10
	for i := 1; i <= total; i++ {
		bus.Publish(models.Event{Type: models.EventContentDelta, Step: i})
	}

	// Drain everything; the lag marker must precede the post-gap events.
	var lagged *models.Event
	var afterLag []models.Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case e := <-sub.C():
			if e.Type == models.EventSubscriberLagged {
				if lagged != nil {
					t.Fatal("saw more than one lag marker")
				}
				lagged = &e
				continue
			}
			if lagged != nil {
				afterLag = append(afterLag, e)
			}
			if e.Step == total {
				if lagged == nil {
					t.Fatal("no SubscriberLagged event before final event")
				}
				if lagged.Dropped < 1 {
					t.Errorf("lag marker dropped = %d, want >= 1", lagged.Dropped)
				}
				for i := 1; i < len(afterLag); i++ {
					if afterLag[i].Step != afterLag[i-1].Step+1 {
						t.Fatalf("gap after lag marker: %d -> %d", afterLag[i-1].Step, afterLag[i].Step)
					}
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out draining subscriber")
		}
	}
}

func TestPublishDoesNotBlockOnStalledSubscriber(t *testing.T) {
	bus := New()
	defer bus.Close()

	_ = bus.Subscribe() // never read

	done := make(chan struct{})
	go func() {
		for i := 0; i < DefaultQueueSize*3; i++ {
			bus.Publish(models.Event{Type: models.EventContentDelta})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a stalled subscriber")
	}
}

func TestCloseDrainsBufferedEvents(t *testing.T) {
	bus := New()
	sub := bus.Subscribe()

	bus.Publish(models.Event{Type: models.EventDone, Done: &models.DonePayload{Cause: models.DoneNatural}})
	bus.Close()

	events := collect(t, sub, 1)
	if events[0].Type != models.EventDone {
		t.Errorf("got %s, want %s", events[0].Type, models.EventDone)
	}
	select {
	case _, ok := <-sub.C():
		if ok {
			t.Error("expected channel to close after drain")
		}
	case <-time.After(2 * time.Second):
		t.Error("channel not closed after bus Close")
	}
}

func TestSubscriberCloseDetaches(t *testing.T) {
	bus := New()
	defer bus.Close()

	sub := bus.Subscribe()
	sub.Close()
	bus.Publish(models.Event{Type: models.EventStepBegin, Step: 1})
	// Publishing after detach must not panic or block.
}
