// Package wire provides the in-process pub/sub channel carrying structured
// events from the agent runtime to any number of UI subscribers.
package wire

import (
	"sync"
	"time"

	"github.com/jimihq/jimi/pkg/models"
)

// DefaultQueueSize is the per-subscriber buffer. When a subscriber falls
// this far behind, the oldest buffered event is dropped and a synthetic
// SubscriberLagged event is delivered in its place.
const DefaultQueueSize = 1024

// Bus fans out events to subscribers. Publish never blocks; each subscriber
// owns a bounded queue drained by its own delivery goroutine, so a slow
// subscriber only loses its own events.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]*Subscriber
	nextID int
	seq    uint64
	closed bool
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*Subscriber)}
}

// Publish stamps the event with a sequence number and timestamp and enqueues
// it for every current subscriber. Events published after Close are dropped.
func (b *Bus) Publish(e models.Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.seq++
	e.Sequence = b.seq
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	subs := make([]*Subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.enqueue(e)
	}
}

// Subscribe returns an independent cursor over all future events.
func (b *Bus) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	s := &Subscriber{
		bus:  b,
		id:   b.nextID,
		max:  DefaultQueueSize,
		out:  make(chan models.Event),
		done: make(chan struct{}),
	}
	s.wake = sync.NewCond(&s.mu)
	if !b.closed {
		b.subs[s.id] = s
	} else {
		s.closed = true
	}
	go s.deliver()
	return s
}

// Close detaches all subscribers and rejects further publishes. Each
// subscriber's channel is closed once its queue drains.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[int]*Subscriber)
	b.mu.Unlock()

	for _, s := range subs {
		s.shutdown(true)
	}
}

func (b *Bus) detach(id int) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Subscriber is one cursor over the event stream. Events arrive on C in
// publish order; a SubscriberLagged event marks any gap caused by overflow.
type Subscriber struct {
	bus  *Bus
	id   int
	max  int
	out  chan models.Event
	done chan struct{}

	mu      sync.Mutex
	wake    *sync.Cond
	queue   []models.Event
	dropped int
	closed  bool
}

// C returns the subscriber's event channel. It is closed after Close (or
// bus Close) once buffered events have been delivered.
func (s *Subscriber) C() <-chan models.Event {
	return s.out
}

// Close detaches the subscriber from the bus and discards undelivered
// events.
func (s *Subscriber) Close() {
	s.bus.detach(s.id)
	s.shutdown(false)
}

// shutdown stops the subscriber. With drain set, buffered events are still
// delivered before the channel closes; without it delivery aborts.
func (s *Subscriber) shutdown(drain bool) {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		if !drain {
			close(s.done)
		}
		s.wake.Signal()
	}
	s.mu.Unlock()
}

func (s *Subscriber) enqueue(e models.Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.queue) >= s.max {
		copy(s.queue, s.queue[1:])
		s.queue = s.queue[:len(s.queue)-1]
		s.dropped++
	}
	s.queue = append(s.queue, e)
	s.wake.Signal()
	s.mu.Unlock()
}

// deliver drains the queue onto the out channel. Lag markers are emitted
// ahead of the next real event so subscribers learn about gaps in order.
func (s *Subscriber) deliver() {
	defer close(s.out)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && s.dropped == 0 && !s.closed {
			s.wake.Wait()
		}
		var e models.Event
		switch {
		case s.dropped > 0:
			e = models.Event{
				Type:    models.EventSubscriberLagged,
				Time:    time.Now(),
				Dropped: s.dropped,
			}
			s.dropped = 0
		case len(s.queue) > 0:
			e = s.queue[0]
			s.queue = s.queue[1:]
		default:
			// closed and drained
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		select {
		case s.out <- e:
		case <-s.done:
			return
		}
	}
}
