package bus

import (
	"strings"
	"sync"
	"time"
)

// Event is a change notification published on the bus. Origin is empty for
// events raised in this process and carries the instance id for events
// relayed from another instance.
type Event struct {
	Kind      string
	Timestamp time.Time
	Origin    string
	Payload   any
}

// Bus is an in-process publish/subscribe event bus with namespace filtering.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*Subscription
	next int
}

type Subscription struct {
	bus       *Bus
	id        int
	namespace string
	ch        chan Event
	once      sync.Once
}

func New() *Bus {
	return &Bus{
		subs: make(map[int]*Subscription),
	}
}

// Publish sends evt to every subscriber whose namespace is a prefix of
// evt.Kind. A subscriber with a full buffer misses the event.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Kind, sub.namespace) {
			select {
			case sub.ch <- evt:
			default:
			}
		}
	}
}

// Subscribe registers for events whose kind starts with namespace. An empty
// namespace receives everything.
func (b *Bus) Subscribe(namespace string, bufSize int) *Subscription {
	if bufSize <= 0 {
		bufSize = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &Subscription{
		bus:       b,
		id:        b.next,
		namespace: namespace,
		ch:        make(chan Event, bufSize),
	}
	b.next++
	b.subs[sub.id] = sub
	return sub
}

// Events is closed once Close has been called.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		close(s.ch)
		s.bus.mu.Unlock()
	})
}
