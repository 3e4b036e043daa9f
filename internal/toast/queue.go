package toast

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"focusfriends/backend/internal/model"
)

const (
	DefaultLimit = 5
	DefaultTTL   = 4 * time.Second
)

// Queue keeps the most recent toasts, each removed on its own timer.
// onChange runs under the queue lock with the new list and must not call
// back into the queue.
type Queue struct {
	clock    clockwork.Clock
	ttl      time.Duration
	limit    int
	onChange func([]model.Toast)

	mu     sync.Mutex
	items  []model.Toast
	timers map[string]clockwork.Timer
	closed bool
}

func NewQueue(clock clockwork.Clock, ttl time.Duration, limit int, onChange func([]model.Toast)) *Queue {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Queue{
		clock:    clock,
		ttl:      ttl,
		limit:    limit,
		onChange: onChange,
		items:    []model.Toast{},
		timers:   make(map[string]clockwork.Timer),
	}
}

// Add enqueues entry with a fresh id and timestamp. When the queue is full
// the oldest toast is evicted.
func (q *Queue) Add(entry model.Toast) model.Toast {
	entry.ID = uuid.NewString()
	entry.CreatedAt = q.clock.Now().UTC()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return entry
	}

	next := append(append([]model.Toast(nil), q.items...), entry)
	for len(next) > q.limit {
		q.stopTimerLocked(next[0].ID)
		next = next[1:]
	}

	id := entry.ID
	q.timers[id] = q.clock.AfterFunc(q.ttl, func() {
		q.Dismiss(id)
	})
	q.replaceLocked(next)
	return entry
}

// Dismiss removes a toast. Unknown ids are ignored.
func (q *Queue) Dismiss(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.stopTimerLocked(id)
	next := make([]model.Toast, 0, len(q.items))
	for _, item := range q.items {
		if item.ID != id {
			next = append(next, item)
		}
	}
	if len(next) == len(q.items) {
		return
	}
	q.replaceLocked(next)
}

func (q *Queue) ClearAll() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for id := range q.timers {
		q.stopTimerLocked(id)
	}
	if len(q.items) == 0 {
		return
	}
	q.replaceLocked([]model.Toast{})
}

// List returns the toasts oldest first.
func (q *Queue) List() []model.Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.Toast(nil), q.items...)
}

// Close cancels every pending removal. Later Adds are ignored.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for id := range q.timers {
		q.stopTimerLocked(id)
	}
}

func (q *Queue) stopTimerLocked(id string) {
	if timer, ok := q.timers[id]; ok {
		timer.Stop()
		delete(q.timers, id)
	}
}

func (q *Queue) replaceLocked(items []model.Toast) {
	q.items = items
	if q.onChange != nil {
		q.onChange(append([]model.Toast(nil), items...))
	}
}
