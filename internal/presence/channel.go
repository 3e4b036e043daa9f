package presence

import (
	"sync"
	"sync/atomic"
	"time"

	"focusfriends/backend/internal/model"
)

// Meta is what a member announces about itself on the channel.
type Meta struct {
	UserID       string               `json:"userId"`
	Username     string               `json:"username"`
	Status       model.PresenceStatus `json:"status"`
	Subject      *string              `json:"subject,omitempty"`
	SessionStart *time.Time           `json:"sessionStart,omitempty"`
	OnlineAt     time.Time            `json:"onlineAt"`
}

type EventType string

const (
	EventSync  EventType = "sync"
	EventJoin  EventType = "join"
	EventLeave EventType = "leave"
)

// Event is delivered to members. Sync carries the latest meta of every key
// in State; join carries the key's new latest Meta; leave carries only Key.
type Event struct {
	Type  EventType
	Key   string
	Meta  Meta
	State map[string]Meta
}

const memberBuffer = 64

// Channel is a shared presence room. A key may be held by several members
// at once, one per open client; the key stays present until its last member
// leaves.
type Channel struct {
	mu      sync.Mutex
	members map[int]*Member
	next    int
	seq     uint64
}

func NewChannel() *Channel {
	return &Channel{members: make(map[int]*Member)}
}

type Member struct {
	channel *Channel
	id      int
	key     string
	meta    Meta
	seq     uint64
	events  chan Event
	left    bool
	dropped atomic.Int64
}

// Join adds a member under key. The new member first receives a sync event
// with the current state, and every member is told about the join.
func (c *Channel) Join(key string, meta Meta) *Member {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	m := &Member{
		channel: c,
		id:      c.next,
		key:     key,
		meta:    meta,
		seq:     c.seq,
		events:  make(chan Event, memberBuffer),
	}
	c.next++
	c.members[m.id] = m

	m.deliver(Event{Type: EventSync, State: c.stateLocked()})
	c.broadcastLocked(Event{Type: EventJoin, Key: key, Meta: meta})
	return m
}

// Members returns the latest meta per key.
func (c *Channel) Members() map[string]Meta {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Channel) stateLocked() map[string]Meta {
	latest := make(map[string]*Member, len(c.members))
	for _, m := range c.members {
		if cur, ok := latest[m.key]; !ok || m.seq > cur.seq {
			latest[m.key] = m
		}
	}
	state := make(map[string]Meta, len(latest))
	for key, m := range latest {
		state[key] = m.meta
	}
	return state
}

func (c *Channel) broadcastLocked(evt Event) {
	for _, m := range c.members {
		m.deliver(evt)
	}
}

// Events is closed after Leave.
func (m *Member) Events() <-chan Event {
	return m.events
}

// Track replaces this member's meta and announces it.
func (m *Member) Track(meta Meta) {
	c := m.channel
	c.mu.Lock()
	defer c.mu.Unlock()
	if m.left {
		return
	}

	c.seq++
	m.meta = meta
	m.seq = c.seq
	c.broadcastLocked(Event{Type: EventJoin, Key: m.key, Meta: meta})
}

// Leave removes the member. Others see a leave event only when no member
// holds the key any more; otherwise they see the key's remaining meta.
func (m *Member) Leave() {
	c := m.channel
	c.mu.Lock()
	defer c.mu.Unlock()
	if m.left {
		return
	}
	m.left = true
	delete(c.members, m.id)
	close(m.events)

	var successor *Member
	for _, other := range c.members {
		if other.key == m.key && (successor == nil || other.seq > successor.seq) {
			successor = other
		}
	}
	if successor == nil {
		c.broadcastLocked(Event{Type: EventLeave, Key: m.key})
		return
	}
	if successor.seq < m.seq {
		c.broadcastLocked(Event{Type: EventJoin, Key: m.key, Meta: successor.meta})
	}
}

// Dropped counts events this member missed because its buffer was full.
func (m *Member) Dropped() int64 {
	return m.dropped.Load()
}

func (m *Member) deliver(evt Event) {
	select {
	case m.events <- evt:
	default:
		m.dropped.Add(1)
	}
}
