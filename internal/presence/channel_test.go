package presence

import (
	"testing"
	"time"

	"focusfriends/backend/internal/model"
)

func nextEvent(t *testing.T, m *Member) Event {
	t.Helper()
	select {
	case evt, ok := <-m.Events():
		if !ok {
			t.Fatal("events closed")
		}
		return evt
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for presence event")
	}
	return Event{}
}

func TestJoinDeliversSyncThenJoin(t *testing.T) {
	ch := NewChannel()
	a := ch.Join("a", Meta{UserID: "a", Status: model.PresenceIdle})

	if evt := nextEvent(t, a); evt.Type != EventSync || len(evt.State) != 1 {
		t.Fatalf("first event = %+v, want sync with self", evt)
	}
	if evt := nextEvent(t, a); evt.Type != EventJoin || evt.Key != "a" {
		t.Fatalf("second event = %+v, want own join", evt)
	}

	b := ch.Join("b", Meta{UserID: "b", Status: model.PresenceFocusing})
	sync := nextEvent(t, b)
	if sync.Type != EventSync || sync.State["a"].Status != model.PresenceIdle || sync.State["b"].Status != model.PresenceFocusing {
		t.Fatalf("sync = %+v", sync)
	}
	if evt := nextEvent(t, a); evt.Type != EventJoin || evt.Key != "b" {
		t.Fatalf("a saw %+v, want join of b", evt)
	}
}

func TestKeyLeavesWithLastMember(t *testing.T) {
	ch := NewChannel()
	watcher := ch.Join("w", Meta{UserID: "w"})
	nextEvent(t, watcher)
	nextEvent(t, watcher)

	tab1 := ch.Join("u", Meta{UserID: "u", Status: model.PresenceIdle})
	nextEvent(t, watcher)
	tab2 := ch.Join("u", Meta{UserID: "u", Status: model.PresenceFocusing})
	nextEvent(t, watcher)

	tab2.Leave()
	evt := nextEvent(t, watcher)
	if evt.Type != EventJoin || evt.Meta.Status != model.PresenceIdle {
		t.Fatalf("after newest tab left = %+v, want join with remaining idle meta", evt)
	}
	if _, ok := <-tab2.Events(); ok {
		t.Fatal("left member's events should be closed")
	}

	tab1.Leave()
	evt = nextEvent(t, watcher)
	if evt.Type != EventLeave || evt.Key != "u" {
		t.Fatalf("after last tab left = %+v, want leave", evt)
	}
	if _, ok := ch.Members()["u"]; ok {
		t.Fatal("key should be gone")
	}

	tab1.Leave()
	tab1.Track(Meta{UserID: "u"})
}

func TestTrackAnnouncesNewMeta(t *testing.T) {
	ch := NewChannel()
	a := ch.Join("a", Meta{UserID: "a"})
	b := ch.Join("b", Meta{UserID: "b"})
	nextEvent(t, b)
	nextEvent(t, b)

	a.Track(Meta{UserID: "a", Status: model.PresenceBreak})
	evt := nextEvent(t, b)
	if evt.Type != EventJoin || evt.Key != "a" || evt.Meta.Status != model.PresenceBreak {
		t.Fatalf("event = %+v, want join with break", evt)
	}
	if ch.Members()["a"].Status != model.PresenceBreak {
		t.Fatal("members should reflect tracked meta")
	}
}
