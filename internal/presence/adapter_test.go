package presence

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"focusfriends/backend/internal/model"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func friendStatus(s *Store, id string) model.PresenceStatus {
	for _, f := range s.Snapshot().Friends {
		if f.ID == id {
			return f.Status
		}
	}
	return ""
}

func newTestAdapter(ch *Channel, id, name string) (*Adapter, *Store) {
	store := NewStore(id, nil)
	return NewAdapter(ch, store, id, name, clockwork.NewFakeClock(), zap.NewNop()), store
}

func TestAdaptersSeeEachOther(t *testing.T) {
	ch := NewChannel()
	ann, annStore := newTestAdapter(ch, "a", "ann")
	bob, bobStore := newTestAdapter(ch, "b", "bob")

	ann.Open()
	defer ann.Close()
	waitFor(t, "ann connected", func() bool { return annStore.Snapshot().Connected })

	bob.Open()
	defer bob.Close()
	waitFor(t, "bob sees ann", func() bool { return friendStatus(bobStore, "a") == model.PresenceIdle })
	waitFor(t, "ann sees bob", func() bool { return friendStatus(annStore, "b") == model.PresenceIdle })

	for _, f := range annStore.Snapshot().Friends {
		if f.ID == "a" {
			t.Fatal("adapter must skip its own key")
		}
	}

	subject := "Math"
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	sent, err := bob.BroadcastStatus(StatusForTimer(model.TimerRunning), &subject, &start)
	if err != nil || !sent {
		t.Fatalf("BroadcastStatus = %v, %v", sent, err)
	}
	waitFor(t, "ann sees bob focusing", func() bool { return friendStatus(annStore, "b") == model.PresenceFocusing })

	var bobEntry model.FriendPresence
	for _, f := range annStore.Snapshot().Friends {
		if f.ID == "b" {
			bobEntry = f
		}
	}
	if bobEntry.Subject == nil || *bobEntry.Subject != "Math" || bobEntry.Username != "bob" {
		t.Fatalf("bob entry = %+v", bobEntry)
	}
}

func TestBroadcastSuppressesRepeats(t *testing.T) {
	ch := NewChannel()
	a, _ := newTestAdapter(ch, "a", "ann")

	if _, err := a.BroadcastStatus(model.PresenceIdle, nil, nil); err != ErrNotOpen {
		t.Fatalf("broadcast before open err = %v, want ErrNotOpen", err)
	}

	a.Open()
	defer a.Close()

	if sent, _ := a.BroadcastStatus(model.PresenceIdle, nil, nil); sent {
		t.Fatal("initial idle should already be announced")
	}
	if sent, _ := a.BroadcastStatus(model.PresenceBreak, nil, nil); !sent {
		t.Fatal("status change should be announced")
	}
	if sent, _ := a.BroadcastStatus(model.PresenceBreak, nil, nil); sent {
		t.Fatal("unchanged status should be suppressed")
	}
}

func TestCloseMarksOfflineForOthers(t *testing.T) {
	ch := NewChannel()
	ann, annStore := newTestAdapter(ch, "a", "ann")
	bob, bobStore := newTestAdapter(ch, "b", "bob")
	ann.Open()
	defer ann.Close()
	bob.Open()

	subject := "Math"
	_, _ = bob.BroadcastStatus(model.PresenceFocusing, &subject, nil)
	waitFor(t, "ann sees bob focusing", func() bool { return friendStatus(annStore, "b") == model.PresenceFocusing })

	bob.Close()
	bob.Close()
	if bobStore.Snapshot().Connected {
		t.Fatal("closed adapter should report disconnected")
	}
	waitFor(t, "ann sees bob offline", func() bool { return friendStatus(annStore, "b") == model.PresenceOffline })
	for _, f := range annStore.Snapshot().Friends {
		if f.ID == "b" && f.Subject != nil {
			t.Fatal("leave should clear subject")
		}
	}
}

func TestStatusForTimer(t *testing.T) {
	cases := map[model.TimerStatus]model.PresenceStatus{
		model.TimerRunning: model.PresenceFocusing,
		model.TimerPaused:  model.PresenceBreak,
		model.TimerIdle:    model.PresenceIdle,
	}
	for in, want := range cases {
		if got := StatusForTimer(in); got != want {
			t.Errorf("StatusForTimer(%s) = %s, want %s", in, got, want)
		}
	}
}
