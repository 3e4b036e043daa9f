package presence

import (
	"testing"

	"focusfriends/backend/internal/model"
)

func countOnline(friends []model.FriendPresence) int {
	n := 0
	for _, f := range friends {
		if f.Status != model.PresenceOffline {
			n++
		}
	}
	return n
}

func assertOnlineCount(t *testing.T, s *Store) {
	t.Helper()
	snap := s.Snapshot()
	if snap.OnlineCount != countOnline(snap.Friends) {
		t.Fatalf("onlineCount = %d, want %d", snap.OnlineCount, countOnline(snap.Friends))
	}
}

func TestOnlineCountFollowsEveryMutation(t *testing.T) {
	s := NewStore("me", nil)

	s.SetFriends([]model.FriendPresence{
		{ID: "a", Username: "ann", Status: model.PresenceFocusing},
		{ID: "b", Username: "bob", Status: model.PresenceOffline},
		{ID: "c", Username: "cat", Status: model.PresenceIdle},
	})
	assertOnlineCount(t, s)
	if got := s.Snapshot().OnlineCount; got != 2 {
		t.Fatalf("onlineCount = %d, want 2", got)
	}

	status := model.PresenceBreak
	s.UpdateFriend("b", Patch{Status: &status})
	assertOnlineCount(t, s)

	s.UpdateFriend("d", Patch{Status: &status})
	assertOnlineCount(t, s)
	if got := s.Snapshot().OnlineCount; got != 4 {
		t.Fatalf("onlineCount after upsert = %d, want 4", got)
	}

	s.RemoveFriend("a")
	assertOnlineCount(t, s)
	if got := s.Snapshot().OnlineCount; got != 3 {
		t.Fatalf("onlineCount after remove = %d, want 3", got)
	}
}

func TestStoreNeverHoldsSelfOrDuplicates(t *testing.T) {
	s := NewStore("me", nil)
	s.SetFriends([]model.FriendPresence{
		{ID: "me", Username: "self", Status: model.PresenceIdle},
		{ID: "a", Username: "ann", Status: model.PresenceIdle},
		{ID: "a", Username: "ann2", Status: model.PresenceFocusing},
	})

	status := model.PresenceFocusing
	s.UpdateFriend("me", Patch{Status: &status})

	snap := s.Snapshot()
	if len(snap.Friends) != 1 {
		t.Fatalf("friends = %+v, want only ann", snap.Friends)
	}
	if snap.Friends[0].Username != "ann2" || snap.Friends[0].Status != model.PresenceFocusing {
		t.Fatalf("friend = %+v, want last values for duplicate id", snap.Friends[0])
	}
}

func TestUpdateFriendClearsSession(t *testing.T) {
	s := NewStore("me", nil)
	subject := "Math"
	status := model.PresenceFocusing
	s.UpdateFriend("a", Patch{Status: &status, SetSession: true, Subject: &subject})

	if got := s.Snapshot().Friends[0]; got.Subject == nil || *got.Subject != "Math" {
		t.Fatalf("subject = %v, want Math", got.Subject)
	}

	hours := 3.5
	s.UpdateFriend("a", Patch{TotalFocusHours: &hours})
	if got := s.Snapshot().Friends[0]; got.Subject == nil || got.TotalFocusHours != 3.5 {
		t.Fatalf("friend = %+v, subject should survive a patch without SetSession", got)
	}

	offline := model.PresenceOffline
	s.UpdateFriend("a", Patch{Status: &offline, SetSession: true})
	if got := s.Snapshot().Friends[0]; got.Subject != nil || got.Status != model.PresenceOffline {
		t.Fatalf("friend = %+v, want offline with no subject", got)
	}
}

func TestOnChangeReceivesSnapshots(t *testing.T) {
	var seen []Snapshot
	s := NewStore("me", func(snap Snapshot) { seen = append(seen, snap) })

	s.SetFriends([]model.FriendPresence{{ID: "a", Status: model.PresenceIdle}})
	s.SetConnected(true)

	if len(seen) != 2 {
		t.Fatalf("callbacks = %d, want 2", len(seen))
	}
	if !seen[1].Connected || seen[1].OnlineCount != 1 {
		t.Fatalf("last snapshot = %+v", seen[1])
	}

	seen[1].Friends[0].Status = model.PresenceOffline
	if s.Snapshot().Friends[0].Status != model.PresenceIdle {
		t.Fatal("snapshots passed to onChange must be copies")
	}
}
