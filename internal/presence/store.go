package presence

import (
	"sync"
	"time"

	"focusfriends/backend/internal/model"
)

type Snapshot struct {
	Friends     []model.FriendPresence `json:"friends"`
	OnlineCount int                    `json:"onlineCount"`
	Connected   bool                   `json:"isConnected"`
}

// Patch lists the fields UpdateFriend changes. Nil fields are left alone,
// except that Subject and SessionStart are always written when SetSession is
// true so that a cleared subject can be expressed.
type Patch struct {
	Username        *string
	AvatarURL       *string
	Status          *model.PresenceStatus
	TotalFocusHours *float64
	SetSession      bool
	Subject         *string
	SessionStart    *time.Time
}

// Store is the roster of remote users as seen by one client. The local user
// never appears in it. onChange runs under the store lock with each new
// snapshot and must not call back into the store.
type Store struct {
	mu       sync.Mutex
	selfID   string
	snap     Snapshot
	onChange func(Snapshot)
}

func NewStore(selfID string, onChange func(Snapshot)) *Store {
	return &Store{
		selfID:   selfID,
		snap:     Snapshot{Friends: []model.FriendPresence{}},
		onChange: onChange,
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copySnapshot(s.snap)
}

// SetFriends replaces the roster. A repeated id keeps its first position and
// its last values.
func (s *Store) SetFriends(friends []model.FriendPresence) {
	next := make([]model.FriendPresence, 0, len(friends))
	index := make(map[string]int, len(friends))
	for _, friend := range friends {
		if friend.ID == "" || friend.ID == s.selfID {
			continue
		}
		if i, ok := index[friend.ID]; ok {
			next[i] = friend
			continue
		}
		index[friend.ID] = len(next)
		next = append(next, friend)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceLocked(next, s.snap.Connected)
}

// UpdateFriend applies patch to id, inserting an offline entry first when id
// is unknown.
func (s *Store) UpdateFriend(id string, patch Patch) {
	if id == "" || id == s.selfID {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := copyFriends(s.snap.Friends)
	found := false
	for i := range next {
		if next[i].ID == id {
			next[i] = applyPatch(next[i], patch)
			found = true
			break
		}
	}
	if !found {
		next = append(next, applyPatch(model.FriendPresence{ID: id, Status: model.PresenceOffline}, patch))
	}
	s.replaceLocked(next, s.snap.Connected)
}

func (s *Store) RemoveFriend(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]model.FriendPresence, 0, len(s.snap.Friends))
	for _, friend := range s.snap.Friends {
		if friend.ID != id {
			next = append(next, friend)
		}
	}
	s.replaceLocked(next, s.snap.Connected)
}

func (s *Store) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceLocked(s.snap.Friends, connected)
}

func (s *Store) replaceLocked(friends []model.FriendPresence, connected bool) {
	online := 0
	for _, friend := range friends {
		if friend.Status != model.PresenceOffline {
			online++
		}
	}
	s.snap = Snapshot{Friends: friends, OnlineCount: online, Connected: connected}
	if s.onChange != nil {
		s.onChange(copySnapshot(s.snap))
	}
}

func applyPatch(friend model.FriendPresence, patch Patch) model.FriendPresence {
	if patch.Username != nil {
		friend.Username = *patch.Username
	}
	if patch.AvatarURL != nil {
		avatar := *patch.AvatarURL
		friend.AvatarURL = &avatar
	}
	if patch.Status != nil {
		friend.Status = *patch.Status
	}
	if patch.TotalFocusHours != nil {
		friend.TotalFocusHours = *patch.TotalFocusHours
	}
	if patch.SetSession {
		friend.Subject = nil
		friend.SessionStart = nil
		if patch.Subject != nil {
			subject := *patch.Subject
			friend.Subject = &subject
		}
		if patch.SessionStart != nil {
			start := *patch.SessionStart
			friend.SessionStart = &start
		}
	}
	return friend
}

func copySnapshot(snap Snapshot) Snapshot {
	snap.Friends = copyFriends(snap.Friends)
	return snap
}

func copyFriends(friends []model.FriendPresence) []model.FriendPresence {
	out := make([]model.FriendPresence, len(friends))
	copy(out, friends)
	return out
}
