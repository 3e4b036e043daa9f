package timer

import (
	"errors"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"

	"focusfriends/backend/internal/model"
)

var (
	ErrSessionActive     = errors.New("a focus session is already active")
	ErrInvalidTransition = errors.New("invalid timer transition")
	ErrInvalidDuration   = errors.New("duration must be positive")
)

// Store holds one user's timer state. Every mutation replaces the state as a
// whole under the lock, so snapshots are always consistent.
type Store struct {
	mu    sync.Mutex
	clock clockwork.Clock
	state model.TimerState
}

func NewStore(clock clockwork.Clock, prefs model.TimerPreferences) *Store {
	duration := prefs.DurationSeconds
	if duration <= 0 {
		duration = model.DefaultFocusDurationSeconds
	}
	recent := make([]string, 0, model.MaxRecentSubjects)
	for i := len(prefs.RecentSubjects) - 1; i >= 0; i-- {
		recent = pushRecent(recent, prefs.RecentSubjects[i])
	}

	return &Store{
		clock: clock,
		state: model.TimerState{
			Status:         model.TimerIdle,
			TimeRemaining:  duration,
			Duration:       duration,
			RecentSubjects: recent,
		},
	}
}

func (s *Store) Snapshot() model.TimerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyState(s.state)
}

func (s *Store) Preferences() model.TimerPreferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.TimerPreferences{
		DurationSeconds: s.state.Duration,
		RecentSubjects:  append([]string(nil), s.state.RecentSubjects...),
	}
}

// Start begins a countdown from the configured duration. A blank subject
// falls back to model.DefaultSubject.
func (s *Store) Start(subject string) (model.TimerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status != model.TimerIdle {
		return copyState(s.state), ErrSessionActive
	}

	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = model.DefaultSubject
	}
	now := s.clock.Now().UTC()

	next := copyState(s.state)
	next.Status = model.TimerRunning
	next.TimeRemaining = next.Duration
	next.Subject = subject
	next.SessionID = nil
	next.StartedAt = &now
	next.RecentSubjects = pushRecent(next.RecentSubjects, subject)
	s.state = next
	return copyState(s.state), nil
}

func (s *Store) Pause() (model.TimerState, error) {
	return s.transition(model.TimerRunning, model.TimerPaused)
}

func (s *Store) Resume() (model.TimerState, error) {
	return s.transition(model.TimerPaused, model.TimerRunning)
}

func (s *Store) transition(from, to model.TimerStatus) (model.TimerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status != from {
		return copyState(s.state), ErrInvalidTransition
	}
	next := copyState(s.state)
	next.Status = to
	s.state = next
	return copyState(s.state), nil
}

// Tick counts down one second while running. done reports whether this tick
// took the countdown to zero.
func (s *Store) Tick() (state model.TimerState, done bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status != model.TimerRunning || s.state.TimeRemaining <= 0 {
		return copyState(s.state), false
	}
	next := copyState(s.state)
	next.TimeRemaining--
	s.state = next
	return copyState(s.state), next.TimeRemaining == 0
}

func (s *Store) Stop() model.TimerState {
	return s.Reset()
}

func (s *Store) Reset() model.TimerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := copyState(s.state)
	next.Status = model.TimerIdle
	next.TimeRemaining = next.Duration
	next.Subject = ""
	next.SessionID = nil
	next.StartedAt = nil
	s.state = next
	return copyState(s.state)
}

// SetDuration changes the session length. An active countdown keeps its
// remaining time; the new length applies from the next start.
func (s *Store) SetDuration(seconds int) (model.TimerState, error) {
	if seconds <= 0 {
		return s.Snapshot(), ErrInvalidDuration
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := copyState(s.state)
	next.Duration = seconds
	if next.Status == model.TimerIdle {
		next.TimeRemaining = seconds
	}
	s.state = next
	return copyState(s.state), nil
}

func (s *Store) SetSubject(subject string) model.TimerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := copyState(s.state)
	next.Subject = subject
	s.state = next
	return copyState(s.state)
}

func (s *Store) SetSessionID(id string) model.TimerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := copyState(s.state)
	if id == "" {
		next.SessionID = nil
	} else {
		next.SessionID = &id
	}
	s.state = next
	return copyState(s.state)
}

func (s *Store) AddRecentSubject(subject string) model.TimerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := copyState(s.state)
	next.RecentSubjects = pushRecent(next.RecentSubjects, subject)
	s.state = next
	return copyState(s.state)
}

// pushRecent moves subject to the front, dropping any entry that matches it
// case-insensitively, and keeps at most model.MaxRecentSubjects entries.
func pushRecent(recent []string, subject string) []string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return recent
	}

	next := make([]string, 0, model.MaxRecentSubjects)
	next = append(next, subject)
	for _, existing := range recent {
		if len(next) == model.MaxRecentSubjects {
			break
		}
		if strings.EqualFold(existing, subject) {
			continue
		}
		next = append(next, existing)
	}
	return next
}

func copyState(state model.TimerState) model.TimerState {
	out := state
	out.RecentSubjects = append([]string(nil), state.RecentSubjects...)
	if out.RecentSubjects == nil {
		out.RecentSubjects = []string{}
	}
	if state.SessionID != nil {
		id := *state.SessionID
		out.SessionID = &id
	}
	if state.StartedAt != nil {
		startedAt := *state.StartedAt
		out.StartedAt = &startedAt
	}
	return out
}
