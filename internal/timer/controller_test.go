package timer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"focusfriends/backend/internal/model"
	"focusfriends/backend/internal/retry"
)

type fakeBackend struct {
	mu          sync.Mutex
	createGate  chan struct{}
	createFails int
	creates     int
	ends        []string
}

func (b *fakeBackend) CreateSession(ctx context.Context, userID, subject string, startedAt time.Time) (string, error) {
	if b.createGate != nil {
		select {
		case <-b.createGate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.creates++
	if b.createFails > 0 {
		b.createFails--
		return "", errors.New("database is locked")
	}
	return "session-1", nil
}

func (b *fakeBackend) EndSession(ctx context.Context, userID, sessionID string, endedAt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ends = append(b.ends, sessionID)
	return nil
}

func (b *fakeBackend) endedIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.ends...)
}

type recorder struct {
	mu          sync.Mutex
	statuses    []model.TimerStatus
	completions []Completion
	prefs       []model.TimerPreferences
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnStatusChange: func(state model.TimerState) {
			r.mu.Lock()
			r.statuses = append(r.statuses, state.Status)
			r.mu.Unlock()
		},
		OnComplete: func(c Completion) {
			r.mu.Lock()
			r.completions = append(r.completions, c)
			r.mu.Unlock()
		},
		OnPreferences: func(p model.TimerPreferences) {
			r.mu.Lock()
			r.prefs = append(r.prefs, p)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) snapshot() ([]model.TimerStatus, []Completion, []model.TimerPreferences) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.TimerStatus(nil), r.statuses...),
		append([]Completion(nil), r.completions...),
		append([]model.TimerPreferences(nil), r.prefs...)
}

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

func newTestController(t *testing.T, duration int, backend SessionBackend, rec *recorder) (*Controller, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	store := NewStore(clock, model.TimerPreferences{DurationSeconds: duration})
	c := NewController("u1", store, ControllerOptions{
		Clock:        clock,
		Backend:      backend,
		Retry:        retry.Policy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		TickInterval: time.Second,
		Hooks:        rec.hooks(),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})
	return c, clock
}

func TestControllerCompletesOnce(t *testing.T) {
	backend := &fakeBackend{}
	rec := &recorder{}
	c, _ := newTestController(t, 3, backend, rec)

	if _, err := c.Start("Math"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "session id", func() bool { return c.Snapshot().SessionID != nil })

	for i := 0; i < 5; i++ {
		c.Tick()
	}

	waitFor(t, "completion", func() bool {
		_, completions, _ := rec.snapshot()
		return len(completions) == 1
	})

	statuses, completions, _ := rec.snapshot()
	if len(statuses) != 2 || statuses[0] != model.TimerRunning || statuses[1] != model.TimerIdle {
		t.Fatalf("statuses = %v, want [running idle]", statuses)
	}
	if completions[0].SessionID != "session-1" || completions[0].Subject != "Math" {
		t.Fatalf("completion = %+v", completions[0])
	}
	if ended := backend.endedIDs(); len(ended) != 1 || ended[0] != "session-1" {
		t.Fatalf("ended = %v, want [session-1]", ended)
	}
	if state := c.Snapshot(); state.Status != model.TimerIdle || state.TimeRemaining != 3 {
		t.Fatalf("state after completion = %+v", state)
	}
}

func TestControllerStopWaitsForPendingCreate(t *testing.T) {
	backend := &fakeBackend{createGate: make(chan struct{})}
	rec := &recorder{}
	c, _ := newTestController(t, 60, backend, rec)

	if _, err := c.Start("Math"); err != nil {
		t.Fatal(err)
	}
	state := c.Stop()
	if state.Status != model.TimerIdle {
		t.Fatalf("stop should reset locally at once, got %s", state.Status)
	}
	if len(backend.endedIDs()) != 0 {
		t.Fatal("end must not be written before the create finishes")
	}

	close(backend.createGate)
	waitFor(t, "end write", func() bool { return len(backend.endedIDs()) == 1 })

	if c.Snapshot().SessionID != nil {
		t.Fatal("late session id must not attach to an idle timer")
	}
	_, completions, _ := rec.snapshot()
	if len(completions) != 0 {
		t.Fatal("manual stop must not fire the completion effect")
	}
}

func TestControllerRetriesCreate(t *testing.T) {
	backend := &fakeBackend{createFails: 2}
	rec := &recorder{}
	c, _ := newTestController(t, 60, backend, rec)

	if _, err := c.Start("Math"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "session id after retries", func() bool { return c.Snapshot().SessionID != nil })
}

func TestControllerTicksFromClock(t *testing.T) {
	rec := &recorder{}
	c, clock := newTestController(t, 2, nil, rec)

	if _, err := c.Start("Math"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("ticker never registered: %v", err)
	}

	clock.Advance(time.Second)
	waitFor(t, "first tick", func() bool { return c.Snapshot().TimeRemaining == 1 })
	clock.Advance(time.Second)
	waitFor(t, "completion", func() bool {
		_, completions, _ := rec.snapshot()
		return len(completions) == 1
	})
	if c.Snapshot().Status != model.TimerIdle {
		t.Fatal("timer should be idle after completing")
	}
}

func TestControllerStatusHookSkipsTicks(t *testing.T) {
	rec := &recorder{}
	c, _ := newTestController(t, 60, nil, rec)

	_, _ = c.Start("Math")
	c.Tick()
	c.Tick()
	_, _ = c.Pause()
	if _, err := c.Pause(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second Pause err = %v", err)
	}
	_, _ = c.Resume()

	statuses, _, prefs := rec.snapshot()
	want := []model.TimerStatus{model.TimerRunning, model.TimerPaused, model.TimerRunning}
	if len(statuses) != len(want) {
		t.Fatalf("statuses = %v, want %v", statuses, want)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("statuses = %v, want %v", statuses, want)
		}
	}
	if len(prefs) != 1 || prefs[0].RecentSubjects[0] != "Math" || prefs[0].UserID != "u1" {
		t.Fatalf("prefs = %+v", prefs)
	}
	if c.Snapshot().TimeRemaining != 58 {
		t.Fatalf("remaining = %d, want 58", c.Snapshot().TimeRemaining)
	}
}

func TestControllerClosedRejectsStart(t *testing.T) {
	rec := &recorder{}
	c, _ := newTestController(t, 60, nil, rec)
	if err := c.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Start("Math"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Start after Close err = %v, want ErrClosed", err)
	}
}

func TestControllerIgnoresTickFromReplacedTicker(t *testing.T) {
	rec := &recorder{}
	c, _ := newTestController(t, 60, nil, rec)

	if _, err := c.Start("Math"); err != nil {
		t.Fatal(err)
	}
	c.mu.Lock()
	stale := c.tickDone
	c.mu.Unlock()

	c.Stop()
	if _, err := c.Start("Art"); err != nil {
		t.Fatal(err)
	}

	if state := c.advance(stale); state.TimeRemaining != 60 {
		t.Fatalf("remaining = %d after stale tick, want 60", state.TimeRemaining)
	}
	c.mu.Lock()
	current := c.tickDone
	c.mu.Unlock()
	if state := c.advance(current); state.TimeRemaining != 59 {
		t.Fatalf("remaining = %d after live tick, want 59", state.TimeRemaining)
	}
}
