package timer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"focusfriends/backend/internal/model"
	"focusfriends/backend/internal/retry"
)

var ErrClosed = errors.New("timer controller closed")

// SessionBackend persists focus sessions. Both calls may be retried.
type SessionBackend interface {
	CreateSession(ctx context.Context, userID, subject string, startedAt time.Time) (string, error)
	EndSession(ctx context.Context, userID, sessionID string, endedAt time.Time) error
}

// Completion describes a countdown that ran to zero.
type Completion struct {
	UserID    string
	SessionID string
	Subject   string
	StartedAt time.Time
	EndedAt   time.Time
}

type Hooks struct {
	// OnStatusChange fires when the status differs from the last reported one.
	OnStatusChange func(model.TimerState)
	OnPreferences  func(model.TimerPreferences)
	// OnComplete fires after the backend end write has been attempted.
	OnComplete func(Completion)
}

type ControllerOptions struct {
	Clock        clockwork.Clock
	Backend      SessionBackend
	Retry        retry.Policy
	TickInterval time.Duration
	Logger       *zap.Logger
	Hooks        Hooks
}

// run tracks one start-to-idle cycle and its backend session.
type run struct {
	subject   string
	startedAt time.Time
	created   chan struct{}
	sessionID string
}

// Controller drives one user's Store: it ticks while running and mirrors
// starts and stops to the session backend without blocking local state.
type Controller struct {
	userID  string
	store   *Store
	clock   clockwork.Clock
	backend SessionBackend
	policy  retry.Policy
	every   time.Duration
	logger  *zap.Logger
	hooks   Hooks

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	current    *run
	ticker     clockwork.Ticker
	tickDone   chan struct{}
	lastStatus model.TimerStatus
	closed     bool
}

func NewController(userID string, store *Store, opts ControllerOptions) *Controller {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry = retry.DefaultPolicy()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		userID:     userID,
		store:      store,
		clock:      opts.Clock,
		backend:    opts.Backend,
		policy:     opts.Retry,
		every:      opts.TickInterval,
		logger:     opts.Logger.With(zap.String("user_id", userID)),
		hooks:      opts.Hooks,
		ctx:        ctx,
		cancel:     cancel,
		lastStatus: store.Snapshot().Status,
	}
}

func (c *Controller) Snapshot() model.TimerState {
	return c.store.Snapshot()
}

func (c *Controller) Start(subject string) (model.TimerState, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return c.store.Snapshot(), ErrClosed
	}
	state, err := c.store.Start(subject)
	if err != nil {
		c.mu.Unlock()
		return state, err
	}

	r := &run{
		subject:   state.Subject,
		startedAt: *state.StartedAt,
		created:   make(chan struct{}),
	}
	c.current = r
	c.startTickingLocked()
	changed := c.noteStatusLocked(state)
	c.mu.Unlock()

	c.createSession(r)
	c.notifyStatus(state, changed)
	c.notifyPreferences()
	return state, nil
}

func (c *Controller) Pause() (model.TimerState, error) {
	c.mu.Lock()
	state, err := c.store.Pause()
	if err != nil {
		c.mu.Unlock()
		return state, err
	}
	c.stopTickingLocked()
	changed := c.noteStatusLocked(state)
	c.mu.Unlock()

	c.notifyStatus(state, changed)
	return state, nil
}

func (c *Controller) Resume() (model.TimerState, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return c.store.Snapshot(), ErrClosed
	}
	state, err := c.store.Resume()
	if err != nil {
		c.mu.Unlock()
		return state, err
	}
	c.startTickingLocked()
	changed := c.noteStatusLocked(state)
	c.mu.Unlock()

	c.notifyStatus(state, changed)
	return state, nil
}

// Stop abandons the countdown. The local reset is immediate; the backend
// session is closed in the background.
func (c *Controller) Stop() model.TimerState {
	c.mu.Lock()
	r := c.current
	c.current = nil
	c.stopTickingLocked()
	state := c.store.Stop()
	changed := c.noteStatusLocked(state)
	c.mu.Unlock()

	c.endSession(r, false)
	c.notifyStatus(state, changed)
	return state
}

func (c *Controller) SetDuration(seconds int) (model.TimerState, error) {
	state, err := c.store.SetDuration(seconds)
	if err != nil {
		return state, err
	}
	c.notifyPreferences()
	return state, nil
}

// Tick advances the countdown by one step and completes the run when it
// reaches zero.
func (c *Controller) Tick() model.TimerState {
	return c.advance(nil)
}

// advance ticks the store. A non-nil owner is the done channel of the ticker
// that fired; the tick is dropped when that ticker has since been replaced.
func (c *Controller) advance(owner chan struct{}) model.TimerState {
	c.mu.Lock()
	if owner != nil && c.tickDone != owner {
		state := c.store.Snapshot()
		c.mu.Unlock()
		return state
	}
	state, done := c.store.Tick()
	if !done {
		c.mu.Unlock()
		return state
	}

	r := c.current
	c.current = nil
	c.stopTickingLocked()
	state = c.store.Reset()
	changed := c.noteStatusLocked(state)
	c.mu.Unlock()

	c.logger.Info("focus session completed")
	c.endSession(r, true)
	c.notifyStatus(state, changed)
	return state
}

// Close stops ticking and waits for pending backend writes until ctx is
// done, after which outstanding writes are cancelled.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.stopTickingLocked()
	c.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		c.cancel()
		return nil
	case <-ctx.Done():
		c.cancel()
		<-drained
		return ctx.Err()
	}
}

func (c *Controller) startTickingLocked() {
	if c.ticker != nil {
		return
	}
	ticker := c.clock.NewTicker(c.every)
	done := make(chan struct{})
	c.ticker = ticker
	c.tickDone = done

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-done:
				return
			case <-ticker.Chan():
				c.advance(done)
			}
		}
	}()
}

func (c *Controller) stopTickingLocked() {
	if c.ticker == nil {
		return
	}
	c.ticker.Stop()
	close(c.tickDone)
	c.ticker = nil
	c.tickDone = nil
}

func (c *Controller) noteStatusLocked(state model.TimerState) bool {
	if state.Status == c.lastStatus {
		return false
	}
	c.lastStatus = state.Status
	return true
}

func (c *Controller) notifyStatus(state model.TimerState, changed bool) {
	if changed && c.hooks.OnStatusChange != nil {
		c.hooks.OnStatusChange(state)
	}
}

func (c *Controller) notifyPreferences() {
	if c.hooks.OnPreferences == nil {
		return
	}
	prefs := c.store.Preferences()
	prefs.UserID = c.userID
	prefs.UpdatedAt = c.clock.Now().UTC()
	c.hooks.OnPreferences(prefs)
}

func (c *Controller) createSession(r *run) {
	if c.backend == nil {
		close(r.created)
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(r.created)

		var id string
		err := retry.Do(c.ctx, c.policy, func(ctx context.Context) error {
			var err error
			id, err = c.backend.CreateSession(ctx, c.userID, r.subject, r.startedAt)
			return err
		})
		if err != nil {
			c.logger.Error("create focus session", zap.Error(err))
			return
		}
		r.sessionID = id

		c.mu.Lock()
		if c.current == r {
			c.store.SetSessionID(id)
		}
		c.mu.Unlock()
	}()
}

// endSession waits for the run's create call so that a stop issued right
// after start still closes the row it produced.
func (c *Controller) endSession(r *run, completed bool) {
	if r == nil {
		return
	}
	endedAt := c.clock.Now().UTC()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		select {
		case <-r.created:
		case <-c.ctx.Done():
			c.logger.Warn("focus session end abandoned", zap.Error(c.ctx.Err()))
			return
		}

		if r.sessionID == "" {
			if c.backend != nil {
				c.logger.Warn("focus session has no backend row to end")
			}
		} else {
			err := retry.Do(c.ctx, c.policy, func(ctx context.Context) error {
				return c.backend.EndSession(ctx, c.userID, r.sessionID, endedAt)
			})
			if err != nil {
				c.logger.Error("end focus session", zap.String("session_id", r.sessionID), zap.Error(err))
			}
		}

		if completed && c.hooks.OnComplete != nil {
			c.hooks.OnComplete(Completion{
				UserID:    c.userID,
				SessionID: r.sessionID,
				Subject:   r.subject,
				StartedAt: r.startedAt,
				EndedAt:   endedAt,
			})
		}
	}()
}
