package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"focusfriends/backend/internal/bus"
	"focusfriends/backend/internal/feed"
	"focusfriends/backend/internal/model"
	"focusfriends/backend/internal/presence"
	"focusfriends/backend/internal/toast"
)

const (
	MessagePresence     = "presence"
	MessageToasts       = "toasts"
	MessageFeed         = "feed"
	MessageTimer        = "timer"
	MessageNotification = "notification"
)

const (
	defaultRefreshInterval = 60 * time.Second
	busBuffer              = 128
)

// Message is one update pushed to the client.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// TimerView is the payload of every timer message.
type TimerView struct {
	Status    model.TimerStatus `json:"status"`
	Subject   *string           `json:"subject,omitempty"`
	StartedAt *time.Time        `json:"startedAt,omitempty"`
}

func newTimerView(status model.TimerStatus, subject *string, startedAt *time.Time) TimerView {
	if status == model.TimerIdle {
		return TimerView{Status: status}
	}
	return TimerView{Status: status, Subject: subject, StartedAt: startedAt}
}

// Sink receives every message the dashboard produces. Send is called from
// several goroutines, sometimes while a store lock is held, so it must not
// block or call back into the dashboard.
type Sink interface {
	Send(Message)
}

type SinkFunc func(Message)

func (f SinkFunc) Send(msg Message) { f(msg) }

// Roster loads stored profiles for everyone except userID.
type Roster interface {
	ListExcept(ctx context.Context, userID string) ([]model.Profile, error)
}

type Deps struct {
	Channel *presence.Channel
	Bus     *bus.Bus
	Roster  Roster
	Feed    feed.Source
	Clock   clockwork.Clock
	Logger  *zap.Logger
}

type Options struct {
	UserID   string
	Username string
	// Timer is the user's timer state when the dashboard opens.
	Timer           model.TimerState
	FeedOptions     feed.Options
	ToastTTL        time.Duration
	ToastLimit      int
	RefreshInterval time.Duration
}

// Dashboard is the live state of one open client: the friends roster with
// presence, the toast queue and the activity feed.
type Dashboard struct {
	userID string
	deps   Deps
	opts   Options
	sink   Sink
	logger *zap.Logger

	store   *presence.Store
	adapter *presence.Adapter
	toasts  *toast.Queue
	feed    *feed.Aggregator
	sub     *bus.Subscription
	ticker  clockwork.Ticker

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Open loads the initial roster and feed, joins the presence channel and
// starts following the bus.
func Open(ctx context.Context, deps Deps, opts Options, sink Sink) (*Dashboard, error) {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = defaultRefreshInterval
	}
	if opts.FeedOptions.Clock == nil {
		opts.FeedOptions.Clock = deps.Clock
	}

	d := &Dashboard{
		userID: opts.UserID,
		deps:   deps,
		opts:   opts,
		sink:   sink,
		logger: deps.Logger.With(zap.String("user_id", opts.UserID)),
		done:   make(chan struct{}),
	}
	d.store = presence.NewStore(opts.UserID, func(snap presence.Snapshot) {
		d.sink.Send(Message{Type: MessagePresence, Data: snap})
	})
	d.toasts = toast.NewQueue(deps.Clock, opts.ToastTTL, opts.ToastLimit, func(items []model.Toast) {
		d.sink.Send(Message{Type: MessageToasts, Data: items})
	})
	d.feed = feed.NewAggregator(deps.Feed, opts.FeedOptions)
	d.adapter = presence.NewAdapter(deps.Channel, d.store, opts.UserID, opts.Username, deps.Clock, d.logger)

	// Subscribe before loading so nothing published during the load is lost.
	d.sub = deps.Bus.Subscribe("", busBuffer)

	profiles, err := deps.Roster.ListExcept(ctx, opts.UserID)
	if err != nil {
		d.sub.Close()
		d.toasts.Close()
		return nil, fmt.Errorf("load roster: %w", err)
	}
	d.store.SetFriends(presence.FriendsFromProfiles(profiles))

	events, err := d.feed.Load(ctx)
	if err != nil {
		d.sub.Close()
		d.toasts.Close()
		return nil, fmt.Errorf("load feed: %w", err)
	}
	d.sink.Send(Message{Type: MessageFeed, Data: events})
	d.sink.Send(Message{Type: MessageToasts, Data: d.toasts.List()})

	d.adapter.Open()
	d.applyTimer(newTimerView(opts.Timer.Status, timerSubject(opts.Timer), opts.Timer.StartedAt))

	d.ticker = deps.Clock.NewTicker(opts.RefreshInterval)
	d.wg.Add(1)
	go d.loop()
	return d, nil
}

func (d *Dashboard) Presence() presence.Snapshot {
	return d.store.Snapshot()
}

func (d *Dashboard) Toasts() []model.Toast {
	return d.toasts.List()
}

func (d *Dashboard) Feed() []model.FeedEvent {
	return d.feed.Events()
}

func (d *Dashboard) DismissToast(id string) {
	d.toasts.Dismiss(id)
}

func (d *Dashboard) ClearToasts() {
	d.toasts.ClearAll()
}

// Close stops following the bus, leaves the presence channel and cancels
// pending toast removals.
func (d *Dashboard) Close() {
	d.closeOnce.Do(func() {
		close(d.done)
		d.ticker.Stop()
		d.wg.Wait()
		d.sub.Close()
		d.adapter.Close()
		d.toasts.Close()
	})
}

func (d *Dashboard) loop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case evt, ok := <-d.sub.Events():
			if !ok {
				d.logger.Warn("bus subscription closed")
				return
			}
			d.handle(evt)
		case <-d.ticker.Chan():
			d.refresh()
		}
	}
}

func (d *Dashboard) handle(evt bus.Event) {
	switch payload := evt.Payload.(type) {
	case bus.ProfileChange:
		d.applyProfile(payload.Profile)
	case bus.NudgeCreated:
		if payload.Nudge.ReceiverID == d.userID {
			d.toasts.Add(NudgeToast(payload.Nudge))
		}
		d.applyFeed(evt)
	case bus.SessionChange:
		d.applyFeed(evt)
	case bus.TimerStatusChange:
		if payload.UserID != d.userID {
			return
		}
		d.applyTimer(newTimerView(payload.Status, payload.Subject, payload.StartedAt))
	case bus.TimerCompleted:
		if payload.UserID != d.userID {
			return
		}
		d.sink.Send(Message{Type: MessageNotification, Data: CompletionNotification(payload)})
	}
}

func (d *Dashboard) applyProfile(profile model.Profile) {
	if profile.ID == d.userID {
		return
	}
	patch := presence.Patch{
		Username:        &profile.Username,
		AvatarURL:       profile.AvatarURL,
		TotalFocusHours: &profile.TotalFocusHours,
	}
	if status, ok := model.ParsePresenceStatus(profile.CurrentStatus); ok {
		patch.Status = &status
	}
	d.store.UpdateFriend(profile.ID, patch)
}

func (d *Dashboard) applyFeed(evt bus.Event) {
	if events, changed := d.feed.Apply(evt); changed {
		d.sink.Send(Message{Type: MessageFeed, Data: events})
	}
}

func (d *Dashboard) applyTimer(view TimerView) {
	if _, err := d.adapter.BroadcastStatus(presence.StatusForTimer(view.Status), view.Subject, view.StartedAt); err != nil {
		d.logger.Warn("broadcast presence", zap.Error(err))
	}
	d.sink.Send(Message{Type: MessageTimer, Data: view})
}

func (d *Dashboard) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	profiles, err := d.deps.Roster.ListExcept(ctx, d.userID)
	if err != nil {
		d.logger.Warn("refresh roster", zap.Error(err))
		return
	}
	current := d.store.Snapshot().Friends
	d.store.SetFriends(presence.MergeRoster(current, presence.FriendsFromProfiles(profiles)))
}

func timerSubject(state model.TimerState) *string {
	if state.Status == model.TimerIdle || state.Subject == "" {
		return nil
	}
	subject := state.Subject
	return &subject
}
