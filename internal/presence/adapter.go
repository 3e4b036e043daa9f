package presence

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"focusfriends/backend/internal/model"
)

var ErrNotOpen = errors.New("presence adapter is not open")

// StatusForTimer maps a timer status to the presence status it announces.
func StatusForTimer(status model.TimerStatus) model.PresenceStatus {
	switch status {
	case model.TimerRunning:
		return model.PresenceFocusing
	case model.TimerPaused:
		return model.PresenceBreak
	default:
		return model.PresenceIdle
	}
}

// Adapter owns one client's channel membership. It announces the local
// user's status and folds everyone else's into a Store.
type Adapter struct {
	channel  *Channel
	store    *Store
	userID   string
	username string
	clock    clockwork.Clock
	logger   *zap.Logger

	mu     sync.Mutex
	member *Member
	last   Meta
	wg     sync.WaitGroup
}

func NewAdapter(channel *Channel, store *Store, userID, username string, clock clockwork.Clock, logger *zap.Logger) *Adapter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		channel:  channel,
		store:    store,
		userID:   userID,
		username: username,
		clock:    clock,
		logger:   logger,
	}
}

// Open joins the channel as idle and starts folding events. Calling Open on
// an open adapter does nothing.
func (a *Adapter) Open() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.member != nil {
		return
	}

	meta := Meta{
		UserID:   a.userID,
		Username: a.username,
		Status:   model.PresenceIdle,
		OnlineAt: a.clock.Now().UTC(),
	}
	member := a.channel.Join(a.userID, meta)
	a.member = member
	a.last = meta

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for evt := range member.Events() {
			a.fold(evt)
		}
	}()
}

// BroadcastStatus re-announces the local presence. It reports false when
// the status, subject and session start are unchanged since the last
// announcement.
func (a *Adapter) BroadcastStatus(status model.PresenceStatus, subject *string, sessionStart *time.Time) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.member == nil {
		return false, ErrNotOpen
	}

	if a.last.Status == status && equalString(a.last.Subject, subject) && equalTime(a.last.SessionStart, sessionStart) {
		return false, nil
	}

	meta := Meta{
		UserID:       a.userID,
		Username:     a.username,
		Status:       status,
		Subject:      subject,
		SessionStart: sessionStart,
		OnlineAt:     a.clock.Now().UTC(),
	}
	a.member.Track(meta)
	a.last = meta
	a.logger.Debug("presence broadcast", zap.String("status", string(status)))
	return true, nil
}

// Close leaves the channel and waits for the fold loop to finish.
func (a *Adapter) Close() {
	a.mu.Lock()
	member := a.member
	a.member = nil
	a.mu.Unlock()
	if member == nil {
		return
	}

	member.Leave()
	a.wg.Wait()
	if dropped := member.Dropped(); dropped > 0 {
		a.logger.Warn("presence events dropped", zap.Int64("count", dropped))
	}
	a.store.SetConnected(false)
}

func (a *Adapter) fold(evt Event) {
	switch evt.Type {
	case EventSync:
		for key, meta := range evt.State {
			if key == a.userID {
				continue
			}
			a.store.UpdateFriend(key, patchFromMeta(meta))
		}
		a.store.SetConnected(true)
	case EventJoin:
		if evt.Key == a.userID {
			return
		}
		a.store.UpdateFriend(evt.Key, patchFromMeta(evt.Meta))
	case EventLeave:
		if evt.Key == a.userID {
			return
		}
		offline := model.PresenceOffline
		a.store.UpdateFriend(evt.Key, Patch{Status: &offline, SetSession: true})
	}
}

func patchFromMeta(meta Meta) Patch {
	status := meta.Status
	if status == "" {
		status = model.PresenceIdle
	}
	patch := Patch{
		Status:       &status,
		SetSession:   true,
		Subject:      meta.Subject,
		SessionStart: meta.SessionStart,
	}
	if meta.Username != "" {
		username := meta.Username
		patch.Username = &username
	}
	return patch
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
