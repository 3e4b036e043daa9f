package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"focusfriends/backend/internal/bus"
	"focusfriends/backend/internal/model"
	"focusfriends/backend/internal/repository"
)

type Source interface {
	CompletedSessions(ctx context.Context, since time.Time, limit int) ([]model.Session, error)
	Usernames(ctx context.Context, ids []string) (map[string]string, error)
	RecentNudges(ctx context.Context, limit int) ([]model.NudgeView, error)
}

type Options struct {
	Window     time.Duration
	FetchLimit int
	Limit      int
	Clock      clockwork.Clock
}

// Aggregator keeps one reader's activity feed: an initial load of recent
// completions and nudges, patched by live bus events.
type Aggregator struct {
	source Source
	opts   Options

	mu     sync.Mutex
	events []model.FeedEvent
}

func NewAggregator(source Source, opts Options) *Aggregator {
	if opts.Window <= 0 {
		opts.Window = 24 * time.Hour
	}
	if opts.FetchLimit <= 0 {
		opts.FetchLimit = 15
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Aggregator{source: source, opts: opts, events: []model.FeedEvent{}}
}

func (a *Aggregator) Load(ctx context.Context) ([]model.FeedEvent, error) {
	events, err := Build(ctx, a.source, a.opts)
	if err != nil {
		return nil, err
	}
	return a.merge(events), nil
}

// Apply folds a bus event into the feed. It reports false for events that
// do not change the feed.
func (a *Aggregator) Apply(evt bus.Event) ([]model.FeedEvent, bool) {
	switch payload := evt.Payload.(type) {
	case bus.SessionChange:
		if evt.Kind != bus.KindSessionUpdated || payload.Session.EndTime == nil {
			return nil, false
		}
		return a.merge([]model.FeedEvent{SessionEvent(payload.Session, payload.Username)}), true
	case bus.NudgeCreated:
		if evt.Kind != bus.KindNudgeInserted {
			return nil, false
		}
		view := payload.Nudge
		return a.merge([]model.FeedEvent{NudgeEvent(view.Nudge, view.SenderUsername, view.ReceiverUsername)}), true
	default:
		return nil, false
	}
}

func (a *Aggregator) Events() []model.FeedEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.FeedEvent(nil), a.events...)
}

func (a *Aggregator) merge(incoming []model.FeedEvent) []model.FeedEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = Merge(a.events, incoming, a.opts.Limit)
	return append([]model.FeedEvent(nil), a.events...)
}

// Build reads the initial feed from source without any live state.
func Build(ctx context.Context, source Source, opts Options) ([]model.FeedEvent, error) {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	cutoff := opts.Clock.Now().UTC().Add(-opts.Window)

	sessions, err := source.CompletedSessions(ctx, cutoff, opts.FetchLimit)
	if err != nil {
		return nil, fmt.Errorf("load completed sessions: %w", err)
	}

	ids := make([]string, 0, len(sessions))
	seen := make(map[string]struct{}, len(sessions))
	for _, session := range sessions {
		if _, ok := seen[session.UserID]; ok {
			continue
		}
		seen[session.UserID] = struct{}{}
		ids = append(ids, session.UserID)
	}
	names, err := source.Usernames(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load usernames: %w", err)
	}

	nudges, err := source.RecentNudges(ctx, opts.FetchLimit)
	if err != nil {
		return nil, fmt.Errorf("load recent nudges: %w", err)
	}

	events := make([]model.FeedEvent, 0, len(sessions)+len(nudges))
	for _, session := range sessions {
		events = append(events, SessionEvent(session, names[session.UserID]))
	}
	for _, nudge := range nudges {
		events = append(events, NudgeEvent(nudge.Nudge, nudge.SenderUsername, nudge.ReceiverUsername))
	}
	return Merge(nil, events, opts.Limit), nil
}

// RepositorySource reads the feed from the SQLite repositories.
type RepositorySource struct {
	Sessions *repository.SessionRepository
	Profiles *repository.ProfileRepository
	Nudges   *repository.NudgeRepository
}

func (s RepositorySource) CompletedSessions(ctx context.Context, since time.Time, limit int) ([]model.Session, error) {
	return s.Sessions.ListCompletedCreatedSince(ctx, since, limit)
}

func (s RepositorySource) Usernames(ctx context.Context, ids []string) (map[string]string, error) {
	return s.Profiles.Usernames(ctx, ids)
}

func (s RepositorySource) RecentNudges(ctx context.Context, limit int) ([]model.NudgeView, error) {
	return s.Nudges.ListRecent(ctx, limit)
}
