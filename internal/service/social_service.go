package service

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	apperrors "focusfriends/backend/internal/errors"
	"focusfriends/backend/internal/feed"
	"focusfriends/backend/internal/leaderboard"
	"focusfriends/backend/internal/logging"
	"focusfriends/backend/internal/model"
	"focusfriends/backend/internal/presence"
	"focusfriends/backend/internal/repository"
)

type SocialOptions struct {
	Clock     clockwork.Clock
	Feed      feed.Options
	WeekStart time.Weekday
	// Location decides where a week begins. Nil means the process's local zone.
	Location  *time.Location
}

// SocialService serves the read-only views shared by every user: the roster,
// the activity feed and the weekly leaderboard.
type SocialService struct {
	sessions *repository.SessionRepository
	profiles *repository.ProfileRepository
	nudges   *repository.NudgeRepository
	opts     SocialOptions
}

func NewSocialService(
	sessions *repository.SessionRepository,
	profiles *repository.ProfileRepository,
	nudges *repository.NudgeRepository,
	opts SocialOptions,
) *SocialService {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Feed.Clock == nil {
		opts.Feed.Clock = opts.Clock
	}
	return &SocialService{
		sessions: sessions,
		profiles: profiles,
		nudges:   nudges,
		opts:     opts,
	}
}

// Friends lists every other user, focusing first, then on break, idle and
// offline. Users with the same status keep username order.
func (s *SocialService) Friends(ctx context.Context, userID string) ([]model.FriendPresence, *apperrors.APIError) {
	profiles, err := s.profiles.ListExcept(ctx, userID)
	if err != nil {
		return nil, s.backendError(ctx, err, "failed to load friends")
	}
	return presence.FriendsFromProfiles(profiles), nil
}

func (s *SocialService) Feed(ctx context.Context) ([]model.FeedEvent, *apperrors.APIError) {
	events, err := feed.Build(ctx, s.FeedSource(), s.opts.Feed)
	if err != nil {
		return nil, s.backendError(ctx, err, "failed to load activity feed")
	}
	return events, nil
}

func (s *SocialService) FeedSource() feed.RepositorySource {
	return feed.RepositorySource{Sessions: s.sessions, Profiles: s.profiles, Nudges: s.nudges}
}

func (s *SocialService) FeedOptions() feed.Options {
	return s.opts.Feed
}

type LeaderboardView struct {
	WeekStart time.Time                `json:"weekStart"`
	Entries   []model.LeaderboardEntry `json:"entries"`
}

// Leaderboard recomputes the weekly ranking from every session completed
// since the start of the current week.
func (s *SocialService) Leaderboard(ctx context.Context) (*LeaderboardView, *apperrors.APIError) {
	weekStart := leaderboard.WeekStart(s.opts.Clock.Now().In(s.opts.Location), s.opts.WeekStart)
	sessions, err := s.sessions.ListCompletedStartedSince(ctx, weekStart)
	if err != nil {
		return nil, s.backendError(ctx, err, "failed to load leaderboard")
	}

	ids := make([]string, 0)
	seen := make(map[string]struct{})
	for _, session := range sessions {
		if _, ok := seen[session.UserID]; !ok {
			seen[session.UserID] = struct{}{}
			ids = append(ids, session.UserID)
		}
	}
	names, err := s.profiles.Usernames(ctx, ids)
	if err != nil {
		return nil, s.backendError(ctx, err, "failed to load leaderboard")
	}

	return &LeaderboardView{
		WeekStart: weekStart.UTC(),
		Entries:   leaderboard.Aggregate(leaderboard.RowsFromSessions(sessions), names),
	}, nil
}

func (s *SocialService) backendError(ctx context.Context, err error, message string) *apperrors.APIError {
	if IsUnavailable(err) {
		logging.FromContext(ctx).Warn("social backend unavailable", zap.Error(err))
		return apperrors.ServiceUnavailable("service is unavailable, please try again")
	}
	logging.FromContext(ctx).Error(message, zap.Error(err))
	return apperrors.Internal(message)
}
