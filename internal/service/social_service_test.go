package service

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"focusfriends/backend/internal/repository"
)

func TestLeaderboardWeekFollowsLocation(t *testing.T) {
	_, database := newFocusTestService(t)

	// Monday 02:00 UTC is still Sunday evening five hours west.
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC))
	newSocial := func(location *time.Location) *SocialService {
		return NewSocialService(
			repository.NewSessionRepository(database),
			repository.NewProfileRepository(database),
			repository.NewNudgeRepository(database),
			SocialOptions{Clock: clock, WeekStart: time.Monday, Location: location},
		)
	}

	view, apiErr := newSocial(time.UTC).Leaderboard(context.Background())
	if apiErr != nil {
		t.Fatalf("leaderboard: %v", apiErr)
	}
	if want := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC); !view.WeekStart.Equal(want) {
		t.Fatalf("UTC week start = %v, want %v", view.WeekStart, want)
	}

	view, apiErr = newSocial(time.FixedZone("UTC-5", -5*60*60)).Leaderboard(context.Background())
	if apiErr != nil {
		t.Fatalf("leaderboard: %v", apiErr)
	}
	if want := time.Date(2026, 2, 23, 5, 0, 0, 0, time.UTC); !view.WeekStart.Equal(want) {
		t.Fatalf("UTC-5 week start = %v, want %v", view.WeekStart, want)
	}
}
