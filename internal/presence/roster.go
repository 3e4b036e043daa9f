package presence

import (
	"sort"

	"focusfriends/backend/internal/model"
)

// FriendsFromProfiles converts stored profiles into roster entries sorted
// by presence rank. Entries of equal rank keep their input order.
func FriendsFromProfiles(profiles []model.Profile) []model.FriendPresence {
	friends := make([]model.FriendPresence, 0, len(profiles))
	for _, profile := range profiles {
		status, ok := model.ParsePresenceStatus(profile.CurrentStatus)
		if !ok {
			status = model.PresenceOffline
		}
		friends = append(friends, model.FriendPresence{
			ID:              profile.ID,
			Username:        profile.Username,
			AvatarURL:       profile.AvatarURL,
			Status:          status,
			TotalFocusHours: profile.TotalFocusHours,
		})
	}
	SortRoster(friends)
	return friends
}

func SortRoster(friends []model.FriendPresence) {
	sort.SliceStable(friends, func(i, j int) bool {
		return model.PresenceRank(friends[i].Status) < model.PresenceRank(friends[j].Status)
	})
}

// MergeRoster takes stored fields from loaded and live fields (status,
// subject, session start) from current for ids current already knows.
// Ids missing from loaded are dropped.
func MergeRoster(current, loaded []model.FriendPresence) []model.FriendPresence {
	live := make(map[string]model.FriendPresence, len(current))
	for _, friend := range current {
		live[friend.ID] = friend
	}

	merged := make([]model.FriendPresence, 0, len(loaded))
	for _, friend := range loaded {
		if known, ok := live[friend.ID]; ok {
			friend.Status = known.Status
			friend.Subject = known.Subject
			friend.SessionStart = known.SessionStart
		}
		merged = append(merged, friend)
	}
	SortRoster(merged)
	return merged
}
