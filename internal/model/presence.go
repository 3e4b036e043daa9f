package model

import "time"

type PresenceStatus string

const (
	PresenceFocusing PresenceStatus = "focusing"
	PresenceBreak    PresenceStatus = "break"
	PresenceIdle     PresenceStatus = "idle"
	PresenceOffline  PresenceStatus = "offline"
)

var presenceOrder = map[PresenceStatus]int{
	PresenceFocusing: 0,
	PresenceBreak:    1,
	PresenceIdle:     2,
	PresenceOffline:  3,
}

// PresenceRank orders statuses for roster display; unknown statuses sort last.
func PresenceRank(status PresenceStatus) int {
	if rank, ok := presenceOrder[status]; ok {
		return rank
	}
	return len(presenceOrder)
}

func ParsePresenceStatus(raw string) (PresenceStatus, bool) {
	status := PresenceStatus(raw)
	_, ok := presenceOrder[status]
	return status, ok
}

type FriendPresence struct {
	ID              string         `json:"id"`
	Username        string         `json:"username"`
	AvatarURL       *string        `json:"avatarUrl,omitempty"`
	Status          PresenceStatus `json:"status"`
	Subject         *string        `json:"subject,omitempty"`
	SessionStart    *time.Time     `json:"sessionStart,omitempty"`
	TotalFocusHours float64        `json:"totalFocusHours"`
}
